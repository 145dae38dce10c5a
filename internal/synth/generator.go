// Package synth generates synthetic CLIENTES, PRODUCTOS and TRANSACCIONES
// extracts for demos, load tests and pipeline fixtures.
//
// Output looks like a real core-banking extract: quote-wrapped identifiers,
// YYYYMMDD.000 dates, mixed alpha-2 and numeric country codes. A configurable
// share of rows carries the defects the pipeline is built to absorb.
package synth

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"golang-compliance-analytics/internal/parsers"
	"golang-compliance-analytics/pkg/logger"
)

// Pattern controls how transaction timestamps are distributed
type Pattern string

const (
	PatternRandom        Pattern = "random"
	PatternBusinessHours Pattern = "business-hours"
	PatternEndOfMonth    Pattern = "end-of-month"
)

// IsValid reports whether p is a known pattern
func (p Pattern) IsValid() bool {
	switch p {
	case PatternRandom, PatternBusinessHours, PatternEndOfMonth:
		return true
	}
	return false
}

// GeneratorConfig holds the knobs of a generation run
type GeneratorConfig struct {
	Customers              int
	TransactionsPerAccount int
	StartDate              time.Time
	EndDate                time.Time
	MinAmount              decimal.Decimal
	MaxAmount              decimal.Decimal
	Seed                   int64
	Pattern                Pattern
	Encoding               parsers.Encoding

	// DirtyRate is the probability that a row carries an extract defect
	DirtyRate float64
	// SpikeRate is the probability that a transaction amount is inflated
	SpikeRate float64
}

// DefaultGeneratorConfig returns a small, mostly clean data set over 2024
func DefaultGeneratorConfig() *GeneratorConfig {
	return &GeneratorConfig{
		Customers:              50,
		TransactionsPerAccount: 24,
		StartDate:              time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:                time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		MinAmount:              decimal.NewFromInt(10),
		MaxAmount:              decimal.NewFromInt(5000),
		Seed:                   1,
		Pattern:                PatternRandom,
		Encoding:               parsers.EncodingUTF8,
		DirtyRate:              0.05,
		SpikeRate:              0.01,
	}
}

// Validate checks the configuration
func (c *GeneratorConfig) Validate() error {
	if c.Customers <= 0 {
		return fmt.Errorf("customers must be positive, got %d", c.Customers)
	}
	if c.TransactionsPerAccount < 0 {
		return fmt.Errorf("transactions per account cannot be negative, got %d", c.TransactionsPerAccount)
	}
	if !c.EndDate.After(c.StartDate) {
		return fmt.Errorf("end date %s must be after start date %s",
			c.EndDate.Format("2006-01-02"), c.StartDate.Format("2006-01-02"))
	}
	if !c.MinAmount.IsPositive() || c.MaxAmount.LessThan(c.MinAmount) {
		return fmt.Errorf("invalid amount range %s to %s", c.MinAmount, c.MaxAmount)
	}
	if !c.Pattern.IsValid() {
		return fmt.Errorf("invalid pattern: %s", c.Pattern)
	}
	switch c.Encoding {
	case parsers.EncodingUTF8, parsers.EncodingLatin1:
	default:
		return fmt.Errorf("invalid encoding: %s", c.Encoding)
	}
	if c.DirtyRate < 0 || c.DirtyRate > 1 {
		return fmt.Errorf("dirty rate must be between 0 and 1, got %g", c.DirtyRate)
	}
	if c.SpikeRate < 0 || c.SpikeRate > 1 {
		return fmt.Errorf("spike rate must be between 0 and 1, got %g", c.SpikeRate)
	}
	return nil
}

// Extract is one generated data set. Each table starts with its header row.
type Extract struct {
	Customers    [][]string
	Products     [][]string
	Transactions [][]string
}

// Generator produces extracts. The same config always yields the same
// extract.
type Generator struct {
	config *GeneratorConfig
	rng    *rand.Rand
	logger logger.Logger
}

// NewGenerator creates a generator after validating config
func NewGenerator(config *GeneratorConfig, log logger.Logger) (*Generator, error) {
	if config == nil {
		config = DefaultGeneratorConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Generator{
		config: config,
		logger: log.WithComponent("synth"),
	}, nil
}

type country struct {
	alpha2  string
	numeric string
}

var countries = []country{
	{"US", "840"}, {"CA", "124"}, {"MX", "484"}, {"CO", "170"},
	{"PA", "591"}, {"GT", "320"}, {"ES", "724"}, {"DO", "214"},
}

var (
	customerTypes  = []string{"NATURAL", "NATURAL", "NATURAL", "JURIDICO"}
	riskLevels     = []string{"BAJO", "BAJO", "MEDIO", "MEDIO ALTO", "ALTO"}
	accountTypes   = []string{"AHORROS", "CORRIENTE"}
	accountStates  = []string{"ACTIVA", "ACTIVA", "ACTIVA", "INACTIVA", "BLOQUEADA"}
	productTypes   = []string{"TARJETA", "CRÉDITO", "PRÉSTAMO", "INVERSIÓN"}
	unknownCountry = "SIN INFO"
)

type account struct {
	number  string
	country country
}

// Generate builds a new extract from the configured seed
func (g *Generator) Generate() *Extract {
	g.rng = rand.New(rand.NewSource(g.config.Seed))

	ext := &Extract{
		Customers:    [][]string{parsers.CustomersSpec().Columns},
		Products:     [][]string{parsers.ProductsSpec().Columns},
		Transactions: [][]string{parsers.TransactionsSpec().Columns},
	}

	var accounts []account
	for i := 1; i <= g.config.Customers; i++ {
		home := countries[g.rng.Intn(len(countries))]
		row, acct := g.customerRow(i, home)
		ext.Customers = append(ext.Customers, row)
		if acct != nil {
			accounts = append(accounts, *acct)
		}
	}

	for _, acct := range accounts {
		ext.Products = append(ext.Products, g.productRows(acct)...)
		ext.Transactions = append(ext.Transactions, g.transactionRows(acct)...)
	}

	// Activity on accounts missing from CLIENTES
	orphans := int(float64(g.config.Customers) * g.config.DirtyRate)
	for i := 1; i <= orphans; i++ {
		acct := account{number: fmt.Sprintf("X%05d", i), country: countries[g.rng.Intn(len(countries))]}
		ext.Products = append(ext.Products, g.productRows(acct)[0])
		ext.Transactions = append(ext.Transactions, g.transactionRow(acct))
	}

	// Extracts are not ordered
	g.shuffle(ext.Products)
	g.shuffle(ext.Transactions)

	g.logger.WithFields(logger.Fields{
		"customers":    len(ext.Customers) - 1,
		"products":     len(ext.Products) - 1,
		"transactions": len(ext.Transactions) - 1,
		"seed":         g.config.Seed,
	}).Info("Synthetic extract generated")
	return ext
}

func (g *Generator) customerRow(i int, home country) ([]string, *account) {
	updated := g.randomTime(g.config.StartDate.AddDate(-2, 0, 0), g.config.StartDate)
	updatedField := updated.Format("20060102") + ".000"
	pep := "NO"
	if g.rng.Float64() < 0.03 {
		pep = "SI"
	}
	risk := riskLevels[g.rng.Intn(len(riskLevels))]
	if g.dirty() {
		updatedField = "0.000"
	}
	if g.dirty() {
		pep, risk = unknownCountry, unknownCountry
	}

	row := []string{
		quote(fmt.Sprintf("C%05d", i)),
		customerTypes[g.rng.Intn(len(customerTypes))],
		updatedField,
		pep,
		risk,
		g.countryField(home),
	}

	// Some customers hold no account
	if g.dirty() {
		return append(row, "", "", "", ""), nil
	}
	acct := &account{number: fmt.Sprintf("A%05d", i), country: home}
	statusDate := g.randomTime(g.config.StartDate.AddDate(-3, 0, 0), g.config.EndDate)
	row = append(row,
		quote(acct.number),
		accountTypes[g.rng.Intn(len(accountTypes))],
		accountStates[g.rng.Intn(len(accountStates))],
		statusDate.Format("2006-01-02"),
	)
	return row, acct
}

func (g *Generator) productRows(acct account) [][]string {
	n := 1 + g.rng.Intn(3)
	rows := make([][]string, 0, n+1)
	for j := 1; j <= n; j++ {
		rows = append(rows, []string{
			quote(acct.number),
			quote(fmt.Sprintf("P%s%02d", acct.number[1:], j)),
			productTypes[g.rng.Intn(len(productTypes))],
		})
	}
	if g.dirty() {
		rows = append(rows, append([]string{}, rows[0]...))
	}
	return rows
}

func (g *Generator) transactionRows(acct account) [][]string {
	n := g.config.TransactionsPerAccount
	if n > 1 {
		n = n/2 + g.rng.Intn(n)
	}
	rows := make([][]string, 0, n)
	for j := 0; j < n; j++ {
		row := g.transactionRow(acct)
		rows = append(rows, row)
		if g.dirty() {
			rows = append(rows, append([]string{}, row...))
		}
	}
	return rows
}

func (g *Generator) transactionRow(acct account) []string {
	when := g.timestamp()
	amount := g.amount()

	kind, origin, destination := "Cash", acct.country, acct.country
	switch r := g.rng.Float64(); {
	case r < 0.45:
		kind = "Wires Out"
		destination = countries[g.rng.Intn(len(countries))]
	case r < 0.85:
		kind = "Wires In"
		origin = countries[g.rng.Intn(len(countries))]
	}

	dateField := when.Format("2006-01-02 15:04:05")
	amountField := amount.StringFixed(3)
	if g.dirty() {
		switch g.rng.Intn(3) {
		case 0:
			dateField = ""
		case 1:
			amountField = amount.Neg().StringFixed(3)
		default:
			amountField = "N/D"
		}
	}

	return []string{
		quote(acct.number),
		dateField,
		quote(kind),
		amountField,
		quote(g.countryField(origin)),
		quote(g.countryField(destination)),
	}
}

// countryField renders c the way extracts do: mostly alpha-2, sometimes the
// numeric code, and occasionally no information at all.
func (g *Generator) countryField(c country) string {
	r := g.rng.Float64()
	switch {
	case r < g.config.DirtyRate/2:
		return unknownCountry
	case r < 0.15:
		return c.numeric
	default:
		return c.alpha2
	}
}

func (g *Generator) amount() decimal.Decimal {
	span := g.config.MaxAmount.Sub(g.config.MinAmount)
	amount := decimal.NewFromFloat(g.rng.Float64()).Mul(span).Add(g.config.MinAmount)
	if g.rng.Float64() < g.config.SpikeRate {
		amount = amount.Mul(decimal.NewFromInt(int64(10 + g.rng.Intn(40))))
	}
	return amount.Round(2)
}

func (g *Generator) timestamp() time.Time {
	start, end := g.config.StartDate, g.config.EndDate
	switch g.config.Pattern {
	case PatternBusinessHours:
		day := g.randomTime(start, end)
		hour := g.rng.Intn(24)
		weekday := day.Weekday() != time.Saturday && day.Weekday() != time.Sunday
		if weekday && g.rng.Float64() < 0.8 {
			hour = 9 + g.rng.Intn(8)
		}
		return time.Date(day.Year(), day.Month(), day.Day(), hour, g.rng.Intn(60), g.rng.Intn(60), 0, time.UTC)
	case PatternEndOfMonth:
		t := g.randomTime(start, end)
		if g.rng.Float64() < 0.7 {
			last := time.Date(t.Year(), t.Month()+1, 0, t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
			t = last.AddDate(0, 0, -g.rng.Intn(5))
			if t.Before(start) || t.After(end) {
				t = g.randomTime(start, end)
			}
		}
		return t
	default:
		return g.randomTime(start, end)
	}
}

func (g *Generator) randomTime(from, to time.Time) time.Time {
	span := to.Sub(from)
	if span <= 0 {
		return from
	}
	return from.Add(time.Duration(g.rng.Int63n(int64(span)))).Truncate(time.Second).UTC()
}

func (g *Generator) dirty() bool {
	return g.rng.Float64() < g.config.DirtyRate
}

// shuffle reorders every row after the header
func (g *Generator) shuffle(table [][]string) {
	rows := table[1:]
	g.rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })
}

func quote(s string) string {
	return "'" + s + "'"
}

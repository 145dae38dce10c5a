// Package primary produces the canonical customer-account and transaction
// entities consumed by feature engineering.
package primary

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang-compliance-analytics/internal/country"
	"golang-compliance-analytics/internal/models"
	"golang-compliance-analytics/pkg/errors"
	"golang-compliance-analytics/pkg/logger"
)

// UnknownCategory is the value given to labels missing from a recategorization map
const UnknownCategory = -1

// Config holds the primary stage settings
type Config struct {
	PEPMap           map[string]int `json:"pep_map" mapstructure:"pep_map"`
	RiskMap          map[string]int `json:"risk_map" mapstructure:"risk_map"`
	ImputeUpdateDate bool           `json:"impute_update_date" mapstructure:"impute_update_date"`
}

// DefaultConfig returns the recategorization used by the compliance team
func DefaultConfig() *Config {
	return &Config{
		PEPMap: map[string]int{
			"SI": 1,
			"NO": 0,
		},
		RiskMap: map[string]int{
			"BAJO":       1,
			"MEDIO BAJO": 2,
			"MEDIO":      3,
			"MEDIO ALTO": 4,
			"ALTO":       5,
		},
		ImputeUpdateDate: true,
	}
}

// Validate checks the maps do not use the reserved unknown value
func (c *Config) Validate() error {
	for label, v := range c.PEPMap {
		if v == UnknownCategory {
			return fmt.Errorf("pep_map value for %q collides with the unknown category %d", label, UnknownCategory)
		}
	}
	for label, v := range c.RiskMap {
		if v == UnknownCategory {
			return fmt.Errorf("risk_map value for %q collides with the unknown category %d", label, UnknownCategory)
		}
	}
	return nil
}

// Stats reports the row-level work done by the stage
type Stats struct {
	OrphanTransactions int        `json:"orphan_transactions"`
	ImputedDates       int        `json:"imputed_update_dates"`
	ImputedWith        *time.Time `json:"imputed_with,omitempty"`
	UnknownCountries   int        `json:"unknown_countries"`
	MissingCountries   int        `json:"missing_countries"`
}

// Builder produces the primary dataset
type Builder struct {
	config     *Config
	normalizer *country.Normalizer
	issues     *errors.RowIssueCollector
	logger     logger.Logger
}

// NewBuilder creates a primary builder
func NewBuilder(config *Config, normalizer *country.Normalizer, issues *errors.RowIssueCollector, log logger.Logger) (*Builder, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "primary", "recategorization", err)
	}
	if issues == nil {
		issues = errors.NewRowIssueCollector(5)
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Builder{
		config:     config,
		normalizer: normalizer,
		issues:     issues,
		logger:     log.WithComponent("primary"),
	}, nil
}

// Build recategorizes customers, imputes missing update dates, normalizes
// customer countries and drops transactions whose account is unknown. A
// transaction that breaks the cleaned-row invariants fails the stage.
func (b *Builder) Build(ctx context.Context, in *models.IntermediateDataset) (*models.PrimaryDataset, *Stats, error) {
	if in == nil {
		return nil, nil, errors.PipelineStageError(errors.CodeArtifactMissing, "primary", nil)
	}
	stats := &Stats{}

	rows := make([]models.CustomerAccount, len(in.Customers.Rows))
	copy(rows, in.Customers.Rows)

	var mode *time.Time
	if b.config.ImputeUpdateDate {
		mode = ModeDate(rows)
		stats.ImputedWith = mode
	}

	for i := range rows {
		c := &rows[i].Customer
		c.PEP = Recategorize(c.PEPLabel, b.config.PEPMap)
		c.Risk = Recategorize(c.RiskLabel, b.config.RiskMap)

		if c.UpdatedAt == nil && mode != nil {
			imputed := *mode
			c.UpdatedAt = &imputed
			stats.ImputedDates++
			b.issues.Add(errors.RowIssue{Dataset: models.DatasetCustomers, Line: rows[i].Line,
				Column: "FECHA_ACTUALIZACION", Condition: errors.ConditionImputedDate})
		}

		switch {
		case country.IsMissing(c.CountryRaw):
			c.Country = country.Unknown
			stats.MissingCountries++
			b.issues.Add(errors.RowIssue{Dataset: models.DatasetCustomers, Line: rows[i].Line,
				Column: "PAIS", Condition: errors.ConditionMissingCountry})
		default:
			canonical, ok := b.normalizer.Resolve(c.CountryRaw)
			c.Country = canonical
			if !ok {
				stats.UnknownCountries++
				b.issues.Add(errors.RowIssue{Dataset: models.DatasetCustomers, Line: rows[i].Line,
					Column: "PAIS", Value: c.CountryRaw, Condition: errors.ConditionUnknownCountry})
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, stats, errors.PipelineStageError(errors.CodeStageFailed, "primary", err)
	}

	for i := range in.Transactions {
		tx := &in.Transactions[i]
		if err := tx.Validate(); err != nil {
			return nil, stats, errors.Wrap(err, errors.CategoryDataQuality, errors.CodeInvalidValue,
				"intermediate artifact holds an invalid transaction").
				WithContext("transaction", tx.String()).
				WithContext("line", tx.Line)
		}
	}

	view := models.CustomerAccountView{Rows: rows}
	transactions, orphans := CheckReferences(view, in.Transactions, b.issues)
	stats.OrphanTransactions = orphans

	b.logger.WithFields(logger.Fields{
		"customer_accounts":   len(rows),
		"transactions":        len(transactions),
		"orphan_transactions": orphans,
		"imputed_dates":       stats.ImputedDates,
	}).Info("Primary dataset built")

	return &models.PrimaryDataset{Customers: view, Transactions: transactions}, stats, nil
}

// Recategorize maps a label to its code, case-insensitively. Unmapped labels,
// including the missing placeholder, give UnknownCategory.
func Recategorize(label string, mapping map[string]int) int {
	key := strings.ToUpper(strings.Join(strings.Fields(label), " "))
	if v, ok := mapping[key]; ok {
		return v
	}
	for k, v := range mapping {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return UnknownCategory
}

// ModeDate returns the most common FECHA_ACTUALIZACION. Ties go to the
// earliest date. It returns nil when no row has a date.
func ModeDate(rows []models.CustomerAccount) *time.Time {
	counts := make(map[time.Time]int)
	for _, r := range rows {
		if r.Customer.UpdatedAt != nil {
			counts[r.Customer.UpdatedAt.UTC()]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	dates := make([]time.Time, 0, len(counts))
	for d := range counts {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool {
		if counts[dates[i]] != counts[dates[j]] {
			return counts[dates[i]] > counts[dates[j]]
		}
		return dates[i].Before(dates[j])
	})
	mode := dates[0]
	return &mode
}

// CheckReferences keeps transactions whose account is in the view and
// reports the rest as orphan references. Order is preserved.
func CheckReferences(view models.CustomerAccountView, transactions []models.Transaction, issues *errors.RowIssueCollector) ([]models.Transaction, int) {
	known := view.Accounts()
	out := make([]models.Transaction, 0, len(transactions))
	orphans := 0
	for _, tx := range transactions {
		if _, ok := known[tx.Account]; ok {
			out = append(out, tx)
			continue
		}
		orphans++
		if issues != nil {
			issues.Add(errors.RowIssue{Dataset: models.DatasetTransactions, Line: tx.Line, Column: "CUENTA",
				Value: tx.Account, Condition: errors.ConditionOrphanTrx})
		}
	}
	return out, orphans
}

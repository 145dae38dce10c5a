package primary

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang-compliance-analytics/internal/country"
	"golang-compliance-analytics/internal/models"
	"golang-compliance-analytics/pkg/errors"
	"golang-compliance-analytics/pkg/logger"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func tx(index int, account string, amount int64) models.Transaction {
	return models.Transaction{Index: index, Line: index + 2, Account: account,
		Date: *date(2024, 1, 10), Amount: decimal.NewFromInt(amount), Origin: "USA", Destination: "CAN"}
}

func TestRecategorize(t *testing.T) {
	config := DefaultConfig()

	tests := []struct {
		label   string
		mapping map[string]int
		want    int
	}{
		{"SI", config.PEPMap, 1},
		{"no", config.PEPMap, 0},
		{"SIN INFO", config.PEPMap, UnknownCategory},
		{"", config.PEPMap, UnknownCategory},
		{"MEDIO  BAJO", config.RiskMap, 2},
		{"medio alto", config.RiskMap, 4},
		{"ALTO", config.RiskMap, 5},
		{"EXTREMO", config.RiskMap, UnknownCategory},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, Recategorize(tt.label, tt.mapping))
		})
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.RiskMap["DESCONOCIDO"] = UnknownCategory
	assert.Error(t, bad.Validate())
}

func TestModeDate(t *testing.T) {
	rows := []models.CustomerAccount{
		{Customer: models.Customer{UpdatedAt: date(2023, 5, 1)}},
		{Customer: models.Customer{UpdatedAt: date(2023, 1, 1)}},
		{Customer: models.Customer{UpdatedAt: date(2023, 5, 1)}},
		{Customer: models.Customer{UpdatedAt: date(2023, 1, 1)}},
		{Customer: models.Customer{}},
	}
	mode := ModeDate(rows)
	require.NotNil(t, mode)
	assert.Equal(t, "2023-01-01", mode.Format("2006-01-02"), "ties go to the earliest date")

	assert.Nil(t, ModeDate([]models.CustomerAccount{{}}))
}

func TestBuild(t *testing.T) {
	normalizer, err := country.NewNormalizer(country.Alpha3)
	require.NoError(t, err)
	issues := errors.NewRowIssueCollector(5)
	b, err := NewBuilder(nil, normalizer, issues, logger.Discard())
	require.NoError(t, err)

	in := &models.IntermediateDataset{
		Customers: models.CustomerAccountView{Rows: []models.CustomerAccount{
			{Line: 2, Customer: models.Customer{Code: "C1", PEPLabel: "SI", RiskLabel: "ALTO",
				CountryRaw: "840", UpdatedAt: date(2023, 3, 1)}, Account: models.Account{Number: "A1"}},
			{Line: 3, Customer: models.Customer{Code: "C2", PEPLabel: "SIN INFO", RiskLabel: "SIN INFO",
				CountryRaw: "SIN INFO"}, Account: models.Account{Number: "A2"}},
			{Line: 4, Customer: models.Customer{Code: "C3", CountryRaw: "QQ"}},
		}},
		Transactions: []models.Transaction{
			tx(0, "A1", 1),
			tx(1, "A9", 2),
			tx(2, "A2", 3),
		},
	}

	out, stats, err := b.Build(context.Background(), in)
	require.NoError(t, err)

	c1 := out.Customers.Rows[0].Customer
	assert.Equal(t, 1, c1.PEP)
	assert.Equal(t, 5, c1.Risk)
	assert.Equal(t, "USA", c1.Country)

	c2 := out.Customers.Rows[1].Customer
	assert.Equal(t, UnknownCategory, c2.PEP)
	assert.Equal(t, UnknownCategory, c2.Risk)
	assert.Equal(t, country.Unknown, c2.Country)
	require.NotNil(t, c2.UpdatedAt)
	assert.Equal(t, "2023-03-01", c2.UpdatedAt.Format("2006-01-02"))

	assert.Equal(t, country.Unknown, out.Customers.Rows[2].Customer.Country)

	require.Len(t, out.Transactions, 2)
	assert.Equal(t, "A1", out.Transactions[0].Account)
	assert.Equal(t, "A2", out.Transactions[1].Account)

	assert.Equal(t, 1, stats.OrphanTransactions)
	assert.Equal(t, 2, stats.ImputedDates)
	assert.Equal(t, 1, stats.MissingCountries)
	assert.Equal(t, 1, stats.UnknownCountries)
	assert.Equal(t, 1, issues.Count(errors.ConditionOrphanTrx))

	assert.Nil(t, in.Customers.Rows[1].Customer.UpdatedAt, "input must not be mutated")
}

func TestBuildRejectsInvalidTransaction(t *testing.T) {
	normalizer, err := country.NewNormalizer(country.Alpha3)
	require.NoError(t, err)
	b, err := NewBuilder(nil, normalizer, nil, logger.Discard())
	require.NoError(t, err)

	bad := tx(1, "A1", 5)
	bad.Amount = decimal.NewFromInt(-5)
	in := &models.IntermediateDataset{
		Customers:    models.CustomerAccountView{Rows: []models.CustomerAccount{{Account: models.Account{Number: "A1"}}}},
		Transactions: []models.Transaction{tx(0, "A1", 1), bad},
	}

	out, _, err := b.Build(context.Background(), in)
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidValue))
	assert.Equal(t, 6, errors.GetExitCode(err))

	pe, ok := errors.AsPipelineError(err)
	require.True(t, ok)
	assert.Contains(t, pe.Context["transaction"], "Amount: -5")
	assert.Equal(t, 3, pe.Context["line"])
}

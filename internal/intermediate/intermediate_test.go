package intermediate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang-compliance-analytics/internal/country"
	"golang-compliance-analytics/internal/models"
	"golang-compliance-analytics/pkg/errors"
	"golang-compliance-analytics/pkg/logger"
)

var trxHeader = []string{"CUENTA", "FECHA_TRANSACCION", "TIPO_TRANSACCION", "MONTO",
	"PAIS_ORIGEN_TRANSACCION", "PAIS_DESTINO_TRANSACCION"}

func newTestBuilder(t *testing.T) (*Builder, *errors.RowIssueCollector) {
	t.Helper()
	normalizer, err := country.NewNormalizer(country.Alpha3)
	require.NoError(t, err)
	issues := errors.NewRowIssueCollector(5)
	return NewBuilder(normalizer, issues, logger.Discard()), issues
}

func trxTable(rows ...[]string) *models.RawTable {
	table := &models.RawTable{Dataset: models.DatasetTransactions, Header: trxHeader}
	for i, r := range rows {
		table.Rows = append(table.Rows, models.RawRow{Line: i + 2, Values: r})
	}
	return table
}

func TestClean(t *testing.T) {
	assert.Equal(t, "S1", Clean(" 'S1' "))
	assert.Equal(t, "Wires Out", Clean(`"Wires Out"`))
	assert.Equal(t, "", Clean("''"))
	assert.Equal(t, "O'Brien", Clean("O'Brien"))
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		missing bool
		wantErr bool
	}{
		{in: "2024-01-10 10:00:00", want: "2024-01-10"},
		{in: "2024-01-10", want: "2024-01-10"},
		{in: "20230115.000", want: "2023-01-15"},
		{in: "20230115", want: "2023-01-15"},
		{in: "2024-03-01T08:00:00Z", want: "2024-03-01"},
		{in: "0.000", missing: true},
		{in: "", missing: true},
		{in: "yesterday", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDate(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.missing {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Format("2006-01-02"))
		})
	}
}

func TestParseAmount(t *testing.T) {
	d, err := ParseAmount("'1,250.500'")
	require.NoError(t, err)
	assert.Equal(t, "1250.5", d.String())

	_, err = ParseAmount("")
	assert.Error(t, err)
	_, err = ParseAmount("abc")
	assert.Error(t, err)
}

func TestCleanTransactions(t *testing.T) {
	b, issues := newTestBuilder(t)

	table := trxTable(
		[]string{"'S1'", "2024-01-10 10:00:00", "'Wires Out'", "100.000", "840", "'CA'"},
		[]string{"'S1'", "2024-01-10 10:00:00", "'Wires Out'", "100.000", "840", "'CA'"}, // duplicate
		[]string{"'S1'", "", "'Wires Out'", "5.000", "US", "CA"},                          // null date
		[]string{"'S2'", "2024-01-11", "'Wires Out'", "-5.000", "US", "CA"},               // negative
		[]string{"'S2'", "2024-01-11", "'Wires Out'", "n/a", "US", "CA"},                  // invalid amount
		[]string{"'S2'", "2024-01-11", "'Wires Out'", "5.000", "SIN INFO", "''"},          // no countries
		[]string{"'S3'", "2024-01-12", "'Wires In'", "7.000", "ZZ", "MEX"},                // unknown origin
	)

	out, stats, err := b.CleanTransactions(table)
	require.NoError(t, err)
	require.Len(t, out, 2)

	first := out[0]
	assert.Equal(t, "S1", first.Account)
	assert.Equal(t, "Wires Out", first.Type)
	assert.Equal(t, "USA", first.Origin)
	assert.Equal(t, "CAN", first.Destination)
	assert.True(t, first.Date.Equal(time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, 0, first.Index)

	second := out[1]
	assert.Equal(t, country.Unknown, second.Origin)
	assert.Equal(t, "MEX", second.Destination)
	assert.Equal(t, 6, second.Index)

	assert.Equal(t, 7, stats.Input)
	assert.Equal(t, 4, stats.Rejected)
	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, 1, stats.ByReason[errors.ConditionNullDate])
	assert.Equal(t, 1, stats.ByReason[errors.ConditionNegativeAmount])
	assert.Equal(t, 1, stats.ByReason[errors.ConditionInvalidAmount])
	assert.Equal(t, 1, stats.ByReason[errors.ConditionMissingCountry])
	assert.Equal(t, 1, issues.Count(errors.ConditionUnknownCountry))
	assert.Equal(t, 1, issues.Count(errors.ConditionDuplicate))

	for _, tx := range out {
		assert.NoError(t, tx.Validate())
	}
}

func TestCleanTransactionsAllRejected(t *testing.T) {
	b, _ := newTestBuilder(t)

	table := trxTable(
		[]string{"'S1'", "not a date", "'Wires Out'", "1.000", "US", "CA"},
		[]string{"'S1'", "", "'Wires Out'", "1.000", "US", "CA"},
	)

	_, stats, err := b.CleanTransactions(table)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeAllRowsRejected))
	assert.Equal(t, 2, stats.Rejected)

	pe, _ := errors.AsPipelineError(err)
	assert.Equal(t, 3, pe.GetExitCode())
}

func TestCleanTransactionsMissingColumn(t *testing.T) {
	b, _ := newTestBuilder(t)

	table := &models.RawTable{
		Dataset: models.DatasetTransactions,
		Header:  []string{"CUENTA", "FECHA_TRANSACCION", "MONTO"},
	}
	_, _, err := b.CleanTransactions(table)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeMissingColumn))
}

func TestJoinCustomersProducts(t *testing.T) {
	customers := []models.CustomerAccount{
		{Customer: models.Customer{Code: "C1"}, Account: models.Account{Number: "A1"}},
		{Customer: models.Customer{Code: "C1"}, Account: models.Account{Number: "A2"}},
		{Customer: models.Customer{Code: "C2"}},
	}
	products := []models.Product{
		{Line: 2, Account: "A1", ID: "P1"},
		{Line: 3, Account: "A1", ID: "P2"},
		{Line: 4, Account: "A9", ID: "P3"},
	}
	issues := errors.NewRowIssueCollector(5)

	view := JoinCustomersProducts(customers, products, issues)

	require.Len(t, view.Rows, 3)
	assert.Len(t, view.Rows[0].Products, 2)
	assert.NotNil(t, view.Rows[1].Products)
	assert.Empty(t, view.Rows[1].Products)
	assert.Empty(t, view.Rows[2].Products)
	assert.Equal(t, 1, issues.Count(errors.ConditionOrphanProduct))
	assert.Empty(t, customers[0].Products, "input must not be mutated")
}

func TestBuild(t *testing.T) {
	b, _ := newTestBuilder(t)

	raw := &models.RawDataset{
		Customers: &models.RawTable{
			Dataset: models.DatasetCustomers,
			Header:  []string{"codigo", "tipo_cliente", "fecha_actualizacion", "pep", "riesgo", "pais", "cuenta"},
			Rows: []models.RawRow{
				{Line: 2, Values: []string{"C1", "NATURAL", "20230115.000", "NO", "BAJO", "US", "A1"}},
				{Line: 3, Values: []string{"", "NATURAL"}},
				{Line: 4, Values: []string{"C2", "JURIDICO", "0.000", "SIN INFO", "SIN INFO", "SIN INFO"}},
			},
		},
		Products: &models.RawTable{
			Dataset: models.DatasetProducts,
			Header:  []string{"CUENTA", "PRODUCTO", "TIPO_PRODUCTO"},
			Rows:    []models.RawRow{{Line: 2, Values: []string{"A1", "P1", "CREDITO"}}},
		},
		Transactions: trxTable(
			[]string{"'A1'", "2024-01-10", "'Wires Out'", "100.000", "US", "CA"},
		),
	}

	out, stats, err := b.Build(context.Background(), raw)
	require.NoError(t, err)
	require.Len(t, out.Customers.Rows, 2)
	assert.Equal(t, 1, stats.Accepted)

	c1 := out.Customers.Rows[0]
	assert.Equal(t, "C1", c1.Customer.Code)
	require.NotNil(t, c1.Customer.UpdatedAt)
	assert.Equal(t, "2023-01-15", c1.Customer.UpdatedAt.Format("2006-01-02"))
	assert.Len(t, c1.Products, 1)

	c2 := out.Customers.Rows[1]
	assert.Nil(t, c2.Customer.UpdatedAt)
	assert.False(t, c2.HasAccount())
	assert.Len(t, out.Transactions, 1)
}

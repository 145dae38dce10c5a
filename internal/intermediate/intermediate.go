// Package intermediate turns the raw string tables into typed records.
//
// It joins CLIENTES with PRODUCTOS into the customer-account view and cleans
// TRANSACCIONES: rows with no usable date or a missing or negative amount are
// rejected and counted, countries are normalized and exact duplicates are
// dropped. The stage only aborts on a schema problem, or when every
// transaction row is rejected, which points to an upstream layout change.
package intermediate

import (
	"context"
	"fmt"

	"golang-compliance-analytics/internal/country"
	"golang-compliance-analytics/internal/models"
	"golang-compliance-analytics/internal/parsers"
	"golang-compliance-analytics/pkg/errors"
	"golang-compliance-analytics/pkg/logger"
)

// Builder produces the intermediate dataset
type Builder struct {
	normalizer *country.Normalizer
	issues     *errors.RowIssueCollector
	logger     logger.Logger
}

// NewBuilder creates a builder that reports row-level conditions to issues
func NewBuilder(normalizer *country.Normalizer, issues *errors.RowIssueCollector, log logger.Logger) *Builder {
	if issues == nil {
		issues = errors.NewRowIssueCollector(5)
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Builder{
		normalizer: normalizer,
		issues:     issues,
		logger:     log.WithComponent("intermediate"),
	}
}

// Build runs every intermediate step over the raw dataset
func (b *Builder) Build(ctx context.Context, raw *models.RawDataset) (*models.IntermediateDataset, *CleanStats, error) {
	if raw == nil || raw.Customers == nil || raw.Products == nil || raw.Transactions == nil {
		return nil, nil, errors.PipelineStageError(errors.CodeArtifactMissing, "intermediate", nil)
	}

	customers, err := b.ParseCustomers(raw.Customers)
	if err != nil {
		return nil, nil, err
	}
	products, err := b.ParseProducts(raw.Products)
	if err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, errors.PipelineStageError(errors.CodeStageFailed, "intermediate", err)
	}

	view := JoinCustomersProducts(customers, products, b.issues)

	transactions, stats, err := b.CleanTransactions(raw.Transactions)
	if err != nil {
		return nil, stats, err
	}

	b.logger.WithFields(logger.Fields{
		"customer_accounts": len(view.Rows),
		"products":          len(products),
		"transactions":      len(transactions),
		"rejected":          stats.Rejected,
		"duplicates":        stats.Duplicates,
	}).Info("Intermediate dataset built")

	return &models.IntermediateDataset{Customers: view, Transactions: transactions}, stats, nil
}

func resolveColumns(table *models.RawTable, spec *parsers.TableSpec) (columns, error) {
	header := spec.StandardizeHeader(table.Header)
	if missing := spec.MissingRequired(header); len(missing) > 0 {
		return nil, errors.SchemaError(errors.CodeMissingColumn, spec.Dataset, fmt.Sprint(missing), nil).
			WithContext("header", table.Header)
	}
	cols := make(columns, len(header))
	for i, h := range header {
		if _, dup := cols[h]; !dup {
			cols[h] = i
		}
	}
	return cols, nil
}

// ParseCustomers coerces CLIENTES rows. Rows without CODIGO are dropped and
// counted as malformed.
func (b *Builder) ParseCustomers(table *models.RawTable) ([]models.CustomerAccount, error) {
	cols, err := resolveColumns(table, parsers.CustomersSpec())
	if err != nil {
		return nil, err
	}

	out := make([]models.CustomerAccount, 0, len(table.Rows))
	for _, row := range table.Rows {
		get := func(name string) string { return Clean(cols.get(row.Values, name)) }

		code := get("CODIGO")
		if code == "" {
			b.issues.Add(errors.RowIssue{Dataset: table.Dataset, Line: row.Line, Column: "CODIGO",
				Condition: errors.ConditionMalformedRow})
			continue
		}

		updatedAt, err := ParseDate(get("FECHA_ACTUALIZACION"))
		if err != nil {
			b.issues.Add(errors.RowIssue{Dataset: table.Dataset, Line: row.Line, Column: "FECHA_ACTUALIZACION",
				Value: get("FECHA_ACTUALIZACION"), Condition: errors.ConditionNullDate})
		}
		statusSince, err := ParseDate(get("FECHA_ESTADO_CUENTA"))
		if err != nil {
			b.issues.Add(errors.RowIssue{Dataset: table.Dataset, Line: row.Line, Column: "FECHA_ESTADO_CUENTA",
				Value: get("FECHA_ESTADO_CUENTA"), Condition: errors.ConditionNullDate})
		}

		out = append(out, models.CustomerAccount{
			Line: row.Line,
			Customer: models.Customer{
				Code:       code,
				Type:       get("TIPO_CLIENTE"),
				UpdatedAt:  updatedAt,
				PEPLabel:   get("PEP"),
				RiskLabel:  get("RIESGO"),
				CountryRaw: get("PAIS"),
			},
			Account: models.Account{
				Number:      get("CUENTA"),
				Type:        get("TIPO_CUENTA"),
				Status:      get("ESTADO_CUENTA"),
				StatusSince: statusSince,
			},
		})
	}

	b.logger.WithFields(logger.Fields{
		"rows":     len(table.Rows),
		"accepted": len(out),
	}).Debug("Parsed customers")
	return out, nil
}

// ParseProducts coerces PRODUCTOS rows
func (b *Builder) ParseProducts(table *models.RawTable) ([]models.Product, error) {
	cols, err := resolveColumns(table, parsers.ProductsSpec())
	if err != nil {
		return nil, err
	}

	out := make([]models.Product, 0, len(table.Rows))
	for _, row := range table.Rows {
		p := models.Product{
			Line:    row.Line,
			Account: Clean(cols.get(row.Values, "CUENTA")),
			ID:      Clean(cols.get(row.Values, "PRODUCTO")),
			Type:    Clean(cols.get(row.Values, "TIPO_PRODUCTO")),
		}
		if p.Account == "" || p.ID == "" {
			b.issues.Add(errors.RowIssue{Dataset: table.Dataset, Line: row.Line, Condition: errors.ConditionMalformedRow})
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// JoinCustomersProducts left-joins products onto customer-account rows by
// account number. Every customer row is kept, with an empty product list
// when nothing links to it. Products whose account matches no customer row
// are dropped as orphans.
func JoinCustomersProducts(customers []models.CustomerAccount, products []models.Product, issues *errors.RowIssueCollector) models.CustomerAccountView {
	byAccount := make(map[string][]models.Product)
	for _, p := range products {
		byAccount[p.Account] = append(byAccount[p.Account], p)
	}

	known := make(map[string]bool, len(customers))
	rows := make([]models.CustomerAccount, len(customers))
	for i, c := range customers {
		row := c
		row.Products = []models.Product{}
		if row.HasAccount() {
			known[row.Account.Number] = true
			if linked, ok := byAccount[row.Account.Number]; ok {
				row.Products = append(row.Products, linked...)
			}
		}
		rows[i] = row
	}

	if issues != nil {
		for _, p := range products {
			if !known[p.Account] {
				issues.Add(errors.RowIssue{Dataset: models.DatasetProducts, Line: p.Line, Column: "CUENTA",
					Value: p.Account, Condition: errors.ConditionOrphanProduct})
			}
		}
	}

	return models.CustomerAccountView{Rows: rows}
}

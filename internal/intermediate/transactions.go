package intermediate

import (
	"fmt"

	"golang-compliance-analytics/internal/country"
	"golang-compliance-analytics/internal/models"
	"golang-compliance-analytics/internal/parsers"
	"golang-compliance-analytics/pkg/errors"
	"golang-compliance-analytics/pkg/logger"
)

// CleanStats reports what CleanTransactions did with its input
type CleanStats struct {
	Input      int                      `json:"input"`
	Accepted   int                      `json:"accepted"`
	Rejected   int                      `json:"rejected"`
	Duplicates int                      `json:"duplicates"`
	Unknown    int                      `json:"unknown_country"`
	ByReason   map[errors.Condition]int `json:"by_reason"`
}

func (s *CleanStats) reject(reason errors.Condition) {
	s.Rejected++
	s.ByReason[reason]++
}

// CleanTransactions validates and types TRANSACCIONES rows.
//
// A row is rejected (and counted) when its account is empty, its date is
// missing or unparseable, its amount is missing, unparseable or negative, or
// both countries are missing. Recognized countries are normalized; a missing
// or unrecognized side becomes country.Unknown. Exact duplicates keep the
// first occurrence. If every input row is rejected the stage fails with
// ALL_ROWS_REJECTED.
func (b *Builder) CleanTransactions(table *models.RawTable) ([]models.Transaction, *CleanStats, error) {
	stats := &CleanStats{Input: len(table.Rows), ByReason: make(map[errors.Condition]int)}

	cols, err := resolveColumns(table, parsers.TransactionsSpec())
	if err != nil {
		return nil, stats, err
	}

	seen := make(map[string]struct{}, len(table.Rows))
	out := make([]models.Transaction, 0, len(table.Rows))

	for index, row := range table.Rows {
		get := func(name string) string { return cols.get(row.Values, name) }
		issue := func(column, value string, condition errors.Condition) {
			b.issues.Add(errors.RowIssue{Dataset: table.Dataset, Line: row.Line, Column: column,
				Value: value, Condition: condition})
		}

		account := Clean(get("CUENTA"))
		if account == "" {
			issue("CUENTA", "", errors.ConditionMalformedRow)
			stats.reject(errors.ConditionMalformedRow)
			continue
		}

		date, err := ParseDate(get("FECHA_TRANSACCION"))
		if err != nil || date == nil {
			issue("FECHA_TRANSACCION", get("FECHA_TRANSACCION"), errors.ConditionNullDate)
			stats.reject(errors.ConditionNullDate)
			continue
		}

		amount, err := ParseAmount(get("MONTO"))
		if err != nil {
			issue("MONTO", get("MONTO"), errors.ConditionInvalidAmount)
			stats.reject(errors.ConditionInvalidAmount)
			continue
		}
		if amount.IsNegative() {
			issue("MONTO", get("MONTO"), errors.ConditionNegativeAmount)
			stats.reject(errors.ConditionNegativeAmount)
			continue
		}

		originRaw := Clean(get("PAIS_ORIGEN_TRANSACCION"))
		destinationRaw := Clean(get("PAIS_DESTINO_TRANSACCION"))
		if country.IsMissing(originRaw) && country.IsMissing(destinationRaw) {
			issue("PAIS_ORIGEN_TRANSACCION", "", errors.ConditionMissingCountry)
			stats.reject(errors.ConditionMissingCountry)
			continue
		}

		origin, ok := b.resolveCountry(originRaw)
		if !ok {
			issue("PAIS_ORIGEN_TRANSACCION", originRaw, errors.ConditionUnknownCountry)
			stats.Unknown++
		}
		destination, ok := b.resolveCountry(destinationRaw)
		if !ok {
			issue("PAIS_DESTINO_TRANSACCION", destinationRaw, errors.ConditionUnknownCountry)
			stats.Unknown++
		}

		tx := models.Transaction{
			Index:       index,
			Line:        row.Line,
			Account:     account,
			Date:        *date,
			Type:        Clean(get("TIPO_TRANSACCION")),
			Amount:      amount,
			Origin:      origin,
			Destination: destination,
		}

		key := tx.DedupKey()
		if _, dup := seen[key]; dup {
			issue("", "", errors.ConditionDuplicate)
			stats.Duplicates++
			continue
		}
		seen[key] = struct{}{}
		out = append(out, tx)
	}
	stats.Accepted = len(out)

	b.logger.WithFields(logger.Fields{
		"input":      stats.Input,
		"accepted":   stats.Accepted,
		"rejected":   stats.Rejected,
		"duplicates": stats.Duplicates,
	}).Info("Cleaned transactions")

	if stats.Input > 0 && stats.Rejected == stats.Input {
		return nil, stats, errors.SchemaError(errors.CodeAllRowsRejected, table.Dataset,
			fmt.Sprintf("%d of %d rows rejected", stats.Rejected, stats.Input), nil).
			WithContext("reasons", stats.ByReason)
	}
	return out, stats, nil
}

func (b *Builder) resolveCountry(raw string) (string, bool) {
	if country.IsMissing(raw) {
		return country.Unknown, false
	}
	return b.normalizer.Resolve(raw)
}

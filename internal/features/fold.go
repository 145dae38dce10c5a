package features

import (
	"database/sql"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"golang-compliance-analytics/internal/models"
)

// SortGroup orders an account's transactions by date, breaking ties by
// input order.
func SortGroup(txs []models.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date) {
			return txs[i].Date.Before(txs[j].Date)
		}
		return txs[i].Index < txs[j].Index
	})
}

// MonthlyTotals sums amounts per calendar month
func MonthlyTotals(txs []models.Transaction) map[models.YearMonth]decimal.Decimal {
	totals := make(map[models.YearMonth]decimal.Decimal)
	for _, tx := range txs {
		m := models.MonthOf(tx.Date)
		totals[m] = totals[m].Add(tx.Amount)
	}
	return totals
}

// accumulator is the running state threaded through one account's fold.
type accumulator struct {
	prevDate   *time.Time
	bucket     models.YearMonth
	cumulative decimal.Decimal
}

func (a accumulator) step(tx models.Transaction) (accumulator, sql.NullInt64, decimal.Decimal) {
	var days sql.NullInt64
	if a.prevDate != nil {
		days = sql.NullInt64{Int64: DaysBetween(*a.prevDate, tx.Date), Valid: true}
	}

	month := models.MonthOf(tx.Date)
	cumulative := tx.Amount
	if month == a.bucket && a.prevDate != nil {
		cumulative = a.cumulative.Add(tx.Amount)
	}

	date := tx.Date
	return accumulator{prevDate: &date, bucket: month, cumulative: cumulative}, days, cumulative
}

// Variation is (current - previous) / previous for completed month totals.
// It is null when the previous month is absent or zero.
func Variation(totals map[models.YearMonth]decimal.Decimal, month models.YearMonth) decimal.NullDecimal {
	prev, ok := totals[month.Prev()]
	if !ok || prev.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: totals[month].Sub(prev).Div(prev), Valid: true}
}

// Fold derives the per-transaction features of one account. txs must be
// sorted with SortGroup. Monthly totals are completed before any row is
// emitted, so variation never sees a partial month.
func Fold(txs []models.Transaction, separator string) []models.TransactionFeature {
	totals := MonthlyTotals(txs)

	out := make([]models.TransactionFeature, len(txs))
	var acc accumulator
	for i, tx := range txs {
		var days sql.NullInt64
		var cumulative decimal.Decimal
		acc, days, cumulative = acc.step(tx)

		month := models.MonthOf(tx.Date)
		out[i] = models.TransactionFeature{
			Transaction:       tx,
			DaysSincePrevious: days,
			MonthlyVariation:  Variation(totals, month),
			Corridor:          tx.Origin + separator + tx.Destination,
			Month:             month,
			MonthlyCumulative: cumulative,
		}
	}
	return out
}

// DaysBetween counts calendar days from a to b, ignoring the time of day.
func DaysBetween(a, b time.Time) int64 {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int64(db.Sub(da).Hours() / 24)
}

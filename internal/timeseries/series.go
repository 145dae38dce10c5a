package timeseries

import (
	"sort"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"golang-compliance-analytics/internal/models"
)

// UnknownAccountType keys rows whose account type is missing
const UnknownAccountType = "SIN INFO"

// KeyOf returns the series key of a row
func KeyOf(row *models.TransactionFeature, kind models.SeriesKeyKind) string {
	switch kind {
	case models.SeriesByCorridor:
		return row.Corridor
	case models.SeriesByAccountType:
		if row.AccountType == "" {
			return UnknownAccountType
		}
		return row.AccountType
	default:
		return row.Account
	}
}

// MonthlyValues sums the measure of rows per month
func MonthlyValues(rows []models.TransactionFeature, measure Measure) map[models.YearMonth]decimal.Decimal {
	totals := make(map[models.YearMonth]decimal.Decimal)
	for _, row := range rows {
		var v decimal.Decimal
		switch measure {
		case MeasureAmount:
			v = row.Amount
		case MeasureNetFlow:
			switch row.Direction {
			case models.DirectionSent:
				v = row.Amount
			case models.DirectionReceived:
				v = row.Amount.Neg()
			}
		default:
			v = decimal.NewFromInt(1)
		}
		totals[row.Month] = totals[row.Month].Add(v)
	}
	return totals
}

// ObservedCount counts the points that come from actual transactions
func ObservedCount(points []models.SeriesPoint) int {
	n := 0
	for _, p := range points {
		if p.Observed {
			n++
		}
	}
	return n
}

// BuildSeries lays monthly totals out from the first to the last observed
// month. Missing months are explicit zeros with Observed=false.
func BuildSeries(totals map[models.YearMonth]decimal.Decimal) []models.SeriesPoint {
	if len(totals) == 0 {
		return nil
	}
	first, last := -1, -1
	for m := range totals {
		o := m.Ordinal()
		if first == -1 || o < first {
			first = o
		}
		if o > last {
			last = o
		}
	}

	points := make([]models.SeriesPoint, 0, last-first+1)
	for o := first; o <= last; o++ {
		m := models.FromOrdinal(o)
		p := models.SeriesPoint{Month: m}
		if v, ok := totals[m]; ok {
			p.Value = v.InexactFloat64()
			p.Observed = true
		}
		points = append(points, p)
	}
	return points
}

// CapIQR clamps point values to [Q1 - 1.5 IQR, Q3 + 1.5 IQR] and marks the
// points it changed.
func CapIQR(points []models.SeriesPoint) {
	if len(points) < 4 {
		return
	}
	sorted := Values(points)
	sort.Float64s(sorted)
	q1 := stat.Quantile(0.25, stat.LinInterp, sorted, nil)
	q3 := stat.Quantile(0.75, stat.LinInterp, sorted, nil)
	iqr := q3 - q1
	lower, upper := q1-1.5*iqr, q3+1.5*iqr

	for i := range points {
		switch {
		case points[i].Value < lower:
			points[i].Value = lower
			points[i].Capped = true
		case points[i].Value > upper:
			points[i].Value = upper
			points[i].Capped = true
		}
	}
}

// Values extracts point values into a new slice
func Values(points []models.SeriesPoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}

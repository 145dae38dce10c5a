package anomaly

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"golang-compliance-analytics/internal/models"
)

// baseline is the robust location and spread of one transaction type.
type baseline struct {
	median float64
	mad    float64
}

// Population holds per TIPO_TRANSACCION amount baselines as of each month.
// The baseline a row is scored against is built only from rows of the same
// type dated in earlier months, so later activity never shifts an earlier
// score. A type has no baseline in a month until at least the minimum group
// size rows precede it.
type Population struct {
	byType map[string]map[models.YearMonth]baseline
}

// NewPopulation computes the point-in-time median and MAD of amounts per
// transaction type for every month the type occurs in.
func NewPopulation(rows []models.TransactionFeature, minGroupSize int) *Population {
	amounts := make(map[string]map[models.YearMonth][]float64)
	for _, row := range rows {
		months, ok := amounts[row.Type]
		if !ok {
			months = make(map[models.YearMonth][]float64)
			amounts[row.Type] = months
		}
		months[row.Month] = append(months[row.Month], row.Amount.InexactFloat64())
	}

	p := &Population{byType: make(map[string]map[models.YearMonth]baseline)}
	for typ, months := range amounts {
		order := make([]models.YearMonth, 0, len(months))
		for m := range months {
			order = append(order, m)
		}
		sort.Slice(order, func(i, j int) bool { return order[i].Before(order[j]) })

		baselines := make(map[models.YearMonth]baseline)
		var prior []float64
		for _, m := range order {
			if len(prior) >= minGroupSize {
				baselines[m] = newBaseline(prior)
			}
			prior = append(prior, months[m]...)
		}
		p.byType[typ] = baselines
	}
	return p
}

func newBaseline(xs []float64) baseline {
	median := Median(xs)
	deviations := make([]float64, len(xs))
	for i, x := range xs {
		deviations[i] = math.Abs(x - median)
	}
	return baseline{median: median, mad: Median(deviations)}
}

// Score returns the capped robust z-score of amount within its type as of
// month. ok is false when the type has no baseline for that month.
func (p *Population) Score(typ string, month models.YearMonth, amount, limit float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	b, ok := p.byType[typ][month]
	if !ok {
		return 0, false
	}
	if b.mad == 0 {
		if amount == b.median {
			return 0, true
		}
		return limit, true
	}
	return math.Min(madScale*math.Abs(amount-b.median)/b.mad, limit), true
}

// Median returns the empirical median of xs. xs is not modified.
func Median(xs []float64) float64 {
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	// stat.Quantile with Empirical picks the lower middle, so average the two
	return (stat.Quantile(0.5, stat.Empirical, sorted, nil) + sorted[n/2]) / 2
}

package timeseries

import (
	"database/sql"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"golang-compliance-analytics/internal/models"
)

// Decompose splits y into trend, seasonal and residual parts with a
// classical additive model. The trend is a centered moving average (2 x m
// for an even period); trend and residual are null where the window does
// not fit.
func Decompose(y []float64, period int) *models.Decomposition {
	n := len(y)
	d := &models.Decomposition{
		Trend:    make([]sql.NullFloat64, n),
		Seasonal: make([]float64, n),
		Residual: make([]sql.NullFloat64, n),
	}

	half := period / 2
	for t := half; t < n-half; t++ {
		var sum float64
		if period%2 == 0 {
			sum = 0.5*y[t-half] + floats.Sum(y[t-half+1:t+half]) + 0.5*y[t+half]
		} else {
			sum = floats.Sum(y[t-half : t+half+1])
		}
		d.Trend[t] = sql.NullFloat64{Float64: sum / float64(period), Valid: true}
	}

	phase := make([][]float64, period)
	for t := 0; t < n; t++ {
		if d.Trend[t].Valid {
			phase[t%period] = append(phase[t%period], y[t]-d.Trend[t].Float64)
		}
	}
	index := make([]float64, period)
	for p := range phase {
		if len(phase[p]) > 0 {
			index[p] = stat.Mean(phase[p], nil)
		}
	}
	floats.AddConst(-stat.Mean(index, nil), index)

	for t := 0; t < n; t++ {
		d.Seasonal[t] = index[t%period]
		if d.Trend[t].Valid {
			d.Residual[t] = sql.NullFloat64{Float64: y[t] - d.Trend[t].Float64 - d.Seasonal[t], Valid: true}
		}
	}
	return d
}

// HoltWinters is an additive Holt-Winters model with fixed smoothing
// parameters.
type HoltWinters struct {
	Alpha  float64
	Beta   float64
	Gamma  float64
	Period int

	level    float64
	trend    float64
	seasonal []float64
	n        int
}

// Fit initializes the model from the first two cycles of y and returns the
// one-step-ahead fitted values. y must hold at least two cycles.
func (hw *HoltWinters) Fit(y []float64) []float64 {
	m := hw.Period
	first := stat.Mean(y[:m], nil)
	second := stat.Mean(y[m:2*m], nil)

	hw.level = first
	hw.trend = (second - first) / float64(m)
	hw.seasonal = make([]float64, m)
	for i := 0; i < m; i++ {
		hw.seasonal[i] = y[i] - first
	}

	fitted := make([]float64, len(y))
	for t, obs := range y {
		s := hw.seasonal[t%m]
		fitted[t] = hw.level + hw.trend + s

		level := hw.Alpha*(obs-s) + (1-hw.Alpha)*(hw.level+hw.trend)
		hw.trend = hw.Beta*(level-hw.level) + (1-hw.Beta)*hw.trend
		hw.seasonal[t%m] = hw.Gamma*(obs-level) + (1-hw.Gamma)*s
		hw.level = level
	}
	hw.n = len(y)
	return fitted
}

// Forecast projects h periods past the fitted data
func (hw *HoltWinters) Forecast(h int) []float64 {
	out := make([]float64, h)
	for i := 1; i <= h; i++ {
		out[i-1] = hw.level + float64(i)*hw.trend + hw.seasonal[(hw.n+i-1)%hw.Period]
	}
	return out
}

// Flag marks points whose residual exceeds threshold residual stds
func Flag(residuals []float64, std, threshold float64) []bool {
	out := make([]bool, len(residuals))
	if std == 0 || math.IsNaN(std) {
		return out
	}
	for i, r := range residuals {
		out[i] = math.Abs(r) > threshold*std
	}
	return out
}

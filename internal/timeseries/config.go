package timeseries

import (
	"fmt"

	"golang-compliance-analytics/internal/models"
)

// Measure selects what a monthly point sums
type Measure string

const (
	MeasureAmount Measure = "amount"
	MeasureCount  Measure = "count"
	// MeasureNetFlow is sent minus received amount. Unclassified rows add
	// nothing but still mark their month as observed.
	MeasureNetFlow Measure = "net_flow"
)

// IsValid reports whether m is a known measure
func (m Measure) IsValid() bool {
	switch m {
	case MeasureAmount, MeasureCount, MeasureNetFlow:
		return true
	}
	return false
}

// bandZ is the width of the forecast confidence band in residual stds
const bandZ = 1.96

// Config holds time series settings
type Config struct {
	KeyKind            models.SeriesKeyKind `json:"key" mapstructure:"key"`
	Measure            Measure              `json:"measure" mapstructure:"measure"`
	SeasonalPeriod     int                  `json:"seasonal_period" mapstructure:"seasonal_period"`
	MinPeriods         int                  `json:"min_periods" mapstructure:"min_periods"`
	CapOutliers        bool                 `json:"cap_outliers" mapstructure:"cap_outliers"`
	Alpha              float64              `json:"alpha" mapstructure:"alpha"`
	Beta               float64              `json:"beta" mapstructure:"beta"`
	Gamma              float64              `json:"gamma" mapstructure:"gamma"`
	DeviationThreshold float64              `json:"deviation_threshold" mapstructure:"deviation_threshold"`
	Horizon            int                  `json:"horizon" mapstructure:"horizon"`
}

// DefaultConfig returns monthly series per account with a yearly season
func DefaultConfig() *Config {
	return &Config{
		KeyKind:            models.SeriesByAccount,
		Measure:            MeasureAmount,
		SeasonalPeriod:     12,
		MinPeriods:         24,
		Alpha:              0.3,
		Beta:               0.1,
		Gamma:              0.1,
		DeviationThreshold: 1.96,
		Horizon:            12,
	}
}

// Validate checks the time series configuration
func (c *Config) Validate() error {
	if !c.KeyKind.IsValid() {
		return fmt.Errorf("unsupported series key %q", c.KeyKind)
	}
	if !c.Measure.IsValid() {
		return fmt.Errorf("unsupported measure %q", c.Measure)
	}
	if c.SeasonalPeriod < 2 {
		return fmt.Errorf("seasonal_period must be at least 2, got %d", c.SeasonalPeriod)
	}
	// Holt-Winters initialization needs two full cycles
	if c.MinPeriods < 2*c.SeasonalPeriod {
		return fmt.Errorf("min_periods (%d) must be at least twice seasonal_period (%d)", c.MinPeriods, c.SeasonalPeriod)
	}
	for name, v := range map[string]float64{"alpha": c.Alpha, "beta": c.Beta, "gamma": c.Gamma} {
		if v <= 0 || v >= 1 {
			return fmt.Errorf("%s must be in (0, 1), got %v", name, v)
		}
	}
	if c.DeviationThreshold <= 0 {
		return fmt.Errorf("deviation_threshold must be positive, got %v", c.DeviationThreshold)
	}
	if c.Horizon < 0 {
		return fmt.Errorf("horizon cannot be negative, got %d", c.Horizon)
	}
	return nil
}

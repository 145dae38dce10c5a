package pipeline

import (
	"fmt"
	"strings"
	"time"

	"golang-compliance-analytics/internal/anomaly"
	"golang-compliance-analytics/internal/country"
	"golang-compliance-analytics/internal/features"
	"golang-compliance-analytics/internal/groups"
	"golang-compliance-analytics/internal/parsers"
	"golang-compliance-analytics/internal/primary"
	"golang-compliance-analytics/internal/timeseries"
)

// Inputs are the three raw record sets
type Inputs struct {
	Customers    string `json:"customers" mapstructure:"customers"`
	Products     string `json:"products" mapstructure:"products"`
	Transactions string `json:"transactions" mapstructure:"transactions"`
}

// RunConfig is the run configuration handed to every stage. It is built
// once before the first stage runs and is not modified afterwards.
type RunConfig struct {
	RunID      string        `json:"run_id"`
	Inputs     Inputs        `json:"inputs"`
	WorkDir    string        `json:"work_dir"`
	Timeout    time.Duration `json:"timeout"`
	MaxSamples int           `json:"max_samples"`

	CountryForm country.Representation `json:"country_form"`
	Parse       *parsers.ParseConfig   `json:"parse"`
	Workers     *groups.Config         `json:"workers"`
	Primary     *primary.Config        `json:"primary"`
	Features    *features.Config       `json:"features"`
	Anomaly     *anomaly.Config        `json:"anomaly"`
	TimeSeries  *timeseries.Config     `json:"timeseries"`
}

// DefaultRunConfig returns a configuration with every section defaulted
func DefaultRunConfig() *RunConfig {
	return &RunConfig{
		WorkDir:     "./work",
		MaxSamples:  5,
		CountryForm: country.Alpha3,
		Parse:       parsers.DefaultParseConfig(),
		Workers:     groups.DefaultConfig(),
		Primary:     primary.DefaultConfig(),
		Features:    features.DefaultConfig(),
		Anomaly:     anomaly.DefaultConfig(),
		TimeSeries:  timeseries.DefaultConfig(),
	}
}

// Validate checks the run configuration. Input paths are only required by
// the raw stage and are checked there.
func (c *RunConfig) Validate() error {
	if strings.TrimSpace(c.WorkDir) == "" {
		return fmt.Errorf("work directory cannot be empty")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative, got %v", c.Timeout)
	}
	if c.MaxSamples < 0 {
		return fmt.Errorf("max samples cannot be negative, got %d", c.MaxSamples)
	}
	if !c.CountryForm.IsValid() {
		return fmt.Errorf("invalid country representation %q", c.CountryForm)
	}

	if c.Parse == nil || c.Workers == nil || c.Primary == nil || c.Features == nil ||
		c.Anomaly == nil || c.TimeSeries == nil {
		return fmt.Errorf("every configuration section must be set")
	}
	sections := []struct {
		name string
		v    interface{ Validate() error }
	}{
		{"parse", c.Parse},
		{"workers", c.Workers},
		{"primary", c.Primary},
		{"features", c.Features},
		{"anomaly", c.Anomaly},
		{"timeseries", c.TimeSeries},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

func (c *RunConfig) validateInputs() error {
	for name, path := range map[string]string{
		"customers":    c.Inputs.Customers,
		"products":     c.Inputs.Products,
		"transactions": c.Inputs.Transactions,
	} {
		if strings.TrimSpace(path) == "" {
			return fmt.Errorf("%s input file is required for the raw stage", name)
		}
	}
	return nil
}

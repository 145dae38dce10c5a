// Package config turns viper settings into the run configuration shared by
// every stage. Keys are dotted (input.customers, anomaly.threshold) so they
// map onto the YAML file layout and onto ANALYTICS_ environment variables.
package config

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"golang-compliance-analytics/internal/anomaly"
	"golang-compliance-analytics/internal/country"
	"golang-compliance-analytics/internal/features"
	"golang-compliance-analytics/internal/groups"
	"golang-compliance-analytics/internal/models"
	"golang-compliance-analytics/internal/parsers"
	"golang-compliance-analytics/internal/pipeline"
	"golang-compliance-analytics/internal/primary"
	"golang-compliance-analytics/internal/reporter"
	"golang-compliance-analytics/internal/timeseries"
)

// Viper keys
const (
	KeyRunID        = "run.id"
	KeyCustomers    = "input.customers"
	KeyProducts     = "input.products"
	KeyTransactions = "input.transactions"
	KeyInputFormat  = "input.format"
	KeyEncoding     = "input.encoding"
	KeyDelimiter    = "input.delimiter"
	KeyWorkDir      = "work_dir"
	KeyTimeout      = "timeout"
	KeyWorkers      = "workers"
	KeyMaxSamples   = "max_samples"
	KeyCountryForm  = "country.form"
	KeyPushgateway  = "pushgateway"

	KeyOutputDir       = "output.dir"
	KeyOutputFormat    = "output.format"
	KeySummaryFormat   = "output.summary_format"
	KeySentinel        = "output.sentinel"
	KeyOutputDelimiter = "output.delimiter"
	KeyRatioPlaces     = "output.ratio_places"

	KeyPEPMap           = "primary.pep_map"
	KeyRiskMap          = "primary.risk_map"
	KeyImputeUpdateDate = "primary.impute_update_date"

	KeyDirectionMap      = "features.direction_map"
	KeyReferenceDate     = "features.reference_date"
	KeyCorridorSeparator = "features.corridor_separator"

	KeyMinHistory   = "anomaly.min_history"
	KeyThreshold    = "anomaly.threshold"
	KeyScoreCap     = "anomaly.score_cap"
	KeyMinGroupSize = "anomaly.min_group_size"

	KeySeriesKey          = "timeseries.key"
	KeyMeasure            = "timeseries.measure"
	KeySeasonalPeriod     = "timeseries.seasonal_period"
	KeyMinPeriods         = "timeseries.min_periods"
	KeyCapOutliers        = "timeseries.cap_outliers"
	KeyAlpha              = "timeseries.alpha"
	KeyBeta               = "timeseries.beta"
	KeyGamma              = "timeseries.gamma"
	KeyDeviationThreshold = "timeseries.deviation_threshold"
	KeyHorizon            = "timeseries.horizon"
)

const dateLayout = "2006-01-02"

// SetDefaults registers the package defaults so config files only need to
// name what they change.
func SetDefaults(v *viper.Viper) {
	run := pipeline.DefaultRunConfig()
	parse := parsers.DefaultParseConfig()
	report := reporter.DefaultReportConfig()
	prim := primary.DefaultConfig()
	feat := features.DefaultConfig()
	anom := anomaly.DefaultConfig()
	ts := timeseries.DefaultConfig()

	v.SetDefault(KeyInputFormat, string(parse.Format))
	v.SetDefault(KeyEncoding, string(parse.Encoding))
	v.SetDefault(KeyDelimiter, string(parse.Delimiter))
	v.SetDefault(KeyWorkDir, run.WorkDir)
	v.SetDefault(KeyTimeout, time.Duration(0))
	v.SetDefault(KeyWorkers, groups.DefaultConfig().Workers)
	v.SetDefault(KeyMaxSamples, run.MaxSamples)
	v.SetDefault(KeyCountryForm, string(run.CountryForm))

	v.SetDefault(KeyOutputDir, "./output")
	v.SetDefault(KeyOutputFormat, string(report.DatasetFormat))
	v.SetDefault(KeySummaryFormat, string(report.SummaryFormat))
	v.SetDefault(KeySentinel, report.Sentinel)
	v.SetDefault(KeyOutputDelimiter, string(report.CSVDelimiter))
	v.SetDefault(KeyRatioPlaces, int(report.RatioPlaces))

	v.SetDefault(KeyPEPMap, anyMap(prim.PEPMap))
	v.SetDefault(KeyRiskMap, anyMap(prim.RiskMap))
	v.SetDefault(KeyImputeUpdateDate, prim.ImputeUpdateDate)

	v.SetDefault(KeyDirectionMap, feat.DirectionMap)
	v.SetDefault(KeyCorridorSeparator, feat.CorridorSeparator)

	v.SetDefault(KeyMinHistory, anom.MinHistory)
	v.SetDefault(KeyThreshold, anom.Threshold)
	v.SetDefault(KeyScoreCap, anom.ScoreCap)
	v.SetDefault(KeyMinGroupSize, anom.MinGroupSize)

	v.SetDefault(KeySeriesKey, string(ts.KeyKind))
	v.SetDefault(KeyMeasure, string(ts.Measure))
	v.SetDefault(KeySeasonalPeriod, ts.SeasonalPeriod)
	v.SetDefault(KeyCapOutliers, ts.CapOutliers)
	v.SetDefault(KeyAlpha, ts.Alpha)
	v.SetDefault(KeyBeta, ts.Beta)
	v.SetDefault(KeyGamma, ts.Gamma)
	v.SetDefault(KeyDeviationThreshold, ts.DeviationThreshold)
	v.SetDefault(KeyHorizon, ts.Horizon)
}

// CreateRunConfig builds the run configuration from v
func CreateRunConfig(v *viper.Viper) (*pipeline.RunConfig, error) {
	parse, err := CreateParseConfig(v)
	if err != nil {
		return nil, err
	}
	prim, err := CreatePrimaryConfig(v)
	if err != nil {
		return nil, err
	}
	feat, err := CreateFeatureConfig(v)
	if err != nil {
		return nil, err
	}

	config := &pipeline.RunConfig{
		RunID: v.GetString(KeyRunID),
		Inputs: pipeline.Inputs{
			Customers:    v.GetString(KeyCustomers),
			Products:     v.GetString(KeyProducts),
			Transactions: v.GetString(KeyTransactions),
		},
		WorkDir:     v.GetString(KeyWorkDir),
		Timeout:     v.GetDuration(KeyTimeout),
		MaxSamples:  v.GetInt(KeyMaxSamples),
		CountryForm: country.Representation(strings.ToLower(v.GetString(KeyCountryForm))),
		Parse:       parse,
		Workers:     createWorkersConfig(v),
		Primary:     prim,
		Features:    feat,
		Anomaly:     CreateAnomalyConfig(v),
		TimeSeries:  CreateTimeSeriesConfig(v),
	}
	return config, nil
}

// createWorkersConfig treats zero or less as "one worker per CPU"
func createWorkersConfig(v *viper.Viper) *groups.Config {
	config := groups.DefaultConfig()
	if n := v.GetInt(KeyWorkers); n > 0 {
		config.Workers = n
	}
	return config
}

// CreateParseConfig creates the input parser configuration
func CreateParseConfig(v *viper.Viper) (*parsers.ParseConfig, error) {
	config := parsers.DefaultParseConfig()
	config.Format = parsers.Format(strings.ToLower(v.GetString(KeyInputFormat)))
	config.Encoding = parsers.Encoding(strings.ToLower(v.GetString(KeyEncoding)))

	delimiter, err := singleRune(KeyDelimiter, v.GetString(KeyDelimiter))
	if err != nil {
		return nil, err
	}
	config.Delimiter = delimiter
	return config, nil
}

// CreatePrimaryConfig creates the recategorization configuration
func CreatePrimaryConfig(v *viper.Viper) (*primary.Config, error) {
	config := primary.DefaultConfig()

	pep, err := intMap(KeyPEPMap, v.GetStringMap(KeyPEPMap))
	if err != nil {
		return nil, err
	}
	risk, err := intMap(KeyRiskMap, v.GetStringMap(KeyRiskMap))
	if err != nil {
		return nil, err
	}
	config.PEPMap = pep
	config.RiskMap = risk
	config.ImputeUpdateDate = v.GetBool(KeyImputeUpdateDate)
	return config, nil
}

// CreateFeatureConfig creates the feature engineering configuration
func CreateFeatureConfig(v *viper.Viper) (*features.Config, error) {
	config := features.DefaultConfig()
	config.DirectionMap = v.GetStringMapString(KeyDirectionMap)
	config.CorridorSeparator = v.GetString(KeyCorridorSeparator)

	if s := strings.TrimSpace(v.GetString(KeyReferenceDate)); s != "" {
		ref, err := time.Parse(dateLayout, s)
		if err != nil {
			return nil, fmt.Errorf("%s must use YYYY-MM-DD: %w", KeyReferenceDate, err)
		}
		config.ReferenceDate = &ref
	}
	return config, nil
}

// CreateAnomalyConfig creates the anomaly detection configuration
func CreateAnomalyConfig(v *viper.Viper) *anomaly.Config {
	return &anomaly.Config{
		MinHistory:   v.GetInt(KeyMinHistory),
		Threshold:    v.GetFloat64(KeyThreshold),
		ScoreCap:     v.GetFloat64(KeyScoreCap),
		MinGroupSize: v.GetInt(KeyMinGroupSize),
	}
}

// CreateTimeSeriesConfig creates the time series configuration. An unset
// min_periods means two seasonal cycles.
func CreateTimeSeriesConfig(v *viper.Viper) *timeseries.Config {
	period := v.GetInt(KeySeasonalPeriod)
	minPeriods := v.GetInt(KeyMinPeriods)
	if minPeriods == 0 {
		minPeriods = 2 * period
	}
	return &timeseries.Config{
		KeyKind:            models.SeriesKeyKind(strings.ToLower(v.GetString(KeySeriesKey))),
		Measure:            timeseries.Measure(strings.ToLower(v.GetString(KeyMeasure))),
		SeasonalPeriod:     period,
		MinPeriods:         minPeriods,
		CapOutliers:        v.GetBool(KeyCapOutliers),
		Alpha:              v.GetFloat64(KeyAlpha),
		Beta:               v.GetFloat64(KeyBeta),
		Gamma:              v.GetFloat64(KeyGamma),
		DeviationThreshold: v.GetFloat64(KeyDeviationThreshold),
		Horizon:            v.GetInt(KeyHorizon),
	}
}

// CreateReportConfig creates the output configuration
func CreateReportConfig(v *viper.Viper) (*reporter.ReportConfig, error) {
	config := reporter.DefaultReportConfig()
	config.DatasetFormat = reporter.OutputFormat(strings.ToLower(v.GetString(KeyOutputFormat)))
	config.SummaryFormat = reporter.OutputFormat(strings.ToLower(v.GetString(KeySummaryFormat)))
	config.Sentinel = v.GetString(KeySentinel)
	config.RatioPlaces = int32(v.GetInt(KeyRatioPlaces))
	config.MaxSamples = v.GetInt(KeyMaxSamples)

	delimiter, err := singleRune(KeyOutputDelimiter, v.GetString(KeyOutputDelimiter))
	if err != nil {
		return nil, err
	}
	config.CSVDelimiter = delimiter
	return config, nil
}

// ValidateConfig validates that all required configurations are valid
func ValidateConfig(run *pipeline.RunConfig, report *reporter.ReportConfig) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("invalid run config: %w", err)
	}
	if err := report.Validate(); err != nil {
		return fmt.Errorf("invalid output config: %w", err)
	}
	return nil
}

func singleRune(key, s string) (rune, error) {
	if s == `\t` || s == "tab" {
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("%s must be a single character, got %q", key, s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

// anyMap widens a category map so viper's map getters accept it
func anyMap(m map[string]int) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// intMap converts a viper map, whose values may be strings from the
// environment or numbers from YAML, into category codes.
func intMap(key string, m map[string]interface{}) (map[string]int, error) {
	out := make(map[string]int, len(m))
	for label, value := range m {
		n, err := cast.ToIntE(value)
		if err != nil {
			return nil, fmt.Errorf("%s[%q]: %w", key, label, err)
		}
		out[strings.ToUpper(label)] = n
	}
	return out, nil
}

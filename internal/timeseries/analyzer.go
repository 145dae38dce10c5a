// Package timeseries builds monthly series per account or corridor,
// decomposes them, fits an additive Holt-Winters model and flags months
// that stray from the one-step-ahead fit.
package timeseries

import (
	"context"
	"database/sql"
	"math"

	"gonum.org/v1/gonum/stat"

	"golang-compliance-analytics/internal/groups"
	"golang-compliance-analytics/internal/models"
	"golang-compliance-analytics/pkg/errors"
	"golang-compliance-analytics/pkg/logger"
)

// StageName is the pipeline stage implemented by the analyzer
const StageName = "time_series"

// Stats summarizes a time series run
type Stats struct {
	Series       int             `json:"series"`
	Fitted       int             `json:"fitted"`
	Insufficient int             `json:"insufficient_series_length"`
	Deviations   int             `json:"deviation_months"`
	Outcome      *groups.Outcome `json:"outcome"`
}

// Analyzer runs the time series stage
type Analyzer struct {
	config *Config
	runner *groups.Runner
	logger logger.Logger
}

// NewAnalyzer creates a time series analyzer
func NewAnalyzer(config *Config, runner *groups.Runner, log logger.Logger) (*Analyzer, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "timeseries", config, err)
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	if runner == nil {
		var err error
		if runner, err = groups.NewRunner(nil, log); err != nil {
			return nil, err
		}
	}
	return &Analyzer{config: config, runner: runner, logger: log.WithComponent(StageName)}, nil
}

// Analyze fits every series of ds, stores them in ds.Series and attaches
// the series flag of each row's key and month.
func (a *Analyzer) Analyze(ctx context.Context, ds *models.FeatureDataset) (*Stats, error) {
	if ds == nil {
		return nil, errors.PipelineStageError(errors.CodeArtifactMissing, StageName, nil)
	}

	byKey := make(map[string][]models.TransactionFeature)
	for i := range ds.Transactions {
		key := KeyOf(&ds.Transactions[i], a.config.KeyKind)
		byKey[key] = append(byKey[key], ds.Transactions[i])
	}
	keys := groups.Keys(byKey)

	a.logger.WithFields(logger.Fields{
		"key":             a.config.KeyKind,
		"series":          len(keys),
		"seasonal_period": a.config.SeasonalPeriod,
		"min_periods":     a.config.MinPeriods,
	}).Info("Starting time series analysis")

	tracker := logger.NewProgressTracker(logger.ProgressConfig{
		Operation: StageName,
		Total:     int64(len(keys)),
		Logger:    a.logger,
	})

	slots := make([]models.SeriesResult, len(keys))
	outcome, err := a.runner.Run(ctx, StageName, len(keys), func(i int) error {
		slots[i] = a.AnalyzeSeries(keys[i], byKey[keys[i]])
		return nil
	}, tracker)
	if err != nil {
		tracker.CompleteWithError(err)
		return nil, errors.PipelineStageError(errors.CodeStageFailed, StageName, err)
	}
	tracker.Complete()

	stats := &Stats{Outcome: outcome}
	results := make(map[string]*models.SeriesResult, len(keys))
	ds.Series = ds.Series[:0]
	for i, key := range keys {
		if !outcome.Done[i] {
			continue
		}
		ds.Series = append(ds.Series, slots[i])
		results[key] = &slots[i]

		stats.Series++
		if slots[i].Status == models.SeriesFitted {
			stats.Fitted++
		} else {
			stats.Insufficient++
		}
		for _, dev := range slots[i].Deviations {
			if dev {
				stats.Deviations++
			}
		}
	}

	for i := range ds.Transactions {
		row := &ds.Transactions[i]
		result, ok := results[KeyOf(row, a.config.KeyKind)]
		if !ok {
			row.Series = nil
			continue
		}
		flag := &models.SeriesFlag{Status: result.Status}
		if dev, ok := result.DeviationAt(row.Month); ok {
			flag.Deviation = sql.NullBool{Bool: dev, Valid: true}
		}
		row.Series = flag
	}
	ds.SeriesAnalyzed = true

	a.logger.WithFields(logger.Fields{
		"series":                     stats.Series,
		"fitted":                     stats.Fitted,
		"insufficient_series_length": stats.Insufficient,
		"deviation_months":           stats.Deviations,
	}).Info("Time series analysis completed")

	return stats, outcome.Err()
}

// AnalyzeSeries builds and fits the series of one key. Series with fewer
// than MinPeriods observed months are returned unfitted with
// INSUFFICIENT_SERIES_LENGTH; zero-filled gap months do not count.
func (a *Analyzer) AnalyzeSeries(key string, rows []models.TransactionFeature) models.SeriesResult {
	points := BuildSeries(MonthlyValues(rows, a.config.Measure))
	if a.config.CapOutliers {
		CapIQR(points)
	}

	result := models.SeriesResult{
		Key:     key,
		KeyKind: a.config.KeyKind,
		Status:  models.SeriesInsufficientSeriesLength,
		Points:  points,
	}
	if ObservedCount(points) < a.config.MinPeriods || len(points) < 2*a.config.SeasonalPeriod {
		return result
	}

	y := Values(points)
	hw := &HoltWinters{
		Alpha:  a.config.Alpha,
		Beta:   a.config.Beta,
		Gamma:  a.config.Gamma,
		Period: a.config.SeasonalPeriod,
	}
	fitted := hw.Fit(y)
	residuals := make([]float64, len(y))
	for i := range y {
		residuals[i] = y[i] - fitted[i]
	}
	std := stat.StdDev(residuals, nil)
	if math.IsNaN(std) {
		std = 0
	}

	result.Status = models.SeriesFitted
	result.Decomposition = Decompose(y, a.config.SeasonalPeriod)
	result.Fitted = fitted
	result.Residuals = residuals
	result.ResidualStd = std
	result.Deviations = Flag(residuals, std, a.config.DeviationThreshold)

	last := points[len(points)-1].Month
	for h, v := range hw.Forecast(a.config.Horizon) {
		result.Forecast = append(result.Forecast, models.ForecastPoint{
			Month: last.Add(h + 1),
			Value: v,
			Lower: v - bandZ*std,
			Upper: v + bandZ*std,
		})
	}
	return result
}

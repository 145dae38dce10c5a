// Package anomaly scores each transaction against the account's own prior
// history and against the population of the same transaction type.
//
// Only transactions strictly before the scored one contribute to its account
// baseline, and only earlier months contribute to its population baseline. Accounts with too little history get an INSUFFICIENT_HISTORY
// status instead of a score.
package anomaly

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"golang-compliance-analytics/internal/groups"
	"golang-compliance-analytics/internal/models"
	"golang-compliance-analytics/pkg/errors"
	"golang-compliance-analytics/pkg/logger"
)

// StageName is the pipeline stage implemented by the detector
const StageName = "anomaly_detection"

// madScale makes the MAD comparable to a standard deviation for normal data
const madScale = 0.6745

// Config holds anomaly detection settings
type Config struct {
	MinHistory   int     `json:"min_history" mapstructure:"min_history"`
	Threshold    float64 `json:"threshold" mapstructure:"threshold"`
	ScoreCap     float64 `json:"score_cap" mapstructure:"score_cap"`
	MinGroupSize int     `json:"min_group_size" mapstructure:"min_group_size"`
}

// DefaultConfig returns the default anomaly configuration
func DefaultConfig() *Config {
	return &Config{
		MinHistory:   3,
		Threshold:    3.0,
		ScoreCap:     10,
		MinGroupSize: 30,
	}
}

// Validate checks the anomaly configuration
func (c *Config) Validate() error {
	if c.MinHistory < 2 {
		return fmt.Errorf("min_history must be at least 2, got %d", c.MinHistory)
	}
	if c.Threshold <= 0 {
		return fmt.Errorf("threshold must be positive, got %v", c.Threshold)
	}
	if c.ScoreCap < c.Threshold {
		return fmt.Errorf("score_cap (%v) must not be below threshold (%v)", c.ScoreCap, c.Threshold)
	}
	if c.MinGroupSize < 1 {
		return fmt.Errorf("min_group_size must be positive, got %d", c.MinGroupSize)
	}
	return nil
}

// Stats summarizes a detection run
type Stats struct {
	Scored       int             `json:"scored"`
	Insufficient int             `json:"insufficient_history"`
	Flagged      int             `json:"flagged"`
	Outcome      *groups.Outcome `json:"outcome"`
}

// Detector attaches anomaly results to transaction feature rows
type Detector struct {
	config *Config
	runner *groups.Runner
	logger logger.Logger
}

// NewDetector creates an anomaly detector
func NewDetector(config *Config, runner *groups.Runner, log logger.Logger) (*Detector, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "anomaly", config, err)
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
	return &Detector{config: config, runner: runner, logger: log.WithComponent(StageName)}, nil
}

// Detect scores every row of ds in place and fills ds.AnomalySummary. Results
// of an earlier run are cleared first. On cancellation rows of skipped
// accounts are left with a nil result and a PartialResult error is returned.
func (d *Detector) Detect(ctx context.Context, ds *models.FeatureDataset) (*Stats, error) {
	if ds == nil {
		return nil, errors.PipelineStageError(errors.CodeArtifactMissing, StageName, nil)
	}

	ds.AnomalyScored = false
	ds.AnomalySummary = nil
	byAccount := make(map[string][]int)
	for i := range ds.Transactions {
		ds.Transactions[i].Anomaly = nil
		acct := ds.Transactions[i].Account
		byAccount[acct] = append(byAccount[acct], i)
	}
	keys := groups.Keys(byAccount)
	population := NewPopulation(ds.Transactions, d.config.MinGroupSize)

	d.logger.WithFields(logger.Fields{
		"accounts":    len(keys),
		"rows":        len(ds.Transactions),
		"min_history": d.config.MinHistory,
		"threshold":   d.config.Threshold,
	}).Info("Starting anomaly detection")

	tracker := logger.NewProgressTracker(logger.ProgressConfig{
		Operation: StageName,
		Total:     int64(len(keys)),
		Logger:    d.logger,
	})

	slots := make([][]models.AnomalyResult, len(keys))
	outcome, err := d.runner.Run(ctx, StageName, len(keys), func(i int) error {
		idx := byAccount[keys[i]]
		sortByDate(ds.Transactions, idx)
		rows := make([]models.TransactionFeature, len(idx))
		for j, k := range idx {
			rows[j] = ds.Transactions[k]
		}
		slots[i] = d.ScoreAccount(rows, population)
		return nil
	}, tracker)
	if err != nil {
		tracker.CompleteWithError(err)
		return nil, errors.PipelineStageError(errors.CodeStageFailed, StageName, err)
	}
	tracker.Complete()

	stats := &Stats{Outcome: outcome}
	for i, key := range keys {
		if !outcome.Done[i] {
			continue
		}
		for j, k := range byAccount[key] {
			result := slots[i][j]
			ds.Transactions[k].Anomaly = &result
			switch {
			case result.Status == models.AnomalyInsufficientHistory:
				stats.Insufficient++
			case result.Flagged:
				stats.Scored++
				stats.Flagged++
			default:
				stats.Scored++
			}
		}
	}
	ds.AnomalyScored = true
	ds.AnomalySummary = Summarize(ds.Transactions)

	d.logger.WithFields(logger.Fields{
		"scored":               stats.Scored,
		"insufficient_history": stats.Insufficient,
		"flagged":              stats.Flagged,
		"summary_rows":         len(ds.AnomalySummary),
	}).Info("Anomaly detection completed")

	return stats, outcome.Err()
}

// ScoreAccount scores one account's rows, which must be in date order.
func (d *Detector) ScoreAccount(rows []models.TransactionFeature, population *Population) []models.AnomalyResult {
	out := make([]models.AnomalyResult, len(rows))
	amounts := make([]float64, 0, len(rows))
	gaps := make([]float64, 0, len(rows))

	for i, row := range rows {
		amount := row.Amount.InexactFloat64()

		if len(amounts) < d.config.MinHistory {
			out[i] = models.AnomalyResult{Status: models.AnomalyInsufficientHistory}
		} else {
			out[i] = d.score(row, amount, amounts, gaps, population)
		}

		amounts = append(amounts, amount)
		if row.DaysSincePrevious.Valid {
			gaps = append(gaps, float64(row.DaysSincePrevious.Int64))
		}
	}
	return out
}

func (d *Detector) score(row models.TransactionFeature, amount float64, amounts, gaps []float64, population *Population) models.AnomalyResult {
	result := models.AnomalyResult{Status: models.AnomalyScored}
	components := make([]float64, 0, 3)

	az := ZScore(amount, amounts, d.config.ScoreCap)
	result.AmountZ = valid(az)
	components = append(components, az)

	if row.DaysSincePrevious.Valid && len(gaps) >= 2 {
		gz := ZScore(float64(row.DaysSincePrevious.Int64), gaps, d.config.ScoreCap)
		result.GapZ = valid(gz)
		components = append(components, gz)
	}

	if pz, ok := population.Score(row.Type, row.Month, amount, d.config.ScoreCap); ok {
		result.PopulationZ = valid(pz)
		components = append(components, pz)
	}

	score := math.Min(floats.Max(components), d.config.ScoreCap)
	result.Score = valid(score)
	result.Flagged = score > d.config.Threshold
	return result
}

// ZScore is |x - mean| / std over sample, capped. A constant sample scores 0
// for an equal value and the cap otherwise.
func ZScore(x float64, sample []float64, limit float64) float64 {
	mean, std := stat.MeanStdDev(sample, nil)
	if std == 0 || math.IsNaN(std) {
		if x == mean {
			return 0
		}
		return limit
	}
	return math.Min(math.Abs(x-mean)/std, limit)
}

// Summarize aggregates anomaly results per account and month, ordered by
// account then month. Rows without a result are ignored.
func Summarize(rows []models.TransactionFeature) []models.AnomalySummary {
	type key struct {
		account string
		month   models.YearMonth
	}
	index := make(map[key]int)
	var out []models.AnomalySummary

	for _, row := range rows {
		if row.Anomaly == nil {
			continue
		}
		k := key{row.Account, row.Month}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, models.AnomalySummary{Account: row.Account, Month: row.Month})
		}
		s := &out[i]
		s.Total++
		if row.Anomaly.Flagged {
			s.Anomalous++
			s.Flagged = true
		}
		if row.Anomaly.Score.Valid && (!s.MaxScore.Valid || row.Anomaly.Score.Float64 > s.MaxScore.Float64) {
			s.MaxScore = row.Anomaly.Score
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Account != out[j].Account {
			return out[i].Account < out[j].Account
		}
		return out[i].Month.Before(out[j].Month)
	})
	return out
}

func sortByDate(rows []models.TransactionFeature, idx []int) {
	sort.SliceStable(idx, func(a, b int) bool {
		ra, rb := rows[idx[a]], rows[idx[b]]
		if !ra.Date.Equal(rb.Date) {
			return ra.Date.Before(rb.Date)
		}
		return ra.Index < rb.Index
	})
}

func valid(f float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: true}
}

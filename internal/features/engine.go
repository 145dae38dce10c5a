// Package features derives the data_trx_feature and data_customers_feature
// datasets from the primary dataset.
//
// Transactions are grouped by account and each group is folded in date
// order (ties broken by input order). Groups are independent and run on the
// shared worker pool; customer rows are then assembled in input order from
// the per-account totals.
package features

import (
	"context"
	"time"

	"golang-compliance-analytics/internal/groups"
	"golang-compliance-analytics/internal/models"
	"golang-compliance-analytics/pkg/errors"
	"golang-compliance-analytics/pkg/logger"
)

// StageName is the pipeline stage implemented by the engine
const StageName = "feature_engineering"

// Stats summarizes a feature engineering run
type Stats struct {
	Accounts      int             `json:"accounts"`
	Transactions  int             `json:"transactions"`
	Customers     int             `json:"customers"`
	Unclassified  int             `json:"unclassified_direction"`
	ReferenceDate *time.Time      `json:"reference_date,omitempty"`
	Sentinels     map[string]int  `json:"sentinels"`
	Outcome       *groups.Outcome `json:"outcome"`
}

// Engine computes transaction and customer features
type Engine struct {
	config     *Config
	classifier *Classifier
	runner     *groups.Runner
	issues     *errors.RowIssueCollector
	logger     logger.Logger
}

// NewEngine creates a feature engine
func NewEngine(config *Config, runner *groups.Runner, issues *errors.RowIssueCollector, log logger.Logger) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "features", config.DirectionMap, err)
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
	if issues == nil {
		issues = errors.NewRowIssueCollector(5)
	}
	return &Engine{
		config:     config,
		classifier: NewClassifier(config.DirectionMap),
		runner:     runner,
		issues:     issues,
		logger:     log.WithComponent(StageName),
	}, nil
}

type accountResult struct {
	rows   []models.TransactionFeature
	totals Totals
}

// Build runs the per-account fold and the customer aggregate pass. When the
// context is cancelled between groups the completed part of the dataset is
// returned together with a PartialResult error.
func (e *Engine) Build(ctx context.Context, in *models.PrimaryDataset) (*models.FeatureDataset, *Stats, error) {
	if in == nil {
		return nil, nil, errors.PipelineStageError(errors.CodeArtifactMissing, StageName, nil)
	}

	byAccount := GroupByAccount(in.Transactions)
	keys := groups.Keys(byAccount)
	holders := in.Customers.Accounts()

	reference := e.config.ReferenceDate
	if reference == nil {
		reference = LatestDate(in.Transactions)
	}

	e.logger.WithFields(logger.Fields{
		"accounts":       len(keys),
		"transactions":   len(in.Transactions),
		"workers":        e.runner.Workers(),
		"reference_date": reference,
	}).Info("Starting feature engineering")

	tracker := logger.NewProgressTracker(logger.ProgressConfig{
		Operation: StageName,
		Total:     int64(len(keys)),
		Logger:    e.logger,
	})

	results := make([]accountResult, len(keys))
	outcome, err := e.runner.Run(ctx, StageName, len(keys), func(i int) error {
		key := keys[i]
		txs := byAccount[key]
		SortGroup(txs)

		holderCountry, accountType := "", ""
		if holder, ok := holders[key]; ok {
			holderCountry = holder.Customer.Country
			accountType = holder.Account.Type
		}
		rows := Fold(txs, e.config.CorridorSeparator)
		for j := range rows {
			rows[j].Direction = e.classifier.Classify(rows[j].Transaction, holderCountry)
			rows[j].AccountType = accountType
		}
		results[i] = accountResult{
			rows:   rows,
			totals: e.classifier.Accumulate(txs, holderCountry),
		}
		return nil
	}, tracker)
	if err != nil {
		tracker.CompleteWithError(err)
		return nil, nil, errors.PipelineStageError(errors.CodeStageFailed, StageName, err)
	}
	tracker.Complete()

	stats := &Stats{
		Accounts:      len(keys),
		ReferenceDate: reference,
		Sentinels:     make(map[string]int),
		Outcome:       outcome,
	}

	out := &models.FeatureDataset{}
	totalsByAccount := make(map[string]*Totals, len(keys))
	for i, key := range keys {
		if !outcome.Done[i] {
			continue
		}
		out.Transactions = append(out.Transactions, results[i].rows...)
		totalsByAccount[key] = &results[i].totals

		for _, tx := range results[i].totals.Unclassified {
			stats.Unclassified++
			e.issues.Add(errors.RowIssue{Dataset: models.DatasetTransactions, Line: tx.Line,
				Column: "TIPO_TRANSACCION", Value: tx.Type, Condition: errors.ConditionUnclassified})
		}
	}

	for _, ca := range in.Customers.Rows {
		var totals *Totals
		if ca.HasAccount() {
			if _, grouped := byAccount[ca.Account.Number]; grouped {
				t, done := totalsByAccount[ca.Account.Number]
				if !done {
					// account group was skipped by cancellation
					continue
				}
				totals = t
			}
		}
		out.Customers = append(out.Customers, CustomerFeature(ca, totals, reference))
	}

	stats.Transactions = len(out.Transactions)
	stats.Customers = len(out.Customers)
	countSentinels(out, stats.Sentinels)

	e.logger.WithFields(logger.Fields{
		"trx_rows":         stats.Transactions,
		"customer_rows":    stats.Customers,
		"unclassified":     stats.Unclassified,
		"sentinels":        stats.Sentinels,
		"groups_completed": outcome.Completed,
		"groups_skipped":   outcome.Skipped,
	}).Info("Feature engineering completed")

	return out, stats, outcome.Err()
}

// GroupByAccount splits transactions by CUENTA. The input slice is not
// modified.
func GroupByAccount(txs []models.Transaction) map[string][]models.Transaction {
	grouped := make(map[string][]models.Transaction)
	for _, tx := range txs {
		grouped[tx.Account] = append(grouped[tx.Account], tx)
	}
	return grouped
}

// LatestDate returns the latest transaction date, or nil for no transactions
func LatestDate(txs []models.Transaction) *time.Time {
	var latest *time.Time
	for i := range txs {
		if latest == nil || txs[i].Date.After(*latest) {
			d := txs[i].Date
			latest = &d
		}
	}
	return latest
}

func countSentinels(ds *models.FeatureDataset, counts map[string]int) {
	for _, f := range ds.Transactions {
		if !f.DaysSincePrevious.Valid {
			counts[FieldDaysBetween]++
		}
		if !f.MonthlyVariation.Valid {
			counts[FieldMonthlyVariation]++
		}
	}
	for _, c := range ds.Customers {
		if !c.SentReceivedRatio.Valid {
			counts[FieldRatio]++
		}
		if !c.AvgReceived.Valid {
			counts[FieldAvgReceived]++
		}
		if !c.AvgSent.Valid {
			counts[FieldAvgSent]++
		}
		if !c.StatusDays.Valid {
			counts[FieldStatusDays]++
		}
	}
}

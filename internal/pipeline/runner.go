// Package pipeline runs the analytics stages by name. Each stage reads the
// artifact of the stage before it from the work directory and writes its own,
// so a failing stage leaves earlier artifacts intact.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"golang-compliance-analytics/internal/anomaly"
	"golang-compliance-analytics/internal/country"
	"golang-compliance-analytics/internal/features"
	"golang-compliance-analytics/internal/groups"
	"golang-compliance-analytics/internal/intermediate"
	"golang-compliance-analytics/internal/metrics"
	"golang-compliance-analytics/internal/models"
	"golang-compliance-analytics/internal/parsers"
	"golang-compliance-analytics/internal/primary"
	"golang-compliance-analytics/internal/store"
	"golang-compliance-analytics/internal/timeseries"
	"golang-compliance-analytics/pkg/errors"
	"golang-compliance-analytics/pkg/logger"
)

// Publisher receives the feature dataset every time a stage updates it
type Publisher interface {
	Publish(ds *models.FeatureDataset) error
}

// Option customizes a Runner
type Option func(*Runner)

// WithPublisher sets where output datasets are written
func WithPublisher(p Publisher) Option {
	return func(r *Runner) { r.publisher = p }
}

// WithRecorder sets the metrics recorder
func WithRecorder(rec *metrics.Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// WithTracer overrides the global OpenTelemetry tracer
func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) { r.tracer = t }
}

// Runner executes stages against a store
type Runner struct {
	config     RunConfig
	store      *store.Store
	normalizer *country.Normalizer
	groups     *groups.Runner
	issues     *errors.RowIssueCollector
	publisher  Publisher
	recorder   *metrics.Recorder
	tracer     trace.Tracer
	logger     logger.Logger
}

// NewRunner validates the configuration and prepares the shared stage
// dependencies. A missing run ID is generated.
func NewRunner(config *RunConfig, st *store.Store, log logger.Logger, opts ...Option) (*Runner, error) {
	if config == nil {
		config = DefaultRunConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "run", config.RunID, err)
	}
	if st == nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "runner setup", fmt.Errorf("store is required"))
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	cfg := *config
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	log = log.WithField("run_id", cfg.RunID)

	normalizer, err := country.NewNormalizer(cfg.CountryForm)
	if err != nil {
		return nil, err
	}
	pool, err := groups.NewRunner(cfg.Workers, log)
	if err != nil {
		return nil, err
	}

	r := &Runner{
		config:     cfg,
		store:      st,
		normalizer: normalizer,
		groups:     pool,
		issues:     errors.NewRowIssueCollector(cfg.MaxSamples),
		tracer:     otel.Tracer("compliance-analytics/pipeline"),
		logger:     log.WithComponent("pipeline"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RunID returns the identifier of this run
func (r *Runner) RunID() string {
	return r.config.RunID
}

// Run executes stage, or every stage for StageAll, stopping at the first
// error. The summary is returned even when a stage fails.
func (r *Runner) Run(ctx context.Context, stage Stage) (*RunSummary, error) {
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	summary := newRunSummary(r.config.RunID, stage)
	r.logger.WithFields(logger.Fields{
		"stage":   stage,
		"workers": r.groups.Workers(),
		"timeout": r.config.Timeout.String(),
	}).Info("Starting run")

	var runErr error
	for _, s := range stage.Expand() {
		result, err := r.runStage(ctx, s)
		summary.add(result)
		if err != nil {
			runErr = err
			break
		}
	}
	summary.finish(r.issues)

	r.logger.WithFields(logger.Fields{
		"status":   summary.Status(),
		"duration": summary.Duration.String(),
		"stages":   len(summary.Stages),
	}).Info("Run finished")
	return summary, runErr
}

func (r *Runner) runStage(ctx context.Context, stage Stage) (StageResult, error) {
	ctx, span := r.tracer.Start(ctx, "stage."+string(stage), trace.WithAttributes(
		attribute.String("stage", string(stage)),
		attribute.String("run_id", r.config.RunID),
	))
	defer span.End()

	log := r.logger.WithField("stage", stage)
	log.Info("Starting stage")

	start := time.Now()
	issues := errors.NewRowIssueCollector(r.config.MaxSamples)
	result := StageResult{Stage: stage}

	var err error
	switch stage {
	case StageRaw:
		err = r.runRaw(ctx, &result, issues)
	case StageIntermediate:
		err = r.runIntermediate(ctx, &result, issues)
	case StagePrimary:
		err = r.runPrimary(ctx, &result, issues)
	case StageFeatureEngineering:
		err = r.runFeatures(ctx, &result, issues)
	case StageAnomalyDetection:
		err = r.runAnomaly(ctx, &result)
	case StageTimeSeries:
		err = r.runTimeSeries(ctx, &result)
	default:
		err = errors.ConfigurationError(errors.CodeInvalidStage, "stage", stage, nil)
	}

	if err != nil {
		err = errors.WrapIfNeeded(err, errors.CategoryInternal, errors.CodeUnexpectedError,
			fmt.Sprintf("stage %s failed", stage))
	}

	result.Duration = time.Since(start)
	result.Issues = issues.Counts()
	r.issues.Merge(issues)

	switch {
	case err == nil:
		result.Status = StatusSuccess
	case errors.HasCode(err, errors.CodePartialResult):
		result.Status = StatusPartial
	default:
		result.Status = StatusFailed
	}
	if err != nil {
		result.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "ok")
	}
	span.SetAttributes(
		attribute.Int("rows", result.Rows),
		attribute.String("status", string(result.Status)),
	)

	if r.recorder != nil {
		for condition, n := range result.Issues {
			r.recorder.AddRows(string(stage), string(condition), n)
		}
		if result.Groups != nil {
			r.recorder.AddGroups(string(stage), result.Groups.Completed, result.Groups.Skipped)
		}
		r.recorder.ObserveStage(string(stage), strings.ToLower(string(result.Status)), result.Duration)
	}

	fields := logger.Fields{
		"status":   result.Status,
		"rows":     result.Rows,
		"duration": result.Duration.String(),
	}
	if err != nil {
		log.WithError(err).WithFields(fields).Error("Stage did not complete")
	} else {
		log.WithFields(fields).Info("Stage completed")
	}
	return result, err
}

func (r *Runner) runRaw(ctx context.Context, result *StageResult, issues *errors.RowIssueCollector) error {
	if err := r.config.validateInputs(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "inputs", r.config.Inputs, err)
	}
	parser, err := parsers.NewTableParser(r.config.Parse)
	if err != nil {
		return err
	}

	raw := &models.RawDataset{}
	tables := []struct {
		path string
		spec *parsers.TableSpec
		dst  **models.RawTable
	}{
		{r.config.Inputs.Customers, parsers.CustomersSpec(), &raw.Customers},
		{r.config.Inputs.Products, parsers.ProductsSpec(), &raw.Products},
		{r.config.Inputs.Transactions, parsers.TransactionsSpec(), &raw.Transactions},
	}
	rows := make(map[string]int, len(tables))
	for _, t := range tables {
		table, stats, err := parser.ReadTable(ctx, t.path, t.spec)
		if err != nil {
			return err
		}
		*t.dst = table
		rows[t.spec.Dataset] = len(table.Rows)
		result.Rows += len(table.Rows)
		issues.AddCount(errors.ConditionMalformedRow, stats.ErrorCount)
	}
	result.Details = rows

	return r.store.Save(store.ArtifactRaw, raw)
}

func (r *Runner) runIntermediate(ctx context.Context, result *StageResult, issues *errors.RowIssueCollector) error {
	var raw models.RawDataset
	if err := r.store.Load(string(StageIntermediate), store.ArtifactRaw, &raw); err != nil {
		return err
	}

	builder := intermediate.NewBuilder(r.normalizer, issues, r.logger)
	out, stats, err := builder.Build(ctx, &raw)
	if stats != nil {
		result.Rejected = stats.Rejected
		result.Details = stats
	}
	if err != nil {
		return err
	}
	result.Rows = len(out.Transactions)

	return r.store.Save(store.ArtifactIntermediate, out)
}

func (r *Runner) runPrimary(ctx context.Context, result *StageResult, issues *errors.RowIssueCollector) error {
	var in models.IntermediateDataset
	if err := r.store.Load(string(StagePrimary), store.ArtifactIntermediate, &in); err != nil {
		return err
	}

	builder, err := primary.NewBuilder(r.config.Primary, r.normalizer, issues, r.logger)
	if err != nil {
		return err
	}
	out, stats, err := builder.Build(ctx, &in)
	if err != nil {
		return err
	}
	result.Rows = len(out.Transactions)
	result.Orphans = stats.OrphanTransactions
	result.Details = stats

	return r.store.Save(store.ArtifactPrimary, out)
}

func (r *Runner) runFeatures(ctx context.Context, result *StageResult, issues *errors.RowIssueCollector) error {
	var in models.PrimaryDataset
	if err := r.store.Load(string(StageFeatureEngineering), store.ArtifactPrimary, &in); err != nil {
		return err
	}

	engine, err := features.NewEngine(r.config.Features, r.groups, issues, r.logger)
	if err != nil {
		return err
	}
	ds, stats, buildErr := engine.Build(ctx, &in)
	if ds == nil {
		return buildErr
	}
	result.Rows = len(ds.Transactions)
	result.Groups = stats.Outcome
	result.Sentinels = stats.Sentinels
	result.Details = stats

	if err := r.persist(ds); err != nil {
		return err
	}
	return buildErr
}

func (r *Runner) runAnomaly(ctx context.Context, result *StageResult) error {
	var ds models.FeatureDataset
	if err := r.store.Load(string(StageAnomalyDetection), store.ArtifactFeature, &ds); err != nil {
		return err
	}

	detector, err := anomaly.NewDetector(r.config.Anomaly, r.groups, r.logger)
	if err != nil {
		return err
	}
	stats, detectErr := detector.Detect(ctx, &ds)
	if stats == nil {
		return detectErr
	}
	result.Rows = len(ds.Transactions)
	result.Groups = stats.Outcome
	result.Sentinels = map[string]int{"puntaje_anomalia": stats.Insufficient}
	result.Details = stats

	if err := r.persist(&ds); err != nil {
		return err
	}
	return detectErr
}

func (r *Runner) runTimeSeries(ctx context.Context, result *StageResult) error {
	var ds models.FeatureDataset
	if err := r.store.Load(string(StageTimeSeries), store.ArtifactFeature, &ds); err != nil {
		return err
	}

	analyzer, err := timeseries.NewAnalyzer(r.config.TimeSeries, r.groups, r.logger)
	if err != nil {
		return err
	}
	stats, analyzeErr := analyzer.Analyze(ctx, &ds)
	if stats == nil {
		return analyzeErr
	}
	result.Rows = len(ds.Transactions)
	result.Groups = stats.Outcome
	result.Details = stats

	undetermined := 0
	for _, row := range ds.Transactions {
		if row.Series != nil && !row.Series.Deviation.Valid {
			undetermined++
		}
	}
	result.Sentinels = map[string]int{"desviacion_serie": undetermined}

	if err := r.persist(&ds); err != nil {
		return err
	}
	return analyzeErr
}

// persist stores the feature artifact and republishes the output datasets
func (r *Runner) persist(ds *models.FeatureDataset) error {
	if err := r.store.Save(store.ArtifactFeature, ds); err != nil {
		return err
	}
	if r.publisher == nil {
		return nil
	}
	return r.publisher.Publish(ds)
}

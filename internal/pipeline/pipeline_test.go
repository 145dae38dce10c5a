package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang-compliance-analytics/internal/groups"
	"golang-compliance-analytics/internal/metrics"
	"golang-compliance-analytics/internal/models"
	"golang-compliance-analytics/internal/store"
	"golang-compliance-analytics/internal/synth"
	"golang-compliance-analytics/pkg/errors"
	"golang-compliance-analytics/pkg/logger"
)

type capturePublisher struct {
	calls int
	last  *models.FeatureDataset
}

func (p *capturePublisher) Publish(ds *models.FeatureDataset) error {
	p.calls++
	p.last = ds
	return nil
}

type failingPublisher struct{ err error }

func (p failingPublisher) Publish(*models.FeatureDataset) error { return p.err }

func sampleConfig(t *testing.T) *RunConfig {
	t.Helper()
	dir := filepath.Join("..", "..", "testdata", "sample")
	config := DefaultRunConfig()
	config.RunID = "test-run"
	config.WorkDir = t.TempDir()
	config.Workers = &groups.Config{Workers: 2}
	config.Inputs = Inputs{
		Customers:    filepath.Join(dir, "clientes.csv"),
		Products:     filepath.Join(dir, "productos.csv"),
		Transactions: filepath.Join(dir, "transacciones.csv"),
	}
	return config
}

func newTestRunner(t *testing.T, config *RunConfig, opts ...Option) *Runner {
	t.Helper()
	st, err := store.New(config.WorkDir, logger.Discard())
	require.NoError(t, err)
	r, err := NewRunner(config, st, logger.Discard(), opts...)
	require.NoError(t, err)
	return r
}

func TestParseStage(t *testing.T) {
	tests := []struct {
		input   string
		want    Stage
		wantErr bool
	}{
		{"raw", StageRaw, false},
		{" Feature_Engineering ", StageFeatureEngineering, false},
		{"anomaly_detection", StageAnomalyDetection, false},
		{"time_series", StageTimeSeries, false},
		{"all", StageAll, false},
		{"anomalias", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseStage(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.HasCode(err, errors.CodeInvalidStage))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Len(t, StageAll.Expand(), 6)
	assert.Equal(t, []Stage{StagePrimary}, StagePrimary.Expand())
}

func TestRunConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultRunConfig().Validate())

	c := DefaultRunConfig()
	c.WorkDir = ""
	assert.Error(t, c.Validate())

	c = DefaultRunConfig()
	c.Anomaly = nil
	assert.Error(t, c.Validate())

	c = DefaultRunConfig()
	c.Anomaly.Threshold = -1
	assert.Error(t, c.Validate())

	c = DefaultRunConfig()
	c.CountryForm = "alpha4"
	assert.Error(t, c.Validate())
}

func TestNewRunnerGeneratesRunID(t *testing.T) {
	config := DefaultRunConfig()
	config.WorkDir = t.TempDir()
	r := newTestRunner(t, config)
	assert.Len(t, r.RunID(), 36)
	assert.Empty(t, config.RunID, "caller configuration is not modified")
}

func TestRunAll(t *testing.T) {
	publisher := &capturePublisher{}
	recorder := metrics.NewRecorder(logger.Discard())
	config := sampleConfig(t)
	r := newTestRunner(t, config, WithPublisher(publisher), WithRecorder(recorder))

	summary, err := r.Run(context.Background(), StageAll)
	require.NoError(t, err)

	require.Len(t, summary.Stages, 6)
	for _, s := range summary.Stages {
		assert.Equal(t, StatusSuccess, s.Status, "stage %s", s.Stage)
	}
	assert.Equal(t, StatusSuccess, summary.Status())
	assert.Equal(t, "test-run", summary.RunID)

	assert.Equal(t, 3, summary.Rejected)
	assert.Equal(t, 1, summary.Orphans)
	assert.Equal(t, 1, summary.Issues[errors.ConditionDuplicate])
	assert.Equal(t, 1, summary.Issues[errors.ConditionOrphanProduct])
	assert.Equal(t, 1, summary.Issues[errors.ConditionImputedDate])
	assert.Equal(t, 3, summary.Sentinels["dias_entre_trx"])

	// feature, anomaly and time series each republish
	assert.Equal(t, 3, publisher.calls)
	ds := publisher.last
	require.NotNil(t, ds)
	assert.Len(t, ds.Transactions, 9)
	assert.Len(t, ds.Customers, 5)
	assert.True(t, ds.AnomalyScored)
	assert.True(t, ds.SeriesAnalyzed)

	first := ds.Transactions[0]
	assert.Equal(t, "S1", first.Account)
	assert.Equal(t, "USA_CAN", first.Corridor)
	require.NotNil(t, first.Anomaly)
	assert.Equal(t, models.AnomalyInsufficientHistory, first.Anomaly.Status)
	require.NotNil(t, first.Series)
	assert.Equal(t, models.SeriesInsufficientSeriesLength, first.Series.Status)

	for _, name := range []string{store.ArtifactRaw, store.ArtifactIntermediate, store.ArtifactPrimary, store.ArtifactFeature} {
		assert.FileExists(t, filepath.Join(config.WorkDir, name+".json"))
	}

	assert.Equal(t, 1.0, recorderRows(recorder, "primary", "orphan_transaction"))
}

func recorderRows(r *metrics.Recorder, stage, condition string) float64 {
	families, err := r.Registry().Gather()
	if err != nil {
		return -1
	}
	for _, f := range families {
		if f.GetName() != "analytics_rows_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["stage"] == stage && labels["condition"] == condition {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestRunStagesIndividually(t *testing.T) {
	config := sampleConfig(t)
	r := newTestRunner(t, config)

	for _, s := range Stages() {
		summary, err := r.Run(context.Background(), s)
		require.NoError(t, err, "stage %s", s)
		require.Len(t, summary.Stages, 1)
	}
}

func TestRunIsDeterministic(t *testing.T) {
	first := &capturePublisher{}
	_, err := newTestRunner(t, sampleConfig(t), WithPublisher(first)).Run(context.Background(), StageAll)
	require.NoError(t, err)

	second := &capturePublisher{}
	config := sampleConfig(t)
	config.Workers = &groups.Config{Workers: 7}
	_, err = newTestRunner(t, config, WithPublisher(second)).Run(context.Background(), StageAll)
	require.NoError(t, err)

	assert.Equal(t, first.last, second.last)
}

func TestRunAllOnSyntheticExtract(t *testing.T) {
	gen := synth.DefaultGeneratorConfig()
	gen.Customers = 30
	gen.DirtyRate = 0.1
	gen.Seed = 7
	g, err := synth.NewGenerator(gen, logger.Discard())
	require.NoError(t, err)
	files, err := g.WriteFiles(t.TempDir())
	require.NoError(t, err)

	publisher := &capturePublisher{}
	config := sampleConfig(t)
	config.Inputs = Inputs{
		Customers:    files.Customers,
		Products:     files.Products,
		Transactions: files.Transactions,
	}
	r := newTestRunner(t, config, WithPublisher(publisher))

	summary, err := r.Run(context.Background(), StageAll)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, summary.Status())
	assert.Positive(t, summary.Rejected)

	require.NotNil(t, publisher.last)
	assert.NotEmpty(t, publisher.last.Transactions)
	assert.NotEmpty(t, publisher.last.Customers)
	assert.True(t, publisher.last.AnomalyScored)
	assert.True(t, publisher.last.SeriesAnalyzed)
}

func TestMissingArtifact(t *testing.T) {
	r := newTestRunner(t, sampleConfig(t))

	summary, err := r.Run(context.Background(), StagePrimary)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeArtifactMissing))
	assert.Equal(t, StatusFailed, summary.Stages[0].Status)
	assert.Equal(t, StatusFailed, summary.Status())
}

func TestFailingStageKeepsEarlierArtifacts(t *testing.T) {
	config := sampleConfig(t)
	r := newTestRunner(t, config)
	_, err := r.Run(context.Background(), StageRaw)
	require.NoError(t, err)

	bad := *config
	bad.Inputs.Transactions = filepath.Join(t.TempDir(), "missing.csv")
	r2 := newTestRunner(t, &bad)
	summary, err := r2.Run(context.Background(), StageAll)
	require.Error(t, err)
	assert.Len(t, summary.Stages, 1, "all stops at the first failure")
	assert.FileExists(t, filepath.Join(config.WorkDir, "raw.json"))
}

func TestRawRequiresInputs(t *testing.T) {
	config := sampleConfig(t)
	config.Inputs.Products = ""
	r := newTestRunner(t, config)

	_, err := r.Run(context.Background(), StageRaw)
	require.Error(t, err)
	assert.Equal(t, 4, errors.GetExitCode(err))
}

func TestCancelledFeatureStageIsPartial(t *testing.T) {
	publisher := &capturePublisher{}
	config := sampleConfig(t)
	r := newTestRunner(t, config, WithPublisher(publisher))
	for _, s := range []Stage{StageRaw, StageIntermediate, StagePrimary} {
		_, err := r.Run(context.Background(), s)
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := r.Run(ctx, StageFeatureEngineering)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodePartialResult))
	assert.Equal(t, 5, errors.GetExitCode(err))
	assert.Equal(t, StatusPartial, summary.Status())
	assert.True(t, summary.Partial)
	require.NotNil(t, summary.Stages[0].Groups)
	assert.Equal(t, 3, summary.Stages[0].Groups.Skipped)

	// partial artifact is still written
	assert.Equal(t, 1, publisher.calls)
	assert.FileExists(t, filepath.Join(config.WorkDir, "feature.json"))
}

func TestPlainStageErrorIsWrapped(t *testing.T) {
	config := sampleConfig(t)
	cause := fmt.Errorf("disk quota exceeded")
	r := newTestRunner(t, config, WithPublisher(failingPublisher{err: cause}))

	summary, err := r.Run(context.Background(), StageAll)
	require.Error(t, err)
	pe, ok := errors.AsPipelineError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeUnexpectedError, pe.Code)
	assert.Equal(t, cause, pe.Cause)
	assert.Contains(t, pe.Message, string(StageFeatureEngineering))
	assert.Equal(t, 1, errors.GetExitCode(err))

	last := summary.Stages[len(summary.Stages)-1]
	assert.Equal(t, StageFeatureEngineering, last.Stage)
	assert.Equal(t, StatusFailed, last.Status)
}

func TestTimeout(t *testing.T) {
	config := sampleConfig(t)
	config.Timeout = time.Nanosecond
	r := newTestRunner(t, config)

	time.Sleep(time.Millisecond)
	summary, err := r.Run(context.Background(), StageRaw)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, summary.Status())
}

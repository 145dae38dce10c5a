package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang-compliance-analytics/internal/models"
	"golang-compliance-analytics/internal/reporter"
	"golang-compliance-analytics/internal/timeseries"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestDefaultsProduceValidConfig(t *testing.T) {
	v := newViper(t)

	run, err := CreateRunConfig(v)
	require.NoError(t, err)
	report, err := CreateReportConfig(v)
	require.NoError(t, err)
	require.NoError(t, ValidateConfig(run, report))

	assert.Equal(t, "./work", run.WorkDir)
	assert.Equal(t, ',', run.Parse.Delimiter)
	assert.Greater(t, run.Workers.Workers, 0)
	assert.Equal(t, 1, run.Primary.PEPMap["SI"])
	assert.Equal(t, 4, run.Primary.RiskMap["MEDIO ALTO"])
	assert.True(t, run.Primary.ImputeUpdateDate)
	assert.Equal(t, 3, run.Anomaly.MinHistory)
	assert.Equal(t, 24, run.TimeSeries.MinPeriods)
	assert.Nil(t, run.Features.ReferenceDate)

	assert.Equal(t, reporter.FormatCSV, report.DatasetFormat)
	assert.Equal(t, "NA", report.Sentinel)
}

func TestMinPeriodsFollowsSeasonalPeriod(t *testing.T) {
	v := newViper(t)
	v.Set(KeySeasonalPeriod, 4)

	config := CreateTimeSeriesConfig(v)
	assert.Equal(t, 8, config.MinPeriods)
	assert.NoError(t, config.Validate())

	v.Set(KeyMinPeriods, 30)
	assert.Equal(t, 30, CreateTimeSeriesConfig(v).MinPeriods)
}

func TestYAMLConfigFile(t *testing.T) {
	v := newViper(t)
	v.SetConfigType("yaml")
	yaml := `
input:
  encoding: LATIN1
  delimiter: ";"
output:
  format: json
  sentinel: "-1"
primary:
  risk_map:
    bajo: 10
    alto: 30
features:
  reference_date: "2024-03-31"
  direction_map:
    cash in: received
anomaly:
  threshold: 2.5
timeseries:
  key: corridor
  measure: count
`
	require.NoError(t, v.ReadConfig(strings.NewReader(yaml)))

	run, err := CreateRunConfig(v)
	require.NoError(t, err)
	report, err := CreateReportConfig(v)
	require.NoError(t, err)
	require.NoError(t, ValidateConfig(run, report))

	assert.Equal(t, "latin1", string(run.Parse.Encoding))
	assert.Equal(t, ';', run.Parse.Delimiter)
	assert.Equal(t, map[string]int{"BAJO": 10, "ALTO": 30}, run.Primary.RiskMap)
	require.NotNil(t, run.Features.ReferenceDate)
	assert.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), *run.Features.ReferenceDate)
	assert.Equal(t, "received", run.Features.DirectionMap["cash in"])
	assert.Equal(t, 2.5, run.Anomaly.Threshold)
	assert.Equal(t, models.SeriesByCorridor, run.TimeSeries.KeyKind)
	assert.Equal(t, timeseries.MeasureCount, run.TimeSeries.Measure)

	assert.Equal(t, reporter.FormatJSON, report.DatasetFormat)
	assert.Equal(t, "-1", report.Sentinel)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("ANALYTICS_ANOMALY_THRESHOLD", "4.5")
	t.Setenv("ANALYTICS_WORK_DIR", "/tmp/analytics")
	t.Setenv("ANALYTICS_INPUT_CUSTOMERS", "/data/clientes.csv")

	v := newViper(t)
	v.SetEnvPrefix("ANALYTICS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	run, err := CreateRunConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 4.5, run.Anomaly.Threshold)
	assert.Equal(t, "/tmp/analytics", run.WorkDir)
	assert.Equal(t, "/data/clientes.csv", run.Inputs.Customers)
}

func TestCreateConfigErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(v *viper.Viper)
	}{
		{"multi-character delimiter", func(v *viper.Viper) { v.Set(KeyDelimiter, ";;") }},
		{"bad reference date", func(v *viper.Viper) { v.Set(KeyReferenceDate, "31/03/2024") }},
		{"non-numeric category", func(v *viper.Viper) {
			v.Set(KeyPEPMap, map[string]interface{}{"SI": "yes"})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper(t)
			tt.setup(v)
			_, err := CreateRunConfig(v)
			assert.Error(t, err)
		})
	}
}

func TestValidateConfigRejectsBadSections(t *testing.T) {
	v := newViper(t)
	v.Set(KeySeriesKey, "branch")
	run, err := CreateRunConfig(v)
	require.NoError(t, err)
	report, err := CreateReportConfig(v)
	require.NoError(t, err)
	assert.Error(t, ValidateConfig(run, report))

	v = newViper(t)
	v.Set(KeyOutputDelimiter, "tab")
	report, err = CreateReportConfig(v)
	require.NoError(t, err)
	assert.Equal(t, '\t', report.CSVDelimiter)
}

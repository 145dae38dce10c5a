package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"golang-compliance-analytics/cmd/analytics/config"
	"golang-compliance-analytics/internal/metrics"
	"golang-compliance-analytics/internal/pipeline"
	"golang-compliance-analytics/internal/reporter"
	"golang-compliance-analytics/internal/store"
	"golang-compliance-analytics/pkg/errors"
	"golang-compliance-analytics/pkg/logger"
)

// Resolved in PreRunE and used by RunE
var (
	runStage     pipeline.Stage
	runConfig    *pipeline.RunConfig
	reportConfig *reporter.ReportConfig
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <stage>",
	Short: "Run one pipeline stage, or all of them",
	Long: `Run executes a pipeline stage by name. Each stage reads the artifact left
by the previous stage in the work directory, so stages can be scheduled
separately. "all" runs every stage in order and stops at the first failure.

Stages: raw, intermediate, primary, feature_engineering, anomaly_detection,
time_series, all.

Only the raw stage reads the input files. Stages from feature_engineering on
write data_trx_feature and data_customers_feature to the output directory.

Exit codes: 0 success, 2 file error, 3 schema error, 4 configuration error,
5 pipeline error or partial result, 1 anything else.

Examples:
  # Full run over CSV extracts
  analytics run all --customers clientes.csv --products productos.csv \
    --transactions transacciones.csv --output-dir out

  # Latin-1 fixed-width extracts, JSON datasets
  analytics run raw --input-format fixed --encoding latin1 ...
  analytics run all --format json

  # Series per corridor, metrics pushed at the end of the run
  analytics run time_series --series-key corridor --pushgateway http://pushgateway:9091`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: stageNames(),
	PreRunE:   validateRunFlags,
	RunE:      runPipeline,
}

func stageNames() []string {
	var names []string
	for _, s := range pipeline.Stages() {
		names = append(names, string(s))
	}
	return append(names, string(pipeline.StageAll))
}

// runFlags maps each flag to its viper key
var runFlags = map[string]string{
	"customers":        config.KeyCustomers,
	"products":         config.KeyProducts,
	"transactions":     config.KeyTransactions,
	"input-format":     config.KeyInputFormat,
	"encoding":         config.KeyEncoding,
	"delimiter":        config.KeyDelimiter,
	"work-dir":         config.KeyWorkDir,
	"output-dir":       config.KeyOutputDir,
	"format":           config.KeyOutputFormat,
	"summary-format":   config.KeySummaryFormat,
	"sentinel":         config.KeySentinel,
	"workers":          config.KeyWorkers,
	"timeout":          config.KeyTimeout,
	"max-samples":      config.KeyMaxSamples,
	"country-form":     config.KeyCountryForm,
	"run-id":           config.KeyRunID,
	"pushgateway":      config.KeyPushgateway,
	"reference-date":   config.KeyReferenceDate,
	"min-history":      config.KeyMinHistory,
	"threshold":        config.KeyThreshold,
	"series-key":       config.KeySeriesKey,
	"series-measure":   config.KeyMeasure,
	"seasonal-period":  config.KeySeasonalPeriod,
	"min-periods":      config.KeyMinPeriods,
	"cap-outliers":     config.KeyCapOutliers,
	"forecast-horizon": config.KeyHorizon,
}

func init() {
	rootCmd.AddCommand(runCmd)
	flags := runCmd.Flags()

	// Input flags
	flags.String("customers", "", "path to the CLIENTES extract (raw stage)")
	flags.String("products", "", "path to the PRODUCTOS extract (raw stage)")
	flags.String("transactions", "", "path to the TRANSACCIONES extract (raw stage)")
	flags.String("input-format", "csv", "input format: csv, fixed")
	flags.String("encoding", "utf-8", "input encoding: utf-8, latin1")
	flags.String("delimiter", ",", "input field delimiter")

	// Storage and output flags
	flags.String("work-dir", "./work", "directory for stage artifacts")
	flags.StringP("output-dir", "o", "./output", "directory for the output datasets")
	flags.StringP("format", "f", "csv", "dataset format: csv, json")
	flags.String("summary-format", "console", "run summary format: console, json")
	flags.String("sentinel", "NA", "token written for values that cannot be computed")

	// Run flags
	flags.Int("workers", 0, "parallel account groups (default: number of CPUs)")
	flags.Duration("timeout", 0, "cancel the run after this long; completed groups are kept")
	flags.Int("max-samples", 5, "sample rows kept per data quality condition")
	flags.String("country-form", "alpha3", "canonical country code: alpha2, alpha3, numeric")
	flags.String("run-id", "", "run identifier (default: generated UUID)")
	flags.String("pushgateway", "", "Prometheus pushgateway URL")

	// Stage settings
	flags.String("reference-date", "", "reference date for TIEMPO_ESTADO_CUENTA (YYYY-MM-DD, default: latest transaction)")
	flags.Bool("no-impute-updates", false, "leave missing FECHA_ACTUALIZACION empty instead of imputing the mode")
	flags.Int("min-history", 3, "prior transactions needed before a row is scored")
	flags.Float64("threshold", 3.0, "anomaly score above which a row is flagged")
	flags.String("series-key", "account", "time series key: account, corridor, account_type")
	flags.String("series-measure", "amount", "time series measure: amount, count, net_flow")
	flags.Int("seasonal-period", 12, "months per seasonal cycle")
	flags.Int("min-periods", 0, "months needed to fit a series (default: two cycles)")
	flags.Bool("cap-outliers", false, "clamp monthly totals to the IQR fences before fitting")
	flags.Int("forecast-horizon", 12, "months to forecast")

	bindRunFlags()
}

// bindRunFlags binds the run flags to their viper keys
func bindRunFlags() {
	for flag, key := range runFlags {
		viper.BindPFlag(key, runCmd.Flags().Lookup(flag))
	}
}

func validateRunFlags(cmd *cobra.Command, args []string) error {
	stage, err := pipeline.ParseStage(args[0])
	if err != nil {
		return err
	}

	v := viper.GetViper()
	if noImpute, _ := cmd.Flags().GetBool("no-impute-updates"); noImpute {
		v.Set(config.KeyImputeUpdateDate, false)
	}

	run, err := config.CreateRunConfig(v)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "run", args[0], err)
	}
	report, err := config.CreateReportConfig(v)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "output", args[0], err)
	}
	if err := config.ValidateConfig(run, report); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "run", args[0], err)
	}

	// Input files are only read by the raw stage
	if stage == pipeline.StageRaw || stage == pipeline.StageAll {
		inputs := []struct{ path, description string }{
			{run.Inputs.Customers, "customers file"},
			{run.Inputs.Products, "products file"},
			{run.Inputs.Transactions, "transactions file"},
		}
		for _, in := range inputs {
			if err := validateFileExists(in.path, in.description); err != nil {
				return err
			}
		}
	}

	runStage = stage
	runConfig = run
	reportConfig = report
	return nil
}

func validateFileExists(filePath, description string) error {
	if strings.TrimSpace(filePath) == "" {
		return errors.ConfigurationError(errors.CodeInvalidConfig, description, filePath,
			fmt.Errorf("%s path cannot be empty", description))
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, filePath, err)
	}
	if err != nil {
		return errors.FileError(errors.CodeFileRead, filePath, err)
	}

	if info.IsDir() {
		return errors.FileError(errors.CodeFileRead, filePath,
			fmt.Errorf("%s is a directory, expected a file", description))
	}

	return nil
}

func runPipeline(cmd *cobra.Command, args []string) error {
	// Interrupts cancel between groups; finished groups are still written
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.GetGlobalLogger()

	st, err := store.New(runConfig.WorkDir, log)
	if err != nil {
		return err
	}
	publisher, err := reporter.NewSafeReportGenerator(reportConfig, viper.GetString(config.KeyOutputDir), log)
	if err != nil {
		return err
	}
	recorder := metrics.NewRecorder(log)

	runner, err := pipeline.NewRunner(runConfig, st, log,
		pipeline.WithPublisher(publisher),
		pipeline.WithRecorder(recorder),
	)
	if err != nil {
		return err
	}

	summary, runErr := runner.Run(ctx, runStage)

	if err := publisher.WriteSummarySafely(summary, cmd.OutOrStdout()); err != nil {
		log.WithError(err).Error("Failed to print run summary")
	}

	if url := viper.GetString(config.KeyPushgateway); url != "" {
		if err := recorder.Push(url, runner.RunID()); err != nil {
			// the datasets are already written; a metrics outage does not fail the run
			log.WithError(err).Warn("Failed to push metrics")
		}
	}

	return runErr
}

package reporter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang-compliance-analytics/internal/models"
	"golang-compliance-analytics/internal/pipeline"
	"golang-compliance-analytics/pkg/errors"
	"golang-compliance-analytics/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with file handling, logging and
// typed errors. It is the pipeline's Publisher.
type SafeReportGenerator struct {
	*ReportGenerator
	outputDir string
	logger    logger.Logger
}

var _ pipeline.Publisher = (*SafeReportGenerator)(nil)

// NewSafeReportGenerator creates a report generator that writes datasets to outputDir
func NewSafeReportGenerator(config *ReportConfig, outputDir string, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"report_config",
			config,
			err,
		).WithSuggestion("Check the report configuration values")
	}

	if outputDir == "" {
		outputDir = "."
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, errors.FileError(errors.CodeDirectoryError, outputDir, err)
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		outputDir:       outputDir,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// DatasetPath returns where the named dataset is written
func (srg *SafeReportGenerator) DatasetPath(name string) string {
	return filepath.Join(srg.outputDir, name+srg.config.DatasetFormat.Extension())
}

// Publish writes both output datasets. Each file is replaced atomically, so
// a reader never observes a half-written dataset.
func (srg *SafeReportGenerator) Publish(ds *models.FeatureDataset) error {
	if ds == nil {
		return errors.InternalError(errors.CodeUnexpectedError, "publish", fmt.Errorf("feature dataset cannot be nil"))
	}

	outputs := []struct {
		name  string
		rows  int
		write func(*models.FeatureDataset, io.Writer) error
	}{
		{TransactionDataset, len(ds.Transactions), srg.WriteTransactions},
		{CustomerDataset, len(ds.Customers), srg.WriteCustomers},
	}
	for _, out := range outputs {
		path := srg.DatasetPath(out.name)
		if err := writeAtomic(path, func(w io.Writer) error { return out.write(ds, w) }); err != nil {
			srg.logger.WithError(err).WithField("file_path", path).Error("Dataset write failed")
			return err
		}
		srg.logger.WithFields(logger.Fields{
			"dataset":   out.name,
			"file_path": path,
			"rows":      out.rows,
		}).Info("Dataset written")
	}
	return nil
}

// WriteSummarySafely prints the summary, falling back to the console format
// when the JSON form cannot be produced.
func (srg *SafeReportGenerator) WriteSummarySafely(summary *pipeline.RunSummary, writer io.Writer) error {
	if writer == nil {
		return errors.InternalError(errors.CodeUnexpectedError, "summary", fmt.Errorf("writer cannot be nil"))
	}

	err := srg.WriteSummary(summary, writer)
	if err == nil {
		return nil
	}
	if summary == nil || srg.config.SummaryFormat == FormatConsole {
		return srg.wrapGenerationError(err)
	}

	srg.logger.WithError(err).Warn("Summary generation failed, attempting console fallback")
	fallbackConfig := *srg.config
	fallbackConfig.SummaryFormat = FormatConsole
	fallback, ferr := NewReportGenerator(&fallbackConfig)
	if ferr != nil {
		return srg.wrapGenerationError(err)
	}
	fmt.Fprintf(writer, "NOTE: Summary printed in fallback format due to error with requested format\n")
	fmt.Fprintf(writer, "Original error: %v\n\n", err)
	if ferr := fallback.WriteSummary(summary, writer); ferr != nil {
		return errors.InternalError(
			errors.CodeUnexpectedError,
			"summary_fallback",
			fmt.Errorf("both primary and fallback generation failed: primary=%v, fallback=%v", err, ferr),
		)
	}
	return nil
}

// wrapGenerationError wraps generation errors with context
func (srg *SafeReportGenerator) wrapGenerationError(err error) error {
	if pipelineErr, ok := errors.AsPipelineError(err); ok {
		return pipelineErr
	}

	return errors.InternalError(
		errors.CodeUnexpectedError,
		"report_generation",
		err,
	).WithSuggestion("Check the output destination and report format settings")
}

// writeAtomic writes through a temporary file in the target directory and
// renames it into place.
func writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.FileError(errors.CodeFileWrite, path, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := write(tmp); err != nil {
		tmp.Close()
		return errors.FileError(errors.CodeFileWrite, path, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.FileError(errors.CodeFileWrite, path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.FileError(errors.CodeFileWrite, path, err)
	}
	return nil
}

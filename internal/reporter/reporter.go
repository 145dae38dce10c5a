// Package reporter renders the output datasets and the run summary.
//
// The two datasets, data_trx_feature and data_customers_feature, are written
// as CSV or JSON with a fixed column order. Values that could not be computed
// are written as the sentinel token in CSV and as null in JSON. The run
// summary is printed for the operator in console or JSON form.
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(reporter.DefaultReportConfig())
//	err = generator.WriteTransactions(ds, file)
//	err = generator.WriteSummary(summary, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"golang-compliance-analytics/internal/models"
	"golang-compliance-analytics/internal/pipeline"
	"golang-compliance-analytics/pkg/errors"
)

// OutputFormat represents the supported output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// Extension returns the file extension used for datasets in this format
func (f OutputFormat) Extension() string {
	return "." + string(f)
}

// Dataset file names, without extension
const (
	TransactionDataset = "data_trx_feature"
	CustomerDataset    = "data_customers_feature"
)

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	// Datasets are csv or json, the summary is console or json
	DatasetFormat OutputFormat `json:"dataset_format" mapstructure:"format"`
	SummaryFormat OutputFormat `json:"summary_format" mapstructure:"summary_format"`

	// Sentinel is written for values that could not be computed
	Sentinel string `json:"sentinel" mapstructure:"sentinel"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`

	// Decimal places for ratios, variations and scores
	RatioPlaces int32 `json:"ratio_places" mapstructure:"ratio_places"`

	// MaxSamples caps the sample rows listed per condition in the summary
	MaxSamples int `json:"max_samples"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		DatasetFormat: FormatCSV,
		SummaryFormat: FormatConsole,
		Sentinel:      "NA",
		CSVDelimiter:  ',',
		CSVHeaders:    true,
		RatioPlaces:   6,
		MaxSamples:    5,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if c.DatasetFormat != FormatCSV && c.DatasetFormat != FormatJSON {
		return fmt.Errorf("dataset format must be csv or json, got %q", c.DatasetFormat)
	}
	if c.SummaryFormat != FormatConsole && c.SummaryFormat != FormatJSON {
		return fmt.Errorf("summary format must be console or json, got %q", c.SummaryFormat)
	}
	if strings.ContainsAny(c.Sentinel, "\r\n") {
		return fmt.Errorf("sentinel cannot contain line breaks")
	}
	if c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\n' || c.CSVDelimiter == '\r' {
		return fmt.Errorf("invalid CSV delimiter %q", c.CSVDelimiter)
	}
	if c.RatioPlaces < 0 || c.RatioPlaces > 16 {
		return fmt.Errorf("ratio places must be between 0 and 16, got %d", c.RatioPlaces)
	}
	if c.MaxSamples < 0 {
		return fmt.Errorf("max samples cannot be negative, got %d", c.MaxSamples)
	}
	return nil
}

// ReportGenerator renders datasets and summaries
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config: config,
	}, nil
}

// WriteTransactions writes data_trx_feature
func (rg *ReportGenerator) WriteTransactions(ds *models.FeatureDataset, writer io.Writer) error {
	if ds == nil {
		return fmt.Errorf("feature dataset cannot be nil")
	}
	rows := make([][]cell, len(ds.Transactions))
	for i := range ds.Transactions {
		rows[i] = rg.transactionRow(ds, &ds.Transactions[i])
	}
	return rg.writeTable(TransactionColumns(ds), rows, writer)
}

// WriteCustomers writes data_customers_feature
func (rg *ReportGenerator) WriteCustomers(ds *models.FeatureDataset, writer io.Writer) error {
	if ds == nil {
		return fmt.Errorf("feature dataset cannot be nil")
	}
	rows := make([][]cell, len(ds.Customers))
	for i := range ds.Customers {
		rows[i] = rg.customerRow(&ds.Customers[i])
	}
	return rg.writeTable(CustomerColumns(), rows, writer)
}

func (rg *ReportGenerator) writeTable(header []string, rows [][]cell, writer io.Writer) error {
	switch rg.config.DatasetFormat {
	case FormatJSON:
		return rg.writeJSONTable(header, rows, writer)
	default:
		return rg.writeCSVTable(header, rows, writer)
	}
}

func (rg *ReportGenerator) writeCSVTable(header []string, rows [][]cell, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(header); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	record := make([]string, len(header))
	for i, row := range rows {
		for j, c := range row {
			record[j] = c.csv(rg.config.Sentinel)
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record %d: %w", i+1, err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// writeJSONTable writes an array of objects whose keys keep column order
func (rg *ReportGenerator) writeJSONTable(header []string, rows [][]cell, writer io.Writer) error {
	keys := make([][]byte, len(header))
	for i, h := range header {
		quoted, err := json.Marshal(h)
		if err != nil {
			return err
		}
		keys[i] = quoted
	}

	if _, err := io.WriteString(writer, "["); err != nil {
		return err
	}
	var buf []byte
	for i, row := range rows {
		buf = buf[:0]
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = append(buf, "\n  {"...)
		for j, c := range row {
			if j > 0 {
				buf = append(buf, ", "...)
			}
			buf = append(buf, keys[j]...)
			buf = append(buf, ": "...)
			var err error
			if buf, err = c.appendJSON(buf); err != nil {
				return fmt.Errorf("failed to write JSON record %d: %w", i+1, err)
			}
		}
		buf = append(buf, '}')
		if _, err := writer.Write(buf); err != nil {
			return fmt.Errorf("failed to write JSON record %d: %w", i+1, err)
		}
	}
	if len(rows) > 0 {
		_, err := io.WriteString(writer, "\n]\n")
		return err
	}
	_, err := io.WriteString(writer, "]\n")
	return err
}

// WriteSummary prints the run summary in the configured summary format
func (rg *ReportGenerator) WriteSummary(summary *pipeline.RunSummary, writer io.Writer) error {
	if summary == nil {
		return fmt.Errorf("run summary cannot be nil")
	}

	switch rg.config.SummaryFormat {
	case FormatJSON:
		return rg.generateJSONSummary(summary, writer)
	default:
		return rg.generateConsoleSummary(summary, writer)
	}
}

func (rg *ReportGenerator) generateJSONSummary(summary *pipeline.RunSummary, writer io.Writer) error {
	output := map[string]interface{}{
		"status":  summary.Status(),
		"summary": summary,
	}
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

// generateConsoleSummary generates a human-readable run summary
func (rg *ReportGenerator) generateConsoleSummary(summary *pipeline.RunSummary, writer io.Writer) error {
	fmt.Fprintf(writer, "RUN SUMMARY\n")
	fmt.Fprintf(writer, "Run ID:    %s\n", summary.RunID)
	fmt.Fprintf(writer, "Stage:     %s\n", summary.Requested)
	fmt.Fprintf(writer, "Status:    %s\n", summary.Status())
	fmt.Fprintf(writer, "Started:   %s\n", summary.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(writer, "Duration:  %v\n\n", summary.Duration.Round(time.Millisecond))

	fmt.Fprintf(writer, "=== STAGES ===\n")
	rg.printStages(summary.Stages, writer)
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== DATA QUALITY ===\n")
	rg.printDataQuality(summary, writer)
	fmt.Fprintf(writer, "\n")

	if len(summary.Sentinels) > 0 {
		fmt.Fprintf(writer, "=== SENTINEL VALUES ===\n")
		rg.printCounts(summary.Sentinels, writer)
		fmt.Fprintf(writer, "\n")
	}

	if summary.Partial {
		fmt.Fprintf(writer, "=== PARTIAL RESULTS ===\n")
		rg.printPartial(summary.Stages, writer)
		fmt.Fprintf(writer, "\n")
	}

	if len(summary.Samples) > 0 && rg.config.MaxSamples > 0 {
		fmt.Fprintf(writer, "=== SAMPLE ROWS ===\n")
		rg.printSamples(summary.Samples, writer)
	}

	return nil
}

func (rg *ReportGenerator) printStages(stages []pipeline.StageResult, writer io.Writer) {
	for _, s := range stages {
		fmt.Fprintf(writer, "  %-20s %-8s rows: %-8d %v\n",
			s.Stage, s.Status, s.Rows, s.Duration.Round(time.Millisecond))
		if s.Error != "" {
			fmt.Fprintf(writer, "    error: %s\n", s.Error)
		}
	}
}

func (rg *ReportGenerator) printDataQuality(summary *pipeline.RunSummary, writer io.Writer) {
	fmt.Fprintf(writer, "Rejected transactions:  %d\n", summary.Rejected)
	fmt.Fprintf(writer, "Orphan transactions:    %d\n", summary.Orphans)
	fmt.Fprintf(writer, "Unknown country codes:  %d\n", summary.Issues[errors.ConditionUnknownCountry])

	if len(summary.Issues) == 0 {
		return
	}
	fmt.Fprintf(writer, "\nBy condition:\n")
	counts := make(map[string]int, len(summary.Issues))
	for k, v := range summary.Issues {
		counts[string(k)] = v
	}
	rg.printCounts(counts, writer)
}

func (rg *ReportGenerator) printCounts(counts map[string]int, writer io.Writer) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(writer, "  %-30s %d\n", k, counts[k])
	}
}

func (rg *ReportGenerator) printPartial(stages []pipeline.StageResult, writer io.Writer) {
	for _, s := range stages {
		if s.Status != pipeline.StatusPartial || s.Groups == nil {
			continue
		}
		fmt.Fprintf(writer, "  %s: %d of %d groups completed, %d skipped\n",
			s.Stage, s.Groups.Completed, s.Groups.Total, s.Groups.Skipped)
	}
}

func (rg *ReportGenerator) printSamples(samples []errors.RowIssue, writer io.Writer) {
	for i, issue := range samples {
		fmt.Fprintf(writer, "  %s\n", issue.String())

		// Limit output for very long lists
		if i >= 19 && len(samples) > 20 {
			fmt.Fprintf(writer, "  ... and %d more\n", len(samples)-20)
			break
		}
	}
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}

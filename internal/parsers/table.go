package parsers

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"golang-compliance-analytics/internal/models"
	"golang-compliance-analytics/pkg/errors"
	"golang-compliance-analytics/pkg/logger"
)

// TableParser reads one input file into a models.RawTable
type TableParser struct {
	*BaseParser
}

// NewTableParser creates a parser after validating config
func NewTableParser(config *ParseConfig) (*TableParser, error) {
	if config == nil {
		config = DefaultParseConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "parser", config.Format, err)
	}
	return &TableParser{BaseParser: NewBaseParser(config)}, nil
}

// ReadTable reads filePath according to the configured layout. The returned
// header is the one found in the file; rows keep their original text.
func (tp *TableParser) ReadTable(ctx context.Context, filePath string, spec *TableSpec) (*models.RawTable, *ParseStats, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	log := tp.logger.WithFields(logger.Fields{
		"file_path": filePath,
		"dataset":   spec.Dataset,
		"format":    tp.config.Format,
	})
	log.Info("Reading input table")

	in, err := tp.OpenFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer in.Close()

	var (
		table *models.RawTable
		stats *ParseStats
	)
	switch tp.config.Format {
	case FormatFixed:
		table, stats, err = tp.readFixed(ctx, in, spec)
	default:
		table, stats, err = tp.readCSV(ctx, in, spec)
	}
	if err != nil {
		if pe, ok := errors.AsPipelineError(err); ok {
			pe.WithContext("file_path", filePath)
		}
		return nil, stats, err
	}

	log.WithFields(logger.Fields{
		"rows":   len(table.Rows),
		"errors": stats.ErrorCount,
	}).Info("Input table read")
	return table, stats, nil
}

func (tp *TableParser) readCSV(ctx context.Context, in io.Reader, spec *TableSpec) (*models.RawTable, *ParseStats, error) {
	stats := NewParseStats()
	reader := csv.NewReader(in)
	reader.Comma = tp.config.Delimiter
	reader.Comment = tp.config.Comment
	reader.TrimLeadingSpace = tp.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, stats, errors.SchemaError(errors.CodeSchemaViolation, spec.Dataset, "file is empty, header row expected", nil)
		}
		return nil, stats, errors.SchemaError(errors.CodeSchemaViolation, spec.Dataset, "unreadable header row", err)
	}
	stats.TotalLines++

	table := &models.RawTable{Dataset: spec.Dataset, Header: cleanHeader(header)}
	for {
		if isCancelled(ctx) {
			return nil, stats, errors.PipelineStageError(errors.CodeStageFailed, "raw", ctx.Err())
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		stats.TotalLines++
		if err != nil {
			line := 0
			if csvErr, ok := err.(*csv.ParseError); ok {
				line = csvErr.StartLine
			}
			stats.AddError(&ParseError{Line: line, Field: "record", Message: "malformed CSV record", Err: err})
			continue
		}
		line, _ := reader.FieldPos(0)
		if tp.config.SkipEmptyRows && isEmptyRecord(record) {
			stats.SkippedEmpty++
			continue
		}
		if field, ok := tp.oversizedField(record); ok {
			stats.AddError(&ParseError{Line: line, Field: field, Message: "field exceeds maximum size"})
			continue
		}

		table.Rows = append(table.Rows, models.RawRow{Line: line, Values: record})
		stats.RecordsParsed++
	}
	return table, stats, nil
}

func (tp *TableParser) readFixed(ctx context.Context, in io.Reader, spec *TableSpec) (*models.RawTable, *ParseStats, error) {
	stats := NewParseStats()
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), tp.maxLineSize())

	lineNum := 0
	var table *models.RawTable
	for scanner.Scan() {
		if isCancelled(ctx) {
			return nil, stats, errors.PipelineStageError(errors.CodeStageFailed, "raw", ctx.Err())
		}
		lineNum++
		stats.TotalLines++
		line := strings.TrimRight(scanner.Text(), "\r")

		if table == nil {
			header := strings.Fields(line)
			if len(header) == 0 {
				stats.SkippedEmpty++
				continue
			}
			table = &models.RawTable{Dataset: spec.Dataset, Header: cleanHeader(header)}
			continue
		}

		if strings.TrimSpace(line) == "" {
			stats.SkippedEmpty++
			continue
		}

		values := splitFixed(line, spec, table.Header)
		table.Rows = append(table.Rows, models.RawRow{Line: lineNum, Values: values})
		stats.RecordsParsed++
	}
	if err := scanner.Err(); err != nil {
		return nil, stats, errors.Wrap(err, errors.CategoryFile, errors.CodeFileRead,
			fmt.Sprintf("failed reading %s near line %d", spec.Dataset, lineNum+1))
	}
	if table == nil {
		return nil, stats, errors.SchemaError(errors.CodeSchemaViolation, spec.Dataset, "file is empty, header row expected", nil)
	}
	return table, stats, nil
}

func (tp *TableParser) maxLineSize() int {
	if tp.config.MaxFieldSize > 0 {
		return tp.config.MaxFieldSize * 16
	}
	return 16 << 20
}

func (tp *TableParser) oversizedField(record []string) (string, bool) {
	if tp.config.MaxFieldSize <= 0 {
		return "", false
	}
	for i, field := range record {
		if len(field) > tp.config.MaxFieldSize {
			return fmt.Sprintf("field_%d", i), true
		}
	}
	return "", false
}

// cleanHeader removes whitespace and a leading byte order mark
func cleanHeader(headers []string) []string {
	cleaned := make([]string, len(headers))
	for i, header := range headers {
		cleaned[i] = strings.TrimSpace(strings.TrimPrefix(header, "\ufeff"))
	}
	return cleaned
}

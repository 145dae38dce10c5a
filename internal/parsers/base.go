// Package parsers reads the CLIENTES, PRODUCTOS and TRANSACCIONES extracts
// into string-typed tables.
//
// Two layouts are supported: delimited CSV with a header row, and the fixed
// whitespace-separated layout of the legacy core-banking extract, where
// values may be single-quoted and trailing fields may be missing. Files may
// be UTF-8 or ISO-8859-1.
//
// Parsing does not coerce types. Values are kept exactly as found (quotes
// included) so the raw artifact is a faithful copy of the input; cleaning
// happens in the intermediate stage.
//
// Example usage:
//
//	parser, err := parsers.NewTableParser(parsers.DefaultParseConfig())
//	table, stats, err := parser.ReadTable(ctx, "clientes.csv", parsers.CustomersSpec())
package parsers

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"golang-compliance-analytics/pkg/errors"
	"golang-compliance-analytics/pkg/logger"
)

// ParseError represents a line that could not be split into fields
type ParseError struct {
	Line    int
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error at line %d (%s='%s'): %s: %v",
			e.Line, e.Field, e.Value, e.Message, e.Err)
	}
	return fmt.Sprintf("parse error at line %d (%s='%s'): %s",
		e.Line, e.Field, e.Value, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// BaseParser provides the file handling shared by both layouts
type BaseParser struct {
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser with the given configuration
func NewBaseParser(config *ParseConfig) *BaseParser {
	if config == nil {
		config = DefaultParseConfig()
	}

	log := logger.GetGlobalLogger().WithComponent("base_parser")
	log.WithFields(logger.Fields{
		"format":            config.Format,
		"encoding":          config.Encoding,
		"delimiter":         string(config.Delimiter),
		"validate_encoding": config.ValidateEncoding,
	}).Debug("Created base parser")

	return &BaseParser{
		config: config,
		logger: log,
	}
}

// OpenFile opens path and returns a reader that yields UTF-8 text
func (bp *BaseParser) OpenFile(filePath string) (io.ReadCloser, error) {
	bp.logger.WithField("file_path", filePath).Debug("Opening input file")

	file, err := os.Open(filePath)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", filePath).Error("Failed to open input file")

		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, filePath, err)
		}
		return nil, errors.FileError(errors.CodeFileRead, filePath, err)
	}

	if bp.config.Encoding == EncodingLatin1 {
		return &decodedFile{
			Reader: transform.NewReader(file, charmap.ISO8859_1.NewDecoder()),
			file:   file,
		}, nil
	}

	if bp.config.ValidateEncoding {
		if err := bp.validateEncoding(file, filePath); err != nil {
			file.Close()
			bp.logger.WithError(err).WithField("file_path", filePath).Error("File encoding validation failed")
			return nil, err
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			file.Close()
			return nil, errors.FileError(errors.CodeFileRead, filePath, err)
		}
	}

	return file, nil
}

type decodedFile struct {
	io.Reader
	file *os.File
}

func (d *decodedFile) Close() error {
	return d.file.Close()
}

// validateEncoding checks that the whole file is valid UTF-8
func (bp *BaseParser) validateEncoding(file *os.File, filePath string) error {
	reader := bufio.NewReader(file)
	lineNum := 0
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			lineNum++
			if !utf8.Valid(line) {
				return errors.FileError(errors.CodeEncodingError, filePath,
					fmt.Errorf("invalid UTF-8 at line %d", lineNum)).
					WithContext("line", lineNum)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.FileError(errors.CodeFileRead, filePath, err)
		}
	}
}

// isCancelled checks if ctx has been cancelled
func isCancelled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// isEmptyRecord checks if all fields in a record are empty or whitespace
func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	TotalLines    int
	RecordsParsed int
	SkippedEmpty  int
	ErrorCount    int
	Errors        []*ParseError
}

// NewParseStats creates a new ParseStats instance
func NewParseStats() *ParseStats {
	return &ParseStats{
		Errors: make([]*ParseError, 0),
	}
}

// AddError adds an error to the parsing statistics
func (ps *ParseStats) AddError(err *ParseError) {
	ps.Errors = append(ps.Errors, err)
	ps.ErrorCount++
}

// HasErrors returns true if there were any parsing errors
func (ps *ParseStats) HasErrors() bool {
	return ps.ErrorCount > 0
}

// String returns a human-readable summary of parsing statistics
func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d records, %d empty, %d errors",
		ps.TotalLines, ps.RecordsParsed, ps.SkippedEmpty, ps.ErrorCount)
}

// GetSampleErrors returns a sample of the parsing errors for logging/debugging
func (ps *ParseStats) GetSampleErrors(maxSamples int) []string {
	if len(ps.Errors) == 0 {
		return nil
	}

	limit := len(ps.Errors)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}

	samples := make([]string, 0, limit)
	for i := 0; i < limit; i++ {
		samples = append(samples, ps.Errors[i].Error())
	}
	return samples
}

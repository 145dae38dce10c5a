package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryFile          ErrorCategory = "file"
	CategorySchema        ErrorCategory = "schema"
	CategoryDataQuality   ErrorCategory = "data_quality"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryPipeline      ErrorCategory = "pipeline"
	CategoryInternal      ErrorCategory = "internal"
)

// ErrorCode represents specific error codes within categories
type ErrorCode string

const (
	// File errors
	CodeFileNotFound   ErrorCode = "file_not_found"
	CodeFileRead       ErrorCode = "file_read_error"
	CodeFileWrite      ErrorCode = "file_write_error"
	CodeEncodingError  ErrorCode = "encoding_error"
	CodeDirectoryError ErrorCode = "directory_error"

	// Schema errors
	CodeSchemaViolation ErrorCode = "schema_violation"
	CodeMissingColumn   ErrorCode = "missing_column"
	CodeAllRowsRejected ErrorCode = "all_rows_rejected"

	// Data quality conditions, recoverable at row level
	CodeUnknownCountryCode ErrorCode = "unknown_country_code"
	CodeOrphanReference    ErrorCode = "orphan_reference"
	CodeDivisionUndefined  ErrorCode = "division_undefined"
	CodeInvalidValue       ErrorCode = "invalid_value"

	// Configuration errors
	CodeInvalidConfig ErrorCode = "invalid_config"
	CodeInvalidStage  ErrorCode = "invalid_stage"

	// Pipeline errors
	CodeStageFailed     ErrorCode = "stage_failed"
	CodePartialResult   ErrorCode = "partial_result"
	CodeArtifactMissing ErrorCode = "artifact_missing"

	// Internal errors
	CodeUnexpectedError ErrorCode = "unexpected_error"
)

// PipelineError is the base error type for all application errors
type PipelineError struct {
	Category   ErrorCategory     `json:"category"`
	Code       ErrorCode         `json:"code"`
	Message    string            `json:"message"`
	Suggestion string            `json:"suggestion,omitempty"`
	Context    Context           `json:"context,omitempty"`
	Cause      error             `json:"-"`
	StackTrace errors.StackTrace `json:"-"`
}

// Context provides additional information about the error
type Context map[string]interface{}

// Error implements the error interface
func (e *PipelineError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (suggestion: %s)", e.Message, e.Suggestion)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// GetExitCode returns an appropriate exit code for the error
func (e *PipelineError) GetExitCode() int {
	switch e.Category {
	case CategoryFile:
		return 2
	case CategorySchema:
		return 3
	case CategoryConfiguration:
		return 4
	case CategoryPipeline:
		return 5
	case CategoryDataQuality:
		return 6
	default:
		return 1
	}
}

// Is matches on category and code so sentinel values work with errors.Is.
func (e *PipelineError) Is(target error) bool {
	t, ok := target.(*PipelineError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithContext adds context information to the error
func (e *PipelineError) WithContext(key string, value interface{}) *PipelineError {
	if e.Context == nil {
		e.Context = make(Context)
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for fixing the error
func (e *PipelineError) WithSuggestion(suggestion string) *PipelineError {
	e.Suggestion = suggestion
	return e
}

// New creates a new PipelineError
func New(category ErrorCategory, code ErrorCode, message string) *PipelineError {
	return &PipelineError{
		Category:   category,
		Code:       code,
		Message:    message,
		StackTrace: errors.New("").(stackTracer).StackTrace(),
	}
}

// Wrap wraps an existing error with PipelineError context
func Wrap(err error, category ErrorCategory, code ErrorCode, message string) *PipelineError {
	if err == nil {
		return nil
	}

	return &PipelineError{
		Category:   category,
		Code:       code,
		Message:    message,
		Cause:      err,
		StackTrace: errors.WithStack(err).(stackTracer).StackTrace(),
	}
}

// stackTracer interface for extracting stack traces
type stackTracer interface {
	StackTrace() errors.StackTrace
}

func build(category ErrorCategory, code ErrorCode, message string, err error) *PipelineError {
	if err != nil {
		return Wrap(err, category, code, message)
	}
	return New(category, code, message)
}

// FileError creates a file-related error
func FileError(code ErrorCode, path string, err error) *PipelineError {
	var message string
	var suggestion string

	switch code {
	case CodeFileNotFound:
		message = fmt.Sprintf("file not found: %s", path)
		suggestion = "check if the file path is correct and the file exists"
	case CodeFileRead:
		message = fmt.Sprintf("failed to read file: %s", path)
		suggestion = "check file permissions and ensure you have read access"
	case CodeFileWrite:
		message = fmt.Sprintf("failed to write file: %s", path)
		suggestion = "check that the output directory exists and is writable"
	case CodeEncodingError:
		message = fmt.Sprintf("file is not valid in the configured encoding: %s", path)
		suggestion = "set --encoding latin1 for ISO-8859-1 extracts or re-export the file as UTF-8"
	case CodeDirectoryError:
		message = fmt.Sprintf("directory error: %s", path)
		suggestion = "ensure the directory exists and is accessible"
	default:
		message = fmt.Sprintf("file error: %s", path)
		suggestion = "check the file and try again"
	}

	return build(CategoryFile, code, message, err).
		WithSuggestion(suggestion).
		WithContext("file_path", path)
}

// SchemaError creates an error for input that does not honor the column contract.
// Schema errors abort the stage that raised them.
func SchemaError(code ErrorCode, dataset string, detail string, err error) *PipelineError {
	var message string
	var suggestion string

	switch code {
	case CodeMissingColumn:
		message = fmt.Sprintf("missing required column(s) in %s: %s", dataset, detail)
		suggestion = "verify the extract header matches the documented columns"
	case CodeAllRowsRejected:
		message = fmt.Sprintf("every row of %s was rejected: %s", dataset, detail)
		suggestion = "the upstream extract layout probably changed; inspect a sample of raw rows"
	default:
		message = fmt.Sprintf("schema violation in %s: %s", dataset, detail)
		suggestion = "check column names and value types in the input"
	}

	return build(CategorySchema, code, message, err).
		WithSuggestion(suggestion).
		WithContext("dataset", dataset)
}

// DataQualityError describes a recoverable row-level condition.
func DataQualityError(code ErrorCode, field string, value interface{}) *PipelineError {
	var message string

	switch code {
	case CodeUnknownCountryCode:
		message = fmt.Sprintf("unknown country code in '%s': %v", field, value)
	case CodeOrphanReference:
		message = fmt.Sprintf("reference to unknown account in '%s': %v", field, value)
	case CodeDivisionUndefined:
		message = fmt.Sprintf("zero denominator computing '%s'", field)
	default:
		message = fmt.Sprintf("invalid value in '%s': %v", field, value)
	}

	return New(CategoryDataQuality, code, message).
		WithContext("field", field).
		WithContext("value", value)
}

// ConfigurationError creates a configuration-related error
func ConfigurationError(code ErrorCode, setting string, value interface{}, err error) *PipelineError {
	var message string
	var suggestion string

	switch code {
	case CodeInvalidStage:
		message = fmt.Sprintf("unknown stage '%v'", value)
		suggestion = "use one of raw, intermediate, primary, feature_engineering, anomaly_detection, time_series, all"
	case CodeInvalidConfig:
		message = fmt.Sprintf("invalid configuration for '%s': %v", setting, value)
		suggestion = "check the configuration documentation for valid values"
	default:
		message = fmt.Sprintf("configuration error: %s", setting)
		suggestion = "check your configuration and try again"
	}

	return build(CategoryConfiguration, code, message, err).
		WithSuggestion(suggestion).
		WithContext("setting", setting).
		WithContext("value", value)
}

// PipelineStageError creates an error raised while running a stage
func PipelineStageError(code ErrorCode, stage string, err error) *PipelineError {
	var message string
	var suggestion string

	switch code {
	case CodePartialResult:
		message = fmt.Sprintf("stage %s was cancelled before all groups completed", stage)
		suggestion = "increase --timeout or rerun the stage; completed groups were written"
	case CodeArtifactMissing:
		message = fmt.Sprintf("input artifact for stage %s not found", stage)
		suggestion = "run the preceding stage first or point --work-dir at its output"
	default:
		message = fmt.Sprintf("stage %s failed", stage)
		suggestion = "review the logs for the failing step"
	}

	return build(CategoryPipeline, code, message, err).
		WithSuggestion(suggestion).
		WithContext("stage", stage)
}

// InternalError creates an internal error
func InternalError(code ErrorCode, operation string, err error) *PipelineError {
	message := fmt.Sprintf("unexpected error during %s", operation)
	return build(CategoryInternal, code, message, err).
		WithSuggestion("this is likely a bug - please report it with the error details").
		WithContext("operation", operation)
}

// AsPipelineError extracts a PipelineError from an error chain
func AsPipelineError(err error) (*PipelineError, bool) {
	var pipelineErr *PipelineError
	if errors.As(err, &pipelineErr) {
		return pipelineErr, true
	}
	return nil, false
}

// GetExitCode maps any error to a process exit code: 0 for nil, the category
// code for a PipelineError, and 1 otherwise.
func GetExitCode(err error) int {
	if err == nil {
		return 0
	}
	if pipelineErr, ok := AsPipelineError(err); ok {
		return pipelineErr.GetExitCode()
	}
	return 1
}

// WrapIfNeeded wraps an error if it's not already a PipelineError
func WrapIfNeeded(err error, category ErrorCategory, code ErrorCode, message string) *PipelineError {
	if err == nil {
		return nil
	}

	if pipelineErr, ok := AsPipelineError(err); ok {
		return pipelineErr
	}

	return Wrap(err, category, code, message)
}

// HasCode reports whether any PipelineError in the chain carries code.
func HasCode(err error, code ErrorCode) bool {
	pe, ok := AsPipelineError(err)
	return ok && pe.Code == code
}

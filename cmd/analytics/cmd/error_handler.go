package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/viper"

	"golang-compliance-analytics/pkg/errors"
	"golang-compliance-analytics/pkg/logger"
)

// CLIErrorHandler provides user-friendly error handling for CLI operations
type CLIErrorHandler struct {
	logger  logger.Logger
	verbose bool
	out     io.Writer
}

// NewCLIErrorHandler creates a new CLI error handler
func NewCLIErrorHandler() *CLIErrorHandler {
	return &CLIErrorHandler{
		logger:  logger.GetGlobalLogger().WithComponent("cli"),
		verbose: viper.GetBool("verbose"),
		out:     os.Stderr,
	}
}

// HandleError prints err for the operator and returns the exit code
func (h *CLIErrorHandler) HandleError(err error) int {
	if err == nil {
		return 0
	}

	// Log the error
	h.logger.WithError(err).Error("Command failed")

	if pipelineErr, ok := errors.AsPipelineError(err); ok {
		return h.handlePipelineError(pipelineErr)
	}

	// Handle other error types
	return h.handleGenericError(err)
}

// handlePipelineError handles PipelineError with detailed context
func (h *CLIErrorHandler) handlePipelineError(err *errors.PipelineError) int {
	// Partial results are written; the summary already explains them
	if err.Code == errors.CodePartialResult {
		fmt.Fprintf(h.out, "Warning: %s\n", err.Message)
		fmt.Fprintf(h.out, "Completed groups were written. Re-run the stage to produce a complete result.\n")
		return err.GetExitCode()
	}

	fmt.Fprintf(h.out, "Error: %s\n", err.Message)

	if len(err.Context) > 0 {
		keys := make([]string, 0, len(err.Context))
		for key := range err.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		fmt.Fprintf(h.out, "\nContext:\n")
		for _, key := range keys {
			fmt.Fprintf(h.out, "  %s: %v\n", key, err.Context[key])
		}
	}

	if err.Suggestion != "" {
		fmt.Fprintf(h.out, "\nSuggestion: %s\n", err.Suggestion)
	}

	fmt.Fprintf(h.out, "\n%s\n", h.getCategoryHelp(err.Category))

	// Show underlying error in verbose mode
	if h.verbose && err.Cause != nil {
		fmt.Fprintf(h.out, "\nUnderlying error: %v\n", err.Cause)
	}

	return err.GetExitCode()
}

// handleGenericError handles errors that are not PipelineErrors, mostly
// cobra argument errors
func (h *CLIErrorHandler) handleGenericError(err error) int {
	if h.isFileNotFoundError(err) {
		fmt.Fprintf(h.out, "Error: File not found\n")
		fmt.Fprintf(h.out, "Suggestion: Check if the file path is correct and the file exists\n")
		return 2
	}

	if h.isPermissionError(err) {
		fmt.Fprintf(h.out, "Error: Permission denied\n")
		fmt.Fprintf(h.out, "Suggestion: Check file permissions and ensure you have read access\n")
		return 2
	}

	if h.isDiskFullError(err) {
		fmt.Fprintf(h.out, "Error: Insufficient disk space\n")
		fmt.Fprintf(h.out, "Suggestion: Free up disk space and try again\n")
		return 2
	}

	fmt.Fprintf(h.out, "Error: %v\n", err)
	if h.isUsageError(err) {
		fmt.Fprintf(h.out, "Run 'analytics run --help' for usage.\n")
		return 4
	}
	return 1
}

// getCategoryHelp returns category-specific help text
func (h *CLIErrorHandler) getCategoryHelp(category errors.ErrorCategory) string {
	switch category {
	case errors.CategoryFile:
		return `File error help:
• Check if the file exists and is readable
• Verify the path passed to --customers, --products or --transactions
• Set --encoding latin1 for ISO-8859-1 extracts
• Ensure the work and output directories are writable`

	case errors.CategorySchema:
		return `Schema error help:
• Check the header row against the expected column names
• Verify --delimiter and --input-format match the extract
• Ensure at least one row of the file is valid`

	case errors.CategoryConfiguration:
		return `Configuration error help:
• Check your command-line flags and arguments
• Verify configuration file syntax if using --config
• Check ANALYTICS_ environment variables
• Use 'analytics run --help' to see all available options`

	case errors.CategoryPipeline:
		return `Pipeline error help:
• Run the earlier stages first, or use 'analytics run all'
• Check that --work-dir points at the directory used by the previous stage
• Artifacts of earlier stages are left intact and can be reused`

	default:
		return `For more help:
• Use 'analytics --help' for general help
• Use 'analytics run --help' for command-specific help
• Run again with --verbose for more detail`
	}
}

// Error detection helpers

func (h *CLIErrorHandler) isFileNotFoundError(err error) bool {
	return os.IsNotExist(err) || strings.Contains(err.Error(), "no such file or directory")
}

func (h *CLIErrorHandler) isPermissionError(err error) bool {
	return os.IsPermission(err) ||
		strings.Contains(err.Error(), "permission denied") ||
		strings.Contains(err.Error(), "access denied")
}

func (h *CLIErrorHandler) isDiskFullError(err error) bool {
	if err == syscall.ENOSPC {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "no space left") ||
		strings.Contains(errStr, "disk full") ||
		strings.Contains(errStr, "device full")
}

func (h *CLIErrorHandler) isUsageError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "unknown flag") ||
		strings.Contains(msg, "unknown command") ||
		strings.Contains(msg, "accepts ") ||
		strings.Contains(msg, "invalid argument")
}

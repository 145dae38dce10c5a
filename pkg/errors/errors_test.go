package errors

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestPipelineError(t *testing.T) {
	tests := []struct {
		name       string
		category   ErrorCategory
		code       ErrorCode
		message    string
		cause      error
		expectCode int
	}{
		{
			name:       "file error",
			category:   CategoryFile,
			code:       CodeFileNotFound,
			message:    "file not found",
			cause:      errors.New("no such file"),
			expectCode: 2,
		},
		{
			name:       "schema error",
			category:   CategorySchema,
			code:       CodeMissingColumn,
			message:    "missing column",
			cause:      nil,
			expectCode: 3,
		},
		{
			name:       "configuration error",
			category:   CategoryConfiguration,
			code:       CodeInvalidConfig,
			message:    "invalid config",
			cause:      errors.New("missing field"),
			expectCode: 4,
		},
		{
			name:       "pipeline error",
			category:   CategoryPipeline,
			code:       CodePartialResult,
			message:    "partial",
			expectCode: 5,
		},
		{
			name:       "internal error",
			category:   CategoryInternal,
			code:       CodeUnexpectedError,
			message:    "boom",
			expectCode: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err *PipelineError
			if tt.cause != nil {
				err = Wrap(tt.cause, tt.category, tt.code, tt.message)
			} else {
				err = New(tt.category, tt.code, tt.message)
			}

			if err.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, err.Category)
			}
			if err.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, err.Code)
			}
			if err.GetExitCode() != tt.expectCode {
				t.Errorf("expected exit code %d, got %d", tt.expectCode, err.GetExitCode())
			}
			if err.Error() != tt.message {
				t.Errorf("expected error string %s, got %s", tt.message, err.Error())
			}
			if tt.cause != nil && err.Unwrap() != tt.cause {
				t.Errorf("expected to unwrap to %v, got %v", tt.cause, err.Unwrap())
			}
			if len(err.StackTrace) == 0 {
				t.Error("expected a captured stack trace")
			}
		})
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, CategoryFile, CodeFileRead, "x") != nil {
		t.Error("wrapping nil should return nil")
	}
}

func TestSchemaError(t *testing.T) {
	err := SchemaError(CodeMissingColumn, "TRANSACCIONES", "MONTO", nil)

	if err.Category != CategorySchema {
		t.Errorf("expected schema category, got %s", err.Category)
	}
	if !strings.Contains(err.Message, "MONTO") {
		t.Errorf("expected message to name the column, got %s", err.Message)
	}
	if err.Context["dataset"] != "TRANSACCIONES" {
		t.Errorf("expected dataset context, got %v", err.Context["dataset"])
	}
	if err.Suggestion == "" {
		t.Error("expected a suggestion")
	}
}

func TestErrorsIsAndAs(t *testing.T) {
	base := PipelineStageError(CodePartialResult, "feature_engineering", nil)
	wrapped := fmt.Errorf("running: %w", base)

	if !errors.Is(wrapped, &PipelineError{Category: CategoryPipeline, Code: CodePartialResult}) {
		t.Error("expected errors.Is to match on category and code")
	}
	if errors.Is(wrapped, &PipelineError{Category: CategoryPipeline, Code: CodeStageFailed}) {
		t.Error("did not expect a match for a different code")
	}

	pe, ok := AsPipelineError(wrapped)
	if !ok || pe != base {
		t.Fatal("expected AsPipelineError to find the wrapped error")
	}
	if !HasCode(wrapped, CodePartialResult) {
		t.Error("expected HasCode to report partial_result")
	}
}

func TestWrapIfNeeded(t *testing.T) {
	original := ConfigurationError(CodeInvalidStage, "stage", "bogus", nil)
	if got := WrapIfNeeded(original, CategoryInternal, CodeUnexpectedError, "x"); got != original {
		t.Error("expected an existing PipelineError to be returned unchanged")
	}

	plain := errors.New("plain")
	got := WrapIfNeeded(plain, CategoryInternal, CodeUnexpectedError, "wrapped")
	if got.Category != CategoryInternal || got.Cause != plain {
		t.Errorf("unexpected wrap result: %+v", got)
	}
}

func TestRowIssueCollector(t *testing.T) {
	c := NewRowIssueCollector(2)
	for i := 1; i <= 5; i++ {
		c.Add(RowIssue{Dataset: "TRANSACCIONES", Line: i, Column: "MONTO", Value: "-1", Condition: ConditionNegativeAmount})
	}
	c.AddCount(ConditionDuplicate, 3)
	c.AddCount(ConditionDuplicate, 0)

	if c.Count(ConditionNegativeAmount) != 5 {
		t.Errorf("expected 5 negative amounts, got %d", c.Count(ConditionNegativeAmount))
	}
	if len(c.Samples(ConditionNegativeAmount)) != 2 {
		t.Errorf("expected samples capped at 2, got %d", len(c.Samples(ConditionNegativeAmount)))
	}
	if c.Total() != 8 {
		t.Errorf("expected total 8, got %d", c.Total())
	}

	other := NewRowIssueCollector(2)
	other.Add(RowIssue{Dataset: "PRODUCTOS", Condition: ConditionOrphanProduct})
	c.Merge(other)
	if c.Count(ConditionOrphanProduct) != 1 {
		t.Error("expected merged orphan count")
	}

	out := FormatRowIssues(c)
	if !strings.Contains(out, "negative_amount: 5") || !strings.Contains(out, "TRANSACCIONES:1") {
		t.Errorf("unexpected formatted output:\n%s", out)
	}
}

func TestRowIssueCollectorConcurrent(t *testing.T) {
	c := NewRowIssueCollector(1)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Add(RowIssue{Condition: ConditionUnknownCountry})
			}
		}()
	}
	wg.Wait()

	if c.Count(ConditionUnknownCountry) != 800 {
		t.Errorf("expected 800, got %d", c.Count(ConditionUnknownCountry))
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"plain", fmt.Errorf("boom"), 1},
		{"schema", SchemaError(CodeMissingColumn, "CLIENTES", "CODIGO", nil), 3},
		{"wrapped partial", fmt.Errorf("stage: %w", PipelineStageError(CodePartialResult, "time_series", nil)), 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetExitCode(tt.err); got != tt.want {
				t.Errorf("GetExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

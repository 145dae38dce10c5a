package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newBufferLogger(t *testing.T) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	log, err := NewLogger(&Config{
		Level:            DebugLevel,
		Format:           JSONFormat,
		Output:           StderrOutput,
		DisableTimestamp: true,
		Writer:           &buf,
	})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	return log, &buf
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"default", *DefaultConfig(), false},
		{"production", *ProductionConfig(), false},
		{"bad level", Config{Level: "loud", Format: TextFormat, Output: StderrOutput}, true},
		{"bad format", Config{Level: InfoLevel, Format: "xml", Output: StderrOutput}, true},
		{"file without path", Config{Level: InfoLevel, Format: TextFormat, Output: FileOutput}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWithFieldsPersist(t *testing.T) {
	log, buf := newBufferLogger(t)

	log.WithComponent("features").WithField("run_id", "abc").Info("hello")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if entry["component"] != "features" {
		t.Errorf("expected component field, got %v", entry["component"])
	}
	if entry["run_id"] != "abc" {
		t.Errorf("expected run_id field, got %v", entry["run_id"])
	}
	if entry["msg"] != "hello" {
		t.Errorf("expected msg hello, got %v", entry["msg"])
	}
}

func TestTimedOperation(t *testing.T) {
	log, buf := newBufferLogger(t)

	err := TimedOperation("load", log, func() error { return errors.New("nope") })
	if err == nil || err.Error() != "nope" {
		t.Fatalf("expected the function error to be returned, got %v", err)
	}
	if !strings.Contains(buf.String(), `"status":"error"`) {
		t.Errorf("expected an error status line, got %s", buf.String())
	}
}

func TestProgressTracker(t *testing.T) {
	var seen []ProgressStats
	tracker := NewProgressTracker(ProgressConfig{
		Operation: "groups",
		Total:     4,
		Logger:    Discard(),
		OnUpdate:  func(s ProgressStats) { seen = append(seen, s) },
	})

	for i := 0; i < 4; i++ {
		tracker.Increment()
	}
	tracker.Complete()

	stats := tracker.GetStats()
	if stats.Current != 4 || stats.Percentage != 100 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if len(seen) != 4 || seen[1].Current != 2 {
		t.Errorf("expected one callback per increment, got %d", len(seen))
	}
	if !strings.Contains(stats.String(), "groups: 4/4") {
		t.Errorf("unexpected String(): %s", stats.String())
	}
}

func TestProgressTrackerSkip(t *testing.T) {
	tracker := NewProgressTracker(ProgressConfig{Operation: "time_series", Total: 5, Logger: Discard()})
	tracker.Increment()
	tracker.Increment()
	tracker.Skip(3)
	tracker.Skip(0)

	stats := tracker.GetStats()
	if stats.Current != 2 || stats.Skipped != 3 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if !strings.Contains(stats.String(), "3 skipped") {
		t.Errorf("unexpected String(): %s", stats.String())
	}
}

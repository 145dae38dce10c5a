package pipeline

import (
	"sort"
	"time"

	"golang-compliance-analytics/internal/groups"
	"golang-compliance-analytics/pkg/errors"
)

// StageStatus is the final state of a stage
type StageStatus string

const (
	StatusSuccess StageStatus = "SUCCESS"
	StatusPartial StageStatus = "PARTIAL"
	StatusFailed  StageStatus = "FAILED"
)

// StageResult reports one executed stage
type StageResult struct {
	Stage     Stage                    `json:"stage"`
	Status    StageStatus              `json:"status"`
	Duration  time.Duration            `json:"duration"`
	Rows      int                      `json:"rows"`
	Issues    map[errors.Condition]int `json:"issues,omitempty"`
	Sentinels map[string]int           `json:"sentinels,omitempty"`
	Rejected  int                      `json:"rejected,omitempty"`
	Orphans   int                      `json:"orphans,omitempty"`
	Groups    *groups.Outcome          `json:"groups,omitempty"`
	Details   interface{}              `json:"details,omitempty"`
	Error     string                   `json:"error,omitempty"`
}

// RunSummary is printed at the end of every invocation. It is the only
// place run IDs and timings appear.
type RunSummary struct {
	RunID      string        `json:"run_id"`
	Requested  Stage         `json:"requested_stage"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`
	Stages     []StageResult `json:"stages"`

	Issues    map[errors.Condition]int `json:"issues"`
	Samples   []errors.RowIssue        `json:"samples,omitempty"`
	Sentinels map[string]int           `json:"sentinels"`
	Rejected  int                      `json:"rejected_transactions"`
	Orphans   int                      `json:"orphan_transactions"`
	Partial   bool                     `json:"partial"`
	Failed    bool                     `json:"failed"`
}

func newRunSummary(runID string, requested Stage) *RunSummary {
	return &RunSummary{
		RunID:     runID,
		Requested: requested,
		StartedAt: time.Now(),
		Issues:    make(map[errors.Condition]int),
		Sentinels: make(map[string]int),
	}
}

func (s *RunSummary) add(result StageResult) {
	s.Stages = append(s.Stages, result)
	for k, v := range result.Issues {
		s.Issues[k] += v
	}
	for k, v := range result.Sentinels {
		s.Sentinels[k] += v
	}
	s.Rejected += result.Rejected
	s.Orphans += result.Orphans
	switch result.Status {
	case StatusPartial:
		s.Partial = true
	case StatusFailed:
		s.Failed = true
	}
}

func (s *RunSummary) finish(issues *errors.RowIssueCollector) {
	s.FinishedAt = time.Now()
	s.Duration = s.FinishedAt.Sub(s.StartedAt)
	if issues == nil {
		return
	}
	conditions := make([]string, 0, len(s.Issues))
	for c := range s.Issues {
		conditions = append(conditions, string(c))
	}
	sort.Strings(conditions)
	for _, c := range conditions {
		s.Samples = append(s.Samples, issues.Samples(errors.Condition(c))...)
	}
}

// Status returns the overall run status
func (s *RunSummary) Status() StageStatus {
	switch {
	case s.Failed:
		return StatusFailed
	case s.Partial:
		return StatusPartial
	default:
		return StatusSuccess
	}
}

package errors

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Condition names a row-level recoverable condition counted in the run summary.
type Condition string

const (
	ConditionNullDate       Condition = "null_date"
	ConditionInvalidAmount  Condition = "invalid_amount"
	ConditionNegativeAmount Condition = "negative_amount"
	ConditionMissingCountry Condition = "missing_country"
	ConditionUnknownCountry Condition = "unknown_country"
	ConditionDuplicate      Condition = "duplicate"
	ConditionOrphanTrx      Condition = "orphan_transaction"
	ConditionOrphanProduct  Condition = "orphan_product"
	ConditionMalformedRow   Condition = "malformed_row"
	ConditionImputedDate    Condition = "imputed_update_date"
	ConditionUnclassified   Condition = "unclassified_direction"
)

// RowIssue is a single recoverable row-level condition.
type RowIssue struct {
	Dataset   string    `json:"dataset"`
	Line      int       `json:"line,omitempty"`
	Column    string    `json:"column,omitempty"`
	Value     string    `json:"value,omitempty"`
	Condition Condition `json:"condition"`
}

// String renders the issue the way it is shown in sample listings
func (r RowIssue) String() string {
	var b strings.Builder
	b.WriteString(r.Dataset)
	if r.Line > 0 {
		fmt.Fprintf(&b, ":%d", r.Line)
	}
	b.WriteString(" ")
	b.WriteString(string(r.Condition))
	if r.Column != "" {
		fmt.Fprintf(&b, " column '%s'", r.Column)
	}
	if r.Value != "" {
		fmt.Fprintf(&b, " value '%s'", r.Value)
	}
	return b.String()
}

// RowIssueCollector counts row-level conditions and keeps a bounded sample
// per condition. It is safe for concurrent use.
type RowIssueCollector struct {
	mu         sync.Mutex
	counts     map[Condition]int
	samples    map[Condition][]RowIssue
	maxSamples int
}

// NewRowIssueCollector creates a collector keeping up to maxSamples examples per condition
func NewRowIssueCollector(maxSamples int) *RowIssueCollector {
	if maxSamples < 0 {
		maxSamples = 0
	}
	return &RowIssueCollector{
		counts:     make(map[Condition]int),
		samples:    make(map[Condition][]RowIssue),
		maxSamples: maxSamples,
	}
}

// Add records an issue
func (c *RowIssueCollector) Add(issue RowIssue) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counts[issue.Condition]++
	if len(c.samples[issue.Condition]) < c.maxSamples {
		c.samples[issue.Condition] = append(c.samples[issue.Condition], issue)
	}
}

// AddCount records n occurrences of a condition without samples
func (c *RowIssueCollector) AddCount(condition Condition, n int) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	c.counts[condition] += n
	c.mu.Unlock()
}

// Count returns how many times condition was recorded
func (c *RowIssueCollector) Count(condition Condition) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[condition]
}

// Total returns the number of recorded issues across all conditions
func (c *RowIssueCollector) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.counts {
		total += n
	}
	return total
}

// Counts returns a copy of the per-condition counts
func (c *RowIssueCollector) Counts() map[Condition]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[Condition]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

// Samples returns the retained examples for a condition
func (c *RowIssueCollector) Samples(condition Condition) []RowIssue {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]RowIssue(nil), c.samples[condition]...)
}

// Merge folds another collector's counts and samples into c
func (c *RowIssueCollector) Merge(other *RowIssueCollector) {
	if other == nil || other == c {
		return
	}
	counts := other.Counts()
	other.mu.Lock()
	samples := make(map[Condition][]RowIssue, len(other.samples))
	for k, v := range other.samples {
		samples[k] = append([]RowIssue(nil), v...)
	}
	other.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range counts {
		c.counts[k] += v
	}
	for k, v := range samples {
		for _, s := range v {
			if len(c.samples[k]) >= c.maxSamples {
				break
			}
			c.samples[k] = append(c.samples[k], s)
		}
	}
}

// FormatRowIssues formats collected conditions in a user-friendly way
func FormatRowIssues(c *RowIssueCollector) string {
	counts := c.Counts()
	if len(counts) == 0 {
		return "No row-level issues"
	}

	conditions := make([]string, 0, len(counts))
	for k := range counts {
		conditions = append(conditions, string(k))
	}
	sort.Strings(conditions)

	var lines []string
	for _, name := range conditions {
		cond := Condition(name)
		lines = append(lines, fmt.Sprintf("%s: %d", name, counts[cond]))
		for _, s := range c.Samples(cond) {
			lines = append(lines, "  • "+s.String())
		}
	}
	return strings.Join(lines, "\n")
}

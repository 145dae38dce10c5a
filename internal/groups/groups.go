// Package groups runs independent per-key computations (accounts, corridors)
// on a bounded worker pool. Results go into pre-sized slots indexed by group
// order, so the output never depends on scheduling.
//
// Cancellation is honored between groups only: once the context is done no
// new group starts, groups already running finish, and the Outcome reports
// how many were skipped.
package groups

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"golang-compliance-analytics/pkg/errors"
	"golang-compliance-analytics/pkg/logger"
)

// Config controls the worker pool
type Config struct {
	Workers int `json:"workers" mapstructure:"workers"`
}

// DefaultConfig uses one worker per CPU
func DefaultConfig() *Config {
	return &Config{Workers: runtime.NumCPU()}
}

// Validate checks the worker count
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	return nil
}

// Outcome describes how a run over the groups ended.
type Outcome struct {
	Stage     string `json:"stage"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Skipped   int    `json:"skipped"`

	// Done marks which slots hold a finished result.
	Done []bool `json:"-"`
}

// Partial reports whether some groups never ran
func (o *Outcome) Partial() bool {
	return o != nil && o.Skipped > 0
}

// Err returns a PartialResult error when the run was cut short
func (o *Outcome) Err() error {
	if !o.Partial() {
		return nil
	}
	return errors.PipelineStageError(errors.CodePartialResult, o.Stage, nil).
		WithContext("groups_completed", o.Completed).
		WithContext("groups_skipped", o.Skipped)
}

// Runner executes group functions with a concurrency limit
type Runner struct {
	config *Config
	logger logger.Logger
}

// NewRunner creates a runner. A nil config uses DefaultConfig.
func NewRunner(config *Config, log logger.Logger) (*Runner, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "workers", config.Workers, err)
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Runner{config: config, logger: log.WithComponent("groups")}, nil
}

// Workers returns the concurrency limit
func (r *Runner) Workers() int {
	return r.config.Workers
}

// Run calls fn(i) for every i in [0, n). fn must only write to slot i of
// whatever output the caller pre-sized. The first error returned by fn stops
// new groups from starting and is returned as is. progress may be nil.
func (r *Runner) Run(ctx context.Context, stage string, n int, fn func(i int) error, progress *logger.ProgressTracker) (*Outcome, error) {
	outcome := &Outcome{Stage: stage, Total: n, Done: make([]bool, n)}
	if n == 0 {
		return outcome, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Workers)

	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			// Go may have waited for a free worker, so look again.
			if gctx.Err() != nil {
				return nil
			}
			if err := fn(i); err != nil {
				return err
			}
			outcome.Done[i] = true
			if progress != nil {
				progress.Increment()
			}
			return nil
		})
	}

	err := g.Wait()

	for _, done := range outcome.Done {
		if done {
			outcome.Completed++
		}
	}
	outcome.Skipped = n - outcome.Completed
	if progress != nil {
		progress.Skip(int64(outcome.Skipped))
	}

	if err != nil {
		return outcome, err
	}

	if outcome.Skipped > 0 {
		r.logger.WithFields(logger.Fields{
			"stage":     stage,
			"total":     n,
			"completed": outcome.Completed,
			"skipped":   outcome.Skipped,
			"cause":     ctx.Err(),
		}).Warn("Run cancelled between groups")
	}
	return outcome, nil
}

// Keys returns the sorted distinct keys of a grouping. Groups are always
// processed in key order.
func Keys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

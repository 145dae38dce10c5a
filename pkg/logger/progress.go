package logger

import (
	"fmt"
	"sync"
	"time"
)

// ProgressTracker tracks how many groups of a stage have finished
type ProgressTracker struct {
	logger      Logger
	operation   string
	total       int64
	current     int64
	skipped     int64
	startTime   time.Time
	lastLogTime time.Time
	logInterval time.Duration
	onUpdate    func(ProgressStats)
	mutex       sync.RWMutex
}

// ProgressConfig configures progress tracking behavior
type ProgressConfig struct {
	Operation   string        `json:"operation"`
	Total       int64         `json:"total"`
	LogInterval time.Duration `json:"log_interval"`
	Logger      Logger        `json:"-"`

	// OnUpdate, when set, receives a snapshot after every increment.
	OnUpdate func(ProgressStats) `json:"-"`
}

// NewProgressTracker creates a new progress tracker
func NewProgressTracker(config ProgressConfig) *ProgressTracker {
	if config.Logger == nil {
		config.Logger = GetGlobalLogger()
	}
	if config.LogInterval == 0 {
		config.LogInterval = 5 * time.Second
	}

	now := time.Now()
	tracker := &ProgressTracker{
		logger:      config.Logger.WithComponent("progress"),
		operation:   config.Operation,
		total:       config.Total,
		startTime:   now,
		lastLogTime: now,
		logInterval: config.LogInterval,
		onUpdate:    config.OnUpdate,
	}

	tracker.logger.WithFields(Fields{
		"operation": config.Operation,
		"total":     config.Total,
	}).Debug("Starting operation")

	return tracker
}

// Increment increments the progress counter by 1
func (p *ProgressTracker) Increment() {
	p.mutex.Lock()
	p.current++
	now := time.Now()
	if now.Sub(p.lastLogTime) >= p.logInterval {
		p.logProgress(now)
		p.lastLogTime = now
	}
	cb := p.onUpdate
	p.mutex.Unlock()

	if cb != nil {
		cb(p.GetStats())
	}
}

// Skip records n groups that will not run, after a cancellation or deadline
func (p *ProgressTracker) Skip(n int64) {
	if n <= 0 {
		return
	}
	p.mutex.Lock()
	p.skipped += n
	p.mutex.Unlock()
}

// Complete logs final statistics
func (p *ProgressTracker) Complete() {
	stats := p.GetStats()
	p.logger.WithFields(Fields{
		"operation": p.operation,
		"total":     stats.Total,
		"processed": stats.Current,
		"skipped":   stats.Skipped,
		"duration":  stats.Duration.String(),
	}).Info("Operation completed")
}

// CompleteWithError logs final statistics at error level
func (p *ProgressTracker) CompleteWithError(err error) {
	stats := p.GetStats()
	p.logger.WithError(err).WithFields(Fields{
		"operation": p.operation,
		"total":     stats.Total,
		"processed": stats.Current,
		"duration":  stats.Duration.String(),
	}).Error("Operation completed with error")
}

// GetStats returns current progress statistics
func (p *ProgressTracker) GetStats() ProgressStats {
	p.mutex.RLock()
	defer p.mutex.RUnlock()

	duration := time.Since(p.startTime)
	var rate float64
	if duration.Seconds() > 0 {
		rate = float64(p.current) / duration.Seconds()
	}

	var percentage float64
	if p.total > 0 {
		percentage = float64(p.current) / float64(p.total) * 100
	}

	return ProgressStats{
		Operation:  p.operation,
		Total:      p.total,
		Current:    p.current,
		Skipped:    p.skipped,
		Percentage: percentage,
		Duration:   duration,
		Rate:       rate,
	}
}

func (p *ProgressTracker) logProgress(now time.Time) {
	fields := Fields{
		"operation": p.operation,
		"processed": p.current,
		"elapsed":   now.Sub(p.startTime).String(),
	}
	if p.total > 0 {
		fields["total"] = p.total
		fields["percentage"] = fmt.Sprintf("%.1f%%", float64(p.current)/float64(p.total)*100)
	}
	p.logger.WithFields(fields).Info("Progress update")
}

// ProgressStats contains progress statistics
type ProgressStats struct {
	Operation  string        `json:"operation"`
	Total      int64         `json:"total"`
	Current    int64         `json:"current"`
	Skipped    int64         `json:"skipped"`
	Percentage float64       `json:"percentage"`
	Duration   time.Duration `json:"duration"`
	Rate       float64       `json:"rate"`
}

// String returns a human-readable representation of the progress
func (ps ProgressStats) String() string {
	if ps.Total > 0 {
		s := fmt.Sprintf("%s: %d/%d (%.1f%%)", ps.Operation, ps.Current, ps.Total, ps.Percentage)
		if ps.Skipped > 0 {
			s += fmt.Sprintf(", %d skipped", ps.Skipped)
		}
		return s
	}
	return fmt.Sprintf("%s: %d processed, elapsed: %v", ps.Operation, ps.Current, ps.Duration)
}

// TimedOperation executes fn and logs its duration and outcome
func TimedOperation(operation string, log Logger, fn func() error) error {
	if log == nil {
		log = GetGlobalLogger()
	}
	start := time.Now()
	log.WithField("operation", operation).Debug("Starting operation")

	err := fn()

	fields := Fields{
		"operation": operation,
		"duration":  time.Since(start).String(),
	}
	if err != nil {
		fields["status"] = "error"
		log.WithError(err).WithFields(fields).Error("Operation failed")
	} else {
		fields["status"] = "success"
		log.WithFields(fields).Debug("Operation completed")
	}
	return err
}

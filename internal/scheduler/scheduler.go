// Package scheduler runs periodic maintenance jobs.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"langschool_backend/pkg/utils"

	"github.com/robfig/cron/v3"
)

// SummaryRecomputer recomputes every offering's price summary.
type SummaryRecomputer interface {
	RecomputeAllPriceSummaries(ctx context.Context) (int, error)
}

// PriceSummaryScheduler recomputes price summaries on a cron schedule so
// summaries follow prices that started or expired since the last edit.
type PriceSummaryScheduler struct {
	cron       *cron.Cron
	recomputer SummaryRecomputer
	timeout    time.Duration

	mu      sync.Mutex
	lastRun time.Time
	lastErr error
}

// NewPriceSummaryScheduler parses spec (standard 5-field or @descriptor) and
// registers the recompute job. It does not start the scheduler.
func NewPriceSummaryScheduler(spec string, recomputer SummaryRecomputer, timeout time.Duration) (*PriceSummaryScheduler, error) {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	logger := zerologCronLogger{}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s := &PriceSummaryScheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		recomputer: recomputer,
		timeout:    timeout,
	}
	if _, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		_ = s.RunOnce(ctx)
	}); err != nil {
		return nil, fmt.Errorf("invalid price summary schedule %q: %w", spec, err)
	}
	return s, nil
}

// RunOnce recomputes all summaries now.
func (s *PriceSummaryScheduler) RunOnce(ctx context.Context) error {
	start := time.Now()
	updated, err := s.recomputer.RecomputeAllPriceSummaries(ctx)

	s.mu.Lock()
	s.lastRun, s.lastErr = start, err
	s.mu.Unlock()

	if err != nil {
		utils.LogError(err, "Scheduled price summary recompute failed", map[string]interface{}{"updated": updated})
		return err
	}
	utils.LogInfo("Price summaries recomputed", map[string]interface{}{
		"updated":  updated,
		"duration": time.Since(start).String(),
	})
	return nil
}

// LastRun reports when the job last ran and how it ended.
func (s *PriceSummaryScheduler) LastRun() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun, s.lastErr
}

// Start begins running the schedule in its own goroutine.
func (s *PriceSummaryScheduler) Start() {
	s.cron.Start()
}

// Stop stops the schedule and waits for a running job, or for ctx to end.
func (s *PriceSummaryScheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// zerologCronLogger routes cron's own logging through the service logger.
type zerologCronLogger struct{}

func (zerologCronLogger) Info(msg string, keysAndValues ...interface{}) {
	utils.LogDebug("cron: "+msg, kvFields(keysAndValues))
}

func (zerologCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	utils.LogError(err, "cron: "+msg, kvFields(keysAndValues))
}

func kvFields(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}

// Package scheduler runs periodic workflow maintenance jobs.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pesio-ai/be-p2p-workflow/internal/logger"
)

// OverdueChecker marks past-due invoices as overdue and returns their ids.
type OverdueChecker interface {
	CheckOverdue(ctx context.Context) []string
}

// OverdueScheduler runs the overdue sweep on a cron schedule.
type OverdueScheduler struct {
	cron    *cron.Cron
	checker OverdueChecker
	spec    string
	timeout time.Duration
	log     *logger.Logger

	mu      sync.Mutex
	running bool
	entry   cron.EntryID
}

// NewOverdueScheduler validates spec (standard five-field syntax or a
// descriptor such as @hourly) and prepares the job without starting it.
func NewOverdueScheduler(checker OverdueChecker, spec string, log *logger.Logger) (*OverdueScheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid overdue schedule %q: %w", spec, err)
	}
	return &OverdueScheduler{
		cron:    cron.New(),
		checker: checker,
		spec:    spec,
		timeout: time.Minute,
		log:     log,
	}, nil
}

// Start schedules the sweep. Calling Start twice is a no-op.
func (s *OverdueScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	id, err := s.cron.AddFunc(s.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		s.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	s.entry = id
	s.cron.Start()
	s.running = true

	s.log.Info().Str("schedule", s.spec).Msg("Overdue invoice sweep scheduled")
	return nil
}

// Stop unschedules the sweep and waits for a running one to finish or for
// ctx to end.
func (s *OverdueScheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cron.Remove(s.entry)
	done := s.cron.Stop()
	s.running = false
	s.mu.Unlock()

	select {
	case <-done.Done():
		s.log.Info().Msg("Overdue invoice sweep stopped")
	case <-ctx.Done():
		s.log.Warn().Msg("Overdue invoice sweep did not stop in time")
	}
}

// RunOnce performs one sweep immediately.
func (s *OverdueScheduler) RunOnce(ctx context.Context) []string {
	start := time.Now()
	ids := s.checker.CheckOverdue(ctx)
	s.log.Info().
		Int("overdue", len(ids)).
		Strs("invoice_ids", ids).
		Dur("duration", time.Since(start)).
		Msg("Overdue invoice sweep completed")
	return ids
}

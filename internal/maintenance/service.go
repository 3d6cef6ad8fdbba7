// Package maintenance runs the scheduled sweep of expired search sessions
// (§5's FULL note on the background sweeper).
package maintenance

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// sweeper is the narrow surface maintenance needs from internal/sessions.Store.
type sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

// Service runs a ticker-driven sweep of expired SearchSession rows (and,
// via the FK cascade, their results) on a fixed interval.
type Service struct {
	log             zerolog.Logger
	sessions        sweeper
	interval        time.Duration
	stopCh          chan struct{}
	doneCh          chan struct{}
	mu              sync.Mutex
	running         bool
	lastRunTime     time.Time
	lastRunDuration time.Duration
	totalSwept      int64
	totalRuns       int64
}

// NewService creates a maintenance service. A non-positive interval falls
// back to 5 minutes; the service passes sweep.interval-minutes from config.
func NewService(sessions sweeper, interval time.Duration, log zerolog.Logger) *Service {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Service{
		sessions: sessions,
		interval: interval,
		log:      log.With().Str("component", "maintenance").Logger(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the sweep loop until ctx is done or Stop is called. An initial
// run is delayed briefly to let the rest of the service finish starting up.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		close(s.doneCh)
	}()

	s.log.Info().Dur("interval", s.interval).Msg("starting session sweep scheduler")

	select {
	case <-time.After(30 * time.Second):
	case <-ctx.Done():
		return
	case <-s.stopCh:
		return
	}
	s.runSweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("session sweep shutting down due to context cancellation")
			return
		case <-s.stopCh:
			s.log.Info().Msg("session sweep shutting down due to stop signal")
			return
		case <-ticker.C:
			s.runSweep(ctx)
		}
	}
}

// Stop signals the sweep loop to stop.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.stopCh)
}

// Wait blocks until the sweep loop has exited.
func (s *Service) Wait() {
	<-s.doneCh
}

// RunNow triggers an out-of-band sweep pass synchronously, used by
// POST /admin/cache/clear per §4.12.
func (s *Service) RunNow(ctx context.Context) {
	s.runSweep(ctx)
}

func (s *Service) runSweep(ctx context.Context) {
	start := time.Now()

	swept, err := s.sessions.SweepExpired(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("session sweep failed")
		return
	}

	s.mu.Lock()
	s.lastRunTime = time.Now()
	s.lastRunDuration = time.Since(start)
	s.totalSwept += swept
	s.totalRuns++
	s.mu.Unlock()

	if swept > 0 {
		s.log.Info().Int64("swept", swept).Dur("duration", time.Since(start)).Msg("swept expired sessions")
	}
}

// Stats returns sweep statistics for GET /admin/stats (§4.12).
func (s *Service) Stats() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	return map[string]any{
		"interval_minutes": s.interval.Minutes(),
		"last_run":         s.lastRunTime,
		"last_duration_ms": s.lastRunDuration.Milliseconds(),
		"total_swept":      s.totalSwept,
		"total_runs":       s.totalRuns,
		"running":          s.running,
	}
}

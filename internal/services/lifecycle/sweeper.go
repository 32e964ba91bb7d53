package lifecycle

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// Sweeper runs the stale-heartbeat sweep on a fixed cadence. The cadence
// must not exceed the stale threshold or detection lags by a full window.
type Sweeper struct {
	service *Service
	cron    *cron.Cron
	spec    string
	logger  arbor.ILogger
}

// NewSweeper creates a sweeper running every interval.
func NewSweeper(logger arbor.ILogger, service *Service, interval string) *Sweeper {
	return &Sweeper{
		service: service,
		cron:    cron.New(),
		spec:    fmt.Sprintf("@every %s", interval),
		logger:  logger,
	}
}

// Start performs one immediate sweep, then schedules the periodic run.
// The startup sweep catches jobs orphaned while the coordinator was down.
func (s *Sweeper) Start() error {
	s.runSweep()

	if _, err := s.cron.AddFunc(s.spec, s.runSweep); err != nil {
		return fmt.Errorf("failed to schedule sweeper: %w", err)
	}
	s.cron.Start()

	s.logger.Info().Str("cadence", s.spec).Msg("Stale-job sweeper started")
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Stale-job sweeper stopped")
}

func (s *Sweeper) runSweep() {
	swept, err := s.service.SweepStale(context.Background())
	if err != nil {
		s.logger.Error().Err(err).Msg("Stale-job sweep failed")
		return
	}
	if swept > 0 {
		s.logger.Info().Int("count", swept).Msg("Stale jobs transitioned to failed")
	}
}

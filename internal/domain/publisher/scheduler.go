package publisher

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Syncer is the routine shared by the scheduler and the manual trigger.
type Syncer interface {
	Sync(ctx context.Context) *SyncResult
}

// Scheduler runs a sync at start and then on every interval tick.
type Scheduler struct {
	syncer   Syncer
	interval time.Duration
	logger   zerolog.Logger
}

func NewScheduler(syncer Syncer, interval time.Duration, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		syncer:   syncer,
		interval: interval,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}
}

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Msg("sync scheduler started")
	s.syncer.Sync(ctx)

	if s.interval <= 0 {
		s.logger.Info().Msg("no sync interval configured, periodic sync disabled")
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sync scheduler stopped")
			return
		case <-ticker.C:
			s.syncer.Sync(ctx)
		}
	}
}

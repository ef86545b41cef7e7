package sync

import (
	"context"
	"time"

	"github.com/evghenin/erpnext-moldova-efactura/pkg/config"
	"github.com/evghenin/erpnext-moldova-efactura/pkg/logger"
)

// Runner is one reconciliation strategy the scheduler can drive.
type Runner interface {
	Run(ctx context.Context) error
}

// Scheduler drives the strategies on their cadences: the status poll on a
// fixed interval, the cancellation sweep and the draft promotion once a day
// at the configured hour. Strategies run sequentially inside one goroutine
// per cadence; overlap between cadences is tolerated because every strategy
// is compare-then-write idempotent.
type Scheduler struct {
	poller    Runner
	sweep     Runner
	promotion Runner
	cfg       config.SyncConfig
	log       *logger.Logger
}

func NewScheduler(poller, sweep, promotion Runner, cfg config.SyncConfig, log *logger.Logger) *Scheduler {
	return &Scheduler{
		poller:    poller,
		sweep:     sweep,
		promotion: promotion,
		cfg:       cfg,
		log:       log,
	}
}

// Start launches the cadence goroutines. They stop when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.pollLoop(ctx)
	go s.dailyLoop(ctx)
	s.log.Info().
		Int("poll_interval_minutes", s.cfg.PollInterval).
		Int("sweep_hour", s.cfg.SweepHour).
		Msg("scheduler: started")
}

func (s *Scheduler) pollLoop(ctx context.Context) {
	interval := time.Duration(s.cfg.PollInterval) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.poller.Run(ctx); err != nil {
				// Already logged with context by the strategy; the next tick
				// retries.
				s.log.Debug().Err(err).Msg("scheduler: status poll failed")
			}
		}
	}
}

func (s *Scheduler) dailyLoop(ctx context.Context) {
	for {
		wait := untilHour(time.Now(), s.cfg.SweepHour)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := s.sweep.Run(ctx); err != nil {
			s.log.Debug().Err(err).Msg("scheduler: cancellation sweep failed")
		}
		if err := s.promotion.Run(ctx); err != nil {
			s.log.Debug().Err(err).Msg("scheduler: draft promotion failed")
		}
	}
}

// untilHour returns the duration from now to the next occurrence of the
// given local hour.
func untilHour(now time.Time, hour int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

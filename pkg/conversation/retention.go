package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/harun/taskpilot/internal/observability"
)

// Sweeper deletes conversations idle beyond the configured age on a
// cron schedule.
type Sweeper struct {
	store    *Store
	logger   zerolog.Logger
	maxIdle  time.Duration
	schedule string
	cron     *cron.Cron
}

// SweeperConfig holds retention configuration
type SweeperConfig struct {
	Store    *Store
	Logger   zerolog.Logger
	MaxIdle  time.Duration // conversations idle longer than this are removed
	Schedule string        // cron spec, e.g. "0 3 * * *"
}

// NewSweeper creates a retention sweeper
func NewSweeper(cfg SweeperConfig) (*Sweeper, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = 90 * 24 * time.Hour
	}
	if cfg.Schedule == "" {
		cfg.Schedule = "0 3 * * *"
	}

	return &Sweeper{
		store:    cfg.Store,
		logger:   cfg.Logger,
		maxIdle:  cfg.MaxIdle,
		schedule: cfg.Schedule,
	}, nil
}

// Start schedules the sweep job
func (sw *Sweeper) Start() error {
	sw.cron = cron.New()

	_, err := sw.cron.AddFunc(sw.schedule, func() {
		if err := sw.Sweep(context.Background()); err != nil {
			sw.logger.Error().Err(err).Msg("Retention sweep failed")
		}
	})
	if err != nil {
		return err
	}

	sw.cron.Start()
	sw.logger.Info().
		Str("schedule", sw.schedule).
		Dur("max_idle", sw.maxIdle).
		Msg("Retention sweeper started")

	return nil
}

// Stop halts the schedule and waits for a running sweep to finish
func (sw *Sweeper) Stop() {
	if sw.cron == nil {
		return
	}
	<-sw.cron.Stop().Done()
}

// Sweep removes conversations idle beyond the retention window
func (sw *Sweeper) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-sw.maxIdle)

	removed, err := sw.store.SweepIdleBefore(ctx, cutoff)
	if err != nil {
		return err
	}

	observability.RecordRetentionSweep()

	if removed > 0 {
		sw.logger.Info().Int("removed", removed).Time("cutoff", cutoff).Msg("Retention sweep completed")
	}

	return nil
}

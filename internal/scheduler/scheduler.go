// Package scheduler runs the recurring background jobs.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-pipeline/internal/dedupe"
)

// DedupeTimeout bounds one scheduled dedupe sweep.
const DedupeTimeout = 300 * time.Second

// Deduper runs a dedupe sweep.
type Deduper interface {
	Run(ctx context.Context) (*dedupe.Result, error)
}

// StatsInvalidator drops cached lead statistics after a sweep changes data.
type StatsInvalidator interface {
	InvalidateStats(ctx context.Context)
}

// Scheduler owns the cron runner.
type Scheduler struct {
	cron *cron.Cron
}

// New creates a scheduler evaluating specs in UTC.
func New() *Scheduler {
	return &Scheduler{cron: cron.New(cron.WithLocation(time.UTC))}
}

// AddDedupe schedules d to run on spec (standard five-field cron syntax).
// inv may be nil when no stats cache is configured.
func (s *Scheduler) AddDedupe(spec string, d Deduper, inv StatsInvalidator) error {
	_, err := s.cron.AddFunc(spec, func() { runDedupe(context.Background(), d, inv) })
	if err != nil {
		return eris.Wrapf(err, "scheduler: add dedupe %q", spec)
	}
	zap.L().Info("scheduled dedupe", zap.String("spec", spec))
	return nil
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		zap.L().Warn("scheduler: stop timed out waiting for running jobs")
	}
}

func runDedupe(ctx context.Context, d Deduper, inv StatsInvalidator) {
	ctx, cancel := context.WithTimeout(ctx, DedupeTimeout)
	defer cancel()

	res, err := d.Run(ctx)
	if err != nil {
		zap.L().Error("scheduled dedupe failed", zap.Error(err))
		return
	}
	if inv != nil {
		inv.InvalidateStats(ctx)
	}
	zap.L().Info("scheduled dedupe complete",
		zap.Int("duplicates_found", res.DuplicatesFound),
		zap.Int("removed", res.Removed),
	)
}

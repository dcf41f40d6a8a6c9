package notification

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Retention is how long a read notification is kept before the sweep
// removes it.
const Retention = 7 * 24 * time.Hour

// Sweeper garbage-collects read notifications past the retention window for
// every participant partition, on a daily schedule.
type Sweeper struct {
	repo       Repository
	partitions []string
	cron       *cron.Cron
	now        func() time.Time
}

func NewSweeper(repo Repository, partitions []string) *Sweeper {
	return &Sweeper{
		repo:       repo,
		partitions: partitions,
		cron:       cron.New(),
		now:        time.Now,
	}
}

// Start schedules the daily sweep. The cron scheduler runs until Stop.
func (s *Sweeper) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc("@daily", func() {
		s.Sweep(ctx)
	}); err != nil {
		return err
	}
	s.cron.Start()
	slog.Info("notification sweeper started", "partitions", s.partitions)
	return nil
}

func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("notification sweeper stopped")
}

// Sweep deletes read notifications older than the retention window and
// returns how many were removed. Per-partition failures are logged and do
// not abort the remaining partitions.
func (s *Sweeper) Sweep(ctx context.Context) int {
	cutoff := s.now().Add(-Retention)
	removed := 0
	for _, partition := range s.partitions {
		all, err := s.repo.List(ctx, partition)
		if err != nil {
			slog.Error("sweeper: failed to list notifications", "partition", partition, "error", err)
			continue
		}
		for _, n := range all {
			if !n.Read || !n.CreatedAt.Before(cutoff) {
				continue
			}
			if err := s.repo.Delete(ctx, partition, n.ID); err != nil {
				slog.Error("sweeper: failed to delete notification", "partition", partition, "id", n.ID, "error", err)
				continue
			}
			removed++
		}
		slog.Debug("sweeper: partition swept", "partition", partition)
	}
	return removed
}

package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"accounts/internal/observability/metrics"

	"github.com/robfig/cron/v3"
)

type expiryStore interface {
	SweepExpired(ctx context.Context, now time.Time) (locks, resets int64, err error)
}

// Sweeper periodically clears expired lockouts and reset tokens. Login and
// reset already ignore expired state, so a sweep only tidies rows nobody
// touched since their window closed.
type Sweeper struct {
	store    expiryStore
	schedule string
	timeout  time.Duration
	now      func() time.Time
}

func NewSweeper(st expiryStore, schedule string) *Sweeper {
	return &Sweeper{
		store:    st,
		schedule: schedule,
		timeout:  30 * time.Second,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run schedules the sweep and blocks until ctx is done, then waits for a
// sweep in flight to finish.
func (s *Sweeper) Run(ctx context.Context) error {
	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("sweep schedule %q: %w", s.schedule, err)
	}
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() { s.Sweep(ctx) }); err != nil {
		return fmt.Errorf("sweep schedule %q: %w", s.schedule, err)
	}
	c.Start()
	slog.Info("sweeper started", "schedule", s.schedule)

	<-ctx.Done()
	<-c.Stop().Done()
	slog.Info("sweeper stopped")
	return nil
}

// Sweep runs one pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	locks, resets, err := s.store.SweepExpired(ctx, s.now())
	if err != nil {
		slog.Error("sweep expired account state", "error", err)
		return
	}
	metrics.SweptRecordsTotal.WithLabelValues("lock").Add(float64(locks))
	metrics.SweptRecordsTotal.WithLabelValues("reset_token").Add(float64(resets))
	if locks > 0 || resets > 0 {
		slog.Info("swept expired account state", "locks", locks, "reset_tokens", resets)
	}
}

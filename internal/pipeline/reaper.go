package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/jjudge-oj/problemgen/types"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// StaleSummary is the failure summary written by the reaper.
const StaleSummary = "validation did not finish before the deadline"

// StaleFailer fails every running record last touched before cutoff.
type StaleFailer interface {
	FailStale(ctx context.Context, cutoff time.Time, report types.ValidationReport) (int, error)
}

// Reaper periodically fails runs that were lost, for example when the
// process executing them restarted.
type Reaper struct {
	store      StaleFailer
	staleAfter time.Duration
	logger     *zap.Logger
	cron       *cron.Cron
	now        func() time.Time
}

// NewReaper validates schedule (standard cron syntax or descriptors such as
// "@every 1m") and returns a stopped reaper.
func NewReaper(failer StaleFailer, staleAfter time.Duration, schedule string, logger *zap.Logger) (*Reaper, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if staleAfter <= 0 {
		return nil, fmt.Errorf("stale-after must be positive, got %s", staleAfter)
	}

	r := &Reaper{
		store:      failer,
		staleAfter: staleAfter,
		logger:     logger,
		cron:       cron.New(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	if _, err := r.cron.AddFunc(schedule, r.tick); err != nil {
		return nil, fmt.Errorf("invalid reaper schedule %q: %w", schedule, err)
	}
	return r, nil
}

func (r *Reaper) Start() {
	r.cron.Start()
}

// Stop stops scheduling and waits for a running sweep to finish.
func (r *Reaper) Stop() {
	<-r.cron.Stop().Done()
}

// Run starts the reaper and blocks until ctx ends.
func (r *Reaper) Run(ctx context.Context) error {
	r.Start()
	<-ctx.Done()
	r.Stop()
	return nil
}

// Sweep fails every stale running record once.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	now := r.now()
	report := types.ValidationReport{
		IsValid:     false,
		Summary:     StaleSummary,
		ValidatedAt: now,
	}
	types.NormalizeReport(&report)

	n, err := r.store.FailStale(ctx, now.Add(-r.staleAfter), report)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		reapedTotal.Add(float64(n))
		r.logger.Warn("failed stale enrichment runs",
			zap.Int("count", n),
			zap.Duration("stale_after", r.staleAfter),
		)
	}
	return n, nil
}

func (r *Reaper) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := r.Sweep(ctx); err != nil {
		r.logger.Error("stale run sweep failed", zap.Error(err))
	}
}

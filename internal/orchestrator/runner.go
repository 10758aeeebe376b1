package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Runner drives the orchestrator on a fixed interval. One cycle runs
// immediately on Start, then one per tick until the context is canceled.
type Runner struct {
	Orch     *Orchestrator
	Interval time.Duration
	Logger   *slog.Logger

	mu   sync.Mutex
	last *CycleSummary
}

func NewRunner(orch *Orchestrator, interval time.Duration, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{Orch: orch, Interval: interval, Logger: logger}
}

func (r *Runner) Start(ctx context.Context) {
	r.runOnce(ctx)
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Logger.Info("orchestrator runner stopped")
			return
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context) {
	summary, err := r.Orch.RunCycle(ctx)
	if err != nil && ctx.Err() == nil {
		r.Logger.Error("cycle failed", slog.String("error", err.Error()))
		return
	}
	r.mu.Lock()
	r.last = &summary
	r.mu.Unlock()
}

// LastSummary returns the most recent completed cycle, if any.
func (r *Runner) LastSummary() (CycleSummary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return CycleSummary{}, false
	}
	return *r.last, true
}

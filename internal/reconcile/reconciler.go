// Package reconcile finds approved leave requests whose quota deduction was
// never recorded and settles them on a worker pool.
package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	coreLeave "github.com/frahmantamala/leave-portal/internal/core/leave"
	"github.com/frahmantamala/leave-portal/internal/store"
)

type Lister interface {
	ListLeaveRequests(ctx context.Context, filter store.LeaveFilter) ([]*coreLeave.Request, error)
}

type Settler interface {
	SettleDeduction(ctx context.Context, id string) (bool, error)
}

// Report summarises one pass.
type Report struct {
	Found   int
	Settled int
	Failed  int
}

type Reconciler struct {
	requests Lister
	pool     *Pool
	interval time.Duration
	logger   *slog.Logger
}

type Config struct {
	Interval     time.Duration
	MaxWorkers   int
	JobQueueSize int
}

func New(requests Lister, settler Settler, config Config, logger *slog.Logger) *Reconciler {
	interval := config.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reconciler{
		requests: requests,
		pool: NewPool(PoolConfig{
			MaxWorkers:   config.MaxWorkers,
			JobQueueSize: config.JobQueueSize,
		}, settler.SettleDeduction, logger),
		interval: interval,
		logger:   logger,
	}
}

// RunOnce settles every request that currently needs it and waits for the
// pass to finish.
func (r *Reconciler) RunOnce(ctx context.Context) (Report, error) {
	pending, err := r.requests.ListLeaveRequests(ctx, store.LeaveFilter{NeedsSettlement: true})
	if err != nil {
		return Report{}, err
	}

	report := Report{Found: len(pending)}
	if len(pending) == 0 {
		return report, nil
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	done := func(settled bool, err error) {
		defer wg.Done()
		mu.Lock()
		defer mu.Unlock()
		switch {
		case err != nil:
			report.Failed++
		case settled:
			report.Settled++
		}
	}

	for _, req := range pending {
		wg.Add(1)
		if err := r.pool.Submit(ctx, Job{LeaveID: req.ID, Done: done}); err != nil {
			done(false, err)
		}
	}
	wg.Wait()

	r.logger.Info("reconcile pass finished", "found", report.Found, "settled", report.Settled, "failed", report.Failed)
	return report, nil
}

// Run repeats RunOnce every interval until ctx is cancelled, then shuts the
// pool down.
func (r *Reconciler) Run(ctx context.Context) {
	defer r.pool.Shutdown()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reconciler started", "interval", r.interval)
	for {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("reconcile pass failed", "error", err)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return
		}
	}
}

// Shutdown stops the pool when Run is not used.
func (r *Reconciler) Shutdown() {
	r.pool.Shutdown()
}

package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/automation-cli/internal/rules"
	"github.com/sells-group/automation-cli/internal/scheduler"
)

// JobRunner runs one scheduler pass over all active tenants.
type JobRunner interface {
	RunAll(ctx context.Context, job rules.Job, tenantID *int64) (scheduler.Summary, error)
}

// Runner runs each job on its own interval and records every pass in the
// collector. It is the in-process alternative to cron-scheduled workflows.
type Runner struct {
	jobs      JobRunner
	collector *Collector
	intervals map[rules.Job]time.Duration
}

// NewRunner creates a runner for the given job intervals.
func NewRunner(jobs JobRunner, collector *Collector, intervals map[rules.Job]time.Duration) *Runner {
	return &Runner{jobs: jobs, collector: collector, intervals: intervals}
}

// Run starts one loop per job. Each job runs once immediately and then on
// every tick. It blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for job, every := range r.intervals {
		g.Go(func() error {
			r.loop(gctx, job, every)
			return nil
		})
	}
	return g.Wait()
}

func (r *Runner) loop(ctx context.Context, job rules.Job, every time.Duration) {
	log := zap.L().With(
		zap.String("component", "monitoring.runner"),
		zap.String("job", string(job)),
	)
	log.Info("starting job loop", zap.Duration("interval", every))

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	r.RunOnce(ctx, job)
	for {
		select {
		case <-ctx.Done():
			log.Info("job loop stopped")
			return
		case <-ticker.C:
			r.RunOnce(ctx, job)
		}
	}
}

// RunOnce runs a single pass of job and records it. Passes interrupted by
// shutdown are not recorded.
func (r *Runner) RunOnce(ctx context.Context, job rules.Job) {
	log := zap.L().With(zap.String("component", "monitoring.runner"), zap.String("job", string(job)))

	sum, err := r.jobs.RunAll(ctx, job, nil)
	if ctx.Err() != nil {
		return
	}
	r.collector.Record(job, sum, err)

	if err != nil {
		log.Error("job pass failed", zap.Error(err))
		return
	}
	log.Info("job pass complete",
		zap.Int("tenants", sum.Tenants),
		zap.Int("applied", sum.Total()),
		zap.Int("entity_errors", sum.EntityErrors),
		zap.Int("tenant_failures", len(sum.Failures)),
		zap.Int("sent", sum.Sent),
		zap.Int("send_failures", sum.SendFailures),
		zap.Duration("duration", sum.Duration),
	)
}

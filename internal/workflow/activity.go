package workflow

import (
	"context"

	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/sells-group/automation-cli/internal/rules"
	"github.com/sells-group/automation-cli/internal/scheduler"
)

const errTypeInvalidJob = "InvalidJob"

// JobRunner runs one scheduler pass.
type JobRunner interface {
	RunAll(ctx context.Context, job rules.Job, tenantID *int64) (scheduler.Summary, error)
}

// Recorder receives every completed pass, e.g. for health monitoring.
type Recorder interface {
	Record(job rules.Job, sum scheduler.Summary, err error)
}

// Activities holds the dependencies of the job activity.
type Activities struct {
	Jobs     JobRunner
	Recorder Recorder
}

// RunJob runs the scheduler pass named by in.
func (a *Activities) RunJob(ctx context.Context, in JobInput) (*JobResult, error) {
	job, err := rules.ParseJob(in.Job)
	if err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), errTypeInvalidJob, err)
	}

	sum, err := a.Jobs.RunAll(ctx, job, in.TenantID)
	if a.Recorder != nil && ctx.Err() == nil {
		a.Recorder.Record(job, sum, err)
	}
	if err != nil {
		zap.L().Error("workflow: job pass failed", zap.String("job", in.Job), zap.Error(err))
		return nil, err
	}
	return NewJobResult(sum), nil
}

// NewJobResult converts a scheduler summary.
func NewJobResult(sum scheduler.Summary) *JobResult {
	res := &JobResult{
		Job:          string(sum.Job),
		Tenants:      sum.Tenants,
		Counts:       make(map[string]int, len(sum.Counts)),
		EntityErrors: sum.EntityErrors,
		Sent:         sum.Sent,
		SendFailures: sum.SendFailures,
		DurationMS:   sum.Duration.Milliseconds(),
	}
	for k, v := range sum.Counts {
		res.Counts[string(k)] = v
	}
	if len(sum.Skipped) > 0 {
		res.Skipped = make(map[string]int, len(sum.Skipped))
		for k, v := range sum.Skipped {
			res.Skipped[string(k)] = v
		}
	}
	for _, f := range sum.Failures {
		res.Failures = append(res.Failures, f.Error())
	}
	return res
}

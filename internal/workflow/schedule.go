package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/sells-group/automation-cli/internal/rules"
)

// ScheduleCreator is the part of client.ScheduleClient used to register
// schedules.
type ScheduleCreator interface {
	Create(ctx context.Context, options client.ScheduleOptions) (client.ScheduleHandle, error)
}

// ScheduleID returns the schedule id for job.
func ScheduleID(job rules.Job) string {
	return fmt.Sprintf("automation-%s", job)
}

// ScheduleOptions builds the schedule registration for one job. Overlapping
// runs of the same job are skipped.
func ScheduleOptions(job rules.Job, cron, taskQueue string) client.ScheduleOptions {
	id := ScheduleID(job)
	return client.ScheduleOptions{
		ID: id,
		Spec: client.ScheduleSpec{
			CronExpressions: []string{cron},
		},
		Overlap: enumspb.SCHEDULE_OVERLAP_POLICY_SKIP,
		Action: &client.ScheduleWorkflowAction{
			ID:        id,
			Workflow:  RunJobWorkflow,
			Args:      []any{JobInput{Job: string(job)}},
			TaskQueue: taskQueue,
		},
	}
}

// EnsureSchedules registers one cron schedule per job. Schedules that
// already exist are left untouched. It returns the ids it created.
func EnsureSchedules(ctx context.Context, sc ScheduleCreator, taskQueue string, crons map[string]string) ([]string, error) {
	jobs := make([]string, 0, len(crons))
	for job := range crons {
		jobs = append(jobs, job)
	}
	sort.Strings(jobs)

	var created []string
	for _, name := range jobs {
		job, err := rules.ParseJob(name)
		if err != nil {
			return created, eris.Wrapf(err, "workflow: schedule %s", name)
		}
		opts := ScheduleOptions(job, crons[name], taskQueue)
		if _, err := sc.Create(ctx, opts); err != nil {
			if errors.Is(err, temporal.ErrScheduleAlreadyRunning) {
				zap.L().Info("workflow: schedule exists", zap.String("schedule", opts.ID))
				continue
			}
			return created, eris.Wrapf(err, "workflow: create schedule %s", opts.ID)
		}
		zap.L().Info("workflow: schedule created",
			zap.String("schedule", opts.ID),
			zap.String("cron", crons[name]),
		)
		created = append(created, opts.ID)
	}
	return created, nil
}

// NewWorker creates a worker on taskQueue with the job workflow and
// activity registered.
func NewWorker(c client.Client, taskQueue string, acts *Activities) worker.Worker {
	w := worker.New(c, taskQueue, worker.Options{})
	w.RegisterWorkflow(RunJobWorkflow)
	w.RegisterActivity(acts)
	return w
}

// Package workflow runs scheduler jobs as Temporal workflows so that each
// job can be fired by a cron schedule owned by the Temporal cluster.
package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// JobInput selects the job and, optionally, a single tenant.
type JobInput struct {
	Job      string `json:"job"`
	TenantID *int64 `json:"tenant_id,omitempty"`
}

// JobResult is the serializable form of a scheduler summary.
type JobResult struct {
	Job          string         `json:"job"`
	Tenants      int            `json:"tenants"`
	Counts       map[string]int `json:"counts"`
	Skipped      map[string]int `json:"skipped,omitempty"`
	EntityErrors int            `json:"entity_errors"`
	Failures     []string       `json:"failures,omitempty"`
	Sent         int            `json:"sent"`
	SendFailures int            `json:"send_failures"`
	DurationMS   int64          `json:"duration_ms"`
}

// A pass over every tenant can be slow; heartbeats are not used.
const (
	activityTimeout = 30 * time.Minute
	maxAttempts     = 3
)

// RunJobWorkflow runs one scheduler pass. Tenant failures are part of the
// result; only a pass that cannot run at all fails the workflow.
func RunJobWorkflow(ctx workflow.Context, in JobInput) (*JobResult, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: activityTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        10 * time.Second,
			BackoffCoefficient:     2.0,
			MaximumAttempts:        maxAttempts,
			NonRetryableErrorTypes: []string{errTypeInvalidJob},
		},
	})

	log := workflow.GetLogger(ctx)
	log.Info("running job", "job", in.Job)

	var a *Activities
	var res JobResult
	if err := workflow.ExecuteActivity(ctx, a.RunJob, in).Get(ctx, &res); err != nil {
		return nil, err
	}

	log.Info("job complete",
		"job", res.Job,
		"tenants", res.Tenants,
		"failures", len(res.Failures),
		"send_failures", res.SendFailures,
	)
	return &res, nil
}

package monitoring

import (
	"sync"
	"time"

	"github.com/sells-group/automation-cli/internal/rules"
	"github.com/sells-group/automation-cli/internal/scheduler"
)

// JobRun is one recorded scheduler pass.
type JobRun struct {
	Job        rules.Job
	FinishedAt time.Time
	Summary    scheduler.Summary
	// Err is set when the pass could not run at all.
	Err error
}

// MetricsSnapshot holds a point-in-time view of job health.
type MetricsSnapshot struct {
	Runs       int `json:"runs"`
	FailedRuns int `json:"failed_runs"`

	TenantPasses   int     `json:"tenant_passes"`
	TenantFailures int     `json:"tenant_failures"`
	FailureRate    float64 `json:"failure_rate"`
	EntityErrors   int     `json:"entity_errors"`

	Applied      int `json:"applied"`
	Sent         int `json:"sent"`
	SendFailures int `json:"send_failures"`

	// RunErrors holds the latest error per job whose pass did not run.
	RunErrors map[rules.Job]string `json:"run_errors,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector keeps recent scheduler passes in memory.
type Collector struct {
	mu   sync.Mutex
	runs []JobRun
	now  func() time.Time
	// retain bounds how long runs are kept.
	retain time.Duration
}

// NewCollector creates a collector that keeps runs for retain.
func NewCollector(retain time.Duration) *Collector {
	if retain <= 0 {
		retain = 24 * time.Hour
	}
	return &Collector{now: time.Now, retain: retain}
}

// Record stores the outcome of one pass and prunes expired runs.
func (c *Collector) Record(job rules.Job, sum scheduler.Summary, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UTC()
	c.runs = append(c.runs, JobRun{Job: job, FinishedAt: now, Summary: sum, Err: err})

	cutoff := now.Add(-c.retain)
	keep := c.runs[:0]
	for _, r := range c.runs {
		if !r.FinishedAt.Before(cutoff) {
			keep = append(keep, r)
		}
	}
	c.runs = keep
}

// Collect aggregates the runs finished within the lookback window.
func (c *Collector) Collect(lookbackHours int) *MetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	for _, r := range c.runs {
		if r.FinishedAt.Before(cutoff) {
			continue
		}
		snap.Runs++
		if r.Err != nil {
			snap.FailedRuns++
			if snap.RunErrors == nil {
				snap.RunErrors = make(map[rules.Job]string)
			}
			snap.RunErrors[r.Job] = r.Err.Error()
			continue
		}
		snap.TenantPasses += r.Summary.Tenants
		snap.TenantFailures += len(r.Summary.Failures)
		snap.EntityErrors += r.Summary.EntityErrors
		snap.Applied += r.Summary.Total()
		snap.Sent += r.Summary.Sent
		snap.SendFailures += r.Summary.SendFailures
	}

	if snap.TenantPasses > 0 {
		snap.FailureRate = float64(snap.TenantFailures) / float64(snap.TenantPasses)
	}
	return snap
}

// Package scheduler runs rule jobs across tenants.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/automation-cli/internal/calendar"
	"github.com/sells-group/automation-cli/internal/dispatch"
	"github.com/sells-group/automation-cli/internal/model"
	"github.com/sells-group/automation-cli/internal/rules"
	"github.com/sells-group/automation-cli/internal/store"
)

// Config controls a scheduler pass.
type Config struct {
	// Concurrency is the number of tenants processed at once. Rules inside
	// a tenant always run sequentially.
	Concurrency int
	// Calendar is the default working-hours calendar, overlaid per tenant.
	Calendar calendar.Config
	// Rules holds the default setting per rule. Missing kinds use rules.Defaults.
	Rules map[rules.Kind]rules.Default
	// Days overrides the horizon of every rule in the job when positive.
	Days int
}

// TenantError is a tenant whose pass did not complete.
type TenantError struct {
	TenantID int64
	Rule     rules.Kind
	Err      error
}

func (e TenantError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("tenant %d: %s: %v", e.TenantID, e.Rule, e.Err)
	}
	return fmt.Sprintf("tenant %d: %v", e.TenantID, e.Err)
}

func (e TenantError) Unwrap() error { return e.Err }

// Summary reports one RunAll call.
type Summary struct {
	Job     rules.Job
	Tenants int
	// Counts is applied (or, in dry-run mode, planned) findings per rule.
	Counts       map[rules.Kind]int
	Skipped      map[rules.Kind]int
	EntityErrors int
	Failures     []TenantError
	Sent         int
	SendFailures int
	Duration     time.Duration
}

// Total returns the number of applied findings across rules.
func (s Summary) Total() int {
	n := 0
	for _, c := range s.Counts {
		n += c
	}
	return n
}

// Failed reports whether any tenant failed.
func (s Summary) Failed() bool { return len(s.Failures) > 0 }

func newSummary(job rules.Job) Summary {
	return Summary{
		Job:     job,
		Counts:  make(map[rules.Kind]int),
		Skipped: make(map[rules.Kind]int),
	}
}

func (s *Summary) merge(o Summary) {
	for k, v := range o.Counts {
		s.Counts[k] += v
	}
	for k, v := range o.Skipped {
		s.Skipped[k] += v
	}
	s.EntityErrors += o.EntityErrors
	s.Sent += o.Sent
	s.SendFailures += o.SendFailures
}

// Applier applies findings. *dispatch.Dispatcher implements it.
type Applier interface {
	Apply(ctx context.Context, scope dispatch.Scope, f rules.Finding) (dispatch.Result, error)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the pass clock. Every rule in a pass shares one instant.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// Scheduler evaluates jobs for tenants and hands findings to an Applier.
type Scheduler struct {
	store    store.Store
	registry *rules.Registry
	applier  Applier
	cfg      Config
	now      func() time.Time
}

// New creates a Scheduler.
func New(st store.Store, registry *rules.Registry, applier Applier, cfg Config, opts ...Option) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	s := &Scheduler{
		store:    st,
		registry: registry,
		applier:  applier,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunAll runs job for one tenant (any status) when tenantID is set, or for
// every active tenant. A tenant failure is reported in Summary.Failures and
// never stops other tenants; the returned error is reserved for failures
// to start the pass.
func (s *Scheduler) RunAll(ctx context.Context, job rules.Job, tenantID *int64) (Summary, error) {
	start := time.Now()
	sum := newSummary(job)

	ruleSet, err := s.registry.ForJob(job)
	if err != nil {
		return sum, err
	}

	filter := store.TenantFilter{Status: model.TenantStatusActive}
	if tenantID != nil {
		filter = store.TenantFilter{ID: tenantID}
	}
	tenants, err := s.store.ListTenants(ctx, filter)
	if err != nil {
		return sum, eris.Wrap(err, "scheduler: list tenants")
	}
	if tenantID != nil && len(tenants) == 0 {
		return sum, eris.Wrapf(store.ErrNotFound, "scheduler: tenant %d", *tenantID)
	}
	sum.Tenants = len(tenants)

	now := s.now()
	log := zap.L().With(zap.String("component", "scheduler"), zap.String("job", string(job)))
	log.Info("scheduler: pass starting",
		zap.Int("tenants", len(tenants)),
		zap.Int("concurrency", s.cfg.Concurrency),
		zap.Time("now", now),
	)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, t := range tenants {
		g.Go(func() error {
			ts, terr := s.safeRunTenant(gctx, t, ruleSet, now)
			mu.Lock()
			defer mu.Unlock()
			sum.merge(ts)
			if terr != nil {
				sum.Failures = append(sum.Failures, *terr)
			}
			return nil // don't abort the pass on one tenant
		})
	}
	_ = g.Wait()

	sort.Slice(sum.Failures, func(i, j int) bool { return sum.Failures[i].TenantID < sum.Failures[j].TenantID })
	sum.Duration = time.Since(start)

	log.Info("scheduler: pass complete",
		zap.Int("applied", sum.Total()),
		zap.Int("entity_errors", sum.EntityErrors),
		zap.Int("tenant_failures", len(sum.Failures)),
		zap.Int("sent", sum.Sent),
		zap.Int("send_failures", sum.SendFailures),
		zap.Duration("duration", sum.Duration),
	)
	return sum, nil
}

// safeRunTenant contains panics to the tenant that raised them.
func (s *Scheduler) safeRunTenant(ctx context.Context, t model.Tenant, ruleSet []rules.Rule, now time.Time) (sum Summary, terr *TenantError) {
	defer func() {
		if p := recover(); p != nil {
			zap.L().Error("scheduler: tenant panicked", zap.Int64("tenant_id", t.ID), zap.Any("panic", p), zap.Stack("stack"))
			terr = &TenantError{TenantID: t.ID, Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	return s.runTenant(ctx, t, ruleSet, now)
}

func (s *Scheduler) runTenant(ctx context.Context, t model.Tenant, ruleSet []rules.Rule, now time.Time) (Summary, *TenantError) {
	sum := newSummary("")
	log := zap.L().With(zap.String("component", "scheduler"), zap.Int64("tenant_id", t.ID))
	fail := func(kind rules.Kind, err error) (Summary, *TenantError) {
		log.Error("scheduler: tenant failed", zap.String("rule", string(kind)), zap.Error(err))
		return sum, &TenantError{TenantID: t.ID, Rule: kind, Err: err}
	}

	cal, err := s.tenantCalendar(ctx, t.ID, &sum)
	if err != nil {
		return fail("", err)
	}
	settings, err := s.store.RuleSettings(ctx, t.ID)
	if err != nil {
		return fail("", err)
	}
	users, err := s.store.ListUsers(ctx, t.ID)
	if err != nil {
		return fail("", err)
	}
	var active []model.User
	for _, u := range users {
		if u.Active {
			active = append(active, u)
		}
	}

	for _, rl := range ruleSet {
		if err := ctx.Err(); err != nil {
			return fail(rl.Kind(), err)
		}
		kind := rl.Kind()
		rlog := log.With(zap.String("rule", string(kind)))

		var stored *model.RuleSetting
		if rs, ok := settings[string(kind)]; ok {
			stored = &rs
		}
		setting, err := rules.Resolve(kind, t.ID, s.defaultFor(kind), stored, s.cfg.Days)
		if err != nil {
			sum.EntityErrors++
			rlog.Warn("scheduler: rule skipped", zap.Error(err))
			continue
		}
		if !setting.Enabled {
			rlog.Debug("scheduler: rule disabled")
			continue
		}

		res, err := rl.Evaluate(ctx, rules.Env{
			TenantID: t.ID,
			Now:      now,
			Calendar: cal,
			Reader:   s.store,
			Setting:  setting,
		})
		var cfgErr *rules.ConfigurationError
		if errors.As(err, &cfgErr) {
			sum.EntityErrors++
			rlog.Warn("scheduler: rule skipped", zap.Error(err))
			continue
		}
		if err != nil {
			return fail(kind, err)
		}
		for _, e := range res.Errors {
			sum.EntityErrors++
			rlog.Warn("scheduler: entity skipped", zap.Error(e))
		}

		scope := dispatch.Scope{TenantID: t.ID, Now: now, Calendar: cal, Setting: setting, Users: active}
		for _, f := range res.Findings {
			r, err := s.applier.Apply(ctx, scope, f)
			if err != nil {
				if ctx.Err() != nil {
					return fail(kind, ctx.Err())
				}
				sum.EntityErrors++
				rlog.Warn("scheduler: apply failed",
					zap.String("subject_type", f.SubjectType),
					zap.Int64("subject_id", f.SubjectID),
					zap.Error(err),
				)
				continue
			}
			switch r.Outcome {
			case dispatch.OutcomeApplied, dispatch.OutcomeDryRun:
				sum.Counts[kind]++
			default:
				sum.Skipped[kind]++
			}
			sum.Sent += r.Sent
			sum.SendFailures += r.Failed
		}
		rlog.Debug("scheduler: rule done",
			zap.Int("findings", len(res.Findings)),
			zap.Int("applied", sum.Counts[kind]),
			zap.Int("skipped", sum.Skipped[kind]),
		)
	}
	return sum, nil
}

// calendar builds the tenant's calendar. An invalid stored calendar falls
// back to the default and counts as an entity error.
func (s *Scheduler) tenantCalendar(ctx context.Context, tenantID int64, sum *Summary) (*calendar.Calendar, error) {
	tc, err := s.store.TenantCalendar(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.cfg.Calendar.WithTenant(tc)
	if err == nil {
		var cal *calendar.Calendar
		if cal, err = calendar.New(cfg); err == nil {
			return cal, nil
		}
	}

	sum.EntityErrors++
	zap.L().Warn("scheduler: invalid tenant calendar, using default",
		zap.Int64("tenant_id", tenantID),
		zap.Error(err),
	)
	cfg = s.cfg.Calendar
	if tc != nil {
		cfg.Holidays = append(append([]time.Time(nil), cfg.Holidays...), calendar.Dates(tc.Holidays)...)
	}
	cal, err := calendar.New(cfg)
	if err != nil {
		return nil, eris.Wrap(err, "scheduler: default calendar")
	}
	return cal, nil
}

func (s *Scheduler) defaultFor(kind rules.Kind) rules.Default {
	if d, ok := s.cfg.Rules[kind]; ok {
		return d
	}
	return rules.Defaults()[kind]
}

// Package dispatch turns findings into effects: notification, CRM and
// message rows, entity status updates, and outbound sends.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/automation-cli/internal/calendar"
	"github.com/sells-group/automation-cli/internal/channel"
	"github.com/sells-group/automation-cli/internal/idempotency"
	"github.com/sells-group/automation-cli/internal/model"
	"github.com/sells-group/automation-cli/internal/rules"
	"github.com/sells-group/automation-cli/internal/store"
)

// Outcome is what Apply did with a finding.
type Outcome int

const (
	// OutcomeApplied means effects were committed and the action recorded.
	OutcomeApplied Outcome = iota
	// OutcomeSkipped means nothing was written.
	OutcomeSkipped
	// OutcomeDryRun means the plan was built but not executed.
	OutcomeDryRun
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeDryRun:
		return "dry_run"
	default:
		return "unknown"
	}
}

// Skip reasons.
const (
	ReasonSeen       = "seen"
	ReasonOpenDeal   = "open_deal"
	ReasonLostRace   = "lost_race"
	ReasonStale      = "stale"
	ReasonQuietHours = "quiet_hours"
	ReasonNoEffect   = "no_effect"
)

// Result reports one Apply call.
type Result struct {
	Outcome Outcome
	Reason  string
	// Sent and Failed count outbound sends after commit.
	Sent   int
	Failed int
}

// Sender delivers outbound messages. *channel.Router implements it.
type Sender interface {
	Send(ctx context.Context, msg channel.Message) (string, error)
}

// Scope is the per-tenant, per-rule context findings are applied in.
type Scope struct {
	TenantID int64
	Now      time.Time
	Calendar *calendar.Calendar
	Setting  rules.Setting
	// Users are the tenant's active users, loaded once per tenant pass.
	Users []model.User
}

func (s Scope) quiet() bool {
	return s.Setting.Quiet != nil && s.Setting.Quiet.Contains(s.Now.In(s.Calendar.Location()))
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithDryRun makes Apply plan without writing or sending.
func WithDryRun(dry bool) Option {
	return func(d *Dispatcher) { d.dryRun = dry }
}

// Dispatcher applies findings against a store.
type Dispatcher struct {
	store  store.Store
	sender Sender
	dryRun bool
}

// New creates a Dispatcher. A nil sender disables outbound fan-out; message
// rows are then marked failed.
func New(st store.Store, sender Sender, opts ...Option) *Dispatcher {
	d := &Dispatcher{store: st, sender: sender}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DryRun reports whether the dispatcher only plans.
func (d *Dispatcher) DryRun() bool { return d.dryRun }

// skipError aborts the tenant transaction without failing the finding.
type skipError struct {
	reason string
}

func (e *skipError) Error() string { return "dispatch: skipped: " + e.reason }

// Apply executes f. The idempotency record is written last inside the same
// transaction as the effects, so a failed persist is retried on the next
// pass and a lost race leaves nothing behind. Outbound sends happen after
// commit and are never rolled back.
func (d *Dispatcher) Apply(ctx context.Context, scope Scope, f rules.Finding) (Result, error) {
	log := zap.L().With(
		zap.String("component", "dispatch"),
		zap.Int64("tenant_id", scope.TenantID),
		zap.String("rule", string(f.Rule)),
		zap.String("subject_type", f.SubjectType),
		zap.Int64("subject_id", f.SubjectID),
	)

	if f.TenantID != scope.TenantID {
		return Result{Outcome: OutcomeSkipped}, eris.Errorf("dispatch: finding for tenant %d applied in tenant %d", f.TenantID, scope.TenantID)
	}

	key := f.Key()
	window := scope.Setting.Window
	guard := idempotency.New(d.store, func() time.Time { return scope.Now })

	seen, err := guard.Seen(ctx, key, window)
	if err != nil {
		return Result{Outcome: OutcomeSkipped}, err
	}
	if seen {
		return Result{Outcome: OutcomeSkipped, Reason: ReasonSeen}, nil
	}

	p, err := d.plan(ctx, scope, f)
	if err != nil {
		return Result{Outcome: OutcomeSkipped}, err
	}
	if p.skip != "" {
		return Result{Outcome: OutcomeSkipped, Reason: p.skip}, nil
	}
	if p.empty() {
		return Result{Outcome: OutcomeSkipped, Reason: ReasonNoEffect}, nil
	}

	if p.dealGuard != nil {
		open, err := d.store.HasOpenDeal(ctx, scope.TenantID, p.dealGuard.source, f.SubjectType, f.SubjectID)
		if err != nil {
			return Result{Outcome: OutcomeSkipped}, err
		}
		if open {
			return Result{Outcome: OutcomeSkipped, Reason: ReasonOpenDeal}, nil
		}
	}

	if d.dryRun {
		log.Info("dispatch: dry run",
			zap.Int("notifications", len(p.notifications)),
			zap.Int("activities", len(p.activities)),
			zap.Int("deals", len(p.deals)),
			zap.Int("messages", len(p.messages)),
			zap.Int("outbound", len(p.outbound)),
		)
		return Result{Outcome: OutcomeDryRun}, nil
	}

	err = d.store.InTenant(ctx, scope.TenantID, func(ctx context.Context, tx store.Tx) error {
		if err := p.persist(ctx, tx, scope.TenantID, f); err != nil {
			return err
		}
		ok, err := guard.With(tx).Record(ctx, key, window)
		if err != nil {
			return err
		}
		if !ok {
			return &skipError{reason: ReasonLostRace}
		}
		return nil
	})
	var skip *skipError
	if errors.As(err, &skip) {
		log.Debug("dispatch: skipped in transaction", zap.String("reason", skip.reason))
		return Result{Outcome: OutcomeSkipped, Reason: skip.reason}, nil
	}
	if err != nil {
		return Result{Outcome: OutcomeSkipped}, eris.Wrapf(err, "dispatch: persist %s", key)
	}

	res := Result{Outcome: OutcomeApplied}
	d.fanOut(ctx, scope, p, &res, log)
	return res, nil
}

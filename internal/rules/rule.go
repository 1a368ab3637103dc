package rules

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/automation-cli/internal/calendar"
	"github.com/sells-group/automation-cli/internal/model"
	"github.com/sells-group/automation-cli/internal/store"
)

// Env is the input of one rule invocation for one tenant.
type Env struct {
	TenantID int64
	Now      time.Time
	Calendar *calendar.Calendar
	Reader   store.Reader
	Setting  Setting
}

// today is the tenant-local date of Now encoded as midnight UTC, the way
// date-only columns are stored.
func (e Env) today() time.Time {
	y, m, d := e.Now.In(e.Calendar.Location()).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Result is the output of one rule invocation. Errors holds per-entity
// failures; those entities produced no finding.
type Result struct {
	Findings []Finding
	Errors   []error
}

func (r *Result) skip(err error) {
	r.Errors = append(r.Errors, err)
}

// Rule evaluates one kind for one tenant. A returned error aborts only this
// invocation; per-entity problems go to Result.Errors.
type Rule interface {
	Kind() Kind
	Evaluate(ctx context.Context, env Env) (*Result, error)
}

type evalFunc func(ctx context.Context, env Env, emit func(subjectType string, id int64, f Facts), res *Result) error

type rule struct {
	kind Kind
	eval evalFunc
}

func (r rule) Kind() Kind { return r.kind }

func (r rule) Evaluate(ctx context.Context, env Env) (*Result, error) {
	if env.Calendar == nil || env.Reader == nil {
		return nil, eris.Errorf("rules: %s: incomplete environment", r.kind)
	}
	res := &Result{}
	emit := func(subjectType string, id int64, f Facts) {
		res.Findings = append(res.Findings, Finding{
			TenantID:    env.TenantID,
			Rule:        r.kind,
			SubjectType: subjectType,
			SubjectID:   id,
			Facts:       f,
		})
	}
	if err := r.eval(ctx, env, emit, res); err != nil {
		return nil, eris.Wrapf(err, "rules: %s", r.kind)
	}
	return res, nil
}

// Registry maps rule kinds to implementations.
type Registry struct {
	rules map[Kind]Rule
	order []Kind
}

// NewRegistry creates a registry holding the full catalog.
func NewRegistry() *Registry {
	r := &Registry{rules: make(map[Kind]Rule)}

	// SLA
	r.Register(rule{SLADueAssign, evalSLADueAssign})
	r.Register(rule{SLAResponseBreach, evalSLAResponseBreach})
	r.Register(rule{SLAResolutionBreach, evalSLAResolutionBreach})
	r.Register(rule{SLAEscalation, evalSLAEscalation})

	// Alerts
	r.Register(rule{OverdueReceivable, evalOverdueReceivable})
	r.Register(rule{OverduePayable, evalOverduePayable})
	r.Register(rule{ExpiringPayable, evalExpiringPayable})
	r.Register(rule{LowStock, evalLowStock})
	r.Register(rule{ContractExpiring, evalContractExpiring})
	r.Register(rule{UnbilledWorkOrder, evalUnbilledWorkOrder})
	r.Register(rule{QuoteExpiring, evalQuoteExpiring})
	r.Register(rule{QuoteExpired, evalQuoteExpired})
	r.Register(rule{WorkOrderNotStarted, evalWorkOrderNotStarted})

	// CRM
	r.Register(rule{CalibrationDue, evalCalibrationDue})
	r.Register(rule{ContractRenewal, evalContractRenewal})
	r.Register(rule{NoContact90d, evalNoContact})
	r.Register(rule{LowHealthScore, evalLowHealthScore})
	r.Register(rule{WorkOrderFollowUp, evalWorkOrderFollowUp})

	// Messages
	r.Register(rule{CalibrationReminder, evalCalibrationReminder})
	r.Register(rule{ContractNotice, evalContractNotice})
	r.Register(rule{CollectionReminder, evalCollectionReminder})

	return r
}

// Register adds or replaces a rule.
func (r *Registry) Register(rl Rule) {
	k := rl.Kind()
	if _, ok := r.rules[k]; !ok {
		r.order = append(r.order, k)
	}
	r.rules[k] = rl
}

// Get returns the rule for k.
func (r *Registry) Get(k Kind) (Rule, error) {
	rl, ok := r.rules[k]
	if !ok {
		return nil, eris.Errorf("rules: unknown rule %q", k)
	}
	return rl, nil
}

// ForJob returns the job's rules in declared order.
func (r *Registry) ForJob(j Job) ([]Rule, error) {
	if _, err := ParseJob(string(j)); err != nil {
		return nil, err
	}
	var out []Rule
	for _, k := range j.Kinds() {
		rl, err := r.Get(k)
		if err != nil {
			return nil, err
		}
		out = append(out, rl)
	}
	return out, nil
}

// Kinds returns registered kinds in registration order.
func (r *Registry) Kinds() []Kind {
	return append([]Kind(nil), r.order...)
}

// dateOf truncates a date-only column value to its UTC date.
func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysUntil is the signed number of calendar days from today to date.
func daysUntil(today, date time.Time) int {
	return int(dateOf(date).Sub(today).Hours() / 24)
}

func customersByID(ctx context.Context, env Env) (map[int64]model.Customer, error) {
	cs, err := env.Reader.ListCustomers(ctx, env.TenantID, false)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]model.Customer, len(cs))
	for _, c := range cs {
		out[c.ID] = c
	}
	return out, nil
}

func openWorkOrders(ctx context.Context, env Env) ([]model.WorkOrder, error) {
	all, err := env.Reader.ListWorkOrders(ctx, env.TenantID)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, wo := range all {
		if !wo.Status.Terminal() {
			out = append(out, wo)
		}
	}
	return out, nil
}

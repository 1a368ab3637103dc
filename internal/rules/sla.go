package rules

import (
	"context"
	"fmt"

	"github.com/sells-group/automation-cli/internal/model"
	"github.com/sells-group/automation-cli/internal/store"
)

// policyFor returns the work order's policy, nil when it has none. A policy
// id that does not resolve is a configuration error for that work order.
func policyFor(kind Kind, wo model.WorkOrder) (*model.SlaPolicy, error) {
	if wo.SlaPolicyID == nil {
		return nil, nil
	}
	if wo.Policy == nil {
		return nil, &ConfigurationError{
			Rule: kind, TenantID: wo.TenantID, SubjectType: SubjectWorkOrder, SubjectID: wo.ID,
			Reason: fmt.Sprintf("sla policy %d not found", *wo.SlaPolicyID),
		}
	}
	return wo.Policy, nil
}

func resolutionPolicy(kind Kind, wo model.WorkOrder) (*model.SlaPolicy, error) {
	p, err := policyFor(kind, wo)
	if err != nil || p == nil {
		return p, err
	}
	if p.ResolutionMinutes <= 0 {
		return nil, &ConfigurationError{
			Rule: kind, TenantID: wo.TenantID, SubjectType: SubjectWorkOrder, SubjectID: wo.ID,
			Reason: fmt.Sprintf("sla policy %d has no resolution budget", p.ID),
		}
	}
	return p, nil
}

func evalSLADueAssign(ctx context.Context, env Env, emit func(string, int64, Facts), res *Result) error {
	wos, err := openWorkOrders(ctx, env)
	if err != nil {
		return err
	}
	for _, wo := range wos {
		p, err := resolutionPolicy(SLADueAssign, wo)
		if err != nil {
			res.skip(err)
			continue
		}
		if p == nil {
			continue
		}
		if wo.SlaDueAt != nil && (wo.SlaComputedPolicyID == nil || *wo.SlaComputedPolicyID == p.ID) {
			continue
		}
		if wo.CreatedAt.IsZero() {
			res.skip(missing(SLADueAssign, SubjectWorkOrder, wo.ID, "created_at"))
			continue
		}
		emit(SubjectWorkOrder, wo.ID, SLADeadlineFacts{
			WorkOrderID: wo.ID,
			Number:      wo.Number,
			PolicyID:    p.ID,
			DueAt:       env.Calendar.Deadline(wo.CreatedAt, p.ResolutionMinutes),
		})
	}
	return nil
}

func evalSLAResponseBreach(ctx context.Context, env Env, emit func(string, int64, Facts), res *Result) error {
	wos, err := openWorkOrders(ctx, env)
	if err != nil {
		return err
	}
	for _, wo := range wos {
		p, err := policyFor(SLAResponseBreach, wo)
		if err != nil {
			res.skip(err)
			continue
		}
		if p == nil || p.ResponseMinutes <= 0 || wo.SlaRespondedAt != nil {
			continue
		}
		if wo.CreatedAt.IsZero() {
			res.skip(missing(SLAResponseBreach, SubjectWorkOrder, wo.ID, "created_at"))
			continue
		}
		deadline := env.Calendar.Deadline(wo.CreatedAt, p.ResponseMinutes)
		if !env.Now.After(deadline) {
			continue
		}
		emit(SubjectWorkOrder, wo.ID, SLABreachFacts{
			WorkOrderID: wo.ID,
			Number:      wo.Number,
			BreachType:  store.BreachResponse,
			Deadline:    deadline,
			AssignedTo:  wo.AssignedTo,
			CustomerID:  wo.CustomerID,
		})
	}
	return nil
}

func evalSLAResolutionBreach(ctx context.Context, env Env, emit func(string, int64, Facts), res *Result) error {
	wos, err := openWorkOrders(ctx, env)
	if err != nil {
		return err
	}
	for _, wo := range wos {
		if wo.SlaDueAt == nil || !wo.SlaDueAt.Before(env.Now) {
			continue
		}
		emit(SubjectWorkOrder, wo.ID, SLABreachFacts{
			WorkOrderID: wo.ID,
			Number:      wo.Number,
			BreachType:  store.BreachResolution,
			Deadline:    *wo.SlaDueAt,
			AssignedTo:  wo.AssignedTo,
			CustomerID:  wo.CustomerID,
		})
	}
	return nil
}

// evalSLAEscalation measures consumed business minutes against the
// resolution budget and reports the highest level reached before breach.
func evalSLAEscalation(ctx context.Context, env Env, emit func(string, int64, Facts), res *Result) error {
	wos, err := openWorkOrders(ctx, env)
	if err != nil {
		return err
	}
	for _, wo := range wos {
		if wo.SlaDueAt == nil || !env.Now.Before(*wo.SlaDueAt) {
			continue
		}
		p, err := resolutionPolicy(SLAEscalation, wo)
		if err != nil {
			res.skip(err)
			continue
		}
		if p == nil {
			continue
		}
		used := env.Calendar.BusinessMinutesBetween(wo.CreatedAt, env.Now)
		percent := used * 100 / p.ResolutionMinutes
		level := LevelFor(percent)
		if level == "" {
			continue
		}
		emit(SubjectWorkOrder, wo.ID, SLAEscalationFacts{
			WorkOrderID: wo.ID,
			Number:      wo.Number,
			Level:       level,
			PercentUsed: percent,
			DueAt:       *wo.SlaDueAt,
			AssignedTo:  wo.AssignedTo,
		})
	}
	return nil
}

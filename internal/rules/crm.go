package rules

import (
	"context"

	"github.com/sells-group/automation-cli/internal/idempotency"
	"github.com/sells-group/automation-cli/internal/model"
)

// Deal sources back the open-deal guard.
const (
	SourceCalibration     = "calibracao_vencendo"
	SourceContractRenewal = "contrato_renovacao"
)

// Pipeline slugs the CRM rules open deals in.
const (
	PipelineRecalibration = "recalibracao"
	PipelineContract      = "contrato"
)

// LowHealthThreshold is the score under which a customer is flagged.
const LowHealthThreshold = 50

// dueEquipment yields active equipment with a customer whose next
// calibration is on or before today+days. Overdue equipment is included.
func dueEquipment(ctx context.Context, env Env, kind Kind, days int, res *Result, fn func(model.Equipment, model.Customer, int)) error {
	eqs, err := env.Reader.ListEquipment(ctx, env.TenantID, model.EquipmentStatusActive)
	if err != nil {
		return err
	}
	customers, err := customersByID(ctx, env)
	if err != nil {
		return err
	}
	today := env.today()
	for _, eq := range eqs {
		if eq.CustomerID == nil || eq.NextCalibrationAt == nil {
			continue
		}
		left := daysUntil(today, *eq.NextCalibrationAt)
		if left > days {
			continue
		}
		c, ok := customers[*eq.CustomerID]
		if !ok {
			res.skip(&DataError{Rule: kind, SubjectType: SubjectEquipment, SubjectID: eq.ID,
				Field: "customer_id", Reason: "references a missing customer"})
			continue
		}
		fn(eq, c, left)
	}
	return nil
}

func calibrationFacts(eq model.Equipment, c model.Customer, left int) CalibrationFacts {
	return CalibrationFacts{
		EquipmentID:   eq.ID,
		Code:          eq.Code,
		Label:         eq.Label(),
		Customer:      c,
		DueAt:         dateOf(*eq.NextCalibrationAt),
		DaysRemaining: left,
	}
}

func evalCalibrationDue(ctx context.Context, env Env, emit func(string, int64, Facts), res *Result) error {
	return dueEquipment(ctx, env, CalibrationDue, env.Setting.Days, res, func(eq model.Equipment, c model.Customer, left int) {
		emit(SubjectEquipment, eq.ID, calibrationFacts(eq, c, left))
	})
}

func evalContractRenewal(ctx context.Context, env Env, emit func(string, int64, Facts), res *Result) error {
	customers, err := customersByID(ctx, env)
	if err != nil {
		return err
	}
	return expiringContracts(ctx, env, ContractRenewal, env.Setting.Days, res, func(ct model.Contract, left int) {
		if ct.CustomerID == nil {
			res.skip(missing(ContractRenewal, SubjectContract, ct.ID, "customer_id"))
			return
		}
		c, ok := customers[*ct.CustomerID]
		if !ok {
			res.skip(&DataError{Rule: ContractRenewal, SubjectType: SubjectContract, SubjectID: ct.ID,
				Field: "customer_id", Reason: "references a missing customer"})
			return
		}
		emit(SubjectContract, ct.ID, ContractFacts{
			ContractID: ct.ID,
			Number:     ct.Number,
			Customer:   &c,
			Value:      Money(ct.Value),
			EndDate:    dateOf(*ct.EndDate),
			DaysLeft:   left,
		})
	})
}

func evalNoContact(ctx context.Context, env Env, emit func(string, int64, Facts), _ *Result) error {
	cs, err := env.Reader.ListCustomers(ctx, env.TenantID, true)
	if err != nil {
		return err
	}
	cutoff := env.Now.Add(-idempotency.Days(env.Setting.Days))
	for _, c := range cs {
		if c.LastContactAt != nil && !c.LastContactAt.Before(cutoff) {
			continue
		}
		f := CustomerFacts{Customer: c, LastContactAt: c.LastContactAt}
		if c.LastContactAt != nil {
			f.DaysSince = int(env.Now.Sub(*c.LastContactAt).Hours() / 24)
		}
		emit(SubjectCustomer, c.ID, f)
	}
	return nil
}

func evalLowHealthScore(ctx context.Context, env Env, emit func(string, int64, Facts), _ *Result) error {
	cs, err := env.Reader.ListCustomers(ctx, env.TenantID, true)
	if err != nil {
		return err
	}
	for _, c := range cs {
		if c.HealthScore == nil || *c.HealthScore <= 0 || *c.HealthScore >= LowHealthThreshold {
			continue
		}
		emit(SubjectCustomer, c.ID, CustomerFacts{Customer: c, Score: *c.HealthScore})
	}
	return nil
}

func evalWorkOrderFollowUp(ctx context.Context, env Env, emit func(string, int64, Facts), res *Result) error {
	wos, err := env.Reader.ListWorkOrders(ctx, env.TenantID, model.WorkOrderStatusCompleted)
	if err != nil {
		return err
	}
	since := env.Now.Add(-idempotency.Days(env.Setting.Days))
	for _, wo := range wos {
		if wo.CompletedAt == nil {
			res.skip(missing(WorkOrderFollowUp, SubjectWorkOrder, wo.ID, "completed_at"))
			continue
		}
		if wo.CompletedAt.Before(since) {
			continue
		}
		if wo.CustomerID == nil {
			res.skip(missing(WorkOrderFollowUp, SubjectWorkOrder, wo.ID, "customer_id"))
			continue
		}
		emit(SubjectWorkOrder, wo.ID, FollowUpFacts{
			WorkOrderID: wo.ID,
			Number:      wo.Number,
			CustomerID:  *wo.CustomerID,
			AssignedTo:  wo.AssignedTo,
			CompletedAt: *wo.CompletedAt,
		})
	}
	return nil
}

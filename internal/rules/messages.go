package rules

import (
	"context"
	"strings"

	"github.com/sells-group/automation-cli/internal/model"
)

// Template slugs looked up for customer messages.
const (
	TemplateCalibration = "lembrete-calibracao"
	TemplateContract    = "contrato-expirando"
	TemplateCollection  = "cobranca"
)

func evalCalibrationReminder(ctx context.Context, env Env, emit func(string, int64, Facts), res *Result) error {
	return dueEquipment(ctx, env, CalibrationReminder, env.Setting.Days, res, func(eq model.Equipment, c model.Customer, left int) {
		if strings.TrimSpace(c.Phone) == "" {
			return
		}
		emit(SubjectEquipment, eq.ID, calibrationFacts(eq, c, left))
	})
}

func evalContractNotice(ctx context.Context, env Env, emit func(string, int64, Facts), res *Result) error {
	customers, err := customersByID(ctx, env)
	if err != nil {
		return err
	}
	return expiringContracts(ctx, env, ContractNotice, env.Setting.Days, res, func(ct model.Contract, left int) {
		if ct.CustomerID == nil {
			return
		}
		c, ok := customers[*ct.CustomerID]
		if !ok || !c.Active || strings.TrimSpace(c.Email) == "" {
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

func evalCollectionReminder(ctx context.Context, env Env, emit func(string, int64, Facts), res *Result) error {
	ars, err := env.Reader.ListReceivables(ctx, env.TenantID, model.FinanceStatusOverdue)
	if err != nil {
		return err
	}
	customers, err := customersByID(ctx, env)
	if err != nil {
		return err
	}
	today := env.today()
	for _, ar := range ars {
		if ar.CustomerID == nil {
			continue
		}
		if ar.DueDate == nil {
			res.skip(missing(CollectionReminder, SubjectReceivable, ar.ID, "due_date"))
			continue
		}
		c, ok := customers[*ar.CustomerID]
		if !ok || strings.TrimSpace(c.Phone) == "" {
			continue
		}
		emit(SubjectReceivable, ar.ID, OverdueFacts{
			ID:          ar.ID,
			Description: ar.Description,
			Customer:    &c,
			Amount:      Money(ar.Amount),
			DueDate:     dateOf(*ar.DueDate),
			DaysOverdue: -daysUntil(today, *ar.DueDate),
		})
	}
	return nil
}

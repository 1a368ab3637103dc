package rules

import (
	"context"
	"time"

	"github.com/sells-group/automation-cli/internal/idempotency"
	"github.com/sells-group/automation-cli/internal/model"
)

func evalOverdueReceivable(ctx context.Context, env Env, emit func(string, int64, Facts), res *Result) error {
	ars, err := env.Reader.ListReceivables(ctx, env.TenantID, model.FinanceStatusPending)
	if err != nil {
		return err
	}
	customers, err := customersByID(ctx, env)
	if err != nil {
		return err
	}
	today := env.today()
	for _, ar := range ars {
		if ar.DueDate == nil {
			res.skip(missing(OverdueReceivable, SubjectReceivable, ar.ID, "due_date"))
			continue
		}
		if !dateOf(*ar.DueDate).Before(today) {
			continue
		}
		f := OverdueFacts{
			ID:          ar.ID,
			Description: ar.Description,
			Amount:      Money(ar.Amount),
			DueDate:     dateOf(*ar.DueDate),
			DaysOverdue: -daysUntil(today, *ar.DueDate),
		}
		if ar.CustomerID != nil {
			if c, ok := customers[*ar.CustomerID]; ok {
				f.Customer = &c
			}
		}
		emit(SubjectReceivable, ar.ID, f)
	}
	return nil
}

func evalOverduePayable(ctx context.Context, env Env, emit func(string, int64, Facts), res *Result) error {
	aps, err := env.Reader.ListPayables(ctx, env.TenantID, model.FinanceStatusPending)
	if err != nil {
		return err
	}
	today := env.today()
	for _, ap := range aps {
		if ap.DueDate == nil {
			res.skip(missing(OverduePayable, SubjectPayable, ap.ID, "due_date"))
			continue
		}
		if !dateOf(*ap.DueDate).Before(today) {
			continue
		}
		emit(SubjectPayable, ap.ID, OverdueFacts{
			ID:          ap.ID,
			Description: ap.Description,
			Supplier:    ap.Supplier,
			Amount:      Money(ap.Amount),
			DueDate:     dateOf(*ap.DueDate),
			DaysOverdue: -daysUntil(today, *ap.DueDate),
		})
	}
	return nil
}

func evalExpiringPayable(ctx context.Context, env Env, emit func(string, int64, Facts), res *Result) error {
	aps, err := env.Reader.ListPayables(ctx, env.TenantID, model.FinanceStatusPending)
	if err != nil {
		return err
	}
	today := env.today()
	for _, ap := range aps {
		if ap.DueDate == nil {
			res.skip(missing(ExpiringPayable, SubjectPayable, ap.ID, "due_date"))
			continue
		}
		left := daysUntil(today, *ap.DueDate)
		if left < 0 || left > env.Setting.Days {
			continue
		}
		emit(SubjectPayable, ap.ID, PayableDueFacts{
			ID:          ap.ID,
			Description: ap.Description,
			Supplier:    ap.Supplier,
			Amount:      Money(ap.Amount),
			DueDate:     dateOf(*ap.DueDate),
			DaysLeft:    left,
		})
	}
	return nil
}

func evalLowStock(ctx context.Context, env Env, emit func(string, int64, Facts), _ *Result) error {
	ps, err := env.Reader.ListProducts(ctx, env.TenantID, true)
	if err != nil {
		return err
	}
	for _, p := range ps {
		if p.StockMin <= 0 || p.StockQty > p.StockMin {
			continue
		}
		emit(SubjectProduct, p.ID, LowStockFacts{
			ProductID: p.ID,
			Name:      p.Name,
			Unit:      p.Unit,
			StockQty:  p.StockQty,
			StockMin:  p.StockMin,
			Deficit:   p.StockMin - p.StockQty,
		})
	}
	return nil
}

// expiringContracts yields active contracts ending within [today, today+days].
func expiringContracts(ctx context.Context, env Env, kind Kind, days int, res *Result, fn func(model.Contract, int)) error {
	cs, err := env.Reader.ListContracts(ctx, env.TenantID, model.ContractStatusActive)
	if err != nil {
		return err
	}
	today := env.today()
	for _, c := range cs {
		if c.EndDate == nil {
			res.skip(missing(kind, SubjectContract, c.ID, "end_date"))
			continue
		}
		left := daysUntil(today, *c.EndDate)
		if left < 0 || left > days {
			continue
		}
		fn(c, left)
	}
	return nil
}

func evalContractExpiring(ctx context.Context, env Env, emit func(string, int64, Facts), res *Result) error {
	customers, err := customersByID(ctx, env)
	if err != nil {
		return err
	}
	return expiringContracts(ctx, env, ContractExpiring, env.Setting.Days, res, func(c model.Contract, left int) {
		f := ContractFacts{
			ContractID: c.ID,
			Number:     c.Number,
			Value:      Money(c.Value),
			EndDate:    dateOf(*c.EndDate),
			DaysLeft:   left,
		}
		if c.CustomerID != nil {
			if cust, ok := customers[*c.CustomerID]; ok {
				f.Customer = &cust
			}
		}
		emit(SubjectContract, c.ID, f)
	})
}

func evalUnbilledWorkOrder(ctx context.Context, env Env, emit func(string, int64, Facts), res *Result) error {
	wos, err := env.Reader.ListWorkOrders(ctx, env.TenantID, model.WorkOrderStatusCompleted)
	if err != nil {
		return err
	}
	grace := idempotency.Days(env.Setting.Days)
	for _, wo := range wos {
		if wo.CompletedAt == nil {
			res.skip(missing(UnbilledWorkOrder, SubjectWorkOrder, wo.ID, "completed_at"))
			continue
		}
		since := env.Now.Sub(*wo.CompletedAt)
		if since <= grace {
			continue
		}
		emit(SubjectWorkOrder, wo.ID, UnbilledFacts{
			WorkOrderID: wo.ID,
			Number:      wo.Number,
			CustomerID:  wo.CustomerID,
			CompletedAt: *wo.CompletedAt,
			HoursSince:  int(since / time.Hour),
		})
	}
	return nil
}

func evalQuoteExpired(ctx context.Context, env Env, emit func(string, int64, Facts), _ *Result) error {
	qs, err := env.Reader.ListQuotes(ctx, env.TenantID, model.QuoteStatusSent, model.QuoteStatusPending)
	if err != nil {
		return err
	}
	today := env.today()
	for _, q := range qs {
		// Quotes without a validity date never expire.
		if q.ValidUntil == nil || !dateOf(*q.ValidUntil).Before(today) {
			continue
		}
		emit(SubjectQuote, q.ID, QuoteFacts{
			QuoteID:     q.ID,
			Number:      q.Number,
			CustomerID:  q.CustomerID,
			SellerID:    q.SellerID,
			Total:       Money(q.Total),
			ValidUntil:  dateOf(*q.ValidUntil),
			DaysExpired: -daysUntil(today, *q.ValidUntil),
		})
	}
	return nil
}

func evalQuoteExpiring(ctx context.Context, env Env, emit func(string, int64, Facts), _ *Result) error {
	qs, err := env.Reader.ListQuotes(ctx, env.TenantID, model.QuoteStatusSent, model.QuoteStatusPending)
	if err != nil {
		return err
	}
	customers, err := customersByID(ctx, env)
	if err != nil {
		return err
	}
	today := env.today()
	for _, q := range qs {
		if q.ValidUntil == nil {
			continue
		}
		left := daysUntil(today, *q.ValidUntil)
		if left < 0 || left > env.Setting.Days {
			continue
		}
		f := QuoteExpiringFacts{
			QuoteID:    q.ID,
			Number:     q.Number,
			SellerID:   q.SellerID,
			Total:      Money(q.Total),
			ValidUntil: dateOf(*q.ValidUntil),
			DaysLeft:   left,
		}
		if q.CustomerID != nil {
			if c, ok := customers[*q.CustomerID]; ok {
				f.Customer = &c
			}
		}
		emit(SubjectQuote, q.ID, f)
	}
	return nil
}

func evalWorkOrderNotStarted(ctx context.Context, env Env, emit func(string, int64, Facts), _ *Result) error {
	wos, err := env.Reader.ListWorkOrders(ctx, env.TenantID, model.WorkOrderStatusOpen, model.WorkOrderStatusAwaitingDispatch)
	if err != nil {
		return err
	}
	customers, err := customersByID(ctx, env)
	if err != nil {
		return err
	}
	threshold := idempotency.Days(env.Setting.Days)
	for _, wo := range wos {
		idle := env.Now.Sub(wo.CreatedAt)
		if idle <= threshold {
			continue
		}
		f := IdleWorkOrderFacts{
			WorkOrderID: wo.ID,
			Number:      wo.Number,
			AssignedTo:  wo.AssignedTo,
			CreatedAt:   wo.CreatedAt,
			HoursIdle:   int(idle / time.Hour),
		}
		if wo.CustomerID != nil {
			if c, ok := customers[*wo.CustomerID]; ok {
				f.Customer = &c
			}
		}
		emit(SubjectWorkOrder, wo.ID, f)
	}
	return nil
}

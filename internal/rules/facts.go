package rules

import (
	"time"

	"github.com/sells-group/automation-cli/internal/idempotency"
	"github.com/sells-group/automation-cli/internal/model"
	"github.com/sells-group/automation-cli/internal/store"
)

// Money is a currency amount. Message bodies render it as BRL.
type Money float64

// Facts is the typed payload of a Finding. The implementations below are the
// complete set.
type Facts interface {
	// Data is the structured map stored on the notification row.
	Data() map[string]any
	facts()
}

// Finding is one subject a rule fired for. It lives for one pass.
type Finding struct {
	TenantID    int64
	Rule        Kind
	SubjectType string
	SubjectID   int64
	Facts       Facts
}

// Key returns the idempotency key. Escalations are keyed per level so each
// level fires once per window.
func (f Finding) Key() idempotency.Key {
	rule := string(f.Rule)
	if e, ok := f.Facts.(SLAEscalationFacts); ok {
		rule += ":" + string(e.Level)
	}
	return idempotency.Key{
		TenantID:    f.TenantID,
		SubjectType: f.SubjectType,
		SubjectID:   f.SubjectID,
		RuleKey:     rule,
	}
}

// SLADeadlineFacts carries a computed resolution deadline.
type SLADeadlineFacts struct {
	WorkOrderID int64
	Number      string
	PolicyID    int64
	DueAt       time.Time
}

func (SLADeadlineFacts) facts() {}

func (f SLADeadlineFacts) Data() map[string]any {
	return map[string]any{
		"work_order_id": f.WorkOrderID,
		"number":        f.Number,
		"policy_id":     f.PolicyID,
		"sla_due_at":    f.DueAt,
	}
}

// SLABreachFacts describes a missed response or resolution deadline.
type SLABreachFacts struct {
	WorkOrderID int64
	Number      string
	BreachType  store.BreachKind
	Deadline    time.Time
	AssignedTo  *int64
	CustomerID  *int64
}

func (SLABreachFacts) facts() {}

func (f SLABreachFacts) Data() map[string]any {
	return map[string]any{
		"work_order_id": f.WorkOrderID,
		"number":        f.Number,
		"breach_type":   string(f.BreachType),
		"deadline":      f.Deadline,
	}
}

// EscalationLevel is the share of the resolution budget already consumed.
type EscalationLevel string

const (
	EscalationWarning  EscalationLevel = "warning"
	EscalationHigh     EscalationLevel = "high"
	EscalationCritical EscalationLevel = "critical"
)

// escalationThresholds is ordered from the highest level down.
var escalationThresholds = []struct {
	level   EscalationLevel
	percent int
}{
	{EscalationCritical, 90},
	{EscalationHigh, 75},
	{EscalationWarning, 50},
}

// LevelFor returns the highest level reached by percent, or "" below 50%.
func LevelFor(percent int) EscalationLevel {
	for _, t := range escalationThresholds {
		if percent >= t.percent {
			return t.level
		}
	}
	return ""
}

// SLAEscalationFacts reports an open work order approaching its deadline.
type SLAEscalationFacts struct {
	WorkOrderID int64
	Number      string
	Level       EscalationLevel
	PercentUsed int
	DueAt       time.Time
	AssignedTo  *int64
}

func (SLAEscalationFacts) facts() {}

func (f SLAEscalationFacts) Data() map[string]any {
	return map[string]any{
		"work_order_id": f.WorkOrderID,
		"number":        f.Number,
		"level":         string(f.Level),
		"percent_used":  f.PercentUsed,
		"sla_due_at":    f.DueAt,
	}
}

// OverdueFacts describes a receivable or payable past its due date.
// Customer is set for receivables that have one.
type OverdueFacts struct {
	ID          int64
	Description string
	Supplier    string
	Customer    *model.Customer
	Amount      Money
	DueDate     time.Time
	DaysOverdue int
}

func (OverdueFacts) facts() {}

func (f OverdueFacts) Data() map[string]any {
	d := map[string]any{
		"id":           f.ID,
		"description":  f.Description,
		"amount":       f.Amount,
		"due_date":     f.DueDate.Format(time.DateOnly),
		"days_overdue": f.DaysOverdue,
	}
	if f.Supplier != "" {
		d["supplier"] = f.Supplier
	}
	if f.Customer != nil {
		d["customer_id"] = f.Customer.ID
	}
	return d
}

// PayableDueFacts describes a pending payable due within the horizon.
type PayableDueFacts struct {
	ID          int64
	Description string
	Supplier    string
	Amount      Money
	DueDate     time.Time
	DaysLeft    int
}

func (PayableDueFacts) facts() {}

func (f PayableDueFacts) Data() map[string]any {
	d := map[string]any{
		"id":          f.ID,
		"description": f.Description,
		"amount":      f.Amount,
		"due_date":    f.DueDate.Format(time.DateOnly),
		"days_left":   f.DaysLeft,
	}
	if f.Supplier != "" {
		d["supplier"] = f.Supplier
	}
	return d
}

// LowStockFacts reports a product at or under its minimum.
type LowStockFacts struct {
	ProductID int64
	Name      string
	Unit      string
	StockQty  float64
	StockMin  float64
	Deficit   float64
}

func (LowStockFacts) facts() {}

func (f LowStockFacts) Data() map[string]any {
	return map[string]any{
		"product_id": f.ProductID,
		"name":       f.Name,
		"stock_qty":  f.StockQty,
		"stock_min":  f.StockMin,
		"deficit":    f.Deficit,
	}
}

// ContractFacts describes a contract nearing its end date.
type ContractFacts struct {
	ContractID int64
	Number     string
	Customer   *model.Customer
	Value      Money
	EndDate    time.Time
	DaysLeft   int
}

func (ContractFacts) facts() {}

func (f ContractFacts) Data() map[string]any {
	d := map[string]any{
		"contract_id": f.ContractID,
		"number":      f.Number,
		"value":       f.Value,
		"end_date":    f.EndDate.Format(time.DateOnly),
		"days_left":   f.DaysLeft,
	}
	if f.Customer != nil {
		d["customer_id"] = f.Customer.ID
	}
	return d
}

// UnbilledFacts reports a completed work order not yet invoiced.
type UnbilledFacts struct {
	WorkOrderID int64
	Number      string
	CustomerID  *int64
	CompletedAt time.Time
	HoursSince  int
}

func (UnbilledFacts) facts() {}

func (f UnbilledFacts) Data() map[string]any {
	return map[string]any{
		"work_order_id": f.WorkOrderID,
		"number":        f.Number,
		"completed_at":  f.CompletedAt,
		"hours_since":   f.HoursSince,
	}
}

// QuoteFacts reports a sent quote past its validity.
type QuoteFacts struct {
	QuoteID     int64
	Number      string
	CustomerID  *int64
	SellerID    *int64
	Total       Money
	ValidUntil  time.Time
	DaysExpired int
}

func (QuoteFacts) facts() {}

func (f QuoteFacts) Data() map[string]any {
	return map[string]any{
		"quote_id":     f.QuoteID,
		"number":       f.Number,
		"total":        f.Total,
		"valid_until":  f.ValidUntil.Format(time.DateOnly),
		"days_expired": f.DaysExpired,
	}
}

// QuoteExpiringFacts reports a sent quote whose validity ends within the
// horizon.
type QuoteExpiringFacts struct {
	QuoteID    int64
	Number     string
	Customer   *model.Customer
	SellerID   *int64
	Total      Money
	ValidUntil time.Time
	DaysLeft   int
}

func (QuoteExpiringFacts) facts() {}

func (f QuoteExpiringFacts) Data() map[string]any {
	d := map[string]any{
		"quote_id":    f.QuoteID,
		"number":      f.Number,
		"total":       f.Total,
		"valid_until": f.ValidUntil.Format(time.DateOnly),
		"days_left":   f.DaysLeft,
	}
	if f.Customer != nil {
		d["customer_id"] = f.Customer.ID
	}
	return d
}

// IdleWorkOrderFacts reports an open work order not started after the
// threshold.
type IdleWorkOrderFacts struct {
	WorkOrderID int64
	Number      string
	Customer    *model.Customer
	AssignedTo  *int64
	CreatedAt   time.Time
	HoursIdle   int
}

func (IdleWorkOrderFacts) facts() {}

func (f IdleWorkOrderFacts) Data() map[string]any {
	d := map[string]any{
		"work_order_id": f.WorkOrderID,
		"number":        f.Number,
		"created_at":    f.CreatedAt,
		"hours_idle":    f.HoursIdle,
	}
	if f.Customer != nil {
		d["customer_id"] = f.Customer.ID
	}
	return d
}

// CalibrationFacts reports equipment whose calibration is due. DaysRemaining
// is negative once the date has passed.
type CalibrationFacts struct {
	EquipmentID   int64
	Code          string
	Label         string
	Customer      model.Customer
	DueAt         time.Time
	DaysRemaining int
}

func (CalibrationFacts) facts() {}

func (f CalibrationFacts) Data() map[string]any {
	return map[string]any{
		"equipment_id":   f.EquipmentID,
		"code":           f.Code,
		"customer_id":    f.Customer.ID,
		"due_at":         f.DueAt.Format(time.DateOnly),
		"days_remaining": f.DaysRemaining,
	}
}

// CustomerFacts covers the customer-relationship rules (no contact, low
// health score).
type CustomerFacts struct {
	Customer      model.Customer
	LastContactAt *time.Time
	DaysSince     int
	Score         int
}

func (CustomerFacts) facts() {}

func (f CustomerFacts) Data() map[string]any {
	d := map[string]any{
		"customer_id": f.Customer.ID,
		"name":        f.Customer.Name,
	}
	if f.LastContactAt != nil {
		d["last_contact_at"] = *f.LastContactAt
		d["days_since"] = f.DaysSince
	}
	if f.Score > 0 {
		d["health_score"] = f.Score
	}
	return d
}

// FollowUpFacts reports a recently completed work order.
type FollowUpFacts struct {
	WorkOrderID int64
	Number      string
	CustomerID  int64
	AssignedTo  *int64
	CompletedAt time.Time
}

func (FollowUpFacts) facts() {}

func (f FollowUpFacts) Data() map[string]any {
	return map[string]any{
		"work_order_id": f.WorkOrderID,
		"number":        f.Number,
		"customer_id":   f.CustomerID,
		"completed_at":  f.CompletedAt,
	}
}

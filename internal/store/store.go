// Package store is the tenant-scoped entity store. Every read and write takes
// an explicit tenant id; there is no ambient "current tenant" and no
// unscoped query.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/automation-cli/internal/idempotency"
	"github.com/sells-group/automation-cli/internal/model"
)

// ErrNotFound is returned (wrapped) when a single-row lookup matches nothing.
var ErrNotFound = eris.New("store: not found")

// TenantFilter selects tenants for a scheduler pass.
type TenantFilter struct {
	ID     *int64             `json:"id,omitempty"`
	Status model.TenantStatus `json:"status,omitempty"`
}

// Reader is the batch read path used by rules. All methods are tenant-scoped.
type Reader interface {
	TenantCalendar(ctx context.Context, tenantID int64) (*model.TenantCalendar, error)
	RuleSettings(ctx context.Context, tenantID int64) (map[string]model.RuleSetting, error)
	ListUsers(ctx context.Context, tenantID int64, roles ...model.Role) ([]model.User, error)

	ListWorkOrders(ctx context.Context, tenantID int64, statuses ...model.WorkOrderStatus) ([]model.WorkOrder, error)
	ListReceivables(ctx context.Context, tenantID int64, statuses ...model.FinanceStatus) ([]model.AccountReceivable, error)
	ListPayables(ctx context.Context, tenantID int64, statuses ...model.FinanceStatus) ([]model.AccountPayable, error)
	ListContracts(ctx context.Context, tenantID int64, status model.ContractStatus) ([]model.Contract, error)
	ListEquipment(ctx context.Context, tenantID int64, status model.EquipmentStatus) ([]model.Equipment, error)
	ListProducts(ctx context.Context, tenantID int64, activeOnly bool) ([]model.Product, error)
	ListQuotes(ctx context.Context, tenantID int64, statuses ...model.QuoteStatus) ([]model.Quote, error)
	ListCustomers(ctx context.Context, tenantID int64, activeOnly bool) ([]model.Customer, error)
	GetCustomer(ctx context.Context, tenantID, customerID int64) (*model.Customer, error)

	PipelineBySlug(ctx context.Context, tenantID int64, slug string) (*model.CrmPipeline, error)
	MessageTemplate(ctx context.Context, tenantID int64, slug, channel string) (*model.MessageTemplate, error)
	HasOpenDeal(ctx context.Context, tenantID int64, source, subjectType string, subjectID int64) (bool, error)

	LastPerformed(ctx context.Context, key idempotency.Key) (*time.Time, error)
}

// Tx is a tenant-scoped transaction. Writes are limited to status-column
// updates and inserts of effect rows; the engine never deletes.
type Tx interface {
	Reader
	idempotency.Store

	InsertNotification(ctx context.Context, n model.Notification) error
	InsertActivity(ctx context.Context, a model.CrmActivity) error
	InsertDeal(ctx context.Context, d model.CrmDeal) error
	InsertMessage(ctx context.Context, m model.CrmMessage) error

	SetWorkOrderSlaDue(ctx context.Context, tenantID, workOrderID int64, dueAt time.Time, policyID int64) error
	FlagWorkOrderBreach(ctx context.Context, tenantID, workOrderID int64, breach BreachKind) error
	// TransitionReceivable moves a receivable from one status to another.
	// It reports false when the row is no longer in from.
	TransitionReceivable(ctx context.Context, tenantID, id int64, from, to model.FinanceStatus) (bool, error)
	TransitionPayable(ctx context.Context, tenantID, id int64, from, to model.FinanceStatus) (bool, error)
}

// Store is the full entity store.
type Store interface {
	Reader

	ListTenants(ctx context.Context, filter TenantFilter) ([]model.Tenant, error)
	// InTenant runs fn in one transaction scoped to tenantID. fn's error
	// rolls the transaction back.
	InTenant(ctx context.Context, tenantID int64, fn func(ctx context.Context, tx Tx) error) error
	// UpdateMessageStatus records the outcome of an outbound send.
	UpdateMessageStatus(ctx context.Context, tenantID int64, messageID string, status model.MessageStatus, errMsg string, sentAt *time.Time) error

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// BreachKind names the SLA flag a breach sets.
type BreachKind string

const (
	BreachResponse   BreachKind = "response"
	BreachResolution BreachKind = "resolution"
)

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Tx    = (*sqlStore)(nil)
)

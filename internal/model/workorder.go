package model

import "time"

// WorkOrderStatus represents the current state of a work order.
type WorkOrderStatus string

const (
	WorkOrderStatusOpen             WorkOrderStatus = "open"
	WorkOrderStatusAwaitingDispatch WorkOrderStatus = "awaiting_dispatch"
	WorkOrderStatusInProgress       WorkOrderStatus = "in_progress"
	WorkOrderStatusWaitingParts     WorkOrderStatus = "waiting_parts"
	WorkOrderStatusWaitingApproval  WorkOrderStatus = "waiting_approval"
	WorkOrderStatusCompleted        WorkOrderStatus = "completed"
	WorkOrderStatusDelivered        WorkOrderStatus = "delivered"
	WorkOrderStatusInvoiced         WorkOrderStatus = "invoiced"
	WorkOrderStatusCancelled        WorkOrderStatus = "cancelled"
)

// Terminal reports whether no SLA rule applies to a work order in this status.
func (s WorkOrderStatus) Terminal() bool {
	switch s {
	case WorkOrderStatusCompleted, WorkOrderStatusDelivered,
		WorkOrderStatusInvoiced, WorkOrderStatusCancelled:
		return true
	}
	return false
}

// TerminalWorkOrderStatuses lists the statuses for which Terminal is true.
var TerminalWorkOrderStatuses = []WorkOrderStatus{
	WorkOrderStatusCompleted,
	WorkOrderStatusDelivered,
	WorkOrderStatusInvoiced,
	WorkOrderStatusCancelled,
}

// SlaPolicy defines response and resolution budgets in business minutes.
// ResponseMinutes of zero means the policy has no response target.
type SlaPolicy struct {
	ID                int64  `json:"id"`
	TenantID          int64  `json:"tenant_id"`
	Name              string `json:"name"`
	Priority          string `json:"priority,omitempty"`
	ResponseMinutes   int    `json:"response_minutes"`
	ResolutionMinutes int    `json:"resolution_minutes"`
}

// WorkOrder is a field-service job tracked against an optional SLA policy.
type WorkOrder struct {
	ID                    int64           `json:"id"`
	TenantID              int64           `json:"tenant_id"`
	Number                string          `json:"number"`
	CustomerID            *int64          `json:"customer_id,omitempty"`
	AssignedTo            *int64          `json:"assigned_to,omitempty"`
	Status                WorkOrderStatus `json:"status"`
	SlaPolicyID           *int64          `json:"sla_policy_id,omitempty"`
	SlaDueAt              *time.Time      `json:"sla_due_at,omitempty"`
	SlaComputedPolicyID   *int64          `json:"sla_computed_policy_id,omitempty"`
	SlaRespondedAt        *time.Time      `json:"sla_responded_at,omitempty"`
	SlaResponseBreached   bool            `json:"sla_response_breached"`
	SlaResolutionBreached bool            `json:"sla_resolution_breached"`
	CreatedAt             time.Time       `json:"created_at"`
	CompletedAt           *time.Time      `json:"completed_at,omitempty"`

	// Policy is the joined SlaPolicy, nil when SlaPolicyID does not resolve.
	Policy *SlaPolicy `json:"policy,omitempty"`
}

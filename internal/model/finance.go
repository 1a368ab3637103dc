package model

import "time"

// FinanceStatus is the state shared by receivables and payables.
//
//	pending -> overdue -> paid
//	pending -> paid
//	paid, cancelled: terminal
type FinanceStatus string

const (
	FinanceStatusPending   FinanceStatus = "pending"
	FinanceStatusOverdue   FinanceStatus = "overdue"
	FinanceStatusPaid      FinanceStatus = "paid"
	FinanceStatusCancelled FinanceStatus = "cancelled"
)

// Terminal reports whether the status accepts no further transitions.
func (s FinanceStatus) Terminal() bool {
	return s == FinanceStatusPaid || s == FinanceStatusCancelled
}

// CanTransition reports whether moving from s to next is a legal transition.
func (s FinanceStatus) CanTransition(next FinanceStatus) bool {
	if s.Terminal() || s == next {
		return false
	}
	switch s {
	case FinanceStatusPending:
		return next == FinanceStatusOverdue || next == FinanceStatusPaid || next == FinanceStatusCancelled
	case FinanceStatusOverdue:
		return next == FinanceStatusPaid || next == FinanceStatusCancelled
	}
	return false
}

// AccountReceivable is money owed to the tenant by a customer.
type AccountReceivable struct {
	ID          int64         `json:"id"`
	TenantID    int64         `json:"tenant_id"`
	CustomerID  *int64        `json:"customer_id,omitempty"`
	Description string        `json:"description"`
	Amount      float64       `json:"amount"`
	DueDate     *time.Time    `json:"due_date,omitempty"`
	Status      FinanceStatus `json:"status"`
	PaidAt      *time.Time    `json:"paid_at,omitempty"`
}

// AccountPayable is money the tenant owes a supplier.
type AccountPayable struct {
	ID          int64         `json:"id"`
	TenantID    int64         `json:"tenant_id"`
	Supplier    string        `json:"supplier"`
	Description string        `json:"description"`
	Amount      float64       `json:"amount"`
	DueDate     *time.Time    `json:"due_date,omitempty"`
	Status      FinanceStatus `json:"status"`
	PaidAt      *time.Time    `json:"paid_at,omitempty"`
}

// ContractStatus represents the state of a service contract.
type ContractStatus string

const (
	ContractStatusActive    ContractStatus = "active"
	ContractStatusExpired   ContractStatus = "expired"
	ContractStatusCancelled ContractStatus = "cancelled"
)

// Contract is a recurring service agreement with a customer.
type Contract struct {
	ID         int64          `json:"id"`
	TenantID   int64          `json:"tenant_id"`
	CustomerID *int64         `json:"customer_id,omitempty"`
	Number     string         `json:"number"`
	Value      float64        `json:"value"`
	Status     ContractStatus `json:"status"`
	EndDate    *time.Time     `json:"end_date,omitempty"`
}

// QuoteStatus represents the state of a sales quote.
type QuoteStatus string

const (
	QuoteStatusDraft    QuoteStatus = "draft"
	QuoteStatusSent     QuoteStatus = "sent"
	QuoteStatusPending  QuoteStatus = "pending"
	QuoteStatusApproved QuoteStatus = "approved"
	QuoteStatusRejected QuoteStatus = "rejected"
	QuoteStatusExpired  QuoteStatus = "expired"
)

// Quote is a priced proposal sent to a customer.
type Quote struct {
	ID         int64       `json:"id"`
	TenantID   int64       `json:"tenant_id"`
	Number     string      `json:"number"`
	CustomerID *int64      `json:"customer_id,omitempty"`
	SellerID   *int64      `json:"seller_id,omitempty"`
	Total      float64     `json:"total"`
	Status     QuoteStatus `json:"status"`
	ValidUntil *time.Time  `json:"valid_until,omitempty"`
}

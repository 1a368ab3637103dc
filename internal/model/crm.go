package model

import "time"

// CrmPipeline is a named sales pipeline. FirstStageID is the lowest-ordered stage.
type CrmPipeline struct {
	ID           int64  `json:"id"`
	TenantID     int64  `json:"tenant_id"`
	Slug         string `json:"slug"`
	Name         string `json:"name"`
	FirstStageID *int64 `json:"first_stage_id,omitempty"`
}

// DealStatus represents the state of a CRM deal.
type DealStatus string

const (
	DealStatusOpen DealStatus = "open"
	DealStatusWon  DealStatus = "won"
	DealStatusLost DealStatus = "lost"
)

// CrmDeal is an opportunity in a pipeline. SubjectType/SubjectID point at the
// entity that originated the deal and back the open-deal guard.
type CrmDeal struct {
	ID          string     `json:"id"`
	TenantID    int64      `json:"tenant_id"`
	CustomerID  int64      `json:"customer_id"`
	PipelineID  int64      `json:"pipeline_id"`
	StageID     int64      `json:"stage_id"`
	Title       string     `json:"title"`
	Value       float64    `json:"value"`
	Status      DealStatus `json:"status"`
	Source      string     `json:"source"`
	SubjectType string     `json:"subject_type"`
	SubjectID   int64      `json:"subject_id"`
	AssignedTo  *int64     `json:"assigned_to,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ActivityType classifies CRM activities.
type ActivityType string

const (
	ActivityTypeTask   ActivityType = "task"
	ActivityTypeNote   ActivityType = "note"
	ActivityTypeSystem ActivityType = "system"
)

// CrmActivity is a task or note on a customer timeline.
type CrmActivity struct {
	ID          string       `json:"id"`
	TenantID    int64        `json:"tenant_id"`
	Type        ActivityType `json:"type"`
	CustomerID  int64        `json:"customer_id"`
	DealID      *string      `json:"deal_id,omitempty"`
	UserID      *int64       `json:"user_id,omitempty"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	DueAt       *time.Time   `json:"due_at,omitempty"`
	Automated   bool         `json:"automated"`
	CreatedAt   time.Time    `json:"created_at"`
}

// MessageStatus represents the delivery state of an outbound message.
type MessageStatus string

const (
	MessageStatusQueued MessageStatus = "queued"
	MessageStatusSent   MessageStatus = "sent"
	MessageStatusFailed MessageStatus = "failed"
)

// CrmMessage is an outbound customer message. It is written as queued and
// moved to sent or failed after the send attempt.
type CrmMessage struct {
	ID           string        `json:"id"`
	TenantID     int64         `json:"tenant_id"`
	CustomerID   int64         `json:"customer_id"`
	Channel      string        `json:"channel"`
	To           string        `json:"to"`
	Subject      string        `json:"subject,omitempty"`
	Body         string        `json:"body"`
	TemplateSlug string        `json:"template_slug,omitempty"`
	Status       MessageStatus `json:"status"`
	Error        string        `json:"error,omitempty"`
	SentAt       *time.Time    `json:"sent_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// MessageTemplate is a tenant-authored body with {{name}} placeholders.
type MessageTemplate struct {
	ID       int64  `json:"id"`
	TenantID int64  `json:"tenant_id"`
	Slug     string `json:"slug"`
	Channel  string `json:"channel"`
	Subject  string `json:"subject,omitempty"`
	Body     string `json:"body"`
	Active   bool   `json:"active"`
}

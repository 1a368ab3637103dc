package model

import "time"

// Notification is the in-app effect row read by the admin UI. Its shape is a
// contract with that reader and must stay stable across rule additions.
type Notification struct {
	ID        string         `json:"id"`
	TenantID  int64          `json:"tenant_id"`
	UserID    int64          `json:"user_id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Icon      string         `json:"icon,omitempty"`
	Color     string         `json:"color,omitempty"`
	Link      string         `json:"link,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// IdempotencyRecord marks that a rule acted on a subject. WindowBucket is
// PerformedAt's unix seconds divided by the window length and backs the
// unique key that makes concurrent recording insert-or-ignore.
type IdempotencyRecord struct {
	ID           string    `json:"id"`
	TenantID     int64     `json:"tenant_id"`
	SubjectType  string    `json:"subject_type"`
	SubjectID    int64     `json:"subject_id"`
	RuleKey      string    `json:"rule_key"`
	WindowStart  time.Time `json:"window_start"`
	WindowBucket int64     `json:"window_bucket"`
	PerformedAt  time.Time `json:"performed_at"`
}

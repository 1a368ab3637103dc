package model

import "time"

// TenantStatus represents the lifecycle state of a tenant.
type TenantStatus string

const (
	TenantStatusActive   TenantStatus = "active"
	TenantStatusInactive TenantStatus = "inactive"
	TenantStatusTrial    TenantStatus = "trial"
)

// Tenant is the isolation boundary. Every entity below carries a TenantID.
type Tenant struct {
	ID     int64        `json:"id"`
	Name   string       `json:"name"`
	Status TenantStatus `json:"status"`
}

// Role is a coarse user role used to resolve notification recipients.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleSupervisor Role = "supervisor"
	RoleTechnician Role = "technician"
	RoleSeller     Role = "seller"
)

// User is a tenant user that can receive in-app notifications and escalations.
type User struct {
	ID       int64  `json:"id"`
	TenantID int64  `json:"tenant_id"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Role     Role   `json:"role"`
	Active   bool   `json:"active"`
}

// TenantCalendar holds a tenant's working-hours configuration as stored.
// WorkStart and WorkEnd are "HH:MM"; WorkDays is a comma-separated list of
// ISO weekday numbers (1 = Monday ... 7 = Sunday).
type TenantCalendar struct {
	TenantID  int64     `json:"tenant_id"`
	Timezone  string    `json:"timezone"`
	WorkStart string    `json:"work_start"`
	WorkEnd   string    `json:"work_end"`
	WorkDays  string    `json:"work_days"`
	Holidays  []Holiday `json:"holidays,omitempty"`
}

// Holiday is a non-working date for one tenant.
type Holiday struct {
	Date time.Time `json:"date" yaml:"date"`
	Name string    `json:"name,omitempty" yaml:"name"`
}

// RuleSetting is the per-tenant override of a rule's defaults. Zero values
// mean "use the configured default" except Enabled, which is explicit.
type RuleSetting struct {
	TenantID      int64    `json:"tenant_id"`
	RuleKey       string   `json:"rule_key"`
	Enabled       bool     `json:"enabled"`
	Days          int      `json:"days,omitempty"`
	WindowDays    int      `json:"window_days,omitempty"`
	Channels      []string `json:"channels,omitempty"`
	Recipients    []int64  `json:"recipients,omitempty"`
	BlackoutStart string   `json:"blackout_start,omitempty"`
	BlackoutEnd   string   `json:"blackout_end,omitempty"`
}

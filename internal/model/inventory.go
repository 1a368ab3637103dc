package model

import "time"

// Customer is a tenant's client account.
type Customer struct {
	ID               int64      `json:"id"`
	TenantID         int64      `json:"tenant_id"`
	Name             string     `json:"name"`
	Email            string     `json:"email,omitempty"`
	Phone            string     `json:"phone,omitempty"`
	Active           bool       `json:"active"`
	AssignedSellerID *int64     `json:"assigned_seller_id,omitempty"`
	LastContactAt    *time.Time `json:"last_contact_at,omitempty"`
	HealthScore      *int       `json:"health_score,omitempty"`
}

// Product is a stock-tracked item.
type Product struct {
	ID       int64   `json:"id"`
	TenantID int64   `json:"tenant_id"`
	Name     string  `json:"name"`
	Unit     string  `json:"unit,omitempty"`
	StockQty float64 `json:"stock_qty"`
	StockMin float64 `json:"stock_min"`
	Active   bool    `json:"active"`
}

// EquipmentStatus represents the state of a customer instrument.
type EquipmentStatus string

const (
	EquipmentStatusActive   EquipmentStatus = "active"
	EquipmentStatusInactive EquipmentStatus = "inactive"
	EquipmentStatusScrapped EquipmentStatus = "scrapped"
)

// Equipment is a customer instrument subject to periodic calibration.
type Equipment struct {
	ID                int64           `json:"id"`
	TenantID          int64           `json:"tenant_id"`
	CustomerID        *int64          `json:"customer_id,omitempty"`
	Code              string          `json:"code"`
	Brand             string          `json:"brand,omitempty"`
	Model             string          `json:"model,omitempty"`
	Status            EquipmentStatus `json:"status"`
	NextCalibrationAt *time.Time      `json:"next_calibration_at,omitempty"`
}

// Label is the short human name used in titles and message bodies.
func (e Equipment) Label() string {
	label := e.Code
	if e.Brand != "" {
		label += " " + e.Brand
	}
	if e.Model != "" {
		label += " " + e.Model
	}
	return label
}

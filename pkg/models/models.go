// Package models provides shared types for the repairboard HTTP API and external tools.
// These types mirror the API JSON and are stable for use by pkg/client and other consumers.
package models

import "time"

// Technician is a lookup reference to the person working an order.
type Technician struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RepairOrder is a customer device repair tracked on the board.
type RepairOrder struct {
	ID                  string      `json:"id"`
	Stage               Stage       `json:"stage"`
	CustomerName        string      `json:"customer_name,omitempty"`
	DeviceType          string      `json:"device_type,omitempty"`
	DeviceBrand         string      `json:"device_brand,omitempty"`
	DeviceModel         string      `json:"device_model,omitempty"`
	Issue               string      `json:"issue,omitempty"`
	Urgency             int         `json:"urgency"`
	TechnicalComplexity int         `json:"technical_complexity"`
	HistoricalValue     float64     `json:"historical_value"`
	Technician          *Technician `json:"technician,omitempty"`
	PromisedAt          *time.Time  `json:"promised_at,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// TechnicianID returns the technician id, or "" when unassigned.
func (o RepairOrder) TechnicianID() string {
	if o.Technician == nil {
		return ""
	}
	return o.Technician.ID
}

// NewOrder is the body of POST /orders.
type NewOrder struct {
	ID                  string      `json:"id,omitempty"`
	Stage               Stage       `json:"stage,omitempty"`
	CustomerName        string      `json:"customer_name"`
	DeviceType          string      `json:"device_type,omitempty"`
	DeviceBrand         string      `json:"device_brand,omitempty"`
	DeviceModel         string      `json:"device_model,omitempty"`
	Issue               string      `json:"issue,omitempty"`
	Urgency             int         `json:"urgency,omitempty"`
	TechnicalComplexity int         `json:"technical_complexity,omitempty"`
	HistoricalValue     float64     `json:"historical_value,omitempty"`
	Technician          *Technician `json:"technician,omitempty"`
	PromisedAt          *time.Time  `json:"promised_at,omitempty"`
}

// OrderPatch is the body of PATCH /orders/{id}. Nil fields are left unchanged.
type OrderPatch struct {
	CustomerName        *string     `json:"customer_name,omitempty"`
	DeviceType          *string     `json:"device_type,omitempty"`
	DeviceBrand         *string     `json:"device_brand,omitempty"`
	DeviceModel         *string     `json:"device_model,omitempty"`
	Issue               *string     `json:"issue,omitempty"`
	Urgency             *int        `json:"urgency,omitempty"`
	TechnicalComplexity *int        `json:"technical_complexity,omitempty"`
	HistoricalValue     *float64    `json:"historical_value,omitempty"`
	Technician          *Technician `json:"technician,omitempty"`
	PromisedAt          *time.Time  `json:"promised_at,omitempty"`
}

// OrderEvent is one entry of the order change feed.
// Previous is set for updates when the prior state is known; Order is the
// state after the change (or the removed order for deletes).
type OrderEvent struct {
	Type     EventType    `json:"event"`
	Order    RepairOrder  `json:"order"`
	Previous *RepairOrder `json:"previous,omitempty"`
	At       time.Time    `json:"at"`
}

// ColumnMetrics is the aggregate for one board column (or the totals row).
type ColumnMetrics struct {
	Count           int     `json:"count"`
	OverdueCount    int     `json:"overdue_count"`
	UrgentCount     int     `json:"urgent_count"`
	AverageUrgency  float64 `json:"average_urgency"`
	TotalValue      float64 `json:"total_value"`
	AverageWaitDays float64 `json:"average_wait_days"`
}

// BoardColumn is one column of the /board response.
type BoardColumn struct {
	Key     Column        `json:"key"`
	Title   string        `json:"title"`
	Orders  []RepairOrder `json:"orders"`
	Metrics ColumnMetrics `json:"metrics"`
}

// Board is the /board API response.
type Board struct {
	Columns []BoardColumn      `json:"columns"`
	Totals  ColumnMetrics      `json:"totals"`
	Scores  map[string]float64 `json:"scores,omitempty"`
	Levels  map[string]string  `json:"levels,omitempty"`
}

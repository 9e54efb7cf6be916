// internal/models/order.go
package models

import "time"

// OrderStatusPending is the initial status of every assembled order.
// Later transitions (payment, fulfillment) happen outside this pipeline.
const OrderStatusPending = "PENDIENTE"

// OrderItem snapshots a product at commit time. Later price edits on the
// catalog never reach an already-created order.
type OrderItem struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

type Order struct {
	ID              string      `json:"id"`
	TenantID        string      `json:"tenantId"`
	CustomerName    string      `json:"customerName,omitempty"`
	CustomerPhone   string      `json:"customerPhone"`
	SourceMessageID string      `json:"sourceMessageId"`
	Items           []OrderItem `json:"items"`
	Total           float64     `json:"total"`
	Status          string      `json:"status"`
	CreatedAt       time.Time   `json:"createdAt"`
}

// ComputeTotal sums the snapshot line items.
func (o *Order) ComputeTotal() float64 {
	var total float64
	for _, it := range o.Items {
		total += it.UnitPrice * float64(it.Quantity)
	}
	return total
}

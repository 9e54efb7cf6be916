// internal/models/product.go
package models

import "time"

// Product is a tenant-owned catalog item. Stock and MinStock are only
// meaningful when TrackStock is set.
type Product struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Price       float64   `json:"price"`
	SKU         string    `json:"sku,omitempty"`
	Available   bool      `json:"available"`
	Stock       int       `json:"stock"`
	MinStock    int       `json:"minStock"`
	TrackStock  bool      `json:"trackStock"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// InStock reports whether qty units can be promised right now.
func (p Product) InStock(qty int) bool {
	if !p.Available {
		return false
	}
	if !p.TrackStock {
		return true
	}
	return p.Stock >= qty
}

// BelowMinStock reports whether the product fell to or under its alert threshold.
func (p Product) BelowMinStock() bool {
	return p.TrackStock && p.MinStock > 0 && p.Stock <= p.MinStock
}

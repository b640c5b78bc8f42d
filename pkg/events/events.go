// Package events defines the product change messages exchanged over the broker.
package events

import "time"

// Product event types, also used as routing keys.
const (
	ProductCreated  = "product.created"
	ProductUpdated  = "product.updated"
	ProductDeleted  = "product.deleted"
	ProductLowStock = "product.low_stock"
)

// ProductEvent is the broker payload describing a product change.
type ProductEvent struct {
	Type              string    `json:"type"`
	ProductID         string    `json:"productId"`
	SKU               string    `json:"sku"`
	Name              string    `json:"name"`
	Quantity          int       `json:"quantity"`
	LowStockThreshold int       `json:"lowStockThreshold"`
	ActorID           string    `json:"actorId,omitempty"`
	OccurredAt        time.Time `json:"occurredAt"`
}

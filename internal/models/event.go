package models

import (
	"time"

	"inventory/pkg/events"
)

// Product event types published to the broker.
const (
	EventProductCreated  = events.ProductCreated
	EventProductUpdated  = events.ProductUpdated
	EventProductDeleted  = events.ProductDeleted
	EventProductLowStock = events.ProductLowStock
)

// ProductEvent is the broker payload describing a product change.
type ProductEvent = events.ProductEvent

// NewProductEvent snapshots p for an event of the given type.
func NewProductEvent(eventType string, p *Product, actorID string) ProductEvent {
	return ProductEvent{
		Type:              eventType,
		ProductID:         p.ID,
		SKU:               p.SKU,
		Name:              p.Name,
		Quantity:          p.Quantity,
		LowStockThreshold: p.LowStockThreshold,
		ActorID:           actorID,
		OccurredAt:        time.Now().UTC(),
	}
}

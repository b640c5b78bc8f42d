package services

import (
	"context"

	"inventory/internal/models"

	"go.uber.org/zap"
)

// EventPublisher delivers product events to interested consumers.
type EventPublisher interface {
	PublishProductEvent(ctx context.Context, event models.ProductEvent) error
}

// publish sends the event if a publisher is configured. Failures are logged, never returned.
func publish(ctx context.Context, events EventPublisher, log *zap.Logger, event models.ProductEvent) {
	if events == nil {
		log.Debug("event publisher not configured, skipping", zap.String("event", event.Type))
		return
	}
	if err := events.PublishProductEvent(ctx, event); err != nil {
		log.Warn("failed to publish product event",
			zap.String("event", event.Type),
			zap.String("product_id", event.ProductID),
			zap.Error(err),
		)
	}
}

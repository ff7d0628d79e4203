package interfaces

import (
	"context"

	"reading-platform/internal/models"
)

// EventPublisher отправляет доменные события после коммита.
type EventPublisher interface {
	Publish(ctx context.Context, event models.DomainEvent) error
}

// EventHandler обрабатывает одно доменное событие.
type EventHandler interface {
	Handle(ctx context.Context, event models.DomainEvent) error
}

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"reading-platform/internal/interfaces"
	"reading-platform/internal/models"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const exchangeType = "topic"

var eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reading_platform_events_published_total",
	Help: "Domain events published, by type and result.",
}, []string{"type", "result"})

// RabbitMQPublisher публикует доменные события в topic exchange. Ключ маршрутизации - тип события.
type RabbitMQPublisher struct {
	mu       sync.Mutex
	ch       *amqp.Channel
	exchange string
	logger   *zap.Logger
}

var _ interfaces.EventPublisher = (*RabbitMQPublisher)(nil)

func NewRabbitMQPublisher(conn *amqp.Connection, exchange string, logger *zap.Logger) (*RabbitMQPublisher, error) {
	if conn == nil {
		return nil, fmt.Errorf("rabbitmq connection is nil")
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	if err := declareExchange(ch, exchange); err != nil {
		_ = ch.Close()
		return nil, err
	}
	logger.Info("Events exchange declared", zap.String("exchange", exchange), zap.String("type", exchangeType))

	return &RabbitMQPublisher{
		ch:       ch,
		exchange: exchange,
		logger:   logger.Named("EventPublisher"),
	}, nil
}

func declareExchange(ch *amqp.Channel, exchange string) error {
	err := ch.ExchangeDeclare(
		exchange,
		exchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange '%s': %w", exchange, err)
	}
	return nil
}

// Publish отправляет событие. EventID и OccurredAt заполняются, если пусты.
func (p *RabbitMQPublisher) Publish(ctx context.Context, event models.DomainEvent) error {
	fillEventDefaults(&event)
	body, err := json.Marshal(event)
	if err != nil {
		eventsPublished.WithLabelValues(event.Type, "error").Inc()
		return fmt.Errorf("failed to marshal event %s: %w", event.Type, err)
	}

	// amqp.Channel не безопасен для параллельной публикации.
	p.mu.Lock()
	err = p.ch.PublishWithContext(ctx,
		p.exchange,
		event.Type,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    event.EventID,
			Timestamp:    event.OccurredAt,
			Type:         event.Type,
			Body:         body,
		},
	)
	p.mu.Unlock()
	if err != nil {
		eventsPublished.WithLabelValues(event.Type, "error").Inc()
		p.logger.Error("Failed to publish event", zap.String("type", event.Type), zap.String("eventID", event.EventID), zap.Error(err))
		return fmt.Errorf("failed to publish event %s: %w", event.Type, err)
	}

	eventsPublished.WithLabelValues(event.Type, "ok").Inc()
	p.logger.Debug("Event published", zap.String("type", event.Type), zap.String("eventID", event.EventID))
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	if p.ch != nil {
		return p.ch.Close()
	}
	return nil
}

// InProcessPublisher передает события обработчику синхронно, без брокера.
type InProcessPublisher struct {
	handler interfaces.EventHandler
	logger  *zap.Logger
}

var _ interfaces.EventPublisher = (*InProcessPublisher)(nil)

func NewInProcessPublisher(handler interfaces.EventHandler, logger *zap.Logger) *InProcessPublisher {
	return &InProcessPublisher{handler: handler, logger: logger.Named("InProcessPublisher")}
}

func (p *InProcessPublisher) Publish(ctx context.Context, event models.DomainEvent) error {
	fillEventDefaults(&event)
	if err := p.handler.Handle(ctx, event); err != nil {
		eventsPublished.WithLabelValues(event.Type, "error").Inc()
		return fmt.Errorf("failed to handle event %s in process: %w", event.Type, err)
	}
	eventsPublished.WithLabelValues(event.Type, "ok").Inc()
	return nil
}

func fillEventDefaults(event *models.DomainEvent) {
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
}

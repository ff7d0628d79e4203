package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"reading-platform/internal/interfaces"
	"reading-platform/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	consumerTag   = "reading-analytics-consumer"
	prefetchCount = 10
	handleTimeout = 15 * time.Second
)

// Типы событий, на которые подписан потребитель аналитики.
var analyticsRoutingKeys = []string{models.EventSessionCompleted, models.EventReadingProgress}

var eventsConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reading_platform_events_consumed_total",
	Help: "Domain events consumed, by type and result.",
}, []string{"type", "result"})

// Consumer читает события из очереди аналитики и передает их обработчику.
type Consumer struct {
	conn     *amqp.Connection
	exchange string
	queue    string
	handler  interfaces.EventHandler
	logger   *zap.Logger
}

func NewConsumer(conn *amqp.Connection, exchange, queue string, handler interfaces.EventHandler, logger *zap.Logger) *Consumer {
	return &Consumer{
		conn:     conn,
		exchange: exchange,
		queue:    queue,
		handler:  handler,
		logger:   logger.Named("EventConsumer"),
	}
}

// Start блокируется до отмены ctx или закрытия канала брокером.
func (c *Consumer) Start(ctx context.Context) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("consumer: failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := declareExchange(ch, c.exchange); err != nil {
		return err
	}
	q, err := ch.QueueDeclare(
		c.queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("consumer: failed to declare queue '%s': %w", c.queue, err)
	}
	for _, key := range analyticsRoutingKeys {
		if err := ch.QueueBind(q.Name, key, c.exchange, false, nil); err != nil {
			return fmt.Errorf("consumer: failed to bind queue '%s' to '%s': %w", q.Name, key, err)
		}
	}
	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		return fmt.Errorf("consumer: failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		q.Name,
		consumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("consumer: failed to register consumer: %w", err)
	}
	c.logger.Info("Consuming analytics events", zap.String("queue", q.Name), zap.Strings("routing_keys", analyticsRoutingKeys))

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Consumer stopped")
			return nil
		case d, ok := <-msgs:
			if !ok {
				c.logger.Warn("Delivery channel closed")
				return nil
			}
			c.handleDelivery(ctx, d)
		}
	}
}

// handleDelivery подтверждает успешно обработанные сообщения. Битые сообщения отбрасываются,
// ошибка обработчика возвращает сообщение в очередь один раз.
func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	var event models.DomainEvent
	if err := json.Unmarshal(d.Body, &event); err != nil {
		eventsConsumed.WithLabelValues(d.RoutingKey, "malformed").Inc()
		c.logger.Error("Malformed event dropped", zap.Uint64("deliveryTag", d.DeliveryTag), zap.Error(err))
		_ = d.Nack(false, false)
		return
	}

	handleCtx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	if err := c.handler.Handle(handleCtx, event); err != nil {
		requeue := !d.Redelivered
		eventsConsumed.WithLabelValues(event.Type, "error").Inc()
		c.logger.Error("Failed to handle event",
			zap.String("type", event.Type),
			zap.String("eventID", event.EventID),
			zap.Bool("requeue", requeue),
			zap.Error(err),
		)
		_ = d.Nack(false, requeue)
		return
	}

	eventsConsumed.WithLabelValues(event.Type, "ok").Inc()
	_ = d.Ack(false)
}

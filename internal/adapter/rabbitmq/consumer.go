package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/YelzhanWeb/caseflow/internal/adapter/logger"
	"github.com/YelzhanWeb/caseflow/internal/domain"
	"github.com/YelzhanWeb/caseflow/internal/interfaces"
)

const (
	PaymentQueue      = "case_payment_queue"
	PaymentDLQ        = "case_payment_queue_dlq"
	PaymentDLX        = "payments_dlx"
	PaymentRoutingKey = "payment.verified.*"

	reconnectDelay = 5 * time.Second
)

type consumer struct {
	conn     Connection
	prefetch int
	logger   logger.Logger
}

func NewConsumer(conn Connection, prefetch int, logger logger.Logger) interfaces.MessageConsumer {
	return &consumer{conn: conn, prefetch: prefetch, logger: logger}
}

func (c *consumer) ConsumePaymentEvents(ctx context.Context, handler interfaces.PaymentMessageHandler) error {
	return c.runWithReconnect(ctx, "payments", func(ctx context.Context) error {
		return c.consumePayments(ctx, handler)
	})
}

func (c *consumer) ConsumeNotifications(ctx context.Context, handler interfaces.NotificationHandler) error {
	return c.runWithReconnect(ctx, "notifications", func(ctx context.Context) error {
		return c.consumeNotifications(ctx, handler)
	})
}

func (c *consumer) runWithReconnect(ctx context.Context, name string, run func(context.Context) error) error {
	for {
		err := run(ctx)

		// Контекст отменен - выходим
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err == nil {
			return nil
		}

		c.logger.Error("consumer_disconnected", fmt.Sprintf("%s consumer disconnected, reconnecting in %s", name, reconnectDelay), "", nil, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}

		if c.conn.IsClosed() {
			if err := c.conn.Reconnect(); err != nil {
				c.logger.Error("rabbitmq_reconnect_failed", "Failed to reconnect", "", nil, err)
			}
		}
	}
}

func (c *consumer) consumePayments(ctx context.Context, handler interfaces.PaymentMessageHandler) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	closeChan := ch.NotifyClose()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	if err := setupPaymentInfrastructure(ch); err != nil {
		return err
	}

	msgs, err := ch.Consume(PaymentQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-closeChan:
			if err != nil {
				return fmt.Errorf("channel closed: %w", err)
			}
			return fmt.Errorf("channel closed gracefully")

		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("messages channel closed")
			}
			c.settle(msg, handler(ctx, msg.Body))
		}
	}
}

// settle acks on success, requeues conflicts for another attempt and sends
// every other failure to the DLQ.
func (c *consumer) settle(msg amqp.Delivery, err error) {
	switch {
	case err == nil:
		_ = msg.Ack(false)
	case domain.IsKind(err, domain.KindConflict):
		c.logger.Debug("payment_event_requeued", "Conflict while applying payment, requeueing", msg.MessageId, nil)
		_ = msg.Nack(false, true)
	default:
		c.logger.Error("payment_event_rejected", "Payment event sent to DLQ", msg.MessageId, nil, err)
		_ = msg.Nack(false, false)
	}
}

func (c *consumer) consumeNotifications(ctx context.Context, handler interfaces.NotificationHandler) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	closeChan := ch.NotifyClose()

	if err := ch.ExchangeDeclare(StatusExchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	// Временная эксклюзивная очередь на подписчика
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, "", StatusExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	msgs, err := ch.Consume(q.Name, "", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-closeChan:
			if err != nil {
				return fmt.Errorf("channel closed: %w", err)
			}
			return fmt.Errorf("channel closed gracefully")

		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("messages channel closed")
			}
			// Ошибки обработки уведомлений игнорируем
			_ = handler(ctx, msg.Body)
		}
	}
}

func setupPaymentInfrastructure(ch Channel) error {
	if err := ch.ExchangeDeclare(PaymentsExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare payments exchange: %w", err)
	}

	if err := ch.ExchangeDeclare(PaymentDLX, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLQ exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(PaymentDLQ, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLQ: %w", err)
	}

	if err := ch.QueueBind(PaymentDLQ, PaymentDLQ, PaymentDLX, false, nil); err != nil {
		return fmt.Errorf("failed to bind DLQ: %w", err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    PaymentDLX,
		"x-dead-letter-routing-key": PaymentDLQ,
	}

	q, err := ch.QueueDeclare(PaymentQueue, true, false, false, false, args)
	if err != nil {
		return fmt.Errorf("failed to declare payment queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, PaymentRoutingKey, PaymentsExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind payment queue: %w", err)
	}

	return nil
}

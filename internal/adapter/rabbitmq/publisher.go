package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/YelzhanWeb/caseflow/internal/interfaces"
)

const (
	StatusExchange   = "case_status_fanout"
	PaymentsExchange = "payments_topic"
)

type publisher struct {
	conn Connection
}

func NewPublisher(conn Connection) interfaces.NotificationDispatcher {
	return &publisher{conn: conn}
}

func (p *publisher) PublishStatusChanged(ctx context.Context, evt interfaces.StatusChangedEvent) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	// Declare exchange
	if err := ch.ExchangeDeclare(StatusExchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = ch.Publish(ctx, StatusExchange, "", false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    fmt.Sprintf("%s:%s", evt.CaseID, evt.ToStatus),
		Timestamp:    evt.Timestamp,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	return nil
}

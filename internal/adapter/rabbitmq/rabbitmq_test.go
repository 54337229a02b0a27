package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YelzhanWeb/caseflow/internal/adapter/logger"
	"github.com/YelzhanWeb/caseflow/internal/domain"
	"github.com/YelzhanWeb/caseflow/internal/interfaces"
)

type binding struct{ queue, key, exchange string }

type fakeChannel struct {
	mu         sync.Mutex
	exchanges  map[string]string
	queues     map[string]amqp.Table
	bindings   []binding
	published  []amqp.Publishing
	deliveries chan amqp.Delivery
	closeCh    chan *amqp.Error
	prefetch   int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		exchanges:  make(map[string]string),
		queues:     make(map[string]amqp.Table),
		deliveries: make(chan amqp.Delivery, 10),
		closeCh:    make(chan *amqp.Error),
	}
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exchanges[name] = kind
	return nil
}

func (c *fakeChannel) QueueDeclare(name string, _, _, _, _ bool, args amqp.Table) (Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if name == "" {
		name = "amq.gen-test"
	}
	c.queues[name] = args
	return Queue{Name: name}, nil
}

func (c *fakeChannel) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bindings = append(c.bindings, binding{name, key, exchange})
	return nil
}

func (c *fakeChannel) Publish(_ context.Context, _, _ string, _, _ bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) Consume(string, string, bool, bool, bool, bool, amqp.Table) (<-chan amqp.Delivery, error) {
	return c.deliveries, nil
}

func (c *fakeChannel) Qos(prefetchCount, _ int, _ bool) error {
	c.prefetch = prefetchCount
	return nil
}

func (c *fakeChannel) Close() error                    { return nil }
func (c *fakeChannel) NotifyClose() <-chan *amqp.Error { return c.closeCh }

type fakeConnection struct {
	ch *fakeChannel
}

func (c *fakeConnection) Channel() (Channel, error)       { return c.ch, nil }
func (c *fakeConnection) Close() error                    { return nil }
func (c *fakeConnection) NotifyClose() <-chan *amqp.Error { return nil }
func (c *fakeConnection) IsClosed() bool                  { return false }
func (c *fakeConnection) Reconnect() error                { return nil }

type ackRecorder struct {
	mu      sync.Mutex
	acked   []uint64
	requeue []uint64
	dropped []uint64
}

func (a *ackRecorder) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acked = append(a.acked, tag)
	return nil
}

func (a *ackRecorder) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if requeue {
		a.requeue = append(a.requeue, tag)
	} else {
		a.dropped = append(a.dropped, tag)
	}
	return nil
}

func (a *ackRecorder) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func TestPublisher_PublishStatusChanged(t *testing.T) {
	ch := newFakeChannel()
	pub := NewPublisher(&fakeConnection{ch: ch})
	from := domain.StatusSubmitted
	evt := interfaces.StatusChangedEvent{
		CaseID:     "case-1",
		CaseNumber: "SG_20261018_001",
		FromStatus: &from,
		ToStatus:   domain.StatusCancelled,
		ActorRole:  domain.RoleClient,
		Kind:       domain.EntryKindTransition,
		Timestamp:  time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC),
	}

	require.NoError(t, pub.PublishStatusChanged(context.Background(), evt))

	assert.Equal(t, "fanout", ch.exchanges[StatusExchange])
	require.Len(t, ch.published, 1)
	msg := ch.published[0]
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, "case-1:cancelled", msg.MessageId)

	var decoded interfaces.StatusChangedEvent
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	assert.Equal(t, evt, decoded)
}

func TestSetupPaymentInfrastructure(t *testing.T) {
	ch := newFakeChannel()
	require.NoError(t, setupPaymentInfrastructure(ch))

	assert.Equal(t, "topic", ch.exchanges[PaymentsExchange])
	assert.Equal(t, "direct", ch.exchanges[PaymentDLX])
	assert.Contains(t, ch.queues, PaymentDLQ)
	assert.Equal(t, PaymentDLX, ch.queues[PaymentQueue]["x-dead-letter-exchange"])
	assert.Contains(t, ch.bindings, binding{PaymentQueue, PaymentRoutingKey, PaymentsExchange})
	assert.Contains(t, ch.bindings, binding{PaymentDLQ, PaymentDLQ, PaymentDLX})
}

func TestConsumePaymentEvents_SettlesByOutcome(t *testing.T) {
	ch := newFakeChannel()
	acks := &ackRecorder{}
	c := NewConsumer(&fakeConnection{ch: ch}, 3, logger.Nop())

	outcomes := map[string]error{
		"ok":       nil,
		"conflict": domain.NewConflictError("case-1", domain.ErrVersionConflict),
		"bad":      domain.NewValidationError("malformed payment event"),
		"broken":   errors.New("database unavailable"),
	}
	order := []string{"ok", "conflict", "bad", "broken"}
	for i, name := range order {
		ch.deliveries <- amqp.Delivery{Acknowledger: acks, DeliveryTag: uint64(i + 1), Body: []byte(name)}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handled := 0
	handler := func(_ context.Context, body []byte) error {
		handled++
		if handled == len(order) {
			defer cancel()
		}
		return outcomes[string(body)]
	}

	err := c.ConsumePaymentEvents(ctx, handler)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, 3, ch.prefetch)
	assert.Equal(t, []uint64{1}, acks.acked)
	assert.Equal(t, []uint64{2}, acks.requeue)
	assert.Equal(t, []uint64{3, 4}, acks.dropped)
}

func TestConsumeNotifications_BindsToFanout(t *testing.T) {
	ch := newFakeChannel()
	c := NewConsumer(&fakeConnection{ch: ch}, 1, logger.Nop())
	ch.deliveries <- amqp.Delivery{Body: []byte(`{"case_id":"case-1"}`)}

	ctx, cancel := context.WithCancel(context.Background())
	var got []byte
	err := c.ConsumeNotifications(ctx, func(_ context.Context, body []byte) error {
		got = body
		cancel()
		return errors.New("ignored")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.JSONEq(t, `{"case_id":"case-1"}`, string(got))
	assert.Contains(t, ch.bindings, binding{"amq.gen-test", "", StatusExchange})
}

package interfaces

import (
	"context"
	"time"

	"github.com/YelzhanWeb/caseflow/internal/domain"
)

// StatusChangedEvent is published after every committed transition.
type StatusChangedEvent struct {
	CaseID     string           `json:"case_id"`
	CaseNumber string           `json:"case_number"`
	FromStatus *domain.Status   `json:"from_status"`
	ToStatus   domain.Status    `json:"to_status"`
	ActorRole  domain.Role      `json:"actor_role"`
	Kind       domain.EntryKind `json:"kind"`
	Timestamp  time.Time        `json:"timestamp"`
}

// PaymentVerifiedMessage is emitted by the payment subsystem once a payment
// proof has been checked.
type PaymentVerifiedMessage struct {
	CaseID     string              `json:"case_id"`
	Stage      domain.PaymentStage `json:"stage"`
	PaymentID  string              `json:"payment_id"`
	VerifiedAt time.Time           `json:"verified_at"`
}

// NotificationDispatcher is informed after a successful transition. Callers
// treat failures as non-fatal.
type NotificationDispatcher interface {
	PublishStatusChanged(ctx context.Context, evt StatusChangedEvent) error
}

type MessageConsumer interface {
	ConsumePaymentEvents(ctx context.Context, handler PaymentMessageHandler) error
	ConsumeNotifications(ctx context.Context, handler NotificationHandler) error
}

type (
	PaymentMessageHandler func(ctx context.Context, body []byte) error
	NotificationHandler   func(ctx context.Context, body []byte) error
)

package amqp

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YelzhanWeb/caseflow/internal/adapter/logger"
	"github.com/YelzhanWeb/caseflow/internal/domain"
	"github.com/YelzhanWeb/caseflow/internal/interfaces"
)

type recordingPaymentService struct {
	got []interfaces.PaymentVerifiedMessage
	err error
}

func (s *recordingPaymentService) HandlePaymentVerified(_ context.Context, msg interfaces.PaymentVerifiedMessage) error {
	s.got = append(s.got, msg)
	return s.err
}

func TestPaymentHandler_DecodesMessage(t *testing.T) {
	svc := &recordingPaymentService{}
	h := NewPaymentHandler(svc, logger.Nop())

	err := h.HandlePayment(context.Background(), []byte(`{"case_id":"case-1","stage":"production","payment_id":"pay-9","verified_at":"2026-10-18T09:00:00Z"}`))
	require.NoError(t, err)

	require.Len(t, svc.got, 1)
	assert.Equal(t, "case-1", svc.got[0].CaseID)
	assert.Equal(t, domain.PaymentStageProduction, svc.got[0].Stage)
	assert.Equal(t, "pay-9", svc.got[0].PaymentID)
}

func TestPaymentHandler_MalformedBodyIsValidationError(t *testing.T) {
	svc := &recordingPaymentService{}
	h := NewPaymentHandler(svc, logger.Nop())

	err := h.HandlePayment(context.Background(), []byte(`{not json`))
	assert.True(t, domain.IsKind(err, domain.KindValidation))
	assert.Empty(t, svc.got)
}

func TestPaymentHandler_PassesServiceErrorThrough(t *testing.T) {
	conflict := domain.NewConflictError("case-1", domain.ErrVersionConflict)
	h := NewPaymentHandler(&recordingPaymentService{err: conflict}, logger.Nop())

	err := h.HandlePayment(context.Background(), []byte(`{"case_id":"case-1","stage":"study"}`))
	assert.True(t, domain.IsKind(err, domain.KindConflict))
}

func TestNotificationHandler_PrintsStatusChange(t *testing.T) {
	var out bytes.Buffer
	h := NewNotificationHandler(logger.Nop())
	h.out = &out

	err := h.HandleNotification(context.Background(), []byte(`{"case_id":"c","case_number":"SG_20261018_001","from_status":"quote_sent","to_status":"quote_accepted","actor_role":"client","kind":"transition"}`))
	require.NoError(t, err)
	assert.Equal(t, "Notification for case SG_20261018_001: Status changed from 'quote_sent' to 'quote_accepted' by client (transition)\n", out.String())

	out.Reset()
	require.NoError(t, h.HandleNotification(context.Background(), []byte(`{"case_number":"SG_20261018_002","to_status":"submitted","actor_role":"client","kind":"created"}`)))
	assert.Contains(t, out.String(), "from 'none' to 'submitted'")

	assert.Error(t, h.HandleNotification(context.Background(), []byte(`[]`)))
}

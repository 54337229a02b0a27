package amqp

import (
	"context"
	"encoding/json"

	"github.com/YelzhanWeb/caseflow/internal/adapter/logger"
	"github.com/YelzhanWeb/caseflow/internal/domain"
	"github.com/YelzhanWeb/caseflow/internal/interfaces"
)

type PaymentHandler struct {
	service interfaces.PaymentService
	logger  logger.Logger
}

func NewPaymentHandler(service interfaces.PaymentService, logger logger.Logger) *PaymentHandler {
	return &PaymentHandler{
		service: service,
		logger:  logger,
	}
}

func (h *PaymentHandler) HandlePayment(ctx context.Context, body []byte) error {
	var msg interfaces.PaymentVerifiedMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		h.logger.Error("message_parse_failed", "Failed to parse payment message", "", nil, err)
		return domain.NewValidationError("malformed payment event: %v", err)
	}

	return h.service.HandlePaymentVerified(ctx, msg)
}

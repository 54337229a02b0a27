package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/YelzhanWeb/caseflow/internal/adapter/logger"
	"github.com/YelzhanWeb/caseflow/internal/domain"
	"github.com/YelzhanWeb/caseflow/internal/interfaces"
)

// Service advances cases waiting on a payment once the payment subsystem
// reports it verified. It acts as the system role.
type Service struct {
	workflow interfaces.WorkflowService
	actor    domain.Actor
	logger   logger.Logger
}

var _ interfaces.PaymentService = (*Service)(nil)

func NewService(workflow interfaces.WorkflowService, workerName string, logger logger.Logger) *Service {
	return &Service{
		workflow: workflow,
		actor:    domain.SystemActor(workerName),
		logger:   logger,
	}
}

// HandlePaymentVerified is idempotent: redelivered or stale events for a case
// that already left the waiting status are acknowledged without effect.
// Returned Conflict errors are retryable; anything else is not.
func (s *Service) HandlePaymentVerified(ctx context.Context, msg interfaces.PaymentVerifiedMessage) error {
	caseID := strings.TrimSpace(msg.CaseID)
	if caseID == "" {
		return domain.NewValidationError("payment event without case id")
	}

	from, to, err := domain.TargetAfterPayment(msg.Stage)
	if err != nil {
		return domain.NewValidationError("%v", err)
	}

	s.logger.Debug("payment_event_received", fmt.Sprintf("Payment %s verified", msg.PaymentID), caseID, map[string]interface{}{
		"stage": msg.Stage,
	})

	c, err := s.workflow.GetCase(ctx, caseID)
	if err != nil {
		return err
	}

	// Идемпотентность: кейс уже не ждет этой оплаты
	if c.Status != from {
		s.logger.Debug("payment_event_skipped", fmt.Sprintf("Case %s is %s, nothing to advance", c.Number, c.Status), caseID, nil)
		return nil
	}

	notes := fmt.Sprintf("%s payment %s verified", msg.Stage, msg.PaymentID)
	if _, err := s.workflow.RequestTransition(ctx, caseID, string(to), s.actor, &notes); err != nil {
		// Кейс сдвинули между чтением и записью
		if domain.IsKind(err, domain.KindIllegalTransition) {
			s.logger.Debug("payment_event_skipped", "Case advanced concurrently", caseID, nil)
			return nil
		}
		return err
	}

	s.logger.Info("payment_applied", fmt.Sprintf("Case %s moved to %s", c.Number, to), caseID, map[string]interface{}{
		"payment_id": msg.PaymentID,
	})
	return nil
}

package intake

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/YelzhanWeb/caseflow/internal/adapter/logger"
	"github.com/YelzhanWeb/caseflow/internal/domain"
	"github.com/YelzhanWeb/caseflow/internal/interfaces"
)

const defaultNotifyTimeout = 5 * time.Second

type Service struct {
	repo          interfaces.CaseRepository
	notifier      interfaces.NotificationDispatcher
	logger        logger.Logger
	now           func() time.Time
	notifyTimeout time.Duration
}

var _ interfaces.IntakeService = (*Service)(nil)

type Option func(*Service)

func WithNotifyTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.notifyTimeout = d
		}
	}
}

func NewService(repo interfaces.CaseRepository, notifier interfaces.NotificationDispatcher, logger logger.Logger, opts ...Option) *Service {
	s := &Service{
		repo:          repo,
		notifier:      notifier,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
		notifyTimeout: defaultNotifyTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitCase creates a case in the submitted status. Only clients may submit;
// the case is owned by the submitting client.
func (s *Service) SubmitCase(ctx context.Context, cmd interfaces.SubmitCaseCommand, actor domain.Actor) (*domain.Case, error) {
	if actor.Role != domain.RoleClient {
		return nil, &domain.WorkflowError{
			Kind:    domain.KindForbidden,
			Message: fmt.Sprintf("role %s may not submit cases", actor.Role),
		}
	}

	now := s.now()

	// 1. Команда -> доменная модель
	attachments := make([]domain.Attachment, len(cmd.Attachments))
	for i, a := range cmd.Attachments {
		attachments[i] = domain.Attachment{
			ID:          uuid.NewString(),
			FileName:    strings.TrimSpace(a.FileName),
			ContentType: a.ContentType,
			SizeBytes:   a.SizeBytes,
			StorageKey:  a.StorageKey,
			CreatedAt:   now,
		}
	}

	draft := domain.Case{
		ID:                uuid.NewString(),
		ClientID:          actor.ID,
		ProcedureCategory: cmd.ProcedureCategory,
		GuideType:         cmd.GuideType,
		ServiceTier:       domain.ServiceTier(strings.TrimSpace(cmd.ServiceTier)),
		PatientRef:        cmd.PatientRef,
		Notes:             cmd.Notes,
		SelectedTeeth:     append([]int(nil), cmd.SelectedTeeth...),
		DeliveryMethod:    domain.DeliveryMethod(strings.TrimSpace(cmd.DeliveryMethod)),
		DeliveryAddress:   cmd.DeliveryAddress,
		Attachments:       attachments,
	}

	// 2. Валидация и начальный статус
	c, entry, err := domain.NewCase(draft, actor, now)
	if err != nil {
		s.logger.Debug("validation_failed", "Case validation failed", "", map[string]interface{}{"error": err.Error()})
		return nil, domain.NewValidationError("%v", err)
	}

	// 3. Номер кейса
	number, err := s.repo.GenerateCaseNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to generate case number: %w", err)
	}
	c.Number = number

	// 4. Сохранение кейса вместе с первой записью истории
	if err := s.repo.Create(ctx, c, entry); err != nil {
		s.logger.Error("db_transaction_failed", "Failed to create case", c.ID, nil, err)
		return nil, fmt.Errorf("failed to create case: %w", err)
	}

	s.logger.Info("case_submitted", fmt.Sprintf("Case %s submitted", c.Number), c.ID, map[string]interface{}{
		"client_id": c.ClientID,
		"tier":      c.ServiceTier,
	})

	// 5. Уведомление (ошибка не откатывает создание)
	if s.notifier != nil {
		evt := interfaces.StatusChangedEvent{
			CaseID:     c.ID,
			CaseNumber: c.Number,
			ToStatus:   entry.ToStatus,
			ActorRole:  entry.ChangedBy,
			Kind:       entry.Kind,
			Timestamp:  entry.CreatedAt,
		}
		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
		defer cancel()
		if err := s.notifier.PublishStatusChanged(notifyCtx, evt); err != nil {
			s.logger.Error("notification_publish_failed", "Failed to publish case submission", c.ID, nil, err)
		}
	}

	return c, nil
}

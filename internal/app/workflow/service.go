package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/YelzhanWeb/caseflow/internal/adapter/logger"
	"github.com/YelzhanWeb/caseflow/internal/domain"
	"github.com/YelzhanWeb/caseflow/internal/interfaces"
)

const (
	maxNotesLength       = 2000
	defaultNotifyTimeout = 5 * time.Second
)

// Service is the case status engine. It owns the legality and permission
// checks for every status change and records each change in the history.
type Service struct {
	repo          interfaces.CaseRepository
	policy        *domain.Policy
	notifier      interfaces.NotificationDispatcher
	payments      interfaces.PaymentVerifier
	logger        logger.Logger
	now           func() time.Time
	notifyTimeout time.Duration
}

var _ interfaces.WorkflowService = (*Service)(nil)

type Option func(*Service)

// WithPaymentVerifier enables the payment gate on edges that require it.
func WithPaymentVerifier(v interfaces.PaymentVerifier) Option {
	return func(s *Service) { s.payments = v }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithNotifyTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.notifyTimeout = d
		}
	}
}

func NewService(
	repo interfaces.CaseRepository,
	policy *domain.Policy,
	notifier interfaces.NotificationDispatcher,
	logger logger.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		repo:          repo,
		policy:        policy,
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

func (s *Service) RequestTransition(ctx context.Context, caseID string, target string, actor domain.Actor, notes *string) (*interfaces.TransitionResult, error) {
	caseID = strings.TrimSpace(caseID)
	to, err := validateRequest(caseID, target, actor)
	if err != nil {
		return nil, err
	}
	if notes != nil {
		trimmed := strings.TrimSpace(*notes)
		if utf8.RuneCountInString(trimmed) > maxNotesLength {
			return nil, domain.NewValidationError("notes must not exceed %d characters", maxNotesLength)
		}
		if trimmed == "" {
			notes = nil
		} else {
			notes = &trimmed
		}
	}

	c, err := s.loadCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	from := c.Status

	edge, ok := s.policy.Edge(from, to)
	if !ok {
		return nil, domain.NewIllegalTransitionError(from, to, s.policy.Targets(from))
	}
	if !edge.Allows(actor.Role) {
		return nil, domain.NewForbiddenError(from, to, actor.Role, s.policy.TargetsFor(from, actor.Role))
	}
	if edge.RequiresPayment && s.payments != nil {
		if err := s.checkPayment(ctx, c); err != nil {
			return nil, err
		}
	}

	return s.commit(ctx, c, to, actor, notes, domain.EntryKindTransition)
}

// OverrideStatus lets an admin move a non-terminal case to any status. It is
// recorded as a distinct history entry kind and always carries the reason.
func (s *Service) OverrideStatus(ctx context.Context, caseID string, target string, actor domain.Actor, reason string) (*interfaces.TransitionResult, error) {
	caseID = strings.TrimSpace(caseID)
	to, err := validateRequest(caseID, target, actor)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.NewValidationError("a reason is required to override a case status")
	}
	if utf8.RuneCountInString(reason) > maxNotesLength {
		return nil, domain.NewValidationError("reason must not exceed %d characters", maxNotesLength)
	}
	if actor.Role != domain.RoleAdmin {
		return nil, &domain.WorkflowError{
			Kind:    domain.KindForbidden,
			Message: fmt.Sprintf("role %s may not override case status", actor.Role),
		}
	}

	c, err := s.loadCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.Status.IsTerminal() {
		return nil, &domain.WorkflowError{
			Kind:    domain.KindIllegalTransition,
			Message: fmt.Sprintf("case is in terminal status %s and cannot be overridden", c.Status),
			Allowed: []domain.Status{},
		}
	}
	if c.Status == to {
		return nil, &domain.WorkflowError{
			Kind:    domain.KindIllegalTransition,
			Message: fmt.Sprintf("case is already in status %s", to),
			Allowed: s.policy.Targets(c.Status),
		}
	}

	s.logger.Info("status_override_requested", fmt.Sprintf("Admin override of case %s", c.Number), caseID, map[string]interface{}{
		"from":     c.Status,
		"to":       to,
		"actor_id": actor.ID,
	})

	return s.commit(ctx, c, to, actor, &reason, domain.EntryKindOverride)
}

// GetAllowedTransitions lists the statuses the actor may request next. The
// list is advisory: RequestTransition re-validates every request.
func (s *Service) GetAllowedTransitions(ctx context.Context, caseID string, actor domain.Actor) ([]domain.Status, error) {
	caseID = strings.TrimSpace(caseID)
	if caseID == "" {
		return nil, domain.NewValidationError("case id is required")
	}
	if !actor.Role.Valid() {
		return nil, domain.NewValidationError("unknown actor role %q", actor.Role)
	}

	c, err := s.loadCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	return s.policy.TargetsFor(c.Status, actor.Role), nil
}

func (s *Service) GetHistory(ctx context.Context, caseID string) ([]*domain.StatusHistoryEntry, error) {
	caseID = strings.TrimSpace(caseID)
	if caseID == "" {
		return nil, domain.NewValidationError("case id is required")
	}
	if _, err := s.loadCase(ctx, caseID); err != nil {
		return nil, err
	}

	history, err := s.repo.GetStatusHistory(ctx, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load status history: %w", err)
	}
	return history, nil
}

func (s *Service) GetCase(ctx context.Context, caseID string) (*domain.Case, error) {
	caseID = strings.TrimSpace(caseID)
	if caseID == "" {
		return nil, domain.NewValidationError("case id is required")
	}
	return s.loadCase(ctx, caseID)
}

func (s *Service) commit(ctx context.Context, current *domain.Case, to domain.Status, actor domain.Actor, notes *string, kind domain.EntryKind) (*interfaces.TransitionResult, error) {
	expected := current.Version
	updated := current.Clone()
	entry := updated.Advance(to, actor, notes, kind, s.now())

	if err := s.repo.ApplyTransition(ctx, updated, expected, entry); err != nil {
		switch {
		case errors.Is(err, domain.ErrVersionConflict):
			s.logger.Debug("transition_conflict", "Concurrent transition detected", current.ID, map[string]interface{}{
				"expected_version": expected,
				"target":           to,
			})
			return nil, domain.NewConflictError(current.ID, err)
		case errors.Is(err, domain.ErrCaseNotFound):
			return nil, domain.NewNotFoundError(current.ID)
		}
		s.logger.Error("db_transaction_failed", "Failed to apply transition", current.ID, nil, err)
		return nil, fmt.Errorf("failed to apply transition: %w", err)
	}

	s.logger.Info("status_changed", fmt.Sprintf("Case %s moved from %s to %s", updated.Number, current.Status, to), updated.ID, map[string]interface{}{
		"from":       current.Status,
		"to":         to,
		"changed_by": actor.Role,
		"kind":       kind,
		"sequence":   entry.Sequence,
	})

	s.notify(ctx, updated, entry)

	return &interfaces.TransitionResult{Case: updated, Entry: entry}, nil
}

// notify is best effort. It runs on a context detached from the caller so a
// request cancelled after commit still produces its notification.
func (s *Service) notify(ctx context.Context, c *domain.Case, entry *domain.StatusHistoryEntry) {
	if s.notifier == nil {
		return
	}

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()

	evt := interfaces.StatusChangedEvent{
		CaseID:     c.ID,
		CaseNumber: c.Number,
		FromStatus: entry.FromStatus,
		ToStatus:   entry.ToStatus,
		ActorRole:  entry.ChangedBy,
		Kind:       entry.Kind,
		Timestamp:  entry.CreatedAt,
	}

	if err := s.notifier.PublishStatusChanged(notifyCtx, evt); err != nil {
		s.logger.Error("notification_publish_failed", "Failed to publish status change", c.ID, map[string]interface{}{
			"to": entry.ToStatus,
		}, err)
	}
}

func (s *Service) checkPayment(ctx context.Context, c *domain.Case) error {
	stage, ok := domain.PaymentStageFor(c.Status)
	if !ok {
		return nil
	}
	verified, err := s.payments.IsVerified(ctx, c.ID, stage)
	if err != nil {
		return fmt.Errorf("failed to check payment verification: %w", err)
	}
	if !verified {
		return domain.NewPaymentNotVerifiedError(c.ID, stage)
	}
	return nil
}

func (s *Service) loadCase(ctx context.Context, caseID string) (*domain.Case, error) {
	c, err := s.repo.FindByID(ctx, caseID)
	if err != nil {
		if errors.Is(err, domain.ErrCaseNotFound) {
			return nil, domain.NewNotFoundError(caseID)
		}
		return nil, fmt.Errorf("failed to load case: %w", err)
	}
	return c, nil
}

func validateRequest(caseID, target string, actor domain.Actor) (domain.Status, error) {
	if caseID == "" {
		return "", domain.NewValidationError("case id is required")
	}
	to, err := domain.ParseStatus(strings.TrimSpace(target))
	if err != nil {
		return "", domain.NewValidationError("%v", err)
	}
	if !actor.Role.Valid() {
		return "", domain.NewValidationError("unknown actor role %q", actor.Role)
	}
	return to, nil
}

package interfaces

import (
	"context"

	"github.com/YelzhanWeb/caseflow/internal/domain"
)

type WorkflowService interface {
	RequestTransition(ctx context.Context, caseID string, target string, actor domain.Actor, notes *string) (*TransitionResult, error)
	OverrideStatus(ctx context.Context, caseID string, target string, actor domain.Actor, reason string) (*TransitionResult, error)
	GetAllowedTransitions(ctx context.Context, caseID string, actor domain.Actor) ([]domain.Status, error)
	GetHistory(ctx context.Context, caseID string) ([]*domain.StatusHistoryEntry, error)
	GetCase(ctx context.Context, caseID string) (*domain.Case, error)
}

type IntakeService interface {
	SubmitCase(ctx context.Context, cmd SubmitCaseCommand, actor domain.Actor) (*domain.Case, error)
}

type PaymentService interface {
	HandlePaymentVerified(ctx context.Context, msg PaymentVerifiedMessage) error
}

type TransitionResult struct {
	Case  *domain.Case
	Entry *domain.StatusHistoryEntry
}

type SubmitCaseCommand struct {
	ProcedureCategory string
	GuideType         string
	ServiceTier       string
	PatientRef        string
	Notes             string
	SelectedTeeth     []int
	DeliveryMethod    string
	DeliveryAddress   *string
	Attachments       []SubmitAttachmentCommand
}

type SubmitAttachmentCommand struct {
	FileName    string
	ContentType string
	SizeBytes   int64
	StorageKey  string
}

// Authenticator resolves a bearer token to the acting identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Actor, error)
}

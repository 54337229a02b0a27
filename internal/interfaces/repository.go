package interfaces

import (
	"context"

	"github.com/YelzhanWeb/caseflow/internal/domain"
)

// CaseRepository is the Case Store. Implementations must make every write
// atomic: a case row never disagrees with its latest history entry.
type CaseRepository interface {
	// Create persists a new case together with its creation entry.
	Create(ctx context.Context, c *domain.Case, entry *domain.StatusHistoryEntry) error
	// FindByID returns domain.ErrCaseNotFound when no case has the id.
	FindByID(ctx context.Context, id string) (*domain.Case, error)
	FindByNumber(ctx context.Context, number string) (*domain.Case, error)
	// ApplyTransition writes c (already advanced) and appends entry only if
	// the stored version still equals expectedVersion; otherwise it returns
	// domain.ErrVersionConflict and writes nothing.
	ApplyTransition(ctx context.Context, c *domain.Case, expectedVersion int, entry *domain.StatusHistoryEntry) error
	// GetStatusHistory returns entries oldest first.
	GetStatusHistory(ctx context.Context, caseID string) ([]*domain.StatusHistoryEntry, error)
	GenerateCaseNumber(ctx context.Context) (string, error)
}

// PaymentVerifier is the read side of the external payment subsystem.
type PaymentVerifier interface {
	IsVerified(ctx context.Context, caseID string, stage domain.PaymentStage) (bool, error)
}

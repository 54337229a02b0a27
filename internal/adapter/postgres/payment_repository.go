package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/YelzhanWeb/caseflow/internal/domain"
	"github.com/YelzhanWeb/caseflow/internal/interfaces"
)

// paymentRepository reads proofs written by the payment subsystem.
type paymentRepository struct {
	db DB
}

func NewPaymentVerifier(db DB) interfaces.PaymentVerifier {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) IsVerified(ctx context.Context, caseID string, stage domain.PaymentStage) (bool, error) {
	if _, err := uuid.Parse(caseID); err != nil {
		return false, nil
	}

	query := `
		SELECT EXISTS (
			SELECT 1 FROM payment_proofs
			WHERE case_id = $1 AND stage = $2 AND status = 'verified'
		)
	`
	var verified bool
	if err := r.db.QueryRow(ctx, query, caseID, string(stage)).Scan(&verified); err != nil {
		return false, fmt.Errorf("failed to check payment proofs: %w", err)
	}
	return verified, nil
}

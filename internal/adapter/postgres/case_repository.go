package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/YelzhanWeb/caseflow/internal/domain"
	"github.com/YelzhanWeb/caseflow/internal/interfaces"
)

const uniqueViolation = "23505"

const caseColumns = `
	id::text, number, client_id, designer_id, procedure_category, guide_type,
	service_tier, patient_ref, notes, selected_teeth, delivery_method,
	delivery_address, status, version, created_at, updated_at`

type caseRepository struct {
	db    DB
	clock func() time.Time
}

func NewCaseRepository(db DB) interfaces.CaseRepository {
	return &caseRepository{
		db:    db,
		clock: func() time.Time { return time.Now().UTC() },
	}
}

func (r *caseRepository) Create(ctx context.Context, c *domain.Case, entry *domain.StatusHistoryEntry) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Insert case
	query := `
		INSERT INTO cases (id, number, client_id, designer_id, procedure_category, guide_type,
		                   service_tier, patient_ref, notes, selected_teeth, delivery_method,
		                   delivery_address, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err = tx.Exec(ctx, query,
		c.ID, c.Number, c.ClientID, c.DesignerID, c.ProcedureCategory, c.GuideType,
		string(c.ServiceTier), c.PatientRef, c.Notes, c.SelectedTeeth, string(c.DeliveryMethod),
		c.DeliveryAddress, string(c.Status), c.Version, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert case: %w", err)
	}

	// Insert attachments
	for _, a := range c.Attachments {
		attQuery := `
			INSERT INTO case_attachments (id, case_id, file_name, content_type, size_bytes, storage_key, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`
		if _, err := tx.Exec(ctx, attQuery,
			a.ID, c.ID, a.FileName, a.ContentType, a.SizeBytes, a.StorageKey, a.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert attachment: %w", err)
		}
	}

	// Initial history entry
	if err := insertHistory(ctx, tx, entry); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *caseRepository) FindByID(ctx context.Context, id string) (*domain.Case, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrCaseNotFound
	}
	return r.findOne(ctx, `SELECT `+caseColumns+` FROM cases WHERE id = $1`, id)
}

func (r *caseRepository) FindByNumber(ctx context.Context, number string) (*domain.Case, error) {
	return r.findOne(ctx, `SELECT `+caseColumns+` FROM cases WHERE number = $1`, number)
}

// ApplyTransition relies on the row lock taken by the conditional UPDATE: a
// concurrent writer blocks, then re-evaluates the version predicate and
// updates nothing.
func (r *caseRepository) ApplyTransition(ctx context.Context, c *domain.Case, expectedVersion int, entry *domain.StatusHistoryEntry) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE cases
		SET status = $1, version = $2, designer_id = $3, updated_at = $4
		WHERE id = $5 AND version = $6
	`
	tag, err := tx.Exec(ctx, query,
		string(c.Status), c.Version, c.DesignerID, c.UpdatedAt, c.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update case: %w", err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM cases WHERE id = $1)`, c.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check case: %w", err)
		}
		if !exists {
			return domain.ErrCaseNotFound
		}
		return domain.ErrVersionConflict
	}

	if err := insertHistory(ctx, tx, entry); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *caseRepository) GetStatusHistory(ctx context.Context, caseID string) ([]*domain.StatusHistoryEntry, error) {
	if _, err := uuid.Parse(caseID); err != nil {
		return []*domain.StatusHistoryEntry{}, nil
	}

	query := `
		SELECT id, case_id::text, sequence, from_status, to_status, changed_by, actor_id, kind, notes, created_at
		FROM case_status_history
		WHERE case_id = $1
		ORDER BY sequence ASC
	`

	rows, err := r.db.Query(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to query status history: %w", err)
	}
	defer rows.Close()

	entries := []*domain.StatusHistoryEntry{}
	for rows.Next() {
		var (
			e          domain.StatusHistoryEntry
			from       *string
			to, by, kd string
		)
		if err := rows.Scan(&e.ID, &e.CaseID, &e.Sequence, &from, &to, &by, &e.ActorID, &kd, &e.Notes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan status history: %w", err)
		}
		if from != nil {
			s := domain.Status(*from)
			e.FromStatus = &s
		}
		e.ToStatus = domain.Status(to)
		e.ChangedBy = domain.Role(by)
		e.Kind = domain.EntryKind(kd)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read status history: %w", err)
	}

	return entries, nil
}

// GenerateCaseNumber bumps the per-day counter row in a single statement, so
// concurrent intakes never share a number.
func (r *caseRepository) GenerateCaseNumber(ctx context.Context) (string, error) {
	day := r.clock().Format("20060102")

	query := `
		INSERT INTO case_number_counters (day, seq)
		VALUES ($1, 1)
		ON CONFLICT (day) DO UPDATE SET seq = case_number_counters.seq + 1
		RETURNING seq
	`
	var seq int
	if err := r.db.QueryRow(ctx, query, day).Scan(&seq); err != nil {
		return "", fmt.Errorf("failed to allocate case number: %w", err)
	}

	return fmt.Sprintf("SG_%s_%03d", day, seq), nil
}

func (r *caseRepository) findOne(ctx context.Context, query string, arg string) (*domain.Case, error) {
	var (
		c                   domain.Case
		tier, method, state string
	)
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&c.ID, &c.Number, &c.ClientID, &c.DesignerID, &c.ProcedureCategory, &c.GuideType,
		&tier, &c.PatientRef, &c.Notes, &c.SelectedTeeth, &method,
		&c.DeliveryAddress, &state, &c.Version, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCaseNotFound
		}
		return nil, fmt.Errorf("failed to load case: %w", err)
	}
	c.ServiceTier = domain.ServiceTier(tier)
	c.DeliveryMethod = domain.DeliveryMethod(method)
	c.Status = domain.Status(state)

	attachments, err := r.loadAttachments(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	c.Attachments = attachments

	return &c, nil
}

func (r *caseRepository) loadAttachments(ctx context.Context, caseID string) ([]domain.Attachment, error) {
	query := `
		SELECT id::text, file_name, content_type, size_bytes, storage_key, created_at
		FROM case_attachments
		WHERE case_id = $1
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.Query(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to load attachments: %w", err)
	}
	defer rows.Close()

	var attachments []domain.Attachment
	for rows.Next() {
		var a domain.Attachment
		if err := rows.Scan(&a.ID, &a.FileName, &a.ContentType, &a.SizeBytes, &a.StorageKey, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachments = append(attachments, a)
	}
	return attachments, rows.Err()
}

func insertHistory(ctx context.Context, tx Tx, entry *domain.StatusHistoryEntry) error {
	var from *string
	if entry.FromStatus != nil {
		s := string(*entry.FromStatus)
		from = &s
	}

	query := `
		INSERT INTO case_status_history (case_id, sequence, from_status, to_status, changed_by, actor_id, kind, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	err := tx.QueryRow(ctx, query,
		entry.CaseID, entry.Sequence, from, string(entry.ToStatus), string(entry.ChangedBy),
		entry.ActorID, string(entry.Kind), entry.Notes, entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrVersionConflict
		}
		return fmt.Errorf("failed to insert status history: %w", err)
	}
	return nil
}

package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/YelzhanWeb/caseflow/internal/domain"
	"github.com/YelzhanWeb/caseflow/internal/interfaces"
)

// CaseRepository keeps cases in process memory. It is used by the memory
// store driver and by tests; the version check behaves like the SQL store.
type CaseRepository struct {
	mu      sync.Mutex
	cases   map[string]*domain.Case
	history map[string][]*domain.StatusHistoryEntry
	numbers map[string]string
	nextID  int64
	daySeq  map[string]int
	clock   func() time.Time
}

var _ interfaces.CaseRepository = (*CaseRepository)(nil)

func NewCaseRepository() *CaseRepository {
	return &CaseRepository{
		cases:   make(map[string]*domain.Case),
		history: make(map[string][]*domain.StatusHistoryEntry),
		numbers: make(map[string]string),
		daySeq:  make(map[string]int),
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *CaseRepository) Create(ctx context.Context, c *domain.Case, entry *domain.StatusHistoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.cases[c.ID]; ok {
		return fmt.Errorf("case %s already exists", c.ID)
	}
	if _, ok := r.numbers[c.Number]; ok && c.Number != "" {
		return fmt.Errorf("case number %s already exists", c.Number)
	}

	r.cases[c.ID] = c.Clone()
	if c.Number != "" {
		r.numbers[c.Number] = c.ID
	}
	r.history[c.ID] = []*domain.StatusHistoryEntry{r.stamp(entry)}
	return nil
}

func (r *CaseRepository) FindByID(ctx context.Context, id string) (*domain.Case, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cases[id]
	if !ok {
		return nil, domain.ErrCaseNotFound
	}
	return c.Clone(), nil
}

func (r *CaseRepository) FindByNumber(ctx context.Context, number string) (*domain.Case, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.numbers[number]
	if !ok {
		return nil, domain.ErrCaseNotFound
	}
	return r.cases[id].Clone(), nil
}

// ApplyTransition stores c and appends entry only if the stored version still
// equals expectedVersion.
func (r *CaseRepository) ApplyTransition(ctx context.Context, c *domain.Case, expectedVersion int, entry *domain.StatusHistoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.cases[c.ID]
	if !ok {
		return domain.ErrCaseNotFound
	}
	if current.Version != expectedVersion {
		return domain.ErrVersionConflict
	}

	r.cases[c.ID] = c.Clone()
	r.history[c.ID] = append(r.history[c.ID], r.stamp(entry))
	return nil
}

func (r *CaseRepository) GetStatusHistory(ctx context.Context, caseID string) ([]*domain.StatusHistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.history[caseID]
	out := make([]*domain.StatusHistoryEntry, len(entries))
	for i, e := range entries {
		out[i] = e.Clone()
	}
	return out, nil
}

// GenerateCaseNumber returns SG_YYYYMMDD_NNN with a per-day counter.
func (r *CaseRepository) GenerateCaseNumber(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	day := r.clock().Format("20060102")
	r.daySeq[day]++
	return fmt.Sprintf("SG_%s_%03d", day, r.daySeq[day]), nil
}

func (r *CaseRepository) stamp(entry *domain.StatusHistoryEntry) *domain.StatusHistoryEntry {
	r.nextID++
	entry.ID = r.nextID
	return entry.Clone()
}

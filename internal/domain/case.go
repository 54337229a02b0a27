package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Case is a client's order for a surgical guide, tracked end-to-end.
type Case struct {
	ID                string
	Number            string
	ClientID          string
	DesignerID        *string
	ProcedureCategory string
	GuideType         string
	ServiceTier       ServiceTier
	PatientRef        string
	Notes             string
	SelectedTeeth     []int
	DeliveryMethod    DeliveryMethod
	DeliveryAddress   *string
	Attachments       []Attachment
	Status            Status
	// Version increases by one with every history entry, so it always equals
	// the sequence number of the latest entry.
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Attachment is the opaque metadata of an uploaded scan or document. Storage
// and validation of the file itself happen elsewhere.
type Attachment struct {
	ID          string
	FileName    string
	ContentType string
	SizeBytes   int64
	StorageKey  string
	CreatedAt   time.Time
}

// PaymentStage identifies which payment a payment-gated edge waits on.
type PaymentStage string

const (
	PaymentStageStudy      PaymentStage = "study"
	PaymentStageProduction PaymentStage = "production"
)

// PaymentStageFor returns the stage whose payment must be verified before a
// case may leave `from`.
func PaymentStageFor(from Status) (PaymentStage, bool) {
	switch from {
	case StatusPendingStudyPaymentVerification:
		return PaymentStageStudy, true
	case StatusPendingProductionPaymentVerification:
		return PaymentStageProduction, true
	}
	return "", false
}

// TargetAfterPayment is the status a case moves to once the payment for stage
// is verified.
func TargetAfterPayment(stage PaymentStage) (from, to Status, err error) {
	switch stage {
	case PaymentStageStudy:
		return StatusPendingStudyPaymentVerification, StatusStudyInProgress, nil
	case PaymentStageProduction:
		return StatusPendingProductionPaymentVerification, StatusInProduction, nil
	}
	return "", "", fmt.Errorf("unknown payment stage %q", stage)
}

var (
	ErrInvalidServiceTier    = errors.New("invalid service tier")
	ErrInvalidDeliveryMethod = errors.New("invalid delivery method")
)

// NewCase builds a case in the initial status together with its creation
// history entry. The caller assigns ID and Number.
func NewCase(c Case, actor Actor, now time.Time) (*Case, *StatusHistoryEntry, error) {
	c.ProcedureCategory = strings.TrimSpace(c.ProcedureCategory)
	c.GuideType = strings.TrimSpace(c.GuideType)
	c.PatientRef = strings.TrimSpace(c.PatientRef)
	c.Status = StatusSubmitted
	c.Version = 1
	c.CreatedAt = now
	c.UpdatedAt = now

	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	entry := &StatusHistoryEntry{
		CaseID:    c.ID,
		Sequence:  1,
		ToStatus:  StatusSubmitted,
		ChangedBy: actor.Role,
		ActorID:   actor.ID,
		Kind:      EntryKindCreated,
		CreatedAt: now,
	}
	return &c, entry, nil
}

// Validate applies intake rules.
func (c *Case) Validate() error {
	if strings.TrimSpace(c.ClientID) == "" {
		return errors.New("client id is required")
	}
	if c.ProcedureCategory == "" || utf8.RuneCountInString(c.ProcedureCategory) > 100 {
		return errors.New("procedure category must be 1-100 characters")
	}
	if c.GuideType == "" || utf8.RuneCountInString(c.GuideType) > 100 {
		return errors.New("guide type must be 1-100 characters")
	}
	if utf8.RuneCountInString(c.PatientRef) > 100 {
		return errors.New("patient reference must not exceed 100 characters")
	}
	if utf8.RuneCountInString(c.Notes) > 5000 {
		return errors.New("notes must not exceed 5000 characters")
	}

	switch c.ServiceTier {
	case ServiceTierStudyOnly, ServiceTierFullSolution:
	default:
		return ErrInvalidServiceTier
	}

	switch c.DeliveryMethod {
	case DeliveryMethodPickup:
		if c.DeliveryAddress != nil {
			return errors.New("delivery address must not be present for pickup")
		}
	case DeliveryMethodDelivery:
		if c.DeliveryAddress == nil || utf8.RuneCountInString(strings.TrimSpace(*c.DeliveryAddress)) < 10 {
			return errors.New("delivery address required (min 10 characters)")
		}
	default:
		return ErrInvalidDeliveryMethod
	}

	if len(c.SelectedTeeth) < 1 || len(c.SelectedTeeth) > 32 {
		return errors.New("between 1 and 32 teeth must be selected")
	}
	seen := make(map[int]bool, len(c.SelectedTeeth))
	for _, t := range c.SelectedTeeth {
		if !validFDITooth(t) {
			return fmt.Errorf("tooth %d is not a valid FDI permanent tooth number", t)
		}
		if seen[t] {
			return fmt.Errorf("tooth %d selected more than once", t)
		}
		seen[t] = true
	}

	for i, a := range c.Attachments {
		if strings.TrimSpace(a.FileName) == "" {
			return fmt.Errorf("attachments[%d]: file name is required", i)
		}
		if a.SizeBytes < 0 {
			return fmt.Errorf("attachments[%d]: size must not be negative", i)
		}
	}

	return nil
}

// Advance moves the case to `to` and returns the history entry recording the
// move. It does not check the transition table; the workflow engine does.
func (c *Case) Advance(to Status, actor Actor, notes *string, kind EntryKind, now time.Time) *StatusHistoryEntry {
	from := c.Status
	c.Status = to
	c.Version++
	c.UpdatedAt = now

	return &StatusHistoryEntry{
		CaseID:     c.ID,
		Sequence:   c.Version,
		FromStatus: &from,
		ToStatus:   to,
		ChangedBy:  actor.Role,
		ActorID:    actor.ID,
		Kind:       kind,
		Notes:      notes,
		CreatedAt:  now,
	}
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (c *Case) Clone() *Case {
	cp := *c
	if c.DesignerID != nil {
		v := *c.DesignerID
		cp.DesignerID = &v
	}
	if c.DeliveryAddress != nil {
		v := *c.DeliveryAddress
		cp.DeliveryAddress = &v
	}
	cp.SelectedTeeth = append([]int(nil), c.SelectedTeeth...)
	cp.Attachments = append([]Attachment(nil), c.Attachments...)
	return &cp
}

func validFDITooth(n int) bool {
	quadrant, tooth := n/10, n%10
	return quadrant >= 1 && quadrant <= 4 && tooth >= 1 && tooth <= 8
}

package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies workflow failures so callers can render an actionable
// message.
type ErrorKind string

const (
	KindNotFound           ErrorKind = "NotFound"
	KindIllegalTransition  ErrorKind = "IllegalTransition"
	KindForbidden          ErrorKind = "Forbidden"
	KindConflict           ErrorKind = "Conflict"
	KindValidation         ErrorKind = "ValidationError"
	KindPaymentNotVerified ErrorKind = "PaymentNotVerified"
)

// Store-level sentinels, translated into WorkflowError by the engine.
var (
	ErrCaseNotFound    = errors.New("case not found")
	ErrVersionConflict = errors.New("case was modified concurrently")
)

// WorkflowError is returned by every engine operation that fails for a
// business reason.
type WorkflowError struct {
	Kind    ErrorKind
	Message string
	// Allowed lists the statuses reachable from the current one. Set for
	// IllegalTransition (any role) and Forbidden (acting role only).
	Allowed []Status
	Err     error
}

func (e *WorkflowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *WorkflowError) Unwrap() error { return e.Err }

// KindOf extracts the kind of a WorkflowError anywhere in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var we *WorkflowError
	if errors.As(err, &we) {
		return we.Kind, true
	}
	return "", false
}

// IsKind reports whether err carries a WorkflowError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

func NewNotFoundError(caseID string) *WorkflowError {
	return &WorkflowError{
		Kind:    KindNotFound,
		Message: fmt.Sprintf("case %s not found", caseID),
		Err:     ErrCaseNotFound,
	}
}

func NewIllegalTransitionError(from, to Status, allowed []Status) *WorkflowError {
	return &WorkflowError{
		Kind: KindIllegalTransition,
		Message: fmt.Sprintf("cannot move case from %s to %s; allowed from %s: [%s]",
			from, to, from, joinStatuses(allowed)),
		Allowed: allowed,
	}
}

func NewForbiddenError(from, to Status, role Role, allowed []Status) *WorkflowError {
	return &WorkflowError{
		Kind:    KindForbidden,
		Message: fmt.Sprintf("role %s may not move case from %s to %s", role, from, to),
		Allowed: allowed,
	}
}

func NewConflictError(caseID string, err error) *WorkflowError {
	return &WorkflowError{
		Kind:    KindConflict,
		Message: fmt.Sprintf("case %s changed while the request was processed; reload and retry", caseID),
		Err:     err,
	}
}

func NewValidationError(format string, args ...any) *WorkflowError {
	return &WorkflowError{
		Kind:    KindValidation,
		Message: fmt.Sprintf(format, args...),
	}
}

func NewPaymentNotVerifiedError(caseID string, stage PaymentStage) *WorkflowError {
	return &WorkflowError{
		Kind:    KindPaymentNotVerified,
		Message: fmt.Sprintf("%s payment for case %s has not been verified", stage, caseID),
	}
}

func joinStatuses(statuses []Status) string {
	parts := make([]string, len(statuses))
	for i, s := range statuses {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}

package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrConfirmationRequired rejects an execute call whose request was not
// confirmed by the operator. It is enforced before the executor's
// transaction opens, so no state is touched.
var ErrConfirmationRequired = errors.New("merge operation must be confirmed")

// ErrDocumentNotFound reports an unresolvable document id.
var ErrDocumentNotFound = errors.New("document not found")

// NotFoundError reports an unresolvable patient id.
type NotFoundError struct {
	PatientID string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("patient %s not found", e.PatientID)
}

// StructuralError reports missing or malformed request fields. Structural
// problems fail fast; business checks are meaningless on incomplete input.
type StructuralError struct {
	Fields []string
}

func (e StructuralError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

// BusinessRuleError carries the full accumulated set of blocking business
// violations from validation or execute-time re-validation.
type BusinessRuleError struct {
	Violations []Violation
}

func (e BusinessRuleError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		if v.Severity == SeverityBlock {
			msgs = append(msgs, v.Message)
		}
	}
	return "merge rejected: " + strings.Join(msgs, "; ")
}

// ConcurrencyConflictError reports a conflicting concurrent commit detected
// during execution. The transaction was rolled back; the operation is safe
// to retry after a fresh preview.
type ConcurrencyConflictError struct {
	PatientID string
}

func (e ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("concurrent merge detected for patient %s; retry after refreshing", e.PatientID)
}

// IsRetryable reports whether an execution failure may be retried without
// operator intervention: concurrency conflicts and internal persistence
// failures roll back completely, so a retry observes a consistent state.
func IsRetryable(err error) bool {
	var conflict ConcurrencyConflictError
	if errors.As(err, &conflict) {
		return true
	}
	var notFound NotFoundError
	var structural StructuralError
	var business BusinessRuleError
	if errors.As(err, &notFound) || errors.As(err, &structural) || errors.As(err, &business) {
		return false
	}
	if errors.Is(err, ErrConfirmationRequired) || errors.Is(err, ErrDocumentNotFound) {
		return false
	}
	return err != nil
}

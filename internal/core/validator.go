package core

import (
	"fmt"

	"patientcore/pkg/domain"
)

// Validation check names carried on violations so callers can tell which
// rule produced a finding.
const (
	checkMembership = "primary_membership"
	checkSelfMerge  = "self_merge"
	checkMerged     = "already_merged"
	checkConflict   = "conflict"
)

// checkStructure fails fast on missing request fields. Business checks are
// meaningless on incomplete input.
func checkStructure(req MergeRequest) error {
	if missing := req.MissingFields(); len(missing) > 0 {
		return domain.StructuralError{Fields: missing}
	}
	return nil
}

// checkPair enforces the rules that need no store access: the primary
// selector must name one of the two candidates, and a patient cannot be
// merged with itself. Violations accumulate.
func checkPair(req MergeRequest) []Violation {
	var violations []Violation
	if req.PrimaryPatientID != req.Patient1ID && req.PrimaryPatientID != req.Patient2ID {
		violations = append(violations, Violation{
			Check:    checkMembership,
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("primary patient %s is neither %s nor %s", req.PrimaryPatientID, req.Patient1ID, req.Patient2ID),
		})
	}
	if req.Patient1ID == req.Patient2ID {
		violations = append(violations, Violation{
			Check:    checkSelfMerge,
			Severity: domain.SeverityBlock,
			Message:  "cannot merge a patient with itself",
		})
	}
	return violations
}

// checkNotMerged blocks re-merges and merge chains, naming the side and its
// existing target.
func checkNotMerged(label string, p PatientIdentity) []Violation {
	if !p.IsMerged {
		return nil
	}
	target := "unknown"
	if p.MergedIntoID != nil {
		target = *p.MergedIntoID
	}
	return []Violation{{
		Check:    checkMerged,
		Severity: domain.SeverityBlock,
		Message:  fmt.Sprintf("%s %s is already merged into patient %s", label, p.ID, target),
	}}
}

// validateBusiness runs every business check against the given view and, on
// a clean pass, attaches the recomputed data summary plus one warning per
// conflicting field or identifier type. Read-only and idempotent.
func validateBusiness(view TransactionView, req MergeRequest) (ValidationResult, error) {
	var result ValidationResult
	result.Violations = append(result.Violations, checkPair(req)...)
	if result.HasBlocking() {
		// Membership and self-merge findings are final; storage is not
		// consulted for a pair that can never merge.
		return result, nil
	}

	snapA, err := Analyze(view, req.Patient1ID)
	if err != nil {
		return ValidationResult{}, err
	}
	snapB, err := Analyze(view, req.Patient2ID)
	if err != nil {
		return ValidationResult{}, err
	}

	result.Violations = append(result.Violations, checkNotMerged("patient1", snapA.Patient)...)
	result.Violations = append(result.Violations, checkNotMerged("patient2", snapB.Patient)...)
	if result.HasBlocking() {
		return result, nil
	}

	result.Summary = buildSummary(snapA, snapB)
	pair := req.Normalize()
	for _, field := range result.Summary.Conflicts.Fields {
		result.Violations = append(result.Violations, Violation{
			Check:    checkConflict,
			Severity: domain.SeverityWarn,
			Message:  fmt.Sprintf("field %s differs; the value on patient %s will be discarded", field, pair.LosingID),
		})
	}
	for _, identType := range result.Summary.Conflicts.IdentifierTypes {
		result.Violations = append(result.Violations, Violation{
			Check:    checkConflict,
			Severity: domain.SeverityWarn,
			Message:  fmt.Sprintf("identifier %s differs; the value on patient %s will be discarded", identType, pair.LosingID),
		})
	}
	result.Valid = true
	return result, nil
}

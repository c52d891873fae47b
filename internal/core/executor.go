package core

import (
	"time"

	"patientcore/pkg/domain"
)

// executeMerge performs the consolidation inside an already-open transaction.
// Business checks are re-run against the transaction's own state first, so a
// merge committed between preview and execution is caught here and aborts
// with no writes.
func executeMerge(tx Transaction, registry *ReassignmentRegistry, req MergeRequest, performedBy string, now time.Time, started time.Time) (ExecutionResult, error) {
	revalidation, err := validateBusiness(tx.Snapshot(), req)
	if err != nil {
		return ExecutionResult{}, err
	}
	if revalidation.HasBlocking() {
		return ExecutionResult{}, domain.BusinessRuleError{Violations: revalidation.Violations}
	}

	pair := req.Normalize()

	counts, err := registry.ReassignAll(tx, pair.LosingID, pair.PrimaryID)
	if err != nil {
		return ExecutionResult{}, err
	}

	losing, _ := tx.FindPatient(pair.LosingID)
	filled, err := fillMissingDemographics(tx, pair.PrimaryID, losing.Demographics)
	if err != nil {
		return ExecutionResult{}, err
	}

	if _, err := tx.UpdatePatient(pair.LosingID, func(p *PatientIdentity) error {
		primaryID := pair.PrimaryID
		mergeDate := now
		p.IsMerged = true
		p.MergedIntoID = &primaryID
		p.MergeDate = &mergeDate
		return nil
	}); err != nil {
		return ExecutionResult{}, err
	}

	audit, err := tx.AppendMergeAudit(MergeAuditEntry{
		PrimaryPatientID: pair.PrimaryID,
		MergedPatientID:  pair.LosingID,
		MergeDate:        now,
		PerformedBy:      performedBy,
		Reason:           req.Reason,
		Summary: domain.MergeAuditSummary{
			Reassigned:        counts,
			DemographicFields: filled,
			DurationMS:        time.Since(started).Milliseconds(),
		},
	})
	if err != nil {
		return ExecutionResult{}, err
	}

	return ExecutionResult{
		Success:           true,
		MergeAuditID:      audit.ID,
		PrimaryPatientID:  pair.PrimaryID,
		MergedPatientID:   pair.LosingID,
		Reassigned:        counts,
		DemographicFields: filled,
	}, nil
}

// fillMissingDemographics copies each demographic field that is blank on the
// primary but present on the losing identity. A non-blank primary value is
// never overwritten, matching the conflict semantics of the analyzer.
func fillMissingDemographics(tx Transaction, primaryID string, losing Demographics) ([]string, error) {
	var filled []string
	_, err := tx.UpdatePatient(primaryID, func(p *PatientIdentity) error {
		for _, field := range domain.DemographicFields() {
			dst := field.Get(&p.Demographics)
			src := *field.Get(&losing)
			if domain.Blank(*dst) && !domain.Blank(src) {
				*dst = src
				filled = append(filled, field.Name)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return filled, nil
}

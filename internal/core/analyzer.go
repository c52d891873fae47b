package core

import (
	"sort"

	"patientcore/pkg/domain"
)

// Analyze builds the read-only snapshot of one patient: demographics,
// identifier rows, and per-category record counts.
func Analyze(view TransactionView, patientID string) (PatientSnapshot, error) {
	patient, ok := view.FindPatient(patientID)
	if !ok {
		return PatientSnapshot{}, domain.NotFoundError{PatientID: patientID}
	}
	return PatientSnapshot{
		Patient:     patient,
		Identifiers: view.ListIdentifiers(patientID),
		Counts:      countRecords(view, patientID),
	}, nil
}

func countRecords(view TransactionView, patientID string) PatientCounts {
	return PatientCounts{
		Orders:            view.CountRecords(domain.CategoryOrders, patientID),
		ActiveOrders:      view.CountActiveOrders(patientID),
		Results:           view.CountRecords(domain.CategoryResults, patientID),
		Samples:           view.CountRecords(domain.CategorySamples, patientID),
		Documents:         view.CountRecords(domain.CategoryDocuments, patientID),
		Identifiers:       view.CountRecords(domain.CategoryIdentifiers, patientID),
		Contacts:          view.CountRecords(domain.CategoryContacts, patientID),
		Relations:         view.CountRecords(domain.CategoryRelations, patientID),
		AuditTrailEntries: view.CountRecords(domain.CategoryAuditTrail, patientID),
	}
}

// CompareConflicts pairwise-compares every demographic field and every
// identifier type of the two snapshots. A field or type conflicts only when
// both sides hold non-blank values that differ after normalization; a value
// present on one side only is not a conflict. The result is symmetric in its
// arguments.
func CompareConflicts(a, b PatientSnapshot) ConflictSet {
	var set ConflictSet
	for _, field := range domain.DemographicFields() {
		av := *field.Get(&a.Patient.Demographics)
		bv := *field.Get(&b.Patient.Demographics)
		if domain.Blank(av) || domain.Blank(bv) {
			continue
		}
		if domain.NormalizeValue(av) != domain.NormalizeValue(bv) {
			set.Fields = append(set.Fields, field.Name)
		}
	}

	aValues := identifierValuesByType(a.Identifiers)
	bValues := identifierValuesByType(b.Identifiers)
	for _, t := range identifierTypeUnion(a.Identifiers, b.Identifiers) {
		av, aok := aValues[t]
		bv, bok := bValues[t]
		if !aok || !bok {
			continue
		}
		if av != bv {
			set.IdentifierTypes = append(set.IdentifierTypes, string(t))
		}
	}
	sort.Strings(set.IdentifierTypes)
	return set
}

func identifierValuesByType(identifiers []Identifier) map[domain.IdentifierType]string {
	out := make(map[domain.IdentifierType]string, len(identifiers))
	for _, ident := range identifiers {
		if domain.Blank(ident.Value) {
			continue
		}
		// ListIdentifiers orders rows by type then value, so the first row
		// of each type is the canonical one for comparison.
		if _, seen := out[ident.Type]; !seen {
			out[ident.Type] = domain.NormalizeValue(ident.Value)
		}
	}
	return out
}

func identifierTypeUnion(a, b []Identifier) []domain.IdentifierType {
	seen := map[domain.IdentifierType]bool{}
	var out []domain.IdentifierType
	for _, ident := range a {
		if !seen[ident.Type] {
			seen[ident.Type] = true
			out = append(out, ident.Type)
		}
	}
	for _, ident := range b {
		if !seen[ident.Type] {
			seen[ident.Type] = true
			out = append(out, ident.Type)
		}
	}
	return out
}

// buildSummary assembles the merge-preview data summary for a candidate pair.
func buildSummary(a, b PatientSnapshot) *DataSummary {
	return &DataSummary{
		Patient1ID:     a.Patient.ID,
		Patient2ID:     b.Patient.ID,
		Patient1Counts: a.Counts,
		Patient2Counts: b.Counts,
		Conflicts:      CompareConflicts(a, b),
	}
}

package domain

import "sort"

// MergeRequest is the operator-submitted merge candidate pair. It carries
// both ids plus a primary selector to support side-by-side comparison UIs;
// the engine normalizes it to a MergePair immediately after the membership
// check. Requests are validated and consumed, never persisted.
type MergeRequest struct {
	Patient1ID       string `json:"patient1_id" validate:"required"`
	Patient2ID       string `json:"patient2_id" validate:"required"`
	PrimaryPatientID string `json:"primary_patient_id" validate:"required"`
	Reason           string `json:"reason" validate:"required"`
	Confirmed        bool   `json:"confirmed"`
}

// MissingFields returns the names of required fields that are absent.
func (r MergeRequest) MissingFields() []string {
	var missing []string
	if Blank(r.Patient1ID) {
		missing = append(missing, "patient1Id")
	}
	if Blank(r.Patient2ID) {
		missing = append(missing, "patient2Id")
	}
	if Blank(r.PrimaryPatientID) {
		missing = append(missing, "primaryPatientId")
	}
	if Blank(r.Reason) {
		missing = append(missing, "reason")
	}
	return missing
}

// MergePair is the normalized form of a membership-checked request.
// Downstream logic never re-derives "the other one".
type MergePair struct {
	PrimaryID string
	LosingID  string
}

// Normalize resolves primary versus losing identity. The caller must have
// already established that PrimaryPatientID equals one of the two ids.
func (r MergeRequest) Normalize() MergePair {
	if r.PrimaryPatientID == r.Patient1ID {
		return MergePair{PrimaryID: r.Patient1ID, LosingID: r.Patient2ID}
	}
	return MergePair{PrimaryID: r.Patient2ID, LosingID: r.Patient1ID}
}

// Severity classifies a validation finding.
type Severity string

// Validation severities: blocking findings fail the merge, warnings surface
// data that will be discarded.
const (
	SeverityBlock Severity = "block"
	SeverityWarn  Severity = "warn"
)

// Violation reports one validation finding.
type Violation struct {
	Check    string   `json:"check"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// ValidationResult aggregates findings from the merge validator together
// with the recomputed data summary. Business checks accumulate rather than
// short-circuit so an operator sees every violation at once.
type ValidationResult struct {
	Valid      bool         `json:"valid"`
	Violations []Violation  `json:"violations"`
	Summary    *DataSummary `json:"data_summary,omitempty"`
}

// Merge appends findings from another result.
func (r *ValidationResult) Merge(other ValidationResult) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking reports whether any finding fails the merge.
func (r ValidationResult) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Errors returns the messages of blocking findings.
func (r ValidationResult) Errors() []string {
	var out []string
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			out = append(out, v.Message)
		}
	}
	return out
}

// Warnings returns the messages of non-blocking findings.
func (r ValidationResult) Warnings() []string {
	var out []string
	for _, v := range r.Violations {
		if v.Severity == SeverityWarn {
			out = append(out, v.Message)
		}
	}
	return out
}

// PatientCounts holds per-category record totals for one patient.
type PatientCounts struct {
	Orders            int `json:"orders"`
	ActiveOrders      int `json:"active_orders"`
	Results           int `json:"results"`
	Samples           int `json:"samples"`
	Documents         int `json:"documents"`
	Identifiers       int `json:"identifiers"`
	Contacts          int `json:"contacts"`
	Relations         int `json:"relations"`
	AuditTrailEntries int `json:"audit_trail_entries"`
}

// ConflictSet names the demographic fields and identifier types that hold
// differing non-blank values on both merge candidates. A value present on
// only one side is not a conflict; it wins implicitly at execution.
type ConflictSet struct {
	Fields          []string `json:"fields"`
	IdentifierTypes []string `json:"identifier_types"`
}

// Empty reports whether no conflicts were found.
func (c ConflictSet) Empty() bool {
	return len(c.Fields) == 0 && len(c.IdentifierTypes) == 0
}

// DataSummary is the merge-preview payload: per-patient counts plus the
// pairwise conflict set. It is always recomputed, never cached, because
// dependent data can change between preview and execution.
type DataSummary struct {
	Patient1ID     string        `json:"patient1_id"`
	Patient2ID     string        `json:"patient2_id"`
	Patient1Counts PatientCounts `json:"patient1_counts"`
	Patient2Counts PatientCounts `json:"patient2_counts"`
	Conflicts      ConflictSet   `json:"conflicts"`
}

// PatientSnapshot is the analyzer's read-only view of one patient.
type PatientSnapshot struct {
	Patient     PatientIdentity `json:"patient"`
	Identifiers []Identifier    `json:"identifiers"`
	Counts      PatientCounts   `json:"counts"`
}

// IdentifierDisplay is one visible identifier in a merge-details response.
type IdentifierDisplay struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// MergeDetails is the preview payload for one patient.
type MergeDetails struct {
	PatientID   string              `json:"patient_id"`
	FirstName   string              `json:"first_name"`
	LastName    string              `json:"last_name"`
	Gender      string              `json:"gender"`
	BirthDate   string              `json:"birth_date"`
	Identifiers []IdentifierDisplay `json:"identifiers"`
	Counts      PatientCounts       `json:"data_summary"`
}

// ReassignmentCounts maps each category to the number of records moved.
type ReassignmentCounts map[RecordCategory]int

// Total sums reassigned records across categories.
func (c ReassignmentCounts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// Categories returns the categories with reassigned records in stable order.
func (c ReassignmentCounts) Categories() []RecordCategory {
	out := make([]RecordCategory, 0, len(c))
	for cat := range c {
		out = append(out, cat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ExecutionResult reports the outcome of one merge execution.
type ExecutionResult struct {
	Success           bool               `json:"success"`
	MergeAuditID      string             `json:"merge_audit_id,omitempty"`
	PrimaryPatientID  string             `json:"primary_patient_id,omitempty"`
	MergedPatientID   string             `json:"merged_patient_id,omitempty"`
	Reassigned        ReassignmentCounts `json:"reassigned,omitempty"`
	DemographicFields []string           `json:"demographic_fields_filled,omitempty"`
	DurationMS        int64              `json:"duration_ms"`
	Message           string             `json:"message,omitempty"`
}

// Package domain defines the persistent entities, merge value types, and
// persistence contracts used by patientcore.
package domain

import (
	"strings"
	"time"
)

// RecordCategory identifies a family of dependent records owned by a patient
// identity. Every category must have a reassignment handler registered with
// the merge executor; a category missing from the registry silently escapes
// consolidation.
type RecordCategory string

// Supported record categories used in reassignment handlers, data summaries,
// and persistence buckets.
const (
	// CategoryOrders identifies electronic test orders.
	CategoryOrders RecordCategory = "orders"
	// CategoryResults identifies finalized analysis results.
	CategoryResults RecordCategory = "results"
	// CategorySamples identifies collected specimens.
	CategorySamples RecordCategory = "samples"
	// CategoryDocuments identifies attached document metadata.
	CategoryDocuments RecordCategory = "documents"
	// CategoryIdentifiers identifies typed patient identifier rows.
	CategoryIdentifiers RecordCategory = "identifiers"
	// CategoryContacts identifies patient contact persons.
	CategoryContacts RecordCategory = "contacts"
	// CategoryRelations identifies patient-to-patient relationship rows.
	CategoryRelations RecordCategory = "relations"
	// CategoryAuditTrail identifies prior per-patient audit rows.
	CategoryAuditTrail RecordCategory = "audit_trail"
)

// RecordCategories lists every registered category in summary display order.
func RecordCategories() []RecordCategory {
	return []RecordCategory{
		CategoryOrders,
		CategoryResults,
		CategorySamples,
		CategoryDocuments,
		CategoryIdentifiers,
		CategoryContacts,
		CategoryRelations,
		CategoryAuditTrail,
	}
}

// OrderStatus enumerates electronic order workflow states.
type OrderStatus string

// Canonical order statuses; pending and in-progress orders count as active.
const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusInProgress OrderStatus = "in_progress"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// Active reports whether an order still counts toward the active-order total.
func (s OrderStatus) Active() bool {
	return s == OrderStatusPending || s == OrderStatusInProgress
}

// IdentifierType classifies a patient identifier row.
type IdentifierType string

// Identifier types carried over from the upstream registration system.
const (
	IdentifierSubject        IdentifierType = "SUBJECT"
	IdentifierNational       IdentifierType = "NATIONAL"
	IdentifierST             IdentifierType = "ST"
	IdentifierInsurance      IdentifierType = "INSURANCE"
	IdentifierOBNumber       IdentifierType = "OB_NUMBER"
	IdentifierPCNumber       IdentifierType = "PC_NUMBER"
	IdentifierGUID           IdentifierType = "GUID"
	IdentifierAKA            IdentifierType = "AKA"
	IdentifierMother         IdentifierType = "MOTHER"
	IdentifierMothersInitial IdentifierType = "MOTHERS_INITIAL"
)

// Internal reports whether the identifier type is system-managed and must be
// hidden from merge preview displays.
func (t IdentifierType) Internal() bool {
	switch t {
	case IdentifierGUID, IdentifierAKA, IdentifierMother, IdentifierMothersInitial:
		return true
	}
	return false
}

// DisplayName maps an identifier type to its operator-facing label.
func (t IdentifierType) DisplayName() string {
	switch t {
	case IdentifierSubject:
		return "Subject Number"
	case IdentifierNational:
		return "National ID"
	case IdentifierST:
		return "ST Number"
	case IdentifierInsurance:
		return "Insurance ID"
	case IdentifierOBNumber:
		return "OB Number"
	case IdentifierPCNumber:
		return "PC Number"
	}
	return string(t)
}

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Demographics holds the identity fields compared for conflicts and filled
// from the losing patient during a merge. All fields are normalized strings;
// BirthDate carries the ISO display form used by registration.
type Demographics struct {
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	MiddleName    string `json:"middle_name"`
	Gender        string `json:"gender"`
	BirthDate     string `json:"birth_date"`
	NationalID    string `json:"national_id"`
	ExternalID    string `json:"external_id"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
	StreetAddress string `json:"street_address"`
	City          string `json:"city"`
	State         string `json:"state"`
	ZipCode       string `json:"zip_code"`
	Country       string `json:"country"`
}

// DemographicField pairs a field name with an accessor into Demographics.
// Conflict detection and fill-missing copying iterate the same table so the
// two stay exhaustive together.
type DemographicField struct {
	Name string
	Get  func(*Demographics) *string
}

// DemographicFields returns the canonical field table in comparison order.
func DemographicFields() []DemographicField {
	return []DemographicField{
		{"firstName", func(d *Demographics) *string { return &d.FirstName }},
		{"lastName", func(d *Demographics) *string { return &d.LastName }},
		{"middleName", func(d *Demographics) *string { return &d.MiddleName }},
		{"gender", func(d *Demographics) *string { return &d.Gender }},
		{"birthDate", func(d *Demographics) *string { return &d.BirthDate }},
		{"nationalId", func(d *Demographics) *string { return &d.NationalID }},
		{"externalId", func(d *Demographics) *string { return &d.ExternalID }},
		{"phone", func(d *Demographics) *string { return &d.Phone }},
		{"email", func(d *Demographics) *string { return &d.Email }},
		{"streetAddress", func(d *Demographics) *string { return &d.StreetAddress }},
		{"city", func(d *Demographics) *string { return &d.City }},
		{"state", func(d *Demographics) *string { return &d.State }},
		{"zipCode", func(d *Demographics) *string { return &d.ZipCode }},
		{"country", func(d *Demographics) *string { return &d.Country }},
	}
}

// NormalizeValue canonicalizes a demographic or identifier value for
// comparison: surrounding whitespace is stripped and case is folded.
func NormalizeValue(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// Blank reports whether a value is empty after trimming.
func Blank(v string) bool {
	return strings.TrimSpace(v) == ""
}

// PatientIdentity is one registered patient. Registration creates rows;
// only the merge executor mutates the three merge-tracking fields.
// Invariant: IsMerged is true exactly when MergedIntoID is set, and
// MergedIntoID always references a non-merged identity.
type PatientIdentity struct {
	Base
	Demographics
	IsMerged     bool       `json:"is_merged"`
	MergedIntoID *string    `json:"merged_into_id"`
	MergeDate    *time.Time `json:"merge_date"`
}

// Order is an electronic test order owned by one patient.
type Order struct {
	Base
	PatientID    string      `json:"patient_id"`
	PlacerNumber string      `json:"placer_number"`
	Status       OrderStatus `json:"status"`
}

// LabResult is a finalized analysis result owned by one patient.
type LabResult struct {
	Base
	PatientID string  `json:"patient_id"`
	OrderID   *string `json:"order_id"`
	TestName  string  `json:"test_name"`
	Value     string  `json:"value"`
}

// Sample is a collected specimen owned by one patient.
type Sample struct {
	Base
	PatientID       string    `json:"patient_id"`
	AccessionNumber string    `json:"accession_number"`
	CollectedAt     time.Time `json:"collected_at"`
}

// Document is attached file metadata; content lives in the blob store under
// BlobKey.
type Document struct {
	Base
	PatientID   string `json:"patient_id"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	BlobKey     string `json:"blob_key"`
	SizeBytes   int64  `json:"size_bytes"`
}

// Identifier is one typed identifier row owned by a patient.
type Identifier struct {
	Base
	PatientID string         `json:"patient_id"`
	Type      IdentifierType `json:"type"`
	Value     string         `json:"value"`
}

// Contact is a contact person attached to a patient.
type Contact struct {
	Base
	PatientID string `json:"patient_id"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
}

// Relation links two patients. Both reference columns are rewritten during
// consolidation.
type Relation struct {
	Base
	PatientID        string `json:"patient_id"`
	RelatedPatientID string `json:"related_patient_id"`
	Relationship     string `json:"relationship"`
}

// AuditTrailEntry is a prior per-patient audit row reassigned alongside
// clinical data so history follows the surviving identity.
type AuditTrailEntry struct {
	Base
	PatientID   string    `json:"patient_id"`
	Event       string    `json:"event"`
	PerformedBy string    `json:"performed_by"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// MergeAuditEntry is the append-only ledger row written once per completed
// merge, in the same transaction as the consolidation. Entries are never
// updated or deleted.
type MergeAuditEntry struct {
	Base
	PrimaryPatientID string            `json:"primary_patient_id"`
	MergedPatientID  string            `json:"merged_patient_id"`
	MergeDate        time.Time         `json:"merge_date"`
	PerformedBy      string            `json:"performed_by"`
	Reason           string            `json:"reason"`
	Summary          MergeAuditSummary `json:"summary"`
}

// MergeAuditSummary captures what the consolidation actually did.
type MergeAuditSummary struct {
	Reassigned        map[RecordCategory]int `json:"reassigned"`
	DemographicFields []string               `json:"demographic_fields_filled"`
	DurationMS        int64                  `json:"duration_ms"`
}

// SearchHit is one row of a raw identifier search before redirection.
type SearchHit struct {
	PatientID  string `json:"patient_id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Gender     string `json:"gender"`
	BirthDate  string `json:"birth_date"`
	NationalID string `json:"national_id"`
	ExternalID string `json:"external_id"`
}

// HitFromPatient projects a patient identity onto its search row shape.
func HitFromPatient(p PatientIdentity) SearchHit {
	return SearchHit{
		PatientID:  p.ID,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		Gender:     p.Gender,
		BirthDate:  p.BirthDate,
		NationalID: p.NationalID,
		ExternalID: p.ExternalID,
	}
}

package domain

import "context"

// Transaction exposes the domain operations a persistence implementation
// must support within an atomic scope. Every mutation in a merge execution
// happens through one Transaction; an error from the supplied function
// discards all of it.
type Transaction interface {
	Snapshot() TransactionView

	CreatePatient(PatientIdentity) (PatientIdentity, error)
	UpdatePatient(id string, mutator func(*PatientIdentity) error) (PatientIdentity, error)
	FindPatient(id string) (PatientIdentity, bool)

	CreateOrder(Order) (Order, error)
	CreateLabResult(LabResult) (LabResult, error)
	CreateSample(Sample) (Sample, error)
	CreateDocument(Document) (Document, error)
	CreateIdentifier(Identifier) (Identifier, error)
	CreateContact(Contact) (Contact, error)
	CreateRelation(Relation) (Relation, error)
	CreateAuditTrailEntry(AuditTrailEntry) (AuditTrailEntry, error)

	// Per-category bulk owner reassignment. Each returns the number of
	// records moved from one identity to the other.
	ReassignOrders(fromPatientID, toPatientID string) (int, error)
	ReassignLabResults(fromPatientID, toPatientID string) (int, error)
	ReassignSamples(fromPatientID, toPatientID string) (int, error)
	ReassignDocuments(fromPatientID, toPatientID string) (int, error)
	ReassignIdentifiers(fromPatientID, toPatientID string) (int, error)
	ReassignContacts(fromPatientID, toPatientID string) (int, error)
	ReassignRelations(fromPatientID, toPatientID string) (int, error)
	ReassignAuditTrail(fromPatientID, toPatientID string) (int, error)

	// AppendMergeAudit inserts one ledger row. The ledger is append-only;
	// no update or delete operation exists.
	AppendMergeAudit(MergeAuditEntry) (MergeAuditEntry, error)
}

// TransactionView provides read-only access to a consistent snapshot.
type TransactionView interface {
	FindPatient(id string) (PatientIdentity, bool)
	ListPatients() []PatientIdentity
	CountRecords(category RecordCategory, patientID string) int
	CountActiveOrders(patientID string) int
	ListIdentifiers(patientID string) []Identifier
	ListDocuments(patientID string) []Document
	FindDocument(id string) (Document, bool)
	ListMergeAudit(patientID string) []MergeAuditEntry
	// SearchByIdentifier returns raw hits whose national id, external id,
	// or any identifier row matches the value exactly after normalization.
	// Redirection of merged hits is the caller's responsibility.
	SearchByIdentifier(value string) []SearchHit
}

// PersistentStore is the minimal abstraction over durable backends used by
// the merge engine.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) error
	View(ctx context.Context, fn func(TransactionView) error) error
	GetPatient(id string) (PatientIdentity, bool)
	ListPatients() []PatientIdentity
	ListMergeAudit(patientID string) []MergeAuditEntry
}

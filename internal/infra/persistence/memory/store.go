// Package memory provides an in-memory implementation of the persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"patientcore/pkg/domain"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// PatientIdentity aliases domain.PatientIdentity for in-memory persistence operations.
	PatientIdentity = domain.PatientIdentity
	// Order aliases domain.Order.
	Order = domain.Order
	// LabResult aliases domain.LabResult.
	LabResult = domain.LabResult
	// Sample aliases domain.Sample.
	Sample = domain.Sample
	// Document aliases domain.Document.
	Document = domain.Document
	// Identifier aliases domain.Identifier.
	Identifier = domain.Identifier
	// Contact aliases domain.Contact.
	Contact = domain.Contact
	// Relation aliases domain.Relation.
	Relation = domain.Relation
	// AuditTrailEntry aliases domain.AuditTrailEntry.
	AuditTrailEntry = domain.AuditTrailEntry
	// MergeAuditEntry aliases domain.MergeAuditEntry.
	MergeAuditEntry = domain.MergeAuditEntry
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
	// PersistentStore aliases domain.PersistentStore abstraction.
	PersistentStore = domain.PersistentStore
)

type memoryState struct {
	patients    map[string]PatientIdentity
	orders      map[string]Order
	results     map[string]LabResult
	samples     map[string]Sample
	documents   map[string]Document
	identifiers map[string]Identifier
	contacts    map[string]Contact
	relations   map[string]Relation
	audittrail  map[string]AuditTrailEntry
	mergeaudit  map[string]MergeAuditEntry
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Patients    map[string]PatientIdentity `json:"patients"`
	Orders      map[string]Order           `json:"orders"`
	Results     map[string]LabResult       `json:"results"`
	Samples     map[string]Sample          `json:"samples"`
	Documents   map[string]Document        `json:"documents"`
	Identifiers map[string]Identifier      `json:"identifiers"`
	Contacts    map[string]Contact         `json:"contacts"`
	Relations   map[string]Relation        `json:"relations"`
	AuditTrail  map[string]AuditTrailEntry `json:"audit_trail"`
	MergeAudit  map[string]MergeAuditEntry `json:"merge_audit"`
}

func newMemoryState() memoryState {
	return memoryState{
		patients:    make(map[string]PatientIdentity),
		orders:      make(map[string]Order),
		results:     make(map[string]LabResult),
		samples:     make(map[string]Sample),
		documents:   make(map[string]Document),
		identifiers: make(map[string]Identifier),
		contacts:    make(map[string]Contact),
		relations:   make(map[string]Relation),
		audittrail:  make(map[string]AuditTrailEntry),
		mergeaudit:  make(map[string]MergeAuditEntry),
	}
}

func (s memoryState) clone() memoryState {
	out := newMemoryState()
	for k, v := range s.patients {
		out.patients[k] = clonePatient(v)
	}
	for k, v := range s.orders {
		out.orders[k] = v
	}
	for k, v := range s.results {
		out.results[k] = cloneResult(v)
	}
	for k, v := range s.samples {
		out.samples[k] = v
	}
	for k, v := range s.documents {
		out.documents[k] = v
	}
	for k, v := range s.identifiers {
		out.identifiers[k] = v
	}
	for k, v := range s.contacts {
		out.contacts[k] = v
	}
	for k, v := range s.relations {
		out.relations[k] = v
	}
	for k, v := range s.audittrail {
		out.audittrail[k] = v
	}
	for k, v := range s.mergeaudit {
		out.mergeaudit[k] = cloneMergeAudit(v)
	}
	return out
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	snap := Snapshot{
		Patients:    make(map[string]PatientIdentity, len(state.patients)),
		Orders:      make(map[string]Order, len(state.orders)),
		Results:     make(map[string]LabResult, len(state.results)),
		Samples:     make(map[string]Sample, len(state.samples)),
		Documents:   make(map[string]Document, len(state.documents)),
		Identifiers: make(map[string]Identifier, len(state.identifiers)),
		Contacts:    make(map[string]Contact, len(state.contacts)),
		Relations:   make(map[string]Relation, len(state.relations)),
		AuditTrail:  make(map[string]AuditTrailEntry, len(state.audittrail)),
		MergeAudit:  make(map[string]MergeAuditEntry, len(state.mergeaudit)),
	}
	for k, v := range state.patients {
		snap.Patients[k] = clonePatient(v)
	}
	for k, v := range state.orders {
		snap.Orders[k] = v
	}
	for k, v := range state.results {
		snap.Results[k] = cloneResult(v)
	}
	for k, v := range state.samples {
		snap.Samples[k] = v
	}
	for k, v := range state.documents {
		snap.Documents[k] = v
	}
	for k, v := range state.identifiers {
		snap.Identifiers[k] = v
	}
	for k, v := range state.contacts {
		snap.Contacts[k] = v
	}
	for k, v := range state.relations {
		snap.Relations[k] = v
	}
	for k, v := range state.audittrail {
		snap.AuditTrail[k] = v
	}
	for k, v := range state.mergeaudit {
		snap.MergeAudit[k] = cloneMergeAudit(v)
	}
	return snap
}

func memoryStateFromSnapshot(snap Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range snap.Patients {
		state.patients[k] = clonePatient(v)
	}
	for k, v := range snap.Orders {
		state.orders[k] = v
	}
	for k, v := range snap.Results {
		state.results[k] = cloneResult(v)
	}
	for k, v := range snap.Samples {
		state.samples[k] = v
	}
	for k, v := range snap.Documents {
		state.documents[k] = v
	}
	for k, v := range snap.Identifiers {
		state.identifiers[k] = v
	}
	for k, v := range snap.Contacts {
		state.contacts[k] = v
	}
	for k, v := range snap.Relations {
		state.relations[k] = v
	}
	for k, v := range snap.AuditTrail {
		state.audittrail[k] = v
	}
	for k, v := range snap.MergeAudit {
		state.mergeaudit[k] = cloneMergeAudit(v)
	}
	return state
}

func clonePatient(p PatientIdentity) PatientIdentity {
	cp := p
	if p.MergedIntoID != nil {
		id := *p.MergedIntoID
		cp.MergedIntoID = &id
	}
	if p.MergeDate != nil {
		t := *p.MergeDate
		cp.MergeDate = &t
	}
	return cp
}

func cloneResult(r LabResult) LabResult {
	cp := r
	if r.OrderID != nil {
		id := *r.OrderID
		cp.OrderID = &id
	}
	return cp
}

func cloneMergeAudit(e MergeAuditEntry) MergeAuditEntry {
	cp := e
	if e.Summary.Reassigned != nil {
		cp.Summary.Reassigned = make(map[domain.RecordCategory]int, len(e.Summary.Reassigned))
		for k, v := range e.Summary.Reassigned {
			cp.Summary.Reassigned[k] = v
		}
	}
	cp.Summary.DemographicFields = append([]string(nil), e.Summary.DemographicFields...)
	return cp
}

// Store provides an in-memory transactional store for the merge engine.
type Store struct {
	mu    sync.RWMutex
	state memoryState
	nowFn func() time.Time
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		state: newMemoryState(),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the time provider. Intended for tests.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn != nil {
		s.nowFn = fn
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Patients == nil {
		snapshot.Patients = map[string]PatientIdentity{}
	}
	if snapshot.Orders == nil {
		snapshot.Orders = map[string]Order{}
	}
	if snapshot.Results == nil {
		snapshot.Results = map[string]LabResult{}
	}
	if snapshot.Samples == nil {
		snapshot.Samples = map[string]Sample{}
	}
	if snapshot.Documents == nil {
		snapshot.Documents = map[string]Document{}
	}
	if snapshot.Identifiers == nil {
		snapshot.Identifiers = map[string]Identifier{}
	}
	if snapshot.Contacts == nil {
		snapshot.Contacts = map[string]Contact{}
	}
	if snapshot.Relations == nil {
		snapshot.Relations = map[string]Relation{}
	}
	if snapshot.AuditTrail == nil {
		snapshot.AuditTrail = map[string]AuditTrailEntry{}
	}
	if snapshot.MergeAudit == nil {
		snapshot.MergeAudit = map[string]MergeAuditEntry{}
	}
	// Repair tombstone invariants from older exports: a merged flag without
	// a target, or a target pointing at a missing patient, is cleared.
	for id, patient := range snapshot.Patients {
		if patient.IsMerged {
			if patient.MergedIntoID == nil {
				patient.IsMerged = false
				patient.MergeDate = nil
				snapshot.Patients[id] = patient
				continue
			}
			if _, ok := snapshot.Patients[*patient.MergedIntoID]; !ok {
				patient.IsMerged = false
				patient.MergedIntoID = nil
				patient.MergeDate = nil
				snapshot.Patients[id] = patient
			}
		}
	}
	return snapshot
}

// transaction represents a mutation set applied to a clone of the store state.
type transaction struct {
	store *Store
	state memoryState
	now   time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces the live state only when fn returns nil.
func (s *Store) RunInTransaction(_ context.Context, fn func(tx Transaction) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return err
	}

	s.state = tx.state
	return nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(newTransactionView(&snapshot))
}

// GetPatient returns the patient with the given id, if present.
func (s *Store) GetPatient(id string) (PatientIdentity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.patients[id]
	if !ok {
		return PatientIdentity{}, false
	}
	return clonePatient(p), true
}

// ListPatients returns every patient ordered by creation time.
func (s *Store) ListPatients() []PatientIdentity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPatients(&s.state)
}

// ListMergeAudit returns ledger rows involving the patient on either side,
// oldest first.
func (s *Store) ListMergeAudit(patientID string) []MergeAuditEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listMergeAudit(&s.state, patientID)
}

func listPatients(state *memoryState) []PatientIdentity {
	out := make([]PatientIdentity, 0, len(state.patients))
	for _, p := range state.patients {
		out = append(out, clonePatient(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func listMergeAudit(state *memoryState, patientID string) []MergeAuditEntry {
	var out []MergeAuditEntry
	for _, e := range state.mergeaudit {
		if e.PrimaryPatientID == patientID || e.MergedPatientID == patientID {
			out = append(out, cloneMergeAudit(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MergeDate.Equal(out[j].MergeDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].MergeDate.Before(out[j].MergeDate)
	})
	return out
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindPatient looks up a patient within the transaction state.
func (tx *transaction) FindPatient(id string) (PatientIdentity, bool) {
	p, ok := tx.state.patients[id]
	if !ok {
		return PatientIdentity{}, false
	}
	return clonePatient(p), true
}

// CreatePatient stores a new patient identity.
func (tx *transaction) CreatePatient(p PatientIdentity) (PatientIdentity, error) {
	if p.ID == "" {
		p.ID = tx.store.newID()
	}
	if _, exists := tx.state.patients[p.ID]; exists {
		return PatientIdentity{}, fmt.Errorf("patient %q already exists", p.ID)
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.patients[p.ID] = clonePatient(p)
	return clonePatient(p), nil
}

// UpdatePatient mutates a patient using the provided mutator function.
func (tx *transaction) UpdatePatient(id string, mutator func(*PatientIdentity) error) (PatientIdentity, error) {
	current, ok := tx.state.patients[id]
	if !ok {
		return PatientIdentity{}, domain.NotFoundError{PatientID: id}
	}
	current = clonePatient(current)
	if err := mutator(&current); err != nil {
		return PatientIdentity{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.patients[id] = clonePatient(current)
	return clonePatient(current), nil
}

// CreateOrder stores a new order.
func (tx *transaction) CreateOrder(o Order) (Order, error) {
	if o.ID == "" {
		o.ID = tx.store.newID()
	}
	if _, exists := tx.state.orders[o.ID]; exists {
		return Order{}, fmt.Errorf("order %q already exists", o.ID)
	}
	if _, ok := tx.state.patients[o.PatientID]; !ok {
		return Order{}, fmt.Errorf("order references unknown patient %q", o.PatientID)
	}
	o.CreatedAt = tx.now
	o.UpdatedAt = tx.now
	tx.state.orders[o.ID] = o
	return o, nil
}

// CreateLabResult stores a new result.
func (tx *transaction) CreateLabResult(r LabResult) (LabResult, error) {
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if _, exists := tx.state.results[r.ID]; exists {
		return LabResult{}, fmt.Errorf("result %q already exists", r.ID)
	}
	if _, ok := tx.state.patients[r.PatientID]; !ok {
		return LabResult{}, fmt.Errorf("result references unknown patient %q", r.PatientID)
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.results[r.ID] = cloneResult(r)
	return cloneResult(r), nil
}

// CreateSample stores a new specimen record.
func (tx *transaction) CreateSample(sm Sample) (Sample, error) {
	if sm.ID == "" {
		sm.ID = tx.store.newID()
	}
	if _, exists := tx.state.samples[sm.ID]; exists {
		return Sample{}, fmt.Errorf("sample %q already exists", sm.ID)
	}
	if _, ok := tx.state.patients[sm.PatientID]; !ok {
		return Sample{}, fmt.Errorf("sample references unknown patient %q", sm.PatientID)
	}
	sm.CreatedAt = tx.now
	sm.UpdatedAt = tx.now
	tx.state.samples[sm.ID] = sm
	return sm, nil
}

// CreateDocument stores attached document metadata.
func (tx *transaction) CreateDocument(d Document) (Document, error) {
	if d.ID == "" {
		d.ID = tx.store.newID()
	}
	if _, exists := tx.state.documents[d.ID]; exists {
		return Document{}, fmt.Errorf("document %q already exists", d.ID)
	}
	if _, ok := tx.state.patients[d.PatientID]; !ok {
		return Document{}, fmt.Errorf("document references unknown patient %q", d.PatientID)
	}
	d.CreatedAt = tx.now
	d.UpdatedAt = tx.now
	tx.state.documents[d.ID] = d
	return d, nil
}

// CreateIdentifier stores a typed identifier row.
func (tx *transaction) CreateIdentifier(ident Identifier) (Identifier, error) {
	if ident.ID == "" {
		ident.ID = tx.store.newID()
	}
	if _, exists := tx.state.identifiers[ident.ID]; exists {
		return Identifier{}, fmt.Errorf("identifier %q already exists", ident.ID)
	}
	if _, ok := tx.state.patients[ident.PatientID]; !ok {
		return Identifier{}, fmt.Errorf("identifier references unknown patient %q", ident.PatientID)
	}
	ident.CreatedAt = tx.now
	ident.UpdatedAt = tx.now
	tx.state.identifiers[ident.ID] = ident
	return ident, nil
}

// CreateContact stores a contact person.
func (tx *transaction) CreateContact(c Contact) (Contact, error) {
	if c.ID == "" {
		c.ID = tx.store.newID()
	}
	if _, exists := tx.state.contacts[c.ID]; exists {
		return Contact{}, fmt.Errorf("contact %q already exists", c.ID)
	}
	if _, ok := tx.state.patients[c.PatientID]; !ok {
		return Contact{}, fmt.Errorf("contact references unknown patient %q", c.PatientID)
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.contacts[c.ID] = c
	return c, nil
}

// CreateRelation stores a patient-to-patient relationship row.
func (tx *transaction) CreateRelation(r Relation) (Relation, error) {
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if _, exists := tx.state.relations[r.ID]; exists {
		return Relation{}, fmt.Errorf("relation %q already exists", r.ID)
	}
	if _, ok := tx.state.patients[r.PatientID]; !ok {
		return Relation{}, fmt.Errorf("relation references unknown patient %q", r.PatientID)
	}
	if _, ok := tx.state.patients[r.RelatedPatientID]; !ok {
		return Relation{}, fmt.Errorf("relation references unknown patient %q", r.RelatedPatientID)
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.relations[r.ID] = r
	return r, nil
}

// CreateAuditTrailEntry stores a per-patient audit row.
func (tx *transaction) CreateAuditTrailEntry(e AuditTrailEntry) (AuditTrailEntry, error) {
	if e.ID == "" {
		e.ID = tx.store.newID()
	}
	if _, exists := tx.state.audittrail[e.ID]; exists {
		return AuditTrailEntry{}, fmt.Errorf("audit trail entry %q already exists", e.ID)
	}
	if _, ok := tx.state.patients[e.PatientID]; !ok {
		return AuditTrailEntry{}, fmt.Errorf("audit trail entry references unknown patient %q", e.PatientID)
	}
	e.CreatedAt = tx.now
	e.UpdatedAt = tx.now
	tx.state.audittrail[e.ID] = e
	return e, nil
}

// ReassignOrders moves every order from one patient to another.
func (tx *transaction) ReassignOrders(fromPatientID, toPatientID string) (int, error) {
	if err := tx.checkReassign(fromPatientID, toPatientID); err != nil {
		return 0, err
	}
	moved := 0
	for id, o := range tx.state.orders {
		if o.PatientID == fromPatientID {
			o.PatientID = toPatientID
			o.UpdatedAt = tx.now
			tx.state.orders[id] = o
			moved++
		}
	}
	return moved, nil
}

// ReassignLabResults moves every result from one patient to another.
func (tx *transaction) ReassignLabResults(fromPatientID, toPatientID string) (int, error) {
	if err := tx.checkReassign(fromPatientID, toPatientID); err != nil {
		return 0, err
	}
	moved := 0
	for id, r := range tx.state.results {
		if r.PatientID == fromPatientID {
			r.PatientID = toPatientID
			r.UpdatedAt = tx.now
			tx.state.results[id] = r
			moved++
		}
	}
	return moved, nil
}

// ReassignSamples moves every specimen from one patient to another.
func (tx *transaction) ReassignSamples(fromPatientID, toPatientID string) (int, error) {
	if err := tx.checkReassign(fromPatientID, toPatientID); err != nil {
		return 0, err
	}
	moved := 0
	for id, sm := range tx.state.samples {
		if sm.PatientID == fromPatientID {
			sm.PatientID = toPatientID
			sm.UpdatedAt = tx.now
			tx.state.samples[id] = sm
			moved++
		}
	}
	return moved, nil
}

// ReassignDocuments moves every document from one patient to another.
func (tx *transaction) ReassignDocuments(fromPatientID, toPatientID string) (int, error) {
	if err := tx.checkReassign(fromPatientID, toPatientID); err != nil {
		return 0, err
	}
	moved := 0
	for id, d := range tx.state.documents {
		if d.PatientID == fromPatientID {
			d.PatientID = toPatientID
			d.UpdatedAt = tx.now
			tx.state.documents[id] = d
			moved++
		}
	}
	return moved, nil
}

// ReassignIdentifiers moves every identifier row from one patient to another.
func (tx *transaction) ReassignIdentifiers(fromPatientID, toPatientID string) (int, error) {
	if err := tx.checkReassign(fromPatientID, toPatientID); err != nil {
		return 0, err
	}
	moved := 0
	for id, ident := range tx.state.identifiers {
		if ident.PatientID == fromPatientID {
			ident.PatientID = toPatientID
			ident.UpdatedAt = tx.now
			tx.state.identifiers[id] = ident
			moved++
		}
	}
	return moved, nil
}

// ReassignContacts moves every contact from one patient to another.
func (tx *transaction) ReassignContacts(fromPatientID, toPatientID string) (int, error) {
	if err := tx.checkReassign(fromPatientID, toPatientID); err != nil {
		return 0, err
	}
	moved := 0
	for id, c := range tx.state.contacts {
		if c.PatientID == fromPatientID {
			c.PatientID = toPatientID
			c.UpdatedAt = tx.now
			tx.state.contacts[id] = c
			moved++
		}
	}
	return moved, nil
}

// ReassignRelations rewrites both reference columns of every relation row
// touching the losing patient. A row is counted once even when both columns
// referenced it.
func (tx *transaction) ReassignRelations(fromPatientID, toPatientID string) (int, error) {
	if err := tx.checkReassign(fromPatientID, toPatientID); err != nil {
		return 0, err
	}
	moved := 0
	for id, r := range tx.state.relations {
		touched := false
		if r.PatientID == fromPatientID {
			r.PatientID = toPatientID
			touched = true
		}
		if r.RelatedPatientID == fromPatientID {
			r.RelatedPatientID = toPatientID
			touched = true
		}
		if touched {
			r.UpdatedAt = tx.now
			tx.state.relations[id] = r
			moved++
		}
	}
	return moved, nil
}

// ReassignAuditTrail moves every prior audit row from one patient to another.
func (tx *transaction) ReassignAuditTrail(fromPatientID, toPatientID string) (int, error) {
	if err := tx.checkReassign(fromPatientID, toPatientID); err != nil {
		return 0, err
	}
	moved := 0
	for id, e := range tx.state.audittrail {
		if e.PatientID == fromPatientID {
			e.PatientID = toPatientID
			e.UpdatedAt = tx.now
			tx.state.audittrail[id] = e
			moved++
		}
	}
	return moved, nil
}

func (tx *transaction) checkReassign(fromPatientID, toPatientID string) error {
	if _, ok := tx.state.patients[fromPatientID]; !ok {
		return domain.NotFoundError{PatientID: fromPatientID}
	}
	if _, ok := tx.state.patients[toPatientID]; !ok {
		return domain.NotFoundError{PatientID: toPatientID}
	}
	return nil
}

// AppendMergeAudit inserts one ledger row.
func (tx *transaction) AppendMergeAudit(e MergeAuditEntry) (MergeAuditEntry, error) {
	if e.ID == "" {
		e.ID = tx.store.newID()
	}
	if _, exists := tx.state.mergeaudit[e.ID]; exists {
		return MergeAuditEntry{}, fmt.Errorf("merge audit entry %q already exists", e.ID)
	}
	e.CreatedAt = tx.now
	e.UpdatedAt = tx.now
	if e.MergeDate.IsZero() {
		e.MergeDate = tx.now
	}
	tx.state.mergeaudit[e.ID] = cloneMergeAudit(e)
	return cloneMergeAudit(e), nil
}

// FindPatient looks up a patient in the view state.
func (v transactionView) FindPatient(id string) (PatientIdentity, bool) {
	p, ok := v.state.patients[id]
	if !ok {
		return PatientIdentity{}, false
	}
	return clonePatient(p), true
}

// ListPatients returns every patient ordered by creation time.
func (v transactionView) ListPatients() []PatientIdentity {
	return listPatients(v.state)
}

// CountRecords counts records of one category owned by the patient. Relation
// rows count when either reference column matches.
func (v transactionView) CountRecords(category domain.RecordCategory, patientID string) int {
	n := 0
	switch category {
	case domain.CategoryOrders:
		for _, o := range v.state.orders {
			if o.PatientID == patientID {
				n++
			}
		}
	case domain.CategoryResults:
		for _, r := range v.state.results {
			if r.PatientID == patientID {
				n++
			}
		}
	case domain.CategorySamples:
		for _, sm := range v.state.samples {
			if sm.PatientID == patientID {
				n++
			}
		}
	case domain.CategoryDocuments:
		for _, d := range v.state.documents {
			if d.PatientID == patientID {
				n++
			}
		}
	case domain.CategoryIdentifiers:
		for _, ident := range v.state.identifiers {
			if ident.PatientID == patientID {
				n++
			}
		}
	case domain.CategoryContacts:
		for _, c := range v.state.contacts {
			if c.PatientID == patientID {
				n++
			}
		}
	case domain.CategoryRelations:
		for _, r := range v.state.relations {
			if r.PatientID == patientID || r.RelatedPatientID == patientID {
				n++
			}
		}
	case domain.CategoryAuditTrail:
		for _, e := range v.state.audittrail {
			if e.PatientID == patientID {
				n++
			}
		}
	}
	return n
}

// CountActiveOrders counts pending and in-progress orders for the patient.
func (v transactionView) CountActiveOrders(patientID string) int {
	n := 0
	for _, o := range v.state.orders {
		if o.PatientID == patientID && o.Status.Active() {
			n++
		}
	}
	return n
}

// ListIdentifiers returns the patient's identifier rows ordered by type then
// value.
func (v transactionView) ListIdentifiers(patientID string) []Identifier {
	var out []Identifier
	for _, ident := range v.state.identifiers {
		if ident.PatientID == patientID {
			out = append(out, ident)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type == out[j].Type {
			return out[i].Value < out[j].Value
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// ListDocuments returns the patient's document metadata ordered by creation
// time.
func (v transactionView) ListDocuments(patientID string) []Document {
	var out []Document
	for _, d := range v.state.documents {
		if d.PatientID == patientID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// FindDocument looks up one document by id.
func (v transactionView) FindDocument(id string) (Document, bool) {
	d, ok := v.state.documents[id]
	return d, ok
}

// ListMergeAudit returns ledger rows involving the patient on either side.
func (v transactionView) ListMergeAudit(patientID string) []MergeAuditEntry {
	return listMergeAudit(v.state, patientID)
}

// SearchByIdentifier returns raw hits whose national id, external id, or any
// identifier row equals the value after normalization, ordered by patient
// creation time. Tombstoned patients are included; the caller redirects them.
func (v transactionView) SearchByIdentifier(value string) []domain.SearchHit {
	want := domain.NormalizeValue(value)
	if want == "" {
		return nil
	}
	matched := map[string]bool{}
	for _, p := range v.state.patients {
		if domain.NormalizeValue(p.NationalID) == want || domain.NormalizeValue(p.ExternalID) == want {
			matched[p.ID] = true
		}
	}
	for _, ident := range v.state.identifiers {
		if domain.NormalizeValue(ident.Value) == want {
			matched[ident.PatientID] = true
		}
	}
	var hits []domain.SearchHit
	for _, p := range listPatients(v.state) {
		if matched[p.ID] {
			hits = append(hits, domain.HitFromPatient(p))
		}
	}
	return hits
}

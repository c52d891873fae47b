package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"patientcore/internal/blob"
	"patientcore/pkg/domain"
)

// Clock supplies the current time to the service.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now returns the current time.
func (f ClockFunc) Now() time.Time { return f() }

type serviceOptions struct {
	logger  Logger
	metrics MetricsRecorder
	blobs   blob.Store
	clock   Clock
}

// Option configures optional service collaborators.
type Option func(*serviceOptions)

// WithLogger injects a structured logger.
func WithLogger(l Logger) Option {
	return func(o *serviceOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetricsRecorder injects a metrics recorder observed around every
// operation.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(o *serviceOptions) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithBlobStore injects the document content store.
func WithBlobStore(b blob.Store) Option {
	return func(o *serviceOptions) {
		if b != nil {
			o.blobs = b
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(c Clock) Option {
	return func(o *serviceOptions) {
		if c != nil {
			o.clock = c
		}
	}
}

// Service exposes the merge engine operations over a persistent store.
type Service struct {
	store    PersistentStore
	registry *ReassignmentRegistry
	logger   Logger
	metrics  MetricsRecorder
	blobs    blob.Store
	clock    Clock
}

// NewService constructs a merge service backed by the supplied store.
func NewService(store PersistentStore, opts ...Option) *Service {
	options := serviceOptions{
		logger:  noopLogger{},
		metrics: noopMetricsRecorder{},
		blobs:   blob.NewMemory(),
		clock:   ClockFunc(func() time.Time { return time.Now().UTC() }),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Service{
		store:    store,
		registry: NewReassignmentRegistry(),
		logger:   options.logger,
		metrics:  options.metrics,
		blobs:    options.blobs,
		clock:    options.clock,
	}
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore { return s.store }

func (s *Service) observe(ctx context.Context, operation string, start time.Time, err error) {
	s.metrics.Observe(ctx, operation, err == nil, time.Since(start))
}

// GetMergeDetails returns the preview payload for one patient: demographics,
// visible identifiers, and per-category record counts. System-managed
// identifier types are filtered out of the display.
func (s *Service) GetMergeDetails(ctx context.Context, patientID string) (MergeDetails, error) {
	start := time.Now()
	var details MergeDetails
	err := s.store.View(ctx, func(view TransactionView) error {
		snap, err := Analyze(view, patientID)
		if err != nil {
			return err
		}
		details = MergeDetails{
			PatientID: snap.Patient.ID,
			FirstName: snap.Patient.FirstName,
			LastName:  snap.Patient.LastName,
			Gender:    snap.Patient.Gender,
			BirthDate: snap.Patient.BirthDate,
			Counts:    snap.Counts,
		}
		for _, ident := range snap.Identifiers {
			if ident.Type.Internal() {
				continue
			}
			details.Identifiers = append(details.Identifiers, domain.IdentifierDisplay{
				Type:  ident.Type.DisplayName(),
				Value: ident.Value,
			})
		}
		return nil
	})
	s.observe(ctx, "get_merge_details", start, err)
	return details, err
}

// ValidateMerge runs structural and business validation for a candidate
// pair. Read-only and idempotent: absent intervening state changes, repeated
// calls yield identical results.
func (s *Service) ValidateMerge(ctx context.Context, req MergeRequest) (ValidationResult, error) {
	start := time.Now()
	result, err := s.validate(ctx, req)
	s.observe(ctx, "validate_merge", start, err)
	return result, err
}

func (s *Service) validate(ctx context.Context, req MergeRequest) (ValidationResult, error) {
	if err := checkStructure(req); err != nil {
		return ValidationResult{}, err
	}
	var result ValidationResult
	err := s.store.View(ctx, func(view TransactionView) error {
		var err error
		result, err = validateBusiness(view, req)
		return err
	})
	if err != nil {
		return ValidationResult{}, err
	}
	return result, nil
}

// ExecuteMerge consolidates the losing identity into the primary inside one
// transaction: re-validated business checks, registry-driven reassignment of
// every dependent record category, fill-missing demographic copy, tombstone,
// and exactly one audit entry. Any failure rolls the whole transaction back.
func (s *Service) ExecuteMerge(ctx context.Context, req MergeRequest, performedBy string) (ExecutionResult, error) {
	start := time.Now()
	result, err := s.execute(ctx, req, performedBy, start)
	s.observe(ctx, "execute_merge", start, err)
	if err != nil {
		s.logger.Warnf("merge of %s and %s failed: %v", req.Patient1ID, req.Patient2ID, err)
		result.Message = err.Error()
		return result, err
	}
	result.DurationMS = time.Since(start).Milliseconds()
	s.logger.Infof("merged patient %s into %s: %d records reassigned, audit %s",
		result.MergedPatientID, result.PrimaryPatientID, result.Reassigned.Total(), result.MergeAuditID)
	return result, nil
}

func (s *Service) execute(ctx context.Context, req MergeRequest, performedBy string, started time.Time) (ExecutionResult, error) {
	if err := checkStructure(req); err != nil {
		return ExecutionResult{}, err
	}
	if !req.Confirmed {
		return ExecutionResult{}, domain.ErrConfirmationRequired
	}
	// Membership and self-merge are final; reject before touching storage.
	if violations := checkPair(req); len(violations) > 0 {
		return ExecutionResult{}, domain.BusinessRuleError{Violations: violations}
	}

	var pre ValidationResult
	err := s.store.View(ctx, func(view TransactionView) error {
		var err error
		pre, err = validateBusiness(view, req)
		return err
	})
	if err != nil {
		return ExecutionResult{}, err
	}
	if pre.HasBlocking() {
		return ExecutionResult{}, domain.BusinessRuleError{Violations: pre.Violations}
	}

	var result ExecutionResult
	err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		result, err = s.runMerge(tx, req, performedBy, started)
		return err
	})
	if err != nil {
		// The pair passed validation moments ago, so a transactional
		// already-merged finding means another merge committed in between.
		if conflicted, id := mergedSinceValidation(err, s.store, req); conflicted {
			return ExecutionResult{}, domain.ConcurrencyConflictError{PatientID: id}
		}
		return ExecutionResult{}, err
	}
	return result, nil
}

func mergedSinceValidation(err error, store PersistentStore, req MergeRequest) (bool, string) {
	var business domain.BusinessRuleError
	if !errors.As(err, &business) {
		return false, ""
	}
	for _, v := range business.Violations {
		if v.Severity == domain.SeverityBlock && v.Check != checkMerged {
			return false, ""
		}
	}
	for _, id := range []string{req.Patient1ID, req.Patient2ID} {
		if p, ok := store.GetPatient(id); ok && p.IsMerged {
			return true, id
		}
	}
	return true, req.Patient2ID
}

// runMerge executes the consolidation steps against an open transaction,
// recording the audit summary with the merge timestamp from the service
// clock.
func (s *Service) runMerge(tx Transaction, req MergeRequest, performedBy string, started time.Time) (ExecutionResult, error) {
	return executeMerge(tx, s.registry, req, performedBy, s.clock.Now(), started)
}

// SearchByIdentifier runs an identifier search and redirects merged hits to
// their primary identities.
func (s *Service) SearchByIdentifier(ctx context.Context, value string) ([]SearchHit, error) {
	start := time.Now()
	var hits []SearchHit
	err := s.store.View(ctx, func(view TransactionView) error {
		hits = RedirectHits(view, view.SearchByIdentifier(value))
		return nil
	})
	s.observe(ctx, "search_by_identifier", start, err)
	return hits, err
}

// MergeHistory returns the audit ledger rows where the patient appears on
// either side, oldest first.
func (s *Service) MergeHistory(ctx context.Context, patientID string) ([]MergeAuditEntry, error) {
	start := time.Now()
	var entries []MergeAuditEntry
	err := s.store.View(ctx, func(view TransactionView) error {
		if _, ok := view.FindPatient(patientID); !ok {
			return domain.NotFoundError{PatientID: patientID}
		}
		entries = view.ListMergeAudit(patientID)
		return nil
	})
	s.observe(ctx, "merge_history", start, err)
	return entries, err
}

// AttachDocument stores document content in the blob store and records the
// metadata row against the patient. The blob is written first; a metadata
// failure leaves an unreferenced blob behind, which is preferable to a
// dangling metadata row.
func (s *Service) AttachDocument(ctx context.Context, patientID, fileName, contentType string, r io.Reader) (Document, error) {
	start := time.Now()
	doc, err := s.attachDocument(ctx, patientID, fileName, contentType, r)
	s.observe(ctx, "attach_document", start, err)
	return doc, err
}

func (s *Service) attachDocument(ctx context.Context, patientID, fileName, contentType string, r io.Reader) (Document, error) {
	if _, ok := s.store.GetPatient(patientID); !ok {
		return Document{}, domain.NotFoundError{PatientID: patientID}
	}
	key := fmt.Sprintf("patients/%s/%s", patientID, uuid.NewString())
	info, err := s.blobs.Put(ctx, key, r, blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{"patient_id": patientID, "file_name": fileName},
	})
	if err != nil {
		return Document{}, fmt.Errorf("store document content: %w", err)
	}
	var created Document
	err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
		var err error
		created, err = tx.CreateDocument(Document{
			PatientID:   patientID,
			FileName:    fileName,
			ContentType: contentType,
			BlobKey:     key,
			SizeBytes:   info.Size,
		})
		return err
	})
	if err != nil {
		return Document{}, err
	}
	return created, nil
}

// OpenDocument resolves a document's metadata and opens its content stream.
// The caller owns the returned reader.
func (s *Service) OpenDocument(ctx context.Context, documentID string) (Document, io.ReadCloser, error) {
	start := time.Now()
	var doc Document
	err := s.store.View(ctx, func(view TransactionView) error {
		var ok bool
		doc, ok = view.FindDocument(documentID)
		if !ok {
			return fmt.Errorf("document %s: %w", documentID, domain.ErrDocumentNotFound)
		}
		return nil
	})
	if err != nil {
		s.observe(ctx, "open_document", start, err)
		return Document{}, nil, err
	}
	_, rc, err := s.blobs.Get(ctx, doc.BlobKey)
	s.observe(ctx, "open_document", start, err)
	if err != nil {
		return Document{}, nil, fmt.Errorf("open document content: %w", err)
	}
	return doc, rc, nil
}

package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"patientcore/internal/core"
	"patientcore/internal/infra/persistence/sqlite"
	"patientcore/pkg/domain"
)

// A full merge through the service must survive a close/reopen of the
// database file: tombstone, reassigned ownership, and the audit row all come
// back from the snapshot.
func TestMergeSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "merge.db")
	store, err := sqlite.NewStore(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	ctx := context.Background()
	err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		for _, p := range []domain.PatientIdentity{
			{Base: domain.Base{ID: "1"}, Demographics: domain.Demographics{FirstName: "Alice", NationalID: "N1"}},
			{Base: domain.Base{ID: "2"}, Demographics: domain.Demographics{FirstName: "Alicia", NationalID: "N2"}},
		} {
			if _, err := tx.CreatePatient(p); err != nil {
				return err
			}
		}
		_, err := tx.CreateSample(domain.Sample{PatientID: "2", AccessionNumber: "A-1"})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	svc := core.NewService(store)
	result, err := svc.ExecuteMerge(ctx, domain.MergeRequest{
		Patient1ID:       "1",
		Patient2ID:       "2",
		PrimaryPatientID: "1",
		Reason:           "duplicate registration",
		Confirmed:        true,
	}, "admin")
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if !result.Success {
		t.Fatalf("unexpected result: %+v", result)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := sqlite.NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	p, ok := reopened.GetPatient("2")
	if !ok || !p.IsMerged || p.MergedIntoID == nil || *p.MergedIntoID != "1" {
		t.Fatalf("tombstone not restored: %+v", p)
	}
	if audit := reopened.ListMergeAudit("2"); len(audit) != 1 || audit[0].Summary.Reassigned[domain.CategorySamples] != 1 {
		t.Fatalf("audit not restored: %+v", audit)
	}

	hits, err := core.NewService(reopened).SearchByIdentifier(ctx, "N2")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].PatientID != "1" {
		t.Fatalf("redirection broken after reopen: %+v", hits)
	}
}

package postgres

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"patientcore/pkg/domain"

	_ "modernc.org/sqlite"
)

// The snapshot SQL sticks to syntax both engines accept, so tests exercise
// the store against a local sqlite file through the OverrideSQLOpen hook.
func overrideWithSQLite(t *testing.T, path string) func() {
	t.Helper()
	return OverrideSQLOpen(func(_, _ string) (*sql.DB, error) {
		return sql.Open("sqlite", path)
	})
}

func TestRunInTransactionPersistsSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	restore := overrideWithSQLite(t, path)
	defer restore()

	store, err := NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreatePatient(domain.PatientIdentity{
			Base:         domain.Base{ID: "p1"},
			Demographics: domain.Demographics{FirstName: "Pat", NationalID: "N1"},
		}); err != nil {
			return err
		}
		_, err := tx.CreateIdentifier(domain.Identifier{PatientID: "p1", Type: domain.IdentifierSubject, Value: "S-1"})
		return err
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore("")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	p, ok := reopened.GetPatient("p1")
	if !ok || p.NationalID != "N1" {
		t.Fatalf("patient not hydrated from snapshot: %+v ok=%v", p, ok)
	}
	if err := reopened.View(context.Background(), func(view domain.TransactionView) error {
		if n := view.CountRecords(domain.CategoryIdentifiers, "p1"); n != 1 {
			t.Fatalf("identifiers not hydrated: %d", n)
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestFailedSnapshotRevertsMemoryState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	restore := overrideWithSQLite(t, path)
	defer restore()

	store, err := NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreatePatient(domain.PatientIdentity{Base: domain.Base{ID: "p1"}})
		return err
	})
	if err == nil {
		t.Fatalf("expected snapshot failure on closed handle")
	}
	if _, ok := store.GetPatient("p1"); ok {
		t.Fatalf("memory state not reverted after snapshot failure")
	}
}

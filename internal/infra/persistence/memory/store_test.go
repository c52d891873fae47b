package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"patientcore/pkg/domain"
)

func seedPatient(t *testing.T, store *Store, id, nationalID string) PatientIdentity {
	t.Helper()
	var created PatientIdentity
	err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		p, err := tx.CreatePatient(PatientIdentity{
			Base:         domain.Base{ID: id},
			Demographics: domain.Demographics{FirstName: "Pat", LastName: "Doe", NationalID: nationalID},
		})
		if err != nil {
			return err
		}
		created = p
		return nil
	})
	if err != nil {
		t.Fatalf("seed patient %s: %v", id, err)
	}
	return created
}

func TestTransactionRollbackDiscardsMutations(t *testing.T) {
	store := NewStore()
	seedPatient(t, store, "p1", "N1")

	sentinel := errors.New("boom")
	err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreateOrder(Order{PatientID: "p1", Status: domain.OrderStatusPending}); err != nil {
			return err
		}
		if _, err := tx.UpdatePatient("p1", func(p *PatientIdentity) error {
			p.FirstName = "Changed"
			return nil
		}); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	p, ok := store.GetPatient("p1")
	if !ok {
		t.Fatalf("patient missing after rollback")
	}
	if p.FirstName != "Pat" {
		t.Fatalf("rollback leaked patient mutation: %q", p.FirstName)
	}
	if err := store.View(context.Background(), func(view TransactionView) error {
		if n := view.CountRecords(domain.CategoryOrders, "p1"); n != 0 {
			t.Fatalf("rollback leaked %d orders", n)
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestCreateRejectsUnknownPatient(t *testing.T) {
	store := NewStore()
	err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateOrder(Order{PatientID: "ghost", Status: domain.OrderStatusPending})
		return err
	})
	if err == nil {
		t.Fatalf("expected error for order referencing unknown patient")
	}
}

func TestReassignMovesEveryCategory(t *testing.T) {
	store := NewStore()
	seedPatient(t, store, "p1", "N1")
	seedPatient(t, store, "p2", "N2")
	seedPatient(t, store, "p3", "N3")

	err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreateOrder(Order{PatientID: "p2", Status: domain.OrderStatusPending}); err != nil {
			return err
		}
		if _, err := tx.CreateLabResult(LabResult{PatientID: "p2", TestName: "CBC", Value: "ok"}); err != nil {
			return err
		}
		if _, err := tx.CreateSample(Sample{PatientID: "p2", AccessionNumber: "A-1"}); err != nil {
			return err
		}
		if _, err := tx.CreateDocument(Document{PatientID: "p2", FileName: "consent.pdf"}); err != nil {
			return err
		}
		if _, err := tx.CreateIdentifier(Identifier{PatientID: "p2", Type: domain.IdentifierSubject, Value: "S-2"}); err != nil {
			return err
		}
		if _, err := tx.CreateContact(Contact{PatientID: "p2", Name: "Next of kin"}); err != nil {
			return err
		}
		if _, err := tx.CreateRelation(Relation{PatientID: "p2", RelatedPatientID: "p3", Relationship: "parent"}); err != nil {
			return err
		}
		if _, err := tx.CreateRelation(Relation{PatientID: "p3", RelatedPatientID: "p2", Relationship: "child"}); err != nil {
			return err
		}
		if _, err := tx.CreateAuditTrailEntry(AuditTrailEntry{PatientID: "p2", Event: "registered"}); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed records: %v", err)
	}

	moved := map[domain.RecordCategory]int{}
	err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		steps := []struct {
			category domain.RecordCategory
			fn       func(string, string) (int, error)
		}{
			{domain.CategoryOrders, tx.ReassignOrders},
			{domain.CategoryResults, tx.ReassignLabResults},
			{domain.CategorySamples, tx.ReassignSamples},
			{domain.CategoryDocuments, tx.ReassignDocuments},
			{domain.CategoryIdentifiers, tx.ReassignIdentifiers},
			{domain.CategoryContacts, tx.ReassignContacts},
			{domain.CategoryRelations, tx.ReassignRelations},
			{domain.CategoryAuditTrail, tx.ReassignAuditTrail},
		}
		for _, step := range steps {
			n, err := step.fn("p2", "p1")
			if err != nil {
				return err
			}
			moved[step.category] = n
		}
		return nil
	})
	if err != nil {
		t.Fatalf("reassign: %v", err)
	}

	want := map[domain.RecordCategory]int{
		domain.CategoryOrders:      1,
		domain.CategoryResults:     1,
		domain.CategorySamples:     1,
		domain.CategoryDocuments:   1,
		domain.CategoryIdentifiers: 1,
		domain.CategoryContacts:    1,
		domain.CategoryRelations:   2,
		domain.CategoryAuditTrail:  1,
	}
	for cat, n := range want {
		if moved[cat] != n {
			t.Fatalf("category %s: moved %d, want %d", cat, moved[cat], n)
		}
	}

	if err := store.View(context.Background(), func(view TransactionView) error {
		for _, cat := range domain.RecordCategories() {
			if n := view.CountRecords(cat, "p2"); n != 0 {
				t.Fatalf("losing patient still owns %d %s", n, cat)
			}
		}
		// Both relation rows must now reference the winner on the column
		// that previously referenced p2; p3's side is untouched.
		if n := view.CountRecords(domain.CategoryRelations, "p1"); n != 2 {
			t.Fatalf("winner owns %d relations, want 2", n)
		}
		if n := view.CountRecords(domain.CategoryRelations, "p3"); n != 2 {
			t.Fatalf("related patient lost relation rows, has %d", n)
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestCountActiveOrders(t *testing.T) {
	store := NewStore()
	seedPatient(t, store, "p1", "N1")

	err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		for _, status := range []domain.OrderStatus{
			domain.OrderStatusPending,
			domain.OrderStatusInProgress,
			domain.OrderStatusCompleted,
			domain.OrderStatusCancelled,
		} {
			if _, err := tx.CreateOrder(Order{PatientID: "p1", Status: status}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed orders: %v", err)
	}

	if err := store.View(context.Background(), func(view TransactionView) error {
		if n := view.CountActiveOrders("p1"); n != 2 {
			t.Fatalf("active orders = %d, want 2", n)
		}
		if n := view.CountRecords(domain.CategoryOrders, "p1"); n != 4 {
			t.Fatalf("total orders = %d, want 4", n)
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestSearchByIdentifierMatchesAllSources(t *testing.T) {
	store := NewStore()
	seedPatient(t, store, "p1", "N1")
	seedPatient(t, store, "p2", "N2")

	err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateIdentifier(Identifier{PatientID: "p2", Type: domain.IdentifierInsurance, Value: " N1 "})
		return err
	})
	if err != nil {
		t.Fatalf("seed identifier: %v", err)
	}

	if err := store.View(context.Background(), func(view TransactionView) error {
		hits := view.SearchByIdentifier("n1")
		if len(hits) != 2 {
			t.Fatalf("expected 2 hits, got %d", len(hits))
		}
		if hits[0].PatientID != "p1" || hits[1].PatientID != "p2" {
			t.Fatalf("unexpected hit order: %+v", hits)
		}
		if hits := view.SearchByIdentifier("   "); hits != nil {
			t.Fatalf("blank search returned hits: %+v", hits)
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestMergeAuditAppendAndListByEitherSide(t *testing.T) {
	store := NewStore()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return base })
	seedPatient(t, store, "p1", "N1")
	seedPatient(t, store, "p2", "N2")

	err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.AppendMergeAudit(MergeAuditEntry{
			PrimaryPatientID: "p1",
			MergedPatientID:  "p2",
			PerformedBy:      "admin",
			Reason:           "duplicate registration",
			Summary: domain.MergeAuditSummary{
				Reassigned: domain.ReassignmentCounts{domain.CategoryOrders: 3},
			},
		})
		return err
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	for _, id := range []string{"p1", "p2"} {
		entries := store.ListMergeAudit(id)
		if len(entries) != 1 {
			t.Fatalf("patient %s: expected 1 ledger row, got %d", id, len(entries))
		}
		if entries[0].MergeDate != base {
			t.Fatalf("merge date not defaulted to transaction time: %v", entries[0].MergeDate)
		}
		if entries[0].Summary.Reassigned[domain.CategoryOrders] != 3 {
			t.Fatalf("summary counts not preserved: %+v", entries[0].Summary)
		}
	}
	if entries := store.ListMergeAudit("p3"); len(entries) != 0 {
		t.Fatalf("unrelated patient has ledger rows: %+v", entries)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	store := NewStore()
	seedPatient(t, store, "p1", "N1")
	seedPatient(t, store, "p2", "N2")

	err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreateOrder(Order{PatientID: "p1", Status: domain.OrderStatusPending}); err != nil {
			return err
		}
		_, err := tx.UpdatePatient("p2", func(p *PatientIdentity) error {
			now := time.Now().UTC()
			id := "p1"
			p.IsMerged = true
			p.MergedIntoID = &id
			p.MergeDate = &now
			return nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	restored := NewStore()
	restored.ImportState(store.ExportState())

	p2, ok := restored.GetPatient("p2")
	if !ok || !p2.IsMerged || p2.MergedIntoID == nil || *p2.MergedIntoID != "p1" {
		t.Fatalf("tombstone not preserved across round trip: %+v", p2)
	}
	if err := restored.View(context.Background(), func(view TransactionView) error {
		if n := view.CountRecords(domain.CategoryOrders, "p1"); n != 1 {
			t.Fatalf("orders lost in round trip: %d", n)
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestImportRepairsDanglingTombstone(t *testing.T) {
	store := NewStore()
	missing := "gone"
	store.ImportState(Snapshot{
		Patients: map[string]PatientIdentity{
			"p1": {Base: domain.Base{ID: "p1"}, IsMerged: true, MergedIntoID: &missing},
		},
	})

	p, ok := store.GetPatient("p1")
	if !ok {
		t.Fatalf("patient missing")
	}
	if p.IsMerged || p.MergedIntoID != nil {
		t.Fatalf("dangling tombstone not repaired: %+v", p)
	}
}

package core

import (
	"context"
	"reflect"
	"testing"

	"patientcore/pkg/domain"
)

func TestRedirectHitsReplacesMergedIdentities(t *testing.T) {
	svc, store := newTestService(t)
	seedPair(t, store)
	seedPatient(t, store, PatientIdentity{
		Base:         domain.Base{ID: "3"},
		Demographics: Demographics{FirstName: "Bob", NationalID: "N1"},
	})

	ctx := context.Background()
	if _, err := svc.ExecuteMerge(ctx, validRequest(), "admin"); err != nil {
		t.Fatalf("merge: %v", err)
	}

	// Patient 1 matches N1 directly, patient 3 matches independently, and the
	// tombstoned patient 2 still matches N2 but redirects to patient 1.
	err := store.View(ctx, func(view TransactionView) error {
		raw := view.SearchByIdentifier("N2")
		if len(raw) != 1 || raw[0].PatientID != "2" {
			t.Fatalf("raw hits should still match the merged row: %+v", raw)
		}
		got := RedirectHits(view, raw)
		if len(got) != 1 || got[0].PatientID != "1" {
			t.Fatalf("expected redirect to primary: %+v", got)
		}
		if got[0].FirstName != "Alice" {
			t.Fatalf("redirected hit carries the primary snapshot: %+v", got[0])
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}

	hits, err := svc.SearchByIdentifier(ctx, "N1")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 || hits[0].PatientID != "1" || hits[1].PatientID != "3" {
		t.Fatalf("unexpected hits for shared identifier: %+v", hits)
	}
}

func TestRedirectHitsDeduplicates(t *testing.T) {
	svc, store := newTestService(t)
	// Both identities carry the same national id, so after the merge the
	// value matches the primary directly and the tombstone, which redirects
	// to the primary again.
	seedPatient(t, store, PatientIdentity{
		Base:         domain.Base{ID: "1"},
		Demographics: Demographics{FirstName: "Alice", NationalID: "N1"},
	})
	seedPatient(t, store, PatientIdentity{
		Base:         domain.Base{ID: "2"},
		Demographics: Demographics{FirstName: "Alicia", NationalID: "N1"},
	})

	ctx := context.Background()
	if _, err := svc.ExecuteMerge(ctx, validRequest(), "admin"); err != nil {
		t.Fatalf("merge: %v", err)
	}

	hits, err := svc.SearchByIdentifier(ctx, "N1")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].PatientID != "1" {
		t.Fatalf("expected a single hit for the primary: %+v", hits)
	}
}

func TestRedirectHitsIdempotent(t *testing.T) {
	svc, store := newTestService(t)
	seedPair(t, store)

	ctx := context.Background()
	if _, err := svc.ExecuteMerge(ctx, validRequest(), "admin"); err != nil {
		t.Fatalf("merge: %v", err)
	}
	err := store.View(ctx, func(view TransactionView) error {
		once := RedirectHits(view, view.SearchByIdentifier("N2"))
		twice := RedirectHits(view, once)
		if !reflect.DeepEqual(once, twice) {
			t.Fatalf("refiltering changed the result: %+v vs %+v", once, twice)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}

	if hits, err := svc.SearchByIdentifier(ctx, "   "); err != nil || hits != nil {
		t.Fatalf("blank search must return nothing: %v %v", hits, err)
	}
}

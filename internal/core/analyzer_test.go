package core

import (
	"reflect"
	"testing"

	"patientcore/pkg/domain"
)

func snapshot(demo Demographics, identifiers ...Identifier) PatientSnapshot {
	return PatientSnapshot{
		Patient:     PatientIdentity{Demographics: demo},
		Identifiers: identifiers,
	}
}

func TestCompareConflictsIgnoresOneSidedValues(t *testing.T) {
	a := snapshot(Demographics{FirstName: "Alice", Phone: "555-0100"})
	b := snapshot(Demographics{FirstName: "Alice", City: "Lubumbashi"})
	set := CompareConflicts(a, b)
	if !set.Empty() {
		t.Fatalf("expected no conflicts, got %+v", set)
	}
}

func TestCompareConflictsNormalizesBeforeComparing(t *testing.T) {
	a := snapshot(Demographics{LastName: "  NGOY "})
	b := snapshot(Demographics{LastName: "ngoy"})
	if set := CompareConflicts(a, b); !set.Empty() {
		t.Fatalf("case and whitespace differences are not conflicts: %+v", set)
	}

	a = snapshot(Demographics{LastName: "Ngoy"})
	b = snapshot(Demographics{LastName: "Ngoyi"})
	set := CompareConflicts(a, b)
	if !reflect.DeepEqual(set.Fields, []string{"lastName"}) {
		t.Fatalf("unexpected fields: %+v", set.Fields)
	}
}

func TestCompareConflictsIsSymmetric(t *testing.T) {
	a := snapshot(
		Demographics{FirstName: "Alice", Gender: "F", NationalID: "N1"},
		Identifier{Type: domain.IdentifierSubject, Value: "S-1"},
		Identifier{Type: domain.IdentifierST, Value: "ST-1"},
	)
	b := snapshot(
		Demographics{FirstName: "Alicia", Gender: "M", NationalID: "N1"},
		Identifier{Type: domain.IdentifierST, Value: "ST-2"},
		Identifier{Type: domain.IdentifierSubject, Value: "S-9"},
	)
	ab := CompareConflicts(a, b)
	ba := CompareConflicts(b, a)
	if !reflect.DeepEqual(ab, ba) {
		t.Fatalf("conflict set depends on argument order: %+v vs %+v", ab, ba)
	}
	if !reflect.DeepEqual(ab.Fields, []string{"firstName", "gender"}) {
		t.Fatalf("unexpected fields: %+v", ab.Fields)
	}
	if len(ab.IdentifierTypes) != 2 {
		t.Fatalf("unexpected identifier conflicts: %+v", ab.IdentifierTypes)
	}
}

func TestCompareConflictsIdentifierTypeMissingOnOneSide(t *testing.T) {
	a := snapshot(Demographics{}, Identifier{Type: domain.IdentifierSubject, Value: "S-1"})
	b := snapshot(Demographics{}, Identifier{Type: domain.IdentifierOBNumber, Value: "OB-1"})
	if set := CompareConflicts(a, b); !set.Empty() {
		t.Fatalf("disjoint identifier types are not conflicts: %+v", set)
	}
}

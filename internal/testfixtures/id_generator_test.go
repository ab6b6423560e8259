package testfixtures

import (
	"slices"
	"testing"
)

func TestIDGeneratorRecordsIssuedIDs(t *testing.T) {
	gen := NewIDGenerator("")
	if gen.Last() != "" {
		t.Fatalf("expected no identifier before the first call")
	}

	next := gen.NextFunc()
	first, second := next(), next()
	if first != "id-1" || second != "id-2" {
		t.Fatalf("unexpected identifiers: %q, %q", first, second)
	}
	if gen.Last() != "id-2" {
		t.Fatalf("expected last id-2, got %q", gen.Last())
	}

	issued := gen.Issued()
	if !slices.Equal(issued, []string{"id-1", "id-2"}) {
		t.Fatalf("unexpected issued identifiers %v", issued)
	}
	issued[0] = "changed"
	if gen.Issued()[0] != "id-1" {
		t.Fatalf("Issued must return a copy")
	}
}

// File path: internal/backend/bulk/canonical_test.go
package bulk

import (
	"errors"
	"strings"
	"testing"

	"github.com/nicodishanthj/copybook_engine/internal/copybook"
)

func TestCanonicalizeStripsValuesAndConditions(t *testing.T) {
	canonical, err := Canonicalize([]byte(`
01 CUSTOMER-REC.
   05 STATUS-CODE PIC X VALUE 'A'.
      88 ACTIVE VALUE 'A'.
      88 CLOSED VALUE 'C'.
   05 BALANCE PIC S9(5)V99 COMP-3.
`))
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if strings.Contains(canonical, "VALUE") || strings.Contains(canonical, "88") {
		t.Fatalf("VALUE or condition statements survived:\n%s", canonical)
	}
	lines := strings.Split(strings.TrimRight(canonical, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 canonical lines, got %d:\n%s", len(lines), canonical)
	}
	if lines[0] != "       01 CUSTOMER-REC." {
		t.Fatalf("level 01 must sit in area A: %q", lines[0])
	}
	if lines[1] != "           05 STATUS-CODE PIC X." {
		t.Fatalf("unexpected subordinate line: %q", lines[1])
	}
	if lines[2] != "           05 BALANCE PIC S9(5)V99 PACKED-DECIMAL." {
		t.Fatalf("usage not normalized: %q", lines[2])
	}
}

func TestCanonicalizeKeepsLayoutClauses(t *testing.T) {
	canonical, err := Canonicalize([]byte(`
01 REC.
   05 SHORT-VIEW PIC 9(4).
   05 LONG-VIEW REDEFINES SHORT-VIEW PIC X(4).
   05 CNT PIC 9(2).
   05 ITEM PIC X OCCURS 1 TO 3 TIMES DEPENDING ON CNT.
   05 FLAG PIC 9 COMP.
`))
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	for _, want := range []string{
		"05 LONG-VIEW REDEFINES SHORT-VIEW PIC X(4).",
		"05 ITEM OCCURS 1 TO 3 TIMES DEPENDING ON CNT PIC X.",
		"05 FLAG PIC 9 BINARY.",
	} {
		if !strings.Contains(canonical, want) {
			t.Fatalf("missing %q in:\n%s", want, canonical)
		}
	}
}

func TestCanonicalizeIsDeterministic(t *testing.T) {
	src := []byte("01 REC.\n   05 A PIC X(3).\n   05 B PIC 9(5) COMP-3.\n")
	first, err := Canonicalize(src)
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	second, err := Canonicalize(src)
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if first != second {
		t.Fatalf("canonical form not stable:\n%s\n%s", first, second)
	}
}

func TestCanonicalizeRejectsAmbiguousContinuation(t *testing.T) {
	line1 := "000100     05 NOTE PIC X(20) VALUE 'ABC"
	for len(line1) < 80 {
		line1 += " "
	}
	src := line1 + "\n" + "000200-    DEF'."
	_, err := Canonicalize([]byte(src))
	var syn *copybook.SyntaxError
	if !errors.As(err, &syn) || syn.Kind != copybook.AmbiguousContinuation {
		t.Fatalf("expected AmbiguousContinuation, got %v", err)
	}
}

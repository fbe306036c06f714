// File path: internal/backend/bulk/canonical.go
package bulk

import (
	"fmt"
	"strings"

	"github.com/nicodishanthj/copybook_engine/internal/copybook"
)

// Canonicalize rewrites raw copybook text into the canonical subset the
// bulk service accepts: sequence-number and identifier columns removed,
// 88-level statements and VALUE clauses stripped, one statement per line at
// fixed columns. It is a pure function of its input and fails explicitly
// (AmbiguousContinuation and friends) instead of guessing when equivalence
// cannot be guaranteed.
func Canonicalize(raw []byte) (string, error) {
	stmts, err := copybook.LexStrict(raw)
	if err != nil {
		return "", err
	}
	roots, err := copybook.Parse(stmts)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, root := range roots {
		renderNode(&b, root)
	}
	return b.String(), nil
}

func renderNode(b *strings.Builder, node *copybook.FieldNode) {
	indent := "           " // area B, column 12
	if node.Level == 1 || node.Level == 77 {
		indent = "       " // area A, column 8
	}
	b.WriteString(indent)
	fmt.Fprintf(b, "%02d %s", node.Level, node.Name)
	if node.Redefines != "" {
		b.WriteString(" REDEFINES " + node.Redefines)
	}
	if node.Occurs != nil {
		if node.Occurs.DependingOn != "" {
			fmt.Fprintf(b, " OCCURS %d TO %d TIMES DEPENDING ON %s",
				node.Occurs.Min, node.Occurs.Max, node.Occurs.DependingOn)
		} else {
			fmt.Fprintf(b, " OCCURS %d TIMES", node.Occurs.Max)
		}
	}
	if node.Picture != "" {
		b.WriteString(" PIC " + node.Picture)
	}
	switch node.Usage {
	case copybook.UsageBinary:
		b.WriteString(" BINARY")
	case copybook.UsagePacked:
		b.WriteString(" PACKED-DECIMAL")
	}
	switch node.Sign {
	case copybook.SignLeading:
		b.WriteString(" SIGN IS LEADING")
	case copybook.SignSeparateLeading:
		b.WriteString(" SIGN IS LEADING SEPARATE")
	case copybook.SignSeparateTrailing:
		b.WriteString(" SIGN IS TRAILING SEPARATE")
	}
	b.WriteString(".\n")
	for _, child := range node.Children {
		renderNode(b, child)
	}
}

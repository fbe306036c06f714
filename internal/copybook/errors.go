// File path: internal/copybook/errors.go
package copybook

import "fmt"

// SyntaxKind identifies the class of a copybook syntax failure.
type SyntaxKind string

const (
	UnterminatedStatement    SyntaxKind = "unterminated-statement"
	UndefinedRedefinesTarget SyntaxKind = "undefined-redefines-target"
	UnsupportedPicture       SyntaxKind = "unsupported-picture"
	UnsupportedClause        SyntaxKind = "unsupported-clause"
	AmbiguousContinuation    SyntaxKind = "ambiguous-continuation"
)

// SyntaxError is fatal for the copybook it was raised on. Schema resolution
// is all-or-nothing: a copybook either produces a complete flat schema or a
// SyntaxError with a source line.
type SyntaxError struct {
	Kind   SyntaxKind
	Line   int
	Detail string
}

func (e *SyntaxError) Error() string {
	if e == nil {
		return "copybook syntax error"
	}
	if e.Line > 0 {
		return fmt.Sprintf("copybook %s at line %d: %s", e.Kind, e.Line, e.Detail)
	}
	return fmt.Sprintf("copybook %s: %s", e.Kind, e.Detail)
}

func syntaxErr(kind SyntaxKind, line int, format string, args ...interface{}) *SyntaxError {
	return &SyntaxError{Kind: kind, Line: line, Detail: fmt.Sprintf(format, args...)}
}

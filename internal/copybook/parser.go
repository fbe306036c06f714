// File path: internal/copybook/parser.go
package copybook

import (
	"strconv"
	"strings"
)

// Usage is the declared physical storage representation of a field.
type Usage string

const (
	UsageDisplay Usage = "display"
	UsageBinary  Usage = "binary"
	UsagePacked  Usage = "packed-decimal"
)

// SignMode describes where a numeric DISPLAY field keeps its sign.
type SignMode string

const (
	SignTrailing         SignMode = "trailing"
	SignLeading          SignMode = "leading"
	SignSeparateTrailing SignMode = "separate-trailing"
	SignSeparateLeading  SignMode = "separate-leading"
)

// Occurs captures a fixed or bounded-variable repetition clause. Fixed
// OCCURS n carries Min == Max == n; OCCURS m TO n TIMES DEPENDING ON x
// carries the declared bounds plus the counter field name.
type Occurs struct {
	Min         int
	Max         int
	DependingOn string
}

// Condition is 88-level condition-name metadata attached to the preceding
// elementary field. Condition names never occupy storage.
type Condition struct {
	Name   string
	Values []string
}

// FieldNode is one node of the hierarchical copybook tree. A child's level
// is always strictly greater than its parent's.
type FieldNode struct {
	Level      int
	Name       string
	Picture    string
	Usage      Usage
	Sign       SignMode
	Occurs     *Occurs
	Redefines  string
	Value      string
	Conditions []Condition
	Children   []*FieldNode
	Line       int
}

// Elementary reports whether the node has no children of its own.
func (n *FieldNode) Elementary() bool {
	return n != nil && len(n.Children) == 0
}

// Parse builds a forest of field trees (one root per level-01 or level-77
// record) from lexed statements using a level stack: entries with a level
// greater than or equal to the incoming statement are popped, then the new
// node attaches to the remaining top, or becomes a root.
func Parse(stmts []Statement) ([]*FieldNode, error) {
	var roots []*FieldNode
	var stack []*FieldNode
	var lastField *FieldNode

	for _, stmt := range stmts {
		tokens := tokenize(stmt.Text)
		if len(tokens) == 0 {
			continue
		}
		level, err := strconv.Atoi(tokens[0])
		if err != nil || level <= 0 {
			return nil, syntaxErr(UnsupportedClause, stmt.Line, "statement does not begin with a level number: %q", stmt.Text)
		}
		if level == 88 {
			cond, err := parseCondition(tokens, stmt.Line)
			if err != nil {
				return nil, err
			}
			if lastField == nil {
				return nil, syntaxErr(UnsupportedClause, stmt.Line, "condition name %s has no preceding field", cond.Name)
			}
			lastField.Conditions = append(lastField.Conditions, cond)
			continue
		}
		if level == 66 {
			return nil, syntaxErr(UnsupportedClause, stmt.Line, "RENAMES (level 66) is not supported")
		}

		node, err := parseField(level, tokens[1:], stmt.Line)
		if err != nil {
			return nil, err
		}

		for len(stack) > 0 && stack[len(stack)-1].Level >= level {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 || level == 1 || level == 77 {
			roots = append(roots, node)
			stack = stack[:0]
		} else {
			parent := stack[len(stack)-1]
			if node.Redefines != "" && !hasSibling(parent, node.Redefines) {
				return nil, syntaxErr(UndefinedRedefinesTarget, stmt.Line,
					"%s redefines %s, which is not declared in the same scope", node.Name, node.Redefines)
			}
			parent.Children = append(parent.Children, node)
		}
		if node.Redefines != "" && len(stack) == 0 && !hasRoot(roots, node) {
			return nil, syntaxErr(UndefinedRedefinesTarget, stmt.Line,
				"%s redefines %s, which is not declared in the same scope", node.Name, node.Redefines)
		}
		stack = append(stack, node)
		lastField = node
	}
	return roots, nil
}

func hasSibling(parent *FieldNode, name string) bool {
	for _, child := range parent.Children {
		if child.Name == name {
			return true
		}
	}
	return false
}

func hasRoot(roots []*FieldNode, node *FieldNode) bool {
	for _, root := range roots {
		if root == node {
			continue
		}
		if root.Name == node.Redefines {
			return true
		}
	}
	return false
}

// parseField consumes the clause tokens following the level number.
func parseField(level int, tokens []string, line int) (*FieldNode, error) {
	node := &FieldNode{Level: level, Usage: UsageDisplay, Sign: SignTrailing, Line: line}

	i := 0
	if i < len(tokens) && !isClauseKeyword(tokens[i]) {
		node.Name = strings.ToUpper(tokens[i])
		i++
	}
	if node.Name == "" {
		node.Name = "FILLER"
	}

	for i < len(tokens) {
		word := strings.ToUpper(tokens[i])
		switch word {
		case "PIC", "PICTURE":
			i++
			if i < len(tokens) && strings.ToUpper(tokens[i]) == "IS" {
				i++
			}
			if i >= len(tokens) {
				return nil, syntaxErr(UnsupportedPicture, line, "%s: PICTURE clause without a character string", node.Name)
			}
			node.Picture = strings.ToUpper(tokens[i])
			i++
		case "USAGE":
			i++
			if i < len(tokens) && strings.ToUpper(tokens[i]) == "IS" {
				i++
			}
			if i >= len(tokens) {
				return nil, syntaxErr(UnsupportedClause, line, "%s: USAGE clause without a representation", node.Name)
			}
			usage, ok := usageFor(strings.ToUpper(tokens[i]))
			if !ok {
				return nil, syntaxErr(UnsupportedClause, line, "%s: unsupported usage %s", node.Name, tokens[i])
			}
			node.Usage = usage
			i++
		case "COMP", "COMP-3", "COMP-4", "COMP-5", "COMPUTATIONAL", "COMPUTATIONAL-3", "BINARY", "PACKED-DECIMAL":
			usage, _ := usageFor(word)
			node.Usage = usage
			i++
		case "OCCURS":
			occurs, next, err := parseOccurs(tokens, i+1, node.Name, line)
			if err != nil {
				return nil, err
			}
			node.Occurs = occurs
			i = next
		case "REDEFINES":
			i++
			if i >= len(tokens) {
				return nil, syntaxErr(UndefinedRedefinesTarget, line, "%s: REDEFINES without a target", node.Name)
			}
			node.Redefines = strings.ToUpper(tokens[i])
			i++
		case "VALUE", "VALUES":
			i++
			if i < len(tokens) && (strings.ToUpper(tokens[i]) == "IS" || strings.ToUpper(tokens[i]) == "ARE") {
				i++
			}
			if i < len(tokens) {
				node.Value = tokens[i]
				i++
			}
		case "SIGN":
			sign, next, err := parseSign(tokens, i+1, node.Name, line)
			if err != nil {
				return nil, err
			}
			node.Sign = sign
			i = next
		case "SYNC", "SYNCHRONIZED", "JUST", "JUSTIFIED", "RIGHT", "GLOBAL", "EXTERNAL":
			// Declarative alignment/visibility clauses with no effect on the
			// byte layout this engine computes.
			i++
		case "BLANK":
			i++
			for i < len(tokens) {
				w := strings.ToUpper(tokens[i])
				i++
				if w == "ZERO" || w == "ZEROS" || w == "ZEROES" {
					break
				}
			}
		default:
			return nil, syntaxErr(UnsupportedClause, line, "%s: unsupported clause token %q", node.Name, tokens[i])
		}
	}
	return node, nil
}

func usageFor(word string) (Usage, bool) {
	switch word {
	case "DISPLAY":
		return UsageDisplay, true
	case "COMP", "COMP-4", "COMP-5", "COMPUTATIONAL", "BINARY":
		return UsageBinary, true
	case "COMP-3", "COMPUTATIONAL-3", "PACKED-DECIMAL":
		return UsagePacked, true
	default:
		return "", false
	}
}

// parseOccurs handles both fixed (OCCURS n TIMES) and bounded-variable
// (OCCURS m TO n TIMES DEPENDING ON x) forms. INDEXED BY names are consumed
// and dropped: they are purely declarative and play no part in the flat
// schema. KEY clauses are consumed the same way.
func parseOccurs(tokens []string, i int, field string, line int) (*Occurs, int, error) {
	if i >= len(tokens) {
		return nil, i, syntaxErr(UnsupportedClause, line, "%s: OCCURS without a count", field)
	}
	first, err := strconv.Atoi(tokens[i])
	if err != nil || first <= 0 {
		return nil, i, syntaxErr(UnsupportedClause, line, "%s: invalid OCCURS count %q", field, tokens[i])
	}
	i++
	occurs := &Occurs{Min: first, Max: first}

	if i < len(tokens) && strings.ToUpper(tokens[i]) == "TO" {
		i++
		if i >= len(tokens) {
			return nil, i, syntaxErr(UnsupportedClause, line, "%s: OCCURS TO without an upper bound", field)
		}
		max, err := strconv.Atoi(tokens[i])
		if err != nil || max < first {
			return nil, i, syntaxErr(UnsupportedClause, line, "%s: invalid OCCURS upper bound %q", field, tokens[i])
		}
		occurs.Max = max
		i++
	}
	if i < len(tokens) && strings.ToUpper(tokens[i]) == "TIMES" {
		i++
	}
	for i < len(tokens) {
		switch strings.ToUpper(tokens[i]) {
		case "DEPENDING":
			i++
			if i < len(tokens) && strings.ToUpper(tokens[i]) == "ON" {
				i++
			}
			if i >= len(tokens) {
				return nil, i, syntaxErr(UnsupportedClause, line, "%s: DEPENDING ON without a counter field", field)
			}
			occurs.DependingOn = strings.ToUpper(tokens[i])
			i++
		case "INDEXED":
			i++
			if i < len(tokens) && strings.ToUpper(tokens[i]) == "BY" {
				i++
			}
			for i < len(tokens) && !isClauseKeyword(tokens[i]) {
				i++
			}
		case "ASCENDING", "DESCENDING":
			i++
			if i < len(tokens) && strings.ToUpper(tokens[i]) == "KEY" {
				i++
			}
			if i < len(tokens) && strings.ToUpper(tokens[i]) == "IS" {
				i++
			}
			for i < len(tokens) && !isClauseKeyword(tokens[i]) {
				i++
			}
		default:
			if occurs.DependingOn == "" && occurs.Min != occurs.Max {
				return nil, i, syntaxErr(UnsupportedClause, line, "%s: OCCURS range without DEPENDING ON", field)
			}
			return occurs, i, nil
		}
	}
	if occurs.DependingOn == "" && occurs.Min != occurs.Max {
		return nil, i, syntaxErr(UnsupportedClause, line, "%s: OCCURS range without DEPENDING ON", field)
	}
	return occurs, i, nil
}

func parseSign(tokens []string, i int, field string, line int) (SignMode, int, error) {
	if i < len(tokens) && strings.ToUpper(tokens[i]) == "IS" {
		i++
	}
	if i >= len(tokens) {
		return "", i, syntaxErr(UnsupportedClause, line, "%s: SIGN clause without a position", field)
	}
	var mode SignMode
	switch strings.ToUpper(tokens[i]) {
	case "LEADING":
		mode = SignLeading
	case "TRAILING":
		mode = SignTrailing
	default:
		return "", i, syntaxErr(UnsupportedClause, line, "%s: invalid SIGN position %q", field, tokens[i])
	}
	i++
	if i < len(tokens) && strings.ToUpper(tokens[i]) == "SEPARATE" {
		if mode == SignLeading {
			mode = SignSeparateLeading
		} else {
			mode = SignSeparateTrailing
		}
		i++
		if i < len(tokens) && strings.ToUpper(tokens[i]) == "CHARACTER" {
			i++
		}
	}
	return mode, i, nil
}

// parseCondition reads an 88-level statement: the condition name plus its
// VALUE literal list (THRU ranges kept as "lo THRU hi").
func parseCondition(tokens []string, line int) (Condition, error) {
	if len(tokens) < 2 {
		return Condition{}, syntaxErr(UnsupportedClause, line, "condition statement without a name")
	}
	cond := Condition{Name: strings.ToUpper(tokens[1])}
	i := 2
	if i < len(tokens) {
		switch strings.ToUpper(tokens[i]) {
		case "VALUE", "VALUES":
			i++
			if i < len(tokens) && (strings.ToUpper(tokens[i]) == "IS" || strings.ToUpper(tokens[i]) == "ARE") {
				i++
			}
		}
	}
	for i < len(tokens) {
		value := unquote(tokens[i])
		i++
		if i+1 < len(tokens) && (strings.ToUpper(tokens[i]) == "THRU" || strings.ToUpper(tokens[i]) == "THROUGH") {
			value = value + " THRU " + unquote(tokens[i+1])
			i += 2
		}
		cond.Values = append(cond.Values, value)
	}
	if len(cond.Values) == 0 {
		return Condition{}, syntaxErr(UnsupportedClause, line, "condition %s without VALUE literals", cond.Name)
	}
	return cond, nil
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func isClauseKeyword(token string) bool {
	switch strings.ToUpper(token) {
	case "PIC", "PICTURE", "USAGE", "OCCURS", "REDEFINES", "VALUE", "VALUES",
		"COMP", "COMP-3", "COMP-4", "COMP-5", "COMPUTATIONAL", "COMPUTATIONAL-3",
		"BINARY", "PACKED-DECIMAL", "DISPLAY", "SIGN", "SYNC", "SYNCHRONIZED",
		"JUST", "JUSTIFIED", "BLANK", "INDEXED", "DEPENDING", "ASCENDING", "DESCENDING":
		return true
	}
	return false
}

// tokenize splits a normalized statement on spaces while keeping quoted
// literals (and any commas inside them) intact. Trailing commas and
// semicolons on bare tokens are separators, not content.
func tokenize(text string) []string {
	var tokens []string
	var buf strings.Builder
	var quote byte
	flush := func() {
		tok := strings.TrimRight(buf.String(), ",;")
		if tok != "" {
			tokens = append(tokens, tok)
		}
		buf.Reset()
	}
	for i := 0; i < len(text); i++ {
		ch := text[i]
		switch {
		case quote != 0:
			buf.WriteByte(ch)
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
			buf.WriteByte(ch)
		case ch == ' ' || ch == '\t':
			flush()
		default:
			buf.WriteByte(ch)
		}
	}
	flush()
	return tokens
}

// File path: internal/copybook/lexer.go
package copybook

import (
	"strings"
)

// Statement is one cleaned, period-terminated copybook sentence. Text holds
// the normalized statement body without the terminating period; Line is the
// source line the statement started on.
type Statement struct {
	Text string
	Line int
}

// Lex cleans raw copybook text into discrete period-terminated statements.
// Sequence-number and identifier columns are detected structurally, comment
// and debug lines are dropped, continuation lines are joined, and statements
// are split on periods that terminate sentences (never inside quoted
// literals, never on a decimal point inside a PICTURE character string).
func Lex(src []byte) ([]Statement, error) {
	return lex(src, false)
}

// LexStrict behaves like Lex but refuses continuations whose literal state
// cannot be joined without guessing, returning AmbiguousContinuation. The
// bulk-backend canonicalizer uses this mode; the in-process pipeline is
// lenient.
func LexStrict(src []byte) ([]Statement, error) {
	return lex(src, true)
}

type rawLine struct {
	text         string
	line         int
	continuation bool
}

func lex(src []byte, strict bool) ([]Statement, error) {
	lines := splitLines(string(src))
	fixed := detectFixedFormat(lines)

	var cleaned []rawLine
	for idx, line := range lines {
		text, cont, keep := cleanLine(line, fixed)
		if !keep {
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		cleaned = append(cleaned, rawLine{text: text, line: idx + 1, continuation: cont})
	}

	return splitStatements(cleaned, strict)
}

func splitLines(src string) []string {
	src = strings.ReplaceAll(src, "\r\n", "\n")
	src = strings.ReplaceAll(src, "\r", "\n")
	return strings.Split(src, "\n")
}

// detectFixedFormat decides whether the source uses the classic fixed layout
// (sequence area in columns 1-6, indicator in column 7, identifier area past
// column 72). Digit-filled sequence areas and indicator characters under a
// blank sequence area commit immediately. Line width alone is weaker
// evidence: only a majority of lines running past column 72 marks the source
// as fixed, so a free-format copybook with one long line stays free.
func detectFixedFormat(lines []string) bool {
	long, total := 0, 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		total++
		if len(line) > 72 {
			long++
		}
		if len(line) >= 7 {
			seq := line[:6]
			ind := line[6]
			if isAllDigits(seq) {
				return true
			}
			if strings.TrimSpace(seq) == "" && (ind == '*' || ind == '/' || ind == '-') {
				return true
			}
		}
	}
	return long*2 > total
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// cleanLine strips the format-dependent columns and classifies the line.
// keep=false drops the line entirely (comments, blank, debug).
func cleanLine(line string, fixed bool) (text string, continuation bool, keep bool) {
	if fixed {
		if len(line) <= 6 {
			return "", false, false
		}
		indicator := line[6]
		body := line[7:]
		if len(body) > 65 {
			body = body[:65]
		}
		switch indicator {
		case '*', '/', 'D', 'd':
			return "", false, false
		case '-':
			return body, true, true
		default:
			return body, false, true
		}
	}
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "*") {
		return "", false, false
	}
	return stripInlineComment(line), false, true
}

// stripInlineComment truncates a free-format line at an unquoted "*>".
func stripInlineComment(line string) string {
	var quote byte
	for i := 0; i < len(line); i++ {
		ch := line[i]
		if quote != 0 {
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"':
			quote = ch
		case '*':
			if i+1 < len(line) && line[i+1] == '>' {
				return line[:i]
			}
		}
	}
	return line
}

// splitStatements joins continuations and splits the cleaned stream on
// statement-terminating periods. A period terminates a statement only when
// outside a quoted literal and followed by whitespace or end of line, so
// VALUE literals and PICTURE decimal points never split a statement.
func splitStatements(lines []rawLine, strict bool) ([]Statement, error) {
	var stmts []Statement
	var buf strings.Builder
	startLine := 0
	var quote byte

	flushStatement := func() {
		text := normalizeSpace(buf.String())
		if text != "" {
			stmts = append(stmts, Statement{Text: text, Line: startLine})
		}
		buf.Reset()
		startLine = 0
	}

	for _, ln := range lines {
		text := ln.text
		if ln.continuation {
			if quote != 0 {
				// Resuming a split literal: the continuation restarts at a
				// quote character which is not part of the literal value.
				rest := strings.TrimLeft(text, " ")
				if len(rest) > 0 && rest[0] == quote {
					text = rest[1:]
				} else if strict {
					return nil, syntaxErr(AmbiguousContinuation, ln.line,
						"continuation of quoted literal does not resume with %q", string(quote))
				}
			} else {
				text = strings.TrimLeft(text, " ")
			}
		} else if buf.Len() > 0 && quote == 0 {
			buf.WriteByte(' ')
		}

		for i := 0; i < len(text); i++ {
			ch := text[i]
			if startLine == 0 && ch != ' ' && ch != '\t' {
				startLine = ln.line
			}
			switch {
			case quote != 0:
				buf.WriteByte(ch)
				if ch == quote {
					quote = 0
				}
			case ch == '\'' || ch == '"':
				quote = ch
				buf.WriteByte(ch)
			case ch == '.':
				if i+1 < len(text) && text[i+1] != ' ' && text[i+1] != '\t' {
					// Decimal point inside a PICTURE character string.
					buf.WriteByte(ch)
					continue
				}
				flushStatement()
			default:
				buf.WriteByte(ch)
			}
		}
	}

	if strings.TrimSpace(buf.String()) != "" {
		return nil, syntaxErr(UnterminatedStatement, startLine,
			"no terminating period before end of copybook: %q", strings.TrimSpace(buf.String()))
	}
	return stmts, nil
}

// normalizeSpace collapses runs of whitespace outside quoted literals.
func normalizeSpace(s string) string {
	var b strings.Builder
	var quote byte
	space := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			b.WriteByte(ch)
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch {
		case ch == '\'' || ch == '"':
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			quote = ch
			b.WriteByte(ch)
		case ch == ' ' || ch == '\t':
			space = true
		default:
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteByte(ch)
		}
	}
	return strings.TrimSpace(b.String())
}

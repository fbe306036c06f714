// File path: internal/decoder/encoding.go
package decoder

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// DefaultCodePage is the legacy text encoding assumed when the caller does
// not configure one. CP037 is the common US/Canada EBCDIC code page.
const DefaultCodePage = "cp037"

var codePages = map[string]*charmap.Charmap{
	"cp037":   charmap.CodePage037,
	"ibm037":  charmap.CodePage037,
	"cp1047":  charmap.CodePage1047,
	"ibm1047": charmap.CodePage1047,
	"cp1140":  charmap.CodePage1140,
	"ibm1140": charmap.CodePage1140,
	"latin1":  charmap.ISO8859_1,
}

// CodePage resolves a configured code page name to its character map. The
// empty name selects DefaultCodePage.
func CodePage(name string) (*charmap.Charmap, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = DefaultCodePage
	}
	cm, ok := codePages[key]
	if !ok {
		return nil, fmt.Errorf("unknown code page %q", name)
	}
	return cm, nil
}

// CodePageNames lists the supported code page identifiers.
func CodePageNames() []string {
	return []string{"cp037", "cp1047", "cp1140", "latin1"}
}

// decodeText maps raw bytes through the code page. The second return is the
// offset of the first byte with no mapping, or -1 when every byte decoded.
func decodeText(raw []byte, cm *charmap.Charmap) (string, int) {
	var b strings.Builder
	b.Grow(len(raw))
	bad := -1
	for i, by := range raw {
		r := cm.DecodeByte(by)
		if r == utf8.RuneError && bad < 0 {
			bad = i
		}
		b.WriteRune(r)
	}
	return b.String(), bad
}

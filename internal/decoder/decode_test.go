// File path: internal/decoder/decode_test.go
package decoder

import (
	"testing"

	"golang.org/x/text/encoding/charmap"

	"github.com/nicodishanthj/copybook_engine/internal/copybook"
	"github.com/nicodishanthj/copybook_engine/internal/schema"
)

// ebcdic encodes ASCII text as CP037 bytes for test fixtures.
func ebcdic(t *testing.T, s string) []byte {
	t.Helper()
	out := make([]byte, 0, len(s))
	for _, r := range s {
		by, ok := charmap.CodePage037.EncodeRune(r)
		if !ok {
			t.Fatalf("rune %q has no CP037 encoding", r)
		}
		out = append(out, by)
	}
	return out
}

func TestDecodePackedPositive(t *testing.T) {
	def := schema.FieldDef{Name: "AMT", Length: 3, Type: schema.TypePacked, Digits: 5}
	value, ferr := decodeField(def, []byte{0x12, 0x34, 0x5C}, charmap.CodePage037, false)
	if ferr != nil {
		t.Fatalf("unexpected field error: %v", ferr)
	}
	if value != int64(12345) {
		t.Fatalf("expected 12345, got %v (%T)", value, value)
	}
}

func TestDecodePackedNegative(t *testing.T) {
	def := schema.FieldDef{Name: "AMT", Length: 3, Type: schema.TypePacked, Digits: 5}
	value, ferr := decodeField(def, []byte{0x12, 0x34, 0x5D}, charmap.CodePage037, false)
	if ferr != nil {
		t.Fatalf("unexpected field error: %v", ferr)
	}
	if value != int64(-12345) {
		t.Fatalf("expected -12345, got %v", value)
	}
}

func TestDecodePackedScaled(t *testing.T) {
	def := schema.FieldDef{Name: "AMT", Length: 3, Type: schema.TypePacked, Digits: 5, Scale: 2}
	value, ferr := decodeField(def, []byte{0x12, 0x34, 0x5C}, charmap.CodePage037, false)
	if ferr != nil {
		t.Fatalf("unexpected field error: %v", ferr)
	}
	if value != "123.45" {
		t.Fatalf("expected scaled string 123.45, got %v (%T)", value, value)
	}
}

func TestDecodePackedPadNibble(t *testing.T) {
	def := schema.FieldDef{Name: "N", Length: 2, Type: schema.TypePacked, Digits: 2}
	value, ferr := decodeField(def, []byte{0x01, 0x2C}, charmap.CodePage037, false)
	if ferr != nil {
		t.Fatalf("unexpected field error: %v", ferr)
	}
	if value != int64(12) {
		t.Fatalf("expected 12, got %v", value)
	}
}

func TestDecodePackedInvalidSign(t *testing.T) {
	def := schema.FieldDef{Name: "AMT", Length: 3, Type: schema.TypePacked, Digits: 5}
	_, ferr := decodeField(def, []byte{0x12, 0x34, 0x5A}, charmap.CodePage037, false)
	if ferr == nil || ferr.Kind != InvalidSignNibble {
		t.Fatalf("expected invalid sign nibble, got %v", ferr)
	}
}

func TestDecodeZonedSigns(t *testing.T) {
	def := schema.FieldDef{Name: "Q", Length: 3, Type: schema.TypeZoned, Digits: 3}
	cases := []struct {
		raw  []byte
		want int64
	}{
		{[]byte{0xF1, 0xF2, 0xF3}, 123},
		{[]byte{0xF1, 0xF2, 0xC3}, 123},
		{[]byte{0xF1, 0xF2, 0xD3}, -123},
	}
	for _, tc := range cases {
		value, ferr := decodeField(def, tc.raw, charmap.CodePage037, false)
		if ferr != nil {
			t.Fatalf("raw % X: unexpected field error: %v", tc.raw, ferr)
		}
		if value != tc.want {
			t.Fatalf("raw % X: expected %d, got %v", tc.raw, tc.want, value)
		}
	}
}

func TestDecodeZonedInvalidSignNibble(t *testing.T) {
	def := schema.FieldDef{Name: "Q", Length: 3, Type: schema.TypeZoned, Digits: 3}
	_, ferr := decodeField(def, []byte{0xF1, 0xF2, 0x33}, charmap.CodePage037, false)
	if ferr == nil || ferr.Kind != InvalidSignNibble {
		t.Fatalf("expected invalid sign nibble, got %v", ferr)
	}
}

func TestDecodeZonedLeadingSign(t *testing.T) {
	def := schema.FieldDef{Name: "Q", Length: 2, Type: schema.TypeZoned, Digits: 2, Sign: copybook.SignLeading}
	value, ferr := decodeField(def, []byte{0xD1, 0xF2}, charmap.CodePage037, false)
	if ferr != nil {
		t.Fatalf("unexpected field error: %v", ferr)
	}
	if value != int64(-12) {
		t.Fatalf("expected -12, got %v", value)
	}
}

func TestDecodeZonedSeparateSign(t *testing.T) {
	def := schema.FieldDef{Name: "Q", Length: 3, Type: schema.TypeZoned, Digits: 2, Sign: copybook.SignSeparateTrailing}
	value, ferr := decodeField(def, []byte{0xF1, 0xF2, 0x60}, charmap.CodePage037, false)
	if ferr != nil {
		t.Fatalf("unexpected field error: %v", ferr)
	}
	if value != int64(-12) {
		t.Fatalf("expected -12, got %v", value)
	}

	value, ferr = decodeField(def, []byte{0xF1, 0xF2, 0x4E}, charmap.CodePage037, false)
	if ferr != nil {
		t.Fatalf("unexpected field error: %v", ferr)
	}
	if value != int64(12) {
		t.Fatalf("expected 12, got %v", value)
	}

	_, ferr = decodeField(def, []byte{0xF1, 0xF2, 0xF0}, charmap.CodePage037, false)
	if ferr == nil || ferr.Kind != InvalidSignNibble {
		t.Fatalf("expected invalid separate sign, got %v", ferr)
	}
}

func TestDecodeBinaryWidths(t *testing.T) {
	cases := []struct {
		name   string
		raw    []byte
		signed bool
		want   int64
	}{
		{"halfword positive", []byte{0x30, 0x39}, true, 12345},
		{"halfword negative", []byte{0xFF, 0xFE}, true, -2},
		{"halfword unsigned", []byte{0xFF, 0xFE}, false, 65534},
		{"fullword", []byte{0x00, 0x00, 0x30, 0x39}, true, 12345},
		{"doubleword negative", []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x9C}, true, -100},
	}
	for _, tc := range cases {
		def := schema.FieldDef{Name: "B", Length: len(tc.raw), Type: schema.TypeBinary, Signed: tc.signed}
		value, ferr := decodeField(def, tc.raw, charmap.CodePage037, false)
		if ferr != nil {
			t.Fatalf("%s: unexpected field error: %v", tc.name, ferr)
		}
		if value != tc.want {
			t.Fatalf("%s: expected %d, got %v", tc.name, tc.want, value)
		}
	}
}

func TestDecodeAlphanumericTrim(t *testing.T) {
	def := schema.FieldDef{Name: "NAME", Length: 5, Type: schema.TypeAlphanumeric}
	raw := ebcdic(t, "ABC  ")
	value, ferr := decodeField(def, raw, charmap.CodePage037, true)
	if ferr != nil {
		t.Fatalf("unexpected field error: %v", ferr)
	}
	if value != "ABC" {
		t.Fatalf("expected trimmed ABC, got %q", value)
	}
	value, _ = decodeField(def, raw, charmap.CodePage037, false)
	if value != "ABC  " {
		t.Fatalf("expected untrimmed value, got %q", value)
	}
}

func TestDecodeFieldOutOfBounds(t *testing.T) {
	def := schema.FieldDef{Name: "TAIL", Offset: 8, Length: 4, Type: schema.TypeAlphanumeric}
	_, ferr := decodeField(def, make([]byte, 10), charmap.CodePage037, false)
	if ferr == nil || ferr.Kind != FieldOutOfBounds {
		t.Fatalf("expected out-of-bounds error, got %v", ferr)
	}
}

func TestNumericValueScaling(t *testing.T) {
	cases := []struct {
		unscaled int64
		scale    int
		want     interface{}
	}{
		{12345, 0, int64(12345)},
		{12345, 2, "123.45"},
		{5, 2, "0.05"},
		{-5, 2, "-0.05"},
		{-12345, 3, "-12.345"},
	}
	for _, tc := range cases {
		if got := numericValue(tc.unscaled, tc.scale); got != tc.want {
			t.Fatalf("numericValue(%d, %d) = %v, want %v", tc.unscaled, tc.scale, got, tc.want)
		}
	}
}

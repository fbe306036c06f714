// File path: internal/decoder/decode.go
package decoder

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"github.com/nicodishanthj/copybook_engine/internal/copybook"
	"github.com/nicodishanthj/copybook_engine/internal/schema"
)

// ErrorKind classifies a field-scoped decode failure. Field errors never
// abort the record they occur in.
type ErrorKind string

const (
	InvalidSignNibble       ErrorKind = "invalid-sign-nibble"
	UnsupportedEncodingByte ErrorKind = "unsupported-encoding-byte"
	FieldOutOfBounds        ErrorKind = "field-out-of-bounds"
	UnusedOccurrence        ErrorKind = "unused-occurrence"
)

// FieldError records a decode failure scoped to a single field of a single
// record.
type FieldError struct {
	Field  string    `json:"field"`
	Offset int       `json:"offset"`
	Kind   ErrorKind `json:"kind"`
	Detail string    `json:"detail,omitempty"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("field %s at offset %d: %s (%s)", e.Field, e.Offset, e.Kind, e.Detail)
}

// Record is one decoded physical record. Numeric values with zero scale are
// int64; scaled values are decimal strings; text values are strings.
type Record struct {
	Index       int                    `json:"index"`
	Fields      map[string]interface{} `json:"fields"`
	Conditions  map[string][]string    `json:"conditions,omitempty"`
	FieldErrors []FieldError           `json:"field_errors,omitempty"`
	RawLength   int                    `json:"raw_length"`
}

// decodeField interprets one field's byte range within a record slice.
func decodeField(def schema.FieldDef, rec []byte, cm *charmap.Charmap, trim bool) (interface{}, *FieldError) {
	if def.Offset+def.Length > len(rec) {
		return nil, &FieldError{
			Field:  def.Name,
			Offset: def.Offset,
			Kind:   FieldOutOfBounds,
			Detail: fmt.Sprintf("needs bytes [%d,%d) but record has %d", def.Offset, def.Offset+def.Length, len(rec)),
		}
	}
	raw := rec[def.Offset : def.Offset+def.Length]
	switch def.Type {
	case schema.TypeAlphanumeric:
		return decodeAlphanumeric(def, raw, cm, trim)
	case schema.TypeZoned:
		return decodeZoned(def, raw, cm)
	case schema.TypePacked:
		return decodePacked(def, raw)
	case schema.TypeBinary:
		return decodeBinary(def, raw)
	default:
		return nil, nil
	}
}

func decodeAlphanumeric(def schema.FieldDef, raw []byte, cm *charmap.Charmap, trim bool) (interface{}, *FieldError) {
	text, bad := decodeText(raw, cm)
	if bad >= 0 {
		return nil, &FieldError{
			Field:  def.Name,
			Offset: def.Offset,
			Kind:   UnsupportedEncodingByte,
			Detail: fmt.Sprintf("byte 0x%02X at offset %d has no mapping in the configured code page", raw[bad], def.Offset+bad),
		}
	}
	if trim {
		text = strings.TrimRight(text, " ")
	}
	return text, nil
}

// decodeZoned reads one digit per byte from each byte's low nibble, with the
// sign carried in the final byte's high nibble (C/F positive, D negative)
// or, under a SIGN SEPARATE clause, in a dedicated leading or trailing sign
// byte.
func decodeZoned(def schema.FieldDef, raw []byte, cm *charmap.Charmap) (interface{}, *FieldError) {
	digits := raw
	negative := false

	switch def.Sign {
	case copybook.SignSeparateLeading, copybook.SignSeparateTrailing:
		if len(raw) < 2 {
			return nil, &FieldError{Field: def.Name, Offset: def.Offset, Kind: FieldOutOfBounds, Detail: "separate sign needs at least two bytes"}
		}
		var signByte byte
		if def.Sign == copybook.SignSeparateLeading {
			signByte, digits = raw[0], raw[1:]
		} else {
			signByte, digits = raw[len(raw)-1], raw[:len(raw)-1]
		}
		switch cm.DecodeByte(signByte) {
		case '+':
		case '-':
			negative = true
		default:
			return nil, &FieldError{
				Field:  def.Name,
				Offset: def.Offset,
				Kind:   InvalidSignNibble,
				Detail: fmt.Sprintf("separate sign byte 0x%02X is neither + nor -", signByte),
			}
		}
	default:
		if len(raw) == 0 {
			return nil, &FieldError{Field: def.Name, Offset: def.Offset, Kind: FieldOutOfBounds, Detail: "zero-length zoned field"}
		}
		signPos := len(raw) - 1
		if def.Sign == copybook.SignLeading {
			signPos = 0
		}
		switch raw[signPos] >> 4 {
		case 0xC, 0xF:
		case 0xD:
			negative = true
		default:
			return nil, &FieldError{
				Field:  def.Name,
				Offset: def.Offset,
				Kind:   InvalidSignNibble,
				Detail: fmt.Sprintf("sign nibble 0x%X", raw[signPos]>>4),
			}
		}
	}

	var value int64
	for i, by := range digits {
		d := by & 0x0F
		if d > 9 {
			return nil, &FieldError{
				Field:  def.Name,
				Offset: def.Offset,
				Kind:   UnsupportedEncodingByte,
				Detail: fmt.Sprintf("digit nibble 0x%X at offset %d", d, def.Offset+i),
			}
		}
		value = value*10 + int64(d)
	}
	if negative {
		value = -value
	}
	return numericValue(value, def.Scale), nil
}

// decodePacked reads two BCD digits per byte, except the final byte whose
// low nibble is the sign (C/F positive, D negative). Pad nibbles decode as
// leading zeros; any digit nibble above 9 is rejected.
func decodePacked(def schema.FieldDef, raw []byte) (interface{}, *FieldError) {
	if len(raw) == 0 {
		return nil, &FieldError{Field: def.Name, Offset: def.Offset, Kind: FieldOutOfBounds, Detail: "zero-length packed field"}
	}
	sign := raw[len(raw)-1] & 0x0F
	negative := false
	switch sign {
	case 0xC, 0xF:
	case 0xD:
		negative = true
	default:
		return nil, &FieldError{
			Field:  def.Name,
			Offset: def.Offset,
			Kind:   InvalidSignNibble,
			Detail: fmt.Sprintf("sign nibble 0x%X", sign),
		}
	}

	var value int64
	appendDigit := func(d byte, at int) *FieldError {
		if d > 9 {
			return &FieldError{
				Field:  def.Name,
				Offset: def.Offset,
				Kind:   UnsupportedEncodingByte,
				Detail: fmt.Sprintf("BCD nibble 0x%X at offset %d", d, at),
			}
		}
		value = value*10 + int64(d)
		return nil
	}
	for i, by := range raw {
		if err := appendDigit(by>>4, def.Offset+i); err != nil {
			return nil, err
		}
		if i == len(raw)-1 {
			break
		}
		if err := appendDigit(by&0x0F, def.Offset+i); err != nil {
			return nil, err
		}
	}
	if negative {
		value = -value
	}
	return numericValue(value, def.Scale), nil
}

// decodeBinary reads a big-endian two's-complement integer. Legacy binary is
// big-endian regardless of host endianness.
func decodeBinary(def schema.FieldDef, raw []byte) (interface{}, *FieldError) {
	var unsigned uint64
	for _, by := range raw {
		unsigned = unsigned<<8 | uint64(by)
	}
	var value int64
	if def.Signed {
		shift := uint(64 - len(raw)*8)
		value = int64(unsigned<<shift) >> shift
	} else {
		value = int64(unsigned)
	}
	return numericValue(value, def.Scale), nil
}

// numericValue renders a decoded integer with its implied decimal scale:
// zero-scale values stay int64, scaled values become decimal strings so no
// precision is lost in transit.
func numericValue(unscaled int64, scale int) interface{} {
	if scale <= 0 {
		return unscaled
	}
	negative := unscaled < 0
	digits := strconv.FormatInt(unscaled, 10)
	if negative {
		digits = digits[1:]
	}
	for len(digits) <= scale {
		digits = "0" + digits
	}
	out := digits[:len(digits)-scale] + "." + digits[len(digits)-scale:]
	if negative {
		out = "-" + out
	}
	return out
}

// formatValue renders a decoded value the way condition-name literals are
// written, for 88-level comparison.
func formatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprint(val)
	}
}

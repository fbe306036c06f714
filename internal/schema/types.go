// File path: internal/schema/types.go
package schema

import (
	"github.com/nicodishanthj/copybook_engine/internal/copybook"
)

// DecodeType selects the byte-level interpretation of a flat field.
type DecodeType string

const (
	TypeAlphanumeric DecodeType = "alphanumeric"
	TypeZoned        DecodeType = "zoned_decimal"
	TypePacked       DecodeType = "packed_decimal"
	TypeBinary       DecodeType = "binary_integer"
	TypeGroup        DecodeType = "group"
)

// FieldDef is one byte-addressed field of the resolved flat schema. Names
// are qualified with OCCURS index suffixes, so they are unique within a
// schema. A RedefineGroup is one byte range with several interpretations:
// each interpretation starts at the target's Offset (a redefining OCCURS
// lays its copies consecutively within the overlay), and the group advances
// the next sequential offset by its maximum member length.
type FieldDef struct {
	Name   string     `json:"name"`
	Level  int        `json:"level"`
	Offset int        `json:"offset"`
	Length int        `json:"length"`
	Type   DecodeType `json:"type"`

	Digits int  `json:"digits,omitempty"`
	Scale  int  `json:"scale,omitempty"`
	Signed bool `json:"signed,omitempty"`

	Sign copybook.SignMode `json:"sign,omitempty"`

	RedefineGroup int  `json:"redefine_group,omitempty"`
	Filler        bool `json:"filler,omitempty"`

	// Occurrence and DependsOn carry bounded-variable OCCURS metadata: the
	// 1-based iteration this copy belongs to and the counter field whose
	// runtime value bounds it. MinOccurs is the declared lower bound.
	Occurrence int    `json:"occurrence,omitempty"`
	MinOccurs  int    `json:"min_occurs,omitempty"`
	DependsOn  string `json:"depends_on,omitempty"`

	Conditions []copybook.Condition `json:"conditions,omitempty"`
}

// Resolved is a complete flat schema for one copybook: the ordered field
// definitions plus the fixed physical record length they describe.
type Resolved struct {
	Fields       []FieldDef `json:"fields"`
	RecordLength int        `json:"record_length"`
}

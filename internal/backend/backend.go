// File path: internal/backend/backend.go
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nicodishanthj/copybook_engine/internal/decoder"
	"github.com/nicodishanthj/copybook_engine/internal/schema"
)

// Preference is an explicit caller choice of decoding pipeline.
type Preference string

const (
	PreferNone      Preference = ""
	PreferInProcess Preference = "in_process"
	PreferBulk      Preference = "bulk"
)

// DefaultSizeThreshold is the estimated input size above which the
// dispatcher prefers the bulk backend.
const DefaultSizeThreshold int64 = 10 << 20

// Capability is a static declaration of the features a backend supports.
// Selection never probes at runtime: capabilities are declared up front so
// dispatch stays deterministic and testable.
type Capability struct {
	Occurs            bool
	Redefines         bool
	PackedDecimal     bool
	VariableOccurs    bool
	LargeFileParallel bool
}

// Supports reports whether c covers every feature required by req.
func (c Capability) Supports(req Capability) bool {
	if req.Occurs && !c.Occurs {
		return false
	}
	if req.Redefines && !c.Redefines {
		return false
	}
	if req.PackedDecimal && !c.PackedDecimal {
		return false
	}
	if req.VariableOccurs && !c.VariableOccurs {
		return false
	}
	return true
}

// RequiredCapabilities derives the feature set a copybook needs from its
// raw text. The scan is syntactic on purpose: it must be cheap enough to run
// before any backend parses the copybook.
func RequiredCapabilities(copybook []byte) Capability {
	text := strings.ToUpper(string(copybook))
	return Capability{
		Occurs:         strings.Contains(text, "OCCURS"),
		Redefines:      strings.Contains(text, "REDEFINES"),
		PackedDecimal:  strings.Contains(text, "COMP-3") || strings.Contains(text, "PACKED-DECIMAL"),
		VariableOccurs: strings.Contains(text, "DEPENDING"),
	}
}

// Options carry the caller-facing decode settings shared by every backend.
type Options struct {
	Prefer Preference

	CodePage           string
	TrimTrailingSpaces bool
	IncludeFiller      bool
	RecordLength       int

	SizeThresholdBytes int64
	Timeout            time.Duration
}

// ParseResult is the shared output contract of both pipelines: the resolved
// flat schema, the backend that produced it, non-fatal warnings, and the
// finite record sequence. Re-invocation with the same references restarts
// from the beginning.
type ParseResult struct {
	Schema      *schema.Resolved  `json:"schema"`
	BackendUsed string            `json:"backend_used"`
	Warnings    []decoder.Warning `json:"warnings,omitempty"`
	Records     []decoder.Record  `json:"records"`
}

// Backend is one interchangeable decoding pipeline.
type Backend interface {
	Name() string
	Capabilities() Capability
	Parse(ctx context.Context, copybookRef, dataRef string, opts Options) (*ParseResult, error)
}

// ErrorKind classifies backend failures that trigger the one-shot fallback.
type ErrorKind string

const (
	KindUnavailable   ErrorKind = "backend-unavailable"
	KindTimeout       ErrorKind = "backend-timeout"
	KindPreprocessing ErrorKind = "backend-preprocessing-failed"
)

// Error is a backend-scoped failure. Every Error kind is retryable on the
// other backend exactly once.
type Error struct {
	Backend string
	Kind    ErrorKind
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Backend, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Backend, e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether err is a backend failure eligible for the
// one-shot fallback.
func Retryable(err error) bool {
	var be *Error
	return errors.As(err, &be)
}

// DecodingFailed is the terminal error after both backends failed; it
// aggregates both causes.
type DecodingFailed struct {
	Primary  error
	Fallback error
}

func (e *DecodingFailed) Error() string {
	return fmt.Sprintf("decoding failed on both backends: primary: %v; fallback: %v", e.Primary, e.Fallback)
}

func (e *DecodingFailed) Unwrap() []error {
	return []error{e.Primary, e.Fallback}
}

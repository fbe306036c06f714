// File path: internal/backend/inprocess.go
package backend

import (
	"context"
	"fmt"

	"github.com/nicodishanthj/copybook_engine/internal/common"
	"github.com/nicodishanthj/copybook_engine/internal/common/telemetry"
	"github.com/nicodishanthj/copybook_engine/internal/copybook"
	"github.com/nicodishanthj/copybook_engine/internal/decoder"
	"github.com/nicodishanthj/copybook_engine/internal/filestore"
	"github.com/nicodishanthj/copybook_engine/internal/schema"
)

// InProcessName identifies the in-process pipeline in ParseResult.
const InProcessName = "in_process"

// InProcess runs the full lexer, parser, resolver and decoder pipeline in
// the calling process. Resolved schemas are cached by copybook content hash.
type InProcess struct {
	store filestore.Store
	cache *schema.Cache
}

// NewInProcess wires the in-process pipeline to a reference store and an
// injectable schema cache. A nil cache disables caching.
func NewInProcess(store filestore.Store, cache *schema.Cache) *InProcess {
	return &InProcess{store: store, cache: cache}
}

func (b *InProcess) Name() string { return InProcessName }

// Capabilities declares full feature coverage; the in-process pipeline is
// the reference implementation.
func (b *InProcess) Capabilities() Capability {
	return Capability{
		Occurs:            true,
		Redefines:         true,
		PackedDecimal:     true,
		VariableOccurs:    true,
		LargeFileParallel: true,
	}
}

// Parse resolves the copybook (from cache when warm) and decodes the data
// buffer into index-ordered records.
func (b *InProcess) Parse(ctx context.Context, copybookRef, dataRef string, opts Options) (*ParseResult, error) {
	ctx, done := telemetry.StartSpan(ctx, "inprocess.parse")
	defer done()
	telemetry.RecordBackendParse(InProcessName)

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	copybookBytes, err := b.store.Get(ctx, copybookRef)
	if err != nil {
		return nil, fmt.Errorf("fetch copybook %s: %w", copybookRef, err)
	}
	resolved, err := b.resolveSchema(copybookBytes)
	if err != nil {
		return nil, err
	}

	data, err := b.store.Get(ctx, dataRef)
	if err != nil {
		return nil, fmt.Errorf("fetch data %s: %w", dataRef, err)
	}

	records, warnings, err := decoder.DecodeAll(ctx, resolved, data, decoder.Options{
		CodePage:           opts.CodePage,
		TrimTrailingSpaces: opts.TrimTrailingSpaces,
		IncludeFiller:      opts.IncludeFiller,
		RecordLength:       opts.RecordLength,
	})
	if err != nil {
		return nil, err
	}
	common.Logger().Info("backend: in-process parse complete",
		"copybook", copybookRef, "records", len(records), "warnings", len(warnings))
	return &ParseResult{
		Schema:      resolved,
		BackendUsed: InProcessName,
		Warnings:    warnings,
		Records:     records,
	}, nil
}

// resolveSchema runs lex, parse and resolve, consulting the content-hash
// cache first. Concurrent cold misses may resolve twice; the last insert
// wins and both results are byte-identical.
func (b *InProcess) resolveSchema(copybookBytes []byte) (*schema.Resolved, error) {
	var key string
	if b.cache != nil {
		key = b.cache.Key(copybookBytes)
		if resolved, ok := b.cache.Get(key); ok {
			return resolved, nil
		}
	}
	stmts, err := copybook.Lex(copybookBytes)
	if err != nil {
		return nil, err
	}
	roots, err := copybook.Parse(stmts)
	if err != nil {
		return nil, err
	}
	resolved, err := schema.Resolve(roots)
	if err != nil {
		return nil, err
	}
	if b.cache != nil {
		b.cache.Add(key, resolved)
	}
	return resolved, nil
}

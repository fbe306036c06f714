// File path: internal/backend/dispatcher.go
package backend

import (
	"context"

	"github.com/nicodishanthj/copybook_engine/internal/common"
	"github.com/nicodishanthj/copybook_engine/internal/common/telemetry"
	"github.com/nicodishanthj/copybook_engine/internal/filestore"
)

// Dispatcher selects between the in-process and bulk pipelines with a
// deterministic policy: an explicit caller preference wins, then estimated
// input size against the threshold, then in-process; a backend missing a
// required capability is never selected while the other can serve. One
// automatic fallback is attempted when the chosen backend fails with a
// backend-scoped error; a second failure is terminal.
type Dispatcher struct {
	store     filestore.Store
	inProcess Backend
	bulk      Backend
}

// NewDispatcher wires the dispatcher. bulk may be nil when no external
// backend is configured; everything then runs in-process.
func NewDispatcher(store filestore.Store, inProcess, bulk Backend) *Dispatcher {
	return &Dispatcher{store: store, inProcess: inProcess, bulk: bulk}
}

// Parse decodes the referenced data with the selected backend, falling back
// exactly once to the other pipeline on a backend-scoped failure.
func (d *Dispatcher) Parse(ctx context.Context, copybookRef, dataRef string, opts Options) (*ParseResult, error) {
	logger := common.Logger()
	primary, secondary := d.choose(ctx, copybookRef, dataRef, opts)

	result, err := primary.Parse(ctx, copybookRef, dataRef, opts)
	if err == nil {
		return result, nil
	}
	if secondary == nil || !Retryable(err) {
		return nil, err
	}

	logger.Warn("dispatcher: backend failed, retrying on fallback",
		"backend", primary.Name(), "fallback", secondary.Name(), "error", err)
	telemetry.RecordBackendFallback()

	result, fallbackErr := secondary.Parse(ctx, copybookRef, dataRef, opts)
	if fallbackErr == nil {
		return result, nil
	}
	logger.Error("dispatcher: fallback backend failed",
		"backend", secondary.Name(), "error", fallbackErr)
	return nil, &DecodingFailed{Primary: err, Fallback: fallbackErr}
}

// choose applies the selection policy and returns the primary backend plus
// the fallback candidate (nil when only one pipeline exists).
func (d *Dispatcher) choose(ctx context.Context, copybookRef, dataRef string, opts Options) (Backend, Backend) {
	logger := common.Logger()
	if d.bulk == nil {
		return d.inProcess, nil
	}

	primary, secondary := d.inProcess, d.bulk
	switch opts.Prefer {
	case PreferBulk:
		primary, secondary = d.bulk, d.inProcess
	case PreferInProcess:
		// already ordered
	default:
		threshold := opts.SizeThresholdBytes
		if threshold <= 0 {
			threshold = DefaultSizeThreshold
		}
		if size, err := d.store.Stat(ctx, dataRef); err == nil && size > threshold {
			primary, secondary = d.bulk, d.inProcess
			logger.Debug("dispatcher: size threshold exceeded, preferring bulk",
				"size", size, "threshold", threshold)
		}
	}

	if copybookBytes, err := d.store.Get(ctx, copybookRef); err == nil {
		required := RequiredCapabilities(copybookBytes)
		if !primary.Capabilities().Supports(required) && secondary.Capabilities().Supports(required) {
			logger.Info("dispatcher: preferred backend lacks required features, switching",
				"from", primary.Name(), "to", secondary.Name())
			primary, secondary = secondary, primary
		}
	}
	return primary, secondary
}

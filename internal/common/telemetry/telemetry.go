// File path: internal/common/telemetry/telemetry.go
package telemetry

import (
	"context"
	"expvar"
	"strings"
	"time"

	"github.com/nicodishanthj/copybook_engine/internal/common"
)

type spanKey struct{}

type span struct {
	name  string
	start time.Time
}

var (
	recordsDecodedTotal *expvar.Int
	fieldErrorsTotal    *expvar.Int
	truncatedTotal      *expvar.Int
	decodeLatencyMS     *expvar.Int

	schemaCacheHits   *expvar.Int
	schemaCacheMisses *expvar.Int

	backendParseTotal    *expvar.Map
	backendFallbackTotal *expvar.Int
)

func init() {
	recordsDecodedTotal = expvar.NewInt("copybook_records_decoded_total")
	fieldErrorsTotal = expvar.NewInt("copybook_field_errors_total")
	truncatedTotal = expvar.NewInt("copybook_truncated_records_total")
	decodeLatencyMS = expvar.NewInt("copybook_decode_latency_ms")

	schemaCacheHits = expvar.NewInt("copybook_schema_cache_hits")
	schemaCacheMisses = expvar.NewInt("copybook_schema_cache_misses")

	backendParseTotal = expvar.NewMap("copybook_backend_parse_total")
	backendFallbackTotal = expvar.NewInt("copybook_backend_fallback_total")
}

// StartSpan marks the start of a named stage and returns a completion
// callback that logs the elapsed duration at debug level.
func StartSpan(ctx context.Context, name string) (context.Context, func(attrs ...interface{})) {
	sp := &span{name: name, start: time.Now()}
	ctx = context.WithValue(ctx, spanKey{}, sp)
	logger := common.Logger()
	logger.Debug("trace: start", "span", name)
	return ctx, func(attrs ...interface{}) {
		duration := time.Since(sp.start)
		logger.Debug("trace: end", append([]interface{}{"span", name, "dur", duration}, attrs...)...)
	}
}

// SpanDuration reports how long the span carried by ctx has been running.
func SpanDuration(ctx context.Context) time.Duration {
	sp, _ := ctx.Value(spanKey{}).(*span)
	if sp == nil {
		return 0
	}
	return time.Since(sp.start)
}

// RecordDecode accumulates per-invocation decode statistics.
func RecordDecode(records, fieldErrors, truncated int, duration time.Duration) {
	if records > 0 {
		recordsDecodedTotal.Add(int64(records))
	}
	if fieldErrors > 0 {
		fieldErrorsTotal.Add(int64(fieldErrors))
	}
	if truncated > 0 {
		truncatedTotal.Add(int64(truncated))
	}
	if duration > 0 {
		decodeLatencyMS.Add(duration.Milliseconds())
	}
}

// RecordSchemaCache tracks cache effectiveness for resolved schemas.
func RecordSchemaCache(hit bool) {
	if hit {
		schemaCacheHits.Add(1)
		return
	}
	schemaCacheMisses.Add(1)
}

// RecordBackendParse counts parse attempts per backend name.
func RecordBackendParse(backend string) {
	key := strings.TrimSpace(strings.ToLower(backend))
	if key == "" {
		key = "unknown"
	}
	backendParseTotal.Add(key, 1)
}

// RecordBackendFallback counts dispatcher fallbacks between backends.
func RecordBackendFallback() {
	backendFallbackTotal.Add(1)
}

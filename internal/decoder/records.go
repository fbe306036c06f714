// File path: internal/decoder/records.go
package decoder

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/encoding/charmap"

	"github.com/nicodishanthj/copybook_engine/internal/common"
	"github.com/nicodishanthj/copybook_engine/internal/common/telemetry"
	"github.com/nicodishanthj/copybook_engine/internal/schema"
)

// Warning is a record-scoped, non-fatal finding surfaced alongside the
// decoded stream.
type Warning struct {
	Kind        string `json:"kind"`
	Detail      string `json:"detail"`
	RecordIndex int    `json:"record_index"`
}

// TruncatedRecordWarning flags a final record shorter than the fixed record
// length. The truncated record is still decoded; fields past the remainder
// report FieldOutOfBounds.
const TruncatedRecordWarning = "truncated-record"

const (
	defaultWorkers   = 4
	defaultBatchSize = 256
)

// Options configure a decode run.
type Options struct {
	CodePage           string
	TrimTrailingSpaces bool
	IncludeFiller      bool

	// RecordLength overrides the schema-derived fixed record length.
	RecordLength int

	Workers   int
	BatchSize int
}

// DecodeAll decodes the data buffer into index-ordered records. Records are
// independent once the schema is resolved, so decoding runs as a parallel
// map over contiguous record batches; results land in a pre-sized slice by
// index, never first-finished order. Cancellation is checked at batch
// granularity.
func DecodeAll(ctx context.Context, resolved *schema.Resolved, data []byte, opts Options) ([]Record, []Warning, error) {
	if resolved == nil || len(resolved.Fields) == 0 {
		return nil, nil, errors.New("decoder: empty schema")
	}
	recordLen := resolved.RecordLength
	if opts.RecordLength > 0 {
		recordLen = opts.RecordLength
	}
	if recordLen <= 0 {
		return nil, nil, errors.New("decoder: record length not resolved")
	}
	cm, err := CodePage(opts.CodePage)
	if err != nil {
		return nil, nil, fmt.Errorf("decoder: %w", err)
	}
	if len(data) == 0 {
		return nil, nil, nil
	}

	total := (len(data) + recordLen - 1) / recordLen
	var warnings []Warning
	truncated := 0
	if rem := len(data) % recordLen; rem != 0 {
		truncated = 1
		warnings = append(warnings, Warning{
			Kind:        TruncatedRecordWarning,
			Detail:      fmt.Sprintf("final record holds %d of %d bytes", rem, recordLen),
			RecordIndex: total - 1,
		})
	}

	started := time.Now()
	out := make([]Record, total)

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	batches := (total + batchSize - 1) / batchSize
	workerCount := opts.Workers
	if workerCount <= 0 {
		workerCount = defaultWorkers
	}
	if workerCount > batches {
		workerCount = batches
	}

	type batch struct{ start, end int }
	jobCh := make(chan batch)
	errCh := make(chan error, workerCount)
	var wg sync.WaitGroup
	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					continue
				default:
				}
				for idx := job.start; idx < job.end; idx++ {
					lo := idx * recordLen
					hi := lo + recordLen
					if hi > len(data) {
						hi = len(data)
					}
					out[idx] = decodeRecord(idx, data[lo:hi], resolved, cm, opts)
				}
			}
		}()
	}
	go func() {
		for start := 0; start < total; start += batchSize {
			end := start + batchSize
			if end > total {
				end = total
			}
			jobCh <- batch{start: start, end: end}
		}
		close(jobCh)
		wg.Wait()
		close(errCh)
	}()

	var firstErr error
	for err := range errCh {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return nil, nil, firstErr
	}

	fieldErrors := 0
	for i := range out {
		fieldErrors += len(out[i].FieldErrors)
	}
	telemetry.RecordDecode(total, fieldErrors, truncated, time.Since(started))
	common.Logger().Debug("decoder: buffer decoded",
		"records", total, "field_errors", fieldErrors, "truncated", truncated)
	return out, warnings, nil
}

// decodeRecord decodes every materialized field of one record slice. A bad
// field is recorded and skipped; the rest of the record still decodes.
func decodeRecord(index int, raw []byte, resolved *schema.Resolved, cm *charmap.Charmap, opts Options) Record {
	rec := Record{
		Index:     index,
		Fields:    make(map[string]interface{}),
		RawLength: len(raw),
	}
	for _, def := range resolved.Fields {
		if def.Type == schema.TypeGroup {
			continue
		}
		if def.Filler && !opts.IncludeFiller {
			continue
		}
		value, ferr := decodeField(def, raw, cm, opts.TrimTrailingSpaces)
		if ferr != nil {
			rec.FieldErrors = append(rec.FieldErrors, *ferr)
			continue
		}
		rec.Fields[def.Name] = value
		if names := matchConditions(def, value); len(names) > 0 {
			if rec.Conditions == nil {
				rec.Conditions = make(map[string][]string)
			}
			rec.Conditions[def.Name] = names
		}
	}
	flagUnusedOccurrences(&rec, resolved)
	return rec
}

// flagUnusedOccurrences applies the decode-to-maximum policy for bounded
// OCCURS: every declared occurrence is decoded, and copies whose iteration
// index exceeds the runtime count read from the DEPENDING ON counter are
// flagged rather than dropped.
func flagUnusedOccurrences(rec *Record, resolved *schema.Resolved) {
	counters := make(map[string]int64)
	for _, def := range resolved.Fields {
		if def.DependsOn == "" || def.Occurrence == 0 {
			continue
		}
		count, ok := counters[def.DependsOn]
		if !ok {
			value, present := rec.Fields[def.DependsOn]
			if !present {
				continue
			}
			parsed, err := toCount(value)
			if err != nil {
				continue
			}
			count = parsed
			counters[def.DependsOn] = count
		}
		if int64(def.Occurrence) > count {
			rec.FieldErrors = append(rec.FieldErrors, FieldError{
				Field:  def.Name,
				Offset: def.Offset,
				Kind:   UnusedOccurrence,
				Detail: fmt.Sprintf("occurrence %d exceeds runtime count %d from %s", def.Occurrence, count, def.DependsOn),
			})
		}
	}
}

func toCount(v interface{}) (int64, error) {
	switch val := v.(type) {
	case int64:
		return val, nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(val), 10, 64)
	default:
		return 0, fmt.Errorf("counter value %v is not numeric", v)
	}
}

// matchConditions evaluates 88-level condition names against a decoded
// value. Literal comparison is textual; THRU ranges compare numerically when
// both bounds parse as integers, textually otherwise.
func matchConditions(def schema.FieldDef, value interface{}) []string {
	if len(def.Conditions) == 0 {
		return nil
	}
	text := strings.TrimRight(formatValue(value), " ")
	var matched []string
	for _, cond := range def.Conditions {
		for _, literal := range cond.Values {
			if conditionMatches(literal, text) {
				matched = append(matched, cond.Name)
				break
			}
		}
	}
	return matched
}

func conditionMatches(literal, text string) bool {
	lo, hi, isRange := strings.Cut(literal, " THRU ")
	if !isRange {
		return literal == text
	}
	loN, loErr := strconv.ParseInt(strings.TrimSpace(lo), 10, 64)
	hiN, hiErr := strconv.ParseInt(strings.TrimSpace(hi), 10, 64)
	if loErr == nil && hiErr == nil {
		n, err := strconv.ParseInt(text, 10, 64)
		return err == nil && n >= loN && n <= hiN
	}
	return text >= lo && text <= hi
}

// File path: internal/backend/dispatcher_test.go
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/nicodishanthj/copybook_engine/internal/filestore"
)

// memStore is an in-memory Store for backend tests.
type memStore struct {
	mu   sync.Mutex
	refs map[string][]byte
	seq  int
}

func newMemStore() *memStore {
	return &memStore{refs: map[string][]byte{}}
}

func (s *memStore) Put(_ context.Context, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	ref := fmt.Sprintf("ref-%d", s.seq)
	s.refs[ref] = append([]byte(nil), data...)
	return ref, nil
}

func (s *memStore) Get(_ context.Context, ref string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.refs[ref]
	if !ok {
		return nil, filestore.ErrNotFound
	}
	return data, nil
}

func (s *memStore) Stat(_ context.Context, ref string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.refs[ref]
	if !ok {
		return 0, filestore.ErrNotFound
	}
	return int64(len(data)), nil
}

func (s *memStore) Delete(_ context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refs, ref)
	return nil
}

// stubBackend is a scripted Backend for dispatch tests.
type stubBackend struct {
	name  string
	caps  Capability
	err   error
	calls int
}

func (s *stubBackend) Name() string             { return s.name }
func (s *stubBackend) Capabilities() Capability { return s.caps }

func (s *stubBackend) Parse(context.Context, string, string, Options) (*ParseResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &ParseResult{BackendUsed: s.name}, nil
}

func fullCaps() Capability {
	return Capability{Occurs: true, Redefines: true, PackedDecimal: true, VariableOccurs: true, LargeFileParallel: true}
}

func bulkCaps() Capability {
	c := fullCaps()
	c.VariableOccurs = false
	return c
}

func stageRefs(t *testing.T, store *memStore, copybook string, dataLen int) (string, string) {
	t.Helper()
	copybookRef, err := store.Put(context.Background(), []byte(copybook))
	if err != nil {
		t.Fatalf("stage copybook: %v", err)
	}
	dataRef, err := store.Put(context.Background(), bytes.Repeat([]byte{0x40}, dataLen))
	if err != nil {
		t.Fatalf("stage data: %v", err)
	}
	return copybookRef, dataRef
}

const plainCopybook = "01 REC.\n   05 A PIC X(4).\n"

func TestDispatcherFallsBackOnceOnTimeout(t *testing.T) {
	store := newMemStore()
	copybookRef, dataRef := stageRefs(t, store, plainCopybook, 100)

	bulk := &stubBackend{name: "bulk", caps: bulkCaps(),
		err: &Error{Backend: "bulk", Kind: KindTimeout, Cause: context.DeadlineExceeded}}
	inProcess := &stubBackend{name: InProcessName, caps: fullCaps()}
	d := NewDispatcher(store, inProcess, bulk)

	// Data is larger than the threshold, so the bulk pipeline goes first.
	result, err := d.Parse(context.Background(), copybookRef, dataRef, Options{SizeThresholdBytes: 10})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if result.BackendUsed != InProcessName {
		t.Fatalf("expected fallback result, got %q", result.BackendUsed)
	}
	if bulk.calls != 1 || inProcess.calls != 1 {
		t.Fatalf("expected exactly one attempt per backend, got bulk=%d in_process=%d", bulk.calls, inProcess.calls)
	}
}

func TestDispatcherHonorsExplicitPreference(t *testing.T) {
	store := newMemStore()
	copybookRef, dataRef := stageRefs(t, store, plainCopybook, 8)

	bulk := &stubBackend{name: "bulk", caps: bulkCaps()}
	inProcess := &stubBackend{name: InProcessName, caps: fullCaps()}
	d := NewDispatcher(store, inProcess, bulk)

	result, err := d.Parse(context.Background(), copybookRef, dataRef, Options{Prefer: PreferBulk})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if result.BackendUsed != "bulk" || inProcess.calls != 0 {
		t.Fatalf("preference ignored: used %q, in_process calls %d", result.BackendUsed, inProcess.calls)
	}
}

func TestDispatcherCapabilityOverridesPreference(t *testing.T) {
	store := newMemStore()
	varCopybook := "01 REC.\n   05 CNT PIC 9(1).\n   05 ITEM PIC X OCCURS 1 TO 3 TIMES DEPENDING ON CNT.\n"
	copybookRef, dataRef := stageRefs(t, store, varCopybook, 8)

	bulk := &stubBackend{name: "bulk", caps: bulkCaps()}
	inProcess := &stubBackend{name: InProcessName, caps: fullCaps()}
	d := NewDispatcher(store, inProcess, bulk)

	// Bulk is preferred but cannot serve variable-length OCCURS, so the
	// dispatcher switches before the first attempt.
	result, err := d.Parse(context.Background(), copybookRef, dataRef, Options{Prefer: PreferBulk})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if result.BackendUsed != InProcessName || bulk.calls != 0 {
		t.Fatalf("capability override failed: used %q, bulk calls %d", result.BackendUsed, bulk.calls)
	}
}

func TestDispatcherSmallInputStaysInProcess(t *testing.T) {
	store := newMemStore()
	copybookRef, dataRef := stageRefs(t, store, plainCopybook, 8)

	bulk := &stubBackend{name: "bulk", caps: bulkCaps()}
	inProcess := &stubBackend{name: InProcessName, caps: fullCaps()}
	d := NewDispatcher(store, inProcess, bulk)

	result, err := d.Parse(context.Background(), copybookRef, dataRef, Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if result.BackendUsed != InProcessName || bulk.calls != 0 {
		t.Fatalf("expected in-process for small input, got %q (bulk calls %d)", result.BackendUsed, bulk.calls)
	}
}

func TestDispatcherBothBackendsFailing(t *testing.T) {
	store := newMemStore()
	copybookRef, dataRef := stageRefs(t, store, plainCopybook, 8)

	primaryErr := &Error{Backend: InProcessName, Kind: KindTimeout}
	fallbackErr := &Error{Backend: "bulk", Kind: KindUnavailable}
	bulk := &stubBackend{name: "bulk", caps: bulkCaps(), err: fallbackErr}
	inProcess := &stubBackend{name: InProcessName, caps: fullCaps(), err: primaryErr}
	d := NewDispatcher(store, inProcess, bulk)

	_, err := d.Parse(context.Background(), copybookRef, dataRef, Options{})
	var failed *DecodingFailed
	if !errors.As(err, &failed) {
		t.Fatalf("expected DecodingFailed, got %v", err)
	}
	if !errors.Is(failed.Primary, primaryErr) || !errors.Is(failed.Fallback, fallbackErr) {
		t.Fatalf("aggregate does not carry both causes: %+v", failed)
	}
	if bulk.calls != 1 || inProcess.calls != 1 {
		t.Fatalf("more than one attempt per backend: bulk=%d in_process=%d", bulk.calls, inProcess.calls)
	}
}

func TestDispatcherNonRetryableErrorShortCircuits(t *testing.T) {
	store := newMemStore()
	copybookRef, dataRef := stageRefs(t, store, plainCopybook, 8)

	parseErr := errors.New("copybook is malformed")
	bulk := &stubBackend{name: "bulk", caps: bulkCaps()}
	inProcess := &stubBackend{name: InProcessName, caps: fullCaps(), err: parseErr}
	d := NewDispatcher(store, inProcess, bulk)

	_, err := d.Parse(context.Background(), copybookRef, dataRef, Options{})
	if !errors.Is(err, parseErr) {
		t.Fatalf("expected the original error, got %v", err)
	}
	if bulk.calls != 0 {
		t.Fatal("non-retryable failure must not trigger the fallback")
	}
}

func TestDispatcherWithoutBulkBackend(t *testing.T) {
	store := newMemStore()
	copybookRef, dataRef := stageRefs(t, store, plainCopybook, 1<<22)

	inProcess := &stubBackend{name: InProcessName, caps: fullCaps()}
	d := NewDispatcher(store, inProcess, nil)

	result, err := d.Parse(context.Background(), copybookRef, dataRef, Options{SizeThresholdBytes: 10})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if result.BackendUsed != InProcessName {
		t.Fatalf("expected in-process, got %q", result.BackendUsed)
	}
}

func TestRetryableClassification(t *testing.T) {
	if !Retryable(&Error{Backend: "bulk", Kind: KindUnavailable}) {
		t.Fatal("backend errors must be retryable")
	}
	if !Retryable(fmt.Errorf("wrapped: %w", &Error{Backend: "bulk", Kind: KindPreprocessing})) {
		t.Fatal("wrapped backend errors must be retryable")
	}
	if Retryable(errors.New("plain failure")) {
		t.Fatal("plain errors must not be retryable")
	}
}

func TestRequiredCapabilitiesScan(t *testing.T) {
	req := RequiredCapabilities([]byte(`
01 REC.
   05 CNT PIC 9(3) COMP-3.
   05 ITEM PIC X OCCURS 1 TO 5 TIMES DEPENDING ON CNT.
`))
	if !req.Occurs || !req.PackedDecimal || !req.VariableOccurs || req.Redefines {
		t.Fatalf("unexpected requirements: %+v", req)
	}
	if bulkCaps().Supports(req) {
		t.Fatal("bulk capabilities must not cover variable occurs")
	}
	if !fullCaps().Supports(req) {
		t.Fatal("full capabilities must cover the scan")
	}
}

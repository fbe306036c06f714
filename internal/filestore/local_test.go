// File path: internal/filestore/local_test.go
package filestore

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Local {
	t.Helper()
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestLocalPutGetRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	payload := []byte("01 REC.\n   05 A PIC X(4).\n")
	ref, err := store.Put(ctx, payload)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ref == "" {
		t.Fatal("Put returned an empty reference")
	}

	got, err := store.Get(ctx, ref)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round trip mismatch: %q", got)
	}

	size, err := store.Stat(ctx, ref)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if size != int64(len(payload)) {
		t.Fatalf("expected size %d, got %d", len(payload), size)
	}
}

func TestLocalDistinctReferences(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, err := store.Put(ctx, []byte("same bytes"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	second, err := store.Put(ctx, []byte("same bytes"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if first == second {
		t.Fatal("each Put must mint a fresh reference")
	}
}

func TestLocalUnknownReference(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.Get(ctx, "not-a-ref"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get: expected ErrNotFound, got %v", err)
	}
	if _, err := store.Stat(ctx, "not-a-ref"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Stat: expected ErrNotFound, got %v", err)
	}
}

func TestLocalDelete(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	ref, err := store.Put(ctx, []byte("transient"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Delete(ctx, ref); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, ref); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted reference still resolves: %v", err)
	}
	// Deleting an unknown reference is not an error.
	if err := store.Delete(ctx, ref); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestConfigMergeAndDefaults(t *testing.T) {
	base := Config{Root: "/base/root"}
	merged := base.Merge(Config{CatalogPath: "/other/catalog.db", BusyTimeout: 2 * time.Second})
	if merged.Root != "/base/root" || merged.CatalogPath != "/other/catalog.db" || merged.BusyTimeout != 2*time.Second {
		t.Fatalf("unexpected merge result: %+v", merged)
	}

	var cfg Config
	cfg.BusyTimeoutString = "250ms"
	cfg.applyDefaults()
	if cfg.Root == "" || cfg.CatalogPath == "" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.BusyTimeout != 250*time.Millisecond {
		t.Fatalf("duration string not honored: %v", cfg.BusyTimeout)
	}
}

func TestConfigEnvOverrides(t *testing.T) {
	t.Setenv("COPYBOOK_STORE_ROOT", "/env/root")
	t.Setenv("COPYBOOK_STORE_BUSY_TIMEOUT", "1s")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Root != "/env/root" || cfg.BusyTimeout != time.Second {
		t.Fatalf("environment overrides not applied: %+v", cfg)
	}
}

// File path: cmd/cbe/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/nicodishanthj/copybook_engine/internal/backend"
	"github.com/nicodishanthj/copybook_engine/internal/backend/bulk"
	"github.com/nicodishanthj/copybook_engine/internal/common"
	"github.com/nicodishanthj/copybook_engine/internal/decoder"
	"github.com/nicodishanthj/copybook_engine/internal/filestore"
	"github.com/nicodishanthj/copybook_engine/internal/schema"
)

func main() {
	logger := common.Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := godotenv.Load(); err != nil {
		logger.Debug("cbe: .env file not loaded", "error", err)
	}

	copybookPath := flag.String("copybook", "", "path to the copybook source")
	dataPath := flag.String("data", "", "path to the fixed-length data file")
	outPath := flag.String("out", "", "write decoded records as JSON lines to this file (default stdout)")
	storeRoot := flag.String("store", defaultStoreRoot(), "root directory of the local reference store")
	prefer := flag.String("backend", "", "backend preference: in_process or bulk (default automatic)")
	codePage := flag.String("codepage", decoder.DefaultCodePage,
		"legacy text code page ("+strings.Join(decoder.CodePageNames(), ", ")+")")
	recordLength := flag.Int("record-length", 0, "override the schema-derived record length")
	threshold := flag.Int64("threshold", backend.DefaultSizeThreshold, "input size in bytes above which the bulk backend is preferred")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall parse deadline")
	trim := flag.Bool("trim", true, "trim trailing spaces from alphanumeric fields")
	includeFiller := flag.Bool("include-filler", false, "materialize FILLER fields in decoded output")
	flag.Parse()

	if *copybookPath == "" || *dataPath == "" {
		fmt.Fprintln(os.Stderr, "usage: cbe -copybook layout.cpy -data records.bin [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	logger.Info("cbe: startup", "copybook", *copybookPath, "data", *dataPath)

	store, err := filestore.Open(*storeRoot)
	if err != nil {
		fatal(logger, "open reference store", err)
	}
	defer store.Close()

	copybookRef, dataRef, err := stageInputs(ctx, store, *copybookPath, *dataPath)
	if err != nil {
		fatal(logger, "stage inputs", err)
	}
	defer store.Delete(context.Background(), copybookRef)
	defer store.Delete(context.Background(), dataRef)

	cache, err := schema.NewCache(0)
	if err != nil {
		fatal(logger, "init schema cache", err)
	}
	inProcess := backend.NewInProcess(store, cache)

	var bulkBackend backend.Backend
	if bulk.Enabled() {
		client, err := bulk.NewFromEnv(store)
		if err != nil {
			fatal(logger, "init bulk backend", err)
		}
		bulkBackend = client
	}
	dispatcher := backend.NewDispatcher(store, inProcess, bulkBackend)

	opts := backend.Options{
		Prefer:             backend.Preference(strings.TrimSpace(*prefer)),
		CodePage:           *codePage,
		TrimTrailingSpaces: *trim,
		IncludeFiller:      *includeFiller,
		RecordLength:       *recordLength,
		SizeThresholdBytes: *threshold,
		Timeout:            *timeout,
	}
	result, err := dispatcher.Parse(ctx, copybookRef, dataRef, opts)
	if err != nil {
		fatal(logger, "parse", err)
	}

	if err := writeRecords(*outPath, result); err != nil {
		fatal(logger, "write output", err)
	}
	for _, warning := range result.Warnings {
		logger.Warn("cbe: "+warning.Kind, "record", warning.RecordIndex, "detail", warning.Detail)
	}
	logger.Info("cbe: done",
		"backend", result.BackendUsed,
		"fields", len(result.Schema.Fields),
		"record_length", result.Schema.RecordLength,
		"records", len(result.Records),
		"warnings", len(result.Warnings))
}

func stageInputs(ctx context.Context, store filestore.Store, copybookPath, dataPath string) (string, string, error) {
	copybookBytes, err := os.ReadFile(copybookPath)
	if err != nil {
		return "", "", fmt.Errorf("read copybook: %w", err)
	}
	dataBytes, err := os.ReadFile(dataPath)
	if err != nil {
		return "", "", fmt.Errorf("read data: %w", err)
	}
	copybookRef, err := store.Put(ctx, copybookBytes)
	if err != nil {
		return "", "", fmt.Errorf("stage copybook: %w", err)
	}
	dataRef, err := store.Put(ctx, dataBytes)
	if err != nil {
		return "", "", fmt.Errorf("stage data: %w", err)
	}
	return copybookRef, dataRef, nil
}

func writeRecords(path string, result *backend.ParseResult) error {
	out := os.Stdout
	if strings.TrimSpace(path) != "" {
		file, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer file.Close()
		out = file
	}
	enc := json.NewEncoder(out)
	for i := range result.Records {
		if err := enc.Encode(&result.Records[i]); err != nil {
			return fmt.Errorf("encode record %d: %w", i, err)
		}
	}
	return nil
}

func defaultStoreRoot() string {
	if root := strings.TrimSpace(os.Getenv("COPYBOOK_STORE_ROOT")); root != "" {
		return root
	}
	return filepath.Join(os.TempDir(), "copybook-store")
}

func fatal(logger *slog.Logger, stage string, err error) {
	logger.Error("cbe: "+stage+" failed", "error", err)
	fmt.Fprintf(os.Stderr, "%s error: %v\n", stage, err)
	os.Exit(1)
}

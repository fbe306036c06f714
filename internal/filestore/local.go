// File path: internal/filestore/local.go
package filestore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nicodishanthj/copybook_engine/internal/common"
)

// Local stores payload bytes as files under a root directory with reference
// rows in a SQLite catalog. References are opaque UUIDs.
type Local struct {
	cfg Config
	db  *sqlx.DB
}

type refRow struct {
	ID        string    `db:"id"`
	Path      string    `db:"path"`
	Size      int64     `db:"size"`
	SHA256    string    `db:"sha256"`
	CreatedAt time.Time `db:"created_at"`
}

// Open constructs a Local store from the environment configuration; an
// explicit root overrides the configured one.
func Open(root string) (*Local, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	if trimmed := strings.TrimSpace(root); trimmed != "" {
		cfg.Root = trimmed
		cfg.CatalogPath = filepath.Join(trimmed, "catalog.db")
	}
	return OpenWithConfig(cfg)
}

// OpenWithConfig constructs a Local store, creating the root directory and
// migrating the catalog schema on first use.
func OpenWithConfig(cfg Config) (*Local, error) {
	cfg.applyDefaults()
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	abs, err := filepath.Abs(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("resolve catalog path: %w", err)
	}
	busy := int(cfg.BusyTimeout / time.Millisecond)
	if busy <= 0 {
		busy = 5000
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", abs, busy)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.BusyTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping catalog: %w", err)
	}
	store := &Local{cfg: cfg, db: db}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	common.Logger().Debug("filestore: local store opened", "root", cfg.Root)
	return store, nil
}

// Close releases the catalog connection.
func (s *Local) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Local) migrate(ctx context.Context) error {
	const schema = `CREATE TABLE IF NOT EXISTS refs (
                id TEXT PRIMARY KEY,
                path TEXT NOT NULL,
                size INTEGER NOT NULL,
                sha256 TEXT NOT NULL,
                created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate catalog: %w", err)
	}
	return nil
}

// Put writes the payload under a fresh UUID and records it in the catalog.
func (s *Local) Put(ctx context.Context, data []byte) (string, error) {
	if s == nil || s.db == nil {
		return "", errors.New("filestore: local store not initialised")
	}
	id := uuid.NewString()
	path := filepath.Join(s.cfg.Root, id)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write payload: %w", err)
	}
	sum := sha256.Sum256(data)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO refs (id, path, size, sha256) VALUES (?, ?, ?, ?)`,
		id, path, int64(len(data)), hex.EncodeToString(sum[:]))
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("catalog payload: %w", err)
	}
	return id, nil
}

// Get resolves a reference to its payload bytes.
func (s *Local) Get(ctx context.Context, ref string) ([]byte, error) {
	row, err := s.lookup(ctx, ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(row.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return data, nil
}

// Stat reports the catalogued payload size.
func (s *Local) Stat(ctx context.Context, ref string) (int64, error) {
	row, err := s.lookup(ctx, ref)
	if err != nil {
		return 0, err
	}
	return row.Size, nil
}

// Delete removes the payload and its catalog row.
func (s *Local) Delete(ctx context.Context, ref string) error {
	row, err := s.lookup(ctx, ref)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := os.Remove(row.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove payload: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM refs WHERE id = ?`, ref); err != nil {
		return fmt.Errorf("remove catalog row: %w", err)
	}
	return nil
}

func (s *Local) lookup(ctx context.Context, ref string) (refRow, error) {
	if s == nil || s.db == nil {
		return refRow{}, errors.New("filestore: local store not initialised")
	}
	var row refRow
	err := s.db.GetContext(ctx, &row, `SELECT id, path, size, sha256, created_at FROM refs WHERE id = ?`, ref)
	if errors.Is(err, sql.ErrNoRows) {
		return refRow{}, ErrNotFound
	}
	if err != nil {
		return refRow{}, fmt.Errorf("lookup reference: %w", err)
	}
	return row, nil
}

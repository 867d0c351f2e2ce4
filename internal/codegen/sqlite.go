// SPDX-License-Identifier: MPL-2.0

package codegen

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// StoreFileName is the fingerprint database file inside the cache directory.
const StoreFileName = "codegen.db"

// SQLiteStore implements FingerprintStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// OpenSQLiteStore opens or creates the fingerprint database at path. Use
// ":memory:" for a throwaway database.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// one connection: a ":memory:" database is per connection
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS fingerprints (
		unit TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		files TEXT NOT NULL,
		updated INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get returns the record of unit.
func (s *SQLiteStore) Get(ctx context.Context, unit string) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rec Record
	var files []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT fingerprint, files FROM fingerprints WHERE unit = ?", unit,
	).Scan(&rec.Fingerprint, &files)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("query fingerprint: %w", err)
	}
	if err := json.Unmarshal(files, &rec.Files); err != nil {
		return Record{}, false, fmt.Errorf("unmarshal files: %w", err)
	}
	return rec, true, nil
}

// Put replaces the record of unit.
func (s *SQLiteStore) Put(ctx context.Context, unit string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := json.Marshal(rec.Files)
	if err != nil {
		return fmt.Errorf("marshal files: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO fingerprints (unit, fingerprint, files, updated) VALUES (?, ?, ?, ?)
		ON CONFLICT(unit) DO UPDATE SET fingerprint = excluded.fingerprint, files = excluded.files, updated = excluded.updated`,
		unit, rec.Fingerprint, string(files), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert fingerprint: %w", err)
	}
	return nil
}

// Delete forgets unit.
func (s *SQLiteStore) Delete(ctx context.Context, unit string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, "DELETE FROM fingerprints WHERE unit = ?", unit); err != nil {
		return fmt.Errorf("delete fingerprint: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

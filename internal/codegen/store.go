// SPDX-License-Identifier: MPL-2.0

package codegen

import (
	"context"
	"slices"
	"sync"
)

type (
	// Record is what the store remembers about a unit's last generation.
	Record struct {
		Fingerprint string
		// Files are the generated files, slash-separated and relative to the
		// unit's output directory, sorted.
		Files []string
	}

	// FingerprintStore persists unit records between runs. Implementations
	// must be safe for concurrent use.
	FingerprintStore interface {
		Get(ctx context.Context, unit string) (Record, bool, error)
		Put(ctx context.Context, unit string, rec Record) error
		Delete(ctx context.Context, unit string) error
		Close() error
	}

	// MemoryStore is a FingerprintStore that lives for one process.
	MemoryStore struct {
		mu      sync.RWMutex
		records map[string]Record
	}
)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Get returns the record of unit.
func (s *MemoryStore) Get(_ context.Context, unit string) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[unit]
	if !ok {
		return Record{}, false, nil
	}
	return Record{Fingerprint: rec.Fingerprint, Files: slices.Clone(rec.Files)}, true, nil
}

// Put replaces the record of unit.
func (s *MemoryStore) Put(_ context.Context, unit string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[unit] = Record{Fingerprint: rec.Fingerprint, Files: slices.Clone(rec.Files)}
	return nil
}

// Delete forgets unit.
func (s *MemoryStore) Delete(_ context.Context, unit string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, unit)
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// SPDX-License-Identifier: MPL-2.0

package repository

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/masonbuild/mason/pkg/coord"
)

// Memory is an in-process MetadataSource and ArtifactLocator. Coordinates
// that were never added are treated as leaves with no dependencies.
type Memory struct {
	mu        sync.RWMutex
	deps      map[string][]Dependency
	platforms map[string]map[coord.Coordinate]coord.Version
	artifacts map[string]string
}

// NewMemory returns an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{
		deps:      make(map[string][]Dependency),
		platforms: make(map[string]map[coord.Coordinate]coord.Version),
		artifacts: make(map[string]string),
	}
}

// Add records the dependencies of c at v, replacing any previous entry.
func (m *Memory) Add(c coord.Coordinate, v coord.Version, deps ...Dependency) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deps[memoryKey(c, v)] = slices.Clone(deps)
}

// AddPlatform records the dependency-management table of a BOM.
func (m *Memory) AddPlatform(c coord.Coordinate, v coord.Version, managed map[coord.Coordinate]coord.Version) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.platforms[memoryKey(c, v)] = maps.Clone(managed)
}

// AddArtifact records the archive path for c at v.
func (m *Memory) AddArtifact(c coord.Coordinate, v coord.Version, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifacts[memoryKey(c, v)] = path
}

// Dependencies implements MetadataSource.
func (m *Memory) Dependencies(ctx context.Context, c coord.Coordinate, v coord.Version) ([]Dependency, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.deps[memoryKey(c, v)]), nil
}

// ManagedVersions implements MetadataSource.
func (m *Memory) ManagedVersions(ctx context.Context, c coord.Coordinate, v coord.Version) (map[coord.Coordinate]coord.Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	managed, ok := m.platforms[memoryKey(c, v)]
	if !ok {
		return nil, &NotFoundError{Coordinate: c, Version: v}
	}
	return maps.Clone(managed), nil
}

// ArtifactPath implements ArtifactLocator.
func (m *Memory) ArtifactPath(c coord.Coordinate, v coord.Version) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.artifacts[memoryKey(c, v)]
	if !ok {
		return "", &NotFoundError{Coordinate: c, Version: v}
	}
	return p, nil
}

func memoryKey(c coord.Coordinate, v coord.Version) string {
	return c.Key() + "@" + string(v)
}

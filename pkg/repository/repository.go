// SPDX-License-Identifier: MPL-2.0

package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/masonbuild/mason/pkg/coord"
)

// ErrNotFound is the sentinel error for metadata or archives missing from a repository.
var ErrNotFound = errors.New("artifact not found")

type (
	// Dependency is one dependency declared by a library's metadata.
	Dependency struct {
		Coordinate coord.Coordinate
		Version    coord.Version
		Scope      coord.Scope
		// Optional dependencies are never followed transitively.
		Optional bool
		// Exclusions are "group" or "group:name" patterns pruned beneath this edge.
		Exclusions []string
	}

	// MetadataSource answers dependency metadata questions for pinned coordinates.
	// Implementations must be safe for concurrent use.
	MetadataSource interface {
		// Dependencies returns the declared dependencies of c at version v.
		Dependencies(ctx context.Context, c coord.Coordinate, v coord.Version) ([]Dependency, error)
		// ManagedVersions returns the dependency-management table of a platform
		// (BOM) artifact.
		ManagedVersions(ctx context.Context, c coord.Coordinate, v coord.Version) (map[coord.Coordinate]coord.Version, error)
	}

	// ArtifactLocator maps a pinned coordinate to its archive on disk.
	ArtifactLocator interface {
		ArtifactPath(c coord.Coordinate, v coord.Version) (string, error)
	}

	// NotFoundError reports a coordinate that the repository does not hold.
	NotFoundError struct {
		Coordinate coord.Coordinate
		Version    coord.Version
		Path       string
	}
)

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s:%s not found at %s", e.Coordinate, e.Version, e.Path)
	}
	return fmt.Sprintf("%s:%s not found", e.Coordinate, e.Version)
}

// Unwrap returns ErrNotFound for errors.Is() compatibility.
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

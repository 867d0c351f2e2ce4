// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/exp/maps"

	"github.com/masonbuild/mason/pkg/coord"
	"github.com/masonbuild/mason/pkg/repository"
)

// OriginCatalog marks a pin declared directly in the [constraints] table.
const OriginCatalog = "constraints"

var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_.-]+)\}`)

var (
	// ErrUnknownProperty is returned when a placeholder names an undefined property.
	ErrUnknownProperty = errors.New("unknown property")
	// ErrPropertyCycle is returned when properties reference each other in a loop.
	ErrPropertyCycle = errors.New("property reference cycle")
	// ErrUnknownProfile is returned when an active profile is not declared.
	ErrUnknownProfile = errors.New("unknown profile")
)

type (
	// ConstraintTable is the build-wide coordinate to version pin list. It is
	// built once per invocation and never mutated afterwards; all methods are
	// safe for concurrent use.
	ConstraintTable struct {
		pins       map[coord.Coordinate]coord.Version
		origins    map[coord.Coordinate]string
		properties map[string]string
		profiles   []string
	}

	// PropertyError reports a property that could not be resolved.
	PropertyError struct {
		Name  string
		Chain []string
		Err   error
	}

	catalogFile struct {
		Properties  map[string]string         `toml:"properties"`
		Profiles    map[string]profileSection `toml:"profiles"`
		Constraints map[string]string         `toml:"constraints"`
		Platforms   []platformEntry           `toml:"platforms"`
	}

	profileSection struct {
		Properties map[string]string `toml:"properties"`
	}

	platformEntry struct {
		Coordinate string `toml:"coordinate"`
	}
)

// Error implements the error interface.
func (e *PropertyError) Error() string {
	if len(e.Chain) > 0 {
		return fmt.Sprintf("property %q: %v (%s)", e.Name, e.Err, strings.Join(e.Chain, " -> "))
	}
	return fmt.Sprintf("property %q: %v", e.Name, e.Err)
}

// Unwrap returns the underlying sentinel.
func (e *PropertyError) Unwrap() error { return e.Err }

// NewConstraintTable builds a table from explicit pins. Used by tests and tools
// that do not read a catalog file.
func NewConstraintTable(pins map[coord.Coordinate]coord.Version) *ConstraintTable {
	t := &ConstraintTable{
		pins:       make(map[coord.Coordinate]coord.Version, len(pins)),
		origins:    make(map[coord.Coordinate]string, len(pins)),
		properties: map[string]string{},
	}
	for c, v := range pins {
		t.pins[c] = v
		t.origins[c] = OriginCatalog
	}
	return t
}

// LoadConstraints reads the TOML version catalog at path with the given
// profiles active. source answers platform imports and may be nil when the
// catalog declares none.
func LoadConstraints(ctx context.Context, path string, profiles []string, source repository.MetadataSource) (*ConstraintTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read version catalog: %w", err)
	}
	t, err := ParseConstraints(ctx, data, profiles, source)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ParseConstraints parses version catalog bytes.
func ParseConstraints(ctx context.Context, data []byte, profiles []string, source repository.MetadataSource) (*ConstraintTable, error) {
	var f catalogFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse version catalog: %w", err)
	}

	raw := make(map[string]string, len(f.Properties))
	maps.Copy(raw, f.Properties)
	for _, name := range profiles {
		p, ok := f.Profiles[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s (declared: %s)", ErrUnknownProfile, name, strings.Join(sortedKeys(f.Profiles), ", "))
		}
		maps.Copy(raw, p.Properties)
	}

	props, err := resolveProperties(raw)
	if err != nil {
		return nil, err
	}

	t := &ConstraintTable{
		pins:       make(map[coord.Coordinate]coord.Version, len(f.Constraints)),
		origins:    make(map[coord.Coordinate]string, len(f.Constraints)),
		properties: props,
		profiles:   slices.Clone(profiles),
	}

	for _, key := range sortedKeys(f.Constraints) {
		c, err := coord.Parse(key)
		if err != nil {
			return nil, fmt.Errorf("constraints: %w", err)
		}
		v, err := expand(f.Constraints[key], props)
		if err != nil {
			return nil, fmt.Errorf("constraints.%q: %w", key, err)
		}
		version := coord.Version(v)
		if err := version.Validate(); err != nil {
			return nil, fmt.Errorf("constraints.%q: %w", key, err)
		}
		t.pins[c] = version
		t.origins[c] = OriginCatalog
	}

	for i, p := range f.Platforms {
		raw, err := expand(p.Coordinate, props)
		if err != nil {
			return nil, fmt.Errorf("platforms[%d]: %w", i, err)
		}
		bom, bomVersion, err := coord.ParsePinned(raw)
		if err != nil {
			return nil, fmt.Errorf("platforms[%d]: %w", i, err)
		}
		if source == nil {
			return nil, fmt.Errorf("platforms[%d]: %s requires a repository", i, raw)
		}
		managed, err := source.ManagedVersions(ctx, bom, bomVersion)
		if err != nil {
			return nil, fmt.Errorf("platforms[%d]: %w", i, err)
		}
		origin := "platform " + raw
		added := 0
		for c, v := range managed {
			if _, ok := t.pins[c]; ok {
				continue
			}
			t.pins[c] = v
			t.origins[c] = origin
			added++
		}
		slog.Debug("imported platform", "platform", raw, "managed", len(managed), "added", added)
	}

	return t, nil
}

// Lookup returns the pinned version for c.
func (t *ConstraintTable) Lookup(c coord.Coordinate) (coord.Version, bool) {
	v, ok := t.pins[c]
	return v, ok
}

// Origin names where the pin for c came from: OriginCatalog or "platform g:n:v".
func (t *ConstraintTable) Origin(c coord.Coordinate) string { return t.origins[c] }

// Len returns the number of pins.
func (t *ConstraintTable) Len() int { return len(t.pins) }

// Coordinates returns all pinned coordinates sorted by key.
func (t *ConstraintTable) Coordinates() []coord.Coordinate {
	cs := maps.Keys(t.pins)
	slices.SortFunc(cs, func(a, b coord.Coordinate) int { return strings.Compare(a.Key(), b.Key()) })
	return cs
}

// Property returns a resolved catalog property.
func (t *ConstraintTable) Property(name string) (string, bool) {
	v, ok := t.properties[name]
	return v, ok
}

// Profiles returns the profiles that were active when the table was built.
func (t *ConstraintTable) Profiles() []string { return slices.Clone(t.profiles) }

// resolveProperties expands placeholders inside property values.
func resolveProperties(raw map[string]string) (map[string]string, error) {
	resolved := make(map[string]string, len(raw))
	var visit func(name string, chain []string) (string, error)
	visit = func(name string, chain []string) (string, error) {
		if v, ok := resolved[name]; ok {
			return v, nil
		}
		if slices.Contains(chain, name) {
			return "", &PropertyError{Name: name, Chain: append(chain, name), Err: ErrPropertyCycle}
		}
		value, ok := raw[name]
		if !ok {
			return "", &PropertyError{Name: name, Chain: chain, Err: ErrUnknownProperty}
		}
		chain = append(chain, name)
		var firstErr error
		out := placeholderPattern.ReplaceAllStringFunc(value, func(m string) string {
			if firstErr != nil {
				return m
			}
			v, err := visit(m[2:len(m)-1], chain)
			if err != nil {
				firstErr = err
				return m
			}
			return v
		})
		if firstErr != nil {
			return "", firstErr
		}
		resolved[name] = out
		return out, nil
	}

	for _, name := range sortedKeys(raw) {
		if _, err := visit(name, nil); err != nil {
			return nil, err
		}
	}
	return resolved, nil
}

// expand substitutes resolved properties into s.
func expand(s string, props map[string]string) (string, error) {
	var firstErr error
	out := placeholderPattern.ReplaceAllStringFunc(s, func(m string) string {
		name := m[2 : len(m)-1]
		v, ok := props[name]
		if !ok && firstErr == nil {
			firstErr = &PropertyError{Name: name, Err: ErrUnknownProperty}
		}
		return v
	})
	return out, firstErr
}

func sortedKeys[V any](m map[string]V) []string {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}

// SPDX-License-Identifier: MPL-2.0

package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/masonbuild/mason/pkg/coord"
)

// maxParentDepth bounds POM parent chains.
const maxParentDepth = 32

type (
	// Local reads a Maven-layout repository rooted at a directory:
	//
	//	<root>/<group with dots as slashes>/<name>/<version>/<name>-<version>[-<classifier>].jar
	//
	// Parsed POMs are cached for the lifetime of the value. Local is safe for
	// concurrent use.
	Local struct {
		root string

		mu     sync.RWMutex
		poms   map[string]*effectivePOM
		flight singleflight.Group
	}

	// PomError reports a POM that could not be read or interpreted.
	PomError struct {
		Path string
		Err  error
	}
)

// Error implements the error interface.
func (e *PomError) Error() string { return fmt.Sprintf("pom %s: %v", e.Path, e.Err) }

// Unwrap returns the underlying error.
func (e *PomError) Unwrap() error { return e.Err }

// NewLocal returns a repository reading from root.
func NewLocal(root string) *Local {
	return &Local{root: root, poms: make(map[string]*effectivePOM)}
}

// Root returns the repository root directory.
func (l *Local) Root() string { return l.root }

// ArtifactPath returns the archive path for c at v, or a NotFoundError.
func (l *Local) ArtifactPath(c coord.Coordinate, v coord.Version) (string, error) {
	p := l.path(c, v, "jar")
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", &NotFoundError{Coordinate: c, Version: v, Path: p}
		}
		return "", err
	}
	return p, nil
}

// Dependencies implements MetadataSource.
func (l *Local) Dependencies(ctx context.Context, c coord.Coordinate, v coord.Version) ([]Dependency, error) {
	eff, err := l.effective(ctx, c, v, nil)
	if err != nil {
		return nil, err
	}
	managed, err := l.managedTable(ctx, eff, nil)
	if err != nil {
		return nil, err
	}

	deps := make([]Dependency, 0, len(eff.deps))
	for _, d := range eff.deps {
		if d.Type != "" && d.Type != "jar" && d.Type != "bundle" {
			continue
		}
		scope, ok := pomScope(d.Scope)
		if !ok {
			continue
		}
		dc := coord.Coordinate{Group: d.GroupID, Name: d.ArtifactID, Classifier: d.Classifier}
		version := exactVersion(d.Version)
		if version == "" {
			version = managed[dc]
		}
		if err := version.Validate(); err != nil {
			return nil, &PomError{
				Path: l.path(c, v, "pom"),
				Err:  fmt.Errorf("dependency %s has no resolvable version: %w", dc, err),
			}
		}
		dep := Dependency{
			Coordinate: dc,
			Version:    version,
			Scope:      scope,
			Optional:   strings.TrimSpace(d.Optional) == "true",
		}
		for _, ex := range d.Exclusions {
			if ex.ArtifactID == "" || ex.ArtifactID == "*" {
				dep.Exclusions = append(dep.Exclusions, ex.GroupID)
				continue
			}
			dep.Exclusions = append(dep.Exclusions, ex.GroupID+":"+ex.ArtifactID)
		}
		deps = append(deps, dep)
	}
	return deps, nil
}

// ManagedVersions implements MetadataSource. Explicit dependencyManagement
// entries take precedence over entries pulled in by import-scoped BOMs.
func (l *Local) ManagedVersions(ctx context.Context, c coord.Coordinate, v coord.Version) (map[coord.Coordinate]coord.Version, error) {
	eff, err := l.effective(ctx, c, v, nil)
	if err != nil {
		return nil, err
	}
	return l.managedTable(ctx, eff, nil)
}

func (l *Local) managedTable(ctx context.Context, eff *effectivePOM, visiting map[string]bool) (map[coord.Coordinate]coord.Version, error) {
	key := eff.coordinate.Key() + ":" + string(eff.version)
	if visiting[key] {
		return nil, &PomError{Path: l.path(eff.coordinate, eff.version, "pom"), Err: errors.New("cyclic BOM import")}
	}
	visiting = withKey(visiting, key)

	table := make(map[coord.Coordinate]coord.Version)
	var imports []pomDependency
	for _, d := range eff.managed {
		if d.Scope == "import" {
			imports = append(imports, d)
			continue
		}
		dc := coord.Coordinate{Group: d.GroupID, Name: d.ArtifactID, Classifier: d.Classifier}
		if v := exactVersion(d.Version); v.Validate() == nil {
			if _, ok := table[dc]; !ok {
				table[dc] = v
			}
		}
	}
	for _, d := range imports {
		bc := coord.Coordinate{Group: d.GroupID, Name: d.ArtifactID}
		bom, err := l.effective(ctx, bc, exactVersion(d.Version), nil)
		if err != nil {
			return nil, err
		}
		sub, err := l.managedTable(ctx, bom, visiting)
		if err != nil {
			return nil, err
		}
		for k, v := range sub {
			if _, ok := table[k]; !ok {
				table[k] = v
			}
		}
	}
	return table, nil
}

// effective loads the POM for c at v and merges its parent chain.
func (l *Local) effective(ctx context.Context, c coord.Coordinate, v coord.Version, visiting map[string]bool) (*effectivePOM, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := c.Group + ":" + c.Name + ":" + string(v)

	l.mu.RLock()
	cached, ok := l.poms[key]
	l.mu.RUnlock()
	if ok {
		return cached, nil
	}

	if visiting[key] {
		return nil, &PomError{Path: l.path(c, v, "pom"), Err: errors.New("cyclic parent chain")}
	}
	if len(visiting) >= maxParentDepth {
		return nil, &PomError{Path: l.path(c, v, "pom"), Err: errors.New("parent chain too deep")}
	}
	visiting = withKey(visiting, key)

	res, err, _ := l.flight.Do(key, func() (any, error) {
		return l.load(ctx, c, v, visiting)
	})
	if err != nil {
		return nil, err
	}
	eff := res.(*effectivePOM)

	l.mu.Lock()
	l.poms[key] = eff
	l.mu.Unlock()
	return eff, nil
}

func (l *Local) load(ctx context.Context, c coord.Coordinate, v coord.Version, visiting map[string]bool) (*effectivePOM, error) {
	p := l.path(coord.Coordinate{Group: c.Group, Name: c.Name}, v, "pom")
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &NotFoundError{Coordinate: c, Version: v, Path: p}
		}
		return nil, &PomError{Path: p, Err: err}
	}
	defer func() { _ = f.Close() }()

	project, err := parsePOM(f)
	if err != nil {
		return nil, &PomError{Path: p, Err: err}
	}
	slog.Debug("loaded pom", "coordinate", c.Key(), "version", v, "path", p)

	var parent *effectivePOM
	if project.Parent != nil {
		pc := coord.Coordinate{Group: project.Parent.GroupID, Name: project.Parent.ArtifactID}
		parent, err = l.effective(ctx, pc, coord.Version(project.Parent.Version), visiting)
		if err != nil {
			return nil, &PomError{Path: p, Err: fmt.Errorf("parent %s: %w", pc, err)}
		}
	}
	return mergeParent(parent, project), nil
}

func (l *Local) path(c coord.Coordinate, v coord.Version, ext string) string {
	file := c.Name + "-" + string(v)
	if c.Classifier != "" && ext == "jar" {
		file += "-" + c.Classifier
	}
	return filepath.Join(l.root, filepath.FromSlash(strings.ReplaceAll(c.Group, ".", "/")), c.Name, string(v), file+"."+ext)
}

// exactVersion unwraps a Maven hard requirement "[1.2.3]". Other range
// expressions are returned unchanged and fail version validation.
func exactVersion(s string) coord.Version {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") && !strings.Contains(s, ",") {
		s = s[1 : len(s)-1]
	}
	return coord.Version(s)
}

func withKey(set map[string]bool, key string) map[string]bool {
	out := make(map[string]bool, len(set)+1)
	for k := range set {
		out[k] = true
	}
	out[key] = true
	return out
}

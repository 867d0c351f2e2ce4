// SPDX-License-Identifier: MPL-2.0

package assembly

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/masonbuild/mason/internal/classfile"
	"github.com/masonbuild/mason/pkg/coord"
)

// ManifestName is the archive manifest entry.
const ManifestName = "META-INF/MANIFEST.MF"

type (
	// source is one contributor to the archive, in precedence order.
	source struct {
		label string
		root  bool
		// exempt sources are never minimized.
		exempt bool
	}

	// entry is one archive member. Entries live in an arena and are
	// referred to by index during minimization.
	entry struct {
		name   string
		data   []byte
		source int
		// orig is the name before relocation, matched by keep patterns.
		orig string
		// sum digests the original bytes of class entries.
		sum [sha256.Size]byte
	}

	// shadow is a duplicate entry that lost to an earlier source.
	shadow struct {
		source int
		sum    [sha256.Size]byte
	}

	// serviceCopy is one source's registration for a service interface.
	serviceCopy struct {
		source    int
		providers []string
	}

	// collection is the state assembly steps transform.
	collection struct {
		sources  []source
		entries  []*entry
		byName   map[string]int
		shadowed map[string][]shadow
		// services maps service interface names to registrations in source order.
		services map[string][]serviceCopy
	}
)

func newCollection() *collection {
	return &collection{
		byName:   make(map[string]int),
		shadowed: make(map[string][]shadow),
		services: make(map[string][]serviceCopy),
	}
}

func (c *collection) addSource(s source) int {
	c.sources = append(c.sources, s)
	return len(c.sources) - 1
}

// add records an entry. The first source providing a name wins; later class
// copies are remembered for conflict detection.
func (c *collection) add(src int, name string, data []byte) {
	if name == ManifestName || strings.HasSuffix(name, "/") {
		return
	}
	if iface, ok := strings.CutPrefix(name, classfile.ServicesDir); ok && iface != "" && !strings.Contains(iface, "/") {
		c.services[iface] = append(c.services[iface], serviceCopy{source: src, providers: classfile.ServiceProviders(data)})
		return
	}
	e := &entry{name: name, data: data, source: src, orig: name}
	if isClass(name) {
		e.sum = sha256.Sum256(data)
	}
	if _, dup := c.byName[name]; dup {
		if isClass(name) {
			c.shadowed[name] = append(c.shadowed[name], shadow{source: src, sum: e.sum})
		}
		return
	}
	c.byName[name] = len(c.entries)
	c.entries = append(c.entries, e)
}

// reindex rebuilds byName after entries were renamed or removed, keeping the
// first entry of each name.
func (c *collection) reindex() {
	c.byName = make(map[string]int, len(c.entries))
	kept := c.entries[:0]
	for _, e := range c.entries {
		if _, dup := c.byName[e.name]; dup {
			if isClass(e.name) {
				c.shadowed[e.name] = append(c.shadowed[e.name], shadow{source: e.source, sum: e.sum})
			}
			continue
		}
		c.byName[e.name] = len(kept)
		kept = append(kept, e)
	}
	c.entries = kept
}

// collectRoot reads the module's own listed entries. A listed entry that
// cannot be read is unreachable.
func (e *Engine) collectRoot(c *collection, req Request) error {
	src := c.addSource(source{label: string(req.Module.ID), root: true, exempt: true})
	for _, name := range req.Output.Entries {
		data, err := os.ReadFile(filepath.Join(req.Output.ClassDir, filepath.FromSlash(name)))
		if err != nil {
			return &AssemblyError{Kind: KindRootUnreachable, Module: req.Module.ID, Entry: name, Err: err}
		}
		c.add(src, name, data)
	}
	return nil
}

// collectClosure reads internal module class directories, sorted by module
// id, then packaged third-party archives in graph order.
func (e *Engine) collectClosure(ctx context.Context, c *collection, req Request) error {
	if req.Graph == nil {
		return nil
	}
	for _, id := range req.Graph.InternalModules(coord.Scope.Packaged) {
		dir, ok := req.Modules[id]
		if !ok {
			return fmt.Errorf("%w: classes of module %s", ErrMissingInput, id)
		}
		src := c.addSource(source{label: string(id)})
		if err := readDir(c, src, dir); err != nil {
			return err
		}
	}

	exempt := make(map[coord.Coordinate]bool)
	if rules := req.Module.Assembly; rules != nil {
		for _, co := range rules.MinimizeExclude {
			exempt[co] = true
		}
	}
	for _, n := range req.Graph.Packaged() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.locator == nil {
			return fmt.Errorf("%w: %s:%s (no repository)", ErrMissingInput, n.Coordinate, n.Version)
		}
		path, err := e.locator.ArtifactPath(n.Coordinate, n.Version)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrMissingInput, err)
		}
		src := c.addSource(source{label: n.Coordinate.Key() + ":" + string(n.Version), exempt: exempt[n.Coordinate]})
		if err := readArchive(c, src, path); err != nil {
			return err
		}
	}
	return nil
}

func readDir(c *collection, src int, dir string) error {
	var names []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return fmt.Errorf("read %s: %w", dir, err)
	}
	slices.Sort(names)
	for _, n := range names {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(n)))
		if err != nil {
			return err
		}
		c.add(src, n, data)
	}
	return nil
}

func readArchive(c *collection, src int, path string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer zr.Close()

	files := slices.Clone(zr.File)
	slices.SortStableFunc(files, func(a, b *zip.File) int { return strings.Compare(a.Name, b.Name) })
	for _, f := range files {
		if f.FileInfo().IsDir() {
			continue
		}
		data, err := readZipFile(f)
		if err != nil {
			return fmt.Errorf("read %s!%s: %w", path, f.Name, err)
		}
		c.add(src, f.Name, data)
	}
	return nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// isClass reports whether an entry is a class in the archive's main
// namespace. Multi-release variants under META-INF are treated as resources.
func isClass(name string) bool {
	return strings.HasSuffix(name, ".class") && !strings.HasPrefix(name, "META-INF/")
}

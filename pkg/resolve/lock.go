// SPDX-License-Identifier: MPL-2.0

package resolve

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/masonbuild/mason/pkg/coord"
	"github.com/masonbuild/mason/pkg/cueutil"
	"github.com/masonbuild/mason/pkg/manifest"
)

const (
	// LockFileName is the workspace lock file written by `mason resolve`.
	LockFileName = "mason.lock.cue"
	// LockVersion is the lock file format version.
	LockVersion = 1
)

//go:embed lock_schema.cue
var lockSchemaSrc []byte

var lockSchema = cueutil.NewSchema(lockSchemaSrc, "#Lock")

type (
	// Lock is the persisted form of a set of resolved graphs. Its rendering
	// depends only on graph content: no timestamps, sorted everywhere.
	Lock struct {
		Modules []*Graph
	}

	lockFile struct {
		Version int            `json:"version"`
		Modules []lockedModule `json:"modules"`
	}

	lockedModule struct {
		Module   string       `json:"module"`
		Policy   string       `json:"policy"`
		Profiles []string     `json:"profiles"`
		Internal []lockedEdge `json:"internal"`
		Nodes    []lockedNode `json:"nodes"`
	}

	lockedEdge struct {
		Module string `json:"module"`
		Scope  string `json:"scope"`
	}

	lockedNode struct {
		Coordinate string   `json:"coordinate"`
		Version    string   `json:"version"`
		Scope      string   `json:"scope"`
		Origin     string   `json:"origin"`
		Direct     bool     `json:"direct"`
		Dependents []string `json:"dependents"`
	}
)

// NewLock returns a lock holding graphs ordered by module id.
func NewLock(graphs ...*Graph) *Lock {
	mods := slices.Clone(graphs)
	slices.SortFunc(mods, func(a, b *Graph) int { return strings.Compare(string(a.Module), string(b.Module)) })
	return &Lock{Modules: mods}
}

// Graph returns the locked graph of module id.
func (l *Lock) Graph(id manifest.ModuleID) (*Graph, bool) {
	for _, g := range l.Modules {
		if g.Module == id {
			return g, true
		}
	}
	return nil, false
}

// Lock renders g alone as a lock document.
func (g *Graph) Lock() []byte { return NewLock(g).Render() }

// Render serializes the lock to CUE.
func (l *Lock) Render() []byte {
	var sb strings.Builder
	sb.WriteString("// mason.lock.cue - generated by `mason resolve`\n")
	sb.WriteString("// DO NOT EDIT MANUALLY\n\n")
	fmt.Fprintf(&sb, "version: %d\n\n", LockVersion)

	if len(l.Modules) == 0 {
		sb.WriteString("modules: []\n")
		return []byte(sb.String())
	}

	sb.WriteString("modules: [\n")
	for _, g := range l.Modules {
		sb.WriteString("\t{\n")
		fmt.Fprintf(&sb, "\t\tmodule: %q\n", g.Module)
		fmt.Fprintf(&sb, "\t\tpolicy: %q\n", g.Policy)
		if len(g.Profiles) > 0 {
			fmt.Fprintf(&sb, "\t\tprofiles: [%s]\n", quoteList(g.Profiles))
		}
		if len(g.Internal) > 0 {
			sb.WriteString("\t\tinternal: [\n")
			for _, e := range g.Internal {
				fmt.Fprintf(&sb, "\t\t\t{module: %q, scope: %q},\n", e.Module, e.Scope)
			}
			sb.WriteString("\t\t]\n")
		}
		if len(g.Nodes) > 0 {
			sb.WriteString("\t\tnodes: [\n")
			for _, n := range g.Nodes {
				fmt.Fprintf(&sb, "\t\t\t{coordinate: %q, version: %q, scope: %q, origin: %q", n.Coordinate.Key(), n.Version, n.Scope, n.Origin)
				if n.Direct {
					sb.WriteString(", direct: true")
				}
				fmt.Fprintf(&sb, ", dependents: [%s]},\n", quoteList(n.Dependents))
			}
			sb.WriteString("\t\t]\n")
		}
		sb.WriteString("\t},\n")
	}
	sb.WriteString("]\n")
	return []byte(sb.String())
}

// Save writes the lock atomically.
func (l *Lock) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, l.Render(), 0o644); err != nil {
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename lock file: %w", err)
	}
	return nil
}

// LoadLock reads a lock file written by Save.
func LoadLock(path string) (*Lock, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lock file: %w", err)
	}
	return ParseLock(data, filepath.Base(path))
}

// ParseLock parses lock file bytes.
func ParseLock(data []byte, filename string) (*Lock, error) {
	lf, err := cueutil.Decode[lockFile](lockSchema, data, cueutil.WithFilename(filename))
	if err != nil {
		return nil, err
	}

	graphs := make([]*Graph, 0, len(lf.Modules))
	for _, lm := range lf.Modules {
		internal := make([]InternalEdge, 0, len(lm.Internal))
		for _, e := range lm.Internal {
			internal = append(internal, InternalEdge{Module: manifest.ModuleID(e.Module), Scope: coord.Scope(e.Scope)})
		}
		nodes := make([]Node, 0, len(lm.Nodes))
		for _, ln := range lm.Nodes {
			c, err := coord.Parse(ln.Coordinate)
			if err != nil {
				return nil, fmt.Errorf("%s: module %s: %w", filename, lm.Module, err)
			}
			nodes = append(nodes, Node{
				Coordinate: c,
				Version:    coord.Version(ln.Version),
				Scope:      coord.Scope(ln.Scope),
				Origin:     Origin(ln.Origin),
				Direct:     ln.Direct,
				Dependents: ln.Dependents,
			})
		}
		var profiles []string
		if len(lm.Profiles) > 0 {
			profiles = lm.Profiles
		}
		graphs = append(graphs, newGraph(manifest.ModuleID(lm.Module), Policy(lm.Policy), profiles, internal, nodes))
	}
	return NewLock(graphs...), nil
}

func quoteList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(quoted, ", ")
}

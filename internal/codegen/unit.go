// SPDX-License-Identifier: MPL-2.0

package codegen

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/emicklei/proto"

	"github.com/masonbuild/mason/pkg/manifest"
)

type (
	// Unit is one code generation stage of one module. The pipeline owns
	// its output; callers treat a planned Unit as read-only.
	Unit struct {
		Module manifest.ModuleID
		// Index is the stage position in the module manifest.
		Index int
		Kind  manifest.StageKind
		// Root is the module directory inputs are relative to.
		Root string
		// Inputs are slash-separated paths relative to Root, sorted.
		Inputs []string
		// Output is the absolute output directory.
		Output string
		// Package is the target package of generated sources. For schema
		// units without an explicit package it is taken from java_package.
		Package string
		Flags   []string
		// Command overrides the generator's default command template.
		Command string
	}

	// GeneratedSources describes the files a unit produced.
	GeneratedSources struct {
		Unit        string
		Dir         string
		Files       []string
		Fingerprint string
	}
)

// ID identifies the unit across runs.
func (u *Unit) ID() string {
	return fmt.Sprintf("%s/%s#%d", u.Module, u.Kind, u.Index)
}

// InputPaths returns the absolute input file paths.
func (u *Unit) InputPaths() []string {
	paths := make([]string, len(u.Inputs))
	for i, in := range u.Inputs {
		paths[i] = filepath.Join(u.Root, filepath.FromSlash(in))
	}
	return paths
}

// Paths returns the absolute paths of the generated files.
func (g *GeneratedSources) Paths() []string {
	paths := make([]string, len(g.Files))
	for i, f := range g.Files {
		paths[i] = filepath.Join(g.Dir, filepath.FromSlash(f))
	}
	return paths
}

// Plan expands the codegen stages of m into units. Input patterns are
// doublestar globs relative to the module directory; a pattern that matches
// nothing is an error.
func Plan(m *manifest.Module) ([]*Unit, error) {
	units := make([]*Unit, 0, len(m.Codegen))
	fsys := os.DirFS(m.Dir)
	for i, s := range m.Codegen {
		u := &Unit{
			Module:  m.ID,
			Index:   i,
			Kind:    s.Kind,
			Root:    m.Dir,
			Output:  s.Output,
			Package: s.Package,
			Flags:   s.Flags,
			Command: s.Command,
		}
		if !filepath.IsAbs(u.Output) {
			u.Output = filepath.Join(m.Dir, filepath.FromSlash(u.Output))
		}

		seen := make(map[string]bool)
		for _, pattern := range s.Inputs {
			matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
			if err != nil {
				return nil, fmt.Errorf("module %s: codegen[%d]: input %q: %w", m.ID, i, pattern, err)
			}
			if len(matches) == 0 {
				return nil, fmt.Errorf("module %s: codegen[%d]: %w: %q", m.ID, i, ErrNoInputs, pattern)
			}
			for _, match := range matches {
				if !seen[match] {
					seen[match] = true
					u.Inputs = append(u.Inputs, match)
				}
			}
		}
		slices.Sort(u.Inputs)

		if u.Kind == manifest.KindSchema && u.Package == "" {
			u.Package = schemaPackage(u)
		}
		units = append(units, u)
	}
	return units, nil
}

// schemaPackage returns the first java_package option declared by the unit's
// schema inputs. Unparsable inputs are skipped here and reported by
// validation.
func schemaPackage(u *Unit) string {
	for _, path := range u.InputPaths() {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		def, err := proto.NewParser(bytes.NewReader(data)).Parse()
		if err != nil {
			continue
		}
		var pkg string
		proto.Walk(def, proto.WithOption(func(o *proto.Option) {
			if pkg == "" && o.Name == "java_package" {
				pkg = o.Constant.Source
			}
		}))
		if pkg != "" {
			return pkg
		}
	}
	return ""
}

// overlaps reports whether two units target overlapping output namespaces:
// one output directory contains the other, or one package is a prefix of the
// other.
func overlaps(a, b *Unit) bool {
	if within(a.Output, b.Output) || within(b.Output, a.Output) {
		return true
	}
	if a.Package == "" || b.Package == "" {
		return false
	}
	return packageWithin(a.Package, b.Package) || packageWithin(b.Package, a.Package)
}

func within(dir, parent string) bool {
	rel, err := filepath.Rel(parent, dir)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func packageWithin(pkg, parent string) bool {
	return pkg == parent || strings.HasPrefix(pkg, parent+".")
}

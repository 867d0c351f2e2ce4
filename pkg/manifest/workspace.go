// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/masonbuild/mason/pkg/cueutil"
)

// WorkspaceFileName is the workspace file at the repository root.
const WorkspaceFileName = "workspace.cue"

//go:embed workspace_schema.cue
var workspaceSchemaSrc []byte

var workspaceSchema = cueutil.NewSchema(workspaceSchemaSrc, "#Workspace")

var (
	// ErrDuplicateModule is returned when two module directories declare the same id.
	ErrDuplicateModule = errors.New("duplicate module id")
	// ErrUnknownInternalModule is returned when an internal edge names a module
	// that is not part of the workspace.
	ErrUnknownInternalModule = errors.New("unknown internal module")
)

type (
	// Workspace is the set of modules built together in one invocation.
	Workspace struct {
		Root         string
		Name         string
		VersionsPath string
		Profiles     []string
		Repository   string
		// Modules in declaration order.
		Modules []*Module

		byID map[ModuleID]*Module
	}

	// LoadOptions adjust workspace loading.
	LoadOptions struct {
		// Profiles replace the profiles listed in the workspace file when non-nil.
		Profiles []string
		// Only restricts loading to the named modules and their internal closure.
		Only []ModuleID
	}

	workspaceFile struct {
		Name       string   `json:"name,omitempty"`
		Modules    []string `json:"modules"`
		Versions   string   `json:"versions"`
		Profiles   []string `json:"profiles,omitempty"`
		Repository string   `json:"repository,omitempty"`
	}
)

// LoadWorkspace reads root/workspace.cue and every module it lists.
func LoadWorkspace(ctx context.Context, root string, opts LoadOptions) (*Workspace, error) {
	path := filepath.Join(root, WorkspaceFileName)
	wf, err := cueutil.DecodeFile[workspaceFile](workspaceSchema, path)
	if err != nil {
		return nil, err
	}

	ws := &Workspace{
		Root:         root,
		Name:         wf.Name,
		VersionsPath: resolvePath(root, wf.Versions),
		Profiles:     wf.Profiles,
		byID:         make(map[ModuleID]*Module, len(wf.Modules)),
	}
	if wf.Repository != "" {
		ws.Repository = resolvePath(root, wf.Repository)
	}
	if opts.Profiles != nil {
		ws.Profiles = opts.Profiles
	}

	for _, rel := range wf.Modules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, err := LoadModule(resolvePath(root, rel))
		if err != nil {
			return nil, err
		}
		if prev, ok := ws.byID[m.ID]; ok {
			return nil, fmt.Errorf("%w: %s declared in %s and %s", ErrDuplicateModule, m.ID, prev.Dir, m.Dir)
		}
		ws.byID[m.ID] = m
		ws.Modules = append(ws.Modules, m)
	}

	for _, m := range ws.Modules {
		for _, ref := range m.Internal {
			if _, ok := ws.byID[ref.Module]; !ok {
				return nil, fmt.Errorf("%w: %s (referenced by %s)", ErrUnknownInternalModule, ref.Module, m.ID)
			}
		}
	}

	if len(opts.Only) > 0 {
		if err := ws.restrict(opts.Only); err != nil {
			return nil, err
		}
	}

	slog.Debug("loaded workspace", "root", root, "modules", len(ws.Modules), "profiles", ws.Profiles)
	return ws, nil
}

// NewWorkspace assembles a workspace from already parsed modules.
func NewWorkspace(root string, modules ...*Module) (*Workspace, error) {
	ws := &Workspace{Root: root, byID: make(map[ModuleID]*Module, len(modules))}
	for _, m := range modules {
		if _, ok := ws.byID[m.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateModule, m.ID)
		}
		ws.byID[m.ID] = m
		ws.Modules = append(ws.Modules, m)
	}
	for _, m := range ws.Modules {
		for _, ref := range m.Internal {
			if _, ok := ws.byID[ref.Module]; !ok {
				return nil, fmt.Errorf("%w: %s (referenced by %s)", ErrUnknownInternalModule, ref.Module, m.ID)
			}
		}
	}
	return ws, nil
}

// Module returns the module with the given id.
func (ws *Workspace) Module(id ModuleID) (*Module, bool) {
	m, ok := ws.byID[id]
	return m, ok
}

// IDs returns all module ids in declaration order.
func (ws *Workspace) IDs() []ModuleID {
	ids := make([]ModuleID, 0, len(ws.Modules))
	for _, m := range ws.Modules {
		ids = append(ids, m.ID)
	}
	return ids
}

// restrict keeps only the named modules and everything they depend on.
func (ws *Workspace) restrict(only []ModuleID) error {
	keep := make(map[ModuleID]bool)
	stack := slices.Clone(only)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if keep[id] {
			continue
		}
		m, ok := ws.byID[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownInternalModule, id)
		}
		keep[id] = true
		stack = append(stack, m.InternalIDs()...)
	}
	ws.Modules = slices.DeleteFunc(ws.Modules, func(m *Module) bool { return !keep[m.ID] })
	for id := range ws.byID {
		if !keep[id] {
			delete(ws.byID, id)
		}
	}
	return nil
}

func resolvePath(root, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

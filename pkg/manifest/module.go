// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/masonbuild/mason/pkg/coord"
	"github.com/masonbuild/mason/pkg/cueutil"
)

const (
	// ModuleFileName is the manifest file name inside a module directory.
	ModuleFileName = "module.cue"

	// IsolationOneProcessPerTest launches a fresh process for every test class.
	IsolationOneProcessPerTest Isolation = "one-process-per-test"
	// IsolationSharedProcess runs all tests of a worker shard in one process.
	IsolationSharedProcess Isolation = "shared-process"

	// KindGrammar compiles grammar files into parser sources.
	KindGrammar StageKind = "grammar"
	// KindSchema compiles schema files into RPC and serialization stubs.
	KindSchema StageKind = "schema"
)

//go:embed module_schema.cue
var moduleSchemaSrc []byte

var moduleSchema = cueutil.NewSchema(moduleSchemaSrc, "#Module")

var moduleIDPattern = regexp.MustCompile(`^[a-z][a-z0-9._-]*$`)

var (
	// ErrInvalidModuleID is the sentinel error wrapped by InvalidModuleIDError.
	ErrInvalidModuleID = errors.New("invalid module id")
	// ErrModuleNotFound is returned when a module directory has no module.cue.
	ErrModuleNotFound = errors.New("module manifest not found")
)

type (
	// ModuleID identifies an internal module within a workspace.
	ModuleID string

	// InvalidModuleIDError is returned when a ModuleID does not match the allowed pattern.
	InvalidModuleIDError struct {
		Value ModuleID
	}

	// Isolation selects how test classes are mapped onto processes.
	Isolation string

	// StageKind is the tagged variant of a code generation stage.
	StageKind string

	// Request is one third-party dependency requested by a module.
	Request struct {
		Coordinate coord.Coordinate
		Scope      coord.Scope
		// Override is the module-local version, empty when the module defers to
		// the constraint table.
		Override coord.Version
		// Exclusions prune transitive edges beneath this request.
		Exclusions []string
	}

	// InternalRef is an edge to another module of the same workspace.
	InternalRef struct {
		Module ModuleID
		Scope  coord.Scope
	}

	// Stage declares one code generation step.
	Stage struct {
		Kind    StageKind
		Inputs  []string
		Output  string
		Package string
		Flags   []string
		Command string
	}

	// Relocation rewrites a dotted namespace prefix.
	Relocation struct {
		From string
		To   string
	}

	// AssemblyRules configure the packaged archive.
	AssemblyRules struct {
		Relocations       []Relocation
		Exclude           []string
		Keep              []string
		Minimize          bool
		MinimizeExclude   []coord.Coordinate
		MergeServiceFiles bool
		Output            string
	}

	// Agent is a -javaagent attached to matching test processes at launch.
	Agent struct {
		Path    string
		Options string
		Classes []string
	}

	// TestSettings configure test execution for a module.
	TestSettings struct {
		Parallelism            int
		Isolation              Isolation
		Include                []string
		Exclude                []string
		Agents                 []Agent
		SystemProperties       map[string]string
		JVMArgs                []string
		Filter                 []string
		FailIfNoSpecifiedTests bool
	}

	// Module is an immutable module manifest.
	Module struct {
		ID          ModuleID
		Dir         string
		Version     string
		Release     int
		Sources     []string
		TestSources []string
		Resources   []string
		Requests    []Request
		Internal    []InternalRef
		Codegen     []Stage
		Assembly    *AssemblyRules
		Test        TestSettings
		Attributes  map[string]string
	}

	moduleFile struct {
		Module       string            `json:"module"`
		Version      string            `json:"version,omitempty"`
		Release      int               `json:"release,omitempty"`
		Sources      []string          `json:"sources"`
		TestSources  []string          `json:"test_sources"`
		Resources    []string          `json:"resources"`
		Dependencies []dependencyFile  `json:"dependencies,omitempty"`
		Internal     []internalFile    `json:"internal,omitempty"`
		Codegen      []stageFile       `json:"codegen,omitempty"`
		Assembly     *assemblyFile     `json:"assembly,omitempty"`
		Test         *testFile         `json:"test,omitempty"`
		Manifest     map[string]string `json:"manifest,omitempty"`
	}

	dependencyFile struct {
		Coordinate string   `json:"coordinate"`
		Scope      string   `json:"scope"`
		Version    string   `json:"version,omitempty"`
		Exclude    []string `json:"exclude,omitempty"`
	}

	internalFile struct {
		Module string `json:"module"`
		Scope  string `json:"scope"`
	}

	stageFile struct {
		Kind    string   `json:"kind"`
		Inputs  []string `json:"inputs"`
		Output  string   `json:"output"`
		Package string   `json:"package,omitempty"`
		Flags   []string `json:"flags,omitempty"`
		Command string   `json:"command,omitempty"`
	}

	assemblyFile struct {
		Relocations []struct {
			From string `json:"from"`
			To   string `json:"to"`
		} `json:"relocations,omitempty"`
		Exclude           []string `json:"exclude,omitempty"`
		Keep              []string `json:"keep,omitempty"`
		Minimize          bool     `json:"minimize"`
		MinimizeExclude   []string `json:"minimize_exclude,omitempty"`
		MergeServiceFiles bool     `json:"merge_service_files"`
		Output            string   `json:"output,omitempty"`
	}

	agentFile struct {
		Path    string   `json:"path"`
		Options string   `json:"options,omitempty"`
		Classes []string `json:"classes,omitempty"`
	}

	testFile struct {
		Parallelism            int               `json:"parallelism,omitempty"`
		Isolation              string            `json:"isolation,omitempty"`
		Include                []string          `json:"include"`
		Exclude                []string          `json:"exclude,omitempty"`
		Agents                 []agentFile       `json:"agents,omitempty"`
		SystemProperties       map[string]string `json:"system_properties,omitempty"`
		JVMArgs                []string          `json:"jvm_args,omitempty"`
		Filter                 []string          `json:"filter,omitempty"`
		FailIfNoSpecifiedTests bool              `json:"fail_if_no_specified_tests"`
	}
)

// Error implements the error interface.
func (e *InvalidModuleIDError) Error() string {
	return fmt.Sprintf("invalid module id %q (must match %s)", e.Value, moduleIDPattern)
}

// Unwrap returns ErrInvalidModuleID for errors.Is() compatibility.
func (e *InvalidModuleIDError) Unwrap() error { return ErrInvalidModuleID }

// Validate returns an error if the id is not a lowercase identifier.
func (id ModuleID) Validate() error {
	if !moduleIDPattern.MatchString(string(id)) {
		return &InvalidModuleIDError{Value: id}
	}
	return nil
}

// String returns the module id.
func (id ModuleID) String() string { return string(id) }

// Validate returns an error for unknown isolation policies.
func (i Isolation) Validate() error {
	switch i {
	case IsolationOneProcessPerTest, IsolationSharedProcess:
		return nil
	}
	return fmt.Errorf("unknown isolation policy %q", i)
}

// Validate returns an error for unknown stage kinds.
func (k StageKind) Validate() error {
	switch k {
	case KindGrammar, KindSchema:
		return nil
	}
	return fmt.Errorf("unknown generator kind %q", k)
}

// LoadModule parses dir/module.cue.
func LoadModule(dir string) (*Module, error) {
	path := filepath.Join(dir, ModuleFileName)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, path)
		}
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return ParseModule(data, dir)
}

// ParseModule parses module manifest bytes. dir is recorded as the module
// directory and used in error messages.
func ParseModule(data []byte, dir string) (*Module, error) {
	filename := filepath.Join(dir, ModuleFileName)
	mf, err := cueutil.Decode[moduleFile](moduleSchema, data, cueutil.WithFilename(filename))
	if err != nil {
		return nil, err
	}
	m, err := mf.toModule(dir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return m, nil
}

func (f *moduleFile) toModule(dir string) (*Module, error) {
	m := &Module{
		ID:          ModuleID(f.Module),
		Dir:         dir,
		Version:     f.Version,
		Release:     f.Release,
		Sources:     f.Sources,
		TestSources: f.TestSources,
		Resources:   f.Resources,
		Attributes:  f.Manifest,
		Test: TestSettings{
			Parallelism: 1,
			Isolation:   IsolationOneProcessPerTest,
			Include:     []string{"**/*Test.class"},
		},
	}
	if err := m.ID.Validate(); err != nil {
		return nil, err
	}

	for i, d := range f.Dependencies {
		c, err := coord.Parse(d.Coordinate)
		if err != nil {
			return nil, fmt.Errorf("dependencies[%d]: %w", i, err)
		}
		r := Request{Coordinate: c, Scope: coord.Scope(d.Scope), Exclusions: d.Exclude}
		if d.Version != "" {
			r.Override = coord.Version(d.Version)
			if err := r.Override.Validate(); err != nil {
				return nil, fmt.Errorf("dependencies[%d]: %w", i, err)
			}
		}
		m.Requests = append(m.Requests, r)
	}

	seen := make(map[ModuleID]bool, len(f.Internal))
	for i, ref := range f.Internal {
		id := ModuleID(ref.Module)
		if id == m.ID {
			return nil, fmt.Errorf("internal[%d]: module %s depends on itself", i, id)
		}
		if seen[id] {
			return nil, fmt.Errorf("internal[%d]: duplicate internal dependency %s", i, id)
		}
		seen[id] = true
		m.Internal = append(m.Internal, InternalRef{Module: id, Scope: coord.Scope(ref.Scope)})
	}

	for _, s := range f.Codegen {
		m.Codegen = append(m.Codegen, Stage{
			Kind:    StageKind(s.Kind),
			Inputs:  s.Inputs,
			Output:  s.Output,
			Package: s.Package,
			Flags:   s.Flags,
			Command: s.Command,
		})
	}

	if a := f.Assembly; a != nil {
		rules := &AssemblyRules{
			Exclude:           a.Exclude,
			Keep:              a.Keep,
			Minimize:          a.Minimize,
			MergeServiceFiles: a.MergeServiceFiles,
			Output:            a.Output,
		}
		for _, r := range a.Relocations {
			rules.Relocations = append(rules.Relocations, Relocation{From: r.From, To: r.To})
		}
		for i, raw := range a.MinimizeExclude {
			c, err := coord.Parse(raw)
			if err != nil {
				return nil, fmt.Errorf("assembly.minimize_exclude[%d]: %w", i, err)
			}
			rules.MinimizeExclude = append(rules.MinimizeExclude, c)
		}
		m.Assembly = rules
	}

	if t := f.Test; t != nil {
		if t.Parallelism > 0 {
			m.Test.Parallelism = t.Parallelism
		}
		if t.Isolation != "" {
			m.Test.Isolation = Isolation(t.Isolation)
		}
		if len(t.Include) > 0 {
			m.Test.Include = t.Include
		}
		m.Test.Exclude = t.Exclude
		m.Test.SystemProperties = t.SystemProperties
		m.Test.JVMArgs = t.JVMArgs
		m.Test.Filter = t.Filter
		m.Test.FailIfNoSpecifiedTests = t.FailIfNoSpecifiedTests
		for _, a := range t.Agents {
			m.Test.Agents = append(m.Test.Agents, Agent(a))
		}
	}
	return m, nil
}

// HasAssembly reports whether the module produces a packaged archive.
func (m *Module) HasAssembly() bool { return m.Assembly != nil }

// InternalIDs returns the ids of the module's internal dependencies in
// declaration order.
func (m *Module) InternalIDs() []ModuleID {
	ids := make([]ModuleID, 0, len(m.Internal))
	for _, ref := range m.Internal {
		ids = append(ids, ref.Module)
	}
	return ids
}

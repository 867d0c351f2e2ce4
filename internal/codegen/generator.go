// SPDX-License-Identifier: MPL-2.0

package codegen

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/masonbuild/mason/internal/runtime"
	"github.com/masonbuild/mason/pkg/manifest"
)

// Default command templates. Inputs are passed as "$@".
const (
	DefaultGrammarCommand = `antlr4 -Dlanguage=Java -Xexact-output-dir -o "$MASON_OUT" ${MASON_PACKAGE:+-package "$MASON_PACKAGE"} $MASON_FLAGS "$@"`
	DefaultSchemaCommand  = `protoc --proto_path="$MASON_MODULE_DIR" --java_out="$MASON_OUT" $MASON_FLAGS "$@"`
)

type (
	// Invocation is one request to a Generator.
	Invocation struct {
		Unit *Unit
		// OutDir is the staging directory the generator must write into.
		OutDir string
		Stdout io.Writer
		Stderr io.Writer
	}

	// Generator is the capability every stage kind implements.
	Generator interface {
		Kind() manifest.StageKind
		// Command returns the default command template, mixed into fingerprints.
		Command() string
		// Validate checks the unit's inputs before anything is generated.
		Validate(ctx context.Context, u *Unit) error
		Generate(ctx context.Context, inv Invocation) error
	}

	// Registry dispatches units to generators by stage kind.
	Registry struct {
		generators map[manifest.StageKind]Generator
	}

	// CommandGenerator runs an external tool through a command template.
	CommandGenerator struct {
		kind     manifest.StageKind
		command  string
		validate func(path string, data []byte) error
	}
)

// NewRegistry returns a registry holding gens.
func NewRegistry(gens ...Generator) *Registry {
	r := &Registry{generators: make(map[manifest.StageKind]Generator)}
	for _, g := range gens {
		r.Register(g)
	}
	return r
}

// DefaultRegistry returns the command generators for both kinds. Empty
// commands fall back to DefaultGrammarCommand and DefaultSchemaCommand.
func DefaultRegistry(grammarCommand, schemaCommand string) *Registry {
	return NewRegistry(NewGrammarGenerator(grammarCommand), NewSchemaGenerator(schemaCommand))
}

// Register adds or replaces the generator for g.Kind().
func (r *Registry) Register(g Generator) {
	r.generators[g.Kind()] = g
}

// Lookup returns the generator for kind.
func (r *Registry) Lookup(kind manifest.StageKind) (Generator, error) {
	g, ok := r.generators[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return g, nil
}

// NewGrammarGenerator returns the grammar compiler generator.
func NewGrammarGenerator(command string) *CommandGenerator {
	if command == "" {
		command = DefaultGrammarCommand
	}
	return &CommandGenerator{kind: manifest.KindGrammar, command: command, validate: validateGrammar}
}

// NewSchemaGenerator returns the schema compiler generator.
func NewSchemaGenerator(command string) *CommandGenerator {
	if command == "" {
		command = DefaultSchemaCommand
	}
	return &CommandGenerator{kind: manifest.KindSchema, command: command, validate: validateSchema}
}

// Kind returns the stage kind.
func (g *CommandGenerator) Kind() manifest.StageKind { return g.kind }

// Command returns the default command template.
func (g *CommandGenerator) Command() string { return g.command }

// Validate pre-validates every input and the effective command template.
func (g *CommandGenerator) Validate(_ context.Context, u *Unit) error {
	paths := u.InputPaths()
	for i, in := range u.Inputs {
		data, err := os.ReadFile(paths[i])
		if err != nil {
			return fmt.Errorf("read %s: %w", in, err)
		}
		if err := g.validate(paths[i], data); err != nil {
			return &GenerationError{Kind: invalidKind(g.kind), Module: u.Module, Unit: u.ID(), Path: in, Err: err}
		}
	}
	if err := runtime.Validate(u.ID(), g.template(u)); err != nil {
		return fmt.Errorf("module %s: %w", u.Module, err)
	}
	return nil
}

// Generate runs the command template. A non-zero exit is reported as the
// kind's validation error, carrying the tool's stderr.
func (g *CommandGenerator) Generate(ctx context.Context, inv Invocation) error {
	u := inv.Unit
	res := runtime.Run(ctx, runtime.Command{
		Name:   u.ID(),
		Script: g.template(u),
		Dir:    u.Root,
		Env: map[string]string{
			"MASON_OUT":         inv.OutDir,
			"MASON_PACKAGE":     u.Package,
			"MASON_PACKAGE_DIR": strings.ReplaceAll(u.Package, ".", "/"),
			"MASON_FLAGS":       strings.Join(u.Flags, " "),
			"MASON_KIND":        string(u.Kind),
			"MASON_MODULE":      string(u.Module),
			"MASON_MODULE_DIR":  u.Root,
		},
		Args:   u.InputPaths(),
		Stdout: inv.Stdout,
		Stderr: inv.Stderr,
	})
	if res.Error != nil {
		return res.Error
	}
	if err := res.Err(u.ID()); err != nil {
		return &GenerationError{Kind: invalidKind(g.kind), Module: u.Module, Unit: u.ID(), Err: err}
	}
	return nil
}

func (g *CommandGenerator) template(u *Unit) string {
	if u.Command != "" {
		return u.Command
	}
	return g.command
}

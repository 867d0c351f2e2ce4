// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/masonbuild/mason/internal/codegen"
	"github.com/masonbuild/mason/internal/compile"
	"github.com/masonbuild/mason/internal/testrun"
	"github.com/masonbuild/mason/pkg/manifest"
	"github.com/masonbuild/mason/pkg/resolve"
	"github.com/masonbuild/mason/pkg/types"
)

const (
	// LogLevelDebug logs every stage transition.
	LogLevelDebug LogLevel = "debug"
	// LogLevelInfo logs module and build summaries.
	LogLevelInfo LogLevel = "info"
	// LogLevelWarn logs failures only.
	LogLevelWarn LogLevel = "warn"
	// LogLevelError logs errors only.
	LogLevelError LogLevel = "error"
)

var (
	// ErrInvalidLogLevel is the sentinel error wrapped by InvalidLogLevelError.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// LogLevel is the minimum level of emitted log records.
	LogLevel string

	// InvalidLogLevelError is returned when a LogLevel value is not recognized.
	InvalidLogLevelError struct {
		Value LogLevel
	}

	// InvalidConfigError is returned when a Config has invalid fields. It
	// collects the field-level errors.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the mason configuration.
	Config struct {
		// Workers bounds the modules built concurrently.
		Workers  int      `json:"workers" mapstructure:"workers"`
		LogLevel LogLevel `json:"log_level" mapstructure:"log_level"`
		// CacheDir holds the code generation fingerprint database. Relative
		// paths are resolved against the workspace root.
		CacheDir   types.FilesystemPath `json:"cache_dir" mapstructure:"cache_dir"`
		Repository RepositoryConfig     `json:"repository" mapstructure:"repository"`
		Resolve    ResolveConfig        `json:"resolve" mapstructure:"resolve"`
		Codegen    CodegenConfig        `json:"codegen" mapstructure:"codegen"`
		Compile    CompileConfig        `json:"compile" mapstructure:"compile"`
		Test       TestConfig           `json:"test" mapstructure:"test"`
		// MetricsFile, when set, receives a Prometheus textfile after each command.
		MetricsFile string `json:"metrics_file" mapstructure:"metrics_file"`
		// Profiles replace the workspace's catalog profiles when non-empty.
		Profiles []string `json:"profiles" mapstructure:"profiles"`

		// Source is the config file that was merged, empty when none was.
		Source string `json:"-" mapstructure:"-"`
	}

	// RepositoryConfig locates the local artifact repository.
	RepositoryConfig struct {
		// Path overrides the workspace repository. Empty means the workspace
		// setting, then ~/.m2/repository.
		Path string `json:"path" mapstructure:"path"`
	}

	// ResolveConfig configures version resolution.
	ResolveConfig struct {
		ConflictPolicy resolve.Policy `json:"conflict_policy" mapstructure:"conflict_policy"`
	}

	// CodegenConfig holds the default generator command templates. Stages may
	// override them individually.
	CodegenConfig struct {
		GrammarCommand string `json:"grammar_command" mapstructure:"grammar_command"`
		SchemaCommand  string `json:"schema_command" mapstructure:"schema_command"`
	}

	// CompileConfig configures the compiler.
	CompileConfig struct {
		Command string `json:"command" mapstructure:"command"`
		// Release is used for modules that do not set their own.
		Release int `json:"release" mapstructure:"release"`
	}

	// TestConfig configures test processes.
	TestConfig struct {
		JavaCommand string `json:"java_command" mapstructure:"java_command"`
		RunnerMain  string `json:"runner_main" mapstructure:"runner_main"`
		// Parallelism and Isolation override every module when set.
		Parallelism int                `json:"parallelism" mapstructure:"parallelism"`
		Isolation   manifest.Isolation `json:"isolation" mapstructure:"isolation"`
	}
)

// Error implements the error interface.
func (e *InvalidLogLevelError) Error() string {
	return fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", e.Value)
}

// Unwrap returns ErrInvalidLogLevel for errors.Is() compatibility.
func (e *InvalidLogLevelError) Unwrap() error { return ErrInvalidLogLevel }

// String returns the level name.
func (l LogLevel) String() string { return string(l) }

// Validate returns an error if the level is not recognized.
func (l LogLevel) Validate() error {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return nil
	default:
		return &InvalidLogLevelError{Value: l}
	}
}

// Error implements the error interface.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid config: %s", strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig and the field errors.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}

// Validate checks the constraints the schema cannot see once environment
// overrides are applied.
func (c *Config) Validate() error {
	var errs []error
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers: must be at least 1, got %d", c.Workers))
	}
	if err := c.LogLevel.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if err := c.CacheDir.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("cache_dir: %w", err))
	}
	if err := c.Resolve.ConflictPolicy.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("resolve.conflict_policy: %w", err))
	}
	if c.Compile.Release != 0 && c.Compile.Release < 8 {
		errs = append(errs, fmt.Errorf("compile.release: must be at least 8, got %d", c.Compile.Release))
	}
	if c.Test.Parallelism < 0 {
		errs = append(errs, fmt.Errorf("test.parallelism: must not be negative, got %d", c.Test.Parallelism))
	}
	if c.Test.Isolation != "" {
		if err := c.Test.Isolation.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("test.isolation: %w", err))
		}
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Workers:  4,
		LogLevel: LogLevelInfo,
		CacheDir: ".mason",
		Resolve:  ResolveConfig{ConflictPolicy: resolve.HighestWins},
		Codegen: CodegenConfig{
			GrammarCommand: codegen.DefaultGrammarCommand,
			SchemaCommand:  codegen.DefaultSchemaCommand,
		},
		Compile: CompileConfig{
			Command: compile.DefaultCommand,
			Release: 11,
		},
		Test: TestConfig{
			JavaCommand: testrun.DefaultCommand,
			RunnerMain:  testrun.DefaultRunnerMain,
		},
		Profiles: []string{},
	}
}

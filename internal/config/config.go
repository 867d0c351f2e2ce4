// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"

	"github.com/masonbuild/mason/internal/issue"
	"github.com/masonbuild/mason/pkg/cueutil"
)

const (
	// AppName is the application name.
	AppName = "mason"
	// ConfigFileName is the config file name looked up in the workspace root
	// and the config directory.
	ConfigFileName = "mason.cue"
	// EnvPrefix prefixes environment overrides: MASON_WORKERS,
	// MASON_TEST_ISOLATION and so on.
	EnvPrefix = "MASON"
)

//go:embed config_schema.cue
var configSchemaSrc []byte

var configSchema = cueutil.NewSchema(configSchemaSrc, "#Config")

// ConfigDir returns the mason configuration directory: %APPDATA%\mason on
// Windows, ~/Library/Application Support/mason on macOS and
// $XDG_CONFIG_HOME/mason (defaulting to ~/.config/mason) elsewhere.
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir() (string, error) {
	var dir string
	switch runtime.GOOS {
	case "windows":
		dir = os.Getenv("APPDATA")
		if dir == "" {
			dir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, "Library", "Application Support")
	default:
		dir = os.Getenv("XDG_CONFIG_HOME")
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("failed to get home directory: %w", err)
			}
			dir = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(dir, AppName), nil
}

// loadWithOptions layers defaults, the first config file found and
// environment overrides, then validates the result. It returns the path of
// the file that was merged, or "" when none was.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, err := locate(opts)
	if err != nil {
		return nil, "", err
	}
	if path != "" {
		if err := loadCUEIntoViper(v, path); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(path).
				WithIssue(issue.ConfigLoadFailedID).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Compare the values with 'mason config show'").
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(path).
			WithIssue(issue.ConfigLoadFailedID).
			WithSuggestion("Check MASON_* environment variables for invalid values").
			Wrap(err).
			BuildError()
	}
	return &cfg, path, nil
}

// locate returns the config file to merge: the explicit path, else
// mason.cue in the workspace root, else mason.cue in the config directory.
func locate(opts LoadOptions) (string, error) {
	if opts.ConfigFilePath != "" {
		if !fileExists(string(opts.ConfigFilePath)) {
			return "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(string(opts.ConfigFilePath)).
				WithIssue(issue.ConfigLoadFailedID).
				WithSuggestion("Verify the --config path is correct").
				WithSuggestion("Run 'mason config init' to write a default file").
				Wrap(fmt.Errorf("config file not found: %w", fs.ErrNotExist)).
				BuildError()
		}
		return string(opts.ConfigFilePath), nil
	}
	if opts.WorkspaceDir != "" {
		if p := filepath.Join(string(opts.WorkspaceDir), ConfigFileName); fileExists(p) {
			return p, nil
		}
	}
	dir := string(opts.ConfigDirPath)
	if dir == "" {
		var err error
		if dir, err = ConfigDir(); err != nil {
			return "", err
		}
	}
	if p := filepath.Join(dir, ConfigFileName); fileExists(p) {
		return p, nil
	}
	return "", nil
}

// setDefaults registers every key, which also makes each key visible to
// AutomaticEnv during Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("workers", d.Workers)
	v.SetDefault("log_level", string(d.LogLevel))
	v.SetDefault("cache_dir", string(d.CacheDir))
	v.SetDefault("metrics_file", d.MetricsFile)
	v.SetDefault("profiles", d.Profiles)
	v.SetDefault("repository.path", d.Repository.Path)
	v.SetDefault("resolve.conflict_policy", string(d.Resolve.ConflictPolicy))
	v.SetDefault("codegen.grammar_command", d.Codegen.GrammarCommand)
	v.SetDefault("codegen.schema_command", d.Codegen.SchemaCommand)
	v.SetDefault("compile.command", d.Compile.Command)
	v.SetDefault("compile.release", d.Compile.Release)
	v.SetDefault("test.java_command", d.Test.JavaCommand)
	v.SetDefault("test.runner_main", d.Test.RunnerMain)
	v.SetDefault("test.parallelism", d.Test.Parallelism)
	v.SetDefault("test.isolation", string(d.Test.Isolation))
}

// loadCUEIntoViper validates a CUE file against #Config and merges it into
// v. Every config field is optional, so the file is decoded partially into a
// map and viper supplies the defaults.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	values, err := cueutil.DecodeFile[map[string]any](configSchema, path,
		cueutil.WithFilename(path), cueutil.WithPartial())
	if err != nil {
		return err
	}
	if err := v.MergeConfigMap(*values); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// WriteDefault writes the default configuration to path unless a file is
// already there. It reports whether a file was written.
func WriteDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	return true, Save(path, DefaultConfig())
}

// Save writes cfg to path as CUE, replacing the file atomically.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(GenerateCUE(cfg)), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateCUE renders cfg as a mason.cue document.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder
	sb.WriteString("// mason configuration\n")
	sb.WriteString("// Environment variables (MASON_WORKERS, MASON_TEST_ISOLATION, ...) override these values.\n\n")

	fmt.Fprintf(&sb, "workers:   %d\n", cfg.Workers)
	fmt.Fprintf(&sb, "log_level: %q\n", cfg.LogLevel)
	fmt.Fprintf(&sb, "cache_dir: %q\n", cfg.CacheDir)
	if cfg.MetricsFile != "" {
		fmt.Fprintf(&sb, "metrics_file: %q\n", cfg.MetricsFile)
	}
	if len(cfg.Profiles) > 0 {
		quoted := make([]string, len(cfg.Profiles))
		for i, p := range cfg.Profiles {
			quoted[i] = fmt.Sprintf("%q", p)
		}
		fmt.Fprintf(&sb, "profiles: [%s]\n", strings.Join(quoted, ", "))
	}

	if cfg.Repository.Path != "" {
		fmt.Fprintf(&sb, "\nrepository: path: %q\n", cfg.Repository.Path)
	}
	fmt.Fprintf(&sb, "\nresolve: conflict_policy: %q\n", cfg.Resolve.ConflictPolicy)

	sb.WriteString("\ncodegen: {\n")
	fmt.Fprintf(&sb, "\tgrammar_command: %s\n", cueString(cfg.Codegen.GrammarCommand))
	fmt.Fprintf(&sb, "\tschema_command:  %s\n", cueString(cfg.Codegen.SchemaCommand))
	sb.WriteString("}\n")

	sb.WriteString("\ncompile: {\n")
	fmt.Fprintf(&sb, "\tcommand: %s\n", cueString(cfg.Compile.Command))
	fmt.Fprintf(&sb, "\trelease: %d\n", cfg.Compile.Release)
	sb.WriteString("}\n")

	sb.WriteString("\ntest: {\n")
	fmt.Fprintf(&sb, "\tjava_command: %s\n", cueString(cfg.Test.JavaCommand))
	fmt.Fprintf(&sb, "\trunner_main:  %q\n", cfg.Test.RunnerMain)
	if cfg.Test.Parallelism > 0 {
		fmt.Fprintf(&sb, "\tparallelism:  %d\n", cfg.Test.Parallelism)
	}
	if cfg.Test.Isolation != "" {
		fmt.Fprintf(&sb, "\tisolation:    %q\n", cfg.Test.Isolation)
	}
	sb.WriteString("}\n")
	return sb.String()
}

// cueString quotes s as a CUE raw string so that shell templates keep their
// backslashes and quotes.
func cueString(s string) string {
	return "#\"" + s + "\"#"
}

// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/masonbuild/mason/internal/config"
)

// newConfigCommand creates the `mason config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage mason configuration",
		Long: `Manage mason configuration.

mason merges, in increasing priority: built-in defaults, the first mason.cue
found (--config, then the workspace root, then the config directory) and
MASON_* environment variables. The config directory is:
  - Linux: ~/.config/mason
  - macOS: ~/Library/Application Support/mason
  - Windows: %APPDATA%\mason`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration as CUE",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.fail(app.showConfig(cmd))
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write a default configuration file",
		Long: `Write a configuration file holding every key with its default value.

The file goes to the config directory unless a path is given. An existing
file is left untouched.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.fail(app.initConfig(args))
		},
	})

	return cfgCmd
}

func (a *App) showConfig(cmd *cobra.Command) error {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}
	source := SubtitleStyle.Render("(defaults)")
	if cfg.Source != "" {
		source = cfg.Source
	}
	fmt.Fprintf(a.stderr, "%s %s\n\n", TitleStyle.Render("Config file:"), source)
	fmt.Fprint(a.stdout, config.GenerateCUE(cfg))
	return nil
}

func (a *App) initConfig(args []string) error {
	var path string
	if len(args) == 1 {
		path = args[0]
	} else {
		dir, err := config.ConfigDir()
		if err != nil {
			return err
		}
		path = filepath.Join(dir, config.ConfigFileName)
	}
	wrote, err := config.WriteDefault(path)
	if err != nil {
		return fmt.Errorf("failed to create config: %w", err)
	}
	if !wrote {
		fmt.Fprintf(a.stdout, "%s %s already exists\n", WarningStyle.Render("!"), path)
		return nil
	}
	fmt.Fprintf(a.stdout, "%s Created default configuration at %s\n", SuccessStyle.Render("✓"), path)
	return nil
}

// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/masonbuild/mason/pkg/resolve"
)

type moduleInfo struct {
	Module   string   `yaml:"module"`
	Dir      string   `yaml:"dir"`
	Internal []string `yaml:"internal,omitempty"`
	Requests int      `yaml:"requests"`
	Codegen  int      `yaml:"codegen_stages,omitempty"`
	Assembly bool     `yaml:"assembly"`
}

func newModulesCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "modules [module...]",
		Short: "List workspace modules in build order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.fail(app.listModules(cmd, args))
		},
	}
}

func (a *App) listModules(cmd *cobra.Command, only []string) error {
	s, err := a.open(cmd, workspaceOptions{only: only})
	if err != nil {
		return err
	}
	defer s.close()

	order, err := resolve.CheckCycles(s.ws)
	if err != nil {
		return err
	}
	infos := make([]moduleInfo, 0, len(order))
	for _, id := range order {
		m, _ := s.ws.Module(id)
		info := moduleInfo{
			Module:   string(m.ID),
			Dir:      m.Dir,
			Requests: len(m.Requests),
			Codegen:  len(m.Codegen),
			Assembly: m.HasAssembly(),
		}
		for _, ref := range m.Internal {
			info.Internal = append(info.Internal, fmt.Sprintf("%s (%s)", ref.Module, ref.Scope))
		}
		infos = append(infos, info)
	}

	if a.flags.format == formatYAML {
		return writeYAML(a.stdout, infos)
	}
	fmt.Fprintln(a.stdout, TitleStyle.Render(s.ws.Name)+SubtitleStyle.Render(fmt.Sprintf(" %d modules", len(infos))))
	for _, info := range infos {
		detail := fmt.Sprintf("%d dependencies", info.Requests)
		if len(info.Internal) > 0 {
			detail += ", depends on " + strings.Join(info.Internal, ", ")
		}
		if info.Assembly {
			detail += ", assembled"
		}
		fmt.Fprintf(a.stdout, "  %s %s\n", ModuleStyle.Render(info.Module), SubtitleStyle.Render(detail))
	}
	return nil
}

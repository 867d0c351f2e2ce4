// SPDX-License-Identifier: MPL-2.0

package codegen

import (
	"context"
	"path"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/masonbuild/mason/internal/watch"
	"github.com/masonbuild/mason/pkg/manifest"
)

// ModuleResult is the outcome of regenerating one module in watch mode.
type ModuleResult struct {
	Module  manifest.ModuleID
	Sources []*GeneratedSources
	Err     error
}

// Watch regenerates modules whenever one of their codegen input patterns
// matches a changed file under root. Modules are re-planned on every change
// so new input files are picked up. It blocks until ctx is canceled.
func (p *Pipeline) Watch(ctx context.Context, root string, modules []*manifest.Module, report func(ModuleResult)) error {
	patterns := make(map[manifest.ModuleID][]string)
	var all []string
	for _, m := range modules {
		rel, err := filepath.Rel(root, m.Dir)
		if err != nil {
			return err
		}
		for _, s := range m.Codegen {
			for _, in := range s.Inputs {
				pattern := path.Join(filepath.ToSlash(rel), in)
				patterns[m.ID] = append(patterns[m.ID], pattern)
				all = append(all, pattern)
			}
		}
	}

	w, err := watch.New(watch.Config{
		BaseDir:  root,
		Patterns: all,
		Logger:   p.logger,
		OnChange: func(ctx context.Context, changed []string) error {
			for _, m := range modules {
				if !anyMatch(patterns[m.ID], changed) {
					continue
				}
				sources, err := p.Generate(ctx, m)
				report(ModuleResult{Module: m.ID, Sources: sources, Err: err})
			}
			return nil
		},
	})
	if err != nil {
		return err
	}
	p.logger.Info("watching codegen inputs", "modules", len(patterns), "patterns", len(all))
	return w.Run(ctx)
}

func anyMatch(patterns, paths []string) bool {
	for _, p := range patterns {
		for _, changed := range paths {
			if ok, _ := doublestar.Match(p, changed); ok {
				return true
			}
		}
	}
	return false
}

// SPDX-License-Identifier: MPL-2.0

package testrun

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/masonbuild/mason/pkg/manifest"
)

// Discover lists the test classes below classDir matching the include globs
// and none of the exclude globs. Inner classes are skipped. When the
// settings carry a filter, only matching classes are returned; an empty
// selection is an error if FailIfNoSpecifiedTests is set.
func Discover(classDir string, settings manifest.TestSettings) ([]string, error) {
	if _, err := os.Stat(classDir); errors.Is(err, fs.ErrNotExist) {
		return filter(nil, settings)
	}
	fsys := os.DirFS(classDir)
	seen := make(map[string]bool)
	var classes []string
	for _, pattern := range settings.Include {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("include %q: %w", pattern, err)
		}
		for _, m := range matches {
			if !strings.HasSuffix(m, ".class") || strings.Contains(m, "$") || excluded(m, settings.Exclude) {
				continue
			}
			name := strings.ReplaceAll(strings.TrimSuffix(m, ".class"), "/", ".")
			if !seen[name] {
				seen[name] = true
				classes = append(classes, name)
			}
		}
	}
	slices.Sort(classes)
	return filter(classes, settings)
}

func excluded(entry string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, entry); ok {
			return true
		}
	}
	return false
}

// filter keeps the classes matching any filter pattern. Patterns are dotted
// class names where "*" matches any run of characters.
func filter(classes []string, settings manifest.TestSettings) ([]string, error) {
	if len(settings.Filter) == 0 {
		return classes, nil
	}
	var out []string
	for _, c := range classes {
		for _, f := range settings.Filter {
			if ok, _ := doublestar.Match(f, c); ok {
				out = append(out, c)
				break
			}
		}
	}
	if len(out) == 0 && settings.FailIfNoSpecifiedTests {
		return nil, fmt.Errorf("%w: %s", ErrNoMatchingTests, strings.Join(settings.Filter, ", "))
	}
	return out, nil
}

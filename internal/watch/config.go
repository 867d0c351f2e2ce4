// SPDX-License-Identifier: MPL-2.0

package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
var ErrInvalidConfig = errors.New("invalid watch configuration")

type (
	// Config holds the parameters for a Watcher.
	Config struct {
		// BaseDir is the directory tree to watch. Empty means the working directory.
		BaseDir string
		// Patterns are doublestar globs relative to BaseDir selecting the files
		// that trigger OnChange. Empty matches every non-ignored file.
		Patterns []string
		// Ignore are extra doublestar globs merged with DefaultIgnores.
		Ignore []string
		// Debounce is the quiet period after the last event before OnChange
		// fires. Zero or negative means 300ms.
		Debounce time.Duration
		// OnChange receives the deduplicated, sorted changed paths relative
		// to BaseDir. Callbacks never overlap.
		OnChange func(ctx context.Context, changed []string) error
		Logger   *slog.Logger
	}

	// InvalidConfigError lists every invalid field of a Config.
	InvalidConfigError struct {
		Problems []string
	}
)

// Error implements the error interface.
func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid watch configuration: %s", strings.Join(e.Problems, "; "))
}

// Unwrap returns ErrInvalidConfig for errors.Is() compatibility.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// Validate checks every glob pattern eagerly so a typo fails at start-up
// instead of silently never matching.
func (c Config) Validate() error {
	var problems []string
	for _, p := range c.Patterns {
		if !doublestar.ValidatePattern(p) {
			problems = append(problems, fmt.Sprintf("pattern %q is not a valid glob", p))
		}
	}
	for _, p := range c.Ignore {
		if !doublestar.ValidatePattern(p) {
			problems = append(problems, fmt.Sprintf("ignore pattern %q is not a valid glob", p))
		}
	}
	if len(problems) > 0 {
		return &InvalidConfigError{Problems: problems}
	}
	return nil
}

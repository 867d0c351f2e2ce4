// SPDX-License-Identifier: MPL-2.0

package compile

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// argfile renders compiler arguments one per line, each quoted so that paths
// with spaces survive the compiler's argument-file tokenizer.
func argfile(args []string) []byte {
	var b strings.Builder
	for _, a := range args {
		b.WriteString(quoteArg(a))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func quoteArg(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// compilerArgs builds the option and source list for one compilation.
func compilerArgs(outDir string, release int, classpath, sources []string) []string {
	args := []string{"-d", outDir, "-encoding", "UTF-8"}
	if release > 0 {
		args = append(args, "--release", strconv.Itoa(release))
	}
	if len(classpath) > 0 {
		args = append(args, "-classpath", strings.Join(classpath, string(os.PathListSeparator)))
	}
	args = append(args, "-implicit:none")
	return append(args, sources...)
}

func writeArgfile(path string, args []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, argfile(args), 0o644)
}

// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// WriteFile writes content to path, creating parent directories.
// The test fails immediately on error.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// WritePOM writes body as the POM of group:name:version under a local
// repository rooted at root, using the Maven directory layout.
func WritePOM(t testing.TB, root, group, name, version, body string) string {
	t.Helper()
	path := POMPath(root, group, name, version)
	WriteFile(t, path, body)
	return path
}

// WriteMinimalPOM writes a POM with no dependencies.
func WriteMinimalPOM(t testing.TB, root, group, name, version string) string {
	t.Helper()
	return WritePOM(t, root, group, name, version, fmt.Sprintf(
		`<project><groupId>%s</groupId><artifactId>%s</artifactId><version>%s</version></project>`,
		group, name, version))
}

// POMPath returns where the local repository at root keeps the POM of
// group:name:version.
func POMPath(root, group, name, version string) string {
	return filepath.Join(root, filepath.FromSlash(strings.ReplaceAll(group, ".", "/")), name, version, name+"-"+version+".pom")
}

// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteFile_CreatesParents(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "a", "b", "module.cue")
	WriteFile(t, path, `module: "fe-core"`)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `module: "fe-core"` {
		t.Errorf("content = %q", data)
	}
}

func TestWriteMinimalPOM_Layout(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	path := WriteMinimalPOM(t, root, "com.google.guava", "guava", "32.1.2-jre")

	want := filepath.Join(root, "com", "google", "guava", "guava", "32.1.2-jre", "guava-32.1.2-jre.pom")
	if path != want {
		t.Errorf("path = %q, want %q", path, want)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "<artifactId>guava</artifactId>") {
		t.Errorf("pom = %s", data)
	}
}

// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"os"
	"runtime"
	"testing"
)

func TestSetHomeDir(t *testing.T) {
	dir := t.TempDir()
	SetHomeDir(t, dir)

	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatal(err)
	}
	if home != dir {
		t.Errorf("UserHomeDir() = %q, want %q", home, dir)
	}
	if runtime.GOOS != "windows" && os.Getenv("XDG_CONFIG_HOME") != "" {
		t.Errorf("XDG_CONFIG_HOME = %q, want empty", os.Getenv("XDG_CONFIG_HOME"))
	}
}

// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestFilesystemPath_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path    FilesystemPath
		wantErr bool
	}{
		{".mason/cache", false},
		{"/var/cache/mason", false},
		{".", false},
		{"", true},
		{" \t", true},
	}
	for _, tt := range tests {
		err := tt.path.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("FilesystemPath(%q).Validate() = %v, wantErr %v", tt.path, err, tt.wantErr)
			continue
		}
		var fpErr *InvalidFilesystemPathError
		if tt.wantErr && (!errors.Is(err, ErrInvalidFilesystemPath) || !errors.As(err, &fpErr)) {
			t.Errorf("FilesystemPath(%q).Validate() = %T, want *InvalidFilesystemPathError", tt.path, err)
		}
	}
}

func TestFilesystemPath_Resolve(t *testing.T) {
	t.Parallel()

	base := filepath.Join(t.TempDir(), "starrocks", "fe")
	abs := filepath.Join(t.TempDir(), "cache")

	tests := []struct {
		name string
		path FilesystemPath
		want string
	}{
		{"relative joins base", ".mason/cache", filepath.Join(base, ".mason", "cache")},
		{"absolute kept", FilesystemPath(abs), abs},
		{"dot is base", ".", base},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.path.Resolve(base); got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", base, got, tt.want)
			}
		})
	}
}

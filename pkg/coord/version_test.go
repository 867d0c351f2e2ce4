// SPDX-License-Identifier: MPL-2.0

package coord

import (
	"errors"
	"testing"
)

func TestCompare(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b Version
		want int
	}{
		{"1.5", "2.0", -1},
		{"2.1", "2.0", 1},
		{"2.15.2", "2.15.2", 0},
		{"1.0", "1.0.0", 0},
		{"1.10.0", "1.9.3", 1},
		{"4.1.118.Final", "4.1.100.Final", 1},
		{"9.4.57.v20241219", "9.4.56.v20240826", 1},
		{"1.0-rc1", "1.0", -1},
		{"1.0.1", "1.0-rc1", 1},
		{"1.0-alpha", "1.0-beta", -1},
		{"1.0-SNAPSHOT", "1.0", -1},
		{"1.0.final", "1.0", 0},
		{"3.4.1", "3.4.1-sp1", -1},
		{"v1.2.0", "1.2.0", 0},
		{"4.0.0rc1", "4.0.0", -1},
	}

	for _, tt := range tests {
		if got := Compare(tt.a, tt.b); got != tt.want {
			t.Errorf("Compare(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
		if got := Compare(tt.b, tt.a); got != -tt.want {
			t.Errorf("Compare(%q, %q) = %d, want %d (antisymmetry)", tt.b, tt.a, got, -tt.want)
		}
	}
}

func TestHighest(t *testing.T) {
	t.Parallel()

	if got := Highest("1.5", "2.1", "2.0"); got != "2.1" {
		t.Errorf("Highest = %q, want 2.1", got)
	}
	if got := Highest(); got != "" {
		t.Errorf("Highest() = %q, want empty", got)
	}
}

func TestVersionValidate(t *testing.T) {
	t.Parallel()

	for _, v := range []Version{"", "  ", "1.0 beta", "${jackson.version}"} {
		if err := v.Validate(); !errors.Is(err, ErrInvalidVersion) {
			t.Errorf("Validate(%q) = %v, want ErrInvalidVersion", v, err)
		}
	}
	if err := Version("hadoop3-2.2.26").Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

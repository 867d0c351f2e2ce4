// SPDX-License-Identifier: MPL-2.0

package coord

import "testing"

func TestPropagate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		parent, child Scope
		want          Scope
		ok            bool
	}{
		{ScopeCompile, ScopeCompile, ScopeCompile, true},
		{ScopeCompile, ScopeRuntime, ScopeRuntime, true},
		{ScopeRuntime, ScopeCompile, ScopeRuntime, true},
		{ScopeTest, ScopeCompile, ScopeTest, true},
		{ScopeCompileOnly, ScopeRuntime, ScopeCompileOnly, true},
		{ScopeCompile, ScopeTest, "", false},
		{ScopeCompile, ScopeCompileOnly, "", false},
	}
	for _, tt := range tests {
		got, ok := Propagate(tt.parent, tt.child)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Propagate(%s, %s) = (%s, %v), want (%s, %v)", tt.parent, tt.child, got, ok, tt.want, tt.ok)
		}
	}
}

func TestMerge(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b, want Scope
	}{
		{ScopeTest, ScopeRuntime, ScopeRuntime},
		{ScopeRuntime, ScopeCompile, ScopeCompile},
		{ScopeRuntime, ScopeCompileOnly, ScopeCompile},
		{ScopeCompileOnly, ScopeTest, ScopeCompileOnly},
		{"", ScopeTest, ScopeTest},
		{ScopeRuntime, ScopeRuntime, ScopeRuntime},
	}
	for _, tt := range tests {
		if got := Merge(tt.a, tt.b); got != tt.want {
			t.Errorf("Merge(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.want)
		}
		if got := Merge(tt.b, tt.a); got != tt.want {
			t.Errorf("Merge(%s, %s) = %s, want %s", tt.b, tt.a, got, tt.want)
		}
	}
}

func TestScopeValidate(t *testing.T) {
	t.Parallel()

	for _, s := range Scopes() {
		if err := s.Validate(); err != nil {
			t.Errorf("Validate(%s) = %v", s, err)
		}
	}
	if err := Scope("provided").Validate(); err == nil {
		t.Error("expected error for unknown scope")
	}
	if !ScopeRuntime.Packaged() || ScopeCompileOnly.Packaged() || ScopeTest.Packaged() {
		t.Error("Packaged() must be true only for compile and runtime")
	}
}

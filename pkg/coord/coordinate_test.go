// SPDX-License-Identifier: MPL-2.0

package coord

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Coordinate
		wantErr bool
	}{
		{in: "io.netty:netty-all", want: Coordinate{Group: "io.netty", Name: "netty-all"}},
		{in: "com.starrocks:jprotobuf-starrocks:jar-with-dependencies", want: Coordinate{Group: "com.starrocks", Name: "jprotobuf-starrocks", Classifier: "jar-with-dependencies"}},
		{in: " org.antlr:antlr4 ", want: Coordinate{Group: "org.antlr", Name: "antlr4"}},
		{in: "io.netty", wantErr: true},
		{in: "a:b:c:d", wantErr: true},
		{in: ":name", wantErr: true},
		{in: "group:na me", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCoordinate) {
					t.Fatalf("Parse(%q) error = %v, want ErrInvalidCoordinate", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParsePinned(t *testing.T) {
	t.Parallel()

	c, v, err := ParsePinned("com.azure:azure-sdk-bom:1.2.34")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Key() != "com.azure:azure-sdk-bom" || v != "1.2.34" {
		t.Errorf("got %s %s", c, v)
	}

	if _, _, err := ParsePinned("com.azure:azure-sdk-bom"); err == nil {
		t.Error("expected error for missing version")
	}
}

func TestCoordinateKeyExcludesVersionAndIncludesClassifier(t *testing.T) {
	t.Parallel()

	plain := MustParse("org.apache.hadoop:hadoop-common")
	classified := MustParse("org.apache.hadoop:hadoop-common:tests")
	if plain.Key() == classified.Key() {
		t.Fatalf("classifier must be part of identity: %s == %s", plain.Key(), classified.Key())
	}
	if !plain.Less(classified) {
		t.Errorf("expected %s < %s", plain, classified)
	}
}

func TestCoordinateMatches(t *testing.T) {
	t.Parallel()

	c := MustParse("io.netty:netty-handler")
	cases := map[string]bool{
		"io.netty":                true,
		"io.netty:*":              true,
		"io.netty:netty-handler":  true,
		"io.netty:netty-buffer":   false,
		"org.apache.hadoop":       false,
		"io.netty:netty-handler2": false,
	}
	for pattern, want := range cases {
		if got := c.Matches(pattern); got != want {
			t.Errorf("Matches(%q) = %v, want %v", pattern, got, want)
		}
	}
}

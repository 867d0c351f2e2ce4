// SPDX-License-Identifier: MPL-2.0

package codegen

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFingerprintStores(t *testing.T) {
	t.Parallel()

	stores := map[string]func(t *testing.T) FingerprintStore{
		"memory": func(*testing.T) FingerprintStore { return NewMemoryStore() },
		"sqlite in memory": func(t *testing.T) FingerprintStore {
			s, err := OpenSQLiteStore(":memory:")
			if err != nil {
				t.Fatal(err)
			}
			return s
		},
		"sqlite file": func(t *testing.T) FingerprintStore {
			s, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "nested", StoreFileName))
			if err != nil {
				t.Fatal(err)
			}
			return s
		},
	}
	for name, open := range stores {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			s := open(t)
			defer s.Close()
			ctx := context.Background()

			if _, found, err := s.Get(ctx, "fe-core/grammar#0"); err != nil || found {
				t.Fatalf("empty store Get = %v, %v", found, err)
			}
			rec := Record{Fingerprint: "abc", Files: []string{"a/A.java", "a/B.java"}}
			if err := s.Put(ctx, "fe-core/grammar#0", rec); err != nil {
				t.Fatal(err)
			}
			rec.Fingerprint = "def"
			if err := s.Put(ctx, "fe-core/grammar#0", rec); err != nil {
				t.Fatal(err)
			}
			got, found, err := s.Get(ctx, "fe-core/grammar#0")
			if err != nil || !found {
				t.Fatalf("Get = %v, %v", found, err)
			}
			if diff := cmp.Diff(rec, got); diff != "" {
				t.Errorf("record (-want +got):\n%s", diff)
			}
			if err := s.Delete(ctx, "fe-core/grammar#0"); err != nil {
				t.Fatal(err)
			}
			if _, found, _ := s.Get(ctx, "fe-core/grammar#0"); found {
				t.Error("record survived Delete")
			}
		})
	}
}

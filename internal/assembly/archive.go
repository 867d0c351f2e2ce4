// SPDX-License-Identifier: MPL-2.0

package assembly

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// archiveTime is stamped on every entry so archives do not depend on the
// build clock.
var archiveTime = time.Date(1980, time.February, 1, 0, 0, 0, 0, time.UTC)

type (
	// ArchiveEntry is one member of an archive.
	ArchiveEntry struct {
		Name string
		Data []byte
	}
)

// encodeArchive writes entries in the given order with fixed timestamps and
// compression. Parent directories are emitted before their first member.
func encodeArchive(entries []ArchiveEntry) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	dirs := make(map[string]bool)
	for _, e := range entries {
		for _, d := range parentDirs(e.Name) {
			if dirs[d] {
				continue
			}
			dirs[d] = true
			fh := &zip.FileHeader{Name: d, Method: zip.Store, Modified: archiveTime}
			fh.SetMode(0o755 | os.ModeDir)
			if _, err := zw.CreateHeader(fh); err != nil {
				return nil, err
			}
		}
		fh := &zip.FileHeader{Name: e.Name, Method: zip.Deflate, Modified: archiveTime}
		fh.SetMode(0o644)
		w, err := zw.CreateHeader(fh)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(e.Data); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// parentDirs returns "a/", "a/b/" for "a/b/c".
func parentDirs(name string) []string {
	var out []string
	for i := 0; i < len(name); i++ {
		if name[i] == '/' {
			out = append(out, name[:i+1])
		}
	}
	return out
}

// writeArchive atomically writes data to path and returns its hex SHA-256.
func writeArchive(path string, data []byte) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) //nolint:errcheck // best-effort cleanup
		return "", fmt.Errorf("rename %s: %w", tmp, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ReadArchive returns the file members of an archive in archive order.
func ReadArchive(path string) ([]ArchiveEntry, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer zr.Close()

	var out []ArchiveEntry
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		data, err := readZipFile(f)
		if err != nil {
			return nil, fmt.Errorf("read %s!%s: %w", path, f.Name, err)
		}
		out = append(out, ArchiveEntry{Name: f.Name, Data: data})
	}
	return out, nil
}

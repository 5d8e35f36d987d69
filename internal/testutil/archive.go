// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

// TarEntry is one member of a test archive. A zero Typeflag means a regular
// file and a zero Mode means 0644.
type TarEntry struct {
	Name     string
	Body     string
	Typeflag byte
	Linkname string
	Mode     int64
}

// WriteTarGz writes a gzipped tarball of entries to path and returns the
// archive's sha256 as lowercase hex.
func WriteTarGz(t testing.TB, path string, entries ...TarEntry) string {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.Name, Typeflag: e.Typeflag, Linkname: e.Linkname, Mode: e.Mode}
		if hdr.Typeflag == 0 {
			hdr.Typeflag = tar.TypeReg
		}
		if hdr.Mode == 0 {
			hdr.Mode = 0o644
		}
		if hdr.Typeflag == tar.TypeReg {
			hdr.Size = int64(len(e.Body))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if hdr.Typeflag == tar.TypeReg {
			if _, err := tw.Write([]byte(e.Body)); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}

	MustWriteFile(t, path, buf.String(), 0o644)
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

// Package writes a source tarball to path whose files all sit under the
// single directory top and are executable. Files are added in lexical order
// so the checksum is stable.
func Package(t testing.TB, path, top string, files map[string]string) string {
	t.Helper()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	slices.Sort(names)

	entries := []TarEntry{{Name: top + "/", Typeflag: tar.TypeDir, Mode: 0o755}}
	for _, name := range names {
		entries = append(entries, TarEntry{Name: filepath.ToSlash(filepath.Join(top, name)), Body: files[name], Mode: 0o755})
	}
	return WriteTarGz(t, path, entries...)
}

// MustReadFile returns the contents of path.
func MustReadFile(t testing.TB, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

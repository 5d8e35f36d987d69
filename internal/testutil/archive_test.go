// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestPackage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pkg.tar.gz")
	sum := Package(t, path, "pkg-1.0", map[string]string{
		"install.sh": "#!/bin/sh\n",
		"bin/tool":   "#!/bin/sh\necho tool\n",
	})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := sha256.Sum256(data)
	if sum != hex.EncodeToString(want[:]) {
		t.Errorf("checksum = %s, want %x", sum, want)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	tr := tar.NewReader(gz)

	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		names = append(names, hdr.Name)
		if hdr.Typeflag == tar.TypeReg && hdr.Mode != 0o755 {
			t.Errorf("%s mode = %o, want 755", hdr.Name, hdr.Mode)
		}
	}
	want2 := []string{"pkg-1.0/", "pkg-1.0/bin/tool", "pkg-1.0/install.sh"}
	if len(names) != len(want2) {
		t.Fatalf("entries = %v, want %v", names, want2)
	}
	for i := range want2 {
		if names[i] != want2[i] {
			t.Errorf("entry %d = %s, want %s", i, names[i], want2[i])
		}
	}
}

func TestPackage_StableChecksum(t *testing.T) {
	t.Parallel()

	files := map[string]string{"a": "1", "b": "2", "c": "3"}
	dir := t.TempDir()
	first := Package(t, filepath.Join(dir, "one.tar.gz"), "x", files)
	second := Package(t, filepath.Join(dir, "two.tar.gz"), "x", files)
	if first != second {
		t.Errorf("checksums differ: %s vs %s", first, second)
	}
}

func TestFileURL(t *testing.T) {
	t.Parallel()

	if got := FileURL("/srv/mirror/a b.tgz"); got != "file:///srv/mirror/a%20b.tgz" {
		t.Errorf("FileURL = %q", got)
	}
}

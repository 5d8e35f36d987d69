// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"net/url"
	"os"
	"path/filepath"
	"testing"
)

// SystemToolPath is the tool path tests use for install directives and
// assertions: enough for sh, cp, mkdir and friends.
const SystemToolPath = "/usr/bin:/bin"

// MustMkdirAll creates a directory along with any necessary parents.
// The test fails immediately if the operation fails.
func MustMkdirAll(t testing.TB, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("failed to create directory %s: %v", path, err)
	}
}

// MustWriteFile writes body to path, creating parent directories.
// The test fails immediately if the operation fails.
func MustWriteFile(t testing.TB, path, body string, perm os.FileMode) {
	t.Helper()
	MustMkdirAll(t, filepath.Dir(path))
	if err := os.WriteFile(path, []byte(body), perm); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// WriteFormula writes body as <dir>/<name>.cue and returns its path.
func WriteFormula(t testing.TB, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name+".cue")
	MustWriteFile(t, path, body, 0o644)
	return path
}

// FileURL returns the file:// URL of an absolute path.
func FileURL(path string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

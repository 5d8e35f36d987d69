// SPDX-License-Identifier: MPL-2.0

package formula

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func writeFormula(t *testing.T, dir, name, url string) string {
	t.Helper()

	p := filepath.Join(dir, name+FileExt)
	body := "name: \"" + name + "\"\nurl: \"" + url + "\"\nsha256: \"" + validSHA + "\"\n"
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestRepository_Lookup(t *testing.T) {
	t.Parallel()

	first, second := t.TempDir(), t.TempDir()
	writeFormula(t, first, "jq", "https://first.example/jq.tar.gz")
	writeFormula(t, second, "jq", "https://second.example/jq.tar.gz")
	writeFormula(t, second, "rlwrap", "https://second.example/rlwrap.tar.gz")

	repo := NewRepository(first, second)

	f, err := repo.Lookup("jq")
	if err != nil {
		t.Fatalf("Lookup(jq) error = %v", err)
	}
	if f.URL != "https://first.example/jq.tar.gz" {
		t.Errorf("earlier directory should win, got %q", f.URL)
	}
	if !repo.Has("rlwrap") {
		t.Errorf("Has(rlwrap) = false")
	}
	if repo.Has("missing") {
		t.Errorf("Has(missing) = true")
	}

	_, err = repo.Lookup("missing")
	if !errors.Is(err, ErrFormulaNotFound) {
		t.Errorf("Lookup(missing) error = %v, want ErrFormulaNotFound", err)
	}

	names, err := repo.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if want := []Name{"jq", "rlwrap"}; !slices.Equal(names, want) {
		t.Errorf("List() = %v, want %v", names, want)
	}
}

func TestRepository_LoadPath(t *testing.T) {
	t.Parallel()

	repo := NewRepository()
	f, err := repo.Load(filepath.Join("testdata", "clojure.cue"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if f.Name != "clojure" {
		t.Errorf("Name = %q", f.Name)
	}
}

func TestRepository_ReloadsChangedFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := writeFormula(t, dir, "jq", "https://a.example/jq.tar.gz")
	repo := NewRepository(dir)

	if _, err := repo.Lookup("jq"); err != nil {
		t.Fatal(err)
	}

	writeFormula(t, dir, "jq", "https://b.example/jq.tar.gz")
	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(p, later, later); err != nil {
		t.Fatal(err)
	}

	f, err := repo.Lookup("jq")
	if err != nil {
		t.Fatal(err)
	}
	if f.URL != "https://b.example/jq.tar.gz" {
		t.Errorf("stale cache entry returned: %q", f.URL)
	}
}

func TestRepository_NameMismatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := filepath.Join(dir, "jq.cue")
	body := "name: \"yq\"\nurl: \"https://example.com/yq.tar.gz\"\nsha256: \"" + validSHA + "\"\n"
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewRepository(dir).Lookup("jq")
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Field != "name" {
		t.Errorf("Lookup() error = %v, want name ParseError", err)
	}
}

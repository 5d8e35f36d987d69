// SPDX-License-Identifier: MPL-2.0

package formula

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// FileExt is the extension of formula files.
	FileExt = ".cue"

	defaultCacheSize = 256
)

// ErrFormulaNotFound is returned when no formula directory has the requested name.
var ErrFormulaNotFound = errors.New("formula not found")

type (
	// Repository finds formulas by name across an ordered list of directories
	// ("<dir>/<name>.cue"). Parsed formulas are cached and re-read when the
	// file's modification time changes. Safe for concurrent use.
	Repository struct {
		dirs  []string
		cache *lru.Cache[string, cachedFormula]
	}

	cachedFormula struct {
		modTime time.Time
		formula *Formula
	}

	// NotFoundError names the formula and the directories searched.
	NotFoundError struct {
		Name Name
		Dirs []string
	}
)

func (e *NotFoundError) Error() string {
	if len(e.Dirs) == 0 {
		return fmt.Sprintf("formula %s not found (no formula directories configured)", e.Name)
	}
	return fmt.Sprintf("formula %s not found in %s", e.Name, strings.Join(e.Dirs, ", "))
}

// Unwrap returns ErrFormulaNotFound for errors.Is.
func (e *NotFoundError) Unwrap() error { return ErrFormulaNotFound }

// NewRepository creates a Repository over dirs. Earlier directories win.
func NewRepository(dirs ...string) *Repository {
	cache, err := lru.New[string, cachedFormula](defaultCacheSize)
	if err != nil {
		// Only returned for a non-positive size.
		panic(err)
	}
	return &Repository{dirs: dirs, cache: cache}
}

// Dirs returns the search directories in precedence order.
func (r *Repository) Dirs() []string {
	return append([]string(nil), r.dirs...)
}

// IsPathRef reports whether ref names a formula file rather than a formula name.
func IsPathRef(ref string) bool {
	return strings.HasSuffix(ref, FileExt) || strings.ContainsRune(ref, filepath.Separator) || strings.ContainsRune(ref, '/')
}

// Load resolves ref, which is either a formula name or a path to a formula file.
func (r *Repository) Load(ref string) (*Formula, error) {
	if IsPathRef(ref) {
		return r.loadFile(ref)
	}
	return r.Lookup(Name(ref))
}

// Lookup returns the formula called name from the first directory that has it.
func (r *Repository) Lookup(name Name) (*Formula, error) {
	path, ok := r.find(name)
	if !ok {
		return nil, &NotFoundError{Name: name, Dirs: r.Dirs()}
	}
	f, err := r.loadFile(path)
	if err != nil {
		return nil, err
	}
	if f.Name != name {
		return nil, &ParseError{
			Path:  path,
			Field: "name",
			Err:   fmt.Errorf("file declares %q but is stored as %q", f.Name, name),
		}
	}
	return f, nil
}

// Has reports whether a formula called name exists without parsing it.
func (r *Repository) Has(name Name) bool {
	_, ok := r.find(name)
	return ok
}

func (r *Repository) find(name Name) (string, bool) {
	if ok, _ := name.IsValid(); !ok {
		return "", false
	}
	for _, dir := range r.dirs {
		p := filepath.Join(dir, string(name)+FileExt)
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			return p, true
		}
	}
	return "", false
}

func (r *Repository) loadFile(path string) (*Formula, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("reading formula: %w", err)}
	}

	if c, ok := r.cache.Get(abs); ok && c.modTime.Equal(info.ModTime()) {
		return c.formula, nil
	}

	f, err := Parse(abs)
	if err != nil {
		return nil, err
	}
	r.cache.Add(abs, cachedFormula{modTime: info.ModTime(), formula: f})
	slog.Debug("formula loaded", "name", f.Name, "path", abs)
	return f, nil
}

// List returns the names of all formulas visible through the repository,
// shadowed duplicates removed, in directory then lexical order.
func (r *Repository) List() ([]Name, error) {
	seen := make(map[Name]bool)
	var names []Name
	for _, dir := range r.dirs {
		matches, err := filepath.Glob(filepath.Join(dir, "*"+FileExt))
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", dir, err)
		}
		for _, m := range matches {
			n := Name(strings.TrimSuffix(filepath.Base(m), FileExt))
			if ok, _ := n.IsValid(); !ok || seen[n] {
				continue
			}
			seen[n] = true
			names = append(names, n)
		}
	}
	return names, nil
}

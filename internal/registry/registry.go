// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kegworks/keg/pkg/formula"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/exp/slices"
)

const (
	// FileName is the registry file inside the state directory.
	FileName = "registry.toml"

	lockFileName  = "registry.lock"
	// LocksDir holds the per-name lock files inside the state directory.
	LocksDir = "locks"
	schemaVersion = 1
)

// ErrUnsupportedSchema is returned when the registry file was written by a
// newer keg.
var ErrUnsupportedSchema = errors.New("unsupported registry schema version")

type (
	// Entry records one installed package.
	Entry struct {
		Name        formula.Name     `toml:"-" json:"name" yaml:"name"`
		Version     string           `toml:"version" json:"version" yaml:"version"`
		Prefix      string           `toml:"prefix" json:"prefix" yaml:"prefix"`
		SHA256      formula.Checksum `toml:"sha256" json:"sha256" yaml:"sha256"`
		InstalledAt time.Time        `toml:"installed_at" json:"installed_at" yaml:"installed_at"`
		BuildDeps   []formula.Name   `toml:"build_deps,omitempty" json:"build_deps,omitempty" yaml:"build_deps,omitempty"`
		RuntimeDeps []formula.Name   `toml:"runtime_deps,omitempty" json:"runtime_deps,omitempty" yaml:"runtime_deps,omitempty"`
		// InstallID correlates the entry with the log lines of the install run.
		InstallID string `toml:"install_id,omitempty" json:"install_id,omitempty" yaml:"install_id,omitempty"`
		// FormulaPath is the file the package was installed from.
		FormulaPath string `toml:"formula,omitempty" json:"formula,omitempty" yaml:"formula,omitempty"`
	}

	// Store is the installed-package registry, persisted as TOML. Reads see
	// either the previous or the next file, never a partial write. Writers
	// are serialized in-process by a mutex and across processes by flock.
	//
	// Store is passed explicitly to whoever needs it; callers that install a
	// package hold Lock(name) for the duration so a package name has a single
	// writer at a time, also across processes.
	Store struct {
		dir   string
		mu    sync.Mutex
		names keyedMutex
	}

	document struct {
		SchemaVersion int              `toml:"schema_version"`
		Packages      map[string]Entry `toml:"packages"`
	}
)

// Matches reports whether the entry records exactly this version and checksum.
func (e Entry) Matches(version string, sum formula.Checksum) bool {
	return e.Version == version && e.SHA256 == sum
}

// Open returns a Store rooted at dir, creating the directory if needed. The
// registry file itself is created on first write.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Path returns the registry file location.
func (s *Store) Path() string { return filepath.Join(s.dir, FileName) }

// Lock acquires the writer lock for name and returns its release function.
// Goroutines are serialized by an in-process mutex and keg processes sharing
// the state directory by a flock on <state>/locks/<name>.lock.
func (s *Store) Lock(name formula.Name) (unlock func(), err error) {
	if ok, errs := name.IsValid(); !ok {
		return nil, errs[0]
	}
	release := s.names.Lock(name)

	dir := filepath.Join(s.dir, LocksDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		release()
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock, err := acquireFileLock(filepath.Join(dir, string(name)+".lock"))
	if err != nil {
		release()
		return nil, fmt.Errorf("lock %s: %w", name, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			lock.Release()
			release()
		})
	}, nil
}

// Get returns the entry for name.
func (s *Store) Get(name formula.Name) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return Entry{}, false, err
	}
	e, ok := doc.Packages[string(name)]
	if !ok {
		return Entry{}, false, nil
	}
	e.Name = name
	return e, true, nil
}

// List returns all entries sorted by name.
func (s *Store) List() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(doc.Packages))
	for name, e := range doc.Packages {
		e.Name = formula.Name(name)
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b Entry) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

// Put inserts or replaces the entry for e.Name.
func (s *Store) Put(e Entry) error {
	if ok, errs := e.Name.IsValid(); !ok {
		return errs[0]
	}
	return s.update(func(doc *document) bool {
		stored := e
		stored.Name = ""
		doc.Packages[string(e.Name)] = stored
		return true
	})
}

// Remove deletes the entry for name and reports whether one existed.
func (s *Store) Remove(name formula.Name) (bool, error) {
	var removed bool
	err := s.update(func(doc *document) bool {
		if _, ok := doc.Packages[string(name)]; !ok {
			return false
		}
		delete(doc.Packages, string(name))
		removed = true
		return true
	})
	return removed, err
}

// update runs a read-modify-write cycle under both locks. mutate returns
// false when nothing changed, which skips the write.
func (s *Store) update(mutate func(*document) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, err := acquireFileLock(filepath.Join(s.dir, lockFileName))
	if err != nil {
		return fmt.Errorf("lock registry: %w", err)
	}
	defer lock.Release()

	doc, err := s.read()
	if err != nil {
		return err
	}
	if !mutate(doc) {
		return nil
	}
	return s.write(doc)
}

func (s *Store) read() (*document, error) {
	doc := &document{SchemaVersion: schemaVersion, Packages: map[string]Entry{}}

	data, err := os.ReadFile(s.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}

	if err := toml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", s.Path(), err)
	}
	if doc.SchemaVersion > schemaVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedSchema, doc.SchemaVersion)
	}
	if doc.Packages == nil {
		doc.Packages = map[string]Entry{}
	}
	return doc, nil
}

// write replaces the registry file atomically: temp file, fsync, rename.
func (s *Store) write(doc *document) (err error) {
	doc.SchemaVersion = schemaVersion

	var buf bytes.Buffer
	buf.WriteString("# Managed by keg. Do not edit while keg is running.\n\n")
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".registry-*.toml")
	if err != nil {
		return fmt.Errorf("create temp registry: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp registry: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp registry: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp registry: %w", err)
	}
	if err = os.Rename(tmpPath, s.Path()); err != nil {
		return fmt.Errorf("replace registry: %w", err)
	}
	return nil
}

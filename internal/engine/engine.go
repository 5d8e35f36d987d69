// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kegworks/keg/internal/fetch"
	"github.com/kegworks/keg/internal/install"
	"github.com/kegworks/keg/internal/metrics"
	"github.com/kegworks/keg/internal/registry"
	"github.com/kegworks/keg/internal/resolve"
	"github.com/kegworks/keg/internal/testrun"
	"github.com/kegworks/keg/pkg/formula"
)

const defaultParallelism = 4

type (
	// Dependencies are the collaborators an Engine drives. Formulas, Store,
	// Fetcher, Installer and Tester are required.
	Dependencies struct {
		Formulas  *formula.Repository
		Store     *registry.Store
		Fetcher   *fetch.Fetcher
		Installer *install.Runner
		Tester    *testrun.Runner
		// Metrics may be nil.
		Metrics *metrics.Metrics
		// ToolPath is the PATH-like list searched for dependencies that are
		// neither installed nor available as formulas.
		ToolPath string
		// Parallelism bounds concurrent installs in InstallAll.
		Parallelism int
	}

	// Engine runs the install pipeline.
	Engine struct {
		formulas    *formula.Repository
		store       *registry.Store
		fetcher     *fetch.Fetcher
		installer   *install.Runner
		tester      *testrun.Runner
		resolver    *resolve.Resolver
		metrics     *metrics.Metrics
		toolPath    string
		parallelism int

		now   func() time.Time
		newID func() string
	}

	// Options tune one Install or InstallAll call.
	Options struct {
		// SkipTest disables the Test stage for the requested formulas.
		SkipTest bool
		// Force reinstalls packages that are already installed and unchanged.
		Force bool
		// Runtime overrides the runtime of every install directive.
		Runtime formula.RuntimeMode
	}
)

// New creates an Engine.
func New(deps Dependencies) *Engine {
	parallelism := deps.Parallelism
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}
	return &Engine{
		formulas:    deps.Formulas,
		store:       deps.Store,
		fetcher:     deps.Fetcher,
		installer:   deps.Installer,
		tester:      deps.Tester,
		resolver:    resolve.New(deps.Store, deps.Formulas, resolve.WithToolPath(deps.ToolPath)),
		metrics:     deps.Metrics,
		toolPath:    deps.ToolPath,
		parallelism: parallelism,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// Store returns the installed-package registry.
func (e *Engine) Store() *registry.Store { return e.store }

// Load resolves ref (a formula name or a path to a formula file).
func (e *Engine) Load(ctx context.Context, ref string) (*formula.Formula, error) {
	var f *formula.Formula
	err := e.runStage(ctx, StageLoad, refName(ref), func(context.Context) error {
		var err error
		f, err = e.formulas.Load(ref)
		return err
	})
	return f, err
}

// Plan loads refs and resolves their dependencies without installing anything.
func (e *Engine) Plan(ctx context.Context, refs ...string) (*resolve.Plan, error) {
	roots := make([]*formula.Formula, 0, len(refs))
	for _, ref := range refs {
		f, err := e.Load(ctx, ref)
		if err != nil {
			return nil, err
		}
		roots = append(roots, f)
	}

	var plan *resolve.Plan
	var name formula.Name
	if len(roots) == 1 {
		name = roots[0].Name
	}
	err := e.runStage(ctx, StageResolve, name, func(ctx context.Context) error {
		var err error
		plan, err = e.resolver.Resolve(ctx, roots...)
		return err
	})
	return plan, err
}

// Fetch downloads and verifies the source artifact of ref, filling the
// download cache.
func (e *Engine) Fetch(ctx context.Context, ref string) (*fetch.Artifact, error) {
	f, err := e.Load(ctx, ref)
	if err != nil {
		return nil, err
	}
	return e.fetch(ctx, f)
}

func (e *Engine) fetch(ctx context.Context, f *formula.Formula) (*fetch.Artifact, error) {
	var art *fetch.Artifact
	err := e.runStage(ctx, StageFetch, f.Name, func(ctx context.Context) error {
		u, err := f.SourceURL()
		if err != nil {
			return err
		}
		art, err = e.fetcher.Fetch(ctx, u, f.SHA256)
		if err != nil {
			return err
		}
		e.metrics.FetchDone(art.Size, art.FromCache)
		return nil
	})
	return art, err
}

// depPaths returns the directories added to PATH for f's directives: the
// bin dirs of installed or planned dependencies and the directories of
// tool path hits.
func (e *Engine) depPaths(f *formula.Formula, plan *resolve.Plan) []string {
	var dirs []string
	for _, s := range plan.SatisfiedFor(f.Name) {
		switch s.Source {
		case resolve.SourceRegistry:
			dirs = append(dirs, filepath.Join(s.Location, "bin"))
		case resolve.SourceToolPath:
			dirs = append(dirs, filepath.Dir(s.Location))
		}
	}
	for _, d := range f.DependsOn {
		if step, ok := plan.Step(d.Name); ok {
			dirs = append(dirs, filepath.Join(e.installer.Prefix(step.Formula), "bin"))
		}
	}
	return dirs
}

// MissingRuntimeDeps returns the recorded runtime dependencies of entry that
// are neither installed nor on the tool path.
func (e *Engine) MissingRuntimeDeps(entry registry.Entry) ([]formula.Name, error) {
	_, missing, err := e.runtimeDepPaths(entry)
	return missing, err
}

// runtimeDepPaths returns the PATH directories of entry's recorded runtime
// dependencies: the bin dir of installed ones and the directory of tool
// path hits. Dependencies found in neither place are returned as missing.
func (e *Engine) runtimeDepPaths(entry registry.Entry) (dirs []string, missing []formula.Name, err error) {
	for _, name := range entry.RuntimeDeps {
		dep, ok, err := e.store.Get(name)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			if _, statErr := os.Stat(dep.Prefix); statErr == nil {
				dirs = append(dirs, filepath.Join(dep.Prefix, "bin"))
				continue
			}
		}
		if dir, found := findOnPath(string(name), e.toolPath); found {
			dirs = append(dirs, dir)
			continue
		}
		missing = append(missing, name)
	}
	return dirs, missing, nil
}

func findOnPath(name, path string) (string, bool) {
	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			continue
		}
		info, err := os.Stat(filepath.Join(dir, name))
		if err == nil && info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0 {
			return dir, true
		}
	}
	return "", false
}

func refName(ref string) formula.Name {
	if formula.IsPathRef(ref) {
		return ""
	}
	return formula.Name(ref)
}

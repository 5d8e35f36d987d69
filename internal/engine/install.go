// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kegworks/keg/internal/fetch"
	"github.com/kegworks/keg/internal/install"
	"github.com/kegworks/keg/internal/metrics"
	"github.com/kegworks/keg/internal/registry"
	"github.com/kegworks/keg/internal/resolve"
	"github.com/kegworks/keg/internal/testrun"
	"github.com/kegworks/keg/pkg/formula"
)

type (
	// Report describes an Install or InstallAll run.
	Report struct {
		Plan *resolve.Plan
		// Packages are in completion order.
		Packages []PackageReport
		// Tests holds one report per tested root.
		Tests []*testrun.Report
	}

	// PackageReport is the outcome of one planned formula.
	PackageReport struct {
		Name    formula.Name
		Version string
		Prefix  string
		// Skipped is true when the package was already installed and unchanged.
		Skipped   bool
		Artifact  *fetch.Artifact
		InstallID string
		Duration  time.Duration
	}
)

// Package returns the report for name.
func (r *Report) Package(name formula.Name) (PackageReport, bool) {
	for _, p := range r.Packages {
		if p.Name == name {
			return p, true
		}
	}
	return PackageReport{}, false
}

// Install runs the whole pipeline for ref: dependencies first, then ref
// itself, then its test block unless opts.SkipTest.
func (e *Engine) Install(ctx context.Context, ref string, opts Options) (*Report, error) {
	return e.InstallAll(ctx, []string{ref}, opts)
}

// InstallAll installs several formulas and their dependencies. Independent
// formulas install concurrently, bounded by the configured parallelism. The
// first failing install cancels the rest. Test failures of the requested
// formulas are reported after every install finished and never undo them.
func (e *Engine) InstallAll(ctx context.Context, refs []string, opts Options) (*Report, error) {
	plan, err := e.Plan(ctx, refs...)
	if err != nil {
		return nil, err
	}

	report := &Report{Plan: plan}
	if err := e.schedule(ctx, plan, opts, report); err != nil {
		return report, err
	}

	if opts.SkipTest {
		return report, nil
	}

	var testErrs []error
	for _, step := range plan.Steps {
		if !step.Root || step.Formula.Test == nil {
			continue
		}
		pkg, _ := report.Package(step.Formula.Name)
		tr, err := e.test(ctx, step.Formula, pkg.Prefix, e.depPaths(step.Formula, plan))
		if tr != nil {
			report.Tests = append(report.Tests, tr)
		}
		if err != nil {
			if ctx.Err() != nil {
				return report, err
			}
			testErrs = append(testErrs, err)
		}
	}
	return report, errors.Join(testErrs...)
}

// schedule installs the plan's steps. Steps are started in topological
// order and each waits for its Needs, so a waiting step only ever blocks on
// steps that already hold or released a worker slot.
func (e *Engine) schedule(ctx context.Context, plan *resolve.Plan, opts Options, report *Report) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)

	done := make(map[formula.Name]chan struct{}, len(plan.Steps))
	for _, step := range plan.Steps {
		done[step.Formula.Name] = make(chan struct{})
	}

	var mu sync.Mutex
	for _, step := range plan.Steps {
		g.Go(func() error {
			for _, need := range step.Needs {
				select {
				case <-done[need]:
				case <-gctx.Done():
					return gctx.Err()
				}
			}

			pkg, err := e.installOne(gctx, step.Formula, plan, opts)
			if err != nil {
				return err
			}

			mu.Lock()
			report.Packages = append(report.Packages, *pkg)
			mu.Unlock()
			close(done[step.Formula.Name])
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	// errgroup only reports the first error; a parent cancellation that
	// stopped waiting steps surfaces here.
	return ctx.Err()
}

// installOne runs Fetch -> Install -> Register for one formula while holding
// the registry lock for its name.
func (e *Engine) installOne(ctx context.Context, f *formula.Formula, plan *resolve.Plan, opts Options) (*PackageReport, error) {
	unlock, err := e.store.Lock(f.Name)
	if err != nil {
		return nil, &StageError{Stage: StageInstall, Formula: f.Name, Err: err}
	}
	defer unlock()

	start := time.Now()
	pkg := &PackageReport{Name: f.Name, Version: f.Version, Prefix: e.installer.Prefix(f)}

	if !opts.Force {
		skip, err := e.upToDate(f, pkg.Prefix)
		if err != nil {
			return nil, &StageError{Stage: StageRegister, Formula: f.Name, Err: err}
		}
		if skip {
			slog.Info("already installed", "formula", f.Name, "version", f.Version, "prefix", pkg.Prefix)
			pkg.Skipped = true
			e.metrics.InstallDone(metrics.OutcomeSkipped)
			return pkg, nil
		}
	}

	art, err := e.fetch(ctx, f)
	if err != nil {
		e.metrics.InstallDone(metrics.OutcomeFailure)
		return nil, err
	}
	pkg.Artifact = art

	var res *install.Result
	err = e.runStage(ctx, StageInstall, f.Name, func(ctx context.Context) error {
		var err error
		res, err = e.installer.Install(ctx, install.Request{
			Formula:      f,
			Artifact:     art.Path,
			ArtifactName: art.Name(),
			DepPaths:     e.depPaths(f, plan),
			Runtime:      opts.Runtime,
		})
		return err
	})
	if err != nil {
		e.metrics.InstallDone(metrics.OutcomeFailure)
		return nil, err
	}
	pkg.Prefix = res.Prefix

	pkg.InstallID = e.newID()
	err = e.runStage(ctx, StageRegister, f.Name, func(context.Context) error {
		return e.store.Put(registry.Entry{
			Name:        f.Name,
			Version:     f.Version,
			Prefix:      res.Prefix,
			SHA256:      f.SHA256,
			InstalledAt: e.now().UTC(),
			BuildDeps:   names(f.BuildDeps()),
			RuntimeDeps: names(f.RuntimeDeps()),
			InstallID:   pkg.InstallID,
			FormulaPath: f.FilePath,
		})
	})
	if err != nil {
		e.metrics.InstallDone(metrics.OutcomeFailure)
		return nil, err
	}

	pkg.Duration = time.Since(start)
	e.metrics.InstallDone(metrics.OutcomeSuccess)
	slog.Info("installed", "formula", f.Name, "version", f.Version, "prefix", pkg.Prefix, "install_id", pkg.InstallID, "duration", pkg.Duration)
	return pkg, nil
}

// upToDate reports whether f is registered with the same version and
// checksum and its prefix still exists.
func (e *Engine) upToDate(f *formula.Formula, prefix string) (bool, error) {
	entry, ok, err := e.store.Get(f.Name)
	if err != nil || !ok {
		return false, err
	}
	if !entry.Matches(f.Version, f.SHA256) || entry.Prefix != prefix {
		return false, nil
	}
	if _, err := os.Stat(entry.Prefix); err != nil {
		slog.Warn("registered prefix is missing, reinstalling", "formula", f.Name, "prefix", entry.Prefix)
		return false, nil
	}
	return true, nil
}

func names(deps []formula.Dependency) []formula.Name {
	if len(deps) == 0 {
		return nil
	}
	out := make([]formula.Name, len(deps))
	for i, d := range deps {
		out[i] = d.Name
	}
	return out
}

// String summarizes a package report for logs.
func (p PackageReport) String() string {
	if p.Skipped {
		return fmt.Sprintf("%s %s (already installed)", p.Name, p.Version)
	}
	return fmt.Sprintf("%s %s -> %s", p.Name, p.Version, p.Prefix)
}

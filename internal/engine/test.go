// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kegworks/keg/internal/testrun"
	"github.com/kegworks/keg/pkg/formula"
)

// Test runs the test block of an installed formula against its registered
// prefix. Dependencies come from the registry entry, so build-only
// dependencies need not be present. A failure is reported as a *StageError
// wrapping *testrun.TestFailure; the installation is left as is.
func (e *Engine) Test(ctx context.Context, ref string) (*testrun.Report, error) {
	f, err := e.Load(ctx, ref)
	if err != nil {
		return nil, err
	}

	entry, ok, err := e.store.Get(f.Name)
	if err != nil {
		return nil, &StageError{Stage: StageTest, Formula: f.Name, Err: err}
	}
	if !ok {
		return nil, &StageError{Stage: StageTest, Formula: f.Name, Err: fmt.Errorf("%s: %w", f.Name, ErrNotInstalled)}
	}
	if entry.Version != f.Version {
		slog.Warn("testing an installed version that differs from the formula",
			"formula", f.Name, "installed", entry.Version, "formula_version", f.Version)
	}

	dirs, missing, err := e.runtimeDepPaths(entry)
	if err != nil {
		return nil, &StageError{Stage: StageTest, Formula: f.Name, Err: err}
	}
	for _, m := range missing {
		slog.Warn("runtime dependency is not available", "formula", f.Name, "dependency", m)
	}

	return e.test(ctx, f, entry.Prefix, dirs)
}

func (e *Engine) test(ctx context.Context, f *formula.Formula, prefix string, depPaths []string) (*testrun.Report, error) {
	var report *testrun.Report
	err := e.runStage(ctx, StageTest, f.Name, func(ctx context.Context) error {
		var err error
		report, err = e.tester.Run(ctx, f, prefix, depPaths)
		if report != nil {
			passed := len(report.Results) - len(report.Failures())
			e.metrics.AssertionsDone(passed, len(report.Failures()))
		}
		return err
	})
	return report, err
}

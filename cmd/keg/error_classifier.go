// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"os"

	"github.com/kegworks/keg/internal/config"
	"github.com/kegworks/keg/internal/dag"
	"github.com/kegworks/keg/internal/engine"
	"github.com/kegworks/keg/internal/fetch"
	"github.com/kegworks/keg/internal/install"
	"github.com/kegworks/keg/internal/issue"
	"github.com/kegworks/keg/internal/resolve"
	"github.com/kegworks/keg/internal/runtime"
	"github.com/kegworks/keg/internal/testrun"
	"github.com/kegworks/keg/pkg/formula"
)

// classifyError maps an engine failure to its exit code and the issue
// catalog entry that explains it. The checksum case is tested before the
// generic fetch case since a mismatch is reported as a fetch failure too.
func classifyError(err error) (ExitCode, issue.Id) {
	switch {
	case err == nil:
		return ExitOK, 0
	case errors.Is(err, context.Canceled):
		return ExitCanceled, 0
	case errors.Is(err, fetch.ErrChecksumMismatch):
		return ExitChecksum, issue.ChecksumMismatchId
	case errors.Is(err, fetch.ErrFetch):
		return ExitFetch, issue.FetchFailedId
	case errors.Is(err, formula.ErrFormulaNotFound):
		return ExitParse, issue.FormulaNotFoundId
	case errors.Is(err, formula.ErrInvalidFormula):
		return ExitParse, issue.FormulaParseErrorId
	case errors.Is(err, dag.ErrCycle):
		return ExitResolve, issue.DependencyCycleId
	case errors.Is(err, resolve.ErrUnresolvedDependency):
		return ExitResolve, issue.DependencyUnresolvedId
	case errors.Is(err, install.ErrInstallFailed):
		return ExitInstall, issue.InstallFailedId
	case errors.Is(err, testrun.ErrTestFailed):
		return ExitTest, issue.TestFailedId
	case errors.Is(err, engine.ErrNotInstalled):
		return ExitFailure, issue.NotInstalledId
	case errors.Is(err, runtime.ErrRuntimeNotAvailable):
		return ExitFailure, issue.RuntimeNotAvailableId
	case errors.Is(err, config.ErrInvalidConfig):
		return ExitFailure, issue.ConfigLoadFailedId
	case errors.Is(err, os.ErrPermission):
		return ExitFailure, issue.PermissionDeniedId
	}

	var ae *issue.ActionableError
	if errors.As(err, &ae) && ae.IssueId != 0 {
		return ExitFailure, ae.IssueId
	}
	return ExitFailure, 0
}

// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"errors"
	"fmt"

	"github.com/kegworks/keg/pkg/formula"
)

// Pipeline stages.
const (
	StageLoad      Stage = "load"
	StageResolve   Stage = "resolve"
	StageFetch     Stage = "fetch"
	StageInstall   Stage = "install"
	StageRegister  Stage = "register"
	StageTest      Stage = "test"
	StageUninstall Stage = "uninstall"
)

var (
	// ErrNotInstalled is returned when a package is missing from the registry.
	ErrNotInstalled = errors.New("package is not installed")
	// ErrInUse is returned when uninstalling a package other packages need.
	ErrInUse = errors.New("package is required by installed packages")
)

type (
	// Stage names one step of the pipeline.
	Stage string

	// StageError reports the stage and formula a pipeline failure happened in.
	StageError struct {
		Stage   Stage
		Formula formula.Name
		Err     error
	}

	// InUseError lists the installed packages depending on Name.
	InUseError struct {
		Name       formula.Name
		Dependents []formula.Name
	}
)

func (e *StageError) Error() string {
	if e.Formula == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Formula, e.Err)
}

// Unwrap returns the underlying cause.
func (e *StageError) Unwrap() error { return e.Err }

func (e *InUseError) Error() string {
	return fmt.Sprintf("%s is required by %v", e.Name, e.Dependents)
}

// Unwrap returns ErrInUse for errors.Is.
func (e *InUseError) Unwrap() error { return ErrInUse }

// FailedStage returns the stage of the outermost *StageError in err, or "".
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

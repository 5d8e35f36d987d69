// SPDX-License-Identifier: MPL-2.0

package install

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kegworks/keg/internal/runtime"
	"github.com/kegworks/keg/pkg/formula"
)

// ErrInstallFailed matches every *InstallError via errors.Is.
var ErrInstallFailed = errors.New("install failed")

// InstallError reports an install directive that did not exit 0. Stdout and
// Stderr hold the directive's complete captured output.
type InstallError struct {
	Formula  formula.Name
	ExitCode runtime.ExitCode
	Stdout   string
	Stderr   string
	// Err is set when the directive could not be started at all.
	Err error
}

func (e *InstallError) Error() string {
	msg := fmt.Sprintf("install directive of %s exited with code %d", e.Formula, e.ExitCode)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if stderr := strings.TrimRight(e.Stderr, "\n"); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

// Unwrap returns the start failure, if any.
func (e *InstallError) Unwrap() error { return e.Err }

// Is matches ErrInstallFailed.
func (e *InstallError) Is(target error) bool { return target == ErrInstallFailed }

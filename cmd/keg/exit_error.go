// SPDX-License-Identifier: MPL-2.0

package cmd

import "fmt"

// Exit codes. Each failing stage has its own code so scripts can tell them apart.
const (
	ExitOK       ExitCode = 0
	ExitFailure  ExitCode = 1
	ExitParse    ExitCode = 2
	ExitResolve  ExitCode = 3
	ExitFetch    ExitCode = 4
	ExitChecksum ExitCode = 5
	ExitInstall  ExitCode = 6
	ExitTest     ExitCode = 7
	ExitCanceled ExitCode = 130
)

type (
	// ExitCode is the process exit status of a keg invocation.
	ExitCode int

	// ExitError signals a non-zero exit code without forcing os.Exit in RunE handlers.
	ExitError struct {
		Code ExitCode
		Err  error
	}
)

// Error returns the error message for ExitError.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Unwrap returns the underlying error, if any.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// SPDX-License-Identifier: MPL-2.0

package runtime

import "strconv"

const (
	// ExitCommandNotFound is reported when the program cannot be located on
	// the command's PATH.
	ExitCommandNotFound ExitCode = 127
	// ExitCannotExecute is reported when the program exists but cannot be
	// started, or lies outside the virtual sandbox.
	ExitCannotExecute ExitCode = 126
)

// ExitCode is a process exit status.
type ExitCode int

// IsNotFound reports whether the program could not be found or started.
func (c ExitCode) IsNotFound() bool { return c == ExitCommandNotFound || c == ExitCannotExecute }

// String returns the decimal form.
func (c ExitCode) String() string { return strconv.Itoa(int(c)) }

// NewErrorResult creates a Result for a command that failed to run.
func NewErrorResult(code ExitCode, err error) *Result {
	return &Result{ExitCode: code, Error: err}
}

// NewExitCodeResult creates a Result for a command that ran to completion.
func NewExitCodeResult(code ExitCode) *Result {
	return &Result{ExitCode: code}
}

// Success reports whether the command ran and exited 0.
func (r *Result) Success() bool {
	return r.ExitCode == 0 && r.Error == nil
}

// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// waitDelay bounds how long Run waits for output pipes after the process
// was killed on cancellation.
const waitDelay = 5 * time.Second

// NativeRuntime runs directives directly with os/exec. No shell is involved.
type NativeRuntime struct{}

// NewNativeRuntime creates a NativeRuntime.
func NewNativeRuntime() *NativeRuntime {
	return &NativeRuntime{}
}

// Name returns "native".
func (r *NativeRuntime) Name() string { return "native" }

// Available always returns true.
func (r *NativeRuntime) Available() bool { return true }

// Run resolves Argv[0] against Dir and Env["PATH"], then executes it.
func (r *NativeRuntime) Run(ctx context.Context, c *Command) *Result {
	if len(c.Argv) == 0 || c.Argv[0] == "" {
		return NewErrorResult(1, errors.New("empty command"))
	}
	if err := validateWorkDir(c.Dir); err != nil {
		return NewErrorResult(1, err)
	}

	program, err := LookPath(c.Argv[0], c.Dir, c.Env["PATH"])
	if err != nil {
		return notFoundResult(err)
	}

	var out outputs
	cmd := exec.CommandContext(ctx, program, c.Argv[1:]...)
	cmd.Dir = c.Dir
	cmd.Env = EnvToSlice(c.Env)
	cmd.Stdin = c.Stdin
	cmd.Stdout, cmd.Stderr = out.writers(c)
	cmd.WaitDelay = waitDelay

	err = cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return out.fill(NewErrorResult(1, fmt.Errorf("%s interrupted: %w", c.Argv[0], ctxErr)))
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code := exitErr.ExitCode()
			if code < 0 {
				// Killed by a signal.
				code = 1
			}
			return out.fill(NewExitCodeResult(ExitCode(code)))
		}
		return out.fill(NewErrorResult(1, fmt.Errorf("failed to execute %s: %w", c.Argv[0], err)))
	}
	return out.fill(NewExitCodeResult(0))
}

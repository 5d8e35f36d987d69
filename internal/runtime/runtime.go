// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/kegworks/keg/pkg/formula"
)

var (
	// ErrCommandNotFound is returned when a directive's program cannot be located.
	ErrCommandNotFound = errors.New("command not found")
	// ErrNotExecutable is returned when the program exists but lacks execute permission.
	ErrNotExecutable = errors.New("not executable")
	// ErrOutsideSandbox is returned by the virtual runtime for programs that
	// live outside the directive's allowed roots.
	ErrOutsideSandbox = errors.New("program outside allowed directories")
	// ErrRuntimeNotAvailable is returned by Registry.Get for unregistered modes.
	ErrRuntimeNotAvailable = errors.New("runtime not available")
)

type (
	// Command is one directive ready to run.
	Command struct {
		// Argv is the program followed by its arguments, already expanded.
		Argv []string
		// Dir is the working directory.
		Dir string
		// Env is the complete environment. The host environment is not
		// inherited; PATH inside Env is used to resolve Argv[0].
		Env map[string]string
		// Roots are extra directories the virtual runtime may execute from,
		// in addition to Dir and the PATH entries.
		Roots []string
		Stdin io.Reader
		// Stdout and Stderr, when non-nil, receive a live copy of the output.
		Stdout io.Writer
		Stderr io.Writer
	}

	// Result is the outcome of running a Command. A non-zero ExitCode with a
	// nil Error is a normal process exit; Error is set when the command could
	// not run at all or was cancelled.
	Result struct {
		ExitCode ExitCode
		Error    error
		// Output is the captured stdout.
		Output string
		// ErrOutput is the captured stderr.
		ErrOutput string
	}

	// Runtime executes Commands.
	Runtime interface {
		// Name returns the runtime name.
		Name() string
		// Available reports whether the runtime can run on this host.
		Available() bool
		// Run executes cmd and always returns a non-nil Result.
		Run(ctx context.Context, cmd *Command) *Result
	}

	// Registry maps runtime modes to implementations.
	Registry struct {
		runtimes map[formula.RuntimeMode]Runtime
		fallback formula.RuntimeMode
	}
)

// NewRegistry creates an empty registry whose default mode is native.
func NewRegistry() *Registry {
	return &Registry{
		runtimes: make(map[formula.RuntimeMode]Runtime),
		fallback: formula.RuntimeNative,
	}
}

// Register adds a runtime under mode.
func (r *Registry) Register(mode formula.RuntimeMode, rt Runtime) {
	r.runtimes[mode] = rt
}

// SetDefault chooses the runtime used for directives that do not name one.
func (r *Registry) SetDefault(mode formula.RuntimeMode) {
	if mode != "" {
		r.fallback = mode
	}
}

// Get returns the runtime for mode; "" selects the default.
func (r *Registry) Get(mode formula.RuntimeMode) (Runtime, error) {
	if mode == "" {
		mode = r.fallback
	}
	rt, ok := r.runtimes[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRuntimeNotAvailable, mode)
	}
	if !rt.Available() {
		return nil, fmt.Errorf("%w: %s is not available on this system", ErrRuntimeNotAvailable, mode)
	}
	return rt, nil
}

// Available lists the modes whose runtimes are usable.
func (r *Registry) Available() []formula.RuntimeMode {
	var out []formula.RuntimeMode
	for _, mode := range []formula.RuntimeMode{formula.RuntimeNative, formula.RuntimeVirtual} {
		if rt, ok := r.runtimes[mode]; ok && rt.Available() {
			out = append(out, mode)
		}
	}
	return out
}

// outputs wires capture buffers to the optional live writers.
type outputs struct {
	stdout, stderr bytes.Buffer
}

func (o *outputs) writers(cmd *Command) (io.Writer, io.Writer) {
	var out, errw io.Writer = &o.stdout, &o.stderr
	if cmd.Stdout != nil {
		out = io.MultiWriter(&o.stdout, cmd.Stdout)
	}
	if cmd.Stderr != nil {
		errw = io.MultiWriter(&o.stderr, cmd.Stderr)
	}
	return out, errw
}

func (o *outputs) fill(r *Result) *Result {
	r.Output = o.stdout.String()
	r.ErrOutput = o.stderr.String()
	return r
}

// notFoundResult maps a lookup failure to the shell's conventional codes.
func notFoundResult(err error) *Result {
	if errors.Is(err, ErrNotExecutable) {
		return NewErrorResult(ExitCannotExecute, err)
	}
	return NewErrorResult(ExitCommandNotFound, err)
}

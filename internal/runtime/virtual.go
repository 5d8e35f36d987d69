// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// VirtualRuntime runs directives through the embedded mvdan/sh interpreter.
// The argv is quoted into a single simple command, so arguments are never
// re-split or globbed. Programs are only started from the work dir, the
// command's Roots or the PATH given in its Env.
type VirtualRuntime struct{}

// NewVirtualRuntime creates a VirtualRuntime.
func NewVirtualRuntime() *VirtualRuntime {
	return &VirtualRuntime{}
}

// Name returns "virtual".
func (r *VirtualRuntime) Name() string { return "virtual" }

// Available always returns true; the interpreter is built in.
func (r *VirtualRuntime) Available() bool { return true }

// Run executes c inside the interpreter.
func (r *VirtualRuntime) Run(ctx context.Context, c *Command) *Result {
	if len(c.Argv) == 0 || c.Argv[0] == "" {
		return NewErrorResult(1, errors.New("empty command"))
	}
	if err := validateWorkDir(c.Dir); err != nil {
		return NewErrorResult(1, err)
	}

	prog, err := quoteArgv(c.Argv)
	if err != nil {
		return NewErrorResult(1, err)
	}

	var out outputs
	stdout, stderr := out.writers(c)
	sandbox := newSandbox(c)

	runner, err := interp.New(
		interp.Dir(c.Dir),
		interp.Env(expand.ListEnviron(EnvToSlice(c.Env)...)),
		interp.StdIO(c.Stdin, stdout, stderr),
		interp.ExecHandlers(sandbox.execHandler),
	)
	if err != nil {
		return NewErrorResult(1, fmt.Errorf("failed to create interpreter: %w", err))
	}

	err = runner.Run(ctx, prog)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return out.fill(NewErrorResult(1, fmt.Errorf("%s interrupted: %w", c.Argv[0], ctxErr)))
	}
	if err != nil {
		var exitStatus interp.ExitStatus
		if errors.As(err, &exitStatus) {
			res := NewExitCodeResult(ExitCode(exitStatus))
			if sandbox.denied != nil {
				res.Error = sandbox.denied
			}
			return out.fill(res)
		}
		return out.fill(NewErrorResult(1, fmt.Errorf("execution failed: %w", err)))
	}
	return out.fill(NewExitCodeResult(0))
}

// quoteArgv turns argv into a parsed single-command program.
func quoteArgv(argv []string) (*syntax.File, error) {
	words := make([]string, len(argv))
	for i, a := range argv {
		q, err := syntax.Quote(a, syntax.LangBash)
		if err != nil {
			return nil, fmt.Errorf("argument %d cannot be quoted: %w", i, err)
		}
		words[i] = q
	}
	prog, err := syntax.NewParser().Parse(strings.NewReader(strings.Join(words, " ")), "directive")
	if err != nil {
		return nil, fmt.Errorf("failed to parse directive: %w", err)
	}
	return prog, nil
}

// sandbox confines the programs the interpreter may start.
type sandbox struct {
	dir    string
	path   string
	roots  []string
	denied error
}

func newSandbox(c *Command) *sandbox {
	roots := []string{c.Dir}
	roots = append(roots, c.Roots...)
	roots = append(roots, filepath.SplitList(c.Env["PATH"])...)
	clean := make([]string, 0, len(roots))
	for _, r := range roots {
		if r != "" {
			clean = append(clean, filepath.Clean(r))
		}
	}
	return &sandbox{dir: c.Dir, path: c.Env["PATH"], roots: clean}
}

func (s *sandbox) execHandler(next interp.ExecHandlerFunc) interp.ExecHandlerFunc {
	return func(ctx context.Context, args []string) error {
		hc := interp.HandlerCtx(ctx)

		program, err := LookPath(args[0], hc.Dir, s.path)
		if err != nil {
			fmt.Fprintf(hc.Stderr, "%s: %v\n", args[0], err)
			s.denied = err
			if errors.Is(err, ErrNotExecutable) {
				return interp.ExitStatus(ExitCannotExecute)
			}
			return interp.ExitStatus(ExitCommandNotFound)
		}
		if !s.allowed(program) {
			err := fmt.Errorf("%s: %w", program, ErrOutsideSandbox)
			fmt.Fprintf(hc.Stderr, "%v\n", err)
			s.denied = err
			return interp.ExitStatus(ExitCannotExecute)
		}

		return next(ctx, append([]string{program}, args[1:]...))
	}
}

func (s *sandbox) allowed(program string) bool {
	p := filepath.Clean(program)
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		p = resolved
	}
	for _, root := range s.roots {
		if within(p, root) {
			return true
		}
		if resolved, err := filepath.EvalSymlinks(root); err == nil && within(p, resolved) {
			return true
		}
	}
	return false
}

func within(p, root string) bool {
	rel, err := filepath.Rel(root, p)
	return err == nil && filepath.IsLocal(rel)
}

// SPDX-License-Identifier: MPL-2.0

package testrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kegworks/keg/internal/runtime"
	"github.com/kegworks/keg/pkg/formula"
)

var (
	// ErrTestFailed matches every *TestFailure via errors.Is.
	ErrTestFailed = errors.New("test failed")
	// ErrNoTest is returned for formulas without a test block.
	ErrNoTest = errors.New("formula has no test block")
)

type (
	// Runner executes test blocks.
	Runner struct {
		runtimes *runtime.Registry
		toolPath string
		hostEnv  map[string]string
		tempDir  string
		stdout   io.Writer
		stderr   io.Writer
	}

	// Option configures a Runner.
	Option func(*Runner)

	// AssertionResult is the outcome of one assertion.
	AssertionResult struct {
		Index int
		// Argv is the expanded command line.
		Argv             []string
		Passed           bool
		ExitCode         runtime.ExitCode
		ExpectedExitCode int
		// ExpectedOutput is nil when the assertion only checks the exit code.
		ExpectedOutput *string
		Output         string
		ErrOutput      string
		// Err is set when the command could not run.
		Err      error
		Duration time.Duration
	}

	// Report collects every assertion of one test run.
	Report struct {
		Formula formula.Name
		Prefix  string
		Results []AssertionResult
	}

	// TestFailure lists the failed assertions of a test run.
	TestFailure struct {
		Formula  formula.Name
		Failures []AssertionResult
		// Total is the number of assertions that ran.
		Total int
	}
)

// WithToolPath sets the PATH-like list appended to the test PATH.
func WithToolPath(path string) Option {
	return func(r *Runner) { r.toolPath = path }
}

// WithHostEnv sets the host variables passed through to assertions.
func WithHostEnv(env map[string]string) Option {
	return func(r *Runner) { r.hostEnv = env }
}

// WithTempDir sets where the scratch test directory is created.
func WithTempDir(dir string) Option {
	return func(r *Runner) { r.tempDir = dir }
}

// WithOutput mirrors assertion output live to the given writers.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(r *Runner) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

// New creates a Runner.
func New(runtimes *runtime.Registry, opts ...Option) *Runner {
	r := &Runner{runtimes: runtimes}
	for _, opt := range opts {
		opt(r)
	}
	if r.hostEnv == nil {
		r.hostEnv = runtime.HostEnv(nil, runtime.PassthroughVars)
	}
	return r
}

func (e *TestFailure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "test of %s failed: %d of %d assertions failed", e.Formula, len(e.Failures), e.Total)
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "\n  [%d] %s: %s", f.Index, strings.Join(f.Argv, " "), f.Reason())
	}
	return b.String()
}

// Is matches ErrTestFailed.
func (e *TestFailure) Is(target error) bool { return target == ErrTestFailed }

// Reason describes why the assertion failed, or "ok".
func (a AssertionResult) Reason() string {
	switch {
	case a.Passed:
		return "ok"
	case a.Err != nil:
		return a.Err.Error()
	case a.ExitCode.IsNotFound() && int(a.ExitCode) != a.ExpectedExitCode:
		return fmt.Sprintf("%s could not be run (exit code %d)", a.Argv[0], a.ExitCode)
	case int(a.ExitCode) != a.ExpectedExitCode:
		return fmt.Sprintf("exit code %d, expected %d", a.ExitCode, a.ExpectedExitCode)
	case a.ExpectedOutput != nil:
		return fmt.Sprintf("output %q, expected %q", strings.TrimSpace(a.Output), strings.TrimSpace(*a.ExpectedOutput))
	default:
		return "failed"
	}
}

// Passed reports whether every assertion passed.
func (r *Report) Passed() bool {
	return len(r.Failures()) == 0
}

// Failures returns the failed assertions in order.
func (r *Report) Failures() []AssertionResult {
	var out []AssertionResult
	for _, a := range r.Results {
		if !a.Passed {
			out = append(out, a)
		}
	}
	return out
}

// Run executes f's test block against prefix. depPaths are added to PATH
// after the prefix bin dir. The returned Report is complete even when the
// error is a *TestFailure.
func (r *Runner) Run(ctx context.Context, f *formula.Formula, prefix string, depPaths []string) (*Report, error) {
	if f.Test == nil {
		return nil, fmt.Errorf("%s: %w", f.Name, ErrNoTest)
	}

	work, err := os.MkdirTemp(r.tempDir, "keg-test-"+string(f.Name)+"-")
	if err != nil {
		return nil, fmt.Errorf("creating test dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(work); rmErr != nil {
			slog.Warn("failed to remove test dir", "path", work, "error", rmErr)
		}
	}()

	rt, err := r.runtimes.Get(f.Test.Runtime)
	if err != nil {
		return nil, err
	}

	vars := f.Vars(prefix, work)
	env := r.env(f, prefix, work, vars["bin"], depPaths)

	report := &Report{Formula: f.Name, Prefix: prefix}
	for i, a := range f.Test.Assertions {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Results = append(report.Results, r.runAssertion(ctx, rt, i, a, vars, env, prefix, work))
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	if failures := report.Failures(); len(failures) > 0 {
		return report, &TestFailure{Formula: f.Name, Failures: failures, Total: len(report.Results)}
	}
	return report, nil
}

func (r *Runner) env(f *formula.Formula, prefix, work, bin string, depPaths []string) map[string]string {
	env := make(map[string]string, len(r.hostEnv)+len(f.Test.Env)+5)
	for k, v := range r.hostEnv {
		env[k] = v
	}
	for k, v := range f.Test.Env {
		env[k] = v
	}
	dirs := append([]string{bin}, depPaths...)
	env["PATH"] = runtime.JoinPath(append(dirs, filepath.SplitList(r.toolPath)...)...)
	env["HOME"] = work
	env["KEG_PREFIX"] = prefix
	env["KEG_NAME"] = string(f.Name)
	env["KEG_VERSION"] = f.Version
	return env
}

func (r *Runner) runAssertion(
	ctx context.Context,
	rt runtime.Runtime,
	index int,
	a formula.Assertion,
	vars, env map[string]string,
	prefix, work string,
) AssertionResult {
	res := AssertionResult{
		Index:            index,
		ExpectedExitCode: a.ExpectExitCode,
		ExpectedOutput:   a.ExpectOutput,
	}

	argv, err := formula.ExpandArgv(a.Argv(), vars)
	if err != nil {
		res.Argv = a.Argv()
		res.Err = err
		return res
	}
	res.Argv = argv

	start := time.Now()
	out := rt.Run(ctx, &runtime.Command{
		Argv:   argv,
		Dir:    work,
		Env:    env,
		Roots:  []string{prefix},
		Stdout: r.stdout,
		Stderr: r.stderr,
	})
	res.Duration = time.Since(start)
	res.ExitCode = out.ExitCode
	res.Output = out.Output
	res.ErrOutput = out.ErrOutput
	res.Err = out.Error

	res.Passed = res.Err == nil &&
		int(res.ExitCode) == a.ExpectExitCode &&
		(a.ExpectOutput == nil || strings.TrimSpace(out.Output) == strings.TrimSpace(*a.ExpectOutput))

	slog.Debug("assertion finished", "index", index, "argv", argv, "passed", res.Passed, "exit_code", res.ExitCode)
	return res
}

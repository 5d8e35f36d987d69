// SPDX-License-Identifier: MPL-2.0

package install

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/kegworks/keg/internal/fetch"
	"github.com/kegworks/keg/internal/runtime"
	"github.com/kegworks/keg/pkg/formula"
)

const (
	// StagingDir is the directory under the cellar holding a previous install
	// while its replacement runs.
	StagingDir = ".staging"

	stagingPerm = 0o755
)

// ErrOutsideCellar is returned by RemovePrefix for paths not under the cellar.
var ErrOutsideCellar = errors.New("path is outside the cellar")

type (
	// Runner executes install directives. It is safe for concurrent use as
	// long as callers never install the same name twice at once.
	Runner struct {
		cellar   string
		tempDir  string
		runtimes *runtime.Registry
		toolPath string
		hostEnv  map[string]string
		stdout   io.Writer
		stderr   io.Writer
	}

	// Option configures a Runner.
	Option func(*Runner)

	// Request is one install to perform.
	Request struct {
		Formula *formula.Formula
		// Artifact is the verified source artifact.
		Artifact string
		// ArtifactName is used to name non-archive artifacts in the work dir
		// and to detect archives by extension.
		ArtifactName string
		// DepPaths are prepended to the directive PATH after the prefix bin dir,
		// typically the bin dirs of installed dependencies.
		DepPaths []string
		// Runtime overrides the directive's runtime when set.
		Runtime formula.RuntimeMode
	}

	// Result describes a successful install.
	Result struct {
		Prefix   string
		Stdout   string
		Stderr   string
		Duration time.Duration
		// Copied is true when the formula had no install directive and the
		// unpacked artifact was copied into the prefix.
		Copied bool
	}
)

// WithTempDir sets where scratch work directories are created.
// Defaults to os.TempDir().
func WithTempDir(dir string) Option {
	return func(r *Runner) { r.tempDir = dir }
}

// WithToolPath sets the PATH-like list appended to every directive PATH.
func WithToolPath(path string) Option {
	return func(r *Runner) { r.toolPath = path }
}

// WithHostEnv sets the host variables passed through to directives.
// Defaults to runtime.PassthroughVars picked from the process environment.
func WithHostEnv(env map[string]string) Option {
	return func(r *Runner) { r.hostEnv = env }
}

// WithOutput mirrors directive output live to the given writers.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(r *Runner) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

// New creates a Runner installing under cellar.
func New(cellar string, runtimes *runtime.Registry, opts ...Option) *Runner {
	r := &Runner{
		cellar:   cellar,
		runtimes: runtimes,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.hostEnv == nil {
		r.hostEnv = runtime.HostEnv(nil, runtime.PassthroughVars)
	}
	return r
}

// Cellar returns the install root.
func (r *Runner) Cellar() string { return r.cellar }

// Prefix returns the final install prefix of a formula.
func (r *Runner) Prefix(f *formula.Formula) string {
	return filepath.Join(r.cellar, string(f.Name), f.VersionOrDefault())
}

// Install unpacks req.Artifact and runs the install directive directly in
// the final prefix, so paths a directive records into launchers or config
// stay valid. An existing install is moved under StagingDir while the
// directive runs. On failure or cancellation the new prefix is removed and
// the previous install is put back.
func (r *Runner) Install(ctx context.Context, req Request) (_ *Result, err error) {
	f := req.Formula
	start := time.Now()

	work, err := os.MkdirTemp(r.tempDir, "keg-"+string(f.Name)+"-")
	if err != nil {
		return nil, fmt.Errorf("creating work dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(work); rmErr != nil {
			slog.Warn("failed to remove work dir", "path", work, "error", rmErr)
		}
	}()

	srcDir := filepath.Join(work, "src")
	if err = os.Mkdir(srcDir, 0o755); err != nil {
		return nil, err
	}
	name := req.ArtifactName
	if name == "" {
		name = filepath.Base(req.Artifact)
	}
	buildDir, err := fetch.Unpack(req.Artifact, srcDir, name)
	if err != nil {
		return nil, fmt.Errorf("unpacking %s: %w", name, err)
	}

	prefix := r.Prefix(f)
	finish, err := r.claimPrefix(f, prefix)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() { finish(committed) }()

	res := &Result{}
	if f.Install == nil {
		if err = copyTree(buildDir, prefix); err != nil {
			return nil, fmt.Errorf("copying %s into prefix: %w", name, err)
		}
		res.Copied = true
	} else {
		if res.Stdout, res.Stderr, err = r.runDirective(ctx, req, work, buildDir, prefix); err != nil {
			return nil, err
		}
	}

	if err = ctx.Err(); err != nil {
		return nil, err
	}
	committed = true

	res.Prefix = prefix
	res.Duration = time.Since(start)
	slog.Debug("install directive finished", "formula", f.Name, "prefix", prefix, "duration", res.Duration)
	return res, nil
}

func (r *Runner) runDirective(ctx context.Context, req Request, work, buildDir, prefix string) (string, string, error) {
	f := req.Formula
	vars := f.Vars(prefix, buildDir)
	argv, err := formula.ExpandArgv(f.Install.Argv(), vars)
	if err != nil {
		return "", "", err
	}

	mode := f.Install.Runtime
	if req.Runtime != "" {
		mode = req.Runtime
	}
	rt, err := r.runtimes.Get(mode)
	if err != nil {
		return "", "", err
	}

	env := make(map[string]string, len(r.hostEnv)+6)
	for k, v := range r.hostEnv {
		env[k] = v
	}
	pathDirs := append([]string{vars["bin"]}, req.DepPaths...)
	env["PATH"] = runtime.JoinPath(append(pathDirs, filepath.SplitList(r.toolPath)...)...)
	env["HOME"] = work
	env["KEG_PREFIX"] = prefix
	env["KEG_NAME"] = string(f.Name)
	env["KEG_VERSION"] = f.Version

	slog.Debug("running install directive", "formula", f.Name, "runtime", rt.Name(), "argv", argv, "dir", buildDir)

	result := rt.Run(ctx, &runtime.Command{
		Argv:   argv,
		Dir:    buildDir,
		Env:    env,
		Roots:  []string{work, prefix},
		Stdout: r.stdout,
		Stderr: r.stderr,
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result.Output, result.ErrOutput, fmt.Errorf("install of %s cancelled: %w", f.Name, ctxErr)
	}
	if !result.Success() {
		return result.Output, result.ErrOutput, &InstallError{
			Formula:  f.Name,
			ExitCode: result.ExitCode,
			Stdout:   result.Output,
			Stderr:   result.ErrOutput,
			Err:      result.Error,
		}
	}
	return result.Output, result.ErrOutput, nil
}

// claimPrefix moves an existing install at prefix under StagingDir and
// creates an empty prefix. The returned func must be called once: with
// keep set it drops the previous install, otherwise it removes the new
// prefix and restores the previous one.
func (r *Runner) claimPrefix(f *formula.Formula, prefix string) (func(keep bool), error) {
	if err := os.MkdirAll(filepath.Dir(prefix), 0o755); err != nil {
		return nil, fmt.Errorf("creating prefix parent: %w", err)
	}

	holder, aside := "", ""
	if _, err := os.Lstat(prefix); err == nil {
		stagingRoot := filepath.Join(r.cellar, StagingDir)
		if err = os.MkdirAll(stagingRoot, stagingPerm); err != nil {
			return nil, fmt.Errorf("creating staging dir: %w", err)
		}
		holder, err = os.MkdirTemp(stagingRoot, string(f.Name)+"-"+f.VersionOrDefault()+"-")
		if err != nil {
			return nil, fmt.Errorf("creating staging dir: %w", err)
		}
		aside = filepath.Join(holder, "previous")
		if err = os.Rename(prefix, aside); err != nil {
			_ = os.Remove(holder)
			return nil, fmt.Errorf("moving previous install aside: %w", err)
		}
	}

	restore := func() {
		if rmErr := os.RemoveAll(prefix); rmErr != nil {
			slog.Warn("failed to remove partial install", "path", prefix, "error", rmErr)
		}
		if aside == "" {
			// Only succeeds when no other version is left.
			_ = os.Remove(filepath.Dir(prefix))
			return
		}
		if rnErr := os.Rename(aside, prefix); rnErr != nil {
			slog.Error("failed to restore previous install", "prefix", prefix, "saved", aside, "error", rnErr)
			return
		}
		_ = os.Remove(holder)
	}

	if err := os.Mkdir(prefix, stagingPerm); err != nil {
		restore()
		return nil, fmt.Errorf("creating prefix: %w", err)
	}

	return func(keep bool) {
		if !keep {
			restore()
			return
		}
		if holder == "" {
			return
		}
		if rmErr := os.RemoveAll(holder); rmErr != nil {
			slog.Warn("failed to remove previous install", "path", holder, "error", rmErr)
		}
	}, nil
}

// RemovePrefix deletes an installed prefix and its package directory when it
// becomes empty.
func (r *Runner) RemovePrefix(prefix string) error {
	rel, err := filepath.Rel(r.cellar, prefix)
	if err != nil || !filepath.IsLocal(rel) || rel == "." || filepath.Dir(rel) == "." {
		return fmt.Errorf("%s: %w", prefix, ErrOutsideCellar)
	}
	if err := os.RemoveAll(prefix); err != nil {
		return fmt.Errorf("removing %s: %w", prefix, err)
	}
	// Only succeeds when no other version is left.
	_ = os.Remove(filepath.Dir(prefix))
	return nil
}

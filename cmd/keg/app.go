// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/kegworks/keg/internal/config"
	"github.com/kegworks/keg/internal/engine"
	"github.com/kegworks/keg/internal/fetch"
	"github.com/kegworks/keg/internal/install"
	"github.com/kegworks/keg/internal/issue"
	"github.com/kegworks/keg/internal/metrics"
	"github.com/kegworks/keg/internal/registry"
	"github.com/kegworks/keg/internal/runtime"
	"github.com/kegworks/keg/internal/testrun"
	"github.com/kegworks/keg/pkg/formula"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

type (
	// App wires CLI services and shared dependencies. It is the composition
	// root for the CLI layer: every command handler receives an App and
	// builds its engine through it.
	App struct {
		Config    ConfigProvider
		NewEngine EngineFactory
		getenv    func(string) string
		stdout    io.Writer
		stderr    io.Writer
		flags     globalFlags
		// ui is the effective UI configuration once loadConfig succeeded.
		ui        config.UIConfig
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config    ConfigProvider
		NewEngine EngineFactory
		Getenv    func(string) string
		Stdout    io.Writer
		Stderr    io.Writer
	}

	// ConfigProvider loads configuration using explicit options.
	ConfigProvider interface {
		Load(ctx context.Context, opts config.LoadOptions) (*config.Config, error)
	}

	// EngineFactory builds the engine for one invocation.
	EngineFactory func(cfg *config.Config, m *metrics.Metrics, directiveOutput io.Writer) (*engine.Engine, error)

	globalFlags struct {
		configPath  string
		verbose     bool
		prefix      string
		metricsFile string
	}

	// session is the per-invocation state handed to command bodies.
	session struct {
		cfg     *config.Config
		engine  *engine.Engine
		metrics *metrics.Metrics
		out     io.Writer
	}
)

// NewApp creates an App with defaults for omitted dependencies.
func NewApp(deps Dependencies) *App {
	if deps.Stdout == nil {
		deps.Stdout = os.Stdout
	}
	if deps.Stderr == nil {
		deps.Stderr = os.Stderr
	}
	if deps.Getenv == nil {
		deps.Getenv = os.Getenv
	}
	if deps.Config == nil {
		deps.Config = config.NewProvider()
	}
	if deps.NewEngine == nil {
		deps.NewEngine = newEngine
	}
	return &App{
		Config:    deps.Config,
		NewEngine: deps.NewEngine,
		getenv:    deps.Getenv,
		stdout:    deps.Stdout,
		stderr:    deps.Stderr,
	}
}

// loadConfig loads the effective configuration and applies global flags on top.
func (a *App) loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := a.Config.Load(ctx, config.LoadOptions{
		ConfigFilePath: a.flags.configPath,
		Getenv:         a.getenv,
	})
	if err != nil {
		return nil, err
	}
	if a.flags.prefix != "" {
		cfg.Prefix = a.flags.prefix
	}
	if a.flags.verbose {
		cfg.UI.Verbose = true
	}
	if cfg.ToolPath == "" {
		cfg.ToolPath = a.getenv("PATH")
	}
	a.ui = cfg.UI
	return cfg, nil
}

// run loads configuration, installs the logger, builds the engine and runs
// body. Metrics are written to --metrics-file whether or not body succeeds.
// Failures come back as *ExitError carrying the stage exit code.
func (a *App) run(cmd *cobra.Command, body func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()

	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return a.fail(cmd, err)
	}
	setupLogging(a.stderr, cfg.UI.Verbose)

	m := metrics.New()
	var directiveOutput io.Writer
	if cfg.UI.Verbose {
		directiveOutput = a.stderr
	}
	eng, err := a.NewEngine(cfg, m, directiveOutput)
	if err != nil {
		return a.fail(cmd, err)
	}

	err = body(ctx, &session{cfg: cfg, engine: eng, metrics: m, out: cmd.OutOrStdout()})

	if a.flags.metricsFile != "" {
		if werr := m.WriteFile(a.flags.metricsFile); werr != nil {
			slog.Warn("failed to write metrics", "path", a.flags.metricsFile, "error", werr)
		}
	}
	if err != nil {
		return a.fail(cmd, err)
	}
	return nil
}

// fail classifies err, prints the catalog guidance in verbose mode, and
// wraps err with its exit code. The error text itself is printed by fang.
func (a *App) fail(cmd *cobra.Command, err error) error {
	code, id := classifyError(err)
	cmd.SilenceUsage = true
	if a.flags.verbose || a.ui.Verbose {
		var ae *issue.ActionableError
		if errors.As(err, &ae) {
			fmt.Fprint(a.stderr, ae.Guidance(true))
		}
		if id != 0 {
			renderIssue(a.stderr, id, a.ui.ColorScheme)
		}
	}
	return &ExitError{Code: code, Err: err}
}

// renderIssue prints the catalog entry for id using the glamour style named
// by scheme.
func renderIssue(w io.Writer, id issue.Id, scheme config.ColorScheme) {
	entry := issue.Get(id)
	if entry == nil {
		return
	}
	if scheme == "" {
		scheme = config.ColorSchemeDark
	}
	rendered, err := entry.Render(string(scheme))
	if err != nil {
		slog.Warn("failed to render issue catalog entry", "issueID", id, "error", err)
		return
	}
	fmt.Fprint(w, rendered)
}

// setupLogging routes slog through a charmbracelet/log handler.
func setupLogging(w io.Writer, verbose bool) {
	level := log.WarnLevel
	if verbose {
		level = log.DebugLevel
	}
	logger := log.NewWithOptions(w, log.Options{
		Prefix: "keg",
		Level:  level,
	})
	slog.SetDefault(slog.New(logger))
}

// newEngine builds the production engine for cfg.
func newEngine(cfg *config.Config, m *metrics.Metrics, directiveOutput io.Writer) (*engine.Engine, error) {
	store, err := registry.Open(cfg.StateDir)
	if err != nil {
		return nil, err
	}

	runtimes := runtime.BuildRegistry(cfg.DefaultRuntime)

	fetcher := fetch.New(cfg.CacheDir,
		fetch.WithAttempts(cfg.Fetch.Attempts),
		fetch.WithBackoff(cfg.Fetch.Backoff),
		fetch.WithTimeout(cfg.Fetch.Timeout),
		fetch.WithUserAgent(cfg.Fetch.UserAgent),
	)

	installer := install.New(cfg.Prefix, runtimes,
		install.WithToolPath(cfg.ToolPath),
		install.WithOutput(directiveOutput, directiveOutput),
	)

	tester := testrun.New(runtimes,
		testrun.WithToolPath(cfg.ToolPath),
		testrun.WithOutput(directiveOutput, directiveOutput),
	)

	return engine.New(engine.Dependencies{
		Formulas:    formula.NewRepository(cfg.FormulaPaths...),
		Store:       store,
		Fetcher:     fetcher,
		Installer:   installer,
		Tester:      tester,
		Metrics:     m,
		ToolPath:    cfg.ToolPath,
		Parallelism: cfg.Parallelism,
	}), nil
}

// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// NewRootCommand builds the keg command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "keg",
		Short: "Install packages from declarative formulas",
		Long: TitleStyle.Render("keg") + SubtitleStyle.Render(" - install packages from declarative formulas") + `

keg reads a formula (a CUE file naming a source URL, its sha256, its
dependencies and an install directive), resolves and installs its
dependencies, downloads and verifies the source, runs the install directive
into <prefix>/<name>/<version> and finally runs the formula's smoke test.

` + SubtitleStyle.Render("Examples:") + `
  keg install clojure       Install clojure and its dependencies
  keg install ./jq.cue      Install from a formula file
  keg test clojure          Re-run the smoke test of an installed package
  keg deps clojure          Show the dependency plan
  keg list                  List installed packages
  keg config show           Show the effective configuration`,
	}
	rootCmd.SetOut(app.stdout)
	rootCmd.SetErr(app.stderr)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&app.flags.configPath, "config", "", "config file (default is config.cue in $KEG_CONFIG_DIR or $XDG_CONFIG_HOME/keg)")
	pf.BoolVarP(&app.flags.verbose, "verbose", "v", false, "enable verbose output")
	pf.StringVar(&app.flags.prefix, "prefix", "", "install root (overrides KEG_PREFIX and the config file)")
	pf.StringVar(&app.flags.metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")

	rootCmd.AddCommand(
		newInstallCommand(app),
		newTestCommand(app),
		newFetchCommand(app),
		newInfoCommand(app),
		newDepsCommand(app),
		newListCommand(app),
		newUninstallCommand(app),
		newConfigCommand(app),
	)

	return rootCmd
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the keg CLI and exits with the code of the failing stage.
// This is called by main.main().
func Execute() {
	app := NewApp(Dependencies{})
	if err := fang.Execute(
		context.Background(),
		NewRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(int(exitErr.Code))
		}
		os.Exit(int(ExitFailure))
	}
}

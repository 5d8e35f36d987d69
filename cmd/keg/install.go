// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"

	"github.com/kegworks/keg/internal/engine"
	"github.com/kegworks/keg/pkg/formula"

	"github.com/spf13/cobra"
)

func newInstallCommand(app *App) *cobra.Command {
	var (
		skipTest    bool
		force       bool
		runtimeFlag string
	)

	cmd := &cobra.Command{
		Use:   "install <formula>...",
		Short: "Install formulas and their dependencies",
		Long: `Install one or more formulas. A formula is named either by its name, looked
up in the configured formula paths, or by a path to a .cue file.

Dependencies are installed first; independent packages install in parallel.
After installing, the test block of each requested formula runs unless
--skip-test is given. A failing test leaves the package installed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := formula.ParseRuntimeMode(runtimeFlag)
			if err != nil {
				return app.fail(cmd, err)
			}
			opts := engine.Options{SkipTest: skipTest, Force: force, Runtime: mode}

			return app.run(cmd, func(ctx context.Context, s *session) error {
				report, err := s.engine.InstallAll(ctx, args, opts)
				if report != nil {
					renderPackages(s.out, report)
					for _, tr := range report.Tests {
						renderTestReport(s.out, tr)
					}
				}
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&skipTest, "skip-test", false, "do not run the formula's test block")
	cmd.Flags().BoolVar(&force, "force", false, "reinstall packages that are already installed")
	cmd.Flags().StringVar(&runtimeFlag, "runtime", "", "runtime for install directives (native, virtual)")

	return cmd
}

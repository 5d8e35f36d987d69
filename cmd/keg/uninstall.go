// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/kegworks/keg/pkg/formula"

	"github.com/spf13/cobra"
)

func newUninstallCommand(app *App) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:     "uninstall <name>",
		Aliases: []string{"rm"},
		Short:   "Remove an installed package",
		Long: `Remove an installed package's prefix and registry entry.

Packages that other installed packages list as runtime dependencies are kept
unless --force is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(ctx context.Context, s *session) error {
				entry, err := s.engine.Uninstall(ctx, formula.Name(args[0]), force)
				if err != nil {
					return err
				}
				fmt.Fprintf(s.out, "%s removed %s %s %s\n", SuccessStyle.Render(markOK),
					TitleStyle.Render(string(entry.Name)), entry.Version, PathStyle.Render(entry.Prefix))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "remove even if other packages depend on it")

	return cmd
}

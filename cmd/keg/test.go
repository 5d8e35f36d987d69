// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

func newTestCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "test <formula>",
		Short: "Run the test block of an installed formula",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(ctx context.Context, s *session) error {
				report, err := s.engine.Test(ctx, args[0])
				if report != nil {
					renderTestReport(s.out, report)
				}
				return err
			})
		},
	}
}

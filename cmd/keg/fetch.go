// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newFetchCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <formula>",
		Short: "Download and verify a formula's source without installing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(ctx context.Context, s *session) error {
				art, err := s.engine.Fetch(ctx, args[0])
				if err != nil {
					return err
				}
				origin := "downloaded"
				if art.FromCache {
					origin = "cached"
				}
				fmt.Fprintf(s.out, "%s %s %s\n", SuccessStyle.Render(markOK), PathStyle.Render(art.Path),
					SubtitleStyle.Render(fmt.Sprintf("(%d bytes, sha256 %s, %s)", art.Size, art.SHA256.Short(), origin)))
				return nil
			})
		},
	}
}

// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

func newListCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List installed packages",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(ctx context.Context, s *session) error {
				entries, err := s.engine.Store().List()
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Fprintln(s.out, SubtitleStyle.Render("no packages installed"))
					return nil
				}

				t := table.New().
					Border(lipgloss.HiddenBorder()).
					Headers("NAME", "VERSION", "INSTALLED", "PREFIX").
					StyleFunc(func(row, col int) lipgloss.Style {
						style := lipgloss.NewStyle().PaddingRight(2)
						if row == table.HeaderRow {
							return style.Bold(true)
						}
						return style
					})
				for _, e := range entries {
					t.Row(string(e.Name), e.Version, e.InstalledAt.Format("2006-01-02 15:04"), e.Prefix)
				}
				fmt.Fprintln(s.out, t.Render())
				return nil
			})
		},
	}
}

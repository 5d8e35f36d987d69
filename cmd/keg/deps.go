// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/kegworks/keg/internal/resolve"

	"github.com/spf13/cobra"
)

func newDepsCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "deps <formula>",
		Short: "Show the installation plan of a formula",
		Long: `Resolve the dependencies of a formula without installing anything.

Formulas that would be installed are listed in installation order. Dependencies
that are already satisfied, by an installed package or by a tool on the tool
path, are listed under the formula that declares them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.run(cmd, func(ctx context.Context, s *session) error {
				plan, err := s.engine.Plan(ctx, args[0])
				if err != nil {
					return err
				}
				renderPlan(s.out, plan)
				return nil
			})
		},
	}
}

func renderPlan(w io.Writer, plan *resolve.Plan) {
	for i, step := range plan.Steps {
		f := step.Formula
		line := fmt.Sprintf("%d. %s %s", i+1, TitleStyle.Render(string(f.Name)), f.VersionOrDefault())
		if len(step.Needs) > 0 {
			needs := make([]string, len(step.Needs))
			for j, n := range step.Needs {
				needs[j] = string(n)
			}
			line += SubtitleStyle.Render(" (after " + strings.Join(needs, ", ") + ")")
		}
		fmt.Fprintln(w, line)

		for _, sat := range plan.SatisfiedFor(f.Name) {
			switch sat.Source {
			case resolve.SourceRegistry:
				fmt.Fprintf(w, "   %s %s installed %s %s\n", SuccessStyle.Render(markOK), sat.Dependency.Name,
					sat.Version, PathStyle.Render(sat.Location))
			default:
				fmt.Fprintf(w, "   %s %s %s %s\n", SuccessStyle.Render(markOK), sat.Dependency.Name,
					sat.Source, PathStyle.Render(sat.Location))
			}
		}
	}
}

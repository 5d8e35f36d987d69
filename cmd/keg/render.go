// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kegworks/keg/internal/engine"
	"github.com/kegworks/keg/internal/testrun"
)

const (
	markOK   = "✓"
	markFail = "✗"
	markSkip = "•"
)

// renderPackages prints one line per planned package in completion order.
func renderPackages(w io.Writer, report *engine.Report) {
	for _, p := range report.Packages {
		if p.Skipped {
			fmt.Fprintf(w, "%s %s %s %s\n",
				SubtitleStyle.Render(markSkip), TitleStyle.Render(string(p.Name)), p.Version,
				SubtitleStyle.Render("(already installed)"))
			continue
		}
		fmt.Fprintf(w, "%s %s %s -> %s %s\n",
			SuccessStyle.Render(markOK), TitleStyle.Render(string(p.Name)), p.Version,
			PathStyle.Render(p.Prefix), SubtitleStyle.Render(p.Duration.Round(time.Millisecond).String()))
	}
}

// renderTestReport prints every assertion of r followed by a summary line.
func renderTestReport(w io.Writer, r *testrun.Report) {
	for _, res := range r.Results {
		cmdline := strings.Join(res.Argv, " ")
		if res.Passed {
			fmt.Fprintf(w, "  %s %s\n", SuccessStyle.Render(markOK), PathStyle.Render(cmdline))
			continue
		}
		fmt.Fprintf(w, "  %s %s: %s\n", ErrorStyle.Render(markFail), PathStyle.Render(cmdline), res.Reason())
	}
	failed := len(r.Failures())
	summary := fmt.Sprintf("test %s: %d/%d assertions passed", r.Formula, len(r.Results)-failed, len(r.Results))
	if failed > 0 {
		fmt.Fprintln(w, ErrorStyle.Render(summary))
		return
	}
	fmt.Fprintln(w, SuccessStyle.Render(summary))
}

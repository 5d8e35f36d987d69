// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/kegworks/keg/internal/registry"
	"github.com/kegworks/keg/pkg/formula"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// infoView is what `keg info` prints in the machine-readable formats.
type infoView struct {
	Formula   *formula.Formula `json:"formula" yaml:"formula"`
	Source    string           `json:"source" yaml:"source"`
	Installed *registry.Entry  `json:"installed,omitempty" yaml:"installed,omitempty"`
}

func newInfoCommand(app *App) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "info <formula>",
		Short: "Show a formula and its installation state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch format {
			case formatText, formatJSON, formatYAML:
			default:
				return app.fail(cmd, fmt.Errorf("unknown format %q (expected text, json or yaml)", format))
			}

			return app.run(cmd, func(ctx context.Context, s *session) error {
				f, err := s.engine.Load(ctx, args[0])
				if err != nil {
					return err
				}
				src, err := f.SourceURL()
				if err != nil {
					return err
				}
				view := infoView{Formula: f, Source: src}
				entry, ok, err := s.engine.Store().Get(f.Name)
				if err != nil {
					return err
				}
				if ok {
					view.Installed = &entry
				}
				return writeInfo(s.out, format, view)
			})
		},
	}

	cmd.Flags().StringVar(&format, "format", formatText, "output format (text, json, yaml)")

	return cmd
}

func writeInfo(w io.Writer, format string, v infoView) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}

	f := v.Formula
	field := func(key, value string) {
		if value != "" {
			fmt.Fprintf(w, "%s %s\n", KeyStyle.Render(key+":"), value)
		}
	}

	fmt.Fprintln(w, TitleStyle.Render(string(f.Name))+" "+f.Version)
	field("desc", f.Desc)
	field("homepage", f.Homepage)
	field("url", v.Source)
	field("sha256", string(f.SHA256))
	field("formula", f.FilePath)
	if len(f.DependsOn) > 0 {
		deps := make([]string, len(f.DependsOn))
		for i, d := range f.DependsOn {
			deps[i] = d.String()
		}
		field("depends_on", strings.Join(deps, ", "))
	}
	if f.Install != nil {
		field("install", strings.Join(f.Install.Argv(), " "))
	}
	if f.Test != nil {
		field("test", fmt.Sprintf("%d assertion(s)", len(f.Test.Assertions)))
	}

	if v.Installed == nil {
		field("installed", SubtitleStyle.Render("no"))
		return nil
	}
	field("installed", fmt.Sprintf("%s in %s (%s)", v.Installed.Version,
		PathStyle.Render(v.Installed.Prefix), v.Installed.InstalledAt.Format("2006-01-02 15:04")))
	return nil
}

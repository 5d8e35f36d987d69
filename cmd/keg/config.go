// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/kegworks/keg/internal/config"

	"github.com/spf13/cobra"
)

// newConfigCommand creates the `keg config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage keg configuration",
		Long: `Manage keg configuration.

Configuration is read from $XDG_CONFIG_HOME/keg/config.cue (or the file given
with --config) and may be overridden with KEG_* environment variables:
KEG_PREFIX, KEG_CACHE_DIR, KEG_STATE_DIR, KEG_TOOL_PATH, KEG_FORMULA_PATH.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration as CUE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.loadConfig(cmd.Context())
			if err != nil {
				return app.fail(cmd, err)
			}
			source := cfg.Source
			if source == "" {
				source = "(defaults)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "// source: %s\n", source)
			fmt.Fprint(cmd.OutOrStdout(), config.GenerateCUE(cfg))
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := app.flags.configPath
			if path == "" {
				path = config.ConfigFilePath(app.getenv)
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := app.flags.configPath
			if path == "" {
				path = config.ConfigFilePath(app.getenv)
			}
			created, err := config.CreateDefaultConfig(path)
			if err != nil {
				return app.fail(cmd, err)
			}
			if !created {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s already exists\n", WarningStyle.Render("!"), PathStyle.Render(path))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s created %s\n", SuccessStyle.Render(markOK), PathStyle.Render(path))
			return nil
		},
	})

	return cfgCmd
}

// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kegworks/keg/internal/issue"
	"github.com/kegworks/keg/pkg/cueutil"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "keg"
	// ConfigFileName is the name of the config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// EnvPrefix prefixes every environment override (KEG_PREFIX, KEG_CACHE_DIR, ...).
	EnvPrefix = "KEG"
	// FormulaPathEnv holds a PATH-like list that replaces formula_paths.
	FormulaPathEnv = "KEG_FORMULA_PATH"
	// ConfigDirEnv replaces the configuration directory.
	ConfigDirEnv = "KEG_CONFIG_DIR"
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns the keg configuration directory: $KEG_CONFIG_DIR when
// set, otherwise $XDG_CONFIG_HOME/keg or the platform equivalent. A nil
// getenv reads the process environment.
//
//nolint:revive // ConfigDir is more descriptive than Dir for external callers
func ConfigDir(getenv func(string) string) string {
	if getenv == nil {
		getenv = os.Getenv
	}
	if dir := getenv(ConfigDirEnv); dir != "" {
		return dir
	}
	return filepath.Join(xdg.ConfigHome, AppName)
}

// ConfigFilePath returns the location of config.cue inside ConfigDir.
func ConfigFilePath(getenv func(string) string) string {
	return filepath.Join(ConfigDir(getenv), ConfigFileName+"."+ConfigFileExt)
}

// loadWithOptions layers defaults, the CUE file and KEG_* environment
// variables, in that order of increasing precedence.
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("prefix", defaults.Prefix)
	v.SetDefault("cache_dir", defaults.CacheDir)
	v.SetDefault("state_dir", defaults.StateDir)
	v.SetDefault("formula_paths", defaults.FormulaPaths)
	v.SetDefault("tool_path", defaults.ToolPath)
	v.SetDefault("default_runtime", defaults.DefaultRuntime)
	v.SetDefault("parallelism", defaults.Parallelism)
	v.SetDefault("fetch.attempts", defaults.Fetch.Attempts)
	v.SetDefault("fetch.backoff", defaults.Fetch.Backoff)
	v.SetDefault("fetch.timeout", defaults.Fetch.Timeout)
	v.SetDefault("fetch.user_agent", defaults.Fetch.UserAgent)
	v.SetDefault("ui.color_scheme", defaults.UI.ColorScheme)
	v.SetDefault("ui.verbose", defaults.UI.Verbose)

	resolvedPath := ""
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return nil, issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithIssue(issue.ConfigLoadFailedId).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Use 'keg config show' to see the effective configuration").
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		resolvedPath = opts.ConfigFilePath
	} else {
		dir := opts.ConfigDirPath
		if dir == "" {
			dir = ConfigDir(getenv)
		}
		if p := filepath.Join(dir, ConfigFileName+"."+ConfigFileExt); fileExists(p) {
			resolvedPath = p
		}
	}

	if resolvedPath != "" {
		if err := loadCUEIntoViper(v, resolvedPath); err != nil {
			return nil, issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(resolvedPath).
				WithIssue(issue.ConfigLoadFailedId).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Verify the configuration values match the expected schema").
				Wrap(err).
				BuildError()
		}
	}

	for _, key := range v.AllKeys() {
		env := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if val := getenv(env); val != "" {
			v.Set(key, val)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if val := getenv(FormulaPathEnv); val != "" {
		cfg.FormulaPaths = filepath.SplitList(val)
	}
	cfg.Source = resolvedPath

	if ok, errs := cfg.IsValid(); !ok {
		return nil, issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithIssue(issue.ConfigLoadFailedId).
			WithSuggestion("Check the " + EnvPrefix + "_* environment variables").
			Wrap(errs[0]).
			BuildError()
	}

	return &cfg, nil
}

// loadCUEIntoViper parses a CUE file, validates it against the #Config schema,
// and merges its contents into Viper.
//
// Config decodes to map[string]any rather than a struct so that Viper keeps
// its defaults for omitted fields, which is why cueutil.ParseAndDecode is not used.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cueutil.CheckFileSize(data, cueutil.DefaultMaxFileSize, path); err != nil {
		return err
	}

	ctx := cuecontext.New()

	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return cueutil.FormatError(userValue.Err(), path)
	}

	schema := schemaValue.LookupPath(cue.ParsePath("#Config"))
	unified := schema.Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return cueutil.FormatError(err, path)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return cueutil.FormatError(err, path)
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}

	return nil
}

// fileExists checks if a file exists and is not a directory
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// CreateDefaultConfig writes the default configuration to path unless a file
// already exists there. It reports whether a file was written.
func CreateDefaultConfig(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(GenerateCUE(DefaultConfig())), 0o644); err != nil {
		return false, fmt.Errorf("failed to write config file: %w", err)
	}

	return true, nil
}

// GenerateCUE renders cfg as a config.cue document accepted by the schema.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// keg configuration file\n\n")

	fmt.Fprintf(&sb, "prefix:    %q\n", cfg.Prefix)
	fmt.Fprintf(&sb, "cache_dir: %q\n", cfg.CacheDir)
	fmt.Fprintf(&sb, "state_dir: %q\n", cfg.StateDir)

	if len(cfg.FormulaPaths) > 0 {
		sb.WriteString("\nformula_paths: [\n")
		for _, p := range cfg.FormulaPaths {
			fmt.Fprintf(&sb, "\t%q,\n", p)
		}
		sb.WriteString("]\n")
	}

	if cfg.ToolPath != "" {
		fmt.Fprintf(&sb, "\ntool_path: %q\n", cfg.ToolPath)
	}

	fmt.Fprintf(&sb, "\ndefault_runtime: %q\n", cfg.DefaultRuntime)
	fmt.Fprintf(&sb, "parallelism:     %d\n", cfg.Parallelism)

	sb.WriteString("\nfetch: {\n")
	fmt.Fprintf(&sb, "\tattempts: %d\n", cfg.Fetch.Attempts)
	fmt.Fprintf(&sb, "\tbackoff:  %q\n", cfg.Fetch.Backoff.String())
	fmt.Fprintf(&sb, "\ttimeout:  %q\n", cfg.Fetch.Timeout.String())
	if cfg.Fetch.UserAgent != "" {
		fmt.Fprintf(&sb, "\tuser_agent: %q\n", cfg.Fetch.UserAgent)
	}
	sb.WriteString("}\n")

	sb.WriteString("\nui: {\n")
	fmt.Fprintf(&sb, "\tcolor_scheme: %q\n", cfg.UI.ColorScheme)
	fmt.Fprintf(&sb, "\tverbose:      %v\n", cfg.UI.Verbose)
	sb.WriteString("}\n")

	return sb.String()
}

// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/kegworks/keg/pkg/formula"

	"github.com/adrg/xdg"
)

const (
	// ColorSchemeAuto detects the terminal background.
	ColorSchemeAuto ColorScheme = "auto"
	// ColorSchemeDark forces the dark palette.
	ColorSchemeDark ColorScheme = "dark"
	// ColorSchemeLight forces the light palette.
	ColorSchemeLight ColorScheme = "light"

	defaultParallelism   = 4
	defaultFetchAttempts = 3
	defaultFetchBackoff  = 500 * time.Millisecond
	defaultFetchTimeout  = 10 * time.Minute
	maxParallelism       = 64
	maxFetchAttempts     = 10
)

var (
	// ErrInvalidColorScheme is the sentinel error wrapped by InvalidColorSchemeError.
	ErrInvalidColorScheme = errors.New("invalid color scheme")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// ColorScheme selects the CLI palette.
	ColorScheme string

	// InvalidColorSchemeError is returned when a ColorScheme value is not recognized.
	InvalidColorSchemeError struct {
		Value ColorScheme
	}

	// InvalidConfigError collects every invalid field of a Config.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the effective keg configuration.
	Config struct {
		// Prefix is the install root ("cellar"); packages land in <prefix>/<name>/<version>.
		Prefix string `json:"prefix" mapstructure:"prefix"`
		// CacheDir holds verified downloads.
		CacheDir string `json:"cache_dir" mapstructure:"cache_dir"`
		// StateDir holds the install registry.
		StateDir string `json:"state_dir" mapstructure:"state_dir"`
		// FormulaPaths are searched in order for "<name>.cue".
		FormulaPaths []string `json:"formula_paths" mapstructure:"formula_paths"`
		// ToolPath is the PATH-like list searched for tools that satisfy
		// dependencies without a formula. Empty means the host PATH.
		ToolPath string `json:"tool_path" mapstructure:"tool_path"`
		// DefaultRuntime runs directives that do not name a runtime.
		DefaultRuntime formula.RuntimeMode `json:"default_runtime" mapstructure:"default_runtime"`
		// Parallelism bounds concurrent installs.
		Parallelism int         `json:"parallelism" mapstructure:"parallelism"`
		Fetch       FetchConfig `json:"fetch" mapstructure:"fetch"`
		UI          UIConfig    `json:"ui" mapstructure:"ui"`

		// Source is the config file that was read, or "" when none was.
		Source string `json:"-" mapstructure:"-"`
	}

	// FetchConfig tunes artifact downloads.
	FetchConfig struct {
		Attempts  int           `json:"attempts" mapstructure:"attempts"`
		Backoff   time.Duration `json:"backoff" mapstructure:"backoff"`
		Timeout   time.Duration `json:"timeout" mapstructure:"timeout"`
		UserAgent string        `json:"user_agent" mapstructure:"user_agent"`
	}

	// UIConfig configures terminal output.
	UIConfig struct {
		ColorScheme ColorScheme `json:"color_scheme" mapstructure:"color_scheme"`
		Verbose     bool        `json:"verbose" mapstructure:"verbose"`
	}
)

// String returns the color scheme as a plain string.
func (c ColorScheme) String() string { return string(c) }

// IsValid reports whether the color scheme is one of the known values.
func (c ColorScheme) IsValid() (bool, []error) {
	switch c {
	case ColorSchemeAuto, ColorSchemeDark, ColorSchemeLight:
		return true, nil
	default:
		return false, []error{&InvalidColorSchemeError{Value: c}}
	}
}

func (e *InvalidColorSchemeError) Error() string {
	return fmt.Sprintf("invalid color scheme %q (valid: auto, dark, light)", e.Value)
}

// Unwrap returns ErrInvalidColorScheme for errors.Is.
func (e *InvalidColorSchemeError) Unwrap() error { return ErrInvalidColorScheme }

func (e *InvalidConfigError) Error() string {
	if len(e.FieldErrors) == 1 {
		return fmt.Sprintf("invalid config: %v", e.FieldErrors[0])
	}
	msgs := make([]string, len(e.FieldErrors))
	for i, err := range e.FieldErrors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid config: %d errors: %s", len(e.FieldErrors), strings.Join(msgs, "; "))
}

// Unwrap returns ErrInvalidConfig followed by the field errors, so errors.Is
// matches both.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}

// DefaultConfig returns the configuration used when no file or environment
// override is present. Directories follow the XDG base directory layout.
func DefaultConfig() *Config {
	return &Config{
		Prefix:         filepath.Join(xdg.DataHome, AppName, "cellar"),
		CacheDir:       filepath.Join(xdg.CacheHome, AppName),
		StateDir:       filepath.Join(xdg.StateHome, AppName),
		FormulaPaths:   []string{filepath.Join(xdg.DataHome, AppName, "formulas")},
		DefaultRuntime: formula.RuntimeNative,
		Parallelism:    defaultParallelism,
		Fetch: FetchConfig{
			Attempts:  defaultFetchAttempts,
			Backoff:   defaultFetchBackoff,
			Timeout:   defaultFetchTimeout,
			UserAgent: AppName,
		},
		UI: UIConfig{
			ColorScheme: ColorSchemeAuto,
		},
	}
}

// IsValid checks the constraints the CUE schema cannot see, such as values
// that arrived through environment variables.
func (c *Config) IsValid() (bool, []error) {
	var errs []error
	dirs := []struct {
		field, value string
	}{
		{"prefix", c.Prefix},
		{"cache_dir", c.CacheDir},
		{"state_dir", c.StateDir},
	}
	for _, d := range dirs {
		if strings.TrimSpace(d.value) == "" {
			errs = append(errs, fmt.Errorf("%s must not be empty", d.field))
		}
	}
	for i, p := range c.FormulaPaths {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, fmt.Errorf("formula_paths[%d] must not be empty", i))
		}
	}
	if ok, vErrs := c.DefaultRuntime.IsValid(); !ok {
		errs = append(errs, vErrs...)
	}
	if c.Parallelism < 1 || c.Parallelism > maxParallelism {
		errs = append(errs, fmt.Errorf("parallelism %d out of range 1..%d", c.Parallelism, maxParallelism))
	}
	if c.Fetch.Attempts < 1 || c.Fetch.Attempts > maxFetchAttempts {
		errs = append(errs, fmt.Errorf("fetch.attempts %d out of range 1..%d", c.Fetch.Attempts, maxFetchAttempts))
	}
	if c.Fetch.Backoff < 0 {
		errs = append(errs, fmt.Errorf("fetch.backoff must not be negative"))
	}
	if c.Fetch.Timeout < 0 {
		errs = append(errs, fmt.Errorf("fetch.timeout must not be negative"))
	}
	if ok, vErrs := c.UI.ColorScheme.IsValid(); !ok {
		errs = append(errs, vErrs...)
	}
	if len(errs) > 0 {
		return false, []error{&InvalidConfigError{FieldErrors: errs}}
	}
	return true, nil
}

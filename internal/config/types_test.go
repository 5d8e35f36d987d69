// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"testing"

	"github.com/kegworks/keg/pkg/formula"
)

func TestColorScheme_IsValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		scheme ColorScheme
		want   bool
	}{
		{ColorSchemeAuto, true},
		{ColorSchemeDark, true},
		{ColorSchemeLight, true},
		{"", false},
		{"AUTO", false},
		{"neon", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.scheme), func(t *testing.T) {
			t.Parallel()
			isValid, errs := tt.scheme.IsValid()
			if isValid != tt.want {
				t.Errorf("ColorScheme(%q).IsValid() = %v, want %v", tt.scheme, isValid, tt.want)
			}
			if !tt.want {
				if len(errs) == 0 {
					t.Fatalf("ColorScheme(%q).IsValid() returned no errors", tt.scheme)
				}
				if !errors.Is(errs[0], ErrInvalidColorScheme) {
					t.Errorf("error should wrap ErrInvalidColorScheme, got: %v", errs[0])
				}
			}
		})
	}
}

func TestDefaultConfig_IsValid(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	if ok, errs := cfg.IsValid(); !ok {
		t.Fatalf("DefaultConfig().IsValid() = false: %v", errs)
	}
	if cfg.DefaultRuntime != formula.RuntimeNative {
		t.Errorf("default runtime = %q, want native", cfg.DefaultRuntime)
	}
	if cfg.Parallelism != defaultParallelism {
		t.Errorf("parallelism = %d, want %d", cfg.Parallelism, defaultParallelism)
	}
	if cfg.Fetch.Attempts != defaultFetchAttempts {
		t.Errorf("fetch attempts = %d, want %d", cfg.Fetch.Attempts, defaultFetchAttempts)
	}
	if len(cfg.FormulaPaths) != 1 {
		t.Errorf("formula paths = %v, want one default directory", cfg.FormulaPaths)
	}
}

func TestConfig_IsValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   int
	}{
		{"empty prefix", func(c *Config) { c.Prefix = " " }, 1},
		{"empty formula path", func(c *Config) { c.FormulaPaths = []string{"/a", ""} }, 1},
		{"unknown runtime", func(c *Config) { c.DefaultRuntime = "container" }, 1},
		{"zero parallelism", func(c *Config) { c.Parallelism = 0 }, 1},
		{"negative backoff", func(c *Config) { c.Fetch.Backoff = -1 }, 1},
		{"several", func(c *Config) {
			c.CacheDir = ""
			c.Fetch.Attempts = 0
			c.UI.ColorScheme = "neon"
		}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tt.mutate(cfg)

			ok, errs := cfg.IsValid()
			if ok {
				t.Fatal("IsValid() = true, want false")
			}
			var cfgErr *InvalidConfigError
			if !errors.As(errs[0], &cfgErr) {
				t.Fatalf("error should be *InvalidConfigError, got %T", errs[0])
			}
			if !errors.Is(errs[0], ErrInvalidConfig) {
				t.Error("error should wrap ErrInvalidConfig")
			}
			if len(cfgErr.FieldErrors) != tt.want {
				t.Errorf("got %d field errors, want %d: %v", len(cfgErr.FieldErrors), tt.want, cfgErr)
			}
		})
	}
}

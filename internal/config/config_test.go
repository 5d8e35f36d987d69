// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kegworks/keg/internal/issue"
	"github.com/kegworks/keg/pkg/formula"
)

func noEnv(string) string { return "" }

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ConfigFileName+"."+ConfigFileExt)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_DefaultsWhenNoConfigFile(t *testing.T) {
	t.Parallel()

	cfg, err := NewProvider().Load(t.Context(), LoadOptions{ConfigDirPath: t.TempDir(), Getenv: noEnv})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	want := DefaultConfig()
	if cfg.Prefix != want.Prefix || cfg.CacheDir != want.CacheDir || cfg.StateDir != want.StateDir {
		t.Errorf("directories = %q %q %q, want defaults", cfg.Prefix, cfg.CacheDir, cfg.StateDir)
	}
	if cfg.Fetch.Backoff != defaultFetchBackoff || cfg.Fetch.Timeout != defaultFetchTimeout {
		t.Errorf("fetch durations = %v %v, want defaults", cfg.Fetch.Backoff, cfg.Fetch.Timeout)
	}
	if cfg.Source != "" {
		t.Errorf("Source = %q, want empty", cfg.Source)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeConfig(t, dir, `
prefix: "/opt/keg/cellar"
formula_paths: ["/srv/formulas", "/usr/share/keg"]
default_runtime: "virtual"
parallelism: 2
fetch: {
	attempts: 5
	backoff: "2s"
}
ui: verbose: true
`)

	cfg, err := NewProvider().Load(t.Context(), LoadOptions{ConfigDirPath: dir, Getenv: noEnv})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Prefix != "/opt/keg/cellar" {
		t.Errorf("Prefix = %q", cfg.Prefix)
	}
	if got := strings.Join(cfg.FormulaPaths, ":"); got != "/srv/formulas:/usr/share/keg" {
		t.Errorf("FormulaPaths = %q", got)
	}
	if cfg.DefaultRuntime != formula.RuntimeVirtual {
		t.Errorf("DefaultRuntime = %q", cfg.DefaultRuntime)
	}
	if cfg.Parallelism != 2 || cfg.Fetch.Attempts != 5 || cfg.Fetch.Backoff != 2*time.Second {
		t.Errorf("parallelism/attempts/backoff = %d/%d/%v", cfg.Parallelism, cfg.Fetch.Attempts, cfg.Fetch.Backoff)
	}
	if cfg.Fetch.Timeout != defaultFetchTimeout {
		t.Errorf("Timeout = %v, want default kept", cfg.Fetch.Timeout)
	}
	if !cfg.UI.Verbose {
		t.Error("UI.Verbose = false, want true")
	}
	if cfg.Source != path {
		t.Errorf("Source = %q, want %q", cfg.Source, path)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeConfig(t, dir, `prefix: "/from/file"
parallelism: 2
`)

	env := envMap(map[string]string{
		"KEG_PREFIX":         "/from/env",
		"KEG_CACHE_DIR":      "/cache",
		"KEG_TOOL_PATH":      "/tools/bin:/usr/bin",
		"KEG_FORMULA_PATH":   "/f1" + string(filepath.ListSeparator) + "/f2",
		"KEG_FETCH_ATTEMPTS": "7",
		"KEG_FETCH_TIMEOUT":  "30s",
	})

	cfg, err := NewProvider().Load(t.Context(), LoadOptions{ConfigDirPath: dir, Getenv: env})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Prefix != "/from/env" {
		t.Errorf("Prefix = %q, want env value", cfg.Prefix)
	}
	if cfg.CacheDir != "/cache" {
		t.Errorf("CacheDir = %q", cfg.CacheDir)
	}
	if cfg.ToolPath != "/tools/bin:/usr/bin" {
		t.Errorf("ToolPath = %q", cfg.ToolPath)
	}
	if len(cfg.FormulaPaths) != 2 || cfg.FormulaPaths[0] != "/f1" || cfg.FormulaPaths[1] != "/f2" {
		t.Errorf("FormulaPaths = %v", cfg.FormulaPaths)
	}
	if cfg.Parallelism != 2 {
		t.Errorf("Parallelism = %d, want file value", cfg.Parallelism)
	}
	if cfg.Fetch.Attempts != 7 || cfg.Fetch.Timeout != 30*time.Second {
		t.Errorf("fetch = %+v", cfg.Fetch)
	}
}

func TestLoad_InvalidEnvRejected(t *testing.T) {
	t.Parallel()

	_, err := NewProvider().Load(t.Context(), LoadOptions{
		ConfigDirPath: t.TempDir(),
		Getenv:        envMap(map[string]string{"KEG_DEFAULT_RUNTIME": "container"}),
	})
	if err == nil {
		t.Fatal("expected error for unknown runtime")
	}
	if !errors.Is(err, formula.ErrInvalidRuntimeMode) {
		t.Errorf("error should wrap ErrInvalidRuntimeMode, got: %v", err)
	}
}

func TestLoad_CustomPath(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, t.TempDir(), `state_dir: "/var/lib/keg"`)

	cfg, err := NewProvider().Load(t.Context(), LoadOptions{ConfigFilePath: path, Getenv: noEnv})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.StateDir != "/var/lib/keg" {
		t.Errorf("StateDir = %q", cfg.StateDir)
	}
}

func TestLoad_CustomPath_NotFound(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "nope.cue")
	_, err := NewProvider().Load(t.Context(), LoadOptions{ConfigFilePath: missing, Getenv: noEnv})
	if err == nil {
		t.Fatal("expected error for missing config file")
	}

	var ae *issue.ActionableError
	if !errors.As(err, &ae) {
		t.Fatalf("error should be *issue.ActionableError, got %T", err)
	}
	if ae.Resource != missing {
		t.Errorf("Resource = %q, want %q", ae.Resource, missing)
	}
	if ae.IssueId != issue.ConfigLoadFailedId {
		t.Errorf("IssueId = %d, want ConfigLoadFailedId", ae.IssueId)
	}
}

func TestLoad_InvalidCUE(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{"syntax error", `prefix: "unterminated`},
		{"schema violation", `parallelism: "many"`},
		{"unknown field", `includes: []`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			writeConfig(t, dir, tt.content)

			_, err := NewProvider().Load(t.Context(), LoadOptions{ConfigDirPath: dir, Getenv: noEnv})
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), "load configuration") {
				t.Errorf("error should name the operation, got: %v", err)
			}
		})
	}
}

func TestLoad_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if _, err := NewProvider().Load(ctx, LoadOptions{ConfigDirPath: t.TempDir(), Getenv: noEnv}); !errors.Is(err, context.Canceled) {
		t.Errorf("Load() error = %v, want context.Canceled", err)
	}
}

func TestGenerateCUE_RoundTrips(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.ToolPath = "/tools"
	cfg.UI.Verbose = true

	dir := t.TempDir()
	writeConfig(t, dir, GenerateCUE(cfg))

	got, err := NewProvider().Load(t.Context(), LoadOptions{ConfigDirPath: dir, Getenv: noEnv})
	if err != nil {
		t.Fatalf("generated config does not load: %v", err)
	}
	if got.ToolPath != "/tools" || !got.UI.Verbose || got.Fetch.Timeout != cfg.Fetch.Timeout {
		t.Errorf("round trip lost values: %+v", got)
	}
}

func TestCreateDefaultConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "keg", "config.cue")

	created, err := CreateDefaultConfig(path)
	if err != nil || !created {
		t.Fatalf("CreateDefaultConfig() = %v, %v; want true, nil", created, err)
	}

	if err := os.WriteFile(path, []byte("parallelism: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	created, err = CreateDefaultConfig(path)
	if err != nil || created {
		t.Fatalf("second CreateDefaultConfig() = %v, %v; want false, nil", created, err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "parallelism: 3\n" {
		t.Error("existing config was overwritten")
	}
}

func TestConfigDir_EnvOverride(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	getenv := func(k string) string {
		if k == ConfigDirEnv {
			return dir
		}
		return ""
	}

	if got := ConfigDir(getenv); got != dir {
		t.Errorf("ConfigDir() = %q, want %q", got, dir)
	}
	if got := ConfigFilePath(getenv); got != filepath.Join(dir, "config.cue") {
		t.Errorf("ConfigFilePath() = %q", got)
	}
	if got := ConfigDir(func(string) string { return "" }); got == dir {
		t.Error("ConfigDir() without KEG_CONFIG_DIR should not use the override")
	}
}

func TestLoad_ConfigDirFromEnv(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.cue"), []byte("parallelism: 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := NewProvider().Load(t.Context(), LoadOptions{
		Getenv: func(k string) string {
			if k == ConfigDirEnv {
				return dir
			}
			return ""
		},
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Parallelism != 7 {
		t.Errorf("Parallelism = %d, want 7", cfg.Parallelism)
	}
	if cfg.Source != filepath.Join(dir, "config.cue") {
		t.Errorf("Source = %q", cfg.Source)
	}
}

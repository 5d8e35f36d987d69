// SPDX-License-Identifier: MPL-2.0

package config

import "context"

type (
	// LoadOptions are the explicit inputs of a configuration load.
	LoadOptions struct {
		// ConfigFilePath loads this file instead of searching the config
		// directory. The file must exist.
		ConfigFilePath string
		// ConfigDirPath replaces the config directory lookup.
		ConfigDirPath string
		// Getenv reads KEG_* overrides. Defaults to os.Getenv.
		Getenv func(string) string
	}

	// Provider loads the effective configuration.
	Provider interface {
		Load(ctx context.Context, opts LoadOptions) (*Config, error)
	}

	// ProviderFunc adapts a function to Provider.
	ProviderFunc func(ctx context.Context, opts LoadOptions) (*Config, error)
)

// Load calls f.
func (f ProviderFunc) Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	return f(ctx, opts)
}

// NewProvider returns the Provider that layers defaults, config.cue and
// KEG_* environment variables.
func NewProvider() Provider {
	return ProviderFunc(loadWithOptions)
}

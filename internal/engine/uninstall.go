// SPDX-License-Identifier: MPL-2.0

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/kegworks/keg/internal/registry"
	"github.com/kegworks/keg/pkg/formula"
)

// Uninstall removes an installed package's prefix and registry entry while
// holding its registry lock. Packages that other installed packages list as a
// runtime dependency are refused with *InUseError unless force is set.
func (e *Engine) Uninstall(ctx context.Context, name formula.Name, force bool) (registry.Entry, error) {
	var removed registry.Entry
	err := e.runStage(ctx, StageUninstall, name, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		unlock, err := e.store.Lock(name)
		if err != nil {
			return err
		}
		defer unlock()

		entry, ok, err := e.store.Get(name)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s: %w", name, ErrNotInstalled)
		}

		if !force {
			dependents, err := e.dependents(name)
			if err != nil {
				return err
			}
			if len(dependents) > 0 {
				return &InUseError{Name: name, Dependents: dependents}
			}
		}

		if err := e.installer.RemovePrefix(entry.Prefix); err != nil {
			return err
		}
		if _, err := e.store.Remove(name); err != nil {
			return err
		}
		removed = entry
		slog.Info("uninstalled", "formula", name, "version", entry.Version, "prefix", entry.Prefix)
		return nil
	})
	return removed, err
}

func (e *Engine) dependents(name formula.Name) ([]formula.Name, error) {
	entries, err := e.store.List()
	if err != nil {
		return nil, err
	}
	var out []formula.Name
	for _, entry := range entries {
		if slices.Contains(entry.RuntimeDeps, name) {
			out = append(out, entry.Name)
		}
	}
	return out, nil
}

// SPDX-License-Identifier: MPL-2.0

// Package registry persists the set of installed packages
// (<state>/registry.toml) and provides the per-name writer lock that
// concurrent installs coordinate on.
package registry

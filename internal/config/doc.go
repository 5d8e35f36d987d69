// SPDX-License-Identifier: MPL-2.0

// Package config handles keg configuration using Viper with CUE as the file format.
//
// Values are layered: built-in defaults (XDG base directories via adrg/xdg),
// then config.cue from $KEG_CONFIG_DIR or $XDG_CONFIG_HOME/keg (or an explicit
// --config file), then KEG_* environment variables. The file is validated
// against the embedded config_schema.cue before it is merged.
package config

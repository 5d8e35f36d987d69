// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the keg CLI.
//
// The root command wires configuration, logging and metrics; each subcommand
// builds an engine.Engine for the effective configuration and maps engine
// failures to distinct exit codes (see ExitCode).
package cmd

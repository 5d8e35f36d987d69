// SPDX-License-Identifier: MPL-2.0

// Package engine wires the keg pipeline together:
//
//	Load -> Resolve -> Fetch/Verify -> Install -> Register -> Test
//
// Every stage is terminal on failure and reports through *StageError. Batch
// installs run independent formulas in parallel; a formula starts only after
// every planned formula it depends on has been installed and registered.
package engine

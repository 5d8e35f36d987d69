// SPDX-License-Identifier: MPL-2.0

// Package testrun runs a formula's test block against an installed prefix.
// Every assertion runs and is reported individually; the block passes only
// when all of them do. A failing test never touches the installation.
package testrun

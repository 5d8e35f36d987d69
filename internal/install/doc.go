// SPDX-License-Identifier: MPL-2.0

// Package install runs a formula's install directive.
//
// The verified artifact is unpacked into a scratch work directory and the
// directive writes straight into <cellar>/<name>/<version>, which is what
// ${prefix} and KEG_PREFIX name. A previous install at that path is parked
// under <cellar>/.staging while the directive runs. When the directive fails
// or is cancelled the new prefix is removed and the parked install is
// renamed back. The work dir and the parked copy are removed on every exit
// path.
package install

// SPDX-License-Identifier: MPL-2.0

package resolve

import (
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

// leadingVersion captures up to three numeric components; formula versions
// such as "1.10.1.492" or "17.0.2+8" are compared on that part only.
var leadingVersion = regexp.MustCompile(`^[0-9]+(\.[0-9]+){0,2}`)

// canonicalVersion maps a free-form package version onto a semver string
// accepted by golang.org/x/mod/semver, or "" when none can be derived.
func canonicalVersion(v string) string {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if semver.IsValid("v" + v) {
		return semver.Canonical("v" + v)
	}
	if m := leadingVersion.FindString(v); m != "" {
		return semver.Canonical("v" + m)
	}
	return ""
}

// satisfiesMinimum reports whether have >= minimum. comparable is false
// when either side cannot be read as a version.
func satisfiesMinimum(have, minimum string) (ok, comparable bool) {
	h, m := canonicalVersion(have), canonicalVersion(minimum)
	if h == "" || m == "" {
		return false, false
	}
	return semver.Compare(h, m) >= 0, true
}

// SPDX-License-Identifier: MPL-2.0

package formula

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"mvdan.cc/sh/v3/shell"
)

// ErrUnknownVariable is returned when a template references a variable that
// the engine does not provide.
var ErrUnknownVariable = errors.New("unknown template variable")

// Expand substitutes ${var} references in s from vars. Expansion follows
// double-quote shell rules (no word splitting, no globbing); command
// substitution is rejected by the parser, so formula text can never run code here.
func Expand(s string, vars map[string]string) (string, error) {
	if !strings.Contains(s, "$") {
		return s, nil
	}

	var missing []string
	out, err := shell.Expand(s, func(name string) string {
		v, ok := vars[name]
		// The expander also consults IFS and friends; only report names the
		// template itself references.
		if !ok && (strings.Contains(s, "${"+name) || strings.Contains(s, "$"+name)) {
			missing = append(missing, name)
		}
		return v
	})
	if err != nil {
		return "", fmt.Errorf("expanding %q: %w", s, err)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("expanding %q: %w: %s", s, ErrUnknownVariable, strings.Join(missing, ", "))
	}
	return out, nil
}

// ExpandArgv expands every element of argv with Expand.
func ExpandArgv(argv []string, vars map[string]string) ([]string, error) {
	out := make([]string, len(argv))
	for i, a := range argv {
		v, err := Expand(a, vars)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"fmt"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
)

type (
	// Issue is one problem reported by CUE, located by its JSON-style path.
	Issue struct {
		// Path is the location of the offending value (e.g. "depends_on[1].kind").
		// Empty when CUE could not attribute the problem to a field.
		Path string
		// Message is the CUE diagnostic with any redundant path prefix removed.
		Message string
	}

	// Error aggregates the issues found while compiling, validating or
	// decoding a file.
	Error struct {
		File   string
		Issues []Issue
	}
)

// Error renders "<file>: <path>: <message>" for a single issue and an indented
// list for several.
func (e *Error) Error() string {
	lines := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		if is.Path != "" {
			lines = append(lines, is.Path+": "+is.Message)
		} else {
			lines = append(lines, is.Message)
		}
	}
	if len(lines) == 1 {
		return fmt.Sprintf("%s: %s", e.File, lines[0])
	}
	return fmt.Sprintf("%s: validation failed:\n  %s", e.File, strings.Join(lines, "\n  "))
}

// FirstPath returns the path of the first attributed issue, or "".
func (e *Error) FirstPath() string {
	for _, is := range e.Issues {
		if is.Path != "" {
			return is.Path
		}
	}
	return ""
}

// FormatError converts a CUE error into an *Error carrying JSON-style paths.
//
//	clojure.cue: sha256: invalid value "abc" (does not match =~"^[0-9a-f]{64}$")
//	config.cue: fetch.attempts: conflicting values 0 and >=1
//
// Non-CUE errors are wrapped as a single unattributed issue.
func FormatError(err error, file string) error {
	if err == nil {
		return nil
	}

	list := cueerrors.Errors(err)
	if len(list) == 0 {
		return &Error{File: file, Issues: []Issue{{Message: err.Error()}}}
	}

	out := &Error{File: file}
	for _, e := range list {
		path := formatPath(cueerrors.Path(e))
		msg := e.Error()
		if path != "" && strings.HasPrefix(msg, path) {
			msg = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(msg, path), ":"))
		}
		out.Issues = append(out.Issues, Issue{Path: path, Message: msg})
	}
	return out
}

// formatPath turns CUE's flat path (["depends_on", "1", "kind"]) into
// "depends_on[1].kind".
func formatPath(path []string) string {
	var b strings.Builder
	for i, part := range path {
		if i > 0 && isIndex(part) {
			b.WriteString("[" + part + "]")
			continue
		}
		if i > 0 {
			b.WriteString(".")
		}
		b.WriteString(part)
	}
	return b.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// CheckFileSize rejects inputs larger than maxSize before they reach CUE.
func CheckFileSize(data []byte, maxSize int64, file string) error {
	if int64(len(data)) > maxSize {
		return fmt.Errorf("%s: file size %d bytes exceeds maximum %d bytes", file, len(data), maxSize)
	}
	return nil
}

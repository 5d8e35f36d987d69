// SPDX-License-Identifier: MPL-2.0

package formula

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"github.com/kegworks/keg/pkg/cueutil"
)

//go:embed formula_schema.cue
var formulaSchema string

// ErrInvalidFormula matches every *ParseError via errors.Is.
var ErrInvalidFormula = errors.New("invalid formula")

type (
	// ParseError reports a missing or malformed formula field.
	ParseError struct {
		// Path is the formula file (or "<input>").
		Path string
		// Field is the offending field in JSON-path form, e.g. "depends_on[2].kind".
		// Empty when the problem is not attributable to a field (syntax errors).
		Field string
		Err   error
	}

	fieldError struct {
		field string
		err   error
	}
)

func (e *ParseError) Error() string {
	var cueErr *cueutil.Error
	if errors.As(e.Err, &cueErr) || e.Field == "" {
		return fmt.Sprintf("parse formula: %v", e.Err)
	}
	return fmt.Sprintf("parse formula: %s: %s: %v", e.Path, e.Field, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ParseError) Unwrap() error { return e.Err }

// Is matches ErrInvalidFormula.
func (e *ParseError) Is(target error) bool { return target == ErrInvalidFormula }

// Parse reads and parses the formula file at path.
func Parse(path string) (*Formula, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("reading formula: %w", err)}
	}
	return ParseBytes(data, path)
}

// ParseBytes parses formula text. It has no side effects.
func ParseBytes(data []byte, path string) (*Formula, error) {
	if path == "" {
		path = "<input>"
	}

	result, err := cueutil.ParseAndDecodeString[Formula](
		formulaSchema,
		data,
		"#Formula",
		cueutil.WithFilename(path),
	)
	if err != nil {
		pe := &ParseError{Path: path, Err: err}
		var cueErr *cueutil.Error
		if errors.As(err, &cueErr) {
			pe.Field = cueErr.FirstPath()
		}
		return nil, pe
	}

	f := result.Value
	f.FilePath = path
	f.SHA256 = f.SHA256.Normalize()

	if errs := f.validate(); len(errs) > 0 {
		first := errs[0]
		return nil, &ParseError{Path: path, Field: first.field, Err: first.err}
	}

	return f, nil
}

// SPDX-License-Identifier: MPL-2.0

package formula

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	// DependencyRuntime marks a dependency needed when the package runs.
	DependencyRuntime DependencyKind = "runtime"
	// DependencyBuild marks a tool needed only while the install directive runs.
	DependencyBuild DependencyKind = "build"

	// RuntimeNative executes directives directly with os/exec.
	RuntimeNative RuntimeMode = "native"
	// RuntimeVirtual executes directives through the embedded mvdan/sh interpreter.
	RuntimeVirtual RuntimeMode = "virtual"

	checksumLen = 64
)

var (
	// ErrInvalidName is the sentinel error wrapped by InvalidNameError.
	ErrInvalidName = errors.New("invalid formula name")
	// ErrInvalidChecksum is the sentinel error wrapped by InvalidChecksumError.
	ErrInvalidChecksum = errors.New("invalid checksum")
	// ErrInvalidDependencyKind is the sentinel error wrapped by InvalidDependencyKindError.
	ErrInvalidDependencyKind = errors.New("invalid dependency kind")
	// ErrInvalidRuntimeMode is the sentinel error wrapped by InvalidRuntimeModeError.
	ErrInvalidRuntimeMode = errors.New("invalid runtime mode")

	namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9+._@-]*$`)
)

type (
	// Name identifies a formula and the package it installs
	// (lowercase, e.g. "clojure", "openssl@3").
	Name string

	// InvalidNameError is returned when a Name does not match the naming rules.
	InvalidNameError struct {
		Value Name
	}

	// Checksum is a lowercase hex-encoded SHA256 digest (64 characters).
	Checksum string

	// InvalidChecksumError is returned when a Checksum is not 64 hex characters.
	InvalidChecksumError struct {
		Value Checksum
	}

	// DependencyKind tags a dependency as runtime or build-time.
	DependencyKind string

	// InvalidDependencyKindError is returned for kinds other than runtime/build.
	InvalidDependencyKindError struct {
		Value DependencyKind
	}

	// RuntimeMode selects how a directive is executed.
	RuntimeMode string

	// InvalidRuntimeModeError is returned for unknown runtime modes.
	InvalidRuntimeModeError struct {
		Value RuntimeMode
	}
)

// String returns the name as a plain string.
func (n Name) String() string { return string(n) }

// IsValid reports whether the name matches the formula naming rules.
func (n Name) IsValid() (bool, []error) {
	if !namePattern.MatchString(string(n)) {
		return false, []error{&InvalidNameError{Value: n}}
	}
	return true, nil
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid formula name %q (lowercase letters, digits and +._@- only)", e.Value)
}

// Unwrap returns ErrInvalidName for errors.Is.
func (e *InvalidNameError) Unwrap() error { return ErrInvalidName }

// String returns the digest as a plain string.
func (c Checksum) String() string { return string(c) }

// Normalize returns the lowercase form of the digest.
func (c Checksum) Normalize() Checksum { return Checksum(strings.ToLower(string(c))) }

// Short returns the first 12 characters, for display.
func (c Checksum) Short() string {
	if len(c) <= 12 {
		return string(c)
	}
	return string(c[:12])
}

// IsValid reports whether the digest is 64 hex characters.
func (c Checksum) IsValid() (bool, []error) {
	if len(c) != checksumLen {
		return false, []error{&InvalidChecksumError{Value: c}}
	}
	for _, r := range c {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') && (r < 'A' || r > 'F') {
			return false, []error{&InvalidChecksumError{Value: c}}
		}
	}
	return true, nil
}

func (e *InvalidChecksumError) Error() string {
	return fmt.Sprintf("invalid sha256 %q (must be %d hex characters)", e.Value, checksumLen)
}

// Unwrap returns ErrInvalidChecksum for errors.Is.
func (e *InvalidChecksumError) Unwrap() error { return ErrInvalidChecksum }

// String returns the kind as a plain string.
func (k DependencyKind) String() string { return string(k) }

// IsValid reports whether the kind is runtime or build. The zero value is
// valid and means runtime.
func (k DependencyKind) IsValid() (bool, []error) {
	switch k {
	case "", DependencyRuntime, DependencyBuild:
		return true, nil
	default:
		return false, []error{&InvalidDependencyKindError{Value: k}}
	}
}

func (e *InvalidDependencyKindError) Error() string {
	return fmt.Sprintf("invalid dependency kind %q (expected %q or %q)", e.Value, DependencyRuntime, DependencyBuild)
}

// Unwrap returns ErrInvalidDependencyKind for errors.Is.
func (e *InvalidDependencyKindError) Unwrap() error { return ErrInvalidDependencyKind }

// String returns the mode as a plain string.
func (m RuntimeMode) String() string { return string(m) }

// IsValid reports whether the mode is known. The zero value means native.
func (m RuntimeMode) IsValid() (bool, []error) {
	switch m {
	case "", RuntimeNative, RuntimeVirtual:
		return true, nil
	default:
		return false, []error{&InvalidRuntimeModeError{Value: m}}
	}
}

func (e *InvalidRuntimeModeError) Error() string {
	return fmt.Sprintf("invalid runtime %q (expected %q or %q)", e.Value, RuntimeNative, RuntimeVirtual)
}

// Unwrap returns ErrInvalidRuntimeMode for errors.Is.
func (e *InvalidRuntimeModeError) Unwrap() error { return ErrInvalidRuntimeMode }

// ParseRuntimeMode parses a CLI or config value. Empty input yields "" (no override).
func ParseRuntimeMode(value string) (RuntimeMode, error) {
	mode := RuntimeMode(value)
	if ok, errs := mode.IsValid(); !ok {
		return "", errs[0]
	}
	return mode, nil
}

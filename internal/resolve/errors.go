// SPDX-License-Identifier: MPL-2.0

package resolve

import (
	"errors"
	"fmt"

	"github.com/kegworks/keg/pkg/formula"
)

// ErrUnresolvedDependency is the sentinel wrapped by UnresolvedDependencyError.
var ErrUnresolvedDependency = errors.New("unresolved dependency")

// UnresolvedDependencyError is returned when a declared dependency is neither
// installed, present on the tool path, nor available as a formula.
type UnresolvedDependencyError struct {
	// Formula declares the dependency.
	Formula    formula.Name
	Dependency formula.Dependency
	// Reason explains why each location was rejected.
	Reason string
}

func (e *UnresolvedDependencyError) Error() string {
	return fmt.Sprintf("%s: cannot resolve dependency %s: %s", e.Formula, e.Dependency, e.Reason)
}

// Unwrap returns ErrUnresolvedDependency for errors.Is.
func (e *UnresolvedDependencyError) Unwrap() error { return ErrUnresolvedDependency }

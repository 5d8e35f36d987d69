// SPDX-License-Identifier: MPL-2.0

package runtime

import "github.com/kegworks/keg/pkg/formula"

// BuildRegistry returns a registry with the native and virtual runtimes.
// defaultMode selects the runtime for directives that do not name one;
// empty keeps native.
func BuildRegistry(defaultMode formula.RuntimeMode) *Registry {
	reg := NewRegistry()
	reg.Register(formula.RuntimeNative, NewNativeRuntime())
	reg.Register(formula.RuntimeVirtual, NewVirtualRuntime())
	reg.SetDefault(defaultMode)
	return reg
}

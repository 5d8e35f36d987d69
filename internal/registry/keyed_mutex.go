// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"sync"

	"github.com/kegworks/keg/pkg/formula"
)

type (
	// keyedMutex hands out one mutex per package name. Entries are dropped
	// once no goroutine holds or waits on them.
	keyedMutex struct {
		mu    sync.Mutex
		locks map[formula.Name]*refMutex
	}

	refMutex struct {
		sync.Mutex
		refs int
	}
)

// Lock blocks until name is free and returns the matching unlock function.
func (k *keyedMutex) Lock(name formula.Name) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[formula.Name]*refMutex)
	}
	m, ok := k.locks[name]
	if !ok {
		m = &refMutex{}
		k.locks[name] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.Unlock()
			k.mu.Lock()
			m.refs--
			if m.refs == 0 {
				delete(k.locks, name)
			}
			k.mu.Unlock()
		})
	}
}

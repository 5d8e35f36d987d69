// SPDX-License-Identifier: MPL-2.0

//go:build !linux

package registry

// fileLock is a no-op off Linux; the in-process mutex in Store still
// serializes writers within one keg process.
type fileLock struct{}

func acquireFileLock(string) (*fileLock, error) {
	return &fileLock{}, nil
}

// Release is a no-op.
func (l *fileLock) Release() {}

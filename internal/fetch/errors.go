// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"errors"
	"fmt"
)

// ErrFetch is the sentinel wrapped by FetchError.
var ErrFetch = errors.New("fetch failed")

// FetchError reports a download that failed after the retry budget, or with a
// status that is not worth retrying.
type FetchError struct {
	URL string
	// Attempts is how many requests were made.
	Attempts int
	// StatusCode is the last HTTP status, 0 for transport or file errors.
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	plural := "s"
	if e.Attempts == 1 {
		plural = ""
	}
	return fmt.Sprintf("fetching %s failed after %d attempt%s: %v", e.URL, e.Attempts, plural, e.Err)
}

// Unwrap returns the underlying cause.
func (e *FetchError) Unwrap() error { return e.Err }

// Is matches ErrFetch.
func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/kegworks/keg/pkg/formula"
)

// ErrChecksumMismatch is the sentinel wrapped by ChecksumMismatchError.
var ErrChecksumMismatch = errors.New("checksum mismatch")

// ChecksumMismatchError reports an artifact whose digest differs from the
// formula's declared sha256. It is never retried.
type ChecksumMismatchError struct {
	URL      string
	Expected formula.Checksum
	Got      formula.Checksum
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum verification failed for %s\nExpected: %s\nGot:      %s", e.URL, e.Expected, e.Got)
}

// Unwrap returns ErrChecksumMismatch for errors.Is.
func (e *ChecksumMismatchError) Unwrap() error { return ErrChecksumMismatch }

// HashFile returns the lowercase hex SHA256 of the file at path.
func HashFile(path string) (formula.Checksum, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }() // read-only

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return formula.Checksum(hex.EncodeToString(h.Sum(nil))), nil
}

// VerifyFile checks the file at path against want. A mismatch is a
// *ChecksumMismatchError labelled with source.
func VerifyFile(path string, want formula.Checksum, source string) error {
	got, err := HashFile(path)
	if err != nil {
		return err
	}
	if got != want.Normalize() {
		return &ChecksumMismatchError{URL: source, Expected: want.Normalize(), Got: got}
	}
	return nil
}

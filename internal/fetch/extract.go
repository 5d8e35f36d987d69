// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"archive/tar"
	"bufio"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// maxExtractBytes caps the total uncompressed size of an archive (8 GiB).
const maxExtractBytes = 8 << 30

var (
	// ErrUnsafeArchive is returned for entries that would land outside the
	// destination directory.
	ErrUnsafeArchive = errors.New("unsafe archive entry")
	// ErrArchiveTooLarge is returned when extraction exceeds the size cap.
	ErrArchiveTooLarge = errors.New("archive exceeds extraction limit")

	gzipMagic = []byte{0x1f, 0x8b}
)

// Unpack places the artifact at src into destDir and returns the directory
// the install directive should run in. Gzipped tarballs are extracted, and
// when they hold a single top-level directory that directory is returned.
// Any other artifact is copied into destDir under name.
func Unpack(src, destDir, name string) (string, error) {
	isTarGz, err := looksLikeTarGz(src, name)
	if err != nil {
		return "", err
	}
	if !isTarGz {
		if err := copyFile(src, filepath.Join(destDir, filepath.Base(name)), 0o755); err != nil {
			return "", err
		}
		return destDir, nil
	}

	if err := ExtractTarGz(src, destDir); err != nil {
		return "", err
	}
	return buildRoot(destDir)
}

// ExtractTarGz extracts a .tar.gz archive into destDir. Absolute paths,
// ".." components and links resolving outside destDir are rejected, as are
// entries that would write through an existing symlink. All writes go
// through an os.Root opened on destDir.
func ExtractTarGz(src, destDir string) (err error) {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer func() { _ = f.Close() }() // read-only

	gz, err := gzip.NewReader(bufio.NewReader(f))
	if err != nil {
		return fmt.Errorf("creating gzip reader: %w", err)
	}
	defer func() { _ = gz.Close() }()

	root, err := os.OpenRoot(destDir)
	if err != nil {
		return fmt.Errorf("opening extraction dir: %w", err)
	}
	defer func() { _ = root.Close() }()
	realDest, err := filepath.EvalSymlinks(destDir)
	if err != nil {
		return err
	}

	var total int64
	tr := tar.NewReader(gz)
	for {
		hdr, nextErr := tr.Next()
		if errors.Is(nextErr, io.EOF) {
			return nil
		}
		if nextErr != nil {
			return fmt.Errorf("reading tar entry: %w", nextErr)
		}

		name := filepath.FromSlash(strings.TrimPrefix(hdr.Name, "./"))
		if name == "" || name == "." {
			continue
		}
		if !filepath.IsLocal(name) {
			return fmt.Errorf("%w: %s", ErrUnsafeArchive, hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if _, err := mkdirLocal(root, realDest, name); err != nil {
				return fmt.Errorf("%w: %s", err, hdr.Name)
			}
		case tar.TypeReg:
			total += hdr.Size
			if total > maxExtractBytes {
				return ErrArchiveTooLarge
			}
			if _, err := mkdirLocal(root, realDest, filepath.Dir(name)); err != nil {
				return fmt.Errorf("%w: %s", err, hdr.Name)
			}
			if err := writeEntry(root, tr, name, hdr.FileInfo().Mode().Perm(), hdr.Size); err != nil {
				return err
			}
		case tar.TypeSymlink:
			parent, err := mkdirLocal(root, realDest, filepath.Dir(name))
			if err != nil {
				return fmt.Errorf("%w: %s", err, hdr.Name)
			}
			linkTarget := filepath.Join(parent, filepath.FromSlash(hdr.Linkname))
			if filepath.IsAbs(hdr.Linkname) || !filepath.IsLocal(linkTarget) {
				return fmt.Errorf("%w: link %s -> %s", ErrUnsafeArchive, hdr.Name, hdr.Linkname)
			}
			if err := root.Symlink(hdr.Linkname, name); err != nil {
				return err
			}
		default:
			// Hard links, devices and fifos have no place in a source tarball.
			continue
		}
	}
}

// mkdirLocal creates dir inside root and returns its location relative to
// realDest once symlinks are resolved. A dir resolving outside realDest
// fails with ErrUnsafeArchive.
func mkdirLocal(root *os.Root, realDest, dir string) (string, error) {
	if dir == "." {
		return ".", nil
	}
	if err := root.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}
	resolved, err := filepath.EvalSymlinks(filepath.Join(realDest, dir))
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(realDest, resolved)
	if err != nil || !filepath.IsLocal(rel) {
		return "", ErrUnsafeArchive
	}
	return rel, nil
}

func writeEntry(root *os.Root, r io.Reader, name string, perm fs.FileMode, size int64) (err error) {
	if info, err := root.Lstat(name); err == nil && info.Mode()&fs.ModeSymlink != 0 {
		return fmt.Errorf("%w: %s overwrites a symlink", ErrUnsafeArchive, name)
	}
	if perm == 0 {
		perm = 0o644
	}
	out, err := root.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm|0o200)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	if _, err := io.Copy(out, io.LimitReader(r, size)); err != nil {
		return fmt.Errorf("extracting %s: %w", filepath.Base(name), err)
	}
	return nil
}

// buildRoot returns the single top-level directory of dir, or dir itself.
func buildRoot(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	if len(entries) == 1 && entries[0].IsDir() {
		return filepath.Join(dir, entries[0].Name()), nil
	}
	return dir, nil
}

func looksLikeTarGz(path, name string) (bool, error) {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".tar.gz") || strings.HasSuffix(lower, ".tgz") {
		return true, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer func() { _ = f.Close() }()

	head := make([]byte, len(gzipMagic))
	if _, err := io.ReadFull(f, head); err != nil {
		return false, nil //nolint:nilerr // short files are not archives
	}
	return string(head) == string(gzipMagic), nil
}

func copyFile(src, dst string, perm fs.FileMode) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := out.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	_, err = io.Copy(out, in)
	return err
}

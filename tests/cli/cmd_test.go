// SPDX-License-Identifier: MPL-2.0

// Package cli contains CLI integration tests using testscript.
//
// The keg binary is built once in TestMain and driven by the scripts in
// testdata. Every script gets its own cellar, cache, state and formula
// directories under $WORK.
package cli

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"
)

var (
	// binaryPath is the path to the built keg binary.
	binaryPath string
	// projectRoot is the path to the module root.
	projectRoot string
)

func TestMain(m *testing.M) {
	wd, err := os.Getwd()
	if err != nil {
		panic("failed to get working directory: " + err.Error())
	}

	// Walk up to find go.mod
	projectRoot = wd
	for {
		if _, err := os.Stat(filepath.Join(projectRoot, "go.mod")); err == nil {
			break
		}
		parent := filepath.Dir(projectRoot)
		if parent == projectRoot {
			panic("could not find project root (go.mod)")
		}
		projectRoot = parent
	}

	binDir := filepath.Join(projectRoot, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		panic("failed to create bin directory: " + err.Error())
	}

	binaryName := "keg"
	if runtime.GOOS == "windows" {
		binaryName = "keg.exe"
	}
	binaryPath = filepath.Join(binDir, binaryName)

	cmd := exec.CommandContext(context.Background(), "go", "build", "-o", binaryPath, ".")
	cmd.Dir = projectRoot
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		panic("failed to build keg: " + err.Error())
	}

	os.Exit(m.Run())
}

// TestCLI runs all testscript tests in the testdata directory.
func TestCLI(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("scripts use POSIX install directives")
	}

	testscript.Run(t, testscript.Params{
		Dir: "testdata",
		Setup: func(env *testscript.Env) error {
			binDir := filepath.Dir(binaryPath)
			env.Setenv("PATH", binDir+string(os.PathListSeparator)+env.Getenv("PATH"))

			work := env.WorkDir
			env.Setenv("XDG_CONFIG_HOME", filepath.Join(work, ".config"))
			env.Setenv("KEG_PREFIX", filepath.Join(work, "cellar"))
			env.Setenv("KEG_CACHE_DIR", filepath.Join(work, "cache"))
			env.Setenv("KEG_STATE_DIR", filepath.Join(work, "state"))
			env.Setenv("KEG_FORMULA_PATH", filepath.Join(work, "formulas"))
			env.Setenv("KEG_TOOL_PATH", "/usr/bin:/bin")
			env.Setenv("KEG_FETCH_BACKOFF", "1ms")
			return nil
		},
		Cmds: map[string]func(ts *testscript.TestScript, neg bool, args []string){
			"publish": cmdPublish,
		},
		// Continue running all tests even if one fails
		ContinueOnError: true,
	})
}

// cmdPublish packs a directory into a tarball under $WORK/mirror and writes a
// formula for it whose url and sha256 point at that tarball.
//
//	publish <name> <srcdir> <formula-body-file>
//
// The body file supplies every field except url and sha256.
func cmdPublish(ts *testscript.TestScript, neg bool, args []string) {
	if neg {
		ts.Fatalf("unsupported: ! publish")
	}
	if len(args) != 3 {
		ts.Fatalf("usage: publish name srcdir body")
	}
	name, src, body := args[0], ts.MkAbs(args[1]), ts.MkAbs(args[2])

	mirror := ts.MkAbs("mirror")
	ts.Check(os.MkdirAll(mirror, 0o755))
	archive := filepath.Join(mirror, name+".tar.gz")
	sum, err := packTarball(src, archive)
	ts.Check(err)

	fields, err := os.ReadFile(body)
	ts.Check(err)

	formulas := ts.MkAbs("formulas")
	ts.Check(os.MkdirAll(formulas, 0o755))
	u := (&url.URL{Scheme: "file", Path: filepath.ToSlash(archive)}).String()
	doc := fmt.Sprintf("%s\nurl: %q\nsha256: %q\n", fields, u, sum)
	ts.Check(os.WriteFile(filepath.Join(formulas, name+".cue"), []byte(doc), 0o644))
}

func packTarball(src, dst string) (string, error) {
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer out.Close()

	h := sha256.New()
	gz := gzip.NewWriter(io.MultiWriter(out, h))
	tw := tar.NewWriter(gz)

	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil || path == src {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			return tw.WriteHeader(hdr)
		}
		// testscript writes files 0644; scripts under bin/ and install.sh must run.
		hdr.Mode = 0o755
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return "", err
	}
	if err := tw.Close(); err != nil {
		return "", err
	}
	if err := gz.Close(); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

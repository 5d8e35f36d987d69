// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNativeRuntime_Run(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	binDir := t.TempDir()
	writeScript(t, binDir, "greet", `echo "hello $1"`)
	writeScript(t, binDir, "fail", `echo "permission denied" >&2; exit 1`)
	writeScript(t, binDir, "showenv", `echo "$KEG_NAME:$HOME"`)
	writeScript(t, dir, "local.sh", `echo local`)

	tests := []struct {
		name       string
		argv       []string
		env        map[string]string
		wantCode   ExitCode
		wantOut    string
		wantErrOut string
		wantErr    error
	}{
		{
			name:     "program found on directive PATH",
			argv:     []string{"greet", "keg"},
			wantCode: 0,
			wantOut:  "hello keg\n",
		},
		{
			name:       "non-zero exit captures stderr",
			argv:       []string{"fail"},
			wantCode:   1,
			wantErrOut: "permission denied\n",
		},
		{
			name:     "relative path resolved against work dir",
			argv:     []string{"./local.sh"},
			wantCode: 0,
			wantOut:  "local\n",
		},
		{
			name:     "environment is exactly the given map",
			argv:     []string{"showenv"},
			env:      map[string]string{"KEG_NAME": "clojure", "HOME": "/nowhere"},
			wantCode: 0,
			wantOut:  "clojure:/nowhere\n",
		},
		{
			name:     "missing program",
			argv:     []string{"no-such-program"},
			wantCode: ExitCommandNotFound,
			wantErr:  ErrCommandNotFound,
		},
	}

	rt := NewNativeRuntime()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := map[string]string{"PATH": binDir + ":" + systemPath}
			for k, v := range tt.env {
				env[k] = v
			}
			res := rt.Run(t.Context(), &Command{Argv: tt.argv, Dir: dir, Env: env})

			if res.ExitCode != tt.wantCode {
				t.Errorf("ExitCode = %d, want %d (err: %v, stderr: %q)", res.ExitCode, tt.wantCode, res.Error, res.ErrOutput)
			}
			if tt.wantErr != nil {
				if !errors.Is(res.Error, tt.wantErr) {
					t.Errorf("Error = %v, want %v", res.Error, tt.wantErr)
				}
			} else if res.Error != nil {
				t.Errorf("unexpected error: %v", res.Error)
			}
			if tt.wantOut != "" && res.Output != tt.wantOut {
				t.Errorf("Output = %q, want %q", res.Output, tt.wantOut)
			}
			if tt.wantErrOut != "" && res.ErrOutput != tt.wantErrOut {
				t.Errorf("ErrOutput = %q, want %q", res.ErrOutput, tt.wantErrOut)
			}
		})
	}
}

func TestNativeRuntime_NotExecutable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := writeScript(t, dir, "plain", "echo nope")
	if err := os.Chmod(p, 0o644); err != nil {
		t.Fatal(err)
	}

	res := NewNativeRuntime().Run(t.Context(), testCommand(dir, p))
	if res.ExitCode != ExitCannotExecute {
		t.Errorf("ExitCode = %d, want %d", res.ExitCode, ExitCannotExecute)
	}
	if !errors.Is(res.Error, ErrNotExecutable) {
		t.Errorf("Error = %v, want ErrNotExecutable", res.Error)
	}
}

func TestNativeRuntime_LiveWriters(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeScript(t, dir, "both.sh", `echo out; echo err >&2`)

	var stdout, stderr bytes.Buffer
	cmd := testCommand(dir, "./both.sh")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	res := NewNativeRuntime().Run(t.Context(), cmd)
	if !res.Success() {
		t.Fatalf("Run() failed: code %d, err %v", res.ExitCode, res.Error)
	}
	if stdout.String() != "out\n" || res.Output != "out\n" {
		t.Errorf("stdout live %q captured %q, want %q", stdout.String(), res.Output, "out\n")
	}
	if stderr.String() != "err\n" || res.ErrOutput != "err\n" {
		t.Errorf("stderr live %q captured %q, want %q", stderr.String(), res.ErrOutput, "err\n")
	}
}

func TestNativeRuntime_Cancelled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeScript(t, dir, "slow.sh", `sleep 30`)

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	res := NewNativeRuntime().Run(ctx, testCommand(dir, "./slow.sh"))
	if time.Since(start) > 10*time.Second {
		t.Fatalf("Run() did not stop on cancellation")
	}
	if !errors.Is(res.Error, context.DeadlineExceeded) {
		t.Errorf("Error = %v, want context.DeadlineExceeded", res.Error)
	}
}

func TestNativeRuntime_BadInput(t *testing.T) {
	t.Parallel()

	rt := NewNativeRuntime()

	res := rt.Run(t.Context(), testCommand(t.TempDir()))
	if res.Error == nil || res.ExitCode != 1 {
		t.Errorf("empty argv: got code %d err %v", res.ExitCode, res.Error)
	}

	missing := filepath.Join(t.TempDir(), "gone")
	res = rt.Run(t.Context(), testCommand(missing, "true"))
	if res.Error == nil || !strings.Contains(res.Error.Error(), "does not exist") {
		t.Errorf("missing dir: got err %v", res.Error)
	}
}

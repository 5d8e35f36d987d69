// SPDX-License-Identifier: MPL-2.0

package runtime

import (
	"os"
	"path/filepath"
	"testing"
)

const systemPath = "/usr/bin:/bin"

// writeScript creates an executable shell script named name in dir.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()

	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return p
}

func testCommand(dir string, argv ...string) *Command {
	return &Command{
		Argv: argv,
		Dir:  dir,
		Env:  map[string]string{"PATH": systemPath},
	}
}

// SPDX-License-Identifier: MPL-2.0

package formula

import (
	"errors"
	"slices"
	"strings"
	"testing"
)

func TestExpand(t *testing.T) {
	t.Parallel()

	vars := map[string]string{
		"prefix":  "/opt/keg/Cellar/clojure/1.10.1.492",
		"bin":     "/opt/keg/Cellar/clojure/1.10.1.492/bin",
		"version": "1.10.1.492",
	}

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr error
	}{
		{name: "plain text", in: "--local", want: "--local"},
		{name: "braced", in: "${prefix}", want: vars["prefix"]},
		{name: "embedded", in: "clojure-tools-${version}.tar.gz", want: "clojure-tools-1.10.1.492.tar.gz"},
		{name: "bare", in: "$bin/clj", want: vars["bin"] + "/clj"},
		{name: "spaces kept", in: "(+ 1 1)", want: "(+ 1 1)"},
		{name: "unknown", in: "${libexec}/x", wantErr: ErrUnknownVariable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Expand(tt.in, vars)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expand(%q) error = %v, want %v", tt.in, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expand(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Expand(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExpand_ListsMissingNames(t *testing.T) {
	t.Parallel()

	_, err := Expand("${zeta}/${alpha}", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.HasSuffix(err.Error(), "alpha, zeta") {
		t.Errorf("error = %q, want sorted missing names", err)
	}
}

func TestExpandArgv(t *testing.T) {
	t.Parallel()

	got, err := ExpandArgv([]string{"./install.sh", "-p", "${prefix}", "--local"}, map[string]string{"prefix": "/p"})
	if err != nil {
		t.Fatalf("ExpandArgv() error = %v", err)
	}
	if want := []string{"./install.sh", "-p", "/p", "--local"}; !slices.Equal(got, want) {
		t.Errorf("ExpandArgv() = %v, want %v", got, want)
	}
}

// SPDX-License-Identifier: MPL-2.0

package formula

import (
	"fmt"
	"path/filepath"
	"strings"
)

type (
	// Formula is the parsed form of a formula file. It is read once per
	// invocation and never mutated or persisted by the engine.
	Formula struct {
		Name     Name   `json:"name" yaml:"name"`
		Desc     string `json:"desc,omitempty" yaml:"desc,omitempty"`
		Homepage string `json:"homepage,omitempty" yaml:"homepage,omitempty"`
		// Version is substituted for ${version} in URL.
		Version string `json:"version,omitempty" yaml:"version,omitempty"`
		// URL is the source artifact location, possibly templated.
		URL    string   `json:"url" yaml:"url"`
		SHA256 Checksum `json:"sha256" yaml:"sha256"`
		// DependsOn keeps declaration order.
		DependsOn []Dependency `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
		Install   *Directive   `json:"install,omitempty" yaml:"install,omitempty"`
		Test      *TestBlock   `json:"test,omitempty" yaml:"test,omitempty"`

		// FilePath is where the formula was read from.
		FilePath string `json:"-" yaml:"-"`
	}

	// Dependency is one depends_on entry.
	Dependency struct {
		Name Name           `json:"name" yaml:"name"`
		Kind DependencyKind `json:"kind,omitempty" yaml:"kind,omitempty"`
		// Version is an optional minimum version ("1.8+" or ">=1.8").
		Version string `json:"version,omitempty" yaml:"version,omitempty"`
	}

	// Directive is an opaque command: a program and its argv.
	// It is never interpreted as script text.
	Directive struct {
		Cmd     string      `json:"cmd" yaml:"cmd"`
		Args    []string    `json:"args,omitempty" yaml:"args,omitempty"`
		Runtime RuntimeMode `json:"runtime,omitempty" yaml:"runtime,omitempty"`
	}

	// TestBlock is the smoke test run against an installed package.
	TestBlock struct {
		Env        map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
		Assertions []Assertion       `json:"assertions" yaml:"assertions"`
		Runtime    RuntimeMode       `json:"runtime,omitempty" yaml:"runtime,omitempty"`
	}

	// Assertion runs one command and checks its exit code and, optionally,
	// its whitespace-trimmed stdout.
	Assertion struct {
		Cmd            string   `json:"cmd" yaml:"cmd"`
		Args           []string `json:"args,omitempty" yaml:"args,omitempty"`
		ExpectOutput   *string  `json:"expect_output,omitempty" yaml:"expect_output,omitempty"`
		ExpectExitCode int      `json:"expect_exit_code,omitempty" yaml:"expect_exit_code,omitempty"`
	}
)

// EffectiveKind returns the dependency kind, defaulting to runtime.
func (d Dependency) EffectiveKind() DependencyKind {
	if d.Kind == "" {
		return DependencyRuntime
	}
	return d.Kind
}

// IsBuild reports whether the dependency is only needed during install.
func (d Dependency) IsBuild() bool { return d.EffectiveKind() == DependencyBuild }

// MinVersion returns the declared minimum version without its ">=" or "+"
// decoration, or "" when none is declared.
func (d Dependency) MinVersion() string {
	v := strings.TrimPrefix(strings.TrimSpace(d.Version), ">=")
	return strings.TrimSuffix(v, "+")
}

// String renders the dependency the way it is declared, e.g. "coreutils (build)".
func (d Dependency) String() string {
	s := string(d.Name)
	if d.Version != "" {
		s += " " + d.Version
	}
	if d.IsBuild() {
		s += " (build)"
	}
	return s
}

// Argv returns the directive's command followed by its arguments.
func (d Directive) Argv() []string {
	return append([]string{d.Cmd}, d.Args...)
}

// Argv returns the assertion's command followed by its arguments.
func (a Assertion) Argv() []string {
	return append([]string{a.Cmd}, a.Args...)
}

// BuildDeps returns build-time dependencies in declaration order.
func (f *Formula) BuildDeps() []Dependency {
	return f.depsOfKind(DependencyBuild)
}

// RuntimeDeps returns runtime dependencies in declaration order.
func (f *Formula) RuntimeDeps() []Dependency {
	return f.depsOfKind(DependencyRuntime)
}

func (f *Formula) depsOfKind(kind DependencyKind) []Dependency {
	var out []Dependency
	for _, d := range f.DependsOn {
		if d.EffectiveKind() == kind {
			out = append(out, d)
		}
	}
	return out
}

// SourceURL returns URL with ${version} substituted.
func (f *Formula) SourceURL() (string, error) {
	u, err := Expand(f.URL, map[string]string{"version": f.Version, "name": string(f.Name)})
	if err != nil {
		return "", fmt.Errorf("expanding url of %s: %w", f.Name, err)
	}
	return u, nil
}

// Vars returns the template variables available to install directives and
// test assertions running against prefix from workdir.
func (f *Formula) Vars(prefix, workdir string) map[string]string {
	return map[string]string{
		"prefix":  prefix,
		"bin":     filepath.Join(prefix, "bin"),
		"version": f.Version,
		"name":    string(f.Name),
		"workdir": workdir,
	}
}

// VersionOrDefault returns the declared version, or "latest" for unversioned
// formulas. It is used as the prefix directory name.
func (f *Formula) VersionOrDefault() string {
	if f.Version == "" {
		return "latest"
	}
	return f.Version
}

// validate runs the Go-side checks that complement the CUE schema and
// returns one error per offending field.
func (f *Formula) validate() []fieldError {
	var errs []fieldError

	if ok, vErrs := f.Name.IsValid(); !ok {
		errs = append(errs, fieldError{"name", vErrs[0]})
	}
	if ok, vErrs := f.SHA256.IsValid(); !ok {
		errs = append(errs, fieldError{"sha256", vErrs[0]})
	}
	if strings.Contains(f.URL, "version}") && f.Version == "" {
		errs = append(errs, fieldError{"version", fmt.Errorf("url references ${version} but no version is declared")})
	}

	seen := make(map[Name]int, len(f.DependsOn))
	for i, d := range f.DependsOn {
		field := fmt.Sprintf("depends_on[%d]", i)
		if ok, vErrs := d.Name.IsValid(); !ok {
			errs = append(errs, fieldError{field + ".name", vErrs[0]})
		}
		if ok, vErrs := d.Kind.IsValid(); !ok {
			errs = append(errs, fieldError{field + ".kind", vErrs[0]})
		}
		if d.Name == f.Name {
			errs = append(errs, fieldError{field + ".name", fmt.Errorf("formula %s depends on itself", f.Name)})
		}
		if j, dup := seen[d.Name]; dup {
			errs = append(errs, fieldError{field + ".name", fmt.Errorf("%s already declared at depends_on[%d]", d.Name, j)})
		}
		seen[d.Name] = i
	}

	if f.Install != nil {
		if ok, vErrs := f.Install.Runtime.IsValid(); !ok {
			errs = append(errs, fieldError{"install.runtime", vErrs[0]})
		}
	}
	if f.Test != nil {
		if len(f.Test.Assertions) == 0 {
			errs = append(errs, fieldError{"test.assertions", fmt.Errorf("at least one assertion is required")})
		}
		if ok, vErrs := f.Test.Runtime.IsValid(); !ok {
			errs = append(errs, fieldError{"test.runtime", vErrs[0]})
		}
	}

	return errs
}

// SPDX-License-Identifier: MPL-2.0

package resolve

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/kegworks/keg/internal/dag"
	"github.com/kegworks/keg/internal/registry"
	"github.com/kegworks/keg/pkg/formula"

	"pgregory.net/rapid"
)

type (
	fakeRegistry map[formula.Name]registry.Entry
	fakeRepo     map[formula.Name]*formula.Formula
)

func (r fakeRegistry) Get(name formula.Name) (registry.Entry, bool, error) {
	e, ok := r[name]
	return e, ok, nil
}

func (r fakeRepo) Has(name formula.Name) bool {
	_, ok := r[name]
	return ok
}

func (r fakeRepo) Lookup(name formula.Name) (*formula.Formula, error) {
	f, ok := r[name]
	if !ok {
		return nil, &formula.NotFoundError{Name: name}
	}
	return f, nil
}

func newFormula(name, version string, deps ...formula.Dependency) *formula.Formula {
	return &formula.Formula{Name: formula.Name(name), Version: version, DependsOn: deps}
}

func toolDir(t *testing.T, tools ...string) string {
	t.Helper()

	dir := t.TempDir()
	for _, tool := range tools {
		if err := os.WriteFile(filepath.Join(dir, tool), []byte("#!/bin/sh\n"), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestResolve_Clojure(t *testing.T) {
	t.Parallel()

	clojure := newFormula("clojure", "1.10.1.492",
		formula.Dependency{Name: "java", Kind: formula.DependencyRuntime, Version: "1.8+"},
		formula.Dependency{Name: "rlwrap", Kind: formula.DependencyRuntime},
		formula.Dependency{Name: "coreutils", Kind: formula.DependencyBuild},
	)
	repo := fakeRepo{"coreutils": newFormula("coreutils", "9.5")}
	reg := fakeRegistry{"java": {Name: "java", Version: "17.0.2", Prefix: "/cellar/java/17.0.2"}}
	tools := toolDir(t, "rlwrap")

	plan, err := New(reg, repo, WithToolPath(tools)).Resolve(context.Background(), clojure)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if got := plan.Order(); !slices.Equal(got, []formula.Name{"coreutils", "clojure"}) {
		t.Errorf("Order() = %v", got)
	}
	step, ok := plan.Step("clojure")
	if !ok || !step.Root || !slices.Equal(step.Needs, []formula.Name{"coreutils"}) {
		t.Errorf("Step(clojure) = %+v, %v", step, ok)
	}
	if s, _ := plan.Step("coreutils"); s.Root {
		t.Errorf("coreutils should not be a root")
	}

	sat := plan.SatisfiedFor("clojure")
	if len(sat) != 2 {
		t.Fatalf("SatisfiedFor(clojure) = %+v", sat)
	}
	if sat[0].Dependency.Name != "java" || sat[0].Source != SourceRegistry || sat[0].Version != "17.0.2" {
		t.Errorf("java satisfied as %+v", sat[0])
	}
	if sat[1].Dependency.Name != "rlwrap" || sat[1].Source != SourceToolPath || sat[1].Location != filepath.Join(tools, "rlwrap") {
		t.Errorf("rlwrap satisfied as %+v", sat[1])
	}
}

func TestResolve_Unresolved(t *testing.T) {
	t.Parallel()

	root := newFormula("clojure", "1", formula.Dependency{Name: "rlwrap"})
	_, err := New(fakeRegistry{}, fakeRepo{}, WithToolPath(t.TempDir())).Resolve(context.Background(), root)

	if !errors.Is(err, ErrUnresolvedDependency) {
		t.Fatalf("Resolve() error = %v, want ErrUnresolvedDependency", err)
	}
	var ue *UnresolvedDependencyError
	if !errors.As(err, &ue) {
		t.Fatalf("expected *UnresolvedDependencyError, got %T", err)
	}
	if ue.Formula != "clojure" || ue.Dependency.Name != "rlwrap" {
		t.Errorf("error = %+v", ue)
	}
}

func TestResolve_InstalledTooOld(t *testing.T) {
	t.Parallel()

	root := newFormula("clojure", "1", formula.Dependency{Name: "java", Version: "1.8+"})
	reg := fakeRegistry{"java": {Name: "java", Version: "1.7.0"}}

	_, err := New(reg, fakeRepo{}, WithToolPath("")).Resolve(context.Background(), root)
	var ue *UnresolvedDependencyError
	if !errors.As(err, &ue) {
		t.Fatalf("Resolve() error = %v, want *UnresolvedDependencyError", err)
	}
	if !strings.Contains(ue.Reason, "1.7.0 is older than 1.8") {
		t.Errorf("Reason = %q", ue.Reason)
	}
}

func TestResolve_TooOldFallsBackToFormula(t *testing.T) {
	t.Parallel()

	root := newFormula("clojure", "1", formula.Dependency{Name: "java", Version: ">=11"})
	reg := fakeRegistry{"java": {Name: "java", Version: "1.8.0"}}
	repo := fakeRepo{"java": newFormula("java", "21.0.1")}

	plan, err := New(reg, repo, WithToolPath("")).Resolve(context.Background(), root)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got := plan.Order(); !slices.Equal(got, []formula.Name{"java", "clojure"}) {
		t.Errorf("Order() = %v", got)
	}
}

func TestResolve_Cycle(t *testing.T) {
	t.Parallel()

	repo := fakeRepo{
		"b": newFormula("b", "", formula.Dependency{Name: "c"}),
		"c": newFormula("c", "", formula.Dependency{Name: "a"}),
	}
	a := newFormula("a", "", formula.Dependency{Name: "b"})
	repo["a"] = a

	_, err := New(nil, repo, WithToolPath("")).Resolve(context.Background(), a)
	if !IsCycle(err) {
		t.Fatalf("Resolve() error = %v, want cycle", err)
	}
	if !errors.Is(err, dag.ErrCycle) {
		t.Errorf("errors.Is(err, dag.ErrCycle) = false")
	}
}

func TestResolve_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(nil, fakeRepo{}).Resolve(ctx, newFormula("a", ""))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Resolve() error = %v, want context.Canceled", err)
	}
}

func TestResolve_SharedDependencyPlannedOnce(t *testing.T) {
	t.Parallel()

	repo := fakeRepo{"openssl": newFormula("openssl", "3.3.0")}
	curl := newFormula("curl", "8", formula.Dependency{Name: "openssl"})
	wget := newFormula("wget", "1", formula.Dependency{Name: "openssl", Kind: formula.DependencyBuild})

	plan, err := New(nil, repo, WithToolPath("")).Resolve(context.Background(), curl, wget, curl)
	if err != nil {
		t.Fatal(err)
	}
	if got := plan.Order(); !slices.Equal(got, []formula.Name{"openssl", "curl", "wget"}) {
		t.Errorf("Order() = %v", got)
	}
	if !slices.Equal(plan.Roots, []formula.Name{"curl", "wget"}) {
		t.Errorf("Roots = %v", plan.Roots)
	}
}

func TestSatisfiesMinimum(t *testing.T) {
	t.Parallel()

	tests := []struct {
		have, minimum  string
		ok, comparable bool
	}{
		{"17.0.2", "1.8", true, true},
		{"1.8.0", "1.8", true, true},
		{"1.7.9", "1.8", false, true},
		{"1.10.1.492", "1.9", true, true},
		{"v2.0.0", "2", true, true},
		{"17.0.2+8", "17", true, true},
		{"latest", "1.8", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.have+">="+tt.minimum, func(t *testing.T) {
			t.Parallel()

			ok, comparable := satisfiesMinimum(tt.have, tt.minimum)
			if ok != tt.ok || comparable != tt.comparable {
				t.Errorf("satisfiesMinimum(%q, %q) = %v, %v, want %v, %v", tt.have, tt.minimum, ok, comparable, tt.ok, tt.comparable)
			}
		})
	}
}

// For any acyclic dependency graph, every planned formula comes after all of
// the formulas it depends on.
func TestResolve_OrderProperty(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(rt, "formulas")
		repo := fakeRepo{}
		var all []*formula.Formula
		for i := range n {
			f := newFormula(fmt.Sprintf("f%d", i), "")
			// Edges only point at lower indexes, so the graph is acyclic.
			if i > 0 {
				deps := rapid.SliceOfDistinct(rapid.IntRange(0, i-1), rapid.ID[int]).Draw(rt, fmt.Sprintf("deps%d", i))
				for _, d := range deps {
					f.DependsOn = append(f.DependsOn, formula.Dependency{Name: formula.Name(fmt.Sprintf("f%d", d))})
				}
			}
			repo[f.Name] = f
			all = append(all, f)
		}
		roots := rapid.SliceOfNDistinct(rapid.SampledFrom(all), 1, n, func(f *formula.Formula) formula.Name { return f.Name }).Draw(rt, "roots")

		plan, err := New(nil, repo, WithToolPath("")).Resolve(context.Background(), roots...)
		if err != nil {
			rt.Fatalf("Resolve() error = %v", err)
		}

		pos := make(map[formula.Name]int)
		for i, name := range plan.Order() {
			pos[name] = i
		}
		for _, step := range plan.Steps {
			for _, dep := range step.Formula.DependsOn {
				dp, ok := pos[dep.Name]
				if !ok {
					rt.Fatalf("dependency %s of %s missing from plan", dep.Name, step.Formula.Name)
				}
				if dp >= pos[step.Formula.Name] {
					rt.Fatalf("%s planned after its dependent %s: %v", dep.Name, step.Formula.Name, plan.Order())
				}
			}
		}
	})
}

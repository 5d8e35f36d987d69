// SPDX-License-Identifier: MPL-2.0

package resolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kegworks/keg/internal/dag"
	"github.com/kegworks/keg/internal/registry"
	"github.com/kegworks/keg/pkg/formula"
)

const (
	// SourceRegistry marks a dependency satisfied by an installed package.
	SourceRegistry Source = "registry"
	// SourceToolPath marks a dependency satisfied by an executable on the tool path.
	SourceToolPath Source = "path"
	// SourceFormula marks a dependency that will be installed from a formula.
	SourceFormula Source = "formula"
)

type (
	// Source says where a dependency was located.
	Source string

	// Installed is the registry view the resolver consults.
	Installed interface {
		Get(name formula.Name) (registry.Entry, bool, error)
	}

	// Formulas is the formula repository view the resolver consults.
	Formulas interface {
		Has(name formula.Name) bool
		Lookup(name formula.Name) (*formula.Formula, error)
	}

	// Resolver turns root formulas into an installation Plan.
	Resolver struct {
		installed Installed
		formulas  Formulas
		toolPath  []string
	}

	// Option configures a Resolver.
	Option func(*Resolver)

	// Step is one formula the plan installs.
	Step struct {
		Formula *formula.Formula
		// Root is true for formulas requested by the caller.
		Root bool
		// Needs lists the planned formulas that must finish installing first.
		Needs []formula.Name
	}

	// Satisfied records a dependency that is already available.
	Satisfied struct {
		Dependent  formula.Name
		Dependency formula.Dependency
		Source     Source
		// Location is the installed prefix or the executable path.
		Location string
		// Version is the installed version; empty for tool path hits.
		Version string
	}

	// Plan is the resolver's output. Steps are topologically ordered: every
	// formula appears after all of the planned formulas it depends on.
	Plan struct {
		Roots     []formula.Name
		Steps     []Step
		Satisfied []Satisfied
		// Graph holds an edge dep -> dependent for every planned dependency.
		Graph *dag.Graph
	}

	planner struct {
		ctx       context.Context
		r         *Resolver
		graph     *dag.Graph
		formulas  map[formula.Name]*formula.Formula
		satisfied []Satisfied
	}
)

// WithToolPath sets the PATH-like list searched for build tools. The default
// is the process PATH.
func WithToolPath(path string) Option {
	return func(r *Resolver) {
		r.toolPath = filepath.SplitList(path)
	}
}

// New creates a Resolver. installed may be nil when no registry exists yet.
func New(installed Installed, formulas Formulas, opts ...Option) *Resolver {
	r := &Resolver{
		installed: installed,
		formulas:  formulas,
		toolPath:  filepath.SplitList(os.Getenv("PATH")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve walks the dependencies of roots. Each dependency is located, in
// order, in the registry, on the tool path, then in the formula repository;
// repository hits are added to the plan and walked in turn. A dependency
// found nowhere yields *UnresolvedDependencyError and a dependency cycle
// yields *dag.CycleError.
func (r *Resolver) Resolve(ctx context.Context, roots ...*formula.Formula) (*Plan, error) {
	p := &planner{
		ctx:      ctx,
		r:        r,
		graph:    dag.New(),
		formulas: make(map[formula.Name]*formula.Formula),
	}

	rootSet := make(map[formula.Name]bool, len(roots))
	names := make([]formula.Name, 0, len(roots))
	for _, f := range roots {
		if rootSet[f.Name] {
			continue
		}
		rootSet[f.Name] = true
		names = append(names, f.Name)
		if err := p.visit(f); err != nil {
			return nil, err
		}
	}

	order, err := p.graph.TopologicalSort()
	if err != nil {
		return nil, err
	}

	plan := &Plan{Roots: names, Satisfied: p.satisfied, Graph: p.graph}
	for _, n := range order {
		name := formula.Name(n)
		var needs []formula.Name
		for _, pred := range p.graph.Predecessors(n) {
			needs = append(needs, formula.Name(pred))
		}
		plan.Steps = append(plan.Steps, Step{Formula: p.formulas[name], Root: rootSet[name], Needs: needs})
	}
	return plan, nil
}

func (p *planner) visit(f *formula.Formula) error {
	if err := p.ctx.Err(); err != nil {
		return err
	}
	if _, done := p.formulas[f.Name]; done {
		return nil
	}
	p.formulas[f.Name] = f
	p.graph.AddNode(string(f.Name))

	for _, dep := range f.DependsOn {
		next, err := p.locate(f.Name, dep)
		if err != nil {
			return err
		}
		if next == nil {
			continue
		}
		p.graph.AddEdge(string(next.Name), string(f.Name))
		if err := p.visit(next); err != nil {
			return err
		}
	}
	return nil
}

// locate returns the formula to schedule for dep, or nil when dep is already
// satisfied.
func (p *planner) locate(dependent formula.Name, dep formula.Dependency) (*formula.Formula, error) {
	var reasons []string
	minimum := dep.MinVersion()

	// Already planned through another path.
	if planned, ok := p.formulas[dep.Name]; ok {
		if reason := checkFormulaVersion(planned, minimum); reason != "" {
			return nil, &UnresolvedDependencyError{Formula: dependent, Dependency: dep, Reason: reason}
		}
		return planned, nil
	}

	if p.r.installed != nil {
		entry, ok, err := p.r.installed.Get(dep.Name)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", dep.Name, err)
		}
		if ok {
			reason := checkInstalledVersion(entry, minimum)
			if reason == "" {
				p.satisfy(dependent, dep, SourceRegistry, entry.Prefix, entry.Version)
				return nil, nil
			}
			reasons = append(reasons, reason)
		}
	}

	if exe, ok := p.r.lookTool(string(dep.Name)); ok {
		if minimum != "" {
			slog.Debug("tool path dependency version not checked", "dependency", dep.Name, "minimum", minimum, "path", exe)
		}
		p.satisfy(dependent, dep, SourceToolPath, exe, "")
		return nil, nil
	}

	if p.r.formulas != nil && p.r.formulas.Has(dep.Name) {
		f, err := p.r.formulas.Lookup(dep.Name)
		if err != nil {
			return nil, err
		}
		if reason := checkFormulaVersion(f, minimum); reason != "" {
			return nil, &UnresolvedDependencyError{
				Formula:    dependent,
				Dependency: dep,
				Reason:     strings.Join(append(reasons, reason), "; "),
			}
		}
		slog.Debug("dependency scheduled from formula", "dependent", dependent, "dependency", dep.Name)
		return f, nil
	}

	reasons = append(reasons, "not installed, not on the tool path and no formula available")
	return nil, &UnresolvedDependencyError{Formula: dependent, Dependency: dep, Reason: strings.Join(reasons, "; ")}
}

func (p *planner) satisfy(dependent formula.Name, dep formula.Dependency, src Source, location, version string) {
	p.satisfied = append(p.satisfied, Satisfied{
		Dependent:  dependent,
		Dependency: dep,
		Source:     src,
		Location:   location,
		Version:    version,
	})
}

func checkInstalledVersion(e registry.Entry, minimum string) string {
	if minimum == "" {
		return ""
	}
	ok, comparable := satisfiesMinimum(e.Version, minimum)
	if !comparable {
		slog.Warn("cannot compare installed version", "package", e.Name, "installed", e.Version, "minimum", minimum)
		return ""
	}
	if !ok {
		return fmt.Sprintf("installed version %s is older than %s", e.Version, minimum)
	}
	return ""
}

func checkFormulaVersion(f *formula.Formula, minimum string) string {
	if minimum == "" || f.Version == "" {
		return ""
	}
	ok, comparable := satisfiesMinimum(f.Version, minimum)
	if comparable && !ok {
		return fmt.Sprintf("formula version %s is older than %s", f.Version, minimum)
	}
	return ""
}

// lookTool searches the tool path for an executable regular file.
func (r *Resolver) lookTool(name string) (string, bool) {
	for _, dir := range r.toolPath {
		if dir == "" {
			continue
		}
		p := filepath.Join(dir, name)
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() || info.Mode().Perm()&0o111 == 0 {
			continue
		}
		return p, true
	}
	return "", false
}

// Order returns the planned formula names in installation order.
func (p *Plan) Order() []formula.Name {
	out := make([]formula.Name, len(p.Steps))
	for i, s := range p.Steps {
		out[i] = s.Formula.Name
	}
	return out
}

// Step returns the planned step for name.
func (p *Plan) Step(name formula.Name) (Step, bool) {
	for _, s := range p.Steps {
		if s.Formula.Name == name {
			return s, true
		}
	}
	return Step{}, false
}

// SatisfiedFor returns the satisfied dependencies declared by name.
func (p *Plan) SatisfiedFor(name formula.Name) []Satisfied {
	var out []Satisfied
	for _, s := range p.Satisfied {
		if s.Dependent == name {
			out = append(out, s)
		}
	}
	return out
}

// IsCycle reports whether err is a dependency cycle.
func IsCycle(err error) bool {
	var cycleErr *dag.CycleError
	return errors.As(err, &cycleErr)
}

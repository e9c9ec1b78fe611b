package service

import (
	"strings"

	"labelcomposer/internal/domain"
)

// ClosureReport describes what a scheme's labels can derive
type ClosureReport struct {
	Scheme          string     `json:"scheme"`
	Atoms           []string   `json:"atoms"`
	Labels          []string   `json:"labels"`
	ComputableAtoms []string   `json:"computable_atoms"`
	ComputableSets  [][]string `json:"computable_sets"`
	Unresolved      []string   `json:"unresolved"`
	Complete        bool       `json:"complete"`
}

// Comparison reports whether one scheme can be derived from another
type Comparison struct {
	Scheme       string   `json:"scheme"`
	Other        string   `json:"other"`
	SameUniverse bool     `json:"same_universe"`
	Computable   bool     `json:"computable"`
	Reverse      bool     `json:"reverse"`
	Missing      []string `json:"missing,omitempty"`
}

// ImportResult represents the result of an import operation
type ImportResult struct {
	Scheme  string `json:"scheme"`
	Created bool   `json:"created"`
	Atoms   int    `json:"atoms"`
	Labels  int    `json:"labels"`
}

// refs renders atoms as references, qualified by index only where names repeat
type refs struct {
	shared map[string]bool
}

func newRefs(universe domain.AtomSet) refs {
	seen := make(map[string]bool, universe.Len())
	shared := make(map[string]bool)
	for _, a := range universe.Members() {
		if seen[a.Name()] {
			shared[a.Name()] = true
		}
		seen[a.Name()] = true
	}
	return refs{shared: shared}
}

func (r refs) atom(a domain.AtomicLabel) string {
	if r.shared[a.Name()] {
		return a.Ref()
	}
	return a.Name()
}

func (r refs) set(s domain.AtomSet) []string {
	out := make([]string, 0, s.Len())
	for _, a := range s.Members() {
		out = append(out, r.atom(a))
	}
	return out
}

func labelDisplay(r refs, l *domain.Label) string {
	if name, ok := l.Name(); ok {
		return name
	}
	return "{" + strings.Join(r.set(l.Atoms()), ", ") + "}"
}

// NewClosureReport summarizes the closure of c
func NewClosureReport(name string, c *domain.LabelCollection) *ClosureReport {
	universe := c.Atoms()
	r := newRefs(universe)
	computable := c.ComputableAtoms()

	report := &ClosureReport{
		Scheme:          name,
		Atoms:           r.set(universe),
		Labels:          make([]string, 0),
		ComputableAtoms: r.set(computable),
		ComputableSets:  make([][]string, 0),
		Unresolved:      r.set(universe.Difference(computable)),
		Complete:        c.CanComputeAtoms(),
	}
	for _, l := range c.DerivedLabels() {
		report.Labels = append(report.Labels, labelDisplay(r, l))
	}
	for _, s := range c.ComputableSets() {
		report.ComputableSets = append(report.ComputableSets, r.set(s))
	}
	return report
}

// CompareCollections reports whether every label of b can be derived from a
// and the other way around. Missing lists b's labels that a cannot derive
// when both share a universe.
func CompareCollections(name, other string, a, b *domain.LabelCollection) *Comparison {
	cmp := &Comparison{
		Scheme:       name,
		Other:        other,
		SameUniverse: a.Atoms().Equal(b.Atoms()),
		Computable:   a.CanComputeCollection(b),
		Reverse:      b.CanComputeCollection(a),
	}
	if cmp.SameUniverse && !cmp.Computable {
		r := newRefs(b.Atoms())
		for _, l := range b.DerivedLabels() {
			if !a.CanCompute(l) {
				cmp.Missing = append(cmp.Missing, labelDisplay(r, l))
			}
		}
	}
	return cmp
}

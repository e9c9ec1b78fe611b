package domain

import (
	"fmt"
	"log/slog"
	"slices"
)

// LabelCollection tracks which atom combinations of a universe can be derived,
// by union, intersection and difference, from the labels registered so far.
//
// Every registered label contributes two facts: its own atom set and its
// complement within the universe. Facts are propagated incrementally; see
// closure.update for the bounded expansion this uses.
//
// A LabelCollection is not safe for concurrent mutation. Queries may run
// concurrently with each other but not with AddAtom or AddLabel.
type LabelCollection struct {
	universe   AtomSet
	labels     []*Label
	registered map[string]*Label
	closure    *closure

	warnThreshold int
	onGrowth      func(GrowthWarning)
	logger        *slog.Logger
}

// NewLabelCollection creates a collection over atoms and registers labels in
// order. It fails if any label references an atom outside atoms.
func NewLabelCollection(atoms []AtomicLabel, labels []*Label, opts ...Option) (*LabelCollection, error) {
	c := &LabelCollection{
		registered:    make(map[string]*Label),
		warnThreshold: DefaultWarnThreshold,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.closure = newClosure(c.warnThreshold, c.growthSink())

	for _, atom := range atoms {
		if err := c.AddAtom(atom); err != nil {
			return nil, err
		}
	}
	for _, l := range labels {
		if err := c.AddLabel(l); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// EmptyLike creates a collection over a copy of prototype's universe with no
// labels. Later changes to prototype do not affect the result.
func EmptyLike(prototype *LabelCollection, opts ...Option) *LabelCollection {
	c := &LabelCollection{
		universe:      prototype.universe,
		registered:    make(map[string]*Label),
		warnThreshold: prototype.warnThreshold,
		onGrowth:      prototype.onGrowth,
		logger:        prototype.logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.closure = newClosure(c.warnThreshold, c.growthSink())
	return c
}

func (c *LabelCollection) growthSink() func(GrowthWarning) {
	if c.onGrowth != nil {
		return c.onGrowth
	}
	return c.logGrowth
}

// AddAtom extends the universe. When labels are already registered the whole
// closure is recomputed, since every complement changes meaning. The new
// closure replaces the old one only after it was built completely.
func (c *LabelCollection) AddAtom(atom AtomicLabel) error {
	if c.universe.Contains(atom) {
		return nil
	}
	universe := c.universe.With(atom)
	if len(c.labels) == 0 {
		c.universe = universe
		return nil
	}
	return c.rebuild(universe)
}

func (c *LabelCollection) rebuild(universe AtomSet) error {
	next := newClosure(rebuildWarnThreshold, c.growthSink())
	for _, l := range c.labels {
		if unknown := l.included.Difference(universe); !unknown.IsEmpty() {
			return &UnknownAtomsError{Label: l, Atoms: unknown}
		}
		next.update(l.included)
		next.update(universe.Difference(l.included))
	}
	c.universe = universe
	c.closure = next
	return nil
}

// AddLabel registers label. Labels whose atom set is already registered are
// ignored, so re-registration never changes the closure.
func (c *LabelCollection) AddLabel(label *Label) error {
	if unknown := label.included.Difference(c.universe); !unknown.IsEmpty() {
		return &UnknownAtomsError{Label: label, Atoms: unknown}
	}
	key := label.included.Key()
	if _, ok := c.registered[key]; ok {
		return nil
	}
	c.registered[key] = label
	c.labels = append(c.labels, label)

	// The universe itself is derivable without any operation, so the
	// complement of a derivable set is derivable too.
	c.closure.update(label.included)
	c.closure.update(c.universe.Difference(label.included))
	return nil
}

// CanCompute reports whether target can be derived from the registered
// labels. A remainder that is not fully resolved into computable atoms must
// match a known computable set exactly; being a subset of one is not enough.
func (c *LabelCollection) CanCompute(target AtomSource) bool {
	return c.closure.canCompute(target.Atoms())
}

// CanComputeCollection reports whether every label of other can be derived
// from c. Both collections must share the same universe.
func (c *LabelCollection) CanComputeCollection(other *LabelCollection) bool {
	if !c.universe.Equal(other.universe) {
		return false
	}
	for _, l := range other.labels {
		if !c.CanCompute(l) {
			return false
		}
	}
	return true
}

// CanComputeAtoms reports whether every atom of the universe is individually
// computable.
func (c *LabelCollection) CanComputeAtoms() bool {
	for _, atom := range c.universe.members {
		if _, ok := c.closure.atoms[atom]; !ok {
			return false
		}
	}
	return true
}

// ContainsMatch reports whether a registered label covers exactly the atoms
// of label. This is a registry lookup and ignores the closure.
func (c *LabelCollection) ContainsMatch(label AtomSource) bool {
	_, ok := c.registered[label.Atoms().Key()]
	return ok
}

// Atoms returns the universe
func (c *LabelCollection) Atoms() AtomSet {
	return c.universe
}

// ComputableAtoms returns the atoms that are individually derivable
func (c *LabelCollection) ComputableAtoms() AtomSet {
	return c.closure.computableAtoms()
}

// ComputableSets returns the derivable multi-atom sets not yet resolved into
// computable atoms, ordered by key.
func (c *LabelCollection) ComputableSets() []AtomSet {
	return c.closure.sortedSets()
}

// DerivedLabels returns the registered labels in registration order
func (c *LabelCollection) DerivedLabels() []*Label {
	return slices.Clone(c.labels)
}

// Names returns the sorted, distinct names of the registered labels
func (c *LabelCollection) Names() []string {
	names := make([]string, 0, len(c.labels))
	for _, l := range c.labels {
		if name, ok := l.Name(); ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// LabelByName returns the first registered label with the given name.
// Duplicate names are permitted.
func (c *LabelCollection) LabelByName(name string) (*Label, error) {
	normalized, err := NormalizeName(name)
	if err == nil {
		for _, l := range c.labels {
			if n, ok := l.Name(); ok && n == normalized {
				return l, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrLabelNotFound, name)
}

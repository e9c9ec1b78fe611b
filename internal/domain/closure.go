package domain

import (
	"maps"
	"slices"
)

// Computable returns every atom set obtainable from a and b with exactly one
// boolean operation: a, b, a∪b, a∖b, b∖a, a∩b and the symmetric difference.
// Duplicates are collapsed, so the result has at most seven entries.
func Computable(a, b AtomSet) []AtomSet {
	union := a.Union(b)
	inter := a.Intersection(b)
	var out setList
	out.add(a)
	out.add(b)
	out.add(union)
	out.add(a.Difference(b))
	out.add(b.Difference(a))
	out.add(inter)
	out.add(union.Difference(inter))
	return out.items
}

// setList is an insertion-ordered set of AtomSets
type setList struct {
	seen  map[string]struct{}
	items []AtomSet
}

func (l *setList) add(s AtomSet) {
	if l.seen == nil {
		l.seen = make(map[string]struct{})
	}
	if _, ok := l.seen[s.Key()]; ok {
		return
	}
	l.seen[s.Key()] = struct{}{}
	l.items = append(l.items, s)
}

// closure holds the derived state of a LabelCollection: atoms known to be
// isolable and multi-atom sets known to be derivable but not yet split.
// No set in sets contains a member of atoms.
type closure struct {
	atoms    map[AtomicLabel]struct{}
	sets     map[string]AtomSet
	warnSize int
	onGrowth func(GrowthWarning)
}

func newClosure(warnSize int, onGrowth func(GrowthWarning)) *closure {
	return &closure{
		atoms:    make(map[AtomicLabel]struct{}),
		sets:     make(map[string]AtomSet),
		warnSize: warnSize,
		onGrowth: onGrowth,
	}
}

// reduce strips already computable atoms from s
func (c *closure) reduce(s AtomSet) AtomSet {
	keep := make([]AtomicLabel, 0, s.Len())
	for _, m := range s.members {
		if _, ok := c.atoms[m]; !ok {
			keep = append(keep, m)
		}
	}
	if len(keep) == s.Len() {
		return s
	}
	return newSortedAtomSet(keep)
}

// update incorporates one derivable atom set. Combinations are expanded two
// levels deep: the remainder against every known set, then pairwise among the
// sets that first step produced. This is not a fixed point. All multi-atom
// candidates are inserted before any single-atom candidate is promoted.
func (c *closure) update(added AtomSet) {
	rem := c.reduce(added)
	switch rem.Len() {
	case 0:
		return
	case 1:
		c.promote(rem.only())
		return
	}

	var candidates setList
	candidates.add(rem)
	for _, s := range c.sortedSets() {
		for _, combo := range Computable(rem, s) {
			candidates.add(combo)
		}
	}

	var fresh []AtomSet
	for _, s := range candidates.items {
		if _, known := c.sets[s.Key()]; !known {
			fresh = append(fresh, s)
		}
	}
	for i := 0; i < len(fresh); i++ {
		for j := i + 1; j < len(fresh); j++ {
			for _, combo := range Computable(fresh[i], fresh[j]) {
				candidates.add(combo)
			}
		}
	}

	slices.SortStableFunc(candidates.items, func(a, b AtomSet) int {
		return b.Len() - a.Len()
	})
	for _, s := range candidates.items {
		c.addSet(s)
	}
}

// promote marks atom as computable and strips it from every known set,
// recursively promoting any set that collapses to a single atom.
func (c *closure) promote(atom AtomicLabel) {
	if _, ok := c.atoms[atom]; ok {
		return
	}
	c.atoms[atom] = struct{}{}

	var collapsed []AtomicLabel
	next := make(map[string]AtomSet, len(c.sets))
	for _, s := range c.sets {
		reduced := s.Without(atom)
		switch reduced.Len() {
		case 0:
		case 1:
			collapsed = append(collapsed, reduced.only())
		default:
			next[reduced.Key()] = reduced
		}
	}
	c.sets = next

	for _, a := range collapsed {
		c.promote(a)
	}
}

// addSet folds one candidate set into the closure
func (c *closure) addSet(candidate AtomSet) {
	rem := c.reduce(candidate)
	switch rem.Len() {
	case 0:
		return
	case 1:
		c.promote(rem.only())
		return
	}
	if _, ok := c.sets[rem.Key()]; ok {
		return
	}
	c.sets[rem.Key()] = rem
	if len(c.sets) >= c.warnSize {
		warning := GrowthWarning{Sets: len(c.sets), Threshold: c.warnSize}
		c.warnSize *= 10
		warning.NextThreshold = c.warnSize
		if c.onGrowth != nil {
			c.onGrowth(warning)
		}
	}
}

// canCompute reports whether target is derivable: either fully made of
// computable atoms, or its remainder is exactly one of the known sets.
func (c *closure) canCompute(target AtomSet) bool {
	rem := c.reduce(target)
	if rem.IsEmpty() {
		return true
	}
	_, ok := c.sets[rem.Key()]
	return ok
}

func (c *closure) computableAtoms() AtomSet {
	return NewAtomSet(slices.Collect(maps.Keys(c.atoms))...)
}

func (c *closure) sortedSets() []AtomSet {
	keys := slices.Sorted(maps.Keys(c.sets))
	out := make([]AtomSet, len(keys))
	for i, k := range keys {
		out[i] = c.sets[k]
	}
	return out
}

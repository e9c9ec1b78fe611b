package domain

import (
	"slices"
	"strings"
)

// AtomSource is anything that denotes a set of atoms: a single AtomicLabel,
// an AtomSet, or a *Label.
type AtomSource interface {
	Atoms() AtomSet
}

// AtomSet is an immutable set of atomic labels. Members are kept sorted and
// the structural key is computed once, so two sets with the same members
// always share the same Key.
type AtomSet struct {
	members []AtomicLabel
	key     string
}

// NewAtomSet builds a set from atoms; duplicates collapse
func NewAtomSet(atoms ...AtomicLabel) AtomSet {
	if len(atoms) == 0 {
		return AtomSet{}
	}
	members := slices.Clone(atoms)
	slices.SortFunc(members, AtomicLabel.compare)
	members = slices.Compact(members)
	return newSortedAtomSet(members)
}

// newSortedAtomSet wraps an already sorted, duplicate-free slice
func newSortedAtomSet(members []AtomicLabel) AtomSet {
	if len(members) == 0 {
		return AtomSet{}
	}
	var sb strings.Builder
	for _, m := range members {
		m.writeKey(&sb)
	}
	return AtomSet{members: members, key: sb.String()}
}

// Atoms implements AtomSource
func (s AtomSet) Atoms() AtomSet {
	return s
}

// Key returns the structural key of the set. The empty set has key "".
func (s AtomSet) Key() string {
	return s.key
}

// Len returns the number of atoms in the set
func (s AtomSet) Len() int {
	return len(s.members)
}

// IsEmpty reports whether the set has no members
func (s AtomSet) IsEmpty() bool {
	return len(s.members) == 0
}

// Members returns the atoms in canonical order
func (s AtomSet) Members() []AtomicLabel {
	return slices.Clone(s.members)
}

// Contains reports whether atom is a member
func (s AtomSet) Contains(atom AtomicLabel) bool {
	_, found := slices.BinarySearchFunc(s.members, atom, AtomicLabel.compare)
	return found
}

// Equal reports whether both sets have the same members
func (s AtomSet) Equal(other AtomSource) bool {
	return s.key == other.Atoms().key
}

// SubsetOf reports whether every member of s is in other
func (s AtomSet) SubsetOf(other AtomSource) bool {
	return s.Difference(other).IsEmpty()
}

// Union returns s ∪ other
func (s AtomSet) Union(other AtomSource) AtomSet {
	o := other.Atoms().members
	out := make([]AtomicLabel, 0, len(s.members)+len(o))
	i, j := 0, 0
	for i < len(s.members) && j < len(o) {
		switch s.members[i].compare(o[j]) {
		case -1:
			out = append(out, s.members[i])
			i++
		case 1:
			out = append(out, o[j])
			j++
		default:
			out = append(out, s.members[i])
			i++
			j++
		}
	}
	out = append(out, s.members[i:]...)
	out = append(out, o[j:]...)
	return newSortedAtomSet(out)
}

// Difference returns s ∖ other
func (s AtomSet) Difference(other AtomSource) AtomSet {
	o := other.Atoms().members
	out := make([]AtomicLabel, 0, len(s.members))
	j := 0
	for _, m := range s.members {
		for j < len(o) && o[j].less(m) {
			j++
		}
		if j < len(o) && o[j] == m {
			continue
		}
		out = append(out, m)
	}
	return newSortedAtomSet(out)
}

// Intersection returns s ∩ other
func (s AtomSet) Intersection(other AtomSource) AtomSet {
	o := other.Atoms().members
	var out []AtomicLabel
	i, j := 0, 0
	for i < len(s.members) && j < len(o) {
		switch s.members[i].compare(o[j]) {
		case -1:
			i++
		case 1:
			j++
		default:
			out = append(out, s.members[i])
			i++
			j++
		}
	}
	return newSortedAtomSet(out)
}

// SymmetricDifference returns (s ∪ other) ∖ (s ∩ other)
func (s AtomSet) SymmetricDifference(other AtomSource) AtomSet {
	return s.Union(other).Difference(s.Intersection(other))
}

// Without returns s with atom removed
func (s AtomSet) Without(atom AtomicLabel) AtomSet {
	idx, found := slices.BinarySearchFunc(s.members, atom, AtomicLabel.compare)
	if !found {
		return s
	}
	out := make([]AtomicLabel, 0, len(s.members)-1)
	out = append(out, s.members[:idx]...)
	out = append(out, s.members[idx+1:]...)
	return newSortedAtomSet(out)
}

// With returns s with atom added
func (s AtomSet) With(atom AtomicLabel) AtomSet {
	if s.Contains(atom) {
		return s
	}
	return s.Union(atom)
}

// only returns the single member of a one-element set
func (s AtomSet) only() AtomicLabel {
	return s.members[0]
}

func (s AtomSet) String() string {
	parts := make([]string, len(s.members))
	for i, m := range s.members {
		parts[i] = m.String()
	}
	return "AtomSet{" + strings.Join(parts, ", ") + "}"
}

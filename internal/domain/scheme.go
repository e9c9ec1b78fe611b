package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Scheme is the serializable definition of a label collection: a named
// universe of atoms plus the composite labels registered over it.
type Scheme struct {
	Name        string
	Description string
	Atoms       []AtomicLabel
	Labels      []*Label
}

// Build constructs the LabelCollection described by the scheme
func (s *Scheme) Build(opts ...Option) (*LabelCollection, error) {
	c, err := NewLabelCollection(s.Atoms, s.Labels, opts...)
	if err != nil {
		return nil, fmt.Errorf("scheme %s: %w", s.Name, err)
	}
	return c, nil
}

// SchemeFromCollection captures the universe and registered labels of c
func SchemeFromCollection(name, description string, c *LabelCollection) *Scheme {
	return &Scheme{
		Name:        name,
		Description: description,
		Atoms:       c.Atoms().Members(),
		Labels:      c.DerivedLabels(),
	}
}

// AtomResolver maps atom references ("name" or "name#index") to the atoms of
// a universe. A bare name is ambiguous when several atoms share it.
type AtomResolver struct {
	byRef  map[string]AtomicLabel
	byName map[string][]AtomicLabel
}

// NewAtomResolver indexes atoms for reference lookup
func NewAtomResolver(atoms AtomSource) *AtomResolver {
	r := &AtomResolver{
		byRef:  make(map[string]AtomicLabel),
		byName: make(map[string][]AtomicLabel),
	}
	for _, a := range atoms.Atoms().members {
		r.byRef[a.Ref()] = a
		r.byName[a.name] = append(r.byName[a.name], a)
	}
	return r
}

// Resolve looks up a single atom reference
func (r *AtomResolver) Resolve(ref string) (AtomicLabel, error) {
	if name, idx, ok := strings.Cut(ref, "#"); ok {
		if n, err := strconv.Atoi(idx); err == nil {
			if normalized, err := NormalizeName(name); err == nil {
				if a, ok := r.byRef[normalized+"#"+strconv.Itoa(n)]; ok {
					return a, nil
				}
			}
		}
	}
	normalized, err := NormalizeName(ref)
	if err != nil {
		return AtomicLabel{}, err
	}
	switch candidates := r.byName[normalized]; len(candidates) {
	case 0:
		return AtomicLabel{}, fmt.Errorf("%w: %q", ErrUnknownAtoms, ref)
	case 1:
		return candidates[0], nil
	default:
		return AtomicLabel{}, fmt.Errorf("%w %q, use name#index", ErrAmbiguousAtom, ref)
	}
}

// ResolveAll resolves refs into an AtomSet
func (r *AtomResolver) ResolveAll(refs []string) (AtomSet, error) {
	atoms := make([]AtomicLabel, 0, len(refs))
	for _, ref := range refs {
		a, err := r.Resolve(ref)
		if err != nil {
			return AtomSet{}, err
		}
		atoms = append(atoms, a)
	}
	return NewAtomSet(atoms...), nil
}

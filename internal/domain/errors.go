package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidName is returned when an atom or label name is malformed
	ErrInvalidName = errors.New("invalid name")
	// ErrUnknownAtoms is returned when a label references atoms outside the universe
	ErrUnknownAtoms = errors.New("atoms not in universe")
	// ErrLabelNotFound is returned by name lookups that match no registered label
	ErrLabelNotFound = errors.New("label not found")
	// ErrAmbiguousAtom is returned when a bare atom name matches several atoms
	ErrAmbiguousAtom = errors.New("ambiguous atom reference")
)

// UnknownAtomsError names the atoms a label referenced that the collection
// does not know about.
type UnknownAtomsError struct {
	Label *Label
	Atoms AtomSet
}

func (e *UnknownAtomsError) Error() string {
	return fmt.Sprintf("label %s references %s: %s", e.Label.displayName(), ErrUnknownAtoms, e.Atoms)
}

func (e *UnknownAtomsError) Unwrap() error {
	return ErrUnknownAtoms
}

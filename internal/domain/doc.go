// Package domain defines the core types of labelcomposer and the closure
// engine that decides which label combinations can be derived.
//
// # Core Types
//
// AtomicLabel is an indivisible category of a segmentation scheme (for
// example "Mito mem"), optionally disambiguated by an integer index.
//
// AtomSet is an immutable, canonically ordered set of atoms with a structural
// key, so sets can be compared and indexed by value.
//
// Label is a named composite definition over a set of atoms, the kind of
// mask a label producer actually emits (for example "Mito" covering
// membrane, lumen and ribosomes).
//
// LabelCollection owns a universe of atoms and the labels registered over
// it, and maintains the derived closure: atoms that can be isolated and
// multi-atom sets that can be produced, using only union, intersection and
// difference of registered labels.
//
// Scheme is the serializable form of a collection used by codecs and the
// repository.
//
// # Closure
//
// Each registered label feeds two facts into the closure: its own atom set
// and its complement within the universe. New facts are combined with the
// known sets using Computable, one step against existing sets and one step
// pairwise among the newly produced ones. Whenever a set collapses to a
// single atom that atom becomes computable and is removed from every other
// set, which can cascade.
//
// The expansion is bounded on purpose and is not a fixed point, and
// CanCompute checks exact membership of the unresolved remainder. Both keep
// the cost predictable at the price of completeness.
//
// # Design Principles
//
// - Immutable value objects for atoms and atom sets
// - No database or transport dependencies
// - Advisory growth warnings instead of aborting closure computation
package domain

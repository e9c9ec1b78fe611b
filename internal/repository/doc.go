// Package repository defines the data access interfaces for labelcomposer.
//
// Schemes are stored whole: a scheme row, its atoms in declaration order and
// its labels in registration order. Closures are never persisted; they are
// rebuilt from the stored labels when a scheme is loaded.
//
// Every scheme row carries a fingerprint of its universe, so schemes over the
// same atoms can be found without loading them.
//
// The sqlite subpackage provides the implementation.
package repository

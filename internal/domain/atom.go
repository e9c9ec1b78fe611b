package domain

import (
	"strconv"
	"strings"
)

// AtomicLabel is an indivisible category of a segmentation scheme, such as
// "Mito mem" or "ER lum". The optional index disambiguates atoms that share a
// name and usually mirrors the integer id used in label volumes.
//
// AtomicLabel is a comparable value and can be used directly as a map key.
type AtomicLabel struct {
	name    string
	index   int
	indexed bool
}

// NewAtomicLabel creates an atom without an index
func NewAtomicLabel(name string) (AtomicLabel, error) {
	normalized, err := NormalizeName(name)
	if err != nil {
		return AtomicLabel{}, err
	}
	return AtomicLabel{name: normalized}, nil
}

// NewIndexedAtomicLabel creates an atom carrying an integer index
func NewIndexedAtomicLabel(name string, index int) (AtomicLabel, error) {
	atom, err := NewAtomicLabel(name)
	if err != nil {
		return AtomicLabel{}, err
	}
	atom.index = index
	atom.indexed = true
	return atom, nil
}

// MustAtomicLabel is like NewAtomicLabel/NewIndexedAtomicLabel but panics on
// an invalid name. At most one index is honoured.
func MustAtomicLabel(name string, index ...int) AtomicLabel {
	var (
		atom AtomicLabel
		err  error
	)
	if len(index) > 0 {
		atom, err = NewIndexedAtomicLabel(name, index[0])
	} else {
		atom, err = NewAtomicLabel(name)
	}
	if err != nil {
		panic(err)
	}
	return atom
}

// Name returns the normalized atom name
func (a AtomicLabel) Name() string {
	return a.name
}

// Index returns the atom index and whether one was set
func (a AtomicLabel) Index() (int, bool) {
	return a.index, a.indexed
}

// Atoms returns the singleton set containing a
func (a AtomicLabel) Atoms() AtomSet {
	return newSortedAtomSet([]AtomicLabel{a})
}

// Ref returns the reference form used in scheme documents: the bare name, or
// "name#index" for indexed atoms.
func (a AtomicLabel) Ref() string {
	if !a.indexed {
		return a.name
	}
	return a.name + "#" + strconv.Itoa(a.index)
}

func (a AtomicLabel) String() string {
	if !a.indexed {
		return a.name + " (id not set)"
	}
	return a.name + " (" + strconv.Itoa(a.index) + ")"
}

// GoString implements fmt.GoStringer
func (a AtomicLabel) GoString() string {
	return "AtomicLabel " + a.String()
}

// less orders atoms by name, then unindexed before indexed, then by index
func (a AtomicLabel) less(b AtomicLabel) bool {
	if a.name != b.name {
		return a.name < b.name
	}
	if a.indexed != b.indexed {
		return !a.indexed
	}
	return a.index < b.index
}

func (a AtomicLabel) compare(b AtomicLabel) int {
	switch {
	case a == b:
		return 0
	case a.less(b):
		return -1
	default:
		return 1
	}
}

// writeKey appends an unambiguous encoding of a to sb
func (a AtomicLabel) writeKey(sb *strings.Builder) {
	sb.WriteString(strconv.Itoa(len(a.name)))
	sb.WriteByte(':')
	sb.WriteString(a.name)
	if a.indexed {
		sb.WriteByte('#')
		sb.WriteString(strconv.Itoa(a.index))
	}
	sb.WriteByte(';')
}

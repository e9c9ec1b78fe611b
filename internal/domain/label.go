package domain

// Label is one composite definition a label producer can deliver, e.g.
// "Mito" = {Mito mem, Mito lum, Mito Ribo}. The atom set is fixed at
// construction; the name is optional and may be changed by the owner.
type Label struct {
	name     string
	named    bool
	included AtomSet
}

// NewLabel creates an unnamed label over the given atoms
func NewLabel(atoms ...AtomSource) *Label {
	return &Label{included: unionOf(atoms)}
}

// NewNamedLabel creates a label with a validated name
func NewNamedLabel(name string, atoms ...AtomSource) (*Label, error) {
	l := NewLabel(atoms...)
	if err := l.SetName(name); err != nil {
		return nil, err
	}
	return l, nil
}

// MustLabel is like NewNamedLabel but panics on an invalid name
func MustLabel(name string, atoms ...AtomSource) *Label {
	l, err := NewNamedLabel(name, atoms...)
	if err != nil {
		panic(err)
	}
	return l
}

// Name returns the label name and whether one is set
func (l *Label) Name() (string, bool) {
	return l.name, l.named
}

// SetName validates and assigns a new name
func (l *Label) SetName(name string) error {
	normalized, err := NormalizeName(name)
	if err != nil {
		return err
	}
	l.name = normalized
	l.named = true
	return nil
}

// ClearName removes the label name
func (l *Label) ClearName() {
	l.name = ""
	l.named = false
}

// Atoms returns the atoms the label covers
func (l *Label) Atoms() AtomSet {
	return l.included
}

// Len returns the number of atoms the label covers
func (l *Label) Len() int {
	return l.included.Len()
}

// Equal reports whether both labels have the same name and atoms
func (l *Label) Equal(other *Label) bool {
	if other == nil {
		return false
	}
	return l.named == other.named && l.name == other.name && l.Matches(other)
}

// Matches reports whether both labels cover the same atoms, ignoring names
func (l *Label) Matches(other *Label) bool {
	return other != nil && l.included.Equal(other.included)
}

// Union returns the atoms of l together with other
func (l *Label) Union(other AtomSource) AtomSet {
	return l.included.Union(other)
}

// Difference returns the atoms of l not in other
func (l *Label) Difference(other AtomSource) AtomSet {
	return l.included.Difference(other)
}

// Intersection returns the atoms l shares with other
func (l *Label) Intersection(other AtomSource) AtomSet {
	return l.included.Intersection(other)
}

func (l *Label) String() string {
	return "Label " + l.displayName() + ": " + l.included.String()
}

func (l *Label) displayName() string {
	if !l.named {
		return "<unnamed>"
	}
	return l.name
}

func unionOf(sources []AtomSource) AtomSet {
	var out AtomSet
	for _, src := range sources {
		out = out.Union(src)
	}
	return out
}

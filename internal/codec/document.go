package codec

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"labelcomposer/internal/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Document is the on-disk shape of a scheme, shared by every format
type Document struct {
	Name        string          `json:"name" yaml:"name" toml:"name" validate:"required"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Atoms       []AtomDocument  `json:"atoms" yaml:"atoms" toml:"atoms" validate:"required,min=1,dive"`
	Labels      []LabelDocument `json:"labels" yaml:"labels" toml:"labels" validate:"dive"`
}

// AtomDocument describes one atom of the universe
type AtomDocument struct {
	Name  string `json:"name" yaml:"name" toml:"name" validate:"required"`
	Index *int   `json:"index,omitempty" yaml:"index,omitempty" toml:"index,omitempty"`
}

// LabelDocument describes a label by atom references ("name" or "name#index")
type LabelDocument struct {
	Name  string   `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	Atoms []string `json:"atoms" yaml:"atoms" toml:"atoms" validate:"dive,required"`
}

// NewDocument converts a scheme into its document form. Atom references use
// the bare name unless several atoms share it.
func NewDocument(s *domain.Scheme) *Document {
	counts := make(map[string]int, len(s.Atoms))
	for _, a := range s.Atoms {
		counts[a.Name()]++
	}
	ref := func(a domain.AtomicLabel) string {
		if counts[a.Name()] > 1 {
			return a.Ref()
		}
		return a.Name()
	}

	doc := &Document{
		Name:        s.Name,
		Description: s.Description,
		Atoms:       make([]AtomDocument, 0, len(s.Atoms)),
		Labels:      make([]LabelDocument, 0, len(s.Labels)),
	}
	for _, a := range s.Atoms {
		ad := AtomDocument{Name: a.Name()}
		if idx, ok := a.Index(); ok {
			ad.Index = &idx
		}
		doc.Atoms = append(doc.Atoms, ad)
	}
	for _, l := range s.Labels {
		ld := LabelDocument{Atoms: make([]string, 0, l.Len())}
		if name, ok := l.Name(); ok {
			ld.Name = name
		}
		for _, a := range l.Atoms().Members() {
			ld.Atoms = append(ld.Atoms, ref(a))
		}
		doc.Labels = append(doc.Labels, ld)
	}
	return doc
}

// Scheme validates the document and resolves its atom references
func (d *Document) Scheme() (*domain.Scheme, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	s := &domain.Scheme{
		Name:        strings.TrimSpace(d.Name),
		Description: d.Description,
		Atoms:       make([]domain.AtomicLabel, 0, len(d.Atoms)),
		Labels:      make([]*domain.Label, 0, len(d.Labels)),
	}

	seen := make(map[domain.AtomicLabel]struct{}, len(d.Atoms))
	for i, ad := range d.Atoms {
		var (
			atom domain.AtomicLabel
			err  error
		)
		if ad.Index != nil {
			atom, err = domain.NewIndexedAtomicLabel(ad.Name, *ad.Index)
		} else {
			atom, err = domain.NewAtomicLabel(ad.Name)
		}
		if err != nil {
			return nil, fmt.Errorf("atoms[%d]: %w", i, err)
		}
		if _, dup := seen[atom]; dup {
			return nil, fmt.Errorf("atoms[%d]: duplicate atom %s", i, atom)
		}
		seen[atom] = struct{}{}
		s.Atoms = append(s.Atoms, atom)
	}

	resolver := domain.NewAtomResolver(domain.NewAtomSet(s.Atoms...))
	for i, ld := range d.Labels {
		included, err := resolver.ResolveAll(ld.Atoms)
		if err != nil {
			return nil, fmt.Errorf("labels[%d]: %w", i, err)
		}
		label := domain.NewLabel(included)
		if ld.Name != "" {
			if err := label.SetName(ld.Name); err != nil {
				return nil, fmt.Errorf("labels[%d]: %w", i, err)
			}
		}
		s.Labels = append(s.Labels, label)
	}
	return s, nil
}

// Validate checks the structural constraints of the document
func (d *Document) Validate() error {
	if err := validate.Struct(d); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return nil
}

// ErrInvalidDocument is returned when a scheme document fails validation
var ErrInvalidDocument = errors.New("invalid scheme document")

package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheme_Build(t *testing.T) {
	universe := indexedAtoms("ABCD")
	s := &Scheme{
		Name:   "pairs",
		Atoms:  universe,
		Labels: []*Label{MustLabel("AB", pick(universe, "AB")), MustLabel("BC", pick(universe, "BC"))},
	}

	c, err := s.Build()
	require.NoError(t, err)
	assert.True(t, c.CanComputeAtoms())

	round := SchemeFromCollection("pairs", "copy", c)
	assert.Equal(t, universe, round.Atoms)
	assert.Equal(t, s.Labels, round.Labels)
	assert.Equal(t, "copy", round.Description)

	s.Labels = append(s.Labels, NewLabel(MustAtomicLabel("Z")))
	_, err = s.Build()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownAtoms)
	assert.Contains(t, err.Error(), "scheme pairs")
}

func TestAtomResolver(t *testing.T) {
	universe := NewAtomSet(
		MustAtomicLabel("ER mem", 1),
		MustAtomicLabel("ER lum", 2),
		MustAtomicLabel("Ribo", 3),
		MustAtomicLabel("Ribo", 4),
		MustAtomicLabel("ECS"),
	)
	r := NewAtomResolver(universe)

	tests := []struct {
		name    string
		ref     string
		want    AtomicLabel
		wantErr error
	}{
		{name: "bare name", ref: "ER mem", want: MustAtomicLabel("ER mem", 1)},
		{name: "name with index", ref: "ER lum#2", want: MustAtomicLabel("ER lum", 2)},
		{name: "unindexed atom", ref: "ECS", want: MustAtomicLabel("ECS")},
		{name: "disambiguated duplicate", ref: "Ribo#4", want: MustAtomicLabel("Ribo", 4)},
		{name: "unknown", ref: "Golgi", wantErr: ErrUnknownAtoms},
		{name: "wrong index", ref: "ER mem#7", wantErr: ErrUnknownAtoms},
		{name: "blank", ref: " ", wantErr: ErrInvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.ref)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("ambiguous name", func(t *testing.T) {
		_, err := r.Resolve("Ribo")
		assert.ErrorIs(t, err, ErrAmbiguousAtom)
		assert.Contains(t, err.Error(), "use name#index")
	})

	t.Run("resolve all", func(t *testing.T) {
		got, err := r.ResolveAll([]string{"ER mem", "ER lum#2", "ER mem"})
		require.NoError(t, err)
		assert.True(t, NewAtomSet(MustAtomicLabel("ER mem", 1), MustAtomicLabel("ER lum", 2)).Equal(got))

		_, err = r.ResolveAll([]string{"ER mem", "nope"})
		assert.ErrorIs(t, err, ErrUnknownAtoms)
	})
}

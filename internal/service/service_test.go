package service

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labelcomposer/internal/codec"
	"labelcomposer/internal/domain"
	"labelcomposer/internal/logging"
	"labelcomposer/internal/metrics"
	"labelcomposer/internal/repository"
	"labelcomposer/internal/repository/sqlite"
)

type fixture struct {
	svc     *SchemeService
	repo    repository.Repository
	bus     *EventBus
	events  chan Event
	metrics *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return newFixtureWithRepo(t, repo)
}

func newFixtureWithRepo(t *testing.T, repo repository.Repository) *fixture {
	t.Helper()
	bus := NewEventBus()
	events := make(chan Event, 64)
	bus.Subscribe(events)
	m := metrics.New()
	return &fixture{
		svc:     NewSchemeService(repo, bus, m, WithLogger(logging.Discard())),
		repo:    repo,
		bus:     bus,
		events:  events,
		metrics: m,
	}
}

func (f *fixture) drain() []EventType {
	var types []EventType
	for {
		select {
		case ev := <-f.events:
			types = append(types, ev.Type)
		default:
			return types
		}
	}
}

func pairsScheme(name string) *domain.Scheme {
	a, b, c, d := domain.MustAtomicLabel("A"), domain.MustAtomicLabel("B"), domain.MustAtomicLabel("C"), domain.MustAtomicLabel("D")
	return &domain.Scheme{
		Name:   name,
		Atoms:  []domain.AtomicLabel{a, b, c, d},
		Labels: []*domain.Label{domain.MustLabel("AB", a, b), domain.MustLabel("BC", b, c)},
	}
}

func coarseScheme(name string) *domain.Scheme {
	a, b, c, d := domain.MustAtomicLabel("A"), domain.MustAtomicLabel("B"), domain.MustAtomicLabel("C"), domain.MustAtomicLabel("D")
	return &domain.Scheme{
		Name:   name,
		Atoms:  []domain.AtomicLabel{a, b, c, d},
		Labels: []*domain.Label{domain.MustLabel("ABC", a, b, c), domain.MustLabel("D", d)},
	}
}

func TestSchemeService_CreateAndClosure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.CreateScheme(ctx, pairsScheme("pairs"), SourceAPI)
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.Equal(t, 4, result.Atoms)
	assert.Equal(t, 2, result.Labels)

	report, err := f.svc.Closure("pairs")
	require.NoError(t, err)
	assert.True(t, report.Complete)
	assert.Equal(t, []string{"A", "B", "C", "D"}, report.ComputableAtoms)
	assert.Equal(t, []string{"AB", "BC"}, report.Labels)
	assert.Empty(t, report.Unresolved)
	assert.Empty(t, report.ComputableSets)

	_, err = f.svc.CreateScheme(ctx, pairsScheme("pairs"), SourceAPI)
	assert.ErrorIs(t, err, ErrSchemeExists)

	_, err = f.svc.Closure("missing")
	assert.ErrorIs(t, err, ErrSchemeNotFound)

	assert.Equal(t, []EventType{EventSchemeCreated}, f.drain())
	assert.Equal(t, 4.0, testutil.ToFloat64(f.metrics.ComputableAtoms.WithLabelValues("pairs")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SchemesLoaded))
}

func TestSchemeService_ClosureReportPartial(t *testing.T) {
	f := newFixture(t)
	a, b, c, d := domain.MustAtomicLabel("A"), domain.MustAtomicLabel("B"), domain.MustAtomicLabel("C"), domain.MustAtomicLabel("D")
	scheme := &domain.Scheme{
		Name:   "single",
		Atoms:  []domain.AtomicLabel{a, b, c, d},
		Labels: []*domain.Label{domain.NewLabel(a, b)},
	}
	_, err := f.svc.CreateScheme(context.Background(), scheme, SourceAPI)
	require.NoError(t, err)

	report, err := f.svc.Closure("single")
	require.NoError(t, err)
	assert.False(t, report.Complete)
	assert.Empty(t, report.ComputableAtoms)
	assert.Equal(t, []string{"{A, B}"}, report.Labels)
	assert.ElementsMatch(t, [][]string{{"A", "B"}, {"C", "D"}, {"A", "B", "C", "D"}}, report.ComputableSets)
	assert.Equal(t, []string{"A", "B", "C", "D"}, report.Unresolved)
}

func TestSchemeService_PutSchemeReplaces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.PutScheme(ctx, pairsScheme("s"), "a.yaml")
	require.NoError(t, err)
	result, err := f.svc.PutScheme(ctx, coarseScheme("s"), "a.yaml")
	require.NoError(t, err)
	assert.False(t, result.Created)

	report, err := f.svc.Closure("s")
	require.NoError(t, err)
	assert.Equal(t, []string{"ABC", "D"}, report.Labels)
	assert.Equal(t, []EventType{EventSchemeCreated, EventSchemeUpdated}, f.drain())
}

func TestSchemeService_InvalidScheme(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bad := pairsScheme("bad")
	bad.Labels = append(bad.Labels, domain.NewLabel(domain.MustAtomicLabel("Z")))
	_, err := f.svc.CreateScheme(ctx, bad, SourceAPI)
	assert.ErrorIs(t, err, domain.ErrUnknownAtoms)

	_, err = f.svc.CreateScheme(ctx, pairsScheme("  "), SourceAPI)
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	summaries, err := f.svc.ListSchemes(ctx)
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestSchemeService_AddAtom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := domain.MustAtomicLabel("A"), domain.MustAtomicLabel("B"), domain.MustAtomicLabel("C")
	_, err := f.svc.CreateScheme(ctx, &domain.Scheme{
		Name:   "abc",
		Atoms:  []domain.AtomicLabel{a, b, c},
		Labels: []*domain.Label{domain.NewLabel(a, b)},
	}, SourceAPI)
	require.NoError(t, err)
	f.drain()

	ok, err := f.svc.CanCompute("abc", []string{"C"})
	require.NoError(t, err)
	assert.True(t, ok)

	added, err := f.svc.AddAtom(ctx, "abc", a)
	require.NoError(t, err)
	assert.False(t, added)

	added, err = f.svc.AddAtom(ctx, "abc", domain.MustAtomicLabel("D"))
	require.NoError(t, err)
	assert.True(t, added)

	ok, err = f.svc.CanCompute("abc", []string{"C"})
	require.NoError(t, err)
	assert.False(t, ok)

	record, err := f.repo.GetScheme(ctx, "abc")
	require.NoError(t, err)
	assert.Len(t, record.Scheme.Atoms, 4)
	assert.Equal(t, domain.MustAtomicLabel("D"), record.Scheme.Atoms[3])

	assert.Equal(t, []EventType{EventAtomAdded}, f.drain())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Queries.WithLabelValues("abc", "not_computable")))
}

func TestSchemeService_AddLabel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateScheme(ctx, coarseScheme("s"), SourceAPI)
	require.NoError(t, err)

	ok, err := f.svc.CanCompute("s", []string{"A"})
	require.NoError(t, err)
	assert.False(t, ok)

	added, err := f.svc.AddLabel(ctx, "s", "AB", []string{"A", "B"})
	require.NoError(t, err)
	assert.True(t, added)

	added, err = f.svc.AddLabel(ctx, "s", "other name", []string{"B", "A"})
	require.NoError(t, err)
	assert.False(t, added, "same atom set is already registered")

	ok, err = f.svc.CanCompute("s", []string{"C"})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.svc.AddLabel(ctx, "s", "Z", []string{"Z"})
	assert.ErrorIs(t, err, domain.ErrUnknownAtoms)
	_, err = f.svc.AddLabel(ctx, "missing", "", []string{"A"})
	assert.ErrorIs(t, err, ErrSchemeNotFound)

	record, err := f.repo.GetScheme(ctx, "s")
	require.NoError(t, err)
	require.Len(t, record.Scheme.Labels, 3)
	name, _ := record.Scheme.Labels[2].Name()
	assert.Equal(t, "AB", name)
}

type failingRepo struct {
	repository.Repository
	failSaves bool
}

func (r *failingRepo) SaveScheme(ctx context.Context, s *domain.Scheme, source string) (*repository.SchemeRecord, error) {
	if r.failSaves {
		return nil, errors.New("disk full")
	}
	return r.Repository.SaveScheme(ctx, s, source)
}

func TestSchemeService_FailedSaveRestoresCollection(t *testing.T) {
	inner, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { inner.Close() })
	repo := &failingRepo{Repository: inner}
	f := newFixtureWithRepo(t, repo)
	ctx := context.Background()

	_, err = f.svc.CreateScheme(ctx, coarseScheme("s"), SourceAPI)
	require.NoError(t, err)

	repo.failSaves = true
	_, err = f.svc.AddLabel(ctx, "s", "AB", []string{"A", "B"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	ok, err := f.svc.CanCompute("s", []string{"A", "B"})
	require.NoError(t, err)
	assert.False(t, ok, "label must not survive a failed save")

	repo.failSaves = false
	added, err := f.svc.AddLabel(ctx, "s", "AB", []string{"A", "B"})
	require.NoError(t, err)
	assert.True(t, added)
}

// blockingRepo holds the next SaveScheme until released
type blockingRepo struct {
	repository.Repository
	mu      sync.Mutex
	entered chan struct{}
	release chan struct{}
}

func (r *blockingRepo) blockNextSave(t *testing.T) (<-chan struct{}, func()) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entered = make(chan struct{})
	r.release = make(chan struct{})
	release := sync.OnceFunc(func() { close(r.release) })
	t.Cleanup(release)
	return r.entered, release
}

func (r *blockingRepo) SaveScheme(ctx context.Context, s *domain.Scheme, source string) (*repository.SchemeRecord, error) {
	r.mu.Lock()
	entered, release := r.entered, r.release
	r.entered, r.release = nil, nil
	r.mu.Unlock()
	if entered != nil {
		close(entered)
		<-release
	}
	return r.Repository.SaveScheme(ctx, s, source)
}

func newBlockingFixture(t *testing.T) (*fixture, *blockingRepo) {
	t.Helper()
	inner, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { inner.Close() })
	repo := &blockingRepo{Repository: inner}
	return newFixtureWithRepo(t, repo), repo
}

// startBlockedAddLabel runs AddLabel until its save is in flight
func startBlockedAddLabel(t *testing.T, f *fixture, repo *blockingRepo) (<-chan error, func()) {
	t.Helper()
	saving, release := repo.blockNextSave(t)
	done := make(chan error, 1)
	go func() {
		_, err := f.svc.AddLabel(context.Background(), "s", "CD", []string{"C", "D"})
		done <- err
	}()
	<-saving
	return done, release
}

func assertStillWaiting(t *testing.T, ch <-chan error) {
	t.Helper()
	select {
	case err := <-ch:
		t.Fatalf("finished while a save was in flight: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSchemeService_DeleteDuringMutation(t *testing.T) {
	f, repo := newBlockingFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateScheme(ctx, pairsScheme("s"), SourceAPI)
	require.NoError(t, err)

	mutated, release := startBlockedAddLabel(t, f, repo)
	deleted := make(chan error, 1)
	go func() { deleted <- f.svc.DeleteScheme(ctx, "s") }()
	assertStillWaiting(t, deleted)
	release()

	require.NoError(t, <-mutated)
	require.NoError(t, <-deleted)

	_, err = f.repo.GetScheme(ctx, "s")
	assert.ErrorIs(t, err, repository.ErrNotFound, "deleted scheme must not be written back")
	_, _, err = f.svc.Scheme("s")
	assert.ErrorIs(t, err, ErrSchemeNotFound)
}

func TestSchemeService_ReplaceDuringMutation(t *testing.T) {
	f, repo := newBlockingFixture(t)
	ctx := context.Background()
	_, err := f.svc.PutScheme(ctx, pairsScheme("s"), "s.yaml")
	require.NoError(t, err)

	mutated, release := startBlockedAddLabel(t, f, repo)
	replaced := make(chan error, 1)
	go func() {
		_, err := f.svc.PutScheme(ctx, coarseScheme("s"), "s.yaml")
		replaced <- err
	}()
	assertStillWaiting(t, replaced)
	release()

	require.NoError(t, <-mutated)
	require.NoError(t, <-replaced)

	record, err := f.repo.GetScheme(ctx, "s")
	require.NoError(t, err)
	assert.Len(t, record.Scheme.Labels, 2)
	first, _ := record.Scheme.Labels[0].Name()
	assert.Equal(t, "ABC", first)

	scheme, _, err := f.svc.Scheme("s")
	require.NoError(t, err)
	assert.Len(t, scheme.Labels, 2)

	added, err := f.svc.AddLabel(ctx, "s", "CD", []string{"C", "D"})
	require.NoError(t, err)
	assert.True(t, added, "replacement must not carry the label added to the old entry")
}

func TestSchemeService_CanComputeLabel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateScheme(ctx, pairsScheme("fine"), SourceAPI)
	require.NoError(t, err)
	_, err = f.svc.CreateScheme(ctx, coarseScheme("coarse"), SourceAPI)
	require.NoError(t, err)

	ok, err := f.svc.CanComputeLabel("fine", "coarse", "ABC")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.CanComputeLabel("coarse", "fine", "AB")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.svc.CanComputeLabel("coarse", "", "D")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.svc.CanComputeLabel("coarse", "fine", "nope")
	assert.ErrorIs(t, err, domain.ErrLabelNotFound)
}

func TestSchemeService_Compare(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateScheme(ctx, pairsScheme("fine"), SourceAPI)
	require.NoError(t, err)
	_, err = f.svc.CreateScheme(ctx, coarseScheme("coarse"), SourceAPI)
	require.NoError(t, err)
	_, err = f.svc.CreateScheme(ctx, &domain.Scheme{Name: "tiny", Atoms: []domain.AtomicLabel{domain.MustAtomicLabel("A")}}, SourceAPI)
	require.NoError(t, err)

	cmp, err := f.svc.Compare("fine", "coarse")
	require.NoError(t, err)
	assert.True(t, cmp.SameUniverse)
	assert.True(t, cmp.Computable)
	assert.False(t, cmp.Reverse)
	assert.Empty(t, cmp.Missing)

	cmp, err = f.svc.Compare("coarse", "fine")
	require.NoError(t, err)
	assert.False(t, cmp.Computable)
	assert.Equal(t, []string{"AB", "BC"}, cmp.Missing)

	cmp, err = f.svc.Compare("fine", "fine")
	require.NoError(t, err)
	assert.True(t, cmp.Computable)
	assert.True(t, cmp.Reverse)

	cmp, err = f.svc.Compare("fine", "tiny")
	require.NoError(t, err)
	assert.False(t, cmp.SameUniverse)
	assert.False(t, cmp.Computable)

	compatible, err := f.svc.Compatible(ctx, "fine")
	require.NoError(t, err)
	assert.Equal(t, []string{"coarse"}, compatible)
}

func TestSchemeService_DeleteAndRemoveSource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.PutScheme(ctx, pairsScheme("one"), "dir/a.yaml")
	require.NoError(t, err)
	_, err = f.svc.PutScheme(ctx, coarseScheme("two"), "dir/b.yaml")
	require.NoError(t, err)

	removed, err := f.svc.RemoveSource(ctx, "dir/a.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"one"}, removed)

	_, _, err = f.svc.Scheme("one")
	assert.ErrorIs(t, err, ErrSchemeNotFound)
	_, err = f.repo.GetScheme(ctx, "one")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, f.svc.DeleteScheme(ctx, "two"))
	assert.ErrorIs(t, f.svc.DeleteScheme(ctx, "two"), ErrSchemeNotFound)
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.SchemesLoaded))
}

func TestSchemeService_Load(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.PutScheme(ctx, pairsScheme("pairs"), "pairs.yaml")
	require.NoError(t, err)

	fresh := NewSchemeService(f.repo, f.bus, metrics.New(), WithLogger(logging.Discard()))
	require.NoError(t, fresh.Load(ctx))

	scheme, source, err := fresh.Scheme("pairs")
	require.NoError(t, err)
	assert.Equal(t, "pairs.yaml", source)
	assert.Len(t, scheme.Labels, 2)

	ok, err := fresh.CanCompute("pairs", []string{"D"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSchemeService_GrowthWarning(t *testing.T) {
	f := newFixture(t)
	letters := "ABCDEFGHIJKLMN"
	atoms := make([]domain.AtomicLabel, 0, len(letters))
	byName := make(map[rune]domain.AtomicLabel)
	for i, r := range letters {
		a := domain.MustAtomicLabel(string(r), i+1)
		atoms = append(atoms, a)
		byName[r] = a
	}
	label := func(s string) *domain.Label {
		var members []domain.AtomicLabel
		for _, r := range s {
			members = append(members, byName[r])
		}
		return domain.MustLabel(s, domain.NewAtomSet(members...))
	}

	_, err := f.svc.CreateScheme(context.Background(), &domain.Scheme{
		Name:   "four",
		Atoms:  atoms,
		Labels: []*domain.Label{label("ACDEGHI"), label("BCDGHJK"), label("DEFHIKL"), label("GHIJKLM")},
	}, SourceAPI)
	require.NoError(t, err)

	assert.Contains(t, f.drain(), EventClosureGrowth)
	assert.GreaterOrEqual(t, testutil.ToFloat64(f.metrics.GrowthWarnings.WithLabelValues("four")), 1.0)
}

func TestSchemeService_ImportExport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doc := []byte("name: imported\natoms: [{name: A}, {name: B}]\nlabels:\n  - name: A\n    atoms: [A]\n")

	result, err := f.svc.Import(ctx, doc, "yaml", SourceAPI, false)
	require.NoError(t, err)
	assert.True(t, result.Created)

	_, err = f.svc.Import(ctx, doc, "yaml", SourceAPI, false)
	assert.ErrorIs(t, err, ErrSchemeExists)
	result, err = f.svc.Import(ctx, doc, "yaml", SourceAPI, true)
	require.NoError(t, err)
	assert.False(t, result.Created)

	_, err = f.svc.Import(ctx, doc, "xml", SourceAPI, false)
	assert.ErrorIs(t, err, codec.ErrUnsupportedFormat)

	_, err = f.svc.Import(ctx, []byte("name: broken\natoms: [\n"), "yaml", SourceAPI, false)
	assert.ErrorIs(t, err, ErrInvalidScheme)

	var buf bytes.Buffer
	require.NoError(t, f.svc.Export("imported", "json", &buf))
	assert.Contains(t, buf.String(), `"name": "imported"`)

	assert.ErrorIs(t, f.svc.Export("missing", "json", &buf), ErrSchemeNotFound)
}

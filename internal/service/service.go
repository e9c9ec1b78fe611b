package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"labelcomposer/internal/codec"
	"labelcomposer/internal/domain"
	"labelcomposer/internal/loader"
	"labelcomposer/internal/metrics"
	"labelcomposer/internal/repository"
)

var (
	// ErrSchemeNotFound is returned when no scheme has the requested name
	ErrSchemeNotFound = errors.New("scheme not found")
	// ErrSchemeExists is returned when creating a scheme whose name is taken
	ErrSchemeExists = errors.New("scheme already exists")
	// ErrInvalidScheme wraps documents that cannot be decoded into a scheme
	ErrInvalidScheme = errors.New("invalid scheme")
)

// SourceAPI marks schemes created through the API rather than from a file
const SourceAPI = "api"

// Option configures a SchemeService
type Option func(*SchemeService)

// WithLogger sets the service logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *SchemeService) {
		s.logger = logger
	}
}

// WithWarnThreshold sets the initial growth warning threshold of every
// collection the service builds
func WithWarnThreshold(n int) Option {
	return func(s *SchemeService) {
		s.warnThreshold = n
	}
}

// SchemeService keeps a built LabelCollection for every stored scheme and
// serializes access to each: queries share a read lock, mutations take the
// write lock and persist before returning.
type SchemeService struct {
	repo          repository.Repository
	eventBus      *EventBus
	metrics       *metrics.Metrics
	logger        *slog.Logger
	warnThreshold int

	mu      sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	mu         sync.RWMutex
	scheme     *domain.Scheme
	collection *domain.LabelCollection
	source     string
	removed    bool
}

// NewSchemeService creates a new scheme service
func NewSchemeService(repo repository.Repository, eventBus *EventBus, m *metrics.Metrics, opts ...Option) *SchemeService {
	s := &SchemeService{
		repo:          repo,
		eventBus:      eventBus,
		metrics:       m,
		logger:        slog.Default(),
		warnThreshold: domain.DefaultWarnThreshold,
		entries:       make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	return s
}

// Load builds collections for every stored scheme. Schemes that fail to
// build are skipped and reported in the joined error.
func (s *SchemeService) Load(ctx context.Context) error {
	summaries, err := s.repo.ListSchemes(ctx)
	if err != nil {
		return fmt.Errorf("list schemes: %w", err)
	}

	entries := make(map[string]*entry, len(summaries))
	var errs []error
	for _, summary := range summaries {
		record, err := s.repo.GetScheme(ctx, summary.Name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		c, err := s.build(record.Scheme)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		entries[summary.Name] = &entry{scheme: record.Scheme, collection: c, source: record.Source}
		s.observe(summary.Name, c)
	}

	s.mu.Lock()
	s.entries = entries
	s.metrics.SchemesLoaded.Set(float64(len(entries)))
	s.mu.Unlock()

	s.logger.Info("schemes loaded", "count", len(entries), "failed", len(errs))
	s.eventBus.Publish(Event{
		Type:    EventSchemesReloaded,
		Payload: map[string]int{"count": len(entries)},
	})
	return errors.Join(errs...)
}

func (s *SchemeService) build(scheme *domain.Scheme) (*domain.LabelCollection, error) {
	start := time.Now()
	c, err := scheme.Build(
		domain.WithWarnThreshold(s.warnThreshold),
		domain.WithGrowthHandler(s.growthHandler(scheme.Name)),
	)
	s.metrics.BuildDuration.Observe(time.Since(start).Seconds())
	return c, err
}

func (s *SchemeService) growthHandler(name string) func(domain.GrowthWarning) {
	return func(w domain.GrowthWarning) {
		s.metrics.GrowthWarnings.WithLabelValues(name).Inc()
		s.logger.Warn("computable set count is growing fast, closure may become expensive",
			"scheme", name,
			"sets", w.Sets,
			"threshold", w.Threshold,
			"next_threshold", w.NextThreshold,
		)
		s.eventBus.Publish(Event{
			Type:   EventClosureGrowth,
			Scheme: name,
			Payload: map[string]int{
				"sets":           w.Sets,
				"threshold":      w.Threshold,
				"next_threshold": w.NextThreshold,
			},
		})
	}
}

func (s *SchemeService) observe(name string, c *domain.LabelCollection) {
	s.metrics.ObserveClosure(name, metrics.ClosureStats{
		Atoms:           c.Atoms().Len(),
		ComputableAtoms: c.ComputableAtoms().Len(),
		ComputableSets:  len(c.ComputableSets()),
	})
}

func (s *SchemeService) lookup(name string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSchemeNotFound, name)
	}
	return e, nil
}

// ListSchemes returns summaries of all stored schemes
func (s *SchemeService) ListSchemes(ctx context.Context) ([]repository.SchemeSummary, error) {
	return s.repo.ListSchemes(ctx)
}

// Scheme returns the current definition of a scheme
func (s *SchemeService) Scheme(name string) (*domain.Scheme, string, error) {
	e, err := s.lookup(name)
	if err != nil {
		return nil, "", err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.scheme, e.source, nil
}

// Closure reports the derivable atoms and sets of a scheme
func (s *SchemeService) Closure(name string) (*ClosureReport, error) {
	e, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return NewClosureReport(name, e.collection), nil
}

// CreateScheme stores a new scheme; the name must not be taken
func (s *SchemeService) CreateScheme(ctx context.Context, scheme *domain.Scheme, source string) (*ImportResult, error) {
	return s.put(ctx, scheme, source, true)
}

// PutScheme stores a scheme, replacing any scheme with the same name
func (s *SchemeService) PutScheme(ctx context.Context, scheme *domain.Scheme, source string) (*ImportResult, error) {
	return s.put(ctx, scheme, source, false)
}

func (s *SchemeService) put(ctx context.Context, scheme *domain.Scheme, source string, mustCreate bool) (*ImportResult, error) {
	name, err := domain.NormalizeName(scheme.Name)
	if err != nil {
		return nil, fmt.Errorf("scheme name: %w", err)
	}
	scheme.Name = name

	c, err := s.build(scheme)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous, exists := s.entries[name]
	if exists && mustCreate {
		return nil, fmt.Errorf("%w: %s", ErrSchemeExists, name)
	}

	// The replaced entry is retired before the write, so a mutation still
	// holding it cannot save over the new definition.
	if exists {
		previous.mu.Lock()
		defer previous.mu.Unlock()
		previous.removed = true
	}
	if _, err := s.repo.SaveScheme(ctx, scheme, source); err != nil {
		if exists {
			previous.removed = false
		}
		return nil, fmt.Errorf("save scheme %s: %w", name, err)
	}

	s.entries[name] = &entry{scheme: scheme, collection: c, source: source}
	s.metrics.SchemesLoaded.Set(float64(len(s.entries)))
	s.observe(name, c)

	eventType := EventSchemeCreated
	if exists {
		eventType = EventSchemeUpdated
	}
	result := &ImportResult{
		Scheme:  name,
		Created: !exists,
		Atoms:   len(scheme.Atoms),
		Labels:  len(scheme.Labels),
	}
	s.eventBus.Publish(Event{Type: eventType, Scheme: name, Payload: result})
	s.logger.Info("scheme stored", "scheme", name, "created", !exists, "source", source)

	return result, nil
}

// DeleteScheme removes a scheme
func (s *SchemeService) DeleteScheme(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(ctx, name)
}

func (s *SchemeService) deleteLocked(ctx context.Context, name string) error {
	e, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSchemeNotFound, name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.removed = true
	if err := s.repo.DeleteScheme(ctx, name); err != nil && !errors.Is(err, repository.ErrNotFound) {
		e.removed = false
		return fmt.Errorf("delete scheme %s: %w", name, err)
	}

	delete(s.entries, name)
	s.metrics.SchemesLoaded.Set(float64(len(s.entries)))
	s.metrics.ForgetScheme(name)

	s.eventBus.Publish(Event{Type: EventSchemeDeleted, Scheme: name})
	s.logger.Info("scheme deleted", "scheme", name)
	return nil
}

// RemoveSource deletes every scheme loaded from source and returns their names
func (s *SchemeService) RemoveSource(ctx context.Context, source string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var names []string
	for name, e := range s.entries {
		if e.source == source {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	for _, name := range names {
		if err := s.deleteLocked(ctx, name); err != nil {
			return names, err
		}
	}
	return names, nil
}

// mutate runs fn on a scheme under its write lock. fn returns the scheme
// definition to persist, or nil when nothing changed. If persisting fails the
// collection is rebuilt from the last persisted definition.
func (s *SchemeService) mutate(ctx context.Context, name string, fn func(e *entry) (*domain.Scheme, error)) (bool, error) {
	e, err := s.lookup(name)
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return false, fmt.Errorf("%w: %s", ErrSchemeNotFound, name)
	}

	next, err := fn(e)
	if err != nil || next == nil {
		return false, err
	}

	if _, err := s.repo.SaveScheme(ctx, next, e.source); err != nil {
		if c, rerr := s.build(e.scheme); rerr == nil {
			e.collection = c
		} else {
			s.logger.Error("failed to restore collection", "scheme", name, "error", rerr)
		}
		return false, fmt.Errorf("save scheme %s: %w", name, err)
	}
	e.scheme = next
	s.observe(name, e.collection)
	return true, nil
}

// AddAtom extends a scheme's universe. Adding an atom it already has is a
// no-op and reports false.
func (s *SchemeService) AddAtom(ctx context.Context, name string, atom domain.AtomicLabel) (bool, error) {
	added, err := s.mutate(ctx, name, func(e *entry) (*domain.Scheme, error) {
		if e.collection.Atoms().Contains(atom) {
			return nil, nil
		}
		if err := e.collection.AddAtom(atom); err != nil {
			return nil, err
		}
		return &domain.Scheme{
			Name:        e.scheme.Name,
			Description: e.scheme.Description,
			Atoms:       append(slices.Clone(e.scheme.Atoms), atom),
			Labels:      e.scheme.Labels,
		}, nil
	})
	if added {
		s.eventBus.Publish(Event{Type: EventAtomAdded, Scheme: name, Payload: map[string]string{"atom": atom.Ref()}})
	}
	return added, err
}

// AddLabel registers a label given by atom references. A label whose atom
// set is already registered is ignored and reports false.
func (s *SchemeService) AddLabel(ctx context.Context, name, labelName string, atomRefs []string) (bool, error) {
	var label *domain.Label
	added, err := s.mutate(ctx, name, func(e *entry) (*domain.Scheme, error) {
		included, err := domain.NewAtomResolver(e.collection.Atoms()).ResolveAll(atomRefs)
		if err != nil {
			return nil, err
		}
		label = domain.NewLabel(included)
		if labelName != "" {
			if err := label.SetName(labelName); err != nil {
				return nil, err
			}
		}
		if e.collection.ContainsMatch(label) {
			return nil, nil
		}
		if err := e.collection.AddLabel(label); err != nil {
			return nil, err
		}
		return &domain.Scheme{
			Name:        e.scheme.Name,
			Description: e.scheme.Description,
			Atoms:       e.scheme.Atoms,
			Labels:      append(slices.Clone(e.scheme.Labels), label),
		}, nil
	})
	if added {
		s.eventBus.Publish(Event{Type: EventLabelAdded, Scheme: name, Payload: map[string]string{"label": label.String()}})
	}
	return added, err
}

// CanCompute reports whether the atoms named by atomRefs can be derived as
// one set from the scheme's labels
func (s *SchemeService) CanCompute(name string, atomRefs []string) (bool, error) {
	e, err := s.lookup(name)
	if err != nil {
		return false, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	target, err := domain.NewAtomResolver(e.collection.Atoms()).ResolveAll(atomRefs)
	if err != nil {
		return false, err
	}
	ok := e.collection.CanCompute(target)
	s.metrics.ObserveQuery(name, ok)
	return ok, nil
}

// CanComputeLabel reports whether the label called labelName in scheme from
// can be derived from scheme name. An empty from means name itself.
func (s *SchemeService) CanComputeLabel(name, from, labelName string) (bool, error) {
	if from == "" {
		from = name
	}
	source, err := s.lookup(from)
	if err != nil {
		return false, err
	}
	source.mu.RLock()
	label, err := source.collection.LabelByName(labelName)
	source.mu.RUnlock()
	if err != nil {
		return false, err
	}

	e, err := s.lookup(name)
	if err != nil {
		return false, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	ok := e.collection.CanCompute(label)
	s.metrics.ObserveQuery(name, ok)
	return ok, nil
}

// Compare reports whether every label of other can be derived from name and
// the other way around
func (s *SchemeService) Compare(name, other string) (*Comparison, error) {
	e, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	o, err := s.lookup(other)
	if err != nil {
		return nil, err
	}

	// Only read locks are ever held on two entries at once, so a fixed order
	// is enough to avoid deadlock.
	first, second := e, o
	if other < name {
		first, second = o, e
	}
	first.mu.RLock()
	defer first.mu.RUnlock()
	if first != second {
		second.mu.RLock()
		defer second.mu.RUnlock()
	}

	return CompareCollections(name, other, e.collection, o.collection), nil
}

// Compatible lists the other stored schemes sharing name's universe
func (s *SchemeService) Compatible(ctx context.Context, name string) ([]string, error) {
	e, err := s.lookup(name)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	fingerprint := repository.Fingerprint(e.collection.Atoms())
	e.mu.RUnlock()

	names, err := s.repo.SchemesWithUniverse(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(names, func(n string) bool { return n == name }), nil
}

// Import parses a scheme document and stores it. With replace unset an
// existing scheme of the same name is an error.
func (s *SchemeService) Import(ctx context.Context, data []byte, format, source string, replace bool) (*ImportResult, error) {
	c, err := codec.ForFormat(format)
	if err != nil {
		return nil, err
	}
	scheme, err := loader.Parse(data, c)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidScheme, err)
	}
	if replace {
		return s.PutScheme(ctx, scheme, source)
	}
	return s.CreateScheme(ctx, scheme, source)
}

// Export writes a scheme in the given format
func (s *SchemeService) Export(name, format string, w io.Writer) error {
	c, err := codec.ForFormat(format)
	if err != nil {
		return err
	}
	scheme, _, err := s.Scheme(name)
	if err != nil {
		return err
	}
	return c.Export(scheme, w)
}

package repository

import (
	"context"
	"encoding/hex"
	"errors"
	"time"

	"golang.org/x/crypto/blake2b"

	"labelcomposer/internal/domain"
)

// ErrNotFound is returned when a scheme does not exist
var ErrNotFound = errors.New("not found")

// SchemeRecord is a stored scheme with its bookkeeping fields
type SchemeRecord struct {
	ID          string
	Scheme      *domain.Scheme
	Fingerprint string
	Source      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SchemeSummary describes a stored scheme without loading its labels
type SchemeSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Atoms       int       `json:"atoms"`
	Labels      int       `json:"labels"`
	Fingerprint string    `json:"fingerprint"`
	Source      string    `json:"source,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Repository defines the interface for scheme persistence
type Repository interface {
	// Read operations
	ListSchemes(ctx context.Context) ([]SchemeSummary, error)
	GetScheme(ctx context.Context, name string) (*SchemeRecord, error)
	SchemesWithUniverse(ctx context.Context, fingerprint string) ([]string, error)

	// Write operations
	SaveScheme(ctx context.Context, scheme *domain.Scheme, source string) (*SchemeRecord, error)
	DeleteScheme(ctx context.Context, name string) error

	// Close releases resources
	Close() error
}

// Fingerprint identifies a universe independent of scheme and label names.
// Schemes with equal fingerprints can be compared with each other.
func Fingerprint(universe domain.AtomSource) string {
	sum := blake2b.Sum256([]byte(universe.Atoms().Key()))
	return hex.EncodeToString(sum[:])
}

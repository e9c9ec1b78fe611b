package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"labelcomposer/internal/domain"
	"labelcomposer/internal/repository"
)

// ============================================================================
// Null Type Conversion Helpers
// ============================================================================

// nullToString safely converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// stringToNull safely converts string to sql.NullString
func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// ============================================================================
// Scheme Row Scanner
// ============================================================================
//
// CRITICAL: Column order must match between schemeColumns and scanArgs().
// New columns are APPENDED and added in migrate() via addColumnIfNotExists().

const schemeColumns = `s.id, s.name, s.description, s.fingerprint, s.created_at, s.updated_at, s.source`

// schemeRow holds all columns from a scheme query for scanning
type schemeRow struct {
	ID          string
	Name        string
	Description sql.NullString
	Fingerprint string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Source      sql.NullString
}

// scanArgs returns pointers to all fields for sql.Scan()
func (r *schemeRow) scanArgs() []interface{} {
	return []interface{}{
		&r.ID,
		&r.Name,
		&r.Description,
		&r.Fingerprint,
		&r.CreatedAt,
		&r.UpdatedAt,
		&r.Source,
	}
}

func (r *schemeRow) toRecord(atoms []domain.AtomicLabel, labels []*domain.Label) *repository.SchemeRecord {
	return &repository.SchemeRecord{
		ID: r.ID,
		Scheme: &domain.Scheme{
			Name:        r.Name,
			Description: nullToString(r.Description),
			Atoms:       atoms,
			Labels:      labels,
		},
		Fingerprint: r.Fingerprint,
		Source:      nullToString(r.Source),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// ============================================================================
// Atom and Label Columns
// ============================================================================

func atomFromColumns(name string, idx sql.NullInt64) (domain.AtomicLabel, error) {
	if idx.Valid {
		return domain.NewIndexedAtomicLabel(name, int(idx.Int64))
	}
	return domain.NewAtomicLabel(name)
}

// labelColumns encodes a label as its name and the JSON list of positions of
// its atoms within the scheme's atom list
func labelColumns(label *domain.Label, positions map[domain.AtomicLabel]int) (sql.NullString, string, error) {
	members := label.Atoms().Members()
	refs := make([]int, 0, len(members))
	for _, atom := range members {
		pos, ok := positions[atom]
		if !ok {
			return sql.NullString{}, "", &domain.UnknownAtomsError{Label: label, Atoms: domain.NewAtomSet(atom)}
		}
		refs = append(refs, pos)
	}

	data, err := json.Marshal(refs)
	if err != nil {
		return sql.NullString{}, "", fmt.Errorf("failed to marshal label atoms: %w", err)
	}

	var name sql.NullString
	if n, ok := label.Name(); ok {
		name = sql.NullString{String: n, Valid: true}
	}
	return name, string(data), nil
}

func labelFromColumns(name, positions sql.NullString, atoms []domain.AtomicLabel) (*domain.Label, error) {
	var refs []int
	if positions.Valid && positions.String != "" {
		if err := json.Unmarshal([]byte(positions.String), &refs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal label atoms: %w", err)
		}
	}

	members := make([]domain.AtomicLabel, 0, len(refs))
	for _, pos := range refs {
		if pos < 0 || pos >= len(atoms) {
			return nil, fmt.Errorf("label references atom position %d of %d", pos, len(atoms))
		}
		members = append(members, atoms[pos])
	}

	label := domain.NewLabel(domain.NewAtomSet(members...))
	if name.Valid {
		if err := label.SetName(name.String); err != nil {
			return nil, err
		}
	}
	return label, nil
}

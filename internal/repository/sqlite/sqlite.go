package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"labelcomposer/internal/domain"
	"labelcomposer/internal/repository"

	_ "modernc.org/sqlite"
)

// Repository implements repository.Repository using SQLite
type Repository struct {
	db *sql.DB
}

var _ repository.Repository = (*Repository)(nil)

// New creates a new SQLite repository. ":memory:" opens a private in-memory
// database.
func New(dbPath string) (*Repository, error) {
	inMemory := dbPath == ":memory:"
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if inMemory {
		// Every connection would see its own empty database otherwise
		db.SetMaxOpenConns(1)
	}

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schemes (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT,
		fingerprint TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS atoms (
		scheme_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		idx INTEGER,
		PRIMARY KEY (scheme_id, position),
		FOREIGN KEY (scheme_id) REFERENCES schemes(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS labels (
		scheme_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		name TEXT,
		atoms JSON NOT NULL,
		PRIMARY KEY (scheme_id, position),
		FOREIGN KEY (scheme_id) REFERENCES schemes(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_schemes_fingerprint ON schemes(fingerprint);
	`

	if _, err := r.db.Exec(schema); err != nil {
		return err
	}

	// Added after the first release
	return r.addColumnIfNotExists("schemes", "source", "TEXT")
}

func (r *Repository) addColumnIfNotExists(table, column, decl string) error {
	rows, err := r.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return fmt.Errorf("failed to scan column info: %w", err)
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	_, err = r.db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, decl))
	return err
}

// ListSchemes returns summaries of all stored schemes ordered by name
func (r *Repository) ListSchemes(ctx context.Context) ([]repository.SchemeSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+schemeColumns+`,
			(SELECT COUNT(*) FROM atoms a WHERE a.scheme_id = s.id),
			(SELECT COUNT(*) FROM labels l WHERE l.scheme_id = s.id)
		FROM schemes s
		ORDER BY s.name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query schemes: %w", err)
	}
	defer rows.Close()

	summaries := []repository.SchemeSummary{}
	for rows.Next() {
		var (
			row           schemeRow
			atoms, labels int
		)
		if err := rows.Scan(append(row.scanArgs(), &atoms, &labels)...); err != nil {
			return nil, fmt.Errorf("failed to scan scheme: %w", err)
		}
		summaries = append(summaries, repository.SchemeSummary{
			ID:          row.ID,
			Name:        row.Name,
			Description: nullToString(row.Description),
			Atoms:       atoms,
			Labels:      labels,
			Fingerprint: row.Fingerprint,
			Source:      nullToString(row.Source),
			UpdatedAt:   row.UpdatedAt,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schemes: %w", err)
	}
	return summaries, nil
}

// GetScheme loads a scheme with its atoms and labels
func (r *Repository) GetScheme(ctx context.Context, name string) (*repository.SchemeRecord, error) {
	var row schemeRow
	err := r.db.QueryRowContext(ctx, `SELECT `+schemeColumns+` FROM schemes s WHERE s.name = ?`, name).
		Scan(row.scanArgs()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scheme %q: %w", name, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query scheme: %w", err)
	}

	atoms, err := r.loadAtoms(ctx, row.ID)
	if err != nil {
		return nil, err
	}
	labels, err := r.loadLabels(ctx, row.ID, atoms)
	if err != nil {
		return nil, err
	}

	return row.toRecord(atoms, labels), nil
}

func (r *Repository) loadAtoms(ctx context.Context, schemeID string) ([]domain.AtomicLabel, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, idx FROM atoms WHERE scheme_id = ? ORDER BY position
	`, schemeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query atoms: %w", err)
	}
	defer rows.Close()

	var atoms []domain.AtomicLabel
	for rows.Next() {
		var (
			name string
			idx  sql.NullInt64
		)
		if err := rows.Scan(&name, &idx); err != nil {
			return nil, fmt.Errorf("failed to scan atom: %w", err)
		}
		atom, err := atomFromColumns(name, idx)
		if err != nil {
			return nil, err
		}
		atoms = append(atoms, atom)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating atoms: %w", err)
	}
	return atoms, nil
}

func (r *Repository) loadLabels(ctx context.Context, schemeID string, atoms []domain.AtomicLabel) ([]*domain.Label, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, atoms FROM labels WHERE scheme_id = ? ORDER BY position
	`, schemeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query labels: %w", err)
	}
	defer rows.Close()

	var labels []*domain.Label
	for rows.Next() {
		var (
			name      sql.NullString
			positions sql.NullString
		)
		if err := rows.Scan(&name, &positions); err != nil {
			return nil, fmt.Errorf("failed to scan label: %w", err)
		}
		label, err := labelFromColumns(name, positions, atoms)
		if err != nil {
			return nil, err
		}
		labels = append(labels, label)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating labels: %w", err)
	}
	return labels, nil
}

// SchemesWithUniverse returns the names of schemes whose universe has the
// given fingerprint
func (r *Repository) SchemesWithUniverse(ctx context.Context, fingerprint string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name FROM schemes WHERE fingerprint = ? ORDER BY name
	`, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to query schemes: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan scheme name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// SaveScheme inserts or replaces a scheme by name. The scheme keeps its id
// and creation time across replacements.
func (r *Repository) SaveScheme(ctx context.Context, scheme *domain.Scheme, source string) (*repository.SchemeRecord, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	fingerprint := repository.Fingerprint(domain.NewAtomSet(scheme.Atoms...))

	_, err = tx.ExecContext(ctx, `
		INSERT INTO schemes (id, name, description, fingerprint, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			description = excluded.description,
			fingerprint = excluded.fingerprint,
			source = excluded.source,
			updated_at = excluded.updated_at
	`, uuid.NewString(), scheme.Name, stringToNull(scheme.Description), fingerprint,
		stringToNull(source), now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert scheme: %w", err)
	}

	var row schemeRow
	err = tx.QueryRowContext(ctx, `SELECT `+schemeColumns+` FROM schemes s WHERE s.name = ?`, scheme.Name).
		Scan(row.scanArgs()...)
	if err != nil {
		return nil, fmt.Errorf("failed to reload scheme: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM atoms WHERE scheme_id = ?`, row.ID); err != nil {
		return nil, fmt.Errorf("failed to clear atoms: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM labels WHERE scheme_id = ?`, row.ID); err != nil {
		return nil, fmt.Errorf("failed to clear labels: %w", err)
	}

	positions := make(map[domain.AtomicLabel]int, len(scheme.Atoms))
	for i, atom := range scheme.Atoms {
		positions[atom] = i
		idx, ok := atom.Index()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO atoms (scheme_id, position, name, idx) VALUES (?, ?, ?, ?)
		`, row.ID, i, atom.Name(), sql.NullInt64{Int64: int64(idx), Valid: ok})
		if err != nil {
			return nil, fmt.Errorf("failed to insert atom %s: %w", atom, err)
		}
	}

	for i, label := range scheme.Labels {
		name, atoms, err := labelColumns(label, positions)
		if err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO labels (scheme_id, position, name, atoms) VALUES (?, ?, ?, ?)
		`, row.ID, i, name, atoms)
		if err != nil {
			return nil, fmt.Errorf("failed to insert label %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	return row.toRecord(scheme.Atoms, scheme.Labels), nil
}

// DeleteScheme removes a scheme with its atoms and labels
func (r *Repository) DeleteScheme(ctx context.Context, name string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM schemes WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete scheme: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete scheme: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("scheme %q: %w", name, repository.ErrNotFound)
	}
	return nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-pkgz/repeater/v2"
	"github.com/jmoiron/sqlx"

	"github.com/knownav/knownav/pkg/domain"
)

// ConceptRepository maintains the concept frequency and recency table.
// Concepts are keyed by trimmed, case-folded name. Frequency only ever
// grows, one increment per enrichment event mentioning the name.
type ConceptRepository struct {
	db *sqlx.DB
}

// conceptSQL represents a concept row for SQL operations
type conceptSQL struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	Frequency int64     `db:"frequency"`
	LastSeen  time.Time `db:"last_seen"`
}

// NewConceptRepository creates a new concept repository
func NewConceptRepository(database *sqlx.DB) *ConceptRepository {
	return &ConceptRepository{db: database}
}

// NormalizeName produces the storage key for a concept name
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Upsert records one mention of a concept: inserts with frequency 1 on
// first sight, otherwise increments frequency and advances last_seen to the
// later of the stored and observed time. Atomic per name under the
// single-writer assumption. Empty names are ignored.
func (r *ConceptRepository) Upsert(ctx context.Context, name string, observedAt time.Time) error {
	normalized := NormalizeName(name)
	if normalized == "" {
		return nil
	}

	query := `
		INSERT INTO concepts (name, frequency, last_seen)
		VALUES (?, 1, ?)
		ON CONFLICT(name) DO UPDATE SET
			frequency = frequency + 1,
			last_seen = MAX(last_seen, excluded.last_seen)
	`

	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))

	return retrier.Do(ctx, func() error {
		_, err := r.db.ExecContext(ctx, query, normalized, observedAt)
		if err != nil {
			if isLockError(err) {
				return err // repeater will retry this
			}
			return &criticalError{err: fmt.Errorf("upsert concept: %w", err)}
		}
		return nil
	})
}

// Get retrieves a concept by its normalized name
func (r *ConceptRepository) Get(ctx context.Context, name string) (*domain.Concept, error) {
	var sqlConcept conceptSQL
	err := r.db.GetContext(ctx, &sqlConcept,
		"SELECT * FROM concepts WHERE name = ?", NormalizeName(name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("concept %q not found: %w", name, err)
		}
		return nil, fmt.Errorf("get concept: %w", err)
	}

	return &domain.Concept{
		Name:      sqlConcept.Name,
		Frequency: sqlConcept.Frequency,
		LastSeen:  sqlConcept.LastSeen,
	}, nil
}

// Trending returns concepts seen within the window, most frequent first;
// ties broken by recency, then name for determinism.
func (r *ConceptRepository) Trending(ctx context.Context, windowDays, topN int) ([]domain.Concept, error) {
	cutoff := time.Now().AddDate(0, 0, -windowDays)

	query := `
		SELECT * FROM concepts
		WHERE last_seen >= ?
		ORDER BY frequency DESC, last_seen DESC, name ASC
		LIMIT ?
	`
	var sqlConcepts []conceptSQL
	if err := r.db.SelectContext(ctx, &sqlConcepts, query, cutoff, topN); err != nil {
		return nil, fmt.Errorf("get trending concepts: %w", err)
	}

	concepts := make([]domain.Concept, len(sqlConcepts))
	for i, c := range sqlConcepts {
		concepts[i] = domain.Concept{Name: c.Name, Frequency: c.Frequency, LastSeen: c.LastSeen}
	}
	return concepts, nil
}

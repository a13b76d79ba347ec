package knowledge

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sahilm/fuzzy"
	_ "modernc.org/sqlite"

	"github.com/hugo-lorenzo-mato/claimpilot/internal/core"
)

const defaultExampleLimit = 3

// ExampleStore retrieves approved-supplement precedents from a SQLite
// database, ranked by fuzzy match against the query.
type ExampleStore struct {
	db *sql.DB
}

// OpenExampleStore opens (creating if needed) the example database at path.
// ":memory:" is accepted for tests.
func OpenExampleStore(path string) (*ExampleStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening example store: %w", err)
	}
	s := &ExampleStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *ExampleStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS supplement_examples (
			id             TEXT PRIMARY KEY,
			carrier        TEXT NOT NULL,
			description    TEXT NOT NULL,
			justification  TEXT NOT NULL,
			approved_value REAL NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_examples_carrier ON supplement_examples(carrier);
	`)
	if err != nil {
		return fmt.Errorf("migrating example store: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *ExampleStore) Close() error { return s.db.Close() }

// Add inserts or replaces one precedent.
func (s *ExampleStore) Add(ctx context.Context, ex core.SupplementExample) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO supplement_examples
			(id, carrier, description, justification, approved_value)
		VALUES (?, ?, ?, ?, ?)`,
		ex.ID, ex.Carrier, ex.Description, ex.Justification, ex.ApprovedValue)
	if err != nil {
		return fmt.Errorf("storing example %s: %w", ex.ID, err)
	}
	return nil
}

// Retrieve returns the best-matching precedents for the query, optionally
// restricted by carrier. An empty query returns the most valuable examples.
func (s *ExampleStore) Retrieve(ctx context.Context, query string, filter core.ExampleFilter) ([]core.SupplementExample, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultExampleLimit
	}

	candidates, err := s.loadCandidates(ctx, filter.Carrier)
	if err != nil {
		return nil, err
	}
	if query == "" || len(candidates) == 0 {
		if len(candidates) > limit {
			candidates = candidates[:limit]
		}
		return candidates, nil
	}

	matches := fuzzy.FindFrom(query, exampleSource(candidates))
	out := make([]core.SupplementExample, 0, limit)
	for _, m := range matches {
		out = append(out, candidates[m.Index])
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *ExampleStore) loadCandidates(ctx context.Context, carrier string) ([]core.SupplementExample, error) {
	query := `SELECT id, carrier, description, justification, approved_value
		FROM supplement_examples`
	args := []any{}
	if carrier != "" {
		query += ` WHERE carrier = ? COLLATE NOCASE`
		args = append(args, carrier)
	}
	query += ` ORDER BY approved_value DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying examples: %w", err)
	}
	defer rows.Close()

	var out []core.SupplementExample
	for rows.Next() {
		var ex core.SupplementExample
		if err := rows.Scan(&ex.ID, &ex.Carrier, &ex.Description, &ex.Justification, &ex.ApprovedValue); err != nil {
			return nil, fmt.Errorf("scanning example: %w", err)
		}
		out = append(out, ex)
	}
	return out, rows.Err()
}

// exampleSource adapts examples for fuzzy ranking over their descriptions.
type exampleSource []core.SupplementExample

func (s exampleSource) String(i int) string { return s[i].Description + " " + s[i].Justification }
func (s exampleSource) Len() int            { return len(s) }

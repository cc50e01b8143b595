package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/socialads/notegen/internal/domain"
)

// SeedRepository tracks which trending headlines have already been turned
// into articles. Headlines are keyed by title because the aggregator assigns
// no stable identifiers we can rely on across fetches.
type SeedRepository struct {
	db *sqlx.DB
}

// NewSeedRepository creates a repository over the used_seeds table.
func NewSeedRepository(db *sqlx.DB) *SeedRepository {
	return &SeedRepository{db: db}
}

// FilterUsed returns the subset of titles that are already recorded.
func (r *SeedRepository) FilterUsed(ctx context.Context, titles []string) (map[string]bool, error) {
	if len(titles) == 0 {
		return map[string]bool{}, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT title FROM used_seeds WHERE title = ANY($1)`, pq.StringArray(titles))
	if err != nil {
		return nil, fmt.Errorf("query used seeds: %w", err)
	}
	defer rows.Close()

	used := make(map[string]bool)
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, fmt.Errorf("scan used seed: %w", err)
		}
		used[title] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate used seeds: %w", err)
	}

	return used, nil
}

// MarkUsed records the title. Recording the same title twice is a no-op.
func (r *SeedRepository) MarkUsed(ctx context.Context, title string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO used_seeds (title, used_at)
		VALUES ($1, $2)
		ON CONFLICT (title) DO NOTHING
	`, title, domain.NowMillis())
	if err != nil {
		return fmt.Errorf("mark seed %q used: %w", title, err)
	}
	return nil
}

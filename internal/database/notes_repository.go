package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/socialads/notegen/internal/domain"
)

// NoteRepository reads candidate seed notes and flips their consumed flag.
// It is the database-backed CandidateSource for the note pipeline.
type NoteRepository struct {
	db *sqlx.DB
}

// NewNoteRepository creates a repository over the notes table.
func NewNoteRepository(db *sqlx.DB) *NoteRepository {
	return &NoteRepository{db: db}
}

// Next returns the highest-priority unconsumed note: most recent first, ties
// broken by comment count. Returns domain.ErrNotFound when none remain.
//
// No lock or lease is taken; concurrent callers may receive the same note
// before either marks it consumed.
func (r *NoteRepository) Next(ctx context.Context) (domain.Candidate, error) {
	var candidate domain.Candidate
	query := `
		SELECT id, title, content, author, create_timestamp, comment, used
		FROM notes
		WHERE used = false
		ORDER BY create_timestamp DESC, comment DESC
		LIMIT 1
	`

	err := r.db.GetContext(ctx, &candidate, query)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Candidate{}, domain.ErrNotFound
		}
		return domain.Candidate{}, fmt.Errorf("select next note: %w", err)
	}

	return candidate, nil
}

// MarkConsumed idempotently flips the used flag. A second call on the same id
// succeeds without effect; an unknown id returns domain.ErrNotFound.
func (r *NoteRepository) MarkConsumed(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `UPDATE notes SET used = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark note %s consumed: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark note %s consumed: %w", id, err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}

	return nil
}

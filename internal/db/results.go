package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/hpungsan/scribe/internal/errors"
	"github.com/hpungsan/scribe/internal/prompt"
)

// ResultStore holds prompt result slots. It implements pipeline.ResultStore.
//
// Each slot is one row keyed by (transcript_id, prompt_key), where prompt_key
// is the normalized prompt name. Claims and edits bump generation; a commit
// only lands while generation still matches the claim.
type ResultStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewResultStore returns a result store over db.
func NewResultStore(db *sql.DB) *ResultStore {
	return &ResultStore{db: db, now: time.Now}
}

const resultColumns = `transcript_id, prompt_name, text, is_user_edited, is_error,
	running, owner, generation, updated_at`

// Claim marks the slot as running for a new pipeline run and returns its generation.
func (s *ResultStore) Claim(ctx context.Context, transcriptID, name string) (int64, error) {
	query := `
		INSERT INTO prompt_results (
			transcript_id, prompt_key, prompt_name, text, is_user_edited, is_error,
			running, owner, generation, updated_at
		) VALUES (?, ?, ?, '', 0, 0, 1, ?, 1, ?)
		ON CONFLICT (transcript_id, prompt_key) DO UPDATE SET
			generation = generation + 1,
			running = 1,
			owner = excluded.owner,
			prompt_name = excluded.prompt_name,
			updated_at = excluded.updated_at
		RETURNING generation
	`
	var gen int64
	err := s.db.QueryRowContext(ctx, query,
		transcriptID, prompt.Normalize(name), name, string(prompt.OwnerPipeline), s.now().Unix(),
	).Scan(&gen)
	if err != nil {
		return 0, errors.NewPersistence("claim result slot", err)
	}
	return gen, nil
}

// Commit stores a run's output if the slot is still at generation.
func (s *ResultStore) Commit(ctx context.Context, transcriptID, name string, generation int64, text string, isError bool) (bool, error) {
	query := `
		UPDATE prompt_results
		SET text = ?, is_error = ?, is_user_edited = 0, running = 0, owner = ?, updated_at = ?
		WHERE transcript_id = ? AND prompt_key = ? AND generation = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		text, isError, string(prompt.OwnerPipeline), s.now().Unix(),
		transcriptID, prompt.Normalize(name), generation,
	)
	if err != nil {
		return false, errors.NewPersistence("commit result", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, errors.NewPersistence("commit result", err)
	}
	return rowsAffected == 1, nil
}

// Edit stores user text in the slot, creating it if needed.
func (s *ResultStore) Edit(ctx context.Context, transcriptID, name, text string) (*prompt.Result, error) {
	query := `
		INSERT INTO prompt_results (
			transcript_id, prompt_key, prompt_name, text, is_user_edited, is_error,
			running, owner, generation, updated_at
		) VALUES (?, ?, ?, ?, 1, 0, 0, ?, 1, ?)
		ON CONFLICT (transcript_id, prompt_key) DO UPDATE SET
			generation = generation + 1,
			text = excluded.text,
			is_user_edited = 1,
			is_error = 0,
			running = 0,
			owner = excluded.owner,
			updated_at = excluded.updated_at
		RETURNING ` + resultColumns

	r, err := scanResult(s.db.QueryRowContext(ctx, query,
		transcriptID, prompt.Normalize(name), name, text, string(prompt.OwnerUser), s.now().Unix(),
	))
	if err != nil {
		return nil, errors.NewPersistence("edit result", err)
	}
	return r, nil
}

// Get returns one slot.
func (s *ResultStore) Get(ctx context.Context, transcriptID, name string) (*prompt.Result, error) {
	query := `SELECT ` + resultColumns + ` FROM prompt_results WHERE transcript_id = ? AND prompt_key = ?`

	r, err := scanResult(s.db.QueryRowContext(ctx, query, transcriptID, prompt.Normalize(name)))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFound("result", name)
	}
	if err != nil {
		return nil, errors.NewPersistence("get result", err)
	}
	return r, nil
}

// List returns the slots of a transcript ordered by prompt name.
func (s *ResultStore) List(ctx context.Context, transcriptID string) ([]prompt.Result, error) {
	query := `SELECT ` + resultColumns + ` FROM prompt_results WHERE transcript_id = ? ORDER BY prompt_name`

	rows, err := s.db.QueryContext(ctx, query, transcriptID)
	if err != nil {
		return nil, errors.NewPersistence("list results", err)
	}
	defer rows.Close()

	out := []prompt.Result{}
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, errors.NewPersistence("list results", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewPersistence("list results", err)
	}
	return out, nil
}

func scanResult(row scanner) (*prompt.Result, error) {
	var (
		r     prompt.Result
		owner string
	)
	err := row.Scan(
		&r.TranscriptID, &r.Prompt, &r.Text, &r.IsUserEdited, &r.IsError,
		&r.Running, &owner, &r.Generation, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Owner = prompt.Owner(owner)
	return &r, nil
}

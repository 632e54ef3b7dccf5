package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/hpungsan/scribe/internal/errors"
	"github.com/hpungsan/scribe/internal/job"
)

// JobStore is the jobs ledger. It implements job.Store.
type JobStore struct {
	db *sql.DB
}

// NewJobStore returns a job store over db.
func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: db}
}

const jobColumns = `id, audio_path, sample_rate, total_samples, state,
	transcript_id, error, failed_chunk, created_at, updated_at`

// InsertJob stores a new job. A duplicate id is a CONFLICT.
func (s *JobStore) InsertJob(ctx context.Context, j *job.Job) error {
	query := `INSERT INTO jobs (` + jobColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		j.ID, j.AudioPath, j.SampleRate, j.TotalSamples, string(j.State),
		toNullString(j.TranscriptID), toNullString(j.Error), toNullInt64(j.FailedChunk),
		j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return errors.NewConflict(fmt.Sprintf("job %s already exists", j.ID))
		}
		return errors.NewPersistence("insert job", err)
	}
	return nil
}

// GetJob retrieves a job by id.
func (s *JobStore) GetJob(ctx context.Context, id string) (*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`

	j, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFound("job", id)
	}
	if err != nil {
		return nil, errors.NewPersistence("get job", err)
	}
	return j, nil
}

// UpdateJob writes the mutable fields of a job.
// Does NOT change: id, audio_path, sample_rate, total_samples, created_at
func (s *JobStore) UpdateJob(ctx context.Context, j *job.Job) error {
	query := `
		UPDATE jobs
		SET state = ?, transcript_id = ?, error = ?, failed_chunk = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		string(j.State), toNullString(j.TranscriptID), toNullString(j.Error), toNullInt64(j.FailedChunk),
		j.UpdatedAt, j.ID,
	)
	if err != nil {
		return errors.NewPersistence("update job", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewPersistence("update job", err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound("job", j.ID)
	}
	return nil
}

// ListJobs returns jobs newest first, optionally filtered by state.
func (s *JobStore) ListJobs(ctx context.Context, f job.ListFilter) ([]job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any
	if f.State != "" {
		query += ` WHERE state = ?`
		args = append(args, string(f.State))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	// SQLite needs a LIMIT before OFFSET; -1 means unbounded.
	limit := -1
	if f.Limit > 0 {
		limit = f.Limit
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewPersistence("list jobs", err)
	}
	defer rows.Close()

	out := []job.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, errors.NewPersistence("list jobs", err)
		}
		out = append(out, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewPersistence("list jobs", err)
	}
	return out, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*job.Job, error) {
	var (
		j            job.Job
		state        string
		transcriptID sql.NullString
		errText      sql.NullString
		failedChunk  sql.NullInt64
	)
	err := row.Scan(
		&j.ID, &j.AudioPath, &j.SampleRate, &j.TotalSamples, &state,
		&transcriptID, &errText, &failedChunk, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.State = job.State(state)
	j.TranscriptID = transcriptID.String
	j.Error = errText.String
	j.FailedChunk = fromNullInt64(failedChunk)
	return &j, nil
}

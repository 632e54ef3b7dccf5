package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/hpungsan/scribe/internal/errors"
	"github.com/hpungsan/scribe/internal/transcript"
)

// TranscriptIndex catalogues stored transcripts. It implements transcript.Index.
type TranscriptIndex struct {
	db *sql.DB
}

// NewTranscriptIndex returns an index over db.
func NewTranscriptIndex(db *sql.DB) *TranscriptIndex {
	return &TranscriptIndex{db: db}
}

// InsertTranscript records a newly written transcript file.
func (x *TranscriptIndex) InsertTranscript(ctx context.Context, rec transcript.Record) error {
	query := `
		INSERT INTO transcripts (id, job_id, file_name, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := x.db.ExecContext(ctx, query, rec.ID, rec.JobID, rec.FileName, rec.SizeBytes, rec.CreatedAt)
	if err != nil {
		if isUniqueConstraintError(err) {
			return errors.NewConflict(fmt.Sprintf("transcript %s already indexed", rec.ID))
		}
		return errors.NewPersistence("index transcript", err)
	}
	return nil
}

// GetTranscript returns the index entry for id.
func (x *TranscriptIndex) GetTranscript(ctx context.Context, id string) (*transcript.Record, error) {
	query := `
		SELECT id, job_id, file_name, size_bytes, created_at
		FROM transcripts
		WHERE id = ?
	`
	var rec transcript.Record
	err := x.db.QueryRowContext(ctx, query, id).Scan(&rec.ID, &rec.JobID, &rec.FileName, &rec.SizeBytes, &rec.CreatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFound("transcript", id)
	}
	if err != nil {
		return nil, errors.NewPersistence("get transcript", err)
	}
	return &rec, nil
}

// ListTranscripts returns every entry, newest first.
func (x *TranscriptIndex) ListTranscripts(ctx context.Context) ([]transcript.Record, error) {
	query := `
		SELECT id, job_id, file_name, size_bytes, created_at
		FROM transcripts
		ORDER BY created_at DESC, id DESC
	`
	rows, err := x.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.NewPersistence("list transcripts", err)
	}
	defer rows.Close()

	out := []transcript.Record{}
	for rows.Next() {
		var rec transcript.Record
		if err := rows.Scan(&rec.ID, &rec.JobID, &rec.FileName, &rec.SizeBytes, &rec.CreatedAt); err != nil {
			return nil, errors.NewPersistence("list transcripts", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewPersistence("list transcripts", err)
	}
	return out, nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite returns "UNIQUE constraint failed: ..." for unique violations
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// toNullString maps "" to NULL.
func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// toNullInt64 maps nil to NULL.
func toNullInt64(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

// fromNullInt64 converts a sql.NullInt64 to *int.
func fromNullInt64(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

// Package ops holds the request/response operations shared by the CLI, the
// MCP server and the web UI.
package ops

import (
	"strings"

	"go.uber.org/zap"

	"github.com/hpungsan/scribe/internal/checkpoint"
	"github.com/hpungsan/scribe/internal/config"
	"github.com/hpungsan/scribe/internal/errors"
	"github.com/hpungsan/scribe/internal/job"
	"github.com/hpungsan/scribe/internal/logging"
	"github.com/hpungsan/scribe/internal/pipeline"
	"github.com/hpungsan/scribe/internal/prompt"
	"github.com/hpungsan/scribe/internal/transcript"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// Service wires the stores and engines behind every operation.
type Service struct {
	Config      *config.Config
	Transcripts *transcript.Store
	Prompts     *prompt.Registry
	Pipeline    *pipeline.Pipeline
	Jobs        *job.Orchestrator
	Checkpoints *checkpoint.Store

	// ExportsDir is the only directory exports may be written to
	ExportsDir string

	Logger *zap.Logger
}

func (s *Service) logger() *zap.Logger {
	return logging.OrNop(s.Logger)
}

// page applies limit defaults and bounds.
func page(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return limit, max(offset, 0)
}

// paginate slices items for the requested page.
func paginate[T any](items []T, limit, offset int) ([]T, Pagination) {
	limit, offset = page(limit, offset)
	total := len(items)

	start := min(offset, total)
	end := min(start+limit, total)
	out := items[start:end]
	if out == nil {
		out = []T{}
	}

	return out, Pagination{
		Limit:   limit,
		Offset:  offset,
		HasMore: end < total,
		Total:   total,
	}
}

// requireField returns INVALID_REQUEST when value is blank.
func requireField(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", errors.NewInvalidRequest(name + " is required")
	}
	return value, nil
}

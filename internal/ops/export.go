package ops

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/hpungsan/scribe/internal/errors"
	"github.com/hpungsan/scribe/internal/fileio"
)

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	TranscriptID   string
	Path           string // optional, default: <exports>/<transcript_id>-<timestamp>.md
	IncludeResults bool
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Bytes      int    `json:"bytes"`
	Results    int    `json:"results"`
	ExportedAt int64  `json:"exported_at"`
}

// Export writes a decrypted transcript, and optionally its prompt results, to
// a markdown file in the exports directory.
func (s *Service) Export(ctx context.Context, input ExportInput) (*ExportOutput, error) {
	id, err := requireField("transcript_id", input.TranscriptID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	exportPath := input.Path
	if exportPath == "" {
		exportPath = filepath.Join(s.ExportsDir,
			fmt.Sprintf("%s-%s.md", SanitizeForFilename(id), now.Format("2006-01-02T150405")))
	}

	// Validate ALL paths (both user-provided and default)
	if err := ValidateExportPath(exportPath, s.ExportsDir); err != nil {
		return nil, err
	}

	fetched, err := s.FetchTranscript(ctx, FetchTranscriptInput{ID: id, IncludeResults: input.IncludeResults})
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Transcript %s\n\n", fetched.ID)
	fmt.Fprintf(&b, "- Job: %s\n", fetched.JobID)
	fmt.Fprintf(&b, "- Created: %s\n\n", time.Unix(fetched.CreatedAt, 0).UTC().Format(time.RFC3339))
	b.WriteString(strings.TrimSpace(fetched.Text))
	b.WriteString("\n")
	for _, r := range fetched.Results {
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", r.Prompt, strings.TrimSpace(r.Text))
	}

	if err := fileio.EnsureDir(s.ExportsDir); err != nil {
		return nil, errors.NewPersistence("create exports directory", err)
	}
	data := []byte(b.String())
	if err := fileio.WriteAtomic(exportPath, data, 0600); err != nil {
		return nil, errors.NewPersistence("write export", err)
	}

	return &ExportOutput{
		Path:       exportPath,
		Bytes:      len(data),
		Results:    len(fetched.Results),
		ExportedAt: now.Unix(),
	}, nil
}

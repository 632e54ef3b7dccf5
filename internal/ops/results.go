package ops

import (
	"context"

	"github.com/hpungsan/scribe/internal/pipeline"
	"github.com/hpungsan/scribe/internal/prompt"
)

// RunPrompts runs every enabled prompt against a stored transcript.
func (s *Service) RunPrompts(ctx context.Context, transcriptID string) (*pipeline.Summary, error) {
	id, err := requireField("transcript_id", transcriptID)
	if err != nil {
		return nil, err
	}
	text, err := s.Transcripts.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Pipeline.RunAll(ctx, id, text)
}

// RerunPromptInput contains parameters for the RerunPrompt operation.
type RerunPromptInput struct {
	TranscriptID string
	Prompt       string
}

// RerunPrompt runs one prompt again, overwriting only its slot, including a
// user edit.
func (s *Service) RerunPrompt(ctx context.Context, input RerunPromptInput) (*pipeline.Outcome, error) {
	id, err := requireField("transcript_id", input.TranscriptID)
	if err != nil {
		return nil, err
	}
	name, err := requireField("prompt", input.Prompt)
	if err != nil {
		return nil, err
	}
	if _, err := s.Prompts.Get(name); err != nil {
		return nil, err
	}

	text, err := s.Transcripts.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Pipeline.RunOne(ctx, id, name, text)
}

// EditResultInput contains parameters for the EditResult operation.
type EditResultInput struct {
	TranscriptID string
	Prompt       string
	Text         string
}

// EditResult stores user text in a result slot.
func (s *Service) EditResult(ctx context.Context, input EditResultInput) (*prompt.Result, error) {
	id, err := requireField("transcript_id", input.TranscriptID)
	if err != nil {
		return nil, err
	}
	name, err := requireField("prompt", input.Prompt)
	if err != nil {
		return nil, err
	}
	if _, err := s.Transcripts.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.Pipeline.Edit(ctx, id, name, input.Text)
}

// ListResultsOutput contains the result of the ListResults operation.
type ListResultsOutput struct {
	TranscriptID string          `json:"transcript_id"`
	Items        []prompt.Result `json:"items"`
}

// ListResults returns every result slot of a transcript.
func (s *Service) ListResults(ctx context.Context, transcriptID string) (*ListResultsOutput, error) {
	id, err := requireField("transcript_id", transcriptID)
	if err != nil {
		return nil, err
	}
	if _, err := s.Transcripts.Get(ctx, id); err != nil {
		return nil, err
	}

	items, err := s.Pipeline.List(ctx, id)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []prompt.Result{}
	}
	return &ListResultsOutput{TranscriptID: id, Items: items}, nil
}

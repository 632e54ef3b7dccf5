package ops

import (
	"context"

	"github.com/hpungsan/scribe/internal/prompt"
	"github.com/hpungsan/scribe/internal/transcript"
)

// ListTranscriptsInput contains parameters for the ListTranscripts operation.
type ListTranscriptsInput struct {
	Limit  int // default: 20, max: 100
	Offset int // default: 0
}

// ListTranscriptsOutput contains the result of the ListTranscripts operation.
type ListTranscriptsOutput struct {
	Items      []transcript.Record `json:"items"`
	Pagination Pagination          `json:"pagination"`
	Sort       string              `json:"sort"`
}

// ListTranscripts returns transcript metadata, newest first. Nothing is decrypted.
func (s *Service) ListTranscripts(ctx context.Context, input ListTranscriptsInput) (*ListTranscriptsOutput, error) {
	recs, err := s.Transcripts.List(ctx)
	if err != nil {
		return nil, err
	}

	items, p := paginate(recs, input.Limit, input.Offset)
	return &ListTranscriptsOutput{
		Items:      items,
		Pagination: p,
		Sort:       "created_at_desc",
	}, nil
}

// FetchTranscriptInput contains parameters for the FetchTranscript operation.
type FetchTranscriptInput struct {
	ID             string
	IncludeText    *bool // default: true (nil means default)
	IncludeResults bool
}

// FetchTranscriptOutput contains the result of the FetchTranscript operation.
type FetchTranscriptOutput struct {
	transcript.Record                 // embedded (copy, not pointer)
	Text              string          `json:"text,omitempty"`
	Chars             int             `json:"chars"`
	TokensEstimate    int             `json:"tokens_estimate"`
	Results           []prompt.Result `json:"results,omitempty"`
}

// FetchTranscript decrypts a transcript. A wrong key or altered file fails
// with DECRYPTION.
func (s *Service) FetchTranscript(ctx context.Context, input FetchTranscriptInput) (*FetchTranscriptOutput, error) {
	id, err := requireField("id", input.ID)
	if err != nil {
		return nil, err
	}

	rec, err := s.Transcripts.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	text, err := s.Transcripts.Read(ctx, id)
	if err != nil {
		return nil, err
	}

	output := &FetchTranscriptOutput{
		Record:         *rec,
		Text:           text,
		Chars:          prompt.CountChars(text),
		TokensEstimate: prompt.EstimateTokens(text),
	}

	includeText := true
	if input.IncludeText != nil {
		includeText = *input.IncludeText
	}
	if !includeText {
		output.Text = ""
	}

	if input.IncludeResults {
		results, err := s.Pipeline.List(ctx, id)
		if err != nil {
			return nil, err
		}
		output.Results = results
	}

	return output, nil
}

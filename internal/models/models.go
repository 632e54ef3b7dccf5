// Package models exposes the speech-to-text and text-completion capabilities
// the core consumes, and their remote API adapters.
package models

import "context"

// SpeechToText turns one chunk of normalized mono samples into text.
type SpeechToText interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error)
}

// TextCompletion answers a single prompt with at most maxTokens of output.
type TextCompletion interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// TranscribeFunc adapts a function to SpeechToText.
type TranscribeFunc func(ctx context.Context, samples []float32, sampleRate int) (string, error)

// Transcribe implements SpeechToText.
func (f TranscribeFunc) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	return f(ctx, samples, sampleRate)
}

// CompleteFunc adapts a function to TextCompletion.
type CompleteFunc func(ctx context.Context, prompt string, maxTokens int) (string, error)

// Complete implements TextCompletion.
func (f CompleteFunc) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return f(ctx, prompt, maxTokens)
}

package models

import (
	"bytes"
	"context"
	stderrors "errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hpungsan/scribe/internal/audio"
)

func openAIClient(o Options) openai.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(o.OpenAIAPIKey),
		option.WithMaxRetries(o.MaxRetries),
	}
	if o.OpenAIBaseURL != "" {
		opts = append(opts, option.WithBaseURL(o.OpenAIBaseURL))
	}
	if o.RequestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(o.RequestTimeout))
	}
	return openai.NewClient(opts...)
}

// OpenAISpeech transcribes chunks with the audio transcriptions endpoint.
// Each chunk is uploaded as a standalone WAV file.
type OpenAISpeech struct {
	client   openai.Client
	model    string
	language string
}

// NewOpenAISpeech returns an adapter for o.STTModel.
func NewOpenAISpeech(o Options) *OpenAISpeech {
	return &OpenAISpeech{client: openAIClient(o), model: o.STTModel, language: o.STTLanguage}
}

// Transcribe implements SpeechToText.
func (s *OpenAISpeech) Transcribe(ctx context.Context, samples []float32, sampleRate int) (string, error) {
	wav := audio.EncodeWAV(audio.FromFloat32(samples), sampleRate)

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(wav), "chunk.wav", "audio/wav"),
		Model: openai.AudioModel(s.model),
	}
	if s.language != "" {
		params.Language = openai.String(s.language)
	}

	resp, err := s.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

// OpenAICompletion answers prompts with chat completions.
type OpenAICompletion struct {
	client openai.Client
	model  string
}

// NewOpenAICompletion returns an adapter for o.CompletionModel.
func NewOpenAICompletion(o Options) *OpenAICompletion {
	return &OpenAICompletion{client: openAIClient(o), model: o.CompletionModel}
}

// Complete implements TextCompletion.
func (c *OpenAICompletion) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model:               openai.ChatModel(c.model),
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", stderrors.New("completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

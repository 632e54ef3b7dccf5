package models

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/scribe/internal/config"
	"github.com/hpungsan/scribe/internal/errors"
	"github.com/hpungsan/scribe/internal/logging"
)

// Environment variables holding API keys. Keys are never read from config files.
const (
	EnvOpenAIKey    = "OPENAI_API_KEY"
	EnvAnthropicKey = "ANTHROPIC_API_KEY"
)

// Options selects and configures the remote adapters.
type Options struct {
	STTProvider        string
	STTModel           string
	STTLanguage        string
	CompletionProvider string
	CompletionModel    string

	OpenAIAPIKey     string
	AnthropicAPIKey  string
	OpenAIBaseURL    string
	AnthropicBaseURL string

	RequestTimeout time.Duration
	MaxRetries     int
}

// OptionsFromConfig builds Options from config plus API keys looked up with getenv.
func OptionsFromConfig(cfg *config.Config, getenv func(string) string) Options {
	return Options{
		STTProvider:        cfg.STTProvider,
		STTModel:           cfg.STTModel,
		STTLanguage:        cfg.STTLanguage,
		CompletionProvider: cfg.CompletionProvider,
		CompletionModel:    cfg.CompletionModel,
		OpenAIAPIKey:       getenv(EnvOpenAIKey),
		AnthropicAPIKey:    getenv(EnvAnthropicKey),
		OpenAIBaseURL:      cfg.OpenAIBaseURL,
		AnthropicBaseURL:   cfg.AnthropicBaseURL,
		RequestTimeout:     cfg.RequestTimeout(),
		MaxRetries:         2,
	}
}

// Provider owns the model capabilities for the session. Initialize must run
// before either capability is handed out; it is idempotent and safe to call
// from multiple goroutines.
type Provider struct {
	opts   Options
	logger *zap.Logger

	once  sync.Once
	err   error
	ready atomic.Bool

	stt        SpeechToText
	sttErr     error
	completion TextCompletion
	compErr    error
}

// NewProvider returns an uninitialized provider.
func NewProvider(opts Options, logger *zap.Logger) *Provider {
	return &Provider{opts: opts, logger: logging.OrNop(logger)}
}

// NewStaticProvider returns an initialized provider serving the given
// capabilities. A nil capability reports MODEL_UNAVAILABLE.
func NewStaticProvider(stt SpeechToText, completion TextCompletion) *Provider {
	p := &Provider{logger: zap.NewNop(), stt: stt, completion: completion}
	if stt == nil {
		p.sttErr = errors.NewModelUnavailable("speech-to-text is not configured")
	}
	if completion == nil {
		p.compErr = errors.NewModelUnavailable("text completion is not configured")
	}
	p.once.Do(func() {})
	p.ready.Store(true)
	return p
}

// Initialize builds the configured adapters. A missing API key makes only
// the affected capability unavailable; an unknown provider name is an error.
func (p *Provider) Initialize() error {
	p.once.Do(func() {
		p.err = p.build()
		p.ready.Store(true)
	})
	return p.err
}

func (p *Provider) build() error {
	o := p.opts

	switch o.STTProvider {
	case config.ProviderOpenAI:
		if o.OpenAIAPIKey == "" {
			p.sttErr = errors.NewModelUnavailable(fmt.Sprintf("speech-to-text needs %s", EnvOpenAIKey))
		} else {
			p.stt = NewOpenAISpeech(o)
		}
	default:
		return errors.NewInvalidRequest(fmt.Sprintf("unknown stt provider: %q", o.STTProvider))
	}

	switch o.CompletionProvider {
	case config.ProviderOpenAI:
		if o.OpenAIAPIKey == "" {
			p.compErr = errors.NewModelUnavailable(fmt.Sprintf("text completion needs %s", EnvOpenAIKey))
		} else {
			p.completion = NewOpenAICompletion(o)
		}
	case config.ProviderAnthropic:
		if o.AnthropicAPIKey == "" {
			p.compErr = errors.NewModelUnavailable(fmt.Sprintf("text completion needs %s", EnvAnthropicKey))
		} else {
			p.completion = NewAnthropicCompletion(o)
		}
	default:
		return errors.NewInvalidRequest(fmt.Sprintf("unknown completion provider: %q", o.CompletionProvider))
	}

	p.logger.Info("model provider initialized",
		zap.String("stt_provider", o.STTProvider),
		zap.String("stt_model", o.STTModel),
		zap.Bool("stt_available", p.stt != nil),
		zap.String("completion_provider", o.CompletionProvider),
		zap.String("completion_model", o.CompletionModel),
		zap.Bool("completion_available", p.completion != nil),
	)
	return nil
}

// SpeechToText returns the speech-to-text capability.
func (p *Provider) SpeechToText() (SpeechToText, error) {
	if !p.ready.Load() {
		return nil, errors.NewModelUnavailable("model provider not initialized")
	}
	if p.err != nil {
		return nil, p.err
	}
	if p.stt == nil {
		return nil, p.sttErr
	}
	return p.stt, nil
}

// TextCompletion returns the text-completion capability.
func (p *Provider) TextCompletion() (TextCompletion, error) {
	if !p.ready.Load() {
		return nil, errors.NewModelUnavailable("model provider not initialized")
	}
	if p.err != nil {
		return nil, p.err
	}
	if p.completion == nil {
		return nil, p.compErr
	}
	return p.completion, nil
}

// DeferredSpeechToText returns a SpeechToText that looks the capability up on
// every call, so consumers built at startup see MODEL_UNAVAILABLE only when
// they actually transcribe.
func (p *Provider) DeferredSpeechToText() SpeechToText {
	return TranscribeFunc(func(ctx context.Context, samples []float32, sampleRate int) (string, error) {
		stt, err := p.SpeechToText()
		if err != nil {
			return "", err
		}
		return stt.Transcribe(ctx, samples, sampleRate)
	})
}

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Provider names accepted by stt_provider and completion_provider.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds application configuration.
type Config struct {
	// ChunkDurationSeconds is the length of one transcription chunk.
	ChunkDurationSeconds int `json:"chunk_duration_seconds" validate:"gte=1,lte=600"`

	// ModelSampleRate is the sample rate the speech-to-text model expects.
	ModelSampleRate int `json:"model_sample_rate" validate:"gte=8000,lte=192000"`

	// CaptureSampleRate is the rate of PCM frames read from the capture device.
	// Recordings whose rate differs from ModelSampleRate are rejected at transcription time.
	CaptureSampleRate int `json:"capture_sample_rate" validate:"gte=8000,lte=192000"`

	// CaptureFrameSamples is the number of samples read per device frame.
	CaptureFrameSamples int `json:"capture_frame_samples" validate:"gte=64,lte=65536"`

	// PromptWorkers bounds concurrent completion requests during a prompt fan-out.
	PromptWorkers int `json:"prompt_workers" validate:"gte=1,lte=64"`

	// PromptMaxTokens is the output-length bound passed to the completion model.
	PromptMaxTokens int `json:"prompt_max_tokens" validate:"gte=1,lte=32768"`

	// PromptMaxChars limits the length of a prompt template.
	PromptMaxChars int `json:"prompt_max_chars" validate:"gte=1"`

	// CheckpointTTLDays is the age after which orphaned checkpoints are swept.
	// 0 disables automatic sweeping at startup.
	CheckpointTTLDays int `json:"checkpoint_ttl_days" validate:"gte=0"`

	// STTProvider selects the speech-to-text backend.
	STTProvider string `json:"stt_provider" validate:"oneof=openai"`

	// STTModel is the speech-to-text model name.
	STTModel string `json:"stt_model" validate:"required"`

	// STTLanguage is an optional ISO-639-1 hint for the speech-to-text model.
	STTLanguage string `json:"stt_language,omitempty"`

	// CompletionProvider selects the text-completion backend.
	CompletionProvider string `json:"completion_provider" validate:"oneof=openai anthropic"`

	// CompletionModel is the text-completion model name.
	CompletionModel string `json:"completion_model" validate:"required"`

	// OpenAIBaseURL overrides the OpenAI API endpoint (local gateways, tests).
	OpenAIBaseURL string `json:"openai_base_url,omitempty" validate:"omitempty,url"`

	// AnthropicBaseURL overrides the Anthropic API endpoint.
	AnthropicBaseURL string `json:"anthropic_base_url,omitempty" validate:"omitempty,url"`

	// RequestTimeoutSeconds bounds a single model request.
	RequestTimeoutSeconds int `json:"request_timeout_seconds" validate:"gte=1"`

	// EventBuffer is the per-subscriber buffer of the event bus.
	EventBuffer int `json:"event_buffer" validate:"gte=1"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level" validate:"oneof=debug info warn error"`

	// LogConsole mirrors logs to stderr in addition to the log file.
	LogConsole bool `json:"log_console,omitempty"`

	// LogMaxSizeMB, LogMaxBackups and LogMaxAgeDays control log file rotation.
	LogMaxSizeMB  int `json:"log_max_size_mb" validate:"gte=1"`
	LogMaxBackups int `json:"log_max_backups" validate:"gte=0"`
	LogMaxAgeDays int `json:"log_max_age_days" validate:"gte=0"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited). Only set if you experience contention.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty" validate:"gte=0"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty" validate:"gte=0"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ChunkDurationSeconds:  30,
		ModelSampleRate:       16000,
		CaptureSampleRate:     16000,
		CaptureFrameSamples:   1024,
		PromptWorkers:         4,
		PromptMaxTokens:       512,
		PromptMaxChars:        8000,
		CheckpointTTLDays:     30,
		STTProvider:           ProviderOpenAI,
		STTModel:              "whisper-1",
		CompletionProvider:    ProviderOpenAI,
		CompletionModel:       "gpt-4o-mini",
		RequestTimeoutSeconds: 600,
		EventBuffer:           64,
		LogLevel:              "info",
		LogMaxSizeMB:          10,
		LogMaxBackups:         3,
		LogMaxAgeDays:         28,
	}
}

// RequestTimeout returns RequestTimeoutSeconds as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// CheckpointTTL returns CheckpointTTLDays as a duration (0 when disabled).
func (c *Config) CheckpointTTL() time.Duration {
	return time.Duration(c.CheckpointTTLDays) * 24 * time.Hour
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.scribe.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.scribe) and repo (.scribe) directories.
// Repo config is found by walking upward from startDir to find the nearest .scribe/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	cfg := Merge(Merge(DefaultConfig(), global), repo)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindRepoConfig walks upward from startDir to find the nearest .scribe/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".scribe", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	raw, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	cfg := Merge(DefaultConfig(), raw)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.ChunkDurationSeconds = mergeInt(base.ChunkDurationSeconds, overlay.ChunkDurationSeconds)
	result.ModelSampleRate = mergeInt(base.ModelSampleRate, overlay.ModelSampleRate)
	result.CaptureSampleRate = mergeInt(base.CaptureSampleRate, overlay.CaptureSampleRate)
	result.CaptureFrameSamples = mergeInt(base.CaptureFrameSamples, overlay.CaptureFrameSamples)
	result.PromptWorkers = mergeInt(base.PromptWorkers, overlay.PromptWorkers)
	result.PromptMaxTokens = mergeInt(base.PromptMaxTokens, overlay.PromptMaxTokens)
	result.PromptMaxChars = mergeInt(base.PromptMaxChars, overlay.PromptMaxChars)
	result.CheckpointTTLDays = mergeInt(base.CheckpointTTLDays, overlay.CheckpointTTLDays)
	result.RequestTimeoutSeconds = mergeInt(base.RequestTimeoutSeconds, overlay.RequestTimeoutSeconds)
	result.EventBuffer = mergeInt(base.EventBuffer, overlay.EventBuffer)
	result.LogMaxSizeMB = mergeInt(base.LogMaxSizeMB, overlay.LogMaxSizeMB)
	result.LogMaxBackups = mergeInt(base.LogMaxBackups, overlay.LogMaxBackups)
	result.LogMaxAgeDays = mergeInt(base.LogMaxAgeDays, overlay.LogMaxAgeDays)
	result.DBMaxOpenConns = mergeInt(base.DBMaxOpenConns, overlay.DBMaxOpenConns)
	result.DBMaxIdleConns = mergeInt(base.DBMaxIdleConns, overlay.DBMaxIdleConns)

	result.STTProvider = mergeString(base.STTProvider, overlay.STTProvider)
	result.STTModel = mergeString(base.STTModel, overlay.STTModel)
	result.STTLanguage = mergeString(base.STTLanguage, overlay.STTLanguage)
	result.CompletionProvider = mergeString(base.CompletionProvider, overlay.CompletionProvider)
	result.CompletionModel = mergeString(base.CompletionModel, overlay.CompletionModel)
	result.OpenAIBaseURL = mergeString(base.OpenAIBaseURL, overlay.OpenAIBaseURL)
	result.AnthropicBaseURL = mergeString(base.AnthropicBaseURL, overlay.AnthropicBaseURL)
	result.LogLevel = mergeString(base.LogLevel, overlay.LogLevel)

	// Booleans: overlay wins if true, else base
	result.LogConsole = base.LogConsole || overlay.LogConsole

	// Arrays: merge and deduplicate
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

func mergeInt(base, overlay int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

func mergeString(base, overlay string) string {
	if s := strings.TrimSpace(overlay); s != "" {
		return s
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}

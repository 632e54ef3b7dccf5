package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hpungsan/scribe/internal/checkpoint"
	"github.com/hpungsan/scribe/internal/config"
	"github.com/hpungsan/scribe/internal/db"
	"github.com/hpungsan/scribe/internal/engine"
	"github.com/hpungsan/scribe/internal/events"
	"github.com/hpungsan/scribe/internal/job"
	"github.com/hpungsan/scribe/internal/logging"
	"github.com/hpungsan/scribe/internal/models"
	"github.com/hpungsan/scribe/internal/ops"
	"github.com/hpungsan/scribe/internal/pipeline"
	"github.com/hpungsan/scribe/internal/prompt"
	"github.com/hpungsan/scribe/internal/transcript"
	"github.com/hpungsan/scribe/internal/vault"
)

// Files and directories under the base directory.
const (
	keyFile     = "key.key"
	promptsFile = "prompts.json"
	exportsDir  = "exports"
)

// app holds the process-wide resources shared by every command.
type app struct {
	baseDir string
	cfg     *config.Config
	logger  *zap.Logger
	db      *sql.DB
	bus     *events.Bus
	svc     *ops.Service
}

// resolveBaseDir returns $SCRIBE_HOME or ~/.scribe.
func resolveBaseDir() (string, error) {
	if dir := os.Getenv("SCRIBE_HOME"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".scribe"), nil
}

// openApp loads configuration and builds every component rooted at baseDir.
// Model providers come from newProvider so tests can substitute fakes.
func openApp(baseDir, workDir string, newProvider func(*config.Config, *zap.Logger) *models.Provider) (*app, error) {
	cfg, err := config.LoadWithRepo(baseDir, workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	database, err := db.Init(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	db.ConfigurePool(database, cfg)

	logger, err := logging.New(baseDir, cfg)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to open log: %w", err)
	}

	a := &app{
		baseDir: baseDir,
		cfg:     cfg,
		logger:  logger,
		db:      database,
		bus:     events.NewBus(cfg.EventBuffer),
	}

	provider := newProvider(cfg, logger)
	if err := provider.Initialize(); err != nil {
		a.Close()
		return nil, err
	}

	a.svc, err = a.buildService(provider)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// defaultProvider builds the remote model adapters from config and environment.
func defaultProvider(cfg *config.Config, logger *zap.Logger) *models.Provider {
	return models.NewProvider(models.OptionsFromConfig(cfg, os.Getenv), logger)
}

func (a *app) buildService(provider *models.Provider) (*ops.Service, error) {
	cfg := a.cfg
	audioDir := filepath.Join(a.baseDir, db.AudioDir)

	checkpoints, err := checkpoint.New(audioDir)
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(engine.Options{
		ChunkDurationSeconds: cfg.ChunkDurationSeconds,
		ModelSampleRate:      cfg.ModelSampleRate,
	}, checkpoints, provider.DeferredSpeechToText(), a.bus, a.logger.Named("engine"))
	if err != nil {
		return nil, err
	}

	keys := vault.NewKeyProvider(filepath.Join(a.baseDir, keyFile))
	cipher, err := vault.NewCipher(keys)
	if err != nil {
		return nil, err
	}

	transcripts, err := transcript.NewStore(filepath.Join(a.baseDir, db.TranscriptsDir), cipher, db.NewTranscriptIndex(a.db))
	if err != nil {
		return nil, err
	}

	prompts, err := prompt.Open(filepath.Join(a.baseDir, promptsFile), cfg.PromptMaxChars)
	if err != nil {
		return nil, err
	}

	pipe := pipeline.New(pipeline.Options{
		Workers:   cfg.PromptWorkers,
		MaxTokens: cfg.PromptMaxTokens,
	}, prompts, provider, db.NewResultStore(a.db), a.bus, a.logger.Named("pipeline"))

	jobs, err := job.New(job.Config{
		AudioDir:          audioDir,
		CaptureSampleRate: cfg.CaptureSampleRate,
	}, db.NewJobStore(a.db), eng, transcripts, pipe, a.bus, a.logger.Named("job"))
	if err != nil {
		return nil, err
	}

	return &ops.Service{
		Config:      cfg,
		Transcripts: transcripts,
		Prompts:     prompts,
		Pipeline:    pipe,
		Jobs:        jobs,
		Checkpoints: checkpoints,
		ExportsDir:  filepath.Join(a.baseDir, exportsDir),
		Logger:      a.logger.Named("ops"),
	}, nil
}

// sweepOrphans removes checkpoints older than the configured TTL. Failures
// are logged and never block startup.
func (a *app) sweepOrphans() {
	if a.cfg.CheckpointTTLDays <= 0 {
		return
	}
	out, err := a.svc.Sweep(ops.SweepInput{})
	if err != nil {
		a.logger.Warn("checkpoint sweep failed", zap.Error(err))
		return
	}
	if len(out.Removed) > 0 {
		a.logger.Info("checkpoint sweep", zap.Strings("removed", out.Removed))
	}
}

// Close releases the database, the event bus and the log.
func (a *app) Close() {
	if a.bus != nil {
		a.bus.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

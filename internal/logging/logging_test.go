package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/scribe/internal/config"
)

func TestNew_WritesToRotatingFile(t *testing.T) {
	baseDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.LogLevel = "debug"

	logger, err := New(baseDir, cfg)
	require.NoError(t, err)

	logger.Info("chunk transcribed")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(filepath.Join(baseDir, "logs", FileName))
	require.NoError(t, err)
	if !strings.Contains(string(data), `"msg":"chunk transcribed"`) {
		t.Errorf("log file = %q, want JSON line with message", string(data))
	}
}

func TestNew_LevelFilters(t *testing.T) {
	baseDir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.LogLevel = "warn"

	logger, err := New(baseDir, cfg)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(filepath.Join(baseDir, "logs", FileName))
	require.NoError(t, err)
	if strings.Contains(string(data), "hidden") {
		t.Error("info entry written at warn level")
	}
	if !strings.Contains(string(data), "shown") {
		t.Error("warn entry missing")
	}
}

func TestNew_BadLevel(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LogLevel = "loud"

	if _, err := New(t.TempDir(), cfg); err == nil {
		t.Error("New should reject unknown level")
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Error("OrNop(nil) returned nil")
	}
}

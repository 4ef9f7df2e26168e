package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("LOG_DEV", "1")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_DIR", "")

	cfg := ConfigFromEnv("agent")
	require.True(t, cfg.Dev)
	require.Equal(t, "debug", cfg.Level)
	require.Equal(t, "agent", cfg.Name)

	t.Setenv("LOG_DEV", "")
	t.Setenv("LOG_LEVEL", "warn")
	cfg = ConfigFromEnv("agent")
	require.False(t, cfg.Dev)
	require.Equal(t, "warn", cfg.Level)
}

func TestLevelFromString(t *testing.T) {
	require.Equal(t, zapcore.DebugLevel, levelFromString("debug"))
	require.Equal(t, zapcore.WarnLevel, levelFromString("warning"))
	require.Equal(t, zapcore.ErrorLevel, levelFromString("error"))
	require.Equal(t, zapcore.InfoLevel, levelFromString("verbose"))
}

func TestInitWritesRotatingFile(t *testing.T) {
	dir := t.TempDir()
	logger, err := Init(Config{Level: "info", Dir: dir, Name: "agent"})
	require.NoError(t, err)

	logger.Info("sync run finished")
	logger.Debug("filtered out")
	_ = logger.Sync()

	name := filepath.Join(dir, "agent."+time.Now().Format("20060102")+".log")
	data, err := os.ReadFile(name)
	require.NoError(t, err)
	require.Contains(t, string(data), "sync run finished")
	require.NotContains(t, string(data), "filtered out")
}

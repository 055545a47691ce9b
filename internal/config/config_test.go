package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chtemp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
}

func TestLoadDefaults(t *testing.T) {
	chtemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "cost.db", cfg.Store.Path)
	assert.Equal(t, 90, cfg.Pipeline.LookbackDays)
	assert.Equal(t, 8, cfg.Pipeline.Workers)
	assert.Equal(t, "g", cfg.Pipeline.RecipeUnit)
	assert.Equal(t, ",", cfg.Import.Delimiter)
	assert.Equal(t, "utf-8", cfg.Import.Encoding)
	assert.Equal(t, 0.2, cfg.Import.MaxMalformedRate)
	assert.True(t, cfg.Import.HasHeader)
	assert.Equal(t, 30, cfg.Fetch.TimeoutSecs)
	assert.Equal(t, 3, cfg.Fetch.MaxRetries)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	chtemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/costs
pipeline:
  lookback_days: 60
  workers: 4
import:
  delimiter: ";"
  encoding: latin1
log:
  level: debug
  format: console
server:
  port: 9090
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/costs", cfg.Store.DatabaseURL)
	assert.Equal(t, 60, cfg.Pipeline.LookbackDays)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, ';', cfg.Import.DelimiterRune())
	assert.Equal(t, "latin1", cfg.Import.Encoding)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Defaults still apply for unset values
	assert.Equal(t, "g", cfg.Pipeline.RecipeUnit)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	chtemp(t)

	yaml := "store:\n  driver: sqlite\n"
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("COST_STORE_DRIVER", "postgres")
	t.Setenv("COST_PIPELINE_LOOKBACK_DAYS", "30")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 30, cfg.Pipeline.LookbackDays)
}

func TestDelimiterRune_Default(t *testing.T) {
	assert.Equal(t, ',', ImportConfig{}.DelimiterRune())
	assert.Equal(t, '\t', ImportConfig{Delimiter: "\t"}.DelimiterRune())
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())

	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))

	err := InitLogger(LogConfig{Level: "shouting", Format: "json"})
	require.Error(t, err)
}

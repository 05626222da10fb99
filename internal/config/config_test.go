package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Generator.APIKey = "test-key"
	require.NoError(t, cfg.Validate())
}

func TestDefaultConfig_PipelineDeadlineBudget(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 6000*time.Millisecond, cfg.Pipeline.OverallDeadline)
	assert.LessOrEqual(t, cfg.Pipeline.RetrievalDeadline+cfg.Pipeline.GenerationDeadline, cfg.Pipeline.OverallDeadline)
}

func TestValidate_RejectsBadPort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg.Server.Port = 99999
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsOverlongStageDeadlines(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pipeline.RetrievalDeadline = cfg.Pipeline.OverallDeadline
	cfg.Pipeline.GenerationDeadline = cfg.Pipeline.OverallDeadline
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsUnsupportedGeneratorBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Generator.Backend = "gemini"
	assert.Error(t, cfg.Validate())
}

func TestValidate_RejectsIdleExceedingOpenConns(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Metadata.MaxIdleConns = cfg.Metadata.MaxOpenConns + 1
	assert.Error(t, cfg.Validate())
}

func TestLoadFromEnv_OverridesDefaults(t *testing.T) {
	t.Setenv("NLQ_SERVER_PORT", "9090")
	t.Setenv("NLQ_QDRANT_COLLECTION", "override_collection")
	t.Setenv("NLQ_CACHE_REDIS_ADDR", "redis:6379")
	t.Setenv("NLQ_PIPELINE_OVERALL_DEADLINE", "8s")

	cfg := DefaultConfig()
	loadFromEnv(cfg)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "override_collection", cfg.Qdrant.Collection)
	assert.Equal(t, "redis:6379", cfg.Cache.RedisAddr)
	assert.True(t, cfg.Cache.RedisEnabled)
	assert.Equal(t, 8*time.Second, cfg.Pipeline.OverallDeadline)
}

func TestLoadConfig_MissingDotenvIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() { _ = os.Chdir(wd) }()

	t.Setenv("OPENAI_API_KEY", "test-key")
	_, err = LoadConfig()
	assert.NoError(t, err)
}

func TestLoadFromYAMLFile_MissingFileIsNotAnError(t *testing.T) {
	cfg := DefaultConfig()
	err := loadFromYAMLFile(cfg, "/nonexistent/config.yaml")
	assert.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server.Port, cfg.Server.Port)
}

func TestLoadFromYAMLFile_OverlaysOntoDefaults(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9191\nqdrant:\n  collection: yaml_collection\n"), 0o600))

	cfg := DefaultConfig()
	require.NoError(t, loadFromYAMLFile(cfg, path))

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "yaml_collection", cfg.Qdrant.Collection)
	assert.Equal(t, DefaultConfig().Embedding.Model, cfg.Embedding.Model, "fields absent from the YAML file keep their default")
}

func TestLoadConfig_EnvOverridesYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() { _ = os.Chdir(wd) }()

	require.NoError(t, os.WriteFile("config.yaml", []byte("server:\n  port: 9191\n"), 0o600))
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("NLQ_SERVER_PORT", "9292")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 9292, cfg.Server.Port, "env overrides the YAML overlay")
}

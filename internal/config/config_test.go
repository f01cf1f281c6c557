package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keys = []string{
	"TRANSCRIPT_LOG_PATH", "TRANSCRIPT_QUEUE_SIZE", "PROMPT_API_URL", "PROMPT_API_TIMEOUT",
	"OPENAI_API_KEY", "OPENAI_MODEL", "LLM_TEMPERATURE", "BUS_URL", "SOCKS_PROXY",
	"METRICS_ADDR", "LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	c := FromEnv()
	assert.Equal(t, DefaultTranscriptPath, c.TranscriptPath)
	assert.Equal(t, 1024, c.TranscriptQueueSize)
	assert.Equal(t, "http://localhost:8000/api/prompts", c.PromptURL)
	assert.Equal(t, 5*time.Second, c.PromptTimeout)
	assert.Equal(t, DefaultModel, c.Model)
	assert.Zero(t, c.Temperature)
	assert.Equal(t, "info", c.LogLevel)
	assert.ErrorIs(t, c.Validate(), ErrMissingAPIKey)
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRANSCRIPT_LOG_PATH", "/var/log/friday.jsonl")
	t.Setenv("PROMPT_API_URL", "http://prompts:9000/api/prompts")
	t.Setenv("PROMPT_API_TIMEOUT", "2")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LLM_TEMPERATURE", "0.2")
	t.Setenv("BUS_URL", "ws://localhost:8092/ws")

	c := FromEnv()
	assert.Equal(t, "/var/log/friday.jsonl", c.TranscriptPath)
	assert.Equal(t, "http://prompts:9000/api/prompts", c.PromptURL)
	assert.Equal(t, 2*time.Second, c.PromptTimeout)
	assert.Equal(t, 0.2, c.Temperature)
	assert.Equal(t, "ws://localhost:8092/ws", c.BusURL)
	assert.NoError(t, c.Validate())
}

func TestFromEnv_InvalidNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv("PROMPT_API_TIMEOUT", "soon")
	t.Setenv("TRANSCRIPT_QUEUE_SIZE", "-3")
	t.Setenv("LLM_TEMPERATURE", "warm")

	c := FromEnv()
	assert.Equal(t, 5*time.Second, c.PromptTimeout)
	assert.Equal(t, 1024, c.TranscriptQueueSize)
	assert.Zero(t, c.Temperature)
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("OPENAI_MODEL")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("OPENAI_MODEL=gpt-test\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("OPENAI_MODEL") })

	c := Load(path)
	assert.Equal(t, "gpt-test", c.Model)
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	c := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Equal(t, DefaultModel, c.Model)
}

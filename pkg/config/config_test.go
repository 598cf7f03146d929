package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:11434", cfg.OllamaHost)
	assert.Equal(t, "http://localhost:8081", cfg.PrescriptionEngineURL)
	assert.Equal(t, "http://localhost:8001", cfg.InsuranceMCPURL)
	assert.Equal(t, StoreMemory, cfg.SessionStore)
	assert.Equal(t, 30*time.Second, cfg.LLMTimeout)
	assert.Equal(t, 120*time.Second, cfg.VisionTimeout)
	assert.Equal(t, 60*time.Second, cfg.CertificateTimeout)
	assert.Equal(t, 2, cfg.MaxRetries)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "http://ollama.internal:11434")
	t.Setenv("SESSION_STORE", "redis")
	t.Setenv("LLM_TIMEOUT", "45s")
	t.Setenv("VISION_TIMEOUT", "90") // bare seconds

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://ollama.internal:11434", cfg.OllamaHost)
	assert.Equal(t, StoreRedis, cfg.SessionStore)
	assert.Equal(t, 45*time.Second, cfg.LLMTimeout)
	assert.Equal(t, 90*time.Second, cfg.VisionTimeout)
}

func TestLoadRejectsPostgresWithoutURL(t *testing.T) {
	t.Setenv("SESSION_STORE", "postgres")
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoadRejectsUnknownStore(t *testing.T) {
	t.Setenv("SESSION_STORE", "cassandra")

	_, err := Load()
	require.Error(t, err)
}

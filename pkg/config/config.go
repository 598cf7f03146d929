// Package config loads engine configuration from the environment.
//
// Every value has a documented default suitable for a local single-node
// deployment; all of them are overridable via environment variables, with
// optional .env support in cmd/engine.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// StoreKind selects the session store backend.
type StoreKind string

const (
	StoreMemory   StoreKind = "memory"
	StoreRedis    StoreKind = "redis"
	StorePostgres StoreKind = "postgres"
)

// Config is the umbrella configuration consumed by constructor injection
// throughout the engine.
type Config struct {
	HTTPPort string

	// Upstream service endpoints.
	OllamaHost            string
	PrescriptionEngineURL string
	InsuranceMCPURL       string
	CNNClassifierURL      string

	// LLM models served by Ollama's OpenAI-compatible endpoint.
	LLMModel    string
	VisionModel string

	// Session store selection.
	SessionStore StoreKind
	RedisURL     string
	DatabaseURL  string

	// Per-call timeouts (spec-fixed ceilings).
	LLMTimeout          time.Duration
	VisionTimeout       time.Duration
	PrescriptionTimeout time.Duration
	InsuranceTimeout    time.Duration
	CertificateTimeout  time.Duration

	// Node retry budget for recoverable tool failures.
	MaxRetries int
}

// Load reads configuration from the environment, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:              getEnv("HTTP_PORT", "8080"),
		OllamaHost:            getEnv("OLLAMA_HOST", "http://localhost:11434"),
		PrescriptionEngineURL: getEnv("PRESCRIPTION_ENGINE_URL", "http://localhost:8081"),
		InsuranceMCPURL:       getEnv("SASYA_AROGYA_MCP_URL", "http://localhost:8001"),
		CNNClassifierURL:      getEnv("CNN_CLASSIFIER_URL", "http://localhost:8090"),
		LLMModel:              getEnv("LLM_MODEL", "llama3.1"),
		VisionModel:           getEnv("VISION_MODEL", "llava"),
		SessionStore:          StoreKind(getEnv("SESSION_STORE", string(StoreMemory))),
		RedisURL:              getEnv("REDIS_URL", "redis://localhost:6379/0"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		LLMTimeout:            getEnvDuration("LLM_TIMEOUT", 30*time.Second),
		VisionTimeout:         getEnvDuration("VISION_TIMEOUT", 120*time.Second),
		PrescriptionTimeout:   getEnvDuration("PRESCRIPTION_TIMEOUT", 30*time.Second),
		InsuranceTimeout:      getEnvDuration("INSURANCE_TIMEOUT", 30*time.Second),
		CertificateTimeout:    getEnvDuration("CERTIFICATE_TIMEOUT", 60*time.Second),
		MaxRetries:            getEnvInt("MAX_RETRIES", 2),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.SessionStore {
	case StoreMemory, StoreRedis:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("SESSION_STORE=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown SESSION_STORE %q (want memory, redis or postgres)", c.SessionStore)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES must be >= 0, got %d", c.MaxRetries)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	// Accept bare seconds for parity with the service's older deployments.
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue
	}
	return d
}

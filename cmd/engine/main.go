// Agricultural advisory engine server - drives the conversational workflow
// over HTTP with SSE and WebSocket streaming.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/sasya-arogya/engine/pkg/api"
	"github.com/sasya-arogya/engine/pkg/config"
	"github.com/sasya-arogya/engine/pkg/intent"
	"github.com/sasya-arogya/engine/pkg/llm"
	"github.com/sasya-arogya/engine/pkg/session"
	"github.com/sasya-arogya/engine/pkg/store"
	"github.com/sasya-arogya/engine/pkg/tools"
	"github.com/sasya-arogya/engine/pkg/workflow"
	"github.com/sasya-arogya/engine/pkg/workflow/nodes"
)

func main() {
	envFile := flag.String("env-file", ".env", "Path to .env file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil {
		slog.Info("No .env file loaded, using existing environment", "path", *envFile)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessionStore, err := buildStore(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize session store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := sessionStore.Close(); err != nil {
			slog.Warn("Error closing session store", "error", err)
		}
	}()
	slog.Info("Session store ready", "backend", cfg.SessionStore)

	llmClient := llm.NewClient(llm.Options{
		Host:          cfg.OllamaHost,
		Model:         cfg.LLMModel,
		VisionModel:   cfg.VisionModel,
		Timeout:       cfg.LLMTimeout,
		VisionTimeout: cfg.VisionTimeout,
	})
	analyzer := intent.NewAnalyzer(llmClient)

	classification := tools.NewClassificationTool(cfg.CNNClassifierURL, llmClient, cfg.VisionTimeout)
	prescription := tools.NewPrescriptionTool(cfg.PrescriptionEngineURL, cfg.PrescriptionTimeout)
	insurance := tools.NewInsuranceTool(cfg.InsuranceMCPURL, cfg.InsuranceTimeout, cfg.CertificateTimeout)

	sessions := session.NewManager(sessionStore)

	engine, err := workflow.New(nodes.Deps{
		Classifier:       classification,
		Prescriber:       prescription,
		Insurer:          insurance,
		ContextExtractor: tools.NewContextExtractorTool(llmClient),
		Overlay:          tools.NewAttentionOverlayTool(),
		Intent:           analyzer,
		MaxRetries:       cfg.MaxRetries,
	}, sessions)
	if err != nil {
		slog.Error("Failed to build workflow engine", "error", err)
		os.Exit(1)
	}
	slog.Info("Workflow engine initialized")

	server := api.NewServer(engine, sessions, map[string]api.HealthChecker{
		"prescription_engine": prescription,
		"insurance_mcp":       insurance,
		"classifier":          classification,
	})

	go func() {
		slog.Info("HTTP server listening", "port", cfg.HTTPPort)
		if err := server.Start(":" + cfg.HTTPPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Graceful shutdown failed", "error", err)
	}
}

func buildStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.SessionStore {
	case config.StoreRedis:
		return store.NewRedisStore(cfg.RedisURL, 0)
	case config.StorePostgres:
		return store.NewPostgresStore(ctx, cfg.DatabaseURL)
	default:
		return store.NewMemoryStore(), nil
	}
}

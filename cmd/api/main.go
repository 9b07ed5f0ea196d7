package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/futureself-ai/futureself/internal/api/router"
	"github.com/futureself-ai/futureself/internal/call"
	appconfig "github.com/futureself-ai/futureself/internal/config"
	"github.com/futureself-ai/futureself/internal/http/handlers"
	"github.com/futureself-ai/futureself/internal/observability/metrics"
	"github.com/futureself-ai/futureself/internal/store"
	"github.com/futureself-ai/futureself/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting futureself call engine",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	// Postgres user store
	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	userStore := store.NewPostgresStore(pool, logger)

	// Redis live call-state mirror (optional)
	var liveStore *call.LiveCallStore
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		liveStore = call.NewLiveCallStore(redis.NewClient(opts))
	}

	// Metrics
	registry := prometheus.NewRegistry()
	callMetrics := metrics.NewCallMetrics(registry)

	// Speaker LLM (OpenAI, streaming)
	var speakerLLM call.StreamingLLMClient
	var openaiClient *call.OpenAILLMClient
	if cfg.OpenAIAPIKey != "" {
		openaiClient, err = call.NewOpenAILLMClient(cfg.OpenAIAPIKey)
		if err != nil {
			logger.Error("failed to create openai client", "error", err)
			os.Exit(1)
		}
		speakerLLM = openaiClient
	} else {
		logger.Warn("OPENAI_API_KEY not set, speaker will use fallback utterances")
	}

	// Advance checker shares the OpenAI client on a cheaper model, with an
	// optional Bedrock fallback behind it.
	var advanceLLM call.LLMClient
	if openaiClient != nil {
		advanceLLM = openaiClient
		if cfg.BedrockEnabled && cfg.BedrockModelID != "" {
			awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
			if err != nil {
				logger.Error("failed to load AWS config", "error", err)
				os.Exit(1)
			}
			bedrock := call.NewBedrockLLMClient(bedrockruntime.NewFromConfig(awsCfg))
			advanceLLM = call.NewFallbackLLMClient(openaiClient, bedrock, cfg.BedrockModelID, logger)
		}
	}

	// Analyzer LLM (Gemini)
	var analyzerLLM call.LLMClient
	if cfg.GeminiAPIKey != "" {
		gemini, err := call.NewGeminiLLMClient(ctx, cfg.GeminiAPIKey, cfg.AnalyzerModelID)
		if err != nil {
			logger.Error("failed to create gemini client", "error", err)
			os.Exit(1)
		}
		defer func() { _ = gemini.Close() }()
		analyzerLLM = gemini
	} else {
		logger.Warn("GEMINI_API_KEY not set, analyzers will run keyword-only")
	}

	// Backend promise reporting (optional)
	var reporter call.ResultReporter
	if cfg.BackendBaseURL != "" {
		reporter, err = store.NewHTTPResultReporter(cfg.BackendBaseURL, cfg.BackendServiceKey, nil, logger)
		if err != nil {
			logger.Error("failed to create result reporter", "error", err)
			os.Exit(1)
		}
	}

	sessions := call.NewSessionManager(call.ManagerConfig{
		Store:            userStore,
		Reporter:         reporter,
		SpeakerLLM:       speakerLLM,
		SpeakerModelID:   cfg.SpeakerModelID,
		AdvanceLLM:       advanceLLM,
		AdvanceModelID:   cfg.AdvanceModelID,
		AnalyzerLLM:      analyzerLLM,
		AnalyzerModelID:  cfg.AnalyzerModelID,
		QuoteThreshold:   cfg.QuoteThreshold,
		MaxCallDuration:  cfg.MaxCallDuration,
		IdleTimeout:      cfg.IdleTimeout,
		GracePeriod:      cfg.GracePeriod,
		SpeakerTimeout:   cfg.SpeakerTimeout,
		AnalyzerTimeout:  cfg.AnalyzerTimeout,
		AdvanceTimeout:   cfg.AdvanceTimeout,
		SpeakerMaxTokens: int32(cfg.SpeakerMaxTokens),
		Logger:           logger,
		Metrics:          callMetrics,
		Events:           call.NewEventLogger(logger),
	})
	defer sessions.Shutdown()

	// Voice gateway (optional; webhook-only deployments skip it)
	var gateway *call.VoiceGatewayClient
	if cfg.VoiceGatewayAPIKey != "" && cfg.VoiceGatewayAssistantID != "" {
		gateway, err = call.NewVoiceGatewayClient(call.VoiceGatewayConfig{
			APIKey:      cfg.VoiceGatewayAPIKey,
			AssistantID: cfg.VoiceGatewayAssistantID,
			FromNumber:  cfg.VoiceGatewayFromNumber,
			BaseURL:     cfg.VoiceGatewayBaseURL,
			Logger:      logger,
		})
		if err != nil {
			logger.Error("failed to create voice gateway client", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("voice gateway not configured, outbound dialing disabled")
	}

	var callsHandler *handlers.CallsHandler
	if gateway != nil {
		callsHandler = handlers.NewCallsHandler(userStore, gateway, sessions, liveStore, cfg.DefaultVoiceID, logger)
	}

	r := router.New(&router.Config{
		Logger:         logger,
		VoiceWebhook:   handlers.NewVoiceWebhookHandler(sessions, liveStore, logger),
		CallsHandler:   callsHandler,
		HealthHandler:  handlers.NewHealthHandler(sessions),
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		AdminToken:     cfg.AdminToken,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

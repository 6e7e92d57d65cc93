// Package main is the entry point for the companion core server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/companion-ai/companion-core/internal/config"
	"github.com/companion-ai/companion-core/internal/handler"
	"github.com/companion-ai/companion-core/internal/llm"
	llmcontext "github.com/companion-ai/companion-core/internal/llm/context"
	"github.com/companion-ai/companion-core/internal/middleware"
	"github.com/companion-ai/companion-core/internal/service"
	"github.com/companion-ai/companion-core/internal/store"
	"github.com/companion-ai/companion-core/pkg/logger"
	"github.com/companion-ai/companion-core/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting companion core")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "companion-core", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Open the conversation store; a failed migration aborts startup.
	st, err := store.Open(cfg.DBPath, log)
	if err != nil {
		log.Error("failed to open store", zap.Error(err))
		os.Exit(1)
	}
	defer st.Close()

	// Initialize LLM client
	var llmClient llm.Client
	switch {
	case cfg.DefaultLLM == "openai" && cfg.OpenAIAPIKey != "":
		llmClient, err = llm.NewOpenAIClient(cfg.OpenAIAPIKey)
	case cfg.AnthropicAPIKey != "":
		llmClient, err = llm.NewAnthropicClient(cfg.AnthropicAPIKey)
	case cfg.OpenAIAPIKey != "":
		llmClient, err = llm.NewOpenAIClient(cfg.OpenAIAPIKey)
	default:
		log.Error("no LLM API key configured")
		os.Exit(1)
	}
	if err != nil {
		log.Error("failed to create LLM client", zap.Error(err))
		os.Exit(1)
	}

	// Issue a pairing token for the overlay UI. The overlay reads it
	// from the process output at install time.
	if token, err := middleware.GenerateToken(cfg.JWTSecret, "overlay", cfg.JWTExpiration); err == nil {
		log.Info("overlay pairing token issued", zap.String("token", token))
	}

	chatSvc := service.NewChatService(st, llmClient, service.ChatOptions{
		SystemPrompt:  cfg.SystemPrompt,
		DefaultModel:  cfg.DefaultModel,
		ReserveTokens: cfg.ReserveTokens,
		Strategy:      llmcontext.Strategy(cfg.TruncationStrategy),
	}, log)

	healthHandler := handler.NewHealthHandler(st)
	conversationHandler := handler.NewConversationHandler(st, log)
	messageHandler := handler.NewMessageHandler(st, chatSvc, log)
	streamHandler := handler.NewStreamHandler(st, chatSvc, log)
	exportHandler := handler.NewExportHandler(st, cfg.DefaultModel, log)
	settingsHandler := handler.NewSettingsHandler(st, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Get("/stats", conversationHandler.Stats)
		r.Post("/import", exportHandler.Import)
		r.Get("/settings/{key}", settingsHandler.Get)
		r.Put("/settings/{key}", settingsHandler.Put)

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversationHandler.Create)
			r.Get("/", conversationHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.Put("/", conversationHandler.Update)
				r.Delete("/", conversationHandler.Delete)

				// Messages
				r.Get("/messages", messageHandler.List)
				r.Post("/messages", messageHandler.Send)
				r.Delete("/messages/{messageID}", messageHandler.Delete)

				// Context budgeting
				r.Get("/context", messageHandler.ContextUsage)
				r.Post("/preflight", messageHandler.Preflight)

				// Streaming
				r.Get("/stream", streamHandler.Stream)
				r.Post("/stream", streamHandler.StreamWithMessage)

				// Export
				r.Get("/export", exportHandler.Export)
			})
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Drain HTTP before closing the store.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

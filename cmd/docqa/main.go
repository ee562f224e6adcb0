package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kestrel-labs/docqa/internal/config"
	"github.com/kestrel-labs/docqa/internal/db"
	dbRedis "github.com/kestrel-labs/docqa/internal/db/redis"
	"github.com/kestrel-labs/docqa/internal/domain"
	"github.com/kestrel-labs/docqa/internal/embcache"
	"github.com/kestrel-labs/docqa/internal/loader"
	logpkg "github.com/kestrel-labs/docqa/internal/logger"
	"github.com/kestrel-labs/docqa/internal/metrics"
	"github.com/kestrel-labs/docqa/internal/session"
	"github.com/kestrel-labs/docqa/internal/splitter"
	chiTransport "github.com/kestrel-labs/docqa/internal/transport/chi"
	openaiTransport "github.com/kestrel-labs/docqa/internal/transport/openai"
	askuc "github.com/kestrel-labs/docqa/internal/usecase/ask"
	embeddinguc "github.com/kestrel-labs/docqa/internal/usecase/embedding"
	healthuc "github.com/kestrel-labs/docqa/internal/usecase/health"
	ingestuc "github.com/kestrel-labs/docqa/internal/usecase/ingest"
	"github.com/kestrel-labs/docqa/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting docqa server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.String("generation_model", cfg.Generation.Model),
	)

	// Register Prometheus metrics explicitly (no init())
	metrics.RegisterPipelineMetrics()

	// Optional Redis embedding cache
	var cacheStore db.Store
	if len(cfg.Cache.Addrs) > 0 {
		store, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Cache.Addrs,
			Password: cfg.Cache.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create embedding cache store", zap.Error(err))
		}
		defer store.Close()

		if err := store.WaitForReady(context.Background(), 10*time.Second); err != nil {
			logger.Fatal("Embedding cache not ready", zap.Error(err))
		}
		logger.Info("Connected to embedding cache", zap.Strings("addrs", cfg.Cache.Addrs))
		cacheStore = store
	}

	// Embedder chain: provider -> cached (optional)
	baseEmbedder := openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:     cfg.Provider.APIKey,
		BaseURL:    cfg.Provider.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Timeout:    time.Duration(cfg.Embedding.TimeoutSec) * time.Second,
		Provider:   cfg.Provider.Name,
		Logger:     logger,
	})

	var embedder domain.Embedder = baseEmbedder
	if cacheStore != nil {
		embedder = embcache.New(
			baseEmbedder,
			cfg.Embedding.Model,
			cacheStore,
			time.Duration(cfg.Cache.TTLHours)*time.Hour,
			metrics.EmbeddingCacheTotal,
			logger,
		)
	}
	embedder = embeddinguc.NewInstrumentedEmbedder(embedder, cfg.Provider.Name, cfg.Embedding.Model, logger)

	generator := openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
		APIKey:      cfg.Provider.APIKey,
		BaseURL:     cfg.Provider.BaseURL,
		Model:       cfg.Generation.Model,
		Temperature: cfg.Generation.Temperature,
		MaxTokens:   cfg.Generation.MaxTokens,
		Timeout:     time.Duration(cfg.Generation.TimeoutSec) * time.Second,
		Provider:    cfg.Provider.Name,
		Logger:      logger,
	})

	// Pipeline components
	maxUploadBytes := int64(cfg.Pipeline.MaxUploadMB) << 20
	docLoader := loader.New(
		time.Duration(cfg.Pipeline.FetchTimeoutSec)*time.Second,
		maxUploadBytes,
		logger,
	)
	chunker := splitter.New(cfg.Pipeline.ChunkSize, *cfg.Pipeline.ChunkOverlap)

	// Sessions with idle expiry
	sessions := session.NewManager(time.Duration(cfg.Session.TTLMin) * time.Minute)
	sweeperStop := make(chan struct{})
	sessions.StartSweeper(time.Duration(cfg.Session.SweepIntervalMin)*time.Minute, sweeperStop)
	defer close(sweeperStop)

	// Use case services
	ingestSvc := ingestuc.New(docLoader, chunker, embedder, cfg.Embedding.BatchSize)
	askSvc := askuc.New(embedder, generator, cfg.Pipeline.TopK)

	var cachePinger healthuc.CachePinger
	if cacheStore != nil {
		cachePinger = cacheStore
	}
	healthSvc := healthuc.New(baseEmbedder, cachePinger)

	// HTTP server
	server := chiTransport.NewServer(ingestSvc, askSvc, healthSvc, sessions, maxUploadBytes, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}

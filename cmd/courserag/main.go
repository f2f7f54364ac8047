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
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/scotty-scheduler/courserag/internal/config"
	"github.com/scotty-scheduler/courserag/internal/db"
	dbRedis "github.com/scotty-scheduler/courserag/internal/db/redis"
	"github.com/scotty-scheduler/courserag/internal/domain"
	"github.com/scotty-scheduler/courserag/internal/index"
	logpkg "github.com/scotty-scheduler/courserag/internal/logger"
	"github.com/scotty-scheduler/courserag/internal/metrics"
	"github.com/scotty-scheduler/courserag/internal/repository/embcache"
	"github.com/scotty-scheduler/courserag/internal/repository/sqlite"
	chiTransport "github.com/scotty-scheduler/courserag/internal/transport/chi"
	openaiTransport "github.com/scotty-scheduler/courserag/internal/transport/openai"
	healthuc "github.com/scotty-scheduler/courserag/internal/usecase/health"
	recommenduc "github.com/scotty-scheduler/courserag/internal/usecase/recommend"
	retrieveuc "github.com/scotty-scheduler/courserag/internal/usecase/retrieve"
	"github.com/scotty-scheduler/courserag/internal/version"
)

func main() {
	// Load .env if present, then configuration based on ENV
	_ = godotenv.Load()
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

	logger.Info("Starting courserag API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("index_path", cfg.Index.Path),
	)

	ctx := context.Background()

	// Optional embedding cache store
	var store db.Store
	if cfg.Database.CacheEnabled() {
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create cache store", zap.Error(err))
		}
		defer store.Close()

		if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Cache store not ready", zap.Error(err))
		}
		logger.Info("Connected to embedding cache", zap.Strings("addrs", cfg.Database.Addrs))
	}

	// Register provider metrics explicitly (no init())
	metrics.RegisterExternalMetrics()

	cacheTTL := time.Duration(cfg.Database.CacheTTLHours) * time.Hour
	queryEmbedder := buildEmbedder(cfg.Embedding, cfg.Embedding.QueryInstruction, store, cacheTTL, logger)
	logger.Info("Query embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	// Index artifact + active snapshot holder
	artifact, err := sqlite.Open(cfg.Index.Path)
	if err != nil {
		logger.Fatal("Failed to open index artifact", zap.Error(err))
	}
	defer func() { _ = artifact.Close() }()

	holder := index.NewHolder(nil)
	if snapshot, err := artifact.Load(ctx); err != nil {
		// Queries answer 503 until an artifact is built and reloaded.
		logger.Warn("No index loaded at startup", zap.Error(err))
	} else {
		holder.Swap(snapshot)
		logger.Info("Index loaded",
			zap.Int("docs", snapshot.Len()),
			zap.String("model", snapshot.Manifest().Model),
		)
	}

	// Use case services
	retrieveSvc := retrieveuc.New(holder, queryEmbedder,
		cfg.Embedding.Model, cfg.Embedding.Dimensions,
		retrieveuc.Limits{DefaultTopK: cfg.Index.DefaultTopK, MaxTopK: cfg.Index.MaxTopK},
	)

	generator := openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
		APIKey:  cfg.Generation.APIKey,
		BaseURL: cfg.Generation.BaseURL,
		Model:   cfg.Generation.Model,
		Logger:  logger,
	})
	recommendSvc := recommenduc.New(retrieveSvc, generator, recommenduc.Config{
		Model:             cfg.Generation.Model,
		MaxAttempts:       cfg.Generation.MaxAttempts,
		BaseBackoff:       time.Duration(cfg.Generation.BackoffMs) * time.Millisecond,
		PerAttemptTimeout: time.Duration(cfg.Generation.TimeoutSec) * time.Second,
	}, logger)

	var cachePinger healthuc.CachePinger
	if store != nil {
		cachePinger = store
	}
	healthSvc := healthuc.New(holder, newEmbeddingHealthChecker(queryEmbedder), cachePinger)

	server := chiTransport.NewServer(recommendSvc, healthSvc,
		&artifactReloader{artifact: artifact, holder: holder}, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
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

// artifactReloader loads the persisted artifact and swaps the active snapshot.
type artifactReloader struct {
	artifact *sqlite.Store
	holder   *index.Holder
}

func (r *artifactReloader) Reload(ctx context.Context) (int, error) {
	snapshot, err := r.artifact.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load artifact: %w", err)
	}
	r.holder.Swap(snapshot)
	return snapshot.Len(), nil
}

// embeddingHealthChecker wraps domain.Embedder to implement health.EmbeddingChecker.
type embeddingHealthChecker struct {
	embedder domain.Embedder
}

func newEmbeddingHealthChecker(embedder domain.Embedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instruction
func buildEmbedder(
	embCfg config.EmbeddingConfig,
	instruction string,
	store db.Store,
	cacheTTL time.Duration,
	logger *zap.Logger,
) domain.Embedder {
	// Base provider (with transport metrics built-in)
	base := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     embCfg.APIKey,
		BaseURL:    embCfg.BaseURL,
		Model:      embCfg.Model,
		Dimensions: embCfg.Dimensions,
		Provider:   embCfg.Provider,
		Logger:     logger,
	})

	// Cached
	var embedder domain.Embedder = base
	if store != nil {
		embedder = embcache.New(base, embCfg.Model, store, cacheTTL, metrics.EmbeddingCacheTotal, logger)
	}

	// Instruction prefix (outermost — cache key includes instruction)
	if instruction != "" {
		return domain.NewInstructionEmbedder(embedder, instruction)
	}

	return embedder
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

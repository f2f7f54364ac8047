// Command indexer builds the course index artifact from a directory of
// syllabus files. The API server picks a rebuilt artifact up at startup or
// via POST /admin/reload.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/scotty-scheduler/courserag/internal/chunker"
	"github.com/scotty-scheduler/courserag/internal/config"
	"github.com/scotty-scheduler/courserag/internal/db"
	dbRedis "github.com/scotty-scheduler/courserag/internal/db/redis"
	"github.com/scotty-scheduler/courserag/internal/domain"
	logpkg "github.com/scotty-scheduler/courserag/internal/logger"
	"github.com/scotty-scheduler/courserag/internal/metrics"
	"github.com/scotty-scheduler/courserag/internal/repository/embcache"
	"github.com/scotty-scheduler/courserag/internal/repository/sqlite"
	openaiTransport "github.com/scotty-scheduler/courserag/internal/transport/openai"
	ingestuc "github.com/scotty-scheduler/courserag/internal/usecase/ingest"
)

func main() {
	docsFlag := flag.String("docs", "", "syllabus directory (overrides config)")
	indexFlag := flag.String("index", "", "index artifact path (overrides config)")
	flag.Parse()

	_ = godotenv.Load()
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	if *docsFlag != "" {
		cfg.Ingest.DocsDir = *docsFlag
	}
	if *indexFlag != "" {
		cfg.Index.Path = *indexFlag
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting index build",
		zap.String("docs_dir", cfg.Ingest.DocsDir),
		zap.String("index_path", cfg.Index.Path),
		zap.String("model", cfg.Embedding.Model),
	)

	metrics.RegisterExternalMetrics()

	// Cancel the build on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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
	}

	artifact, err := sqlite.Open(cfg.Index.Path)
	if err != nil {
		logger.Fatal("Failed to open index artifact", zap.Error(err))
	}
	defer func() { _ = artifact.Close() }()

	svc := ingestuc.New(
		buildDocEmbedder(cfg.Embedding, store, time.Duration(cfg.Database.CacheTTLHours)*time.Hour, logger),
		chunker.New(cfg.Ingest.ChunkSentences, cfg.Ingest.ChunkOverlap),
		artifact,
		ingestuc.Config{
			Model:          cfg.Embedding.Model,
			Dimensions:     cfg.Embedding.Dimensions,
			EmbedBatchSize: cfg.Ingest.EmbedBatchSize,
			EmbedTimeout:   time.Duration(cfg.Ingest.EmbedTimeoutSec) * time.Second,
		},
		logger,
	)

	start := time.Now()
	report, err := svc.Build(ctx, cfg.Ingest.DocsDir)
	if err != nil {
		logger.Fatal("Index build failed", zap.Error(err))
	}

	logger.Info("Index artifact written",
		zap.Int("indexed", report.Indexed),
		zap.Int("skipped", report.Skipped),
		zap.Duration("took", time.Since(start)),
		zap.String("path", cfg.Index.Path),
	)
}

// buildDocEmbedder assembles the document embedding chain. With a cache store
// configured, batch embedding falls back to cached per-chunk embeds, so a
// re-ingest after small syllabus edits only pays for changed chunks.
func buildDocEmbedder(embCfg config.EmbeddingConfig, store db.Store, cacheTTL time.Duration, logger *zap.Logger) ingestuc.BatchEmbedder {
	base := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     embCfg.APIKey,
		BaseURL:    embCfg.BaseURL,
		Model:      embCfg.Model,
		Dimensions: embCfg.Dimensions,
		Provider:   embCfg.Provider,
		Logger:     logger,
	})

	var embedder domain.Embedder = base
	if store != nil {
		embedder = embcache.New(base, embCfg.Model, store, cacheTTL, metrics.EmbeddingCacheTotal, logger)
	}

	return domain.NewInstructionEmbedder(embedder, embCfg.DocumentInstruction)
}

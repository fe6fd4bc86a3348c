package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/contramate/internal/config"
	"github.com/kailas-cloud/contramate/internal/db"
	dbOpenSearch "github.com/kailas-cloud/contramate/internal/db/opensearch"
	dbRedis "github.com/kailas-cloud/contramate/internal/db/redis"
	"github.com/kailas-cloud/contramate/internal/domain"
	"github.com/kailas-cloud/contramate/internal/domain/citation"
	"github.com/kailas-cloud/contramate/internal/domain/search/mode"
	logpkg "github.com/kailas-cloud/contramate/internal/logger"
	"github.com/kailas-cloud/contramate/internal/metrics"
	"github.com/kailas-cloud/contramate/internal/repository/embcache"
	searchrepo "github.com/kailas-cloud/contramate/internal/repository/search"
	"github.com/kailas-cloud/contramate/internal/tokenizer"
	chiTransport "github.com/kailas-cloud/contramate/internal/transport/chi"
	openaiTransport "github.com/kailas-cloud/contramate/internal/transport/openai"
	answeruc "github.com/kailas-cloud/contramate/internal/usecase/answer"
	embeddinguc "github.com/kailas-cloud/contramate/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/contramate/internal/usecase/health"
	"github.com/kailas-cloud/contramate/internal/usecase/prompt"
	searchuc "github.com/kailas-cloud/contramate/internal/usecase/search"
	"github.com/kailas-cloud/contramate/internal/version"
)

func main() {
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting contramate API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("search_driver", cfg.Search.Driver),
		zap.String("index", cfg.Search.Index),
	)

	// Search backend; the Redis store doubles as the embedding cache.
	var (
		store db.Store
		kv    db.KVStore
	)
	switch cfg.Search.Driver {
	case config.DriverRedis:
		rs, rerr := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Search.Addrs,
			Username: cfg.Search.Username,
			Password: cfg.Search.Password,
			RRFK:     cfg.Search.RRFK,
		})
		if rerr != nil {
			logger.Fatal("Failed to create redis store", zap.Error(rerr))
		}
		store, kv = rs, rs
	default:
		st, oerr := dbOpenSearch.NewStore(dbOpenSearch.Config{
			URL:                cfg.Search.URL,
			Username:           cfg.Search.Username,
			Password:           cfg.Search.Password,
			Timeout:            time.Duration(cfg.Search.TimeoutSec) * time.Second,
			RetryCount:         cfg.Search.RetryCount,
			InsecureSkipVerify: cfg.Search.InsecureSkipVerify,
			SemanticWeight:     cfg.Search.SemanticWeight,
			TextWeight:         cfg.Search.TextWeight,
		})
		if oerr != nil {
			logger.Fatal("Failed to create opensearch store", zap.Error(oerr))
		}
		store = st
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Search.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Search backend not ready", zap.Error(err))
	}
	logger.Info("Connected to search backend")

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterSearchMetrics()
	answerMetrics := metrics.NewAnswer()
	if err := answerMetrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Fatal("Failed to register answer metrics", zap.Error(err))
	}

	baseEmbedder := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})
	queryEmbedder := buildEmbedder(cfg.Embedding, baseEmbedder, kv, logger)

	generator := openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
		APIKey:        cfg.Generation.APIKey,
		BaseURL:       cfg.Generation.BaseURL,
		Model:         cfg.Generation.Model,
		Temperature:   cfg.Generation.Temperature,
		MaxTokens:     cfg.Generation.MaxTokens,
		Timeout:       time.Duration(cfg.Generation.TimeoutSec) * time.Second,
		RetryAttempts: cfg.Generation.RetryAttempts,
		RetryDelay:    time.Duration(cfg.Generation.RetryDelayMs) * time.Millisecond,
		RetryMaxDelay: time.Duration(cfg.Generation.RetryMaxDelay) * time.Millisecond,
		Logger:        logger,
	})
	logger.Info("Model providers created",
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.String("generation_model", cfg.Generation.Model),
	)

	searchSvc := searchuc.New(searchrepo.New(store, cfg.Search.Index), queryEmbedder)

	answerSvc := answeruc.New(
		searchSvc,
		generator,
		prompt.New(newCounter(cfg.Answer.TokenEncoding, logger), cfg.Answer.MaxContextTokens),
		citation.NewValidator(cfg.Answer.MinDescriptorLen),
		answeruc.Config{
			MaxAttempts:  cfg.Answer.MaxAttempts,
			TopK:         cfg.Answer.TopK,
			MinScore:     cfg.Answer.MinScore,
			SearchMode:   mode.Mode(cfg.Answer.SearchMode),
			PerDocument:  cfg.Answer.PerDocument,
			RetryBackoff: time.Duration(cfg.Answer.RetryBackoffMs) * time.Millisecond,
		},
		answerMetrics,
	)

	healthSvc := healthuc.New(store, map[string]healthuc.ProviderChecker{
		"embedding":  baseEmbedder,
		"generation": generator,
	})

	server := chiTransport.NewServer(answerSvc, searchSvc, healthSvc, logger, chiTransport.Options{
		APIKeys:        cfg.Auth.APIKeys,
		RequestTimeout: time.Duration(cfg.HTTP.RequestTimeoutSec) * time.Second,
		SearchMode:     mode.Mode(cfg.Answer.SearchMode),
	})

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Routes(),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instrumented -> Instruction.
// kv may be nil; an in-process cache is used then.
func buildEmbedder(
	cfg config.EmbeddingConfig,
	base domain.Embedder,
	kv db.KVStore,
	logger *zap.Logger,
) domain.Embedder {
	embedder := base

	if cfg.CacheTTLSec > 0 {
		ttl := time.Duration(cfg.CacheTTLSec) * time.Second
		if kv == nil {
			kv = embcache.NewMemoryStore(ttl, 2*ttl)
		}
		embedder = embcache.New(embedder, kv, cfg.Model, ttl, metrics.EmbeddingCacheTotal, logger)
	}

	embedder = embeddinguc.NewInstrumentedEmbedder(
		embedder, cfg.Provider, cfg.Model,
		time.Duration(cfg.TimeoutSec)*time.Second, logger,
	)

	// Instruction prefix is outermost so the cache key includes it.
	if cfg.QueryInstruction != "" {
		return domain.NewInstructionEmbedder(embedder, cfg.QueryInstruction)
	}
	return embedder
}

// newCounter prefers the exact BPE tokenizer and falls back to the rune estimate
// when the encoding cannot be loaded (e.g. offline without a cached vocabulary).
func newCounter(encoding string, logger *zap.Logger) tokenizer.Counter {
	tk, err := tokenizer.NewTiktoken(encoding)
	if err != nil {
		logger.Warn("Falling back to approximate token counting",
			zap.String("encoding", encoding), zap.Error(err))
		return tokenizer.Approx{}
	}
	return tk
}

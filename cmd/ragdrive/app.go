package main

import (
	"context"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragdrive/internal/ai"
	"github.com/xxxsen/ragdrive/internal/chunker"
	"github.com/xxxsen/ragdrive/internal/config"
	"github.com/xxxsen/ragdrive/internal/doccache"
	"github.com/xxxsen/ragdrive/internal/embedcache"
	"github.com/xxxsen/ragdrive/internal/extract"
	"github.com/xxxsen/ragdrive/internal/filestore"
	"github.com/xxxsen/ragdrive/internal/remote"
	"github.com/xxxsen/ragdrive/internal/repo"
	"github.com/xxxsen/ragdrive/internal/service"
)

type app struct {
	cfg       *config.Config
	svc       *service.RAGService
	remote    remote.Store
	db        *repo.DB
	cacheRepo *repo.EmbeddingCacheRepo
	lru       *embedcache.LRUEmbedder
}

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

func buildApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	if cfg.EmbedCache.DB.Driver != "" {
		db, err := repo.Open(cfg.EmbedCache.DB)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		if err := repo.ApplyMigrations(db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		a.db = db
		a.cacheRepo = repo.NewEmbeddingCacheRepo(db)
	}

	generator, err := buildGenerator(cfg.AI.Generators)
	if err != nil {
		a.Close()
		return nil, err
	}
	embedder, err := buildEmbedder(cfg.AI.Embedders)
	if err != nil {
		a.Close()
		return nil, err
	}
	if a.cacheRepo != nil {
		embedder = embedcache.WrapDBCacheToEmbedder(embedder, a.cacheRepo)
	}
	if cfg.EmbedCache.LRUSize > 0 {
		a.lru = embedcache.NewLRUEmbedder(embedder, cfg.EmbedCache.LRUSize, time.Duration(cfg.EmbedCache.LRUTTL)*time.Second)
		embedder = a.lru
	}
	manager := ai.NewManager(generator, embedder, ai.ManagerConfig{Timeout: cfg.AI.Timeout})

	store, err := remote.New(cfg.Remote)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init remote store: %w", err)
	}
	a.remote = store
	cacheStore, err := filestore.New(cfg.Cache.Store)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init cache store: %w", err)
	}
	ck, err := chunker.New(chunker.Config{
		MaxChunkChars: cfg.Chunker.MaxChunkChars,
		OverlapChars:  cfg.Chunker.OverlapChars,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init chunker: %w", err)
	}

	a.svc = service.NewRAGService(
		store,
		extract.New(extract.Options{MarkdownAsText: cfg.Extract.MarkdownAsText}),
		ck,
		doccache.New(cacheStore, cfg.Cache.Key),
		manager,
		manager,
		service.Options{
			DownloadConcurrency: cfg.Remote.DownloadConcurrency,
			RemoteTimeout:       time.Duration(cfg.Remote.Timeout) * time.Second,
			EmbedConcurrency:    cfg.AI.EmbedConcurrency,
			TopK:                cfg.Retrieval.TopK,
		},
	)
	logutil.GetLogger(context.Background()).Info("service initialised",
		zap.String("remote", store.Name()),
		zap.String("cache_store", cfg.Cache.Store.Type),
		zap.String("embedder", embedder.ModelName()),
		zap.Bool("embed_db_cache", a.cacheRepo != nil),
	)
	return a, nil
}

func buildGenerator(items []config.AIModelConfig) (ai.IGenerator, error) {
	entries := make([]ai.GeneratorEntry, 0, len(items))
	for _, item := range items {
		p, err := ai.NewProvider(item.Provider, item.Data)
		if err != nil {
			return nil, fmt.Errorf("init generator %s: %w", item.Provider, err)
		}
		entries = append(entries, ai.GeneratorEntry{
			Name:      item.Provider + ":" + item.Model,
			Generator: ai.NewGenerator(p, item.Model),
		})
	}
	return ai.NewGroupGenerator(entries), nil
}

func buildEmbedder(items []config.AIModelConfig) (ai.IEmbedder, error) {
	entries := make([]ai.EmbedderEntry, 0, len(items))
	for _, item := range items {
		p, err := ai.NewEmbedProvider(item.Provider, item.Data)
		if err != nil {
			return nil, fmt.Errorf("init embedder %s: %w", item.Provider, err)
		}
		entries = append(entries, ai.EmbedderEntry{
			Name:     item.Provider + ":" + item.Model,
			Embedder: ai.NewEmbedder(p, item.Model),
		})
	}
	return ai.NewGroupEmbedder(entries), nil
}

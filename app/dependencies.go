package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/upb/inventory-retrieval/config"
	"github.com/upb/inventory-retrieval/internal/embedding"
	"github.com/upb/inventory-retrieval/internal/entities"
	"github.com/upb/inventory-retrieval/internal/resilience"
	"github.com/upb/inventory-retrieval/repositories"
	"github.com/upb/inventory-retrieval/repositories/pgvectorstore"
	"github.com/upb/inventory-retrieval/repositories/postgres"
	"github.com/upb/inventory-retrieval/services/documents"
	"github.com/upb/inventory-retrieval/services/inventory"
	"github.com/upb/inventory-retrieval/services/retrieval"
	"go.uber.org/zap"
)

// cacheCleanupInterval is how often expired embeddings are dropped from memory
const cacheCleanupInterval = 5 * time.Minute

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	DB     *postgres.DB
	Logger *zap.Logger

	// Repository Factory
	RepoFactory *postgres.RepositoryFactory

	// Repositories
	Documents   repositories.DocumentRepository
	Inventory   repositories.InventoryRepository
	NativeStore repositories.NativeVectorStore // nil when native search is disabled
	TxManager   repositories.TransactionManager

	// Providers
	Embedder       embedding.Embedder
	EmbeddingCache *embedding.CachedEmbedder
	Extractor      entities.Extractor

	// Services
	RetrievalService *retrieval.Service
	InventoryService *inventory.Service
	DocumentService  *documents.Service

	closers []func() error
	closed  bool
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	factory, err := postgres.NewRepositoryFactory(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	deps, err := NewDependenciesFromFactory(ctx, cfg, factory, logger)
	if err != nil {
		_ = factory.Close()
		return nil, err
	}

	if cfg.Retrieval.NativeSearchEnabled {
		if err := deps.initNativeStore(ctx, cfg, openNativeStore); err != nil {
			_ = deps.Close(ctx)
			return nil, fmt.Errorf("failed to initialize native vector store: %w", err)
		}
	}

	if err := deps.initServices(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// NewDependenciesFromFactory wires repositories and providers over an existing
// factory. Call Build to wire the services. The factory stays owned by the
// caller when this fails.
func NewDependenciesFromFactory(ctx context.Context, cfg *config.Config, factory *postgres.RepositoryFactory, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:      cfg,
		Logger:      logger,
		RepoFactory: factory,
		DB:          factory.GetDB(),
	}

	if err := deps.initDatabase(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := deps.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}
	if err := deps.initEmbedder(cfg); err != nil {
		deps.release()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	if err := deps.initEntities(cfg); err != nil {
		deps.release()
		return nil, fmt.Errorf("failed to initialize entity extractor: %w", err)
	}
	return deps, nil
}

// Build finishes wiring the services after NewDependenciesFromFactory
func (d *Dependencies) Build() error {
	return d.initServices(d.Config)
}

// initDatabase verifies the pool is reachable
func (d *Dependencies) initDatabase(ctx context.Context, cfg *config.Config) error {
	if err := d.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	d.Logger.Info("database connection established",
		zap.String("connection", cfg.Database.LogString()))
	return nil
}

// initRepositories initializes all repository instances
func (d *Dependencies) initRepositories() error {
	repos, err := d.RepoFactory.NewRepositories()
	if err != nil {
		return err
	}

	d.Documents = repos.Documents
	d.Inventory = repos.Inventory
	d.TxManager = d.RepoFactory.GetTransactionManager()

	d.Logger.Info("repositories initialized")
	return nil
}

// initEmbedder builds the provider client, then retry and breaker, then the
// memory cache with an optional badger tier in front.
func (d *Dependencies) initEmbedder(cfg *config.Config) error {
	client := embedding.NewOpenAIEmbedder(cfg.Embedding, d.Logger)

	breaker := resilience.NewBreaker("embedding", resilience.SettingsFromConfig(cfg.Resilience), d.Logger)
	resilient := embedding.NewResilientEmbedder(client, resilience.PolicyFromConfig(cfg.Resilience), breaker, d.Logger)

	var disk embedding.PersistentStore
	if cfg.Embedding.CacheDir != "" {
		store, err := embedding.OpenBadgerStore(cfg.Embedding.CacheDir, cfg.Embedding.CacheTTL, d.Logger)
		if err != nil {
			return err
		}
		d.closers = append(d.closers, store.Close)
		disk = store
		d.Logger.Info("persistent embedding cache enabled", zap.String("dir", cfg.Embedding.CacheDir))
	}

	memory := embedding.NewVectorCache(cfg.Embedding.CacheSize, cfg.Embedding.CacheTTL)
	cleanupCtx, cancel := context.WithCancel(context.Background())
	go memory.StartCleanupWorker(cleanupCtx, cacheCleanupInterval)
	d.closers = append(d.closers, func() error { cancel(); return nil })

	d.EmbeddingCache = embedding.NewCachedEmbedder(resilient, cfg.Embedding.Model, memory, disk, d.Logger)
	d.Embedder = d.EmbeddingCache

	if cfg.Embedding.APIKey == "" {
		d.Logger.Warn("no embedding API key configured, vector search will fail")
	}
	return nil
}

// initEntities builds the configured entity extractor
func (d *Dependencies) initEntities(cfg *config.Config) error {
	extractor, release, err := entities.New(cfg.Entities, cfg.Resilience, d.Logger)
	if err != nil {
		return err
	}
	d.Extractor = extractor
	d.closers = append(d.closers, func() error { release(); return nil })

	d.Logger.Info("entity extractor initialized", zap.String("provider", cfg.Entities.Provider))
	return nil
}

// nativeOpener opens the langchaingo backed store
type nativeOpener func(ctx context.Context, cfg *config.Config, emb embedding.Embedder, logger *zap.Logger) (repositories.NativeVectorStore, error)

func openNativeStore(ctx context.Context, cfg *config.Config, emb embedding.Embedder, logger *zap.Logger) (repositories.NativeVectorStore, error) {
	store, err := pgvectorstore.Open(ctx, cfg.Database.URL(), cfg.Collection.Name, emb, logger)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// initNativeStore connects the langchaingo pgvector store. The schema is
// created first; langchaingo otherwise creates its own embedding table that
// the SQL paths cannot read.
func (d *Dependencies) initNativeStore(ctx context.Context, cfg *config.Config, open nativeOpener) error {
	if err := d.RepoFactory.InitSchema(ctx); err != nil {
		return err
	}
	store, err := open(ctx, cfg, d.Embedder, d.Logger)
	if err != nil {
		return err
	}
	d.NativeStore = store
	d.Logger.Info("native vector store initialized", zap.String("collection", cfg.Collection.Name))
	return nil
}

// initServices wires the retrieval, inventory and document services
func (d *Dependencies) initServices(cfg *config.Config) error {
	svc, err := retrieval.NewService(d.Documents, d.NativeStore, d.Embedder, d.Extractor, retrieval.Options{
		CollectionName:    cfg.Collection.Name,
		CollectionID:      cfg.Collection.ID,
		DefaultK:          cfg.Retrieval.DefaultTopK,
		DefaultAlpha:      cfg.Retrieval.DefaultAlpha,
		NativeEnabled:     cfg.Retrieval.NativeSearchEnabled && d.NativeStore != nil,
		ExpansionFallback: cfg.Entities.Fallback,
	}, d.Logger)
	if err != nil {
		return err
	}
	d.RetrievalService = svc

	d.InventoryService = inventory.NewService(d.Inventory, d.TxManager, cfg.Retrieval.DefaultContextLimit, d.Logger)

	docs, err := documents.NewService(d.Documents, d.TxManager, d.Embedder, cfg.Collection.Name, cfg.Embedding.Workers, d.Logger)
	if err != nil {
		return err
	}
	d.DocumentService = docs
	d.closers = append(d.closers, func() error { docs.Release(); return nil })

	d.Logger.Info("services initialized")
	return nil
}

// Close gracefully shuts down all dependencies. It is safe to call twice.
func (d *Dependencies) Close(ctx context.Context) error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.Logger.Info("shutting down dependencies")

	errs := d.release()

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	_ = d.Logger.Sync()

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %w", errors.Join(errs...))
	}
	return nil
}

// release runs the closers in reverse order of acquisition
func (d *Dependencies) release() []error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errs
}

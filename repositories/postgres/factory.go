package postgres

import (
	"context"

	"github.com/upb/inventory-retrieval/config"
	"github.com/upb/inventory-retrieval/repositories"
	"go.uber.org/zap"
)

// RepositoryFactory creates and manages all repositories
type RepositoryFactory struct {
	db     *DB
	cfg    *config.Config
	logger *zap.Logger
}

// NewRepositoryFactory opens the connection pool and creates a factory over it
func NewRepositoryFactory(cfg *config.Config, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := NewDB(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	return &RepositoryFactory{db: db, cfg: cfg, logger: logger}, nil
}

// NewRepositoryFactoryFromDB creates a factory over an existing pool
func NewRepositoryFactoryFromDB(db *DB, cfg *config.Config, logger *zap.Logger) *RepositoryFactory {
	return &RepositoryFactory{db: db, cfg: cfg, logger: logger}
}

// InitSchema creates the vector and inventory tables when missing
func (f *RepositoryFactory) InitSchema(ctx context.Context) error {
	return f.db.InitSchema(ctx, f.cfg.Collection.InventoryTable)
}

// NewRepositories creates all repository instances
func (f *RepositoryFactory) NewRepositories() (*repositories.Repositories, error) {
	docs, err := NewDocumentRepository(f.db, DocumentOptions{
		DistanceMetric:   f.cfg.Retrieval.DistanceMetric,
		TextSearchConfig: f.cfg.Retrieval.TextSearchConfig,
	}, f.logger)
	if err != nil {
		return nil, err
	}
	return &repositories.Repositories{
		Documents: docs,
		Inventory: NewInventoryRepository(f.db, f.cfg.Collection.InventoryTable, f.cfg.Retrieval.CharsPerToken, f.logger),
	}, nil
}

// GetTransactionManager returns a transaction manager
func (f *RepositoryFactory) GetTransactionManager() repositories.TransactionManager {
	return NewTransactionManager(f.db, f.logger)
}

// GetDB returns the database connection
func (f *RepositoryFactory) GetDB() *DB {
	return f.db
}

// Close closes the database connection
func (f *RepositoryFactory) Close() error {
	return f.db.Close()
}

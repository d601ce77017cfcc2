package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/upb/inventory-retrieval/config"
	"go.uber.org/zap"
)

// DB wraps the sql.DB connection pool
type DB struct {
	*sql.DB
	logger       *zap.Logger
	queryTimeout time.Duration
}

// NewDB creates a new database connection pool
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	dsn := cfg.DSN()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		zap.String("connection", cfg.LogString()))

	return &DB{
		DB:           db,
		logger:       logger,
		queryTimeout: cfg.QueryTimeout,
	}, nil
}

// Close closes the database connection pool
func (db *DB) Close() error {
	db.logger.Info("closing database connection")
	return db.DB.Close()
}

// HealthCheck performs a health check on the database
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database query check failed: %w", err)
	}

	return nil
}

// Stats returns database connection pool statistics
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// NewDBFromConn wraps an existing pool, e.g. a sqlmock connection in tests
func NewDBFromConn(conn *sql.DB, queryTimeout time.Duration, logger *zap.Logger) *DB {
	return &DB{DB: conn, logger: logger, queryTimeout: queryTimeout}
}

// WithQueryTimeout bounds ctx by the configured per-query timeout. A zero
// timeout leaves ctx unchanged.
func (db *DB) WithQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if db.queryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, db.queryTimeout)
}

// InitSchema creates the pgvector extension, the collection and embedding
// tables, and the vehicle inventory table when they do not exist.
func (db *DB) InitSchema(ctx context.Context, inventoryTable string) error {
	table := pq.QuoteIdentifier(inventoryTable)
	schema := `
		CREATE EXTENSION IF NOT EXISTS vector;

		CREATE TABLE IF NOT EXISTS langchain_pg_collection (
			uuid UUID PRIMARY KEY,
			name VARCHAR NOT NULL UNIQUE,
			cmetadata JSON
		);

		CREATE TABLE IF NOT EXISTS langchain_pg_embedding (
			id VARCHAR PRIMARY KEY,
			collection_id UUID REFERENCES langchain_pg_collection(uuid) ON DELETE CASCADE,
			embedding VECTOR,
			document VARCHAR,
			cmetadata JSONB
		);

		CREATE INDEX IF NOT EXISTS ix_langchain_pg_embedding_collection_id ON langchain_pg_embedding(collection_id);
		CREATE INDEX IF NOT EXISTS ix_cmetadata_gin ON langchain_pg_embedding USING gin (cmetadata jsonb_path_ops);

		CREATE TABLE IF NOT EXISTS ` + table + ` (
			vin VARCHAR(17) PRIMARY KEY,
			stock_number VARCHAR(50),
			type VARCHAR(50),
			year INTEGER,
			make VARCHAR(100),
			model VARCHAR(100),
			trim VARCHAR(100),
			style VARCHAR(100),
			model_number VARCHAR(50),
			mileage INTEGER,
			exterior_color VARCHAR(100),
			exterior_color_code VARCHAR(50),
			interior_color VARCHAR(100),
			interior_color_code VARCHAR(50),
			date_in_stock DATE,
			certified BOOLEAN,
			msrp NUMERIC(12, 2),
			invoice NUMERIC(12, 2),
			book_value NUMERIC(12, 2),
			selling_price NUMERIC(12, 2),
			engine_cylinders INTEGER,
			engine_displacement VARCHAR(50),
			drive_type VARCHAR(50),
			fuel_type VARCHAR(50),
			transmission VARCHAR(100),
			wheelbase NUMERIC(8, 2),
			body VARCHAR(100),
			doors INTEGER,
			description TEXT,
			options TEXT,
			kbb_retail NUMERIC(12, 2),
			kbb_valuation_date DATE,
			kbb_zip_code VARCHAR(10),
			added_equipment_pricing NUMERIC(12, 2),
			dealer_processing_fee NUMERIC(12, 2),
			location VARCHAR(100),
			vehicle_status VARCHAR(50),
			engine_type VARCHAR(100),
			drive_line VARCHAR(50),
			transmission_secondary VARCHAR(100),
			city_fuel_economy INTEGER,
			highway_fuel_economy INTEGER,
			features TEXT,
			packages TEXT
		);

		CREATE INDEX IF NOT EXISTS ` + pq.QuoteIdentifier("idx_"+inventoryTable+"_date_in_stock") + ` ON ` + table + `(date_in_stock, vin);
	`

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	db.logger.Info("database schema initialized successfully", zap.String("inventory_table", inventoryTable))
	return nil
}

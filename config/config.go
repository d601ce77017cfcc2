package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Collection    CollectionConfig
	Embedding     EmbeddingConfig
	Entities      EntitiesConfig
	Retrieval     RetrievalConfig
	Resilience    ResilienceConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	QueryTimeout     time.Duration
}

// CollectionConfig identifies the document collection and the inventory table.
type CollectionConfig struct {
	Name           string
	ID             string // Resolved from Name at startup when empty
	InventoryTable string
}

// EmbeddingConfig holds the embedding provider settings
type EmbeddingConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	Timeout    time.Duration
	CacheSize  int
	CacheTTL   time.Duration
	CacheDir   string // Optional badger directory for a persistent cache tier
	Workers    int    // Concurrent embedding calls when loading documents
}

// EntitiesConfig holds entity extraction settings
type EntitiesConfig struct {
	Provider         string // gliner, llm or none
	RecognitionModel string // HF model id or local directory for gliner
	Labels           []string
	LLMModel         string
	LLMBaseURL       string
	LLMAPIKey        string
	Threshold        float64
	Fallback         bool // Degrade to the unexpanded query when extraction fails
}

// RetrievalConfig holds query engine defaults
type RetrievalConfig struct {
	DefaultTopK         int
	DefaultAlpha        float64
	DistanceMetric      string // l2, cosine or inner
	TextSearchConfig    string
	NativeSearchEnabled bool
	DefaultContextLimit int
	CharsPerToken       int
}

// ResilienceConfig holds retry and circuit breaker settings for calls leaving the process
type ResilienceConfig struct {
	RetryMaxAttempts        int
	RetryBaseDelay          time.Duration
	RetryMaxDelay           time.Duration
	BreakerEnabled          bool
	BreakerMaxRequests      uint32
	BreakerInterval         time.Duration
	BreakerTimeout          time.Duration
	BreakerReadyToTripRatio float64
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or console
	MetricsEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 60*time.Second),
		},
		Database: loadDatabaseConfig(),
		Collection: CollectionConfig{
			Name:           getEnv("COLLECTION_NAME", "test-v1"),
			ID:             getEnv("COLLECTION_ID", ""),
			InventoryTable: getEnv("INVENTORY_TABLE", "demo_vehicle_inventory"),
		},
		Embedding: EmbeddingConfig{
			APIKey:     getEnv("OPENAI_API_KEY", ""),
			BaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:      getEnv("EMBEDDING_MODEL", "text-embedding-3-large"),
			Dimensions: getEnvAsInt("EMBEDDING_DIMENSIONS", 0),
			Timeout:    getEnvAsDuration("EMBEDDING_TIMEOUT", 30*time.Second),
			CacheSize:  getEnvAsInt("EMBEDDING_CACHE_SIZE", 1024),
			CacheTTL:   getEnvAsDuration("EMBEDDING_CACHE_TTL", time.Hour),
			CacheDir:   getEnv("EMBEDDING_CACHE_DIR", ""),
			Workers:    getEnvAsInt("EMBEDDING_WORKERS", 4),
		},
		Entities: EntitiesConfig{
			Provider:         getEnv("ENTITY_PROVIDER", "none"),
			RecognitionModel: getEnv("RECOGNITION_MODEL", "urchade/gliner_small-v2.1"),
			Labels:           getEnvAsList("ENTITY_LABELS", []string{"make", "model", "color", "vehicle type", "feature"}),
			LLMModel:         getEnv("ENTITY_LLM_MODEL", "gpt-4o-mini"),
			LLMBaseURL:       getEnv("ENTITY_LLM_BASE_URL", getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1")),
			LLMAPIKey:        getEnv("ENTITY_LLM_API_KEY", getEnv("OPENAI_API_KEY", "")),
			Threshold:        getEnvAsFloat("ENTITY_THRESHOLD", 0.5),
			Fallback:         getEnvAsBool("ENTITY_FALLBACK", true),
		},
		Retrieval: RetrievalConfig{
			DefaultTopK:         getEnvAsInt("DEFAULT_TOP_K", 10),
			DefaultAlpha:        getEnvAsFloat("DEFAULT_ALPHA", 0.5),
			DistanceMetric:      getEnv("DISTANCE_METRIC", "cosine"),
			TextSearchConfig:    getEnv("TEXT_SEARCH_CONFIG", "english"),
			NativeSearchEnabled: getEnvAsBool("NATIVE_SEARCH_ENABLED", true),
			DefaultContextLimit: getEnvAsInt("REALTIME_MAX_TOKENS", 4000),
			CharsPerToken:       getEnvAsInt("TOKEN_CHARS_PER_TOKEN", 5),
		},
		Resilience: ResilienceConfig{
			RetryMaxAttempts:        getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
			RetryBaseDelay:          getEnvAsDuration("RETRY_BASE_DELAY", 200*time.Millisecond),
			RetryMaxDelay:           getEnvAsDuration("RETRY_MAX_DELAY", 5*time.Second),
			BreakerEnabled:          getEnvAsBool("BREAKER_ENABLED", true),
			BreakerMaxRequests:      uint32(getEnvAsInt("BREAKER_MAX_REQUESTS", 1)),
			BreakerInterval:         getEnvAsDuration("BREAKER_INTERVAL", time.Minute),
			BreakerTimeout:          getEnvAsDuration("BREAKER_TIMEOUT", 30*time.Second),
			BreakerReadyToTripRatio: getEnvAsFloat("BREAKER_TRIP_RATIO", 0.6),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	// Database validation (DATABASE_URL or DB_* vars)
	if c.Database.ConnectionString == "" && c.Database.Host == "" {
		return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
	}
	if c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if c.Collection.Name == "" && c.Collection.ID == "" {
		return fmt.Errorf("collection name or id is required")
	}
	if c.Collection.InventoryTable == "" {
		return fmt.Errorf("inventory table is required")
	}

	if c.Retrieval.DefaultAlpha < 0 || c.Retrieval.DefaultAlpha > 1 {
		return fmt.Errorf("default alpha must be within [0, 1], got %v", c.Retrieval.DefaultAlpha)
	}
	if c.Retrieval.DefaultTopK <= 0 {
		return fmt.Errorf("default top k must be positive")
	}
	if c.Retrieval.CharsPerToken <= 0 {
		return fmt.Errorf("chars per token must be positive")
	}
	switch c.Retrieval.DistanceMetric {
	case "l2", "cosine", "inner":
	default:
		return fmt.Errorf("unknown distance metric: %s", c.Retrieval.DistanceMetric)
	}

	switch c.Entities.Provider {
	case "gliner", "llm", "none":
	default:
		return fmt.Errorf("unknown entity provider: %s", c.Entities.Provider)
	}
	if c.Entities.Provider == "gliner" && len(c.Entities.Labels) == 0 {
		return fmt.Errorf("entity labels are required for the gliner provider")
	}

	if c.Resilience.RetryMaxAttempts <= 0 {
		return fmt.Errorf("retry max attempts must be positive")
	}

	if c.IsProduction() && c.Embedding.APIKey == "" {
		return fmt.Errorf("embedding API key is required in production")
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the connection string in URL form, as required by pgx-based clients.
func (c *DatabaseConfig) URL() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			QueryTimeout:     getEnvAsDuration("DB_QUERY_TIMEOUT", 15*time.Second),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "vectordb"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		QueryTimeout:    getEnvAsDuration("DB_QUERY_TIMEOUT", 15*time.Second),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma-separated value, dropping blanks
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

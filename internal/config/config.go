package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"propsearch/pkg/log"

	"github.com/joho/godotenv"
)

// Index backends
const (
	BackendPostgres      = "postgres"
	BackendElasticsearch = "elasticsearch"
	BackendBadger        = "badger"
)

// AI providers
const (
	ProviderHTTP      = "http"
	ProviderLangchain = "langchain"
)

// Extractors
const (
	ExtractorLLM   = "llm"
	ExtractorRules = "rules"
)

// Relaxation margin modes
const (
	MarginPercent  = "percent"
	MarginAbsolute = "absolute"
)

// Config holds all configuration for the application
type Config struct {
	Server        ServerConfig
	Index         IndexConfig
	PostgreSQL    PostgreSQLConfig
	Elasticsearch ElasticsearchConfig
	Badger        BadgerConfig
	Search        SearchConfig
	Ranking       RankingConfig
	Relaxation    RelaxationConfig
	Ingest        IngestConfig
	Logging       LoggingConfig
	OpenAI        OpenAIConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	GinMode        string
	AllowedOrigins string
	AllowedMethods string
	AllowedHeaders string
}

// IndexConfig selects the vector index backend
type IndexConfig struct {
	Backend string
	// EnsureSchema creates tables/indices on startup when missing.
	EnsureSchema bool
}

// PostgreSQLConfig holds PostgreSQL database configuration
type PostgreSQLConfig struct {
	DSN                string // full connection string, wins over the discrete fields
	Host               string
	Port               int
	User               string
	Password           string
	Database           string
	SSLMode            string
	Table              string
	MaxConnections     int
	MaxIdleConnections int
}

// ElasticsearchConfig holds Elasticsearch connection settings
type ElasticsearchConfig struct {
	Addresses []string
	Username  string
	Password  string
	Index     string
}

// BadgerConfig holds the embedded index settings
type BadgerConfig struct {
	Path     string
	InMemory bool
}

// SearchConfig holds search pipeline configuration
type SearchConfig struct {
	DefaultTopK        int
	MaxTopK            int
	MinSimilarity      float64
	MinResidualTokens  int
	Extractor          string
	ExtractionTimeout  time.Duration
	EncodingTimeout    time.Duration
	RetrievalTimeout   time.Duration
	EmbeddingCacheSize int
}

// RankingConfig holds ranking weights configuration
type RankingConfig struct {
	// SemanticWeight is alpha in final = alpha*semantic + (1-alpha)*metadata.
	SemanticWeight float64
}

// RelaxationConfig holds filter relaxation thresholds and margins
type RelaxationConfig struct {
	MinCandidates    int
	TopKRatio        float64
	MarginMode       string
	MarginPercent    float64
	PriceMargin      int64
	SquareFeetMargin int64
	RoomMargin       float64
}

// IngestConfig holds listing ingestion settings
type IngestConfig struct {
	BatchSize int
	Workers   int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

// OpenAIConfig holds OpenAI-compatible API configuration
type OpenAIConfig struct {
	Provider            string
	APIKey              string
	APIBase             string
	ChatModel           string
	ChatTemperature     float64
	ChatMaxTokens       int
	ChatExtraBody       string // raw JSON merged into chat requests, e.g. {"chat_template_kwargs": {"thinking": true}}
	EmbeddingModel      string
	EmbeddingExtraBody  string
	EmbeddingDimensions int
	BatchSize           int
	Timeout             int
	Enabled             bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvAsInt("SERVER_PORT", 8080),
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			GinMode:        getEnv("GIN_MODE", "release"),
			AllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
			AllowedMethods: getEnv("CORS_ALLOWED_METHODS", "GET,POST,DELETE,OPTIONS"),
			AllowedHeaders: getEnv("CORS_ALLOWED_HEADERS", "Content-Type,Authorization"),
		},
		Index: IndexConfig{
			Backend:      strings.ToLower(getEnv("INDEX_BACKEND", BackendPostgres)),
			EnsureSchema: getEnvAsBool("INDEX_ENSURE_SCHEMA", true),
		},
		PostgreSQL: PostgreSQLConfig{
			DSN:                getEnv("DATABASE_URL", getEnv("PG_DSN", "")),
			Host:               getEnv("PG_HOST", "localhost"),
			Port:               getEnvAsInt("PG_PORT", 5432),
			User:               getEnv("PG_USER", "postgres"),
			Password:           getEnv("PG_PASSWORD", ""),
			Database:           getEnv("PG_DATABASE", "property_search"),
			SSLMode:            getEnv("PG_SSLMODE", "disable"),
			Table:              getEnv("PG_TABLE", "property_listings"),
			MaxConnections:     getEnvAsInt("PG_MAX_CONNECTIONS", 25),
			MaxIdleConnections: getEnvAsInt("PG_MAX_IDLE_CONNECTIONS", 5),
		},
		Elasticsearch: ElasticsearchConfig{
			Addresses: splitList(getEnv("ES_ADDRESSES", "http://localhost:9200")),
			Username:  getEnv("ES_USERNAME", ""),
			Password:  getEnv("ES_PASSWORD", ""),
			Index:     getEnv("ES_INDEX", "real-estate-properties"),
		},
		Badger: BadgerConfig{
			Path:     getEnv("BADGER_PATH", "./data/index"),
			InMemory: getEnvAsBool("BADGER_IN_MEMORY", false),
		},
		Search: SearchConfig{
			DefaultTopK:        getEnvAsInt("SEARCH_DEFAULT_TOP_K", 5),
			MaxTopK:            getEnvAsInt("SEARCH_MAX_TOP_K", 50),
			MinSimilarity:      getEnvAsFloat("SEARCH_MIN_SIMILARITY", 0.15),
			MinResidualTokens:  getEnvAsInt("SEARCH_MIN_RESIDUAL_TOKENS", 1),
			Extractor:          strings.ToLower(getEnv("EXTRACTOR", ExtractorLLM)),
			ExtractionTimeout:  getEnvAsDuration("EXTRACTION_TIMEOUT", 8*time.Second),
			EncodingTimeout:    getEnvAsDuration("ENCODING_TIMEOUT", 5*time.Second),
			RetrievalTimeout:   getEnvAsDuration("RETRIEVAL_TIMEOUT", 5*time.Second),
			EmbeddingCacheSize: getEnvAsInt("EMBEDDING_CACHE_SIZE", 1024),
		},
		Ranking: RankingConfig{
			SemanticWeight: getEnvAsFloat("RANK_SEMANTIC_WEIGHT", 0.6),
		},
		Relaxation: RelaxationConfig{
			MinCandidates:    getEnvAsInt("RELAX_MIN_CANDIDATES", 3),
			TopKRatio:        getEnvAsFloat("RELAX_TOPK_RATIO", 0.5),
			MarginMode:       strings.ToLower(getEnv("RELAX_MARGIN_MODE", MarginPercent)),
			MarginPercent:    getEnvAsFloat("RELAX_MARGIN_PERCENT", 0.10),
			PriceMargin:      int64(getEnvAsInt("RELAX_PRICE_MARGIN", 50000)),
			SquareFeetMargin: int64(getEnvAsInt("RELAX_SQFT_MARGIN", 100)),
			RoomMargin:       getEnvAsFloat("RELAX_ROOM_MARGIN", 1),
		},
		Ingest: IngestConfig{
			BatchSize: getEnvAsInt("INGEST_BATCH_SIZE", 100),
			Workers:   getEnvAsInt("INGEST_WORKERS", 4),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			OutputPath: getEnv("LOG_OUTPUT_PATH", ""),
		},
		OpenAI: OpenAIConfig{
			Provider:            strings.ToLower(getEnv("AI_PROVIDER", ProviderHTTP)),
			APIKey:              getEnv("OPENAI_API_KEY", ""),
			APIBase:             strings.TrimRight(getEnv("OPENAI_API_BASE", "https://api.openai.com/v1"), "/"),
			ChatModel:           getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
			ChatTemperature:     getEnvAsFloat("OPENAI_CHAT_TEMPERATURE", 0),
			ChatMaxTokens:       getEnvAsInt("OPENAI_CHAT_MAX_TOKENS", 512),
			ChatExtraBody:       getEnv("OPENAI_CHAT_EXTRA_BODY", ""),
			EmbeddingExtraBody:  getEnv("OPENAI_EMBEDDING_EXTRA_BODY", ""),
			EmbeddingModel:      getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimensions: getEnvAsInt("OPENAI_EMBEDDING_DIMENSIONS", 1536),
			BatchSize:           getEnvAsInt("OPENAI_BATCH_SIZE", 100),
			Timeout:             getEnvAsInt("OPENAI_TIMEOUT", 30),
			Enabled:             getEnv("OPENAI_API_KEY", "") != "",
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations
func (c *Config) Validate() error {
	switch c.Index.Backend {
	case BackendPostgres, BackendElasticsearch, BackendBadger:
	default:
		return fmt.Errorf("unknown INDEX_BACKEND %q", c.Index.Backend)
	}
	switch c.OpenAI.Provider {
	case ProviderHTTP, ProviderLangchain:
	default:
		return fmt.Errorf("unknown AI_PROVIDER %q", c.OpenAI.Provider)
	}
	switch c.Search.Extractor {
	case ExtractorLLM, ExtractorRules:
	default:
		return fmt.Errorf("unknown EXTRACTOR %q", c.Search.Extractor)
	}
	switch c.Relaxation.MarginMode {
	case MarginPercent, MarginAbsolute:
	default:
		return fmt.Errorf("unknown RELAX_MARGIN_MODE %q", c.Relaxation.MarginMode)
	}
	if c.Ranking.SemanticWeight < 0 || c.Ranking.SemanticWeight > 1 {
		return fmt.Errorf("RANK_SEMANTIC_WEIGHT must be within [0,1], got %v", c.Ranking.SemanticWeight)
	}
	if c.Search.MinSimilarity < 0 || c.Search.MinSimilarity > 1 {
		return fmt.Errorf("SEARCH_MIN_SIMILARITY must be within [0,1], got %v", c.Search.MinSimilarity)
	}
	if c.Search.DefaultTopK <= 0 || c.Search.MaxTopK < c.Search.DefaultTopK {
		return fmt.Errorf("invalid top_k bounds: default %d, max %d", c.Search.DefaultTopK, c.Search.MaxTopK)
	}
	if c.Relaxation.MarginPercent < 0 || c.Relaxation.PriceMargin < 0 ||
		c.Relaxation.SquareFeetMargin < 0 || c.Relaxation.RoomMargin < 0 {
		return fmt.Errorf("relaxation margins must not be negative")
	}
	if c.Relaxation.MinCandidates < 0 || c.Relaxation.TopKRatio < 0 {
		return fmt.Errorf("relaxation thresholds must not be negative")
	}
	if c.OpenAI.EmbeddingDimensions <= 0 {
		return fmt.Errorf("OPENAI_EMBEDDING_DIMENSIONS must be positive")
	}
	return nil
}

// GetPostgreSQLDSN returns PostgreSQL connection string
func (c *Config) GetPostgreSQLDSN() string {
	if c.PostgreSQL.DSN != "" {
		return c.PostgreSQL.DSN
	}

	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgreSQL.Host,
		c.PostgreSQL.Port,
		c.PostgreSQL.User,
		c.PostgreSQL.Password,
		c.PostgreSQL.Database,
		c.PostgreSQL.SSLMode,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Warnf("Invalid integer value for %s, using default %d", key, defaultValue)
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
		log.Warnf("Invalid float value for %s, using default %f", key, defaultValue)
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
		log.Warnf("Invalid boolean value for %s, using default %t", key, defaultValue)
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go duration strings ("750ms", "5s") or bare milliseconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if ms, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Warnf("Invalid duration value for %s, using default %s", key, defaultValue)
		return defaultValue
	}
	return value
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

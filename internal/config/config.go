// Package config loads and validates the pipeline's runtime configuration
// from an optional YAML overlay plus environment variables (with .env
// support), following the teacher's DefaultConfig -> loadFromEnv -> Validate
// sequence, with a YAML overlay step ahead of env.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the clinical NLQ service.
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Pipeline  PipelineConfig  `json:"pipeline" yaml:"pipeline"`
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`
	Embedding EmbeddingConfig `json:"embedding" yaml:"embedding"`
	Generator GeneratorConfig `json:"generator" yaml:"generator"`
	Qdrant    QdrantConfig    `json:"qdrant" yaml:"qdrant"`
	Metadata  MetadataConfig  `json:"metadata" yaml:"metadata"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
}

// ServerConfig configures the REST surface (internal/api).
type ServerConfig struct {
	Port           int      `json:"port" yaml:"port"`
	Host           string   `json:"host" yaml:"host"`
	ReadTimeout    int      `json:"read_timeout_seconds" yaml:"read_timeout_seconds"`
	WriteTimeout   int      `json:"write_timeout_seconds" yaml:"write_timeout_seconds"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
}

// PipelineConfig bounds the orchestrator's overall and per-stage deadlines
// (spec.md section 5).
type PipelineConfig struct {
	OverallDeadline      time.Duration `json:"overall_deadline" yaml:"overall_deadline"`
	RetrievalDeadline    time.Duration `json:"retrieval_deadline" yaml:"retrieval_deadline"`
	GenerationDeadline   time.Duration `json:"generation_deadline" yaml:"generation_deadline"`
	MaxPartitionWorkers  int           `json:"max_partition_workers" yaml:"max_partition_workers"`
	SessionCleanupPeriod time.Duration `json:"session_cleanup_period" yaml:"session_cleanup_period"`
}

// RateLimitConfig bounds inbound query throughput (internal/api/middleware).
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"`
	Burst             int `json:"burst" yaml:"burst"`
}

// EmbeddingConfig describes the external embedding provider collaborator's
// endpoint and model, used to embed queries for semantic retrieval.
type EmbeddingConfig struct {
	Model          string        `json:"embedding_model" yaml:"embedding_model"`
	APIKey         string        `json:"-" yaml:"-"`
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`
	Dimensions     int           `json:"dimensions" yaml:"dimensions"`
}

// GeneratorConfig selects and configures the two-pass generation backend.
type GeneratorConfig struct {
	Backend     string        `json:"backend" yaml:"backend"` // "openai" or "anthropic"
	APIKey      string        `json:"-" yaml:"-"`
	Model       string        `json:"model" yaml:"model"`
	MaxTokens   int           `json:"max_tokens" yaml:"max_tokens"`
	Temperature float64       `json:"temperature" yaml:"temperature"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
}

// QdrantConfig configures the vector-index collaborator (internal/vectorstore).
type QdrantConfig struct {
	Host           string `json:"host" yaml:"host"`
	Port           int    `json:"port" yaml:"port"`
	APIKey         string `json:"-" yaml:"-"`
	UseTLS         bool   `json:"use_tls" yaml:"use_tls"`
	Collection     string `json:"collection" yaml:"collection"`
	RetryAttempts  int    `json:"retry_attempts" yaml:"retry_attempts"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds"`
}

// MetadataConfig configures the relational metadata store (internal/metadatastore).
type MetadataConfig struct {
	Host            string        `json:"host" yaml:"host"`
	Port            int           `json:"port" yaml:"port"`
	Name            string        `json:"name" yaml:"name"`
	User            string        `json:"user" yaml:"user"`
	Password        string        `json:"-" yaml:"-"`
	SSLMode         string        `json:"ssl_mode" yaml:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	QueryTimeout    time.Duration `json:"query_timeout" yaml:"query_timeout"`
}

// CacheConfig configures the two-tier cache manager (internal/cache): an
// in-process LRU plus an optional Redis tier for multi-instance deployments.
type CacheConfig struct {
	EmbeddingTTL       time.Duration `json:"embedding_ttl" yaml:"embedding_ttl"`
	EmbeddingCacheSize int           `json:"embedding_cache_size" yaml:"embedding_cache_size"`
	RetrievalTTL       time.Duration `json:"retrieval_ttl" yaml:"retrieval_ttl"`
	RetrievalCacheSize int           `json:"retrieval_cache_size" yaml:"retrieval_cache_size"`
	RedisAddr          string        `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`
	RedisEnabled       bool          `json:"redis_enabled" yaml:"redis_enabled"`
}

// LoggingConfig configures the zerolog-backed structured logger.
type LoggingConfig struct {
	Level string `json:"level" yaml:"level"`
	JSON  bool   `json:"json" yaml:"json"`
}

// DefaultConfig returns the service's baseline configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Pipeline: PipelineConfig{
			OverallDeadline:      6000 * time.Millisecond,
			RetrievalDeadline:    2000 * time.Millisecond,
			GenerationDeadline:   3000 * time.Millisecond,
			MaxPartitionWorkers:  4,
			SessionCleanupPeriod: 5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			Burst:             10,
		},
		Embedding: EmbeddingConfig{
			Model:          "text-embedding-3-small",
			RequestTimeout: 10 * time.Second,
			Dimensions:     1536,
		},
		Generator: GeneratorConfig{
			Backend:     "openai",
			Model:       "gpt-4o",
			MaxTokens:   1500,
			Temperature: 0.2,
			Timeout:     3 * time.Second,
		},
		Qdrant: QdrantConfig{
			Host:           "localhost",
			Port:           6334,
			Collection:     "patient_chunks",
			RetryAttempts:  3,
			TimeoutSeconds: 10,
		},
		Metadata: MetadataConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "clinical_nlq",
			User:            "postgres",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
			QueryTimeout:    5 * time.Second,
		},
		Cache: CacheConfig{
			EmbeddingTTL:       24 * time.Hour,
			EmbeddingCacheSize: 1000,
			RetrievalTTL:       5 * time.Minute,
			RetrievalCacheSize: 500,
			RedisEnabled:       false,
		},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  true,
		},
	}
}

// LoadConfig loads a .env file (if present), overlays an optional YAML
// config file onto DefaultConfig, applies environment overrides on top, and
// validates the result.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	cfg := DefaultConfig()

	yamlPath := getStringEnvWithDefault("NLQ_CONFIG_FILE", "config.yaml")
	if err := loadFromYAMLFile(cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("error loading YAML config %s: %w", yamlPath, err)
	}

	loadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFromYAMLFile overlays values from a YAML file onto cfg, leaving
// fields the file doesn't mention untouched. A missing file is not an
// error: the YAML overlay is optional, env vars and defaults are enough on
// their own.
func loadFromYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func loadFromEnv(cfg *Config) {
	loadServerConfig(cfg)
	loadPipelineConfig(cfg)
	loadRateLimitConfig(cfg)
	loadEmbeddingConfig(cfg)
	loadGeneratorConfig(cfg)
	loadQdrantConfig(cfg)
	loadMetadataConfig(cfg)
	loadCacheConfig(cfg)
	loadLoggingConfig(cfg)
}

func loadServerConfig(cfg *Config) {
	setIntFromEnv("NLQ_SERVER_PORT", &cfg.Server.Port)
	cfg.Server.Host = getStringEnvWithDefault("NLQ_SERVER_HOST", cfg.Server.Host)
	setIntFromEnv("NLQ_SERVER_READ_TIMEOUT_SECONDS", &cfg.Server.ReadTimeout)
	setIntFromEnv("NLQ_SERVER_WRITE_TIMEOUT_SECONDS", &cfg.Server.WriteTimeout)
	if origins := os.Getenv("NLQ_SERVER_ALLOWED_ORIGINS"); origins != "" {
		cfg.Server.AllowedOrigins = strings.Split(origins, ",")
	}
}

func loadPipelineConfig(cfg *Config) {
	setDurationFromEnv("NLQ_PIPELINE_OVERALL_DEADLINE", &cfg.Pipeline.OverallDeadline)
	setDurationFromEnv("NLQ_PIPELINE_RETRIEVAL_DEADLINE", &cfg.Pipeline.RetrievalDeadline)
	setDurationFromEnv("NLQ_PIPELINE_GENERATION_DEADLINE", &cfg.Pipeline.GenerationDeadline)
	setIntFromEnv("NLQ_PIPELINE_MAX_PARTITION_WORKERS", &cfg.Pipeline.MaxPartitionWorkers)
	setDurationFromEnv("NLQ_PIPELINE_SESSION_CLEANUP_PERIOD", &cfg.Pipeline.SessionCleanupPeriod)
}

func loadRateLimitConfig(cfg *Config) {
	setIntFromEnv("NLQ_RATE_LIMIT_RPM", &cfg.RateLimit.RequestsPerMinute)
	setIntFromEnv("NLQ_RATE_LIMIT_BURST", &cfg.RateLimit.Burst)
}

func loadEmbeddingConfig(cfg *Config) {
	cfg.Embedding.Model = getStringEnvWithDefault("NLQ_EMBEDDING_MODEL", cfg.Embedding.Model)
	cfg.Embedding.APIKey = getStringEnvWithDefault("OPENAI_API_KEY", cfg.Embedding.APIKey)
	setDurationFromEnv("NLQ_EMBEDDING_REQUEST_TIMEOUT", &cfg.Embedding.RequestTimeout)
	setIntFromEnv("NLQ_EMBEDDING_DIMENSIONS", &cfg.Embedding.Dimensions)
}

func loadGeneratorConfig(cfg *Config) {
	cfg.Generator.Backend = getStringEnvWithDefault("NLQ_GENERATOR_BACKEND", cfg.Generator.Backend)
	cfg.Generator.Model = getStringEnvWithDefault("NLQ_GENERATOR_MODEL", cfg.Generator.Model)
	setIntFromEnv("NLQ_GENERATOR_MAX_TOKENS", &cfg.Generator.MaxTokens)
	setFloatFromEnv("NLQ_GENERATOR_TEMPERATURE", &cfg.Generator.Temperature)
	setDurationFromEnv("NLQ_GENERATOR_TIMEOUT", &cfg.Generator.Timeout)

	switch cfg.Generator.Backend {
	case "anthropic":
		cfg.Generator.APIKey = getStringEnvWithDefault("ANTHROPIC_API_KEY", cfg.Generator.APIKey)
	default:
		cfg.Generator.APIKey = getStringEnvWithDefault("OPENAI_API_KEY", cfg.Generator.APIKey)
	}
}

func loadQdrantConfig(cfg *Config) {
	cfg.Qdrant.Host = getStringEnvWithFallback("NLQ_QDRANT_HOST", "QDRANT_HOST", cfg.Qdrant.Host)
	setIntFromEnv("NLQ_QDRANT_PORT", &cfg.Qdrant.Port)
	cfg.Qdrant.APIKey = getStringEnvWithFallback("NLQ_QDRANT_API_KEY", "QDRANT_API_KEY", cfg.Qdrant.APIKey)
	setBoolFromEnv("NLQ_QDRANT_USE_TLS", &cfg.Qdrant.UseTLS)
	cfg.Qdrant.Collection = getStringEnvWithDefault("NLQ_QDRANT_COLLECTION", cfg.Qdrant.Collection)
	setIntFromEnv("NLQ_QDRANT_RETRY_ATTEMPTS", &cfg.Qdrant.RetryAttempts)
	setIntFromEnv("NLQ_QDRANT_TIMEOUT_SECONDS", &cfg.Qdrant.TimeoutSeconds)
}

func loadMetadataConfig(cfg *Config) {
	cfg.Metadata.Host = getStringEnvWithDefault("NLQ_DB_HOST", cfg.Metadata.Host)
	setIntFromEnv("NLQ_DB_PORT", &cfg.Metadata.Port)
	cfg.Metadata.Name = getStringEnvWithDefault("NLQ_DB_NAME", cfg.Metadata.Name)
	cfg.Metadata.User = getStringEnvWithDefault("NLQ_DB_USER", cfg.Metadata.User)
	cfg.Metadata.Password = getStringEnvWithDefault("NLQ_DB_PASSWORD", cfg.Metadata.Password)
	cfg.Metadata.SSLMode = getStringEnvWithDefault("NLQ_DB_SSLMODE", cfg.Metadata.SSLMode)
	setIntFromEnv("NLQ_DB_MAX_OPEN_CONNS", &cfg.Metadata.MaxOpenConns)
	setIntFromEnv("NLQ_DB_MAX_IDLE_CONNS", &cfg.Metadata.MaxIdleConns)
	setDurationFromEnv("NLQ_DB_CONN_MAX_LIFETIME", &cfg.Metadata.ConnMaxLifetime)
	setDurationFromEnv("NLQ_DB_QUERY_TIMEOUT", &cfg.Metadata.QueryTimeout)
}

func loadCacheConfig(cfg *Config) {
	setDurationFromEnv("NLQ_CACHE_EMBEDDING_TTL", &cfg.Cache.EmbeddingTTL)
	setIntFromEnv("NLQ_CACHE_EMBEDDING_SIZE", &cfg.Cache.EmbeddingCacheSize)
	setDurationFromEnv("NLQ_CACHE_RETRIEVAL_TTL", &cfg.Cache.RetrievalTTL)
	setIntFromEnv("NLQ_CACHE_RETRIEVAL_SIZE", &cfg.Cache.RetrievalCacheSize)
	if addr := os.Getenv("NLQ_CACHE_REDIS_ADDR"); addr != "" {
		cfg.Cache.RedisAddr = addr
		cfg.Cache.RedisEnabled = true
	}
	setBoolFromEnv("NLQ_CACHE_REDIS_ENABLED", &cfg.Cache.RedisEnabled)
}

func loadLoggingConfig(cfg *Config) {
	cfg.Logging.Level = getStringEnvWithDefault("NLQ_LOG_LEVEL", cfg.Logging.Level)
	setBoolFromEnv("NLQ_LOG_JSON", &cfg.Logging.JSON)
}

// Validate checks the configuration for internally-consistent, usable values.
func (c *Config) Validate() error {
	if err := c.validateServerConfig(); err != nil {
		return err
	}
	if err := c.validatePipelineConfig(); err != nil {
		return err
	}
	if err := c.validateQdrantConfig(); err != nil {
		return err
	}
	if err := c.validateMetadataConfig(); err != nil {
		return err
	}
	if err := c.validateGeneratorConfig(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateServerConfig() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		return errors.New("server host cannot be empty")
	}
	return nil
}

func (c *Config) validatePipelineConfig() error {
	if c.Pipeline.OverallDeadline <= 0 {
		return errors.New("pipeline overall deadline must be positive")
	}
	if c.Pipeline.RetrievalDeadline+c.Pipeline.GenerationDeadline > c.Pipeline.OverallDeadline {
		return errors.New("retrieval + generation deadlines must not exceed the overall deadline")
	}
	if c.Pipeline.MaxPartitionWorkers <= 0 {
		return errors.New("max partition workers must be positive")
	}
	return nil
}

func (c *Config) validateQdrantConfig() error {
	if c.Qdrant.Host == "" {
		return errors.New("qdrant host cannot be empty")
	}
	if c.Qdrant.Port <= 0 {
		return errors.New("qdrant port must be greater than 0")
	}
	if c.Qdrant.Collection == "" {
		return errors.New("qdrant collection cannot be empty")
	}
	return nil
}

func (c *Config) validateMetadataConfig() error {
	if c.Metadata.Host == "" {
		return errors.New("metadata store host cannot be empty")
	}
	if c.Metadata.MaxOpenConns <= 0 {
		return errors.New("metadata store max open connections must be positive")
	}
	if c.Metadata.MaxIdleConns > c.Metadata.MaxOpenConns {
		return errors.New("metadata store max idle connections cannot exceed max open connections")
	}
	return nil
}

func (c *Config) validateGeneratorConfig() error {
	if c.Generator.Backend != "openai" && c.Generator.Backend != "anthropic" {
		return fmt.Errorf("unsupported generator backend: %s", c.Generator.Backend)
	}
	if c.Generator.APIKey == "" {
		return fmt.Errorf("generator backend %s has no API key configured", c.Generator.Backend)
	}
	if c.Generator.MaxTokens <= 0 {
		return errors.New("generator max tokens must be positive")
	}
	if c.Generator.Temperature < 0 || c.Generator.Temperature > 2 {
		return errors.New("generator temperature must be between 0 and 2")
	}
	return nil
}

func getStringEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getStringEnvWithFallback(primaryKey, fallbackKey, defaultValue string) string {
	if value := os.Getenv(primaryKey); value != "" {
		return value
	}
	if value := os.Getenv(fallbackKey); value != "" {
		return value
	}
	return defaultValue
}

func setIntFromEnv(key string, target *int) {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			*target = n
		}
	}
}

func setFloatFromEnv(key string, target *float64) {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			*target = f
		}
	}
}

func setBoolFromEnv(key string, target *bool) {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			*target = b
		}
	}
}

func setDurationFromEnv(key string, target *time.Duration) {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			*target = d
		}
	}
}


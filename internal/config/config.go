package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/davidbz/hearth/internal/audit"
	auditredis "github.com/davidbz/hearth/internal/audit/redis"
	embeddingopenai "github.com/davidbz/hearth/internal/embedding/openai"
	"github.com/davidbz/hearth/internal/provider/openai"
)

// Embedding backends accepted by EMBEDDING_PROVIDER.
const (
	EmbeddingHashing = "hashing"
	EmbeddingOpenAI  = "openai"
)

// Compression codecs accepted by COMPRESSION_CODEC.
const (
	CodecDictionary = "dictionary"
	CodecCommand    = "command"
)

// Provider modes accepted by COMPRESSION_PROVIDER_MODE.
const (
	ProviderModeDecompress = "decompress"
	ProviderModeNative     = "native"
)

// Config represents the gateway configuration.
type Config struct {
	Server      ServerConfig
	CORS        CORSConfig
	OpenAI      openai.Config
	Embedding   EmbeddingConfig
	Cache       CacheConfig
	Compression CompressionConfig
	Pipeline    PipelineConfig
	Audit       audit.Config
	AuditRedis  auditredis.Config
}

// ServerConfig contains HTTP server settings.
// WriteTimeout must outlast the longest stream.
type ServerConfig struct {
	Port         int `env:"SERVER_PORT"          envDefault:"8080"`
	ReadTimeout  int `env:"SERVER_READ_TIMEOUT"  envDefault:"30"`
	WriteTimeout int `env:"SERVER_WRITE_TIMEOUT" envDefault:"150"`
}

// CORSConfig contains CORS policy settings.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envSeparator:"," envDefault:"*"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS"   envSeparator:"," envDefault:"GET,POST,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS"   envSeparator:"," envDefault:"Content-Type,Authorization,Cache-Control,X-User-Id"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"                  envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE"                            envDefault:"86400"`
}

// EmbeddingConfig selects and tunes the embedding generator.
type EmbeddingConfig struct {
	Provider  string `env:"EMBEDDING_PROVIDER"   envDefault:"hashing"`
	Dimension int    `env:"EMBEDDING_DIMENSION"  envDefault:"384"`
	TimeoutMs int    `env:"EMBEDDING_TIMEOUT_MS" envDefault:"2000"`
	OpenAI    embeddingopenai.Config
}

// CacheConfig contains semantic cache settings.
type CacheConfig struct {
	Enabled             bool    `env:"CACHE_ENABLED"              envDefault:"true"`
	SimilarityThreshold float64 `env:"CACHE_SIMILARITY_THRESHOLD" envDefault:"0.92"`
	MaxItems            int     `env:"CACHE_MAX_ITEMS"            envDefault:"10000"`
	ReplayChunkRunes    int     `env:"CACHE_REPLAY_CHUNK_RUNES"   envDefault:"32"`
	SnapshotPath        string  `env:"CACHE_SNAPSHOT_PATH"`
}

// CompressionConfig contains prompt compression settings.
type CompressionConfig struct {
	Enabled      bool     `env:"COMPRESSION_ENABLED"       envDefault:"true"`
	Codec        string   `env:"COMPRESSION_CODEC"         envDefault:"dictionary"`
	Command      string   `env:"COMPRESSION_COMMAND"`
	CommandArgs  []string `env:"COMPRESSION_COMMAND_ARGS"  envSeparator:" "`
	TimeoutMs    int      `env:"COMPRESSION_TIMEOUT_MS"    envDefault:"500"`
	ProviderMode string   `env:"COMPRESSION_PROVIDER_MODE" envDefault:"decompress"`
}

// PipelineConfig contains orchestration settings.
type PipelineConfig struct {
	// ProviderTimeout is in seconds.
	ProviderTimeout int `env:"PIPELINE_PROVIDER_TIMEOUT" envDefault:"120"`
}

// DepConfig is used for dependency injection with dig.
type DepConfig struct {
	dig.Out

	Server      *ServerConfig
	CORS        *CORSConfig
	OpenAI      *openai.Config
	Embedding   *EmbeddingConfig
	Cache       *CacheConfig
	Compression *CompressionConfig
	Pipeline    *PipelineConfig
	Audit       *audit.Config
	AuditRedis  *auditredis.Config
}

// Load loads environment files and parses configuration.
func Load() *Config {
	for _, file := range []string{".env"} {
		_ = godotenv.Load(file)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		panic(err)
	}

	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	return &cfg
}

// Validate rejects settings the gateway cannot run with.
func (c *Config) Validate() error {
	if c.Cache.SimilarityThreshold < 0 || c.Cache.SimilarityThreshold > 1 {
		return fmt.Errorf("CACHE_SIMILARITY_THRESHOLD must be within [0, 1], got %v", c.Cache.SimilarityThreshold)
	}

	if c.Cache.Enabled && c.Cache.MaxItems < 1 {
		return fmt.Errorf("CACHE_MAX_ITEMS must be positive, got %d", c.Cache.MaxItems)
	}

	switch c.Embedding.Provider {
	case EmbeddingHashing, EmbeddingOpenAI:
	default:
		return fmt.Errorf("unknown EMBEDDING_PROVIDER %q", c.Embedding.Provider)
	}

	if c.Embedding.Dimension < 1 {
		return fmt.Errorf("EMBEDDING_DIMENSION must be positive, got %d", c.Embedding.Dimension)
	}

	switch c.Compression.Codec {
	case CodecDictionary:
	case CodecCommand:
		if c.Compression.Enabled && c.Compression.Command == "" {
			return fmt.Errorf("COMPRESSION_COMMAND is required for codec %q", CodecCommand)
		}
	default:
		return fmt.Errorf("unknown COMPRESSION_CODEC %q", c.Compression.Codec)
	}

	switch c.Compression.ProviderMode {
	case ProviderModeDecompress, ProviderModeNative:
	default:
		return fmt.Errorf("unknown COMPRESSION_PROVIDER_MODE %q", c.Compression.ProviderMode)
	}

	switch c.Audit.Backend {
	case audit.BackendNone, audit.BackendLog, audit.BackendRedis:
	default:
		return fmt.Errorf("unknown AUDIT_BACKEND %q", c.Audit.Backend)
	}

	return nil
}

// ParseDependenciesConfig returns pointers to sub-configs for dependency injection.
func ParseDependenciesConfig(cfg *Config) DepConfig {
	return DepConfig{
		Server:      &cfg.Server,
		CORS:        &cfg.CORS,
		OpenAI:      &cfg.OpenAI,
		Embedding:   &cfg.Embedding,
		Cache:       &cfg.Cache,
		Compression: &cfg.Compression,
		Pipeline:    &cfg.Pipeline,
		Audit:       &cfg.Audit,
		AuditRedis:  &cfg.AuditRedis,
	}
}

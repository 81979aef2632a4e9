package config_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/config"
)

func TestLoad(t *testing.T) {
	t.Run("should load config with defaults", func(t *testing.T) {
		// Clear environment
		os.Clearenv()

		cfg := config.Load()

		require.NotNil(t, cfg)

		require.Equal(t, 8080, cfg.Server.Port)
		require.Equal(t, 30, cfg.Server.ReadTimeout)
		require.Equal(t, 150, cfg.Server.WriteTimeout)
		require.Equal(t, "https://api.openai.com/v1", cfg.OpenAI.BaseURL)
		require.Equal(t, 60, cfg.OpenAI.Timeout)
		require.Equal(t, 3, cfg.OpenAI.MaxRetries)
		require.Empty(t, cfg.OpenAI.APIKey)

		require.True(t, cfg.Cache.Enabled)
		require.InDelta(t, 0.92, cfg.Cache.SimilarityThreshold, 1e-9)
		require.Equal(t, 10000, cfg.Cache.MaxItems)
		require.Equal(t, 32, cfg.Cache.ReplayChunkRunes)
		require.Empty(t, cfg.Cache.SnapshotPath)

		require.Equal(t, config.EmbeddingHashing, cfg.Embedding.Provider)
		require.Equal(t, 2000, cfg.Embedding.TimeoutMs)
		require.Equal(t, 384, cfg.Embedding.Dimension)
		require.Equal(t, "text-embedding-3-small", cfg.Embedding.OpenAI.Model)

		require.True(t, cfg.Compression.Enabled)
		require.Equal(t, config.CodecDictionary, cfg.Compression.Codec)
		require.Equal(t, 500, cfg.Compression.TimeoutMs)
		require.Equal(t, config.ProviderModeDecompress, cfg.Compression.ProviderMode)

		require.Equal(t, 120, cfg.Pipeline.ProviderTimeout)

		require.Equal(t, "log", cfg.Audit.Backend)
		require.Equal(t, 1024, cfg.Audit.BufferSize)
		require.Equal(t, "hearth:audit", cfg.AuditRedis.Stream)
		require.Equal(t, int64(100000), cfg.AuditRedis.MaxLen)
	})

	t.Run("should load config from environment variables", func(t *testing.T) {
		os.Clearenv()

		// Set environment variables using t.Setenv for automatic cleanup
		t.Setenv("SERVER_PORT", "9000")
		t.Setenv("SERVER_READ_TIMEOUT", "60")
		t.Setenv("SERVER_WRITE_TIMEOUT", "60")
		t.Setenv("OPENAI_API_KEY", "sk-test-key")
		t.Setenv("OPENAI_BASE_URL", "https://test.openai.com")
		t.Setenv("OPENAI_TIMEOUT", "120")
		t.Setenv("OPENAI_MAX_RETRIES", "5")
		t.Setenv("CACHE_SIMILARITY_THRESHOLD", "0.85")
		t.Setenv("CACHE_MAX_ITEMS", "50")
		t.Setenv("EMBEDDING_PROVIDER", "openai")
		t.Setenv("EMBEDDING_DIMENSION", "1536")
		t.Setenv("COMPRESSION_CODEC", "command")
		t.Setenv("COMPRESSION_COMMAND", "/usr/local/bin/squeeze")
		t.Setenv("COMPRESSION_COMMAND_ARGS", "--level 3")
		t.Setenv("COMPRESSION_PROVIDER_MODE", "native")
		t.Setenv("AUDIT_BACKEND", "redis")
		t.Setenv("AUDIT_REDIS_ADDR", "redis:6379")

		cfg := config.Load()

		require.NotNil(t, cfg)

		require.Equal(t, 9000, cfg.Server.Port)
		require.Equal(t, 60, cfg.Server.ReadTimeout)
		require.Equal(t, 60, cfg.Server.WriteTimeout)
		require.Equal(t, "sk-test-key", cfg.OpenAI.APIKey)
		require.Equal(t, "https://test.openai.com", cfg.OpenAI.BaseURL)
		require.Equal(t, 120, cfg.OpenAI.Timeout)
		require.Equal(t, 5, cfg.OpenAI.MaxRetries)

		require.InDelta(t, 0.85, cfg.Cache.SimilarityThreshold, 1e-9)
		require.Equal(t, 50, cfg.Cache.MaxItems)
		require.Equal(t, config.EmbeddingOpenAI, cfg.Embedding.Provider)
		require.Equal(t, "sk-test-key", cfg.Embedding.OpenAI.APIKey)
		require.Equal(t, 1536, cfg.Embedding.Dimension)
		require.Equal(t, config.CodecCommand, cfg.Compression.Codec)
		require.Equal(t, []string{"--level", "3"}, cfg.Compression.CommandArgs)
		require.Equal(t, config.ProviderModeNative, cfg.Compression.ProviderMode)
		require.Equal(t, "redis", cfg.Audit.Backend)
		require.Equal(t, "redis:6379", cfg.AuditRedis.Addr)
	})

	t.Run("should reject invalid settings", func(t *testing.T) {
		os.Clearenv()
		t.Setenv("CACHE_SIMILARITY_THRESHOLD", "1.5")

		require.Panics(t, func() { config.Load() })
	})
}

func TestConfig_Validate(t *testing.T) {
	valid := func() config.Config {
		var cfg config.Config
		cfg.Cache.Enabled = true
		cfg.Cache.SimilarityThreshold = 0.92
		cfg.Cache.MaxItems = 10
		cfg.Embedding.Provider = config.EmbeddingHashing
		cfg.Embedding.Dimension = 384
		cfg.Compression.Enabled = true
		cfg.Compression.Codec = config.CodecDictionary
		cfg.Compression.ProviderMode = config.ProviderModeDecompress
		cfg.Audit.Backend = "log"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*config.Config) {}},
		{
			name:    "negative threshold",
			mutate:  func(c *config.Config) { c.Cache.SimilarityThreshold = -0.1 },
			wantErr: "CACHE_SIMILARITY_THRESHOLD",
		},
		{
			name:    "zero capacity",
			mutate:  func(c *config.Config) { c.Cache.MaxItems = 0 },
			wantErr: "CACHE_MAX_ITEMS",
		},
		{
			name: "zero capacity with cache disabled",
			mutate: func(c *config.Config) {
				c.Cache.Enabled = false
				c.Cache.MaxItems = 0
			},
		},
		{
			name:    "unknown embedder",
			mutate:  func(c *config.Config) { c.Embedding.Provider = "word2vec" },
			wantErr: "EMBEDDING_PROVIDER",
		},
		{
			name:    "command codec without command",
			mutate:  func(c *config.Config) { c.Compression.Codec = config.CodecCommand },
			wantErr: "COMPRESSION_COMMAND",
		},
		{
			name: "command codec without command while compression disabled",
			mutate: func(c *config.Config) {
				c.Compression.Enabled = false
				c.Compression.Codec = config.CodecCommand
			},
		},
		{
			name:    "zero embedding dimension",
			mutate:  func(c *config.Config) { c.Embedding.Dimension = 0 },
			wantErr: "EMBEDDING_DIMENSION",
		},
		{
			name:    "unknown provider mode",
			mutate:  func(c *config.Config) { c.Compression.ProviderMode = "both" },
			wantErr: "COMPRESSION_PROVIDER_MODE",
		},
		{
			name:    "unknown audit backend",
			mutate:  func(c *config.Config) { c.Audit.Backend = "kafka" },
			wantErr: "AUDIT_BACKEND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/dig"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/davidbz/hearth/internal/audit"
	auditredis "github.com/davidbz/hearth/internal/audit/redis"
	"github.com/davidbz/hearth/internal/cache/semantic"
	"github.com/davidbz/hearth/internal/compression"
	"github.com/davidbz/hearth/internal/config"
	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/embedding/hashing"
	embeddingopenai "github.com/davidbz/hearth/internal/embedding/openai"
	"github.com/davidbz/hearth/internal/http"
	"github.com/davidbz/hearth/internal/http/middleware"
	"github.com/davidbz/hearth/internal/observability"
	"github.com/davidbz/hearth/internal/provider/echo"
	"github.com/davidbz/hearth/internal/provider/openai"
	"github.com/davidbz/hearth/internal/provider/registry"
	"github.com/davidbz/hearth/internal/stream"
)

const shutdownTimeout = 15 * time.Second

// runParams are the long-lived components started and stopped by run.
type runParams struct {
	dig.In

	Logger     *zap.Logger
	Server     *http.Server
	Dispatcher *audit.Dispatcher
	Index      *semantic.Index
	Cache      *config.CacheConfig
}

func main() {
	container := buildContainer()

	if err := container.Invoke(run); err != nil {
		log.Fatalf("Application failed: %v", err)
	}
}

func run(p runParams) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer func() { _ = p.Logger.Sync() }()

	logger := observability.FromContext(ctx)
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return p.Server.Start(groupCtx)
	})

	if p.Dispatcher != nil {
		group.Go(func() error {
			// Run returns once Close has drained the queue.
			return p.Dispatcher.Run(context.WithoutCancel(groupCtx))
		})
	}

	group.Go(func() error {
		<-groupCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := p.Server.Shutdown(shutdownCtx)

		if p.Dispatcher != nil {
			p.Dispatcher.Close()
		}

		if p.Index != nil && p.Cache.SnapshotPath != "" {
			if saveErr := p.Index.SaveFile(shutdownCtx, p.Cache.SnapshotPath); saveErr != nil {
				logger.Error("failed to save cache snapshot", observability.Error(saveErr))
			}
		}

		return err
	})

	return group.Wait()
}

func buildContainer() *dig.Container {
	container := dig.New()

	provide := func(constructor interface{}, what string) {
		if err := container.Provide(constructor); err != nil {
			log.Fatalf("Failed to provide %s: %v", what, err)
		}
	}

	// Configuration
	provide(config.Load, "config")
	provide(config.ParseDependenciesConfig, "config dependencies")

	// Observability
	provide(observability.InitLogger, "logger")
	provide(func() domain.EventPublisher {
		return observability.NewEventBus()
	}, "event bus")

	// Pricing and providers
	provide(func() domain.PricingRegistry {
		return domain.NewPriceTable()
	}, "pricing registry")
	provide(func(pricing domain.PricingRegistry) domain.CostCalculator {
		return domain.NewTokenCostCalculator(pricing)
	}, "cost calculator")
	provide(newProviderRegistry, "provider registry")

	// Semantic cache
	provide(newEmbeddingGenerator, "embedding generator")
	provide(newIndex, "vector index")
	provide(newSemanticCache, "semantic cache")

	// Compression
	provide(newCompressor, "compressor")

	// Audit
	provide(newAuditDispatcher, "audit dispatcher")
	provide(func(d *audit.Dispatcher) domain.AuditRecorder {
		if d == nil {
			return nil
		}
		return d
	}, "audit recorder")

	// Domain Services
	provide(newPipeline, "pipeline")

	// HTTP Layer
	provide(stream.NewEmitter, "stream emitter")
	provide(http.NewHandler, "HTTP handler")
	provide(middleware.BuildMiddlewareChain, "middleware chain")
	provide(http.NewServer, "HTTP server")

	return container
}

// newProviderRegistry registers echo always and OpenAI when a key is set.
// Registration order decides contested models, so OpenAI goes first.
func newProviderRegistry(
	_ *zap.Logger,
	openaiCfg *openai.Config,
	pricing domain.PricingRegistry,
) (domain.ProviderRegistry, error) {
	ctx := context.Background()
	logger := observability.FromContext(ctx)
	reg := registry.NewRegistry()

	if openaiCfg.APIKey != "" {
		provider, err := openai.NewProvider(*openaiCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI provider: %w", err)
		}
		if err := reg.Register(ctx, provider); err != nil {
			return nil, fmt.Errorf("failed to register OpenAI provider: %w", err)
		}
		if err := openai.RegisterPricing(ctx, pricing); err != nil {
			return nil, err
		}
	} else {
		logger.Warn("OPENAI_API_KEY not set, OpenAI provider disabled")
	}

	if err := reg.Register(ctx, echo.NewProvider()); err != nil {
		return nil, fmt.Errorf("failed to register echo provider: %w", err)
	}
	if err := echo.RegisterPricing(ctx, pricing); err != nil {
		return nil, err
	}

	return reg, nil
}

func newEmbeddingGenerator(cacheCfg *config.CacheConfig, cfg *config.EmbeddingConfig) (domain.EmbeddingGenerator, error) {
	if !cacheCfg.Enabled {
		return nil, nil
	}

	switch cfg.Provider {
	case config.EmbeddingOpenAI:
		openaiCfg := cfg.OpenAI
		openaiCfg.Dimension = cfg.Dimension
		gen, err := embeddingopenai.NewGenerator(openaiCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI embedding generator: %w", err)
		}
		return gen, nil
	default:
		gen, err := hashing.NewGenerator(cfg.Dimension)
		if err != nil {
			return nil, fmt.Errorf("failed to create hashing embedding generator: %w", err)
		}
		return gen, nil
	}
}

func newIndex(cfg *config.CacheConfig, gen domain.EmbeddingGenerator) (*semantic.Index, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	index, err := semantic.NewIndex(cfg.MaxItems, gen.Dimension())
	if err != nil {
		return nil, fmt.Errorf("failed to create vector index: %w", err)
	}

	if cfg.SnapshotPath != "" {
		ctx := context.Background()
		if err := index.LoadFile(ctx, cfg.SnapshotPath); err != nil {
			// A stale or foreign snapshot must not keep the gateway down.
			observability.FromContext(ctx).Warn("ignoring cache snapshot",
				observability.String("path", cfg.SnapshotPath),
				observability.Error(err))
		}
	}

	return index, nil
}

func newSemanticCache(
	cfg *config.CacheConfig,
	embeddingCfg *config.EmbeddingConfig,
	gen domain.EmbeddingGenerator,
	index *semantic.Index,
) domain.SemanticCache {
	if !cfg.Enabled {
		return nil
	}

	return domain.NewSemanticCacheService(
		gen,
		index,
		cfg.SimilarityThreshold,
		time.Duration(embeddingCfg.TimeoutMs)*time.Millisecond,
	)
}

func newCompressor(cfg *config.CompressionConfig) (domain.Compressor, error) {
	var codec compression.Codec = compression.NewDictionaryCodec()

	if cfg.Codec == config.CodecCommand && cfg.Enabled {
		command, err := compression.NewCommandCodec(cfg.Command, cfg.CommandArgs)
		if err != nil {
			return nil, fmt.Errorf("failed to create compression command: %w", err)
		}
		codec = command
	}

	return compression.NewService(codec, cfg.Enabled, time.Duration(cfg.TimeoutMs)*time.Millisecond), nil
}

func newAuditDispatcher(cfg *audit.Config, redisCfg *auditredis.Config) (*audit.Dispatcher, error) {
	var writer audit.Writer

	switch cfg.Backend {
	case audit.BackendNone:
		return nil, nil
	case audit.BackendRedis:
		client, err := auditredis.NewClient(context.Background(), *redisCfg)
		if err != nil {
			return nil, err
		}
		redisWriter, err := auditredis.NewWriter(client, redisCfg.Stream, redisCfg.MaxLen)
		if err != nil {
			return nil, err
		}
		writer = redisWriter
	default:
		writer = audit.NewLogWriter()
	}

	return audit.NewDispatcher(writer, cfg.BufferSize, time.Duration(cfg.WriteTimeoutMs)*time.Millisecond), nil
}

func newPipeline(
	registry domain.ProviderRegistry,
	costCalculator domain.CostCalculator,
	compressor domain.Compressor,
	cache domain.SemanticCache,
	auditRecorder domain.AuditRecorder,
	events domain.EventPublisher,
	pipelineCfg *config.PipelineConfig,
	cacheCfg *config.CacheConfig,
	compressionCfg *config.CompressionConfig,
) *domain.Pipeline {
	return domain.NewPipeline(
		registry,
		costCalculator,
		compressor,
		cache,
		auditRecorder,
		events,
		domain.PipelineOptions{
			ProviderTimeout:   time.Duration(pipelineCfg.ProviderTimeout) * time.Second,
			ReplayChunkRunes:  cacheCfg.ReplayChunkRunes,
			NativeCompression: compressionCfg.ProviderMode == config.ProviderModeNative,
		},
	)
}

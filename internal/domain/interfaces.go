package domain

import "context"

// Provider represents any LLM provider.
type Provider interface {
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Stream sends a completion request and returns a stream of chunks.
	// The channel is closed after a Done chunk, an error chunk, or when ctx
	// is cancelled.
	Stream(ctx context.Context, req *CompletionRequest) (<-chan StreamChunk, error)

	// Name returns the provider identifier.
	Name() string

	// IsModelSupported checks if the provider supports the given model.
	IsModelSupported(ctx context.Context, model string) bool

	// SupportedModels returns the models known up front.
	SupportedModels(ctx context.Context) []string
}

// ProviderRegistry manages available providers.
type ProviderRegistry interface {
	// Register adds a provider to the registry.
	Register(ctx context.Context, provider Provider) error

	// Get retrieves a provider by name.
	Get(ctx context.Context, providerName string) (Provider, error)

	// GetByModel retrieves the provider serving a model.
	GetByModel(ctx context.Context, model string) (Provider, error)

	// List returns all available providers.
	List(ctx context.Context) ([]string, error)
}

// EventPublisher publishes events for observability.
type EventPublisher interface {
	// Publish publishes an event with the given type and data.
	Publish(ctx context.Context, eventType string, data map[string]interface{})
}

// CompressionResult is the outcome of compressing one text.
// Compressed is never empty unless Original is empty.
type CompressionResult struct {
	Original   string
	Compressed string
}

// Compressor shrinks prompt text and restores it on a best-effort basis.
// Implementations never fail: on any internal error they return their input.
type Compressor interface {
	Compress(ctx context.Context, text string) CompressionResult
	Decompress(ctx context.Context, text string) string
}

// AuditRecord is handed to the persistence collaborator after each
// completed request.
type AuditRecord struct {
	RequestID          string
	UserID             string
	Model              string
	Provider           string
	CompressedMessages []Message
	Answer             string
	CacheHit           bool
	Usage              Usage
}

// AuditRecorder persists audit records. Record must not block.
type AuditRecorder interface {
	Record(ctx context.Context, record AuditRecord)
}

package domain

import "time"

// Message roles understood by the pipeline.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// CompletionRequest represents a unified LLM request.
type CompletionRequest struct {
	Model       string            `json:"model"`
	Messages    []Message         `json:"messages"`
	Temperature float64           `json:"temperature,omitempty"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Stream      bool              `json:"stream,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // user, assistant, system
	Content string `json:"content"`
}

// CompletionResponse represents a unified LLM response.
type CompletionResponse struct {
	ID           string    `json:"id"`
	Model        string    `json:"model"`
	Provider     string    `json:"provider"`
	Content      string    `json:"content"`
	FinishReason string    `json:"finish_reason,omitempty"`
	Usage        Usage     `json:"usage"`
	FinishTime   time.Time `json:"finish_time"`
}

// StreamChunk represents a single streaming response chunk.
type StreamChunk struct {
	Delta        string `json:"delta"`
	Done         bool   `json:"done"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        *Usage `json:"usage,omitempty"`
	Error        error  `json:"-"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	Cost             float64 `json:"cost,omitempty"`
}

// CacheControl carries the per-request cache decisions.
type CacheControl struct {
	// NoCache skips the lookup and forces a provider call.
	NoCache bool
	// NoStore skips inserting the provider answer.
	NoStore bool
}

// PipelineRequest is the validated input handed to the pipeline by the API layer.
type PipelineRequest struct {
	UserID       string
	Completion   *CompletionRequest
	CacheControl CacheControl
}

// CacheInfo describes how the cache participated in a response.
type CacheInfo struct {
	Hit             bool
	SimilarityScore float64
	CachedAt        time.Time
}

// PipelineResult is the terminal outcome of a non-streaming pipeline run.
type PipelineResult struct {
	Response *CompletionResponse
	// Cache is nil when the cache did not take part (disabled or bypassed).
	Cache *CacheInfo
	// CompressedMessages is the message list as seen by the cache and audit.
	CompressedMessages []Message
}

// CacheHit reports whether the answer was served from the cache.
func (r *PipelineResult) CacheHit() bool {
	return r != nil && r.Cache != nil && r.Cache.Hit
}

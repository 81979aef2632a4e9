// Package redis writes audit records to a Redis stream.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/davidbz/hearth/internal/domain"
)

// StreamAdder is the subset of the Redis client used by Writer.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Writer appends audit records to a capped Redis stream.
type Writer struct {
	client StreamAdder
	stream string
	maxLen int64
	now    func() time.Time
}

// NewClient creates a Redis client from config and verifies the connection.
func NewClient(ctx context.Context, config Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", config.Addr, err)
	}

	return client, nil
}

// NewWriter creates a stream writer.
func NewWriter(client StreamAdder, stream string, maxLen int64) (*Writer, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" {
		return nil, errors.New("stream name cannot be empty")
	}

	return &Writer{
		client: client,
		stream: stream,
		maxLen: maxLen,
		now:    time.Now,
	}, nil
}

// Name returns the backend identifier.
func (w *Writer) Name() string {
	return "redis"
}

// Write appends record as one stream entry. The stream is trimmed
// approximately to maxLen.
func (w *Writer) Write(ctx context.Context, record domain.AuditRecord) error {
	messages, err := json.Marshal(record.CompressedMessages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: w.stream,
		Values: map[string]interface{}{
			"request_id":        record.RequestID,
			"user_id":           record.UserID,
			"model":             record.Model,
			"provider":          record.Provider,
			"messages":          string(messages),
			"answer":            record.Answer,
			"cache_hit":         strconv.FormatBool(record.CacheHit),
			"prompt_tokens":     record.Usage.PromptTokens,
			"completion_tokens": record.Usage.CompletionTokens,
			"total_tokens":      record.Usage.TotalTokens,
			"cost":              strconv.FormatFloat(record.Usage.Cost, 'f', -1, 64),
			"recorded_at":       w.now().UTC().Format(time.RFC3339Nano),
		},
	}
	if w.maxLen > 0 {
		args.MaxLen = w.maxLen
		args.Approx = true
	}

	if err := w.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to append to stream %s: %w", w.stream, err)
	}

	return nil
}

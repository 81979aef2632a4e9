package audit

import (
	"context"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

// LogWriter writes audit records as structured log lines.
type LogWriter struct{}

// NewLogWriter creates a log-backed audit writer.
func NewLogWriter() *LogWriter {
	return &LogWriter{}
}

// Name returns the backend identifier.
func (w *LogWriter) Name() string {
	return BackendLog
}

// Write logs record at info level. Message contents are summarised by size.
func (w *LogWriter) Write(ctx context.Context, record domain.AuditRecord) error {
	promptBytes := 0
	for _, msg := range record.CompressedMessages {
		promptBytes += len(msg.Content)
	}

	observability.FromContext(ctx).Info("audit",
		observability.String("request_id", record.RequestID),
		observability.String("user_id", record.UserID),
		observability.String("model", record.Model),
		observability.String("provider", record.Provider),
		observability.Bool("cache_hit", record.CacheHit),
		observability.Int("messages", len(record.CompressedMessages)),
		observability.Int("prompt_bytes", promptBytes),
		observability.Int("answer_bytes", len(record.Answer)),
		observability.Int("total_tokens", record.Usage.TotalTokens),
		observability.Float64("cost", record.Usage.Cost))

	return nil
}

// Package audit delivers per-request audit records to a persistence backend
// without blocking the response path.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/observability"
)

const (
	resultWritten = "written"
	resultDropped = "dropped"
	resultError   = "error"
)

// Writer persists one audit record.
type Writer interface {
	// Name returns the backend identifier.
	Name() string

	// Write stores record.
	Write(ctx context.Context, record domain.AuditRecord) error
}

// Dispatcher implements domain.AuditRecorder with a bounded queue drained by
// a single worker. Records that do not fit in the queue are dropped.
type Dispatcher struct {
	writer       Writer
	writeTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan domain.AuditRecord
}

// NewDispatcher creates a dispatcher. Run must be started for records to
// be written.
func NewDispatcher(writer Writer, bufferSize int, writeTimeout time.Duration) *Dispatcher {
	if bufferSize < 1 {
		bufferSize = 1
	}

	return &Dispatcher{
		writer:       writer,
		writeTimeout: writeTimeout,
		queue:        make(chan domain.AuditRecord, bufferSize),
	}
}

// Record enqueues record without blocking.
func (d *Dispatcher) Record(ctx context.Context, record domain.AuditRecord) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(ctx, record, "dispatcher closed")
		return
	}

	select {
	case d.queue <- record:
	default:
		d.drop(ctx, record, "queue full")
	}
}

// Run writes queued records until Close is called and the queue is drained.
func (d *Dispatcher) Run(ctx context.Context) error {
	logger := observability.FromContext(ctx)
	logger.Info("audit dispatcher started", observability.String("backend", d.writer.Name()))

	for record := range d.queue {
		d.write(ctx, record)
	}

	logger.Info("audit dispatcher stopped")
	return nil
}

// Close stops accepting records. Records already queued are still written
// by Run. Close is idempotent.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}
	d.closed = true
	close(d.queue)
}

func (d *Dispatcher) write(ctx context.Context, record domain.AuditRecord) {
	// The worker outlives the requests it serves; only the deadline is its own.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.writeTimeout)
	defer cancel()

	if err := d.writer.Write(writeCtx, record); err != nil {
		observability.AuditRecords.WithLabelValues(resultError).Inc()
		observability.FromContext(ctx).Warn("audit write failed",
			observability.String("backend", d.writer.Name()),
			observability.String("request_id", record.RequestID),
			observability.Error(err))
		return
	}

	observability.AuditRecords.WithLabelValues(resultWritten).Inc()
}

func (d *Dispatcher) drop(ctx context.Context, record domain.AuditRecord, reason string) {
	observability.AuditRecords.WithLabelValues(resultDropped).Inc()
	observability.FromContext(ctx).Warn("audit record dropped",
		observability.String("reason", reason),
		observability.String("request_id", record.RequestID))
}

package audit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/hearth/internal/audit"
	"github.com/davidbz/hearth/internal/domain"
)

type recordingWriter struct {
	mu      sync.Mutex
	records []domain.AuditRecord
	err     error
	block   chan struct{}
}

func (w *recordingWriter) Name() string {
	return "recording"
}

func (w *recordingWriter) Write(_ context.Context, record domain.AuditRecord) error {
	if w.block != nil {
		<-w.block
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.records = append(w.records, record)
	return w.err
}

func (w *recordingWriter) ids() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	ids := make([]string, 0, len(w.records))
	for _, record := range w.records {
		ids = append(ids, record.RequestID)
	}
	return ids
}

func runDispatcher(t *testing.T, d *audit.Dispatcher) <-chan error {
	t.Helper()

	done := make(chan error, 1)
	go func() {
		done <- d.Run(context.Background())
	}()
	return done
}

func TestDispatcher_WritesInOrder(t *testing.T) {
	writer := &recordingWriter{}
	d := audit.NewDispatcher(writer, 16, time.Second)
	done := runDispatcher(t, d)

	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		d.Record(ctx, domain.AuditRecord{RequestID: id})
	}

	d.Close()
	require.NoError(t, <-done)
	require.Equal(t, []string{"a", "b", "c"}, writer.ids())
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	writer := &recordingWriter{}
	d := audit.NewDispatcher(writer, 2, time.Second)

	ctx := context.Background()
	start := time.Now()
	for _, id := range []string{"a", "b", "c", "d"} {
		d.Record(ctx, domain.AuditRecord{RequestID: id})
	}
	require.Less(t, time.Since(start), time.Second)

	done := runDispatcher(t, d)
	d.Close()
	require.NoError(t, <-done)
	require.Equal(t, []string{"a", "b"}, writer.ids())
}

func TestDispatcher_RecordAfterClose(t *testing.T) {
	writer := &recordingWriter{}
	d := audit.NewDispatcher(writer, 4, time.Second)
	done := runDispatcher(t, d)

	d.Close()
	d.Close()
	require.NotPanics(t, func() {
		d.Record(context.Background(), domain.AuditRecord{RequestID: "late"})
	})

	require.NoError(t, <-done)
	require.Empty(t, writer.ids())
}

func TestDispatcher_WriterErrorsDoNotStopWorker(t *testing.T) {
	writer := &recordingWriter{err: errors.New("backend down")}
	d := audit.NewDispatcher(writer, 4, time.Second)
	done := runDispatcher(t, d)

	ctx := context.Background()
	d.Record(ctx, domain.AuditRecord{RequestID: "a"})
	d.Record(ctx, domain.AuditRecord{RequestID: "b"})

	d.Close()
	require.NoError(t, <-done)
	require.Equal(t, []string{"a", "b"}, writer.ids())
}

func TestDispatcher_RecordDoesNotWaitForWriter(t *testing.T) {
	writer := &recordingWriter{block: make(chan struct{})}
	d := audit.NewDispatcher(writer, 1, time.Second)
	done := runDispatcher(t, d)

	ctx := context.Background()
	start := time.Now()
	for range 10 {
		d.Record(ctx, domain.AuditRecord{RequestID: "x"})
	}
	require.Less(t, time.Since(start), time.Second)

	close(writer.block)
	d.Close()
	require.NoError(t, <-done)
	require.NotEmpty(t, writer.ids())
}

func TestLogWriter(t *testing.T) {
	writer := audit.NewLogWriter()
	require.Equal(t, audit.BackendLog, writer.Name())
	require.NoError(t, writer.Write(context.Background(), domain.AuditRecord{
		RequestID:          "req-1",
		CompressedMessages: []domain.Message{{Role: domain.RoleUser, Content: "hello"}},
	}))
}

package logger

import (
	"context"
	"log/slog"
	"sync"
)

// AsyncHandler buffers records through a channel and writes them from a
// single background goroutine, keeping the caller off the I/O path.
type AsyncHandler struct {
	next       slog.Handler
	records    chan asyncRecord
	dropOnFull bool
	closeOnce  sync.Once
	done       chan struct{}
}

type asyncRecord struct {
	ctx context.Context
	r   slog.Record
}

// NewAsyncHandler wraps next so that Handle enqueues records instead of
// blocking on them. When the buffer is full, records are dropped if
// dropOnFull is true, otherwise the caller blocks.
func NewAsyncHandler(next slog.Handler, bufSize int, dropOnFull bool) *AsyncHandler {
	if bufSize <= 0 {
		bufSize = 1024
	}
	h := &AsyncHandler{
		next:       next,
		records:    make(chan asyncRecord, bufSize),
		dropOnFull: dropOnFull,
		done:       make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *AsyncHandler) loop() {
	defer close(h.done)
	for rec := range h.records {
		_ = h.next.Handle(rec.ctx, rec.r)
	}
}

func (h *AsyncHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *AsyncHandler) Handle(ctx context.Context, r slog.Record) error {
	rec := asyncRecord{ctx: ctx, r: r.Clone()}
	if h.dropOnFull {
		select {
		case h.records <- rec:
		default:
			// Buffer full: drop rather than block the caller.
		}
		return nil
	}
	h.records <- rec
	return nil
}

func (h *AsyncHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &AsyncHandler{next: h.next.WithAttrs(attrs), records: h.records, dropOnFull: h.dropOnFull, done: h.done}
}

func (h *AsyncHandler) WithGroup(name string) slog.Handler {
	return &AsyncHandler{next: h.next.WithGroup(name), records: h.records, dropOnFull: h.dropOnFull, done: h.done}
}

// Close stops accepting new records and waits for the buffer to drain.
func (h *AsyncHandler) Close() {
	h.closeOnce.Do(func() {
		close(h.records)
	})
	<-h.done
}

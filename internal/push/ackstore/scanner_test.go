package ackstore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chris-alexander-pop/system-design-library/internal/push/ackstore"
	cachemem "github.com/chris-alexander-pop/system-design-library/pkg/cache/adapters/memory"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu         sync.Mutex
	redelivers []ackstore.Record
	degrades   []ackstore.Record
}

func (r *recordingHandler) Redeliver(ctx context.Context, rec ackstore.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.redelivers = append(r.redelivers, rec)
	return nil
}

func (r *recordingHandler) Degrade(ctx context.Context, rec ackstore.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.degrades = append(r.degrades, rec)
	return nil
}

func (r *recordingHandler) counts() (redelivers, degrades int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.redelivers), len(r.degrades)
}

func TestScannerRedeliversUntilRetryBudgetExhaustedThenDegrades(t *testing.T) {
	store := ackstore.New(ackstore.Config{}, cachemem.New(), nil)
	ctx := context.Background()

	// SentAt already past the low-importance timeout so the first scan
	// tick fires immediately instead of waiting out a real timeout.
	rec := ackstore.Record{
		MessageID:  "m1",
		UserID:     "u1",
		Importance: ackstore.ImportanceLow,
		SentAt:     time.Now().Add(-time.Hour),
	}
	require.NoError(t, store.Track(ctx, rec))

	h := &recordingHandler{}
	scanner := ackstore.NewScanner(ackstore.ScannerConfig{
		CheckInterval: 5 * time.Millisecond,
		LowTimeout:    time.Millisecond,
		MaxRetryCount: 2,
	}, store, h, h)

	runCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_ = scanner.Run(runCtx)

	redelivers, degrades := h.counts()
	require.Equal(t, 2, redelivers)
	require.Equal(t, 1, degrades)
}

func TestScannerLeavesFreshEntriesAlone(t *testing.T) {
	store := ackstore.New(ackstore.Config{}, cachemem.New(), nil)
	ctx := context.Background()

	require.NoError(t, store.Track(ctx, ackstore.Record{
		MessageID:  "m1",
		UserID:     "u1",
		Importance: ackstore.ImportanceHigh,
	}))

	h := &recordingHandler{}
	scanner := ackstore.NewScanner(ackstore.ScannerConfig{
		CheckInterval: 5 * time.Millisecond,
		HighTimeout:   time.Hour,
		MaxRetryCount: 3,
	}, store, h, h)

	runCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_ = scanner.Run(runCtx)

	redelivers, degrades := h.counts()
	require.Equal(t, 0, redelivers)
	require.Equal(t, 0, degrades)
}

package ackstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/chris-alexander-pop/system-design-library/internal/push/ackstore"
	cachemem "github.com/chris-alexander-pop/system-design-library/pkg/cache/adapters/memory"
	"github.com/stretchr/testify/require"
)

func TestTrackThenAckSucceeds(t *testing.T) {
	store := ackstore.New(ackstore.Config{}, cachemem.New(), nil)
	ctx := context.Background()

	rec := ackstore.Record{MessageID: "m1", UserID: "u1", Importance: ackstore.ImportanceHigh}
	require.NoError(t, store.Track(ctx, rec))
	require.NoError(t, store.Ack(ctx, "m1", "u1"))
}

func TestAckWithoutTrackReturnsNotFound(t *testing.T) {
	store := ackstore.New(ackstore.Config{}, cachemem.New(), nil)
	require.Error(t, store.Ack(context.Background(), "missing", "u1"))
}

func TestAckIsNotRepeatable(t *testing.T) {
	store := ackstore.New(ackstore.Config{}, cachemem.New(), nil)
	ctx := context.Background()

	rec := ackstore.Record{MessageID: "m1", UserID: "u1"}
	require.NoError(t, store.Track(ctx, rec))
	require.NoError(t, store.Ack(ctx, "m1", "u1"))
	require.Error(t, store.Ack(ctx, "m1", "u1"))
}

func TestTrackPreservesExplicitSentAt(t *testing.T) {
	c := cachemem.New()
	store := ackstore.New(ackstore.Config{}, c, nil)
	ctx := context.Background()

	sentAt := time.Now().Add(-time.Hour)
	require.NoError(t, store.Track(ctx, ackstore.Record{MessageID: "m1", UserID: "u1", SentAt: sentAt}))
	var stored struct{ Record ackstore.Record }
	require.NoError(t, c.Get(ctx, "ack:pending:m1:u1", &stored))
	require.True(t, stored.Record.SentAt.Equal(sentAt))
	require.NoError(t, store.Ack(ctx, "m1", "u1"))
}

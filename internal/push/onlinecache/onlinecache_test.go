package onlinecache_test

import (
	"context"
	"testing"
	"time"

	"github.com/chris-alexander-pop/system-design-library/internal/ports"
	"github.com/chris-alexander-pop/system-design-library/internal/push/onlinecache"
	"github.com/stretchr/testify/require"
)

type countingOnline struct {
	ports.Online
	calls  int
	status map[string]ports.OnlineStatus
}

func (c *countingOnline) GetOnlineStatus(ctx context.Context, userIDs []string) (map[string]ports.OnlineStatus, error) {
	c.calls++
	out := make(map[string]ports.OnlineStatus, len(userIDs))
	for _, id := range userIDs {
		if st, ok := c.status[id]; ok {
			out[id] = st
		}
	}
	return out, nil
}

func TestBatchGetOnlineStatusServesRepeatsFromL1(t *testing.T) {
	backing := &countingOnline{status: map[string]ports.OnlineStatus{"u1": {UserID: "u1", Online: true}}}
	c := onlinecache.New(backing, onlinecache.Config{L1TTL: time.Minute})

	_, err := c.BatchGetOnlineStatus(context.Background(), []string{"u1"})
	require.NoError(t, err)
	_, err = c.BatchGetOnlineStatus(context.Background(), []string{"u1"})
	require.NoError(t, err)

	require.Equal(t, 1, backing.calls)
}

func TestBatchGetOnlineStatusOnlyFetchesMisses(t *testing.T) {
	backing := &countingOnline{status: map[string]ports.OnlineStatus{
		"u1": {UserID: "u1", Online: true},
		"u2": {UserID: "u2", Online: false},
	}}
	c := onlinecache.New(backing, onlinecache.Config{L1TTL: time.Minute})

	out, err := c.BatchGetOnlineStatus(context.Background(), []string{"u1"})
	require.NoError(t, err)
	require.True(t, out["u1"].Online)

	out, err = c.BatchGetOnlineStatus(context.Background(), []string{"u1", "u2"})
	require.NoError(t, err)
	require.True(t, out["u1"].Online)
	require.False(t, out["u2"].Online)
	require.Equal(t, 2, backing.calls)
}

func TestIsOnline(t *testing.T) {
	backing := &countingOnline{status: map[string]ports.OnlineStatus{"u1": {UserID: "u1", Online: true}}}
	c := onlinecache.New(backing, onlinecache.Config{})

	online, err := c.IsOnline(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, online)

	online, err = c.IsOnline(context.Background(), "unknown")
	require.NoError(t, err)
	require.False(t, online)
}

func TestInvalidateForcesRefetch(t *testing.T) {
	backing := &countingOnline{status: map[string]ports.OnlineStatus{"u1": {UserID: "u1", Online: true}}}
	c := onlinecache.New(backing, onlinecache.Config{L1TTL: time.Minute})

	_, err := c.BatchGetOnlineStatus(context.Background(), []string{"u1"})
	require.NoError(t, err)
	c.Invalidate("u1")
	_, err = c.BatchGetOnlineStatus(context.Background(), []string{"u1"})
	require.NoError(t, err)

	require.Equal(t, 2, backing.calls)
}

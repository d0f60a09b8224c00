package flowcontrol_test

import (
	"context"
	"testing"

	"github.com/chris-alexander-pop/system-design-library/internal/push/flowcontrol"
	cachemem "github.com/chris-alexander-pop/system-design-library/pkg/cache/adapters/memory"
	"github.com/stretchr/testify/require"
)

func TestCheckAllowsUnderLimit(t *testing.T) {
	ctl := flowcontrol.New(flowcontrol.Config{SessionQPSLimit: 5}, cachemem.New(), nil)
	for i := 0; i < 5; i++ {
		require.NoError(t, ctl.Check(context.Background(), "conv-1"))
	}
}

func TestCheckRejectsOverLimit(t *testing.T) {
	ctl := flowcontrol.New(flowcontrol.Config{SessionQPSLimit: 2}, cachemem.New(), nil)
	ctx := context.Background()
	require.NoError(t, ctl.Check(ctx, "conv-1"))
	require.NoError(t, ctl.Check(ctx, "conv-1"))
	require.Error(t, ctl.Check(ctx, "conv-1"))
}

func TestCheckTracksConversationsIndependently(t *testing.T) {
	ctl := flowcontrol.New(flowcontrol.Config{SessionQPSLimit: 1}, cachemem.New(), nil)
	ctx := context.Background()
	require.NoError(t, ctl.Check(ctx, "conv-a"))
	require.NoError(t, ctl.Check(ctx, "conv-b"))
}

type stubMonitoring struct {
	lag     uint64
	latency float64
}

func (s stubMonitoring) KafkaLag(ctx context.Context) (uint64, error)            { return s.lag, nil }
func (s stubMonitoring) StorageLatencyMillis(ctx context.Context) (float64, error) { return s.latency, nil }

func TestCheckRejectsOnBackpressure(t *testing.T) {
	ctl := flowcontrol.New(flowcontrol.Config{SessionQPSLimit: 1000, KafkaLagLimit: 100}, cachemem.New(), stubMonitoring{lag: 200})
	require.Error(t, ctl.Check(context.Background(), "conv-1"))
}

func TestCheckPassesWithoutMonitoringClient(t *testing.T) {
	ctl := flowcontrol.New(flowcontrol.Config{SessionQPSLimit: 1000}, cachemem.New(), nil)
	require.NoError(t, ctl.Check(context.Background(), "conv-1"))
}

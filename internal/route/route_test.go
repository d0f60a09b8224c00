package route_test

import (
	"context"
	"testing"

	onlinemem "github.com/chris-alexander-pop/system-design-library/internal/online/adapters/memory"
	"github.com/chris-alexander-pop/system-design-library/internal/ports"
	"github.com/chris-alexander-pop/system-design-library/internal/route"
	"github.com/stretchr/testify/require"
)

func seedDevices(t *testing.T, online *onlinemem.Service) {
	ctx := context.Background()
	_, _, _, err := online.Login(ctx, ports.Session{
		UserID: "u1", DeviceID: "ios", Platform: "ios", GatewayID: "gw-1",
		Priority: ports.PriorityHigh, ConflictPolicy: ports.PolicyCoexist,
		Quality: &ports.Quality{RTTMillis: 40, LossRate: 0.01},
	})
	require.NoError(t, err)
	_, _, _, err = online.Login(ctx, ports.Session{
		UserID: "u1", DeviceID: "desktop", Platform: "desktop", GatewayID: "gw-2",
		Priority: ports.PriorityHigh, ConflictPolicy: ports.PolicyCoexist,
		Quality: &ports.Quality{RTTMillis: 200, LossRate: 0.1},
	})
	require.NoError(t, err)
	_, _, _, err = online.Login(ctx, ports.Session{
		UserID: "u1", DeviceID: "watch", Platform: "watch", GatewayID: "gw-3",
		Priority: ports.PriorityLow, ConflictPolicy: ports.PolicyCoexist,
	})
	require.NoError(t, err)
}

func TestSelectPushTargetsAllDevices(t *testing.T) {
	online := onlinemem.New()
	seedDevices(t, online)
	svc := route.New(online, nil)

	targets, err := svc.SelectPushTargets(context.Background(), "u1", ports.StrategyAllDevices)
	require.NoError(t, err)
	require.Len(t, targets, 3)
}

func TestSelectPushTargetsActiveDevicesExcludesLow(t *testing.T) {
	online := onlinemem.New()
	seedDevices(t, online)
	svc := route.New(online, nil)

	targets, err := svc.SelectPushTargets(context.Background(), "u1", ports.StrategyActiveDevices)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	for _, tg := range targets {
		require.NotEqual(t, "watch", tg.DeviceID)
	}
}

func TestSelectPushTargetsBestDevicePrefersBetterQuality(t *testing.T) {
	online := onlinemem.New()
	seedDevices(t, online)
	svc := route.New(online, nil)

	targets, err := svc.SelectPushTargets(context.Background(), "u1", ports.StrategyBestDevice)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	require.Equal(t, "ios", targets[0].DeviceID)
}

func TestRouteMessageUnknownSVID(t *testing.T) {
	svc := route.New(onlinemem.New(), nil)
	_, _, err := svc.RouteMessage(context.Background(), "unknown", []byte("x"), nil)
	require.Error(t, err)
}

func TestRouteMessageForwardsToRegisteredSVID(t *testing.T) {
	called := false
	svc := route.New(onlinemem.New(), map[string]route.Forwarder{
		"billing": func(ctx context.Context, payload []byte, options map[string]string) (string, []byte, error) {
			called = true
			return "billing-endpoint", []byte("ok"), nil
		},
	})
	endpoint, resp, err := svc.RouteMessage(context.Background(), "billing", []byte("x"), nil)
	require.NoError(t, err)
	require.True(t, called)
	require.Equal(t, "billing-endpoint", endpoint)
	require.Equal(t, []byte("ok"), resp)
}

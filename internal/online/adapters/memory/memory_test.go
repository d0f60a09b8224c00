package memory_test

import (
	"context"
	"testing"

	"github.com/chris-alexander-pop/system-design-library/internal/online/adapters/memory"
	"github.com/chris-alexander-pop/system-design-library/internal/ports"
	"github.com/stretchr/testify/require"
)

func TestLoginExclusiveEvictsAllPriorSessions(t *testing.T) {
	svc := memory.New()
	ctx := context.Background()

	_, _, _, err := svc.Login(ctx, ports.Session{UserID: "u1", DeviceID: "d1", Platform: "ios", ConflictPolicy: ports.PolicyCoexist})
	require.NoError(t, err)
	_, _, _, err = svc.Login(ctx, ports.Session{UserID: "u1", DeviceID: "d2", Platform: "android", ConflictPolicy: ports.PolicyCoexist})
	require.NoError(t, err)

	_, _, evicted, err := svc.Login(ctx, ports.Session{UserID: "u1", DeviceID: "d3", Platform: "web", ConflictPolicy: ports.PolicyExclusive})
	require.NoError(t, err)
	require.Len(t, evicted, 2)

	devices, err := svc.ListUserDevices(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.Equal(t, "d3", devices[0].DeviceID)
}

func TestLoginPlatformExclusiveEvictsOnlySamePlatform(t *testing.T) {
	svc := memory.New()
	ctx := context.Background()

	_, _, _, err := svc.Login(ctx, ports.Session{UserID: "u1", DeviceID: "ios-old", Platform: "ios", ConflictPolicy: ports.PolicyCoexist})
	require.NoError(t, err)
	_, _, _, err = svc.Login(ctx, ports.Session{UserID: "u1", DeviceID: "desktop", Platform: "desktop", ConflictPolicy: ports.PolicyCoexist})
	require.NoError(t, err)

	_, _, evicted, err := svc.Login(ctx, ports.Session{UserID: "u1", DeviceID: "ios-new", Platform: "ios", ConflictPolicy: ports.PolicyPlatformExclusive})
	require.NoError(t, err)
	require.Len(t, evicted, 1)
	require.Equal(t, "ios-old", evicted[0].DeviceID)

	devices, err := svc.ListUserDevices(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, devices, 2)
}

func TestLoginCoexistEvictsNothing(t *testing.T) {
	svc := memory.New()
	ctx := context.Background()

	_, _, _, err := svc.Login(ctx, ports.Session{UserID: "u1", DeviceID: "d1", ConflictPolicy: ports.PolicyCoexist})
	require.NoError(t, err)
	_, _, evicted, err := svc.Login(ctx, ports.Session{UserID: "u1", DeviceID: "d2", ConflictPolicy: ports.PolicyCoexist})
	require.NoError(t, err)
	require.Empty(t, evicted)
}

func TestGetOnlineStatusReflectsLogout(t *testing.T) {
	svc := memory.New()
	ctx := context.Background()
	_, _, _, err := svc.Login(ctx, ports.Session{UserID: "u1", DeviceID: "d1", ConflictPolicy: ports.PolicyCoexist})
	require.NoError(t, err)

	statuses, err := svc.GetOnlineStatus(ctx, []string{"u1", "u2"})
	require.NoError(t, err)
	require.True(t, statuses["u1"].Online)
	require.False(t, statuses["u2"].Online)

	require.NoError(t, svc.Logout(ctx, "u1", "d1"))
	statuses, err = svc.GetOnlineStatus(ctx, []string{"u1"})
	require.NoError(t, err)
	require.False(t, statuses["u1"].Online)
}

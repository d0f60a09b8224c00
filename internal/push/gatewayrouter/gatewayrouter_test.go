package gatewayrouter_test

import (
	"context"
	"testing"

	"github.com/chris-alexander-pop/system-design-library/internal/frame"
	"github.com/chris-alexander-pop/system-design-library/internal/gateway"
	"github.com/chris-alexander-pop/system-design-library/internal/ports"
	"github.com/chris-alexander-pop/system-design-library/internal/push/gatewayrouter"
	"github.com/stretchr/testify/require"
)

func TestParseDeploymentMode(t *testing.T) {
	require.Equal(t, gatewayrouter.SingleRegion, gatewayrouter.ParseDeploymentMode(""))
	require.Equal(t, gatewayrouter.SingleRegion, gatewayrouter.ParseDeploymentMode("single_region"))
	require.Equal(t, gatewayrouter.MultiRegion, gatewayrouter.ParseDeploymentMode("multi_region"))
	require.Equal(t, gatewayrouter.MultiRegion, gatewayrouter.ParseDeploymentMode("multi-region"))
}

func TestParseEndpoints(t *testing.T) {
	endpoints := gatewayrouter.ParseEndpoints("gw1:10.0.0.1:9000, gw2:10.0.0.2:9000,")
	require.Equal(t, map[string]string{
		"gw1": "10.0.0.1:9000",
		"gw2": "10.0.0.2:9000",
	}, endpoints)
}

func TestParseEndpointsIgnoresMalformedEntries(t *testing.T) {
	endpoints := gatewayrouter.ParseEndpoints("gw1, ,gw2:addr")
	require.Equal(t, map[string]string{"gw2": "addr"}, endpoints)
}

func TestDeliverLocalWithoutHeldConnectionIsUnavailable(t *testing.T) {
	gw := gateway.New(gateway.Config{GatewayID: "gw1"}, nil, nil, nil)
	router := gatewayrouter.New(gatewayrouter.Config{LocalGatewayID: "gw1"}, gw.Handle())

	err := router.Deliver(context.Background(), ports.PushTarget{GatewayID: "gw1", ServerID: "session-1"}, &frame.Frame{})
	require.Error(t, err)
}

func TestDeliverRemoteWithoutEndpointIsNotFound(t *testing.T) {
	gw := gateway.New(gateway.Config{GatewayID: "gw1"}, nil, nil, nil)
	router := gatewayrouter.New(gatewayrouter.Config{LocalGatewayID: "gw1"}, gw.Handle())

	err := router.Deliver(context.Background(), ports.PushTarget{GatewayID: "gw2", ServerID: "session-1"}, &frame.Frame{})
	require.Error(t, err)
}

func TestCloseWithNoPooledConnectionsSucceeds(t *testing.T) {
	gw := gateway.New(gateway.Config{GatewayID: "gw1"}, nil, nil, nil)
	router := gatewayrouter.New(gatewayrouter.Config{LocalGatewayID: "gw1"}, gw.Handle())
	require.NoError(t, router.Close())
}

// Package gatewayrouter delivers a push frame to the Access Gateway that
// owns the target session's socket, locally when this pod holds it,
// otherwise over a pooled gRPC connection to the owning gateway pod
// (single-region or multi-region deployment).
package gatewayrouter

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/chris-alexander-pop/system-design-library/internal/frame"
	"github.com/chris-alexander-pop/system-design-library/internal/gateway"
	"github.com/chris-alexander-pop/system-design-library/internal/ports"
	clientgrpc "github.com/chris-alexander-pop/system-design-library/pkg/client/grpc"
	"github.com/chris-alexander-pop/system-design-library/pkg/errors"
	"github.com/chris-alexander-pop/system-design-library/pkg/rpc/jsoncodec"
	"google.golang.org/grpc"
)

// DeploymentMode mirrors a single-region pod treating every gateway id as
// local, versus a multi-region pod that must dial out for any gateway id
// other than its own.
type DeploymentMode int

const (
	SingleRegion DeploymentMode = iota
	MultiRegion
)

// ParseDeploymentMode reads the GATEWAY_DEPLOYMENT_MODE-style string.
func ParseDeploymentMode(s string) DeploymentMode {
	switch strings.ToLower(strings.ReplaceAll(s, "-", "_")) {
	case "multi_region", "multi":
		return MultiRegion
	default:
		return SingleRegion
	}
}

// ParseEndpoints reads a "gateway_id:endpoint,gateway_id:endpoint" list,
// the same format the env var GATEWAY_ENDPOINTS carries.
func ParseEndpoints(raw string) map[string]string {
	endpoints := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			continue
		}
		endpoints[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return endpoints
}

// Config configures the router's deployment topology. DialTemplate
// supplies the resilience settings (timeout, circuit breaker, retry)
// every pooled connection to a remote gateway is dialed with; only its
// Target is overridden per gateway_id.
type Config struct {
	LocalGatewayID string `env:"LOCAL_GATEWAY_ID"`
	DeploymentMode string `env:"GATEWAY_DEPLOYMENT_MODE" env-default:"single_region"`
	EndpointsRaw   string `env:"GATEWAY_ENDPOINTS"`
	DialTemplate   clientgrpc.Config
}

// Router resolves a PushTarget's gateway_id to a delivery path and
// dispatches one frame to it.
type Router struct {
	localID   string
	mode      DeploymentMode
	endpoints map[string]string
	local     gateway.Handle
	dialTmpl  clientgrpc.Config

	mu    sync.RWMutex
	conns map[string]*grpc.ClientConn
}

// New builds a Router. local is this pod's own connection table handle,
// used when a target's gateway_id resolves to the local pod.
func New(cfg Config, local gateway.Handle) *Router {
	return &Router{
		localID:   cfg.LocalGatewayID,
		mode:      ParseDeploymentMode(cfg.DeploymentMode),
		endpoints: ParseEndpoints(cfg.EndpointsRaw),
		local:     local,
		dialTmpl:  cfg.DialTemplate,
		conns:     make(map[string]*grpc.ClientConn),
	}
}

func (r *Router) isLocal(gatewayID string) bool {
	if r.localID != "" {
		return gatewayID == r.localID
	}
	return r.mode == SingleRegion
}

// Deliver pushes f to target, locally if this pod owns the session,
// otherwise via a pooled gRPC call to the owning gateway pod.
func (r *Router) Deliver(ctx context.Context, target ports.PushTarget, f *frame.Frame) error {
	if r.isLocal(target.GatewayID) {
		delivered := r.local.PushTo(target.ServerID, func(c *gateway.Connection) bool {
			return c.Push(f)
		})
		if !delivered {
			return errors.Unavailable("no local connection held for session "+target.ServerID, nil)
		}
		return nil
	}

	conn, err := r.connFor(ctx, target.GatewayID)
	if err != nil {
		return err
	}

	req := &gateway.PushRequest{SessionID: target.ServerID, Frame: f}
	resp := &gateway.PushResponse{}
	if err := conn.Invoke(ctx, "/push.v1.AccessGatewayService/PushMessage", req, resp, grpc.CallContentSubtype(jsoncodec.Name)); err != nil {
		return errors.FromGRPCStatus(err)
	}
	if !resp.Delivered {
		return errors.Unavailable("remote gateway could not deliver to session "+target.ServerID, nil)
	}
	return nil
}

func (r *Router) connFor(ctx context.Context, gatewayID string) (*grpc.ClientConn, error) {
	r.mu.RLock()
	conn, ok := r.conns[gatewayID]
	r.mu.RUnlock()
	if ok {
		return conn, nil
	}

	endpoint, ok := r.endpoints[gatewayID]
	if !ok {
		return nil, errors.NotFound(fmt.Sprintf("no endpoint configured for gateway %s", gatewayID), nil)
	}

	dialCfg := r.dialTmpl
	dialCfg.Target = endpoint
	conn, err := clientgrpc.New(ctx, dialCfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to dial remote gateway "+gatewayID)
	}

	r.mu.Lock()
	if existing, ok := r.conns[gatewayID]; ok {
		r.mu.Unlock()
		conn.Close()
		return existing, nil
	}
	r.conns[gatewayID] = conn
	r.mu.Unlock()
	return conn, nil
}

// Close releases every pooled gateway connection.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, conn := range r.conns {
		if err := conn.Close(); err != nil {
			return errors.Wrap(err, "failed to close connection to gateway "+id)
		}
	}
	return nil
}

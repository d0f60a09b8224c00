// Package gateway implements the Access Gateway: client-facing
// WebSocket/QUIC transport termination, authentication, heartbeat
// enforcement, and frame dispatch into the orchestration pipeline.
package gateway

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/chris-alexander-pop/system-design-library/internal/frame"
	"github.com/chris-alexander-pop/system-design-library/internal/ports"
	"github.com/chris-alexander-pop/system-design-library/pkg/errors"
	"github.com/chris-alexander-pop/system-design-library/pkg/logger"
	"github.com/google/uuid"
)

// Sink is the subset of the Message Orchestrator a gateway needs: take
// one client send, return the ack it should forward back down the
// originating socket.
type Sink interface {
	SendMessage(ctx context.Context, senderID, tenant string, cmd *frame.MessageCommand) (*frame.SendEnvelopeAck, error)
}

// DeliveryAckSink receives a client's ack of a server-initiated push, so
// the Push Server can retire its delivery-timeout tracking. Optional:
// a gateway with no DeliveryAckSink simply drops client acks.
type DeliveryAckSink interface {
	AckDelivery(ctx context.Context, userID, messageID string) error
}

// Config configures one gateway pod.
type Config struct {
	GatewayID      string `env:"GATEWAY_ID" env-required:"true"`
	Tenant         string `env:"GATEWAY_DEFAULT_TENANT" env-default:"default"`
	MaxMessageSize int    `env:"GATEWAY_MAX_MESSAGE_SIZE_BYTES" env-default:"10485760"`
}

// Server terminates client transports and feeds decoded frames into a Sink.
type Server struct {
	cfg    Config
	auth   Authenticator
	online ports.Online
	sink   Sink
	acks   DeliveryAckSink
	table  *ConnectionTable

	conns int64
}

// New builds a gateway Server. Handle() exposes the connection table to
// collaborators that need to push to a locally-held socket.
func New(cfg Config, auth Authenticator, online ports.Online, sink Sink) *Server {
	return &Server{cfg: cfg, auth: auth, online: online, sink: sink, table: newConnectionTable()}
}

// SetDeliveryAckSink wires the Push Server's ack tracking into this
// gateway's dispatch loop. Called once during startup wiring.
func (s *Server) SetDeliveryAckSink(acks DeliveryAckSink) {
	s.acks = acks
}

// Handle returns a non-owning reference to this server's connection table.
func (s *Server) Handle() Handle {
	return NewHandle(s.table)
}

// PushRequest/PushResponse are the AccessGatewayService.PushMessage wire
// types, shared between the cross-region gatewayrouter client and this
// gateway's own RPC server so both sides agree on the JSON shape.
type PushRequest struct {
	SessionID string       `json:"session_id"`
	Frame     *frame.Frame `json:"frame"`
}

type PushResponse struct {
	Delivered bool `json:"delivered"`
}

// PushMessage implements AccessGatewayService.PushMessage: it delivers a
// push frame to a locally-held session. A miss returns Delivered=false
// rather than an error, since the caller (gatewayrouter) treats "not
// held here" as a routing outcome, not a failure.
func (s *Server) PushMessage(ctx context.Context, req *PushRequest) (*PushResponse, error) {
	c, ok := s.table.get(req.SessionID)
	if !ok {
		return &PushResponse{Delivered: false}, nil
	}
	return &PushResponse{Delivered: c.Push(req.Frame)}, nil
}

// ServeHTTP upgrades a WebSocket connection after validating the bearer
// token carried in the Authorization header or ?token= query param.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing authentication token", http.StatusUnauthorized)
		return
	}

	userID, err := s.auth.Verify(r.Context(), token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	deviceID := r.URL.Query().Get("device_id")
	platform := r.URL.Query().Get("platform")
	if deviceID == "" {
		http.Error(w, "missing device_id", http.StatusBadRequest)
		return
	}

	wire, err := upgradeWebSocket(w, r)
	if err != nil {
		return
	}
	s.accept(r.Context(), wire, userID, deviceID, platform)
}

// ServeQUIC runs the accept loop for a QUIC listener until ctx is done.
func (s *Server) ServeQUIC(ctx context.Context, ln *QUICListener) {
	for {
		wire, err := ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.L().WarnContext(ctx, "quic accept failed", "error", err)
			continue
		}
		// The first frame on a QUIC stream must be a login SystemCommand;
		// WebSocket instead authenticates during the HTTP upgrade.
		go s.acceptQUICLogin(ctx, wire)
	}
}

func (s *Server) acceptQUICLogin(ctx context.Context, wire wireConn) {
	wire.SetReadDeadline(time.Now().Add(30 * time.Second))
	f, err := wire.ReadFrame(ctx)
	if err != nil || f.System == nil || f.System.Type != "login" {
		wire.Close()
		return
	}
	userID, err := s.auth.Verify(ctx, f.System.Token)
	if err != nil {
		wire.Close()
		return
	}
	s.accept(ctx, wire, userID, f.System.DeviceID, f.System.Platform)
}

func (s *Server) accept(ctx context.Context, wire wireConn, userID, deviceID, platform string) {
	sess := ports.Session{
		SessionID:      uuid.NewString(),
		UserID:         userID,
		DeviceID:       deviceID,
		Platform:       platform,
		GatewayID:      s.cfg.GatewayID,
		Priority:       ports.PriorityNormal,
		ConflictPolicy: ports.PolicyCoexist,
		LastSeen:       time.Now(),
	}

	sessionID, _, evicted, err := s.online.Login(ctx, sess)
	if err != nil {
		logger.L().WarnContext(ctx, "login rejected", "user_id", userID, "error", err)
		wire.Close()
		return
	}
	sess.SessionID = sessionID

	conn := newConnection(ctx, s, wire, sess)
	s.table.put(conn)
	atomic.AddInt64(&s.conns, 1)
	logger.L().InfoContext(ctx, "client connected", "user_id", userID, "device_id", deviceID, "session_id", sessionID, "evicted", len(evicted))

	go func() {
		conn.run()
		atomic.AddInt64(&s.conns, -1)
	}()
}

func (s *Server) unregister(c *Connection) {
	s.table.remove(c)
}

// dispatch routes one decoded frame from a connection's read loop.
func (s *Server) dispatch(c *Connection, f *frame.Frame) {
	ctx := context.Background()
	switch f.Kind {
	case frame.CommandSystem:
		s.dispatchSystem(ctx, c, f)
	case frame.CommandMessage:
		s.dispatchMessage(ctx, c, f)
	default:
		logger.L().DebugContext(ctx, "unhandled frame kind", "kind", f.Kind)
	}
}

func (s *Server) dispatchSystem(ctx context.Context, c *Connection, f *frame.Frame) {
	if f.System == nil {
		return
	}
	switch f.System.Type {
	case "heartbeat":
		var q *ports.Quality
		if f.System.Attributes != nil {
			q = qualityFromAttributes(f.System.Attributes)
		}
		if err := s.online.Heartbeat(ctx, c.SessionID, q); err != nil {
			logger.L().WarnContext(ctx, "heartbeat failed", "session_id", c.SessionID, "error", err)
		}
	default:
	}
}

func (s *Server) dispatchMessage(ctx context.Context, c *Connection, f *frame.Frame) {
	if f.Message == nil {
		return
	}
	if f.Message.Type == frame.Ack {
		if s.acks != nil {
			if err := s.acks.AckDelivery(ctx, c.UserID, f.Message.MessageID); err != nil {
				logger.L().WarnContext(ctx, "delivery ack rejected", "user_id", c.UserID, "message_id", f.Message.MessageID, "error", err)
			}
		}
		return
	}
	if f.Message.Type != frame.Send {
		return
	}
	ack, err := s.sink.SendMessage(ctx, c.UserID, s.cfg.Tenant, f.Message)
	if err != nil {
		ack = &frame.SendEnvelopeAck{Status: frame.StatusFailed, ErrorCode: errors.Code(err), ErrorMessage: err.Error()}
	}
	c.Push(&frame.Frame{
		Version:   f.Version,
		MessageID: f.MessageID,
		Kind:      frame.CommandMessage,
		Message: &frame.MessageCommand{
			Type:      frame.Ack,
			MessageID: f.Message.MessageID,
			Payload:   ackPayload(ack),
		},
	})
}

func bearerToken(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

// Command gateway runs one Access Gateway pod: client-facing WebSocket
// transport, JWT authentication, and frame dispatch into the Message
// Orchestrator over gRPC.
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chris-alexander-pop/system-design-library/internal/frame"
	"github.com/chris-alexander-pop/system-design-library/internal/gateway"
	"github.com/chris-alexander-pop/system-design-library/internal/online"
	"github.com/chris-alexander-pop/system-design-library/internal/orchestrator"
	"github.com/chris-alexander-pop/system-design-library/internal/push"
	jwtadapter "github.com/chris-alexander-pop/system-design-library/pkg/auth/adapters/jwt"
	clientgrpc "github.com/chris-alexander-pop/system-design-library/pkg/client/grpc"
	"github.com/chris-alexander-pop/system-design-library/pkg/config"
	"github.com/chris-alexander-pop/system-design-library/pkg/errors"
	"github.com/chris-alexander-pop/system-design-library/pkg/logger"
	"github.com/chris-alexander-pop/system-design-library/pkg/rpc/jsoncodec"
	"github.com/chris-alexander-pop/system-design-library/pkg/rpc/unary"
	googlegrpc "google.golang.org/grpc"
)

// appConfig aggregates every sub-config this pod needs to boot.
type appConfig struct {
	HTTPAddr string `env:"GATEWAY_HTTP_ADDR" env-default:":8080"`
	GRPCAddr string `env:"GATEWAY_GRPC_ADDR" env-default:":9090"`

	Log    logger.Config
	Server gateway.Config
	JWT    jwtadapter.Config
	Online online.Config

	OrchestratorTarget string `env:"GATEWAY_ORCHESTRATOR_TARGET" env-required:"true"`
	PushServerTarget   string `env:"GATEWAY_PUSHSERVER_TARGET" env-required:"true"`
}

func main() {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		panic(err)
	}
	logger.Init(cfg.Log)
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	onlineSvc, err := online.New(cfg.Online)
	if err != nil {
		log.Error("failed to connect to online presence store", "error", err)
		os.Exit(1)
	}

	orchConn, err := clientgrpc.New(ctx, clientgrpc.Config{Target: cfg.OrchestratorTarget})
	if err != nil {
		log.Error("failed to dial orchestrator", "error", err)
		os.Exit(1)
	}
	defer orchConn.Close()

	pushConn, err := clientgrpc.New(ctx, clientgrpc.Config{Target: cfg.PushServerTarget})
	if err != nil {
		log.Error("failed to dial push server", "error", err)
		os.Exit(1)
	}
	defer pushConn.Close()

	auth := gateway.NewJWTAuthenticator(jwtadapter.New(cfg.JWT))
	sink := &orchestratorSink{conn: orchConn}
	server := gateway.New(cfg.Server, auth, onlineSvc, sink)
	server.SetDeliveryAckSink(&pushServerAckSink{conn: pushConn})

	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
	}

	pushDesc := unary.NewServiceDesc("push.v1.AccessGatewayService",
		unary.Method{Name: "PushMessage", Handler: unary.Handler(server.PushMessage)})
	grpcSrv := googlegrpc.NewServer()
	grpcSrv.RegisterService(pushDesc, nil)

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error("failed to bind gateway grpc listener", "error", err)
		os.Exit(1)
	}

	go func() {
		log.Info("gateway cross-region push listener started", "addr", cfg.GRPCAddr)
		if err := grpcSrv.Serve(grpcLis); err != nil {
			log.Error("gateway grpc server failed", "error", err)
		}
	}()

	go func() {
		log.Info("gateway listening", "addr", cfg.HTTPAddr, "gateway_id", cfg.Server.GatewayID)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("gateway server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down gateway")

	grpcSrv.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("gateway shutdown forced", "error", err)
	}
}

// orchestratorSink adapts a pooled gRPC connection to the orchestrator's
// SendMessage RPC into gateway.Sink, using the same JSON-over-gRPC codec
// the push pipeline uses for its cross-region calls so every internal
// RPC speaks the one wire format.
type orchestratorSink struct {
	conn *googlegrpc.ClientConn
}

func (o *orchestratorSink) SendMessage(ctx context.Context, senderID, tenant string, cmd *frame.MessageCommand) (*frame.SendEnvelopeAck, error) {
	req := &orchestrator.SendMessageRequest{SenderID: senderID, Tenant: tenant, Command: cmd}
	resp := &frame.SendEnvelopeAck{}
	if err := o.conn.Invoke(ctx, "/orchestrator.v1.MessageOrchestratorService/SendMessage", req, resp, googlegrpc.CallContentSubtype(jsoncodec.Name)); err != nil {
		return nil, errors.FromGRPCStatus(err)
	}
	return resp, nil
}

// pushServerAckSink adapts a pooled gRPC connection to the push server's
// AckDeliveryService.Ack RPC into gateway.DeliveryAckSink, so a client ack
// received over this gateway's WebSocket reaches whichever push-server pod
// is actually tracking that delivery.
type pushServerAckSink struct {
	conn *googlegrpc.ClientConn
}

func (p *pushServerAckSink) AckDelivery(ctx context.Context, userID, messageID string) error {
	req := &push.AckDeliveryRequest{UserID: userID, MessageID: messageID}
	resp := &push.AckDeliveryResponse{}
	if err := p.conn.Invoke(ctx, "/push.v1.AckDeliveryService/Ack", req, resp, googlegrpc.CallContentSubtype(jsoncodec.Name)); err != nil {
		return errors.FromGRPCStatus(err)
	}
	return nil
}

// Command push-server runs the Push Server (section 4.4): it consumes
// the orchestrator's push topic, resolves delivery targets, dispatches
// to whichever Access Gateway pod owns the session, and tracks delivery
// acks through to retry or degrade.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/chris-alexander-pop/system-design-library/internal/gateway"
	"github.com/chris-alexander-pop/system-design-library/internal/hook"
	"github.com/chris-alexander-pop/system-design-library/internal/online"
	"github.com/chris-alexander-pop/system-design-library/internal/push"
	"github.com/chris-alexander-pop/system-design-library/internal/push/ackstore"
	"github.com/chris-alexander-pop/system-design-library/internal/push/flowcontrol"
	"github.com/chris-alexander-pop/system-design-library/internal/push/gatewayrouter"
	"github.com/chris-alexander-pop/system-design-library/internal/push/onlinecache"
	"github.com/chris-alexander-pop/system-design-library/internal/route"
	rediscache "github.com/chris-alexander-pop/system-design-library/pkg/cache/adapters/redis"
	clientgrpc "github.com/chris-alexander-pop/system-design-library/pkg/client/grpc"
	"github.com/chris-alexander-pop/system-design-library/pkg/config"
	"github.com/chris-alexander-pop/system-design-library/pkg/logger"
	"github.com/chris-alexander-pop/system-design-library/pkg/messaging/adapters/kafka"
	pkgcache "github.com/chris-alexander-pop/system-design-library/pkg/cache"
	"github.com/chris-alexander-pop/system-design-library/pkg/rpc/unary"
	googlegrpc "google.golang.org/grpc"
)

// appConfig aggregates every sub-config this pod needs to boot.
type appConfig struct {
	GRPCAddr string `env:"PUSHSERVER_GRPC_ADDR" env-default:":9091"`

	Log       logger.Config
	Push      push.Config
	FlowCtl   flowcontrol.Config
	Router    gatewayrouter.Config
	AckStore  ackstore.Config
	AckScan   ackstore.ScannerConfig
	Archive   ackstore.ArchiveConfig
	OnlineCfg onlinecache.Config
	Online    online.Config
	Cache     pkgcache.Config
	Kafka     kafka.Config
	Dial      clientgrpc.Config
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

	counters, err := rediscache.New(cfg.Cache)
	if err != nil {
		log.Error("failed to connect to push-server cache", "error", err)
		os.Exit(1)
	}

	broker, err := kafka.New(cfg.Kafka)
	if err != nil {
		log.Error("failed to connect to message broker", "error", err)
		os.Exit(1)
	}

	onlineSvc, err := online.New(cfg.Online)
	if err != nil {
		log.Error("failed to connect to online presence store", "error", err)
		os.Exit(1)
	}

	routeSvc := route.New(onlineSvc, nil)
	oc := onlinecache.New(onlineSvc, cfg.OnlineCfg)
	flow := flowcontrol.New(cfg.FlowCtl, counters, nil)

	archiver, err := ackstore.NewArchiver(cfg.Archive)
	if err != nil {
		log.Error("failed to open ack audit archive", "error", err)
		os.Exit(1)
	}
	defer archiver.Close()
	acks := ackstore.New(cfg.AckStore, counters, archiver)

	// This pod never holds client sockets itself, so DeploymentMode must
	// be multi_region with no LocalGatewayID: every delivery resolves
	// through the pooled gRPC path to whichever gateway pod owns the
	// session, never the in-process local-handle shortcut.
	cfg.Router.DeploymentMode = "multi_region"
	cfg.Router.LocalGatewayID = ""
	cfg.Router.DialTemplate = cfg.Dial
	noopHandle := gateway.New(gateway.Config{GatewayID: "push-server"}, nil, nil, nil).Handle()
	router := gatewayrouter.New(cfg.Router, noopHandle)
	defer router.Close()

	svc, err := push.New(cfg.Push, broker, hook.NewChain(), routeSvc, oc, router, flow, acks)
	if err != nil {
		log.Error("failed to build push service", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	scanner := ackstore.NewScanner(cfg.AckScan, acks, svc, svc)

	ackDesc := unary.NewServiceDesc("push.v1.AckDeliveryService",
		unary.Method{Name: "Ack", Handler: unary.Handler(svc.Ack)})
	grpcSrv := googlegrpc.NewServer()
	grpcSrv.RegisterService(ackDesc, nil)

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error("failed to bind push-server grpc listener", "error", err)
		os.Exit(1)
	}

	go func() {
		log.Info("push-server ack listener started", "addr", cfg.GRPCAddr)
		if err := grpcSrv.Serve(grpcLis); err != nil {
			log.Error("push-server grpc server failed", "error", err)
		}
	}()

	go func() {
		if err := scanner.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("ack scanner stopped unexpectedly", "error", err)
		}
	}()

	go func() {
		log.Info("push server consuming push topic", "topic", cfg.Push.Topic)
		if err := svc.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("push service stopped unexpectedly", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down push server")
	grpcSrv.GracefulStop()
}

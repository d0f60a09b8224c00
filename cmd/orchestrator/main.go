// Command orchestrator runs the Message Orchestrator (section 4.2): it
// serves SendMessage over gRPC for Access Gateway pods, validating and
// sequencing each send before fanning it out to the Storage Writer and
// Push Server topics.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/chris-alexander-pop/system-design-library/internal/conversation"
	"github.com/chris-alexander-pop/system-design-library/internal/frame"
	"github.com/chris-alexander-pop/system-design-library/internal/hook"
	"github.com/chris-alexander-pop/system-design-library/internal/media"
	"github.com/chris-alexander-pop/system-design-library/internal/orchestrator"
	pkgcache "github.com/chris-alexander-pop/system-design-library/pkg/cache"
	rediscache "github.com/chris-alexander-pop/system-design-library/pkg/cache/adapters/redis"
	"github.com/chris-alexander-pop/system-design-library/pkg/config"
	"github.com/chris-alexander-pop/system-design-library/pkg/logger"
	"github.com/chris-alexander-pop/system-design-library/pkg/messaging/adapters/kafka"
	"github.com/chris-alexander-pop/system-design-library/pkg/rpc/unary"
	"github.com/chris-alexander-pop/system-design-library/pkg/storage/blob"
	bloblocal "github.com/chris-alexander-pop/system-design-library/pkg/storage/blob/adapters/local"
	googlegrpc "google.golang.org/grpc"
)

// appConfig aggregates every sub-config this pod needs to boot.
type appConfig struct {
	GRPCAddr string `env:"ORCHESTRATOR_GRPC_ADDR" env-default:":9092"`

	Log          logger.Config
	Orchestrator orchestrator.Config
	Conversation conversation.Config
	Media        media.Config
	Blob         blob.Config
	Cache        pkgcache.Config
	Kafka        kafka.Config
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

	seqAndWAL, err := rediscache.New(cfg.Cache)
	if err != nil {
		log.Error("failed to connect to orchestrator cache", "error", err)
		os.Exit(1)
	}

	broker, err := kafka.New(cfg.Kafka)
	if err != nil {
		log.Error("failed to connect to message broker", "error", err)
		os.Exit(1)
	}

	convSvc, err := conversation.New(cfg.Conversation)
	if err != nil {
		log.Error("failed to connect to conversation store", "error", err)
		os.Exit(1)
	}

	blobStore, err := bloblocal.New(cfg.Blob)
	if err != nil {
		log.Error("failed to open blob store", "error", err)
		os.Exit(1)
	}
	mediaSvc := media.New(cfg.Media, seqAndWAL, blobStore)

	svc, err := orchestrator.New(cfg.Orchestrator, seqAndWAL, hook.NewChain(), convSvc, mediaSvc, broker)
	if err != nil {
		log.Error("failed to build orchestrator service", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	sendMessage := func(ctx context.Context, req *orchestrator.SendMessageRequest) (*frame.SendEnvelopeAck, error) {
		return svc.SendMessage(ctx, req.SenderID, req.Tenant, req.Command)
	}
	desc := unary.NewServiceDesc("orchestrator.v1.MessageOrchestratorService",
		unary.Method{Name: "SendMessage", Handler: unary.Handler(sendMessage)})
	grpcSrv := googlegrpc.NewServer()
	grpcSrv.RegisterService(desc, nil)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error("failed to bind orchestrator grpc listener", "error", err)
		os.Exit(1)
	}

	go func() {
		log.Info("orchestrator listening", "addr", cfg.GRPCAddr)
		if err := grpcSrv.Serve(lis); err != nil {
			log.Error("orchestrator grpc server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down orchestrator")
	grpcSrv.GracefulStop()
}

// Command storage-writer runs the Storage Writer (section 4.3): it has
// no client-facing surface, only a Kafka consumer draining the
// orchestrator's durable-message topic into the hot cache, realtime
// store and relational archive tiers.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/chris-alexander-pop/system-design-library/internal/conversation"
	"github.com/chris-alexander-pop/system-design-library/internal/storagewriter"
	pkgcache "github.com/chris-alexander-pop/system-design-library/pkg/cache"
	rediscache "github.com/chris-alexander-pop/system-design-library/pkg/cache/adapters/redis"
	"github.com/chris-alexander-pop/system-design-library/pkg/config"
	"github.com/chris-alexander-pop/system-design-library/pkg/logger"
	"github.com/chris-alexander-pop/system-design-library/pkg/messaging/adapters/kafka"
)

// appConfig aggregates every sub-config this pod needs to boot.
type appConfig struct {
	Log          logger.Config
	Write        storagewriter.Config
	Archive      storagewriter.ArchiveConfig
	Conversation conversation.Config
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

	hot, err := rediscache.New(cfg.Cache)
	if err != nil {
		log.Error("failed to connect to hot cache", "error", err)
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

	archive, err := storagewriter.NewArchiver(cfg.Archive)
	if err != nil {
		log.Error("failed to connect to message archive store", "error", err)
		os.Exit(1)
	}

	writer, err := storagewriter.New(cfg.Write, broker, hot, convSvc, archive)
	if err != nil {
		log.Error("failed to build storage writer", "error", err)
		os.Exit(1)
	}
	defer writer.Close()

	go func() {
		log.Info("storage writer consuming storage topic", "topic", cfg.Write.Topic)
		if err := writer.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("storage writer stopped unexpectedly", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down storage writer")
}

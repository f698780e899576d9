// Package main is the delivery worker entry point. It consumes the
// JetStream delivery stream and pushes jobs to agent worker HTTP
// endpoints. Run as many replicas as needed; the durable consumer
// spreads jobs across them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/botcrew/botcrew/internal/common/config"
	"github.com/botcrew/botcrew/internal/common/logger"
	"github.com/botcrew/botcrew/internal/delivery"
	"github.com/botcrew/botcrew/internal/workerclient"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if cfg.NATS.URL == "" {
		fmt.Fprintln(os.Stderr, "The delivery worker requires a NATS URL")
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting Botcrew delivery worker...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue, err := delivery.NewJetStreamQueue(cfg.NATS, cfg.Delivery, log)
	if err != nil {
		log.Fatal("Failed to connect to delivery stream", zap.Error(err))
	}
	defer queue.Close()

	dispatcher := delivery.NewWorkerDispatcher(workerclient.New(cfg.Agent, log))
	worker := delivery.NewWorker(queue.JetStream(), cfg.Delivery, dispatcher, log)
	if err := worker.Start(ctx); err != nil {
		log.Fatal("Failed to start delivery worker", zap.Error(err))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down delivery worker...")
	cancel()
	worker.Stop()
	log.Info("Delivery worker stopped")
}

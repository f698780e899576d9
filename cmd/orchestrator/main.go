// Package main is the Botcrew orchestrator entry point. One process
// serves the operator API, the agent-facing internal API, and the
// realtime session plane, and runs the lifecycle reconciler.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	agenthandlers "github.com/botcrew/botcrew/internal/agent/handlers"
	agentrepo "github.com/botcrew/botcrew/internal/agent/repository"
	agentservice "github.com/botcrew/botcrew/internal/agent/service"
	"github.com/botcrew/botcrew/internal/bootcfg"
	"github.com/botcrew/botcrew/internal/bus"
	commshandlers "github.com/botcrew/botcrew/internal/comms/handlers"
	commsmodels "github.com/botcrew/botcrew/internal/comms/models"
	commsrepo "github.com/botcrew/botcrew/internal/comms/repository"
	commsservice "github.com/botcrew/botcrew/internal/comms/service"
	"github.com/botcrew/botcrew/internal/comms/session"
	"github.com/botcrew/botcrew/internal/common/apperr"
	"github.com/botcrew/botcrew/internal/common/config"
	"github.com/botcrew/botcrew/internal/common/database"
	"github.com/botcrew/botcrew/internal/common/logger"
	"github.com/botcrew/botcrew/internal/delivery"
	"github.com/botcrew/botcrew/internal/runtime"
	"github.com/botcrew/botcrew/internal/server"
	"github.com/botcrew/botcrew/internal/workerclient"
	workspacehandlers "github.com/botcrew/botcrew/internal/workspace/handlers"
	workspacerepo "github.com/botcrew/botcrew/internal/workspace/repository"
	workspaceservice "github.com/botcrew/botcrew/internal/workspace/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
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

	log.Info("Starting Botcrew orchestrator...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage. Without a configured database everything lives in
	// memory, which is only useful for local development.
	var (
		db            *database.DB
		agentStore    agentrepo.Repository
		commsStore    commsrepo.Repository
		workspaceRepo workspacerepo.Repository
	)
	if cfg.Database.Host != "" {
		db, err = database.NewDB(ctx, cfg.Database)
		if err != nil {
			log.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		agents := agentrepo.NewPostgresRepository(db)
		comms := commsrepo.NewPostgresRepository(db)
		workspace := workspacerepo.NewPostgresRepository(db)
		if err := agents.InitSchema(ctx); err != nil {
			log.Fatal("Failed to initialize agent schema", zap.Error(err))
		}
		if err := comms.InitSchema(ctx); err != nil {
			log.Fatal("Failed to initialize comms schema", zap.Error(err))
		}
		if err := workspace.InitSchema(ctx); err != nil {
			log.Fatal("Failed to initialize workspace schema", zap.Error(err))
		}
		agentStore, commsStore, workspaceRepo = agents, comms, workspace
		log.Info("Connected to PostgreSQL", zap.String("host", cfg.Database.Host))
	} else {
		agentStore = agentrepo.NewMemoryRepository()
		commsStore = commsrepo.NewMemoryRepository()
		workspaceRepo = workspacerepo.NewMemoryRepository()
		log.Warn("No database configured, using in-memory storage")
	}

	// Realtime bus.
	messageBus, closeBus, err := bus.Provide(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize message bus", zap.Error(err))
	}
	defer closeBus()

	// Worker runtime. Missing Docker degrades to a fake runtime so the
	// control plane still serves reads and messaging.
	var rt runtime.Runtime
	dockerRT, err := runtime.NewDockerRuntime(cfg.Docker, log)
	if err == nil {
		if pingErr := dockerRT.Ping(ctx); pingErr != nil {
			_ = dockerRT.Close()
			err = pingErr
		}
	}
	if err != nil {
		log.Warn("Docker unavailable, agents will not get real workers", zap.Error(err))
		rt = runtime.NewFakeRuntime()
	} else {
		rt = dockerRT
		log.Info("Connected to Docker daemon")
	}
	defer rt.Close()

	workers := workerclient.New(cfg.Agent, log)
	dispatcher := delivery.NewWorkerDispatcher(workers)
	queue, closeQueue, err := delivery.Provide(cfg, dispatcher, log)
	if err != nil {
		log.Fatal("Failed to initialize delivery queue", zap.Error(err))
	}
	defer closeQueue()

	// Services.
	workspaceSvc := workspaceservice.NewService(workspaceRepo, log)
	agentSvc := agentservice.NewService(agentStore, rt, workspaceSvc, workers, cfg.Agent, log)
	channelSvc := commsservice.NewChannelService(commsStore, log)
	messageSvc := commsservice.NewMessageService(commsStore, log)
	hub := commsservice.NewHub(messageSvc, channelSvc, agentStore, messageBus, queue, log)

	if err := bootstrapGeneralChannel(ctx, channelSvc); err != nil {
		log.Warn("Failed to bootstrap general channel", zap.Error(err))
	}

	// Session plane.
	registry := session.NewRegistry(log)
	listener := session.NewListener(messageBus, registry, log)
	if err := listener.Start(); err != nil {
		log.Fatal("Failed to start session listener", zap.Error(err))
	}

	// Reconciler.
	reconciler := agentservice.NewReconciler(agentStore, rt, cfg.Agent, log)
	reconciler.Start(ctx)

	// HTTP surface.
	bootProvider := bootcfg.NewProvider(agentStore, workspaceSvc, log)
	router := server.NewRouter(server.Options{
		Logger:     log,
		Debug:      cfg.Logging.Level == "debug",
		Agents:     agenthandlers.NewHandler(agentSvc, log),
		Comms:      commshandlers.NewHandler(channelSvc, messageSvc, hub, log),
		WS:         commshandlers.NewWSHandler(channelSvc, messageSvc, hub, registry, log),
		Workspace:  workspacehandlers.NewHandler(workspaceSvc, log),
		BootConfig: bootcfg.NewHandler(bootProvider, agentSvc, agentStore, workspaceSvc, log),
		DB:         pinger(db),
		Bus:        messageBus,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}
	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down Botcrew orchestrator...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}

	reconciler.Stop()
	listener.Stop()

	log.Info("Botcrew orchestrator stopped")
}

// pinger keeps the nil database out of the health probe interface. A
// nil *DB inside a non-nil interface would still get pinged.
func pinger(db *database.DB) server.Pinger {
	if db == nil {
		return nil
	}
	return db
}

// bootstrapGeneralChannel ensures the shared #general channel exists.
func bootstrapGeneralChannel(ctx context.Context, channels *commsservice.ChannelService) error {
	existing, err := channels.List(ctx, nil)
	if err != nil {
		return err
	}
	for _, ch := range existing {
		if ch.Type == commsmodels.ChannelTypeShared && ch.Name == "general" {
			return nil
		}
	}
	_, err = channels.Create(ctx, commsservice.CreateChannelInput{
		Name:        "general",
		Description: "Shared channel for all agents and operators",
		Type:        commsmodels.ChannelTypeShared,
	})
	if err != nil && !apperr.IsConflict(err) {
		return err
	}
	return nil
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rpattn/importflow/internal/config"
	"github.com/rpattn/importflow/internal/db"
	"github.com/rpattn/importflow/internal/executor"
	"github.com/rpattn/importflow/internal/hub"
	"github.com/rpattn/importflow/internal/mapper"
	"github.com/rpattn/importflow/internal/recovery"
	"github.com/rpattn/importflow/internal/repository"
	"github.com/rpattn/importflow/internal/session"
	"github.com/rpattn/importflow/internal/validation"
	"github.com/rpattn/importflow/internal/web"
	"github.com/rpattn/importflow/internal/workflow"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load("")
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	// Setup database connection
	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer conn.Close()

	// Run migrations
	if err := db.RunMigrations(db.URL(cfg.Database), "./migrations"); err != nil {
		log.WithError(err).Fatal("failed to run migrations")
	}

	catalog := repository.NewProductRepository(conn.Pool)

	eventHub := hub.New(log, cfg.Session.EventBuffer)
	store := session.NewMemoryStore(eventHub, cfg.Session.TTL, log)
	store.StartJanitor(ctx, 5*time.Minute)

	var provider mapper.Provider
	if cfg.Mapper.Provider == "openai" && cfg.Mapper.OpenAIKey != "" {
		provider = mapper.NewOpenAIProvider(cfg.Mapper.OpenAIKey, cfg.Mapper.OpenAIModel)
		log.Info("using openai mapping provider")
	} else {
		log.Info("using heuristic mapping provider")
	}
	heuristicCap := mapper.BoundedCap(cfg.Mapper.HeuristicConfidenceCap, cfg.Workflow.AutoAdvanceMappingConfidence)
	suggester := mapper.NewAdapter(provider, cfg.Mapper.Timeout, heuristicCap, log)

	engine := validation.NewEngine()
	recoverySvc := recovery.NewService(store, engine, cfg.Workflow.AutoFixConfidenceFloor, log)
	batch := executor.New(catalog, log)
	orchestrator := workflow.New(store, suggester, engine, batch, workflow.Config{
		AutoAdvanceMappingConfidence: cfg.Workflow.AutoAdvanceMappingConfidence,
	}, log)

	srv := web.NewServer(orchestrator, recoverySvc, store, eventHub, cfg.Server.AllowedOrigins, log)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("starting import server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Fatal("server forced to shutdown")
	}

	log.Info("server exited")
}

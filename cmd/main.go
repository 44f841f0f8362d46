package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"emission-service/internal/api"
	"emission-service/internal/auth"
	"emission-service/internal/config"
	"emission-service/internal/db"
	"emission-service/internal/derivation"
	"emission-service/internal/ingest"
	"emission-service/internal/logging"
	"emission-service/internal/memstore"
	"emission-service/internal/metrics"
	"emission-service/internal/notify"
	"emission-service/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Dir, cfg.Log.Level)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Connect to storage
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Errorf("Failed to open store: %v", err)
		log.Fatalf("Store init failed: %v", err)
	}
	defer store.Close()

	// Operator notifications
	derivationOpts := []derivation.Option{
		derivation.WithTimeout(cfg.DB.Timeout),
		derivation.WithMetrics(m),
	}
	var dispatcher *notify.Dispatcher
	if cfg.TelegramEnabled() {
		tg, err := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.RateLimit, logger)
		if err != nil {
			log.Fatalf("Telegram init failed: %v", err)
		}
		dispatcher = notify.NewDispatcher(tg, logger, m, notify.DispatcherConfig{
			QueueSize:   cfg.Notification.QueueSize,
			Workers:     cfg.Notification.MaxWorkers,
			MinSeverity: cfg.Telegram.MinSeverity,
		})
		dispatcher.Start()
		derivationOpts = append(derivationOpts, derivation.WithAlertSink(dispatcher))
		logger.Infof("Telegram notifications enabled for severity >= %s", cfg.Telegram.MinSeverity)
	}

	orchestrator := derivation.New(store, derivation.StaticThreshold(cfg.Emission.Threshold), logger, derivationOpts...)
	validator := ingest.NewValidator(store, nil, nil)

	// Ingestion pipeline and its sources
	pipeline := ingest.NewPipeline(validator, orchestrator, logger, m, ingest.Options{
		Workers:     cfg.Ingest.Workers,
		QueueSize:   cfg.Ingest.QueueSize,
		MaxAttempts: cfg.Ingest.MaxAttempts,
		RetryDelay:  cfg.Ingest.RetryDelay,
	})
	pipeline.Start()

	var sources sync.WaitGroup
	if cfg.KafkaEnabled() {
		consumer := ingest.NewKafkaConsumer(ingest.KafkaConfig{
			Broker:  cfg.Kafka.Broker,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		}, pipeline, logger)
		defer consumer.Close()
		consumer.Start(ctx, &sources)
		logger.Infof("Kafka consumer initialized with topic: %s", cfg.Kafka.Topic)
	}
	if cfg.Ingest.File != "" {
		sources.Add(1)
		go func() {
			defer sources.Done()
			readFile(ctx, cfg.Ingest.File, pipeline, logger)
		}()
	}

	// Start API server
	authSvc := auth.NewService(store, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	handler := api.NewHandler(store, authSvc, validator, orchestrator, logger)
	srv := &http.Server{
		Addr:              cfg.API.Port,
		Handler:           api.NewRouter(handler, cfg.API.BasePath, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infof("Starting API server on %s%s", cfg.API.Port, cfg.API.BasePath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("API server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API shutdown failed: %v", err)
	}
	sources.Wait()
	if err := pipeline.Stop(shutdownCtx); err != nil {
		logger.Errorf("Ingest pipeline did not drain: %v", err)
	}
	if dispatcher != nil {
		dispatcher.Stop()
	}
	logger.Info("Service stopped")
}

func openStore(ctx context.Context, cfg config.Config, logger *logging.Logger) (repository.Backend, error) {
	if cfg.DB.Driver == config.DriverMemory {
		logger.Warn("Using in-memory store; data is lost on exit")
		return memstore.New(), nil
	}
	conn, err := db.New(ctx, cfg.DB.DSN, cfg.DB.MaxConns, cfg.DB.Timeout)
	if err != nil {
		return nil, err
	}
	if err := conn.Migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	logger.Info("Database connected and schema applied")
	return conn, nil
}

func readFile(ctx context.Context, path string, sub ingest.Submitter, logger *logging.Logger) {
	src, err := ingest.OpenSource(path)
	if err != nil {
		logger.Errorf("Failed to open ingest source %s: %v", path, err)
		return
	}
	defer src.Close()
	stats, err := ingest.ReadLines(ctx, src, sub, logger)
	if err != nil && ctx.Err() == nil {
		logger.Errorf("Reading %s stopped: %v", path, err)
	}
	logger.Infof("Ingest source %s done: %d queued, %d skipped", path, stats.Queued, stats.Skipped)
}

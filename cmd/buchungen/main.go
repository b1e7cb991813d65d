package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"buchungen/internal/amqp"
	"buchungen/internal/classifier"
	"buchungen/internal/config"
	"buchungen/internal/corpus"
	gsheet "buchungen/internal/corpus/google"
	apphttp "buchungen/internal/http"
	applog "buchungen/internal/log"
	"buchungen/internal/services"
	"buchungen/internal/session"
	"buchungen/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	// Pending-booking store
	var store storage.PendingStore
	switch cfg.StoreBackend {
	case "sqlite":
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			logger.Error("Failed to initialize SQLite store", "error", err, "path", cfg.SQLiteDBPath)
			os.Exit(1)
		}
		defer repo.Close()
		store = repo
		logger.Info("Initialized SQLite pending store", "path", cfg.SQLiteDBPath)
	default:
		store = storage.NewMemoryStore()
		logger.Info("Initialized in-memory pending store")
	}

	// Training corpus
	var writer corpus.TrainingWriter
	switch cfg.CorpusBackend {
	case "sheets":
		cli, err := gsheet.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets corpus", "error", err)
			os.Exit(1)
		}
		writer = cli
		logger.Info("Initialized Google Sheets corpus backend")
	default:
		csvWriter, err := corpus.NewCSVWriter(cfg.CorpusPath)
		if err != nil {
			logger.Error("Failed to initialize CSV corpus", "error", err, "path", cfg.CorpusPath)
			os.Exit(1)
		}
		writer = csvWriter
		logger.Info("Initialized CSV corpus backend", "path", cfg.CorpusPath)
	}

	// Retrain event bus (optional)
	var events services.EventPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		events = amqpClient
		logger.Info("Initialized AMQP retrain events", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - no AMQP_URL provided")
	}

	sessions := session.NewSerializer(cfg.SessionSecret, cfg.SessionMaxAge)
	svc := services.NewBookingService(
		classifier.NewHTTPClient(cfg.ClassifierURL),
		store, writer, sessions, events)

	srv := apphttp.NewServer(":"+cfg.Port, svc, sessions)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting buchungen server", "port", cfg.Port,
			"store", cfg.StoreBackend, "corpus", cfg.CorpusBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Expire parked bookings whose feedback never arrived.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.PurgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				purged, err := store.PurgeExpired(ctx, time.Now().Add(-cfg.PendingTTL))
				if err != nil {
					logger.Error("Pending purge failed", "error", err)
					continue
				}
				if purged > 0 {
					logger.Info("Purged expired pending bookings", "count", purged)
				}
			}
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

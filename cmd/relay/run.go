package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rcrowley/go-metrics"

	"github.com/vinicioflores/GreenCarrot/internal/config"
	httpdelivery "github.com/vinicioflores/GreenCarrot/internal/delivery/http"
	"github.com/vinicioflores/GreenCarrot/internal/messaging"
	"github.com/vinicioflores/GreenCarrot/internal/messaging/kafka"
	"github.com/vinicioflores/GreenCarrot/internal/repository"
	"github.com/vinicioflores/GreenCarrot/internal/repository/postgres"
	"github.com/vinicioflores/GreenCarrot/internal/repository/redis"
	"github.com/vinicioflores/GreenCarrot/internal/repository/surreal"
	"github.com/vinicioflores/GreenCarrot/internal/service"
)

const shutdownTimeout = 10 * time.Second

func docStoreConfig(cfg config.Config, url string) surreal.Config {
	return surreal.Config{
		URL:        url,
		Namespace:  cfg.DocStoreNamespace,
		Database:   cfg.DocStoreDatabase,
		Username:   cfg.DocStoreUser,
		Password:   cfg.DocStorePass,
		Idempotent: cfg.IdempotentPlans,
	}
}

func runRelay(ctx context.Context, cfg config.Config) error {
	// --- Event log ---
	eventLog, err := postgres.NewEventLog(cfg.EventLogURLs, cfg.PartitionKey(), postgres.OpenDB)
	if err != nil {
		return fmt.Errorf("failed to init event log: %w", err)
	}
	defer eventLog.Close()

	// --- Document store ---
	primary := surreal.NewStore(docStoreConfig(cfg, cfg.DocStorePrimaryURL))
	defer primary.Close(context.Background())

	var (
		secondary     repository.PlanStore
		secondaryRefs repository.ReferenceStore
	)
	if cfg.DocStoreSecondaryURL != "" {
		s := surreal.NewStore(docStoreConfig(cfg, cfg.DocStoreSecondaryURL))
		defer s.Close(context.Background())
		secondary = s
		secondaryRefs = s
	}

	// --- Ledger ---
	var ledger repository.Ledger
	if cfg.LedgerDSN != "" {
		l, err := postgres.NewLedger(cfg.LedgerDSN, cfg.LedgerProcedure, postgres.LedgerOptions{})
		if err != nil {
			slog.Warn("Ledger unavailable, checkouts will not be booked", "err", err)
		} else {
			defer l.Close()
			ledger = l
		}
	}

	// --- Cursors ---
	var cursors repository.CursorStore = service.NewMemoryCursorStore()
	if cfg.CursorRedisAddr != "" {
		client, err := redis.Dial(ctx, cfg.CursorRedisAddr)
		if err != nil {
			slog.Warn("Cursor store unavailable, cursors are process-local", "addr", cfg.CursorRedisAddr, "err", err)
		} else {
			defer client.Close()
			cursors = redis.NewCursorStore(client, "")
		}
	}

	// --- Kafka ---
	var publisher messaging.Publisher = messaging.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		pub, err := kafka.NewPublisher(cfg.KafkaBrokers)
		if err != nil {
			slog.Warn("Event publishing disabled", "brokers", cfg.KafkaBrokers, "err", err)
		} else {
			defer pub.Close()
			publisher = pub
		}
	}

	// --- Services ---
	stats := service.NewStats(metrics.NewRegistry())
	resolver := service.NewReferenceResolver(primary, secondaryRefs, cfg.CallTimeout())
	writer := service.NewDeliveryWriter(primary, secondary, stats, cfg.CallTimeout())
	orders := service.NewOrderService(resolver, writer, publisher, stats)
	inventory := service.NewInventoryReconciler(eventLog, ledger, publisher, stats, cfg.CallTimeout())

	poller := service.NewPoller(service.PollerConfig{
		Interval:         cfg.PollInterval(),
		CallTimeout:      cfg.CallTimeout(),
		BackoffMax:       cfg.BackoffMax(),
		FetchMode:        service.FetchMode(cfg.FetchMode),
		BatchLimit:       cfg.BatchLimit,
		ReplayOnStart:    cfg.ReplayOnStart,
		AdvanceOnFailure: cfg.AdvanceOnFailure,
		Concurrent:       cfg.ConcurrentStreams,
	}, eventLog, orders, inventory, cursors, stats)

	// --- HTTP stats ---
	if cfg.HTTPAddr != "" {
		handler := httpdelivery.NewHandler(stats.Registry(), poller)
		mux := http.NewServeMux()
		handler.RegisterRoutes(mux)

		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           httpdelivery.EnableCORS(mux),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			slog.Info("Stats server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Stats server error", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			httpServer.Shutdown(shutdownCtx)
		}()
	}

	// --- Poll loop ---
	slog.Info("Relay started",
		"event_log_endpoints", len(cfg.EventLogURLs),
		"docstore_primary", cfg.DocStorePrimaryURL,
		"docstore_secondary", cfg.DocStoreSecondaryURL,
		"ledger", ledger != nil)

	if err := poller.Run(ctx); err != nil {
		return fmt.Errorf("poller stopped: %w", err)
	}
	slog.Info("Shutting down...")
	return nil
}

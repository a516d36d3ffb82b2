package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"hearth/internal/amqp"
	"hearth/internal/cache"
	"hearth/internal/config"
	apphttp "hearth/internal/http"
	"hearth/internal/ledger"
	applog "hearth/internal/log"
	"hearth/internal/metrics"
	"hearth/internal/payments"
	"hearth/internal/store"
	memstore "hearth/internal/store/memory"
	sqlitestore "hearth/internal/store/sqlite"
)

func main() {
	// Load .env for local development; ignored when absent.
	_ = godotenv.Load()

	cfg := config.Load()

	logger := applog.New(applog.Config{
		Component: applog.ComponentApp,
		Handler:   applog.HandlerFor(cfg.LogFormat, applog.ParseLevel(cfg.LogLevel)),
	})
	applog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}

	logger.Info("Starting hearth server",
		"port", cfg.Port, "backend", cfg.DataBackend, "instance_id", cfg.InstanceID)

	// Data backend.
	var (
		st  store.Store
		hub *store.Hub
	)
	switch cfg.DataBackend {
	case "sqlite":
		s, err := sqlitestore.New(cfg.SQLiteDBPath)
		if err != nil {
			logger.Error("Failed to open sqlite store", applog.FieldError, err, "path", cfg.SQLiteDBPath)
			os.Exit(1)
		}
		st, hub = s, s.Hub()
		logger.Info("Initialized sqlite backend", "path", cfg.SQLiteDBPath)
	default:
		s := memstore.New()
		st, hub = s, s.Hub()
		logger.Info("Initialized memory backend")
	}
	defer st.Close()

	reg := metrics.New()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	// AMQP: bridge local changes across instances and queue expense exports.
	var notifier ledger.Notifier
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPExportQueue, cfg.InstanceID)
		if err != nil {
			logger.Error("Failed to connect to AMQP broker", applog.FieldError, err)
			os.Exit(1)
		}
		defer client.Close()

		bridge := amqp.NewBridge(client, hub, cfg.InstanceID)
		g.Go(func() error { return bridge.Run(ctx) })
		notifier = amqp.NewExportNotifier(client, st)
		logger.Info("Change bridge connected", "exchange", cfg.AMQPExchange)
	} else {
		logger.Info("AMQP disabled, running single-instance")
	}

	led := ledger.NewService(st, ledger.PolicyIndependent, notifier, reg)

	// Payments are optional; without a key the endpoint answers 503.
	var provider payments.SessionProvider
	if cfg.StripeSecretKey != "" {
		p, err := payments.NewStripeProvider(cfg.StripeSecretKey)
		if err != nil {
			logger.Error("Failed to initialize payment provider", applog.FieldError, err)
			os.Exit(1)
		}
		provider = p
		logger.Info("Payment provider initialized")
	}

	srv := apphttp.NewServer(apphttp.Options{
		Addr:         ":" + cfg.Port,
		Store:        st,
		Ledger:       led,
		Payments:     provider,
		Metrics:      reg,
		Logger:       logger,
		PollInterval: cfg.PollInterval,
		ChatLimit:    cfg.ChatHistoryLimit,
	})
	srv.ReadTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	// Periodic expiry sweep; the name cache otherwise drops stale entries
	// only when the same key is read again.
	caches := cache.NewManager()
	caches.Register(srv.NameCache())
	caches.StartCleanup(cfg.CacheCleanupInterval)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		caches.Stop()
		cancel()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

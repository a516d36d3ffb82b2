package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"hearth/internal/amqp"
	"hearth/internal/config"
	applog "hearth/internal/log"
	"hearth/internal/sheets"
	gsheet "hearth/internal/sheets/google"
	sheetsmem "hearth/internal/sheets/memory"
	"hearth/internal/worker"
)

// hearth-exporter drains the expense export queue into the shared budget
// spreadsheet. It is the only process that talks to Google Sheets.
func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	logger := applog.New(applog.Config{
		Component: applog.ComponentExporter,
		Handler:   applog.HandlerFor(cfg.LogFormat, applog.ParseLevel(cfg.LogLevel)),
	})
	applog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err)
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the exporter")
		os.Exit(1)
	}

	logger.Info("Starting hearth-exporter", "queue", cfg.AMQPExportQueue)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Without spreadsheet configuration rows land in an in-memory sink, so
	// the queue still drains during local development.
	var appender sheets.ExpenseAppender
	if cfg.GoogleSpreadsheetID != "" {
		client, err := gsheet.New(ctx, gsheet.Options{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			OAuthClientFile: cfg.GoogleOAuthClientFile,
			OAuthClientJSON: cfg.GoogleOAuthClientJSON,
			OAuthTokenFile:  cfg.GoogleOAuthTokenFile,
			OAuthTokenJSON:  cfg.GoogleOAuthTokenJSON,
		})
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
			os.Exit(1)
		}
		appender = client
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		appender = sheetsmem.New()
		logger.Warn("No spreadsheet configured, exports go to the in-memory sink")
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPExportQueue, cfg.InstanceID)
	if err != nil {
		logger.Error("Failed to connect to AMQP broker", applog.FieldError, err)
		os.Exit(1)
	}
	defer client.Close()

	w := worker.NewExportWorker(appender)

	go func() {
		if err := client.ConsumeExpenseExports(ctx, func(msg *amqp.ExpenseExportMessage) error {
			return w.HandleExportMessage(ctx, msg)
		}); err != nil && err != context.Canceled {
			logger.Error("Export consumption failed", applog.FieldError, err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}
	cancel()
	logger.Info("Exporter stopped")
}

package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/cli"
	applog "ledger/internal/log"
	gsheet "ledger/internal/sheets/google"
	"ledger/internal/storage"
	"ledger/internal/worker"
)

func main() {
	backfillUser := flag.String("backfill-user", "", "export the current month of this user before consuming events")
	flag.Parse()

	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentWorker)

	logger.Info("Starting ledger-worker")

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the export worker")
		os.Exit(1)
	}
	if !cfg.ExportEnabled() {
		logger.Error("Google Sheets export is not configured",
			"spreadsheet_id_set", cfg.GoogleSpreadsheetID != "")
		os.Exit(1)
	}

	// Events only carry ids; the worker reads the expense back from the durable store.
	sqliteRepo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}

	exporter, err := gsheet.New(context.Background(), gsheet.Config{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		SheetName:          cfg.GoogleSheetName,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
	}, logger.WithComponent(applog.ComponentSheets).Logger)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger.WithComponent(applog.ComponentAMQP).Logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}

	exportWorker := worker.NewExportWorker(sqliteRepo, exporter, cfg.ExportBatchSize, logger.Logger)

	ctx, done := cli.GracefulShutdown(logger.Logger, 30*time.Second, func() {
		if err := amqpClient.Close(); err != nil {
			logger.Error("Failed to close AMQP client", "error", err)
		}
		if err := sqliteRepo.Close(); err != nil {
			logger.Error("Failed to close SQLite repository", "error", err)
		}
	})

	if *backfillUser != "" {
		backfill(ctx, logger, sqliteRepo, exportWorker, *backfillUser)
	}

	go func() {
		err := amqpClient.Consume(ctx, exportWorker.HandleEvent)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", "error", err)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
}

// backfill exports what the queue may have missed while the worker was down.
func backfill(ctx context.Context, logger *applog.Logger, repo *storage.SQLiteRepository, w *worker.ExportWorker, username string) {
	user, found, err := repo.GetUserByUsername(ctx, username)
	if err != nil || !found {
		logger.Error("Cannot backfill unknown user", "username", username, "error", err)
		return
	}
	now := time.Now()
	n, err := w.ExportMonth(ctx, user.ID, int(now.Month()), now.Year())
	if err != nil {
		// Keep going; live events still flow.
		logger.Error("Startup backfill failed", "error", err, "exported", n)
		return
	}
	logger.Info("Startup backfill finished", "username", username, "exported", n)
}

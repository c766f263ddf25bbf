package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"time"

	"ledger/internal/backend"
	"ledger/internal/cli"
	applog "ledger/internal/log"
	"ledger/internal/rates"
)

func main() {
	now := time.Now()
	username := flag.String("user", "", "username to report on")
	month := flag.Int("month", int(now.Month()), "month (1-12)")
	year := flag.Int("year", now.Year(), "year")
	currency := flag.String("currency", "", "restate totals and invoices in this currency (e.g. EUR)")
	base := flag.String("base", "USD", "currency ledger amounts are recorded in")
	flag.Parse()

	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentApp)

	if *username == "" || *month < 1 || *month > 12 {
		flag.Usage()
		os.Exit(2)
	}

	ctx := context.Background()

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, backendConfig)
	if err != nil {
		logger.Error("Failed to create backend", "error", err, "backend", backendConfig.Type)
		os.Exit(1)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Cleanup failed", "error", err)
		}
	}()

	user, found, err := res.Store.GetUserByUsername(ctx, *username)
	if err != nil {
		logger.Error("Failed to look up user", "error", err)
		os.Exit(1)
	}
	if !found {
		logger.Error("User not found", "username", *username)
		os.Exit(1)
	}

	var conv *rates.Cache
	if *currency != "" {
		source := rates.NewHTTPSource(cfg.RatesURL, &http.Client{Timeout: cfg.RatesTimeout}, logger.WithComponent(applog.ComponentRates).Logger)
		conv = rates.NewCache(source,
			rates.WithTTL(cfg.RatesTTL),
			rates.WithTimeout(cfg.RatesTimeout),
			rates.WithLogger(logger.WithComponent(applog.ComponentRates).Logger))
	}

	err = writeReport(ctx, os.Stdout, res.Store, conv, reportOptions{
		UserID:       user.ID,
		Month:        *month,
		Year:         *year,
		Now:          now,
		Currency:     *currency,
		BaseCurrency: *base,
	})
	if err != nil {
		logger.Error("Failed to build report", "error", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/julienbonastre/order-profit/internal/batch"
	"github.com/julienbonastre/order-profit/internal/ccapi"
	"github.com/julienbonastre/order-profit/internal/config"
	"github.com/julienbonastre/order-profit/internal/countries"
	"github.com/julienbonastre/order-profit/internal/currency"
	"github.com/julienbonastre/order-profit/internal/database"
	"github.com/julienbonastre/order-profit/internal/handlers"
	"github.com/julienbonastre/order-profit/internal/logging"
	"github.com/julienbonastre/order-profit/internal/products"
	"github.com/julienbonastre/order-profit/internal/report"
	"github.com/julienbonastre/order-profit/internal/shipping"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Command line flags
	configPath := flag.String("config", os.Getenv("ORDER_PROFIT_CONFIG"), "Path to YAML config file")
	serve := flag.Bool("serve", false, "Serve the HTTP API instead of running once")
	addr := flag.String("addr", "", "HTTP listen address")
	days := flag.Int("days", 0, "Days of dispatched orders to process")
	orderType := flag.Int("order-type", 0, "Order type to process")
	dbPath := flag.String("db", "", "SQLite database path")
	countriesPath := flag.String("countries", "", "Country table CSV replacing the built-in one")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	// Flags override file and environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Server.Addr = *addr
		case "days":
			cfg.Batch.LookbackDays = *days
		case "order-type":
			cfg.Batch.OrderType = *orderType
		case "db":
			cfg.Database.Path = *dbPath
		case "countries":
			cfg.Countries.Path = *countriesPath
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ref, err := loadCountries(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to load countries", zap.Error(err))
		return 1
	}

	rules := shipping.NewDefaultRegistry(ref)
	if overlaps := rules.Overlaps(ref.IDs()); len(overlaps) > 0 {
		for _, o := range overlaps {
			logger.Error("overlapping shipping rules",
				zap.Int("country_id", o.CountryID),
				zap.Int("rule_id", o.RuleID),
				zap.Strings("rules", o.Rules))
		}
		return 1
	}

	api := ccapi.NewClient(ctx, ccapi.Config{
		BaseURL:      cfg.CCAPI.BaseURL,
		TokenURL:     cfg.CCAPI.TokenURL,
		ClientID:     cfg.CCAPI.ClientID,
		ClientSecret: cfg.CCAPI.ClientSecret,
		Scopes:       cfg.CCAPI.Scopes,
	})

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("failed to open database", zap.String("path", cfg.Database.Path), zap.Error(err))
		return 1
	}
	defer db.Close()

	svc := batch.NewService(batch.Config{
		Source:    api,
		Catalog:   api,
		Countries: ref,
		Rules:     rules,
		Store:     db,
		Retry: products.Options{
			Attempts: cfg.Batch.RetryAttempts,
			Delay:    cfg.Batch.RetryDelay,
		},
		Progress: progressReporter(logger),
		Logger:   logger,
	})

	if *serve {
		return serveAPI(ctx, cfg.Server.Addr, handlers.NewHandler(db, svc, logger), logger)
	}

	result, err := svc.Run(ctx, batch.Options{
		OrderType:    cfg.Batch.OrderType,
		LookbackDays: cfg.Batch.LookbackDays,
	})
	if err != nil {
		logger.Error("run failed", zap.Error(err))
		return 1
	}
	if err := report.NewWriter().Write(os.Stdout, result.Orders); err != nil {
		logger.Error("failed to write report", zap.Error(err))
		return 1
	}
	return 0
}

// progressReporter logs batch progress as a percentage of orders processed
func progressReporter(logger *zap.Logger) batch.ProgressFunc {
	return func(done, total int) {
		percent := 100
		if total > 0 {
			percent = done * 100 / total
		}
		logger.Info("order processed",
			zap.Int("done", done),
			zap.Int("total", total),
			zap.Int("percent", percent))
	}
}

func loadCountries(ctx context.Context, cfg config.Config, logger *zap.Logger) (*countries.Reference, error) {
	static, err := cfg.StaticRates()
	if err != nil {
		return nil, err
	}
	var rates countries.RateSource = currency.NewClient(cfg.Rates.BaseURL, countries.BaseCurrency, logger)
	if static != nil {
		rates = static
	}
	if cfg.Countries.Path != "" {
		return countries.LoadFile(ctx, cfg.Countries.Path, rates)
	}
	return countries.LoadDefault(ctx, rates)
}

func serveAPI(ctx context.Context, addr string, h *handlers.Handler, logger *zap.Logger) int {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting order profit API", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", zap.Error(err))
			return 1
		}
		return 0
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
		return 1
	}
	return 0
}

// Command valutatrade runs the ValutaTrade Hub shell: multi-currency wallets
// priced from a locally cached set of exchange rates.
//
// Usage:
//
//	valutatrade --config config.yaml
//	valutatrade --setup (writes config.yaml with an interactive wizard)
//
// Optional environment variables:
//
//	EXCHANGERATE_API_KEY       keyed ExchangeRate-API endpoint
//	HYPERLIQUID_PRIVATE_KEY    enables the hyperliquid source
//	BINANCE_API_KEY, BINANCE_API_SECRET, BYBIT_API_KEY, BYBIT_API_SECRET
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/valutatrade/config"
	"github.com/vadiminshakov/valutatrade/internal/app"
	"github.com/vadiminshakov/valutatrade/internal/cli"
	"github.com/vadiminshakov/valutatrade/internal/session"
	"github.com/vadiminshakov/valutatrade/internal/setup"
	"github.com/vadiminshakov/valutatrade/internal/web"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to yaml config")
	envFile := flag.String("env", ".env", "path to dotenv file with secrets")
	runSetup := flag.Bool("setup", false, "run the configuration wizard")
	flag.Parse()

	if *runSetup {
		if err := setup.RunTUI(*configPath, config.Default()); err != nil {
			log.Fatal(err)
		}
	}

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		log.Fatal(err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var reg *prometheus.Registry
	if cfg.MetricsAddr != "" {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	application, err := app.New(ctx, cfg, logger, registerer(reg))
	if err != nil {
		logger.Fatal("failed to start", zap.Error(err))
	}
	defer application.Close()

	if reg != nil {
		srv := web.NewServer(cfg.MetricsAddr, reg, application.Journal, application.Rates, logger)
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Error("web server stopped", zap.Error(err))
			}
		}()
	}

	// the shell blocks on stdin, so an interrupt exits from here
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("interrupted", zap.String("signal", sig.String()))
		cancel()
		fmt.Println("\n\nGoodbye!")
		_ = application.Close()
		_ = logger.Sync()
		os.Exit(0)
	}()

	logger.Info("started",
		zap.Strings("sources", application.Aggregator.Sources()),
		zap.String("rates", application.Cache.Path()),
		zap.Bool("stale", application.Rates.IsStale()))

	shell := cli.New(
		application.Users,
		application.Engine,
		application.Rates,
		application.Aggregator,
		application.Catalog,
		session.New(),
		cli.WithBaseCurrency(cfg.BaseCurrency),
		cli.WithLogger(logger),
	)
	if err := shell.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("shell stopped", zap.Error(err))
	}
}

// registerer avoids handing a typed nil registry to app.New.
func registerer(reg *prometheus.Registry) prometheus.Registerer {
	if reg == nil {
		return nil
	}
	return reg
}

// newLogger writes JSON logs to the configured file so they do not interleave
// with shell output.
func newLogger(cfg config.Config) (*zap.Logger, error) {
	path := cfg.LogFile
	if path == "" {
		path = filepath.Join(cfg.DataDir, "valutatrade.log")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = level
	zcfg.OutputPaths = []string{path}
	zcfg.ErrorOutputPaths = []string{path}

	return zcfg.Build()
}

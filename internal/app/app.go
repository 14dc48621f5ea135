// Package app wires storage, rate sources and services from configuration.
package app

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/vadiminshakov/valutatrade/config"
	"github.com/vadiminshakov/valutatrade/internal/catalog"
	"github.com/vadiminshakov/valutatrade/internal/clients"
	"github.com/vadiminshakov/valutatrade/internal/domain"
	"github.com/vadiminshakov/valutatrade/internal/identity"
	"github.com/vadiminshakov/valutatrade/internal/metrics"
	"github.com/vadiminshakov/valutatrade/internal/services/aggregator"
	"github.com/vadiminshakov/valutatrade/internal/services/portfolio"
	"github.com/vadiminshakov/valutatrade/internal/services/ratesource"
	"github.com/vadiminshakov/valutatrade/internal/services/rates"
	"github.com/vadiminshakov/valutatrade/internal/storage/journal"
	"github.com/vadiminshakov/valutatrade/internal/storage/ratecache"
	"github.com/vadiminshakov/valutatrade/pkg/retrier"
)

const corruptSuffix = ".corrupt"

// App holds every long-lived component of one process.
type App struct {
	Config     config.Config
	Catalog    *catalog.Catalog
	Users      *identity.Directory
	Cache      *ratecache.Cache
	Journal    *journal.WALStore
	Metrics    *metrics.Metrics
	Aggregator *aggregator.Aggregator
	Rates      *rates.Service
	Engine     *portfolio.Engine
	Logger     *zap.Logger
}

// New builds the application. reg may be nil to skip metrics registration.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, reg prometheus.Registerer) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{Config: cfg, Catalog: catalog.Default(), Logger: logger}
	if !a.Catalog.Has(cfg.BaseCurrency) {
		return nil, errors.Wrapf(domain.ErrInvalidInput, "base currency %q is not in the catalog", cfg.BaseCurrency)
	}
	if reg != nil {
		a.Metrics = metrics.New(reg)
	}

	var err error
	a.Cache, err = ratecache.New(cfg.RatesPath())
	if err != nil {
		return nil, errors.Wrap(err, "failed to open rates cache")
	}
	snapshot, err := a.Cache.Load()
	if err != nil {
		snapshot = a.setAsideRatesFile(err)
	}
	logger.Info("rates cache loaded",
		zap.String("path", a.Cache.Path()),
		zap.Int("pairs", len(snapshot.Pairs)))

	a.Users, err = identity.Open(cfg.UsersPath(), logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open user directory")
	}

	a.Journal, err = journal.NewWALStore(cfg.JournalPath())
	if err != nil {
		return nil, errors.Wrap(err, "failed to open journal")
	}

	httpClient := clients.NewHTTPClient(cfg.FetchTimeout)
	sources, err := newSources(ctx, cfg, httpClient)
	if err != nil {
		a.Journal.Close()
		return nil, err
	}

	a.Aggregator, err = aggregator.New(a.Cache, sources, logger,
		aggregator.WithJournal(a.Journal),
		aggregator.WithMetrics(a.Metrics),
		aggregator.WithFetchTimeout(cfg.FetchTimeout),
		aggregator.WithRetrier(retrier.New(
			retrier.WithMaxRetries(cfg.FetchRetries),
			retrier.WithRetryIf(ratesource.Retryable),
		)),
	)
	if err != nil {
		a.Journal.Close()
		return nil, err
	}

	a.Rates = rates.NewService(a.Cache, cfg.RatesTTL)

	a.Engine, err = portfolio.NewEngine(a.Rates, a.Catalog, a.Users, logger,
		portfolio.WithJournal(a.Journal),
		portfolio.WithMetrics(a.Metrics),
	)
	if err != nil {
		a.Journal.Close()
		return nil, err
	}

	return a, nil
}

// setAsideRatesFile moves an unreadable rates file to <path>.corrupt and
// starts from an empty snapshot; the next update rewrites the file.
func (a *App) setAsideRatesFile(loadErr error) domain.RateSnapshot {
	path := a.Cache.Path()
	aside := path + corruptSuffix
	a.Logger.Warn("rates cache unreadable, starting with an empty snapshot",
		zap.String("path", path),
		zap.String("moved_to", aside),
		zap.Error(loadErr))

	if err := os.Rename(path, aside); err != nil {
		a.Logger.Warn("failed to move unreadable rates cache",
			zap.String("path", path),
			zap.Error(err))
	}

	return domain.NewRateSnapshot()
}

// Close releases the journal.
func (a *App) Close() error {
	if a.Journal == nil {
		return nil
	}
	return a.Journal.Close()
}

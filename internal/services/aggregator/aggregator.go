// Package aggregator runs rate sources and merges their results into the rate cache.
package aggregator

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/valutatrade/internal/domain"
	"github.com/vadiminshakov/valutatrade/internal/metrics"
	"github.com/vadiminshakov/valutatrade/internal/services/ratesource"
	"github.com/vadiminshakov/valutatrade/internal/storage/journal"
	"github.com/vadiminshakov/valutatrade/pkg/retrier"
)

const defaultFetchTimeout = 10 * time.Second

// Cache is the rate store the aggregator merges into.
type Cache interface {
	Snapshot() domain.RateSnapshot
	Save(snapshot domain.RateSnapshot) error
}

// Journal receives committed updates.
type Journal interface {
	AppendRateUpdate(update journal.RateUpdate) error
}

// Aggregator fetches from its sources and merges with last-writer-wins by fetch time.
type Aggregator struct {
	sources []ratesource.Source
	cache   Cache
	journal Journal
	retrier *retrier.Retrier
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithJournal appends every committed update to j.
func WithJournal(j Journal) Option {
	return func(a *Aggregator) { a.journal = j }
}

// WithRetrier retries failed fetches with r.
func WithRetrier(r *retrier.Retrier) Option {
	return func(a *Aggregator) { a.retrier = r }
}

// WithFetchTimeout bounds each source fetch, retries included.
func WithFetchTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithMetrics records fetch and update metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) { a.metrics = m }
}

// WithClock overrides the aggregation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// New creates an aggregator over sources.
func New(cache Cache, sources []ratesource.Source, logger *zap.Logger, opts ...Option) (*Aggregator, error) {
	if cache == nil {
		return nil, errors.New("rate cache is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &Aggregator{
		sources: sources,
		cache:   cache,
		retrier: retrier.New(retrier.WithMaxRetries(0)),
		timeout: defaultFetchTimeout,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// Sources returns the configured source names.
func (a *Aggregator) Sources() []string {
	names := make([]string, 0, len(a.sources))
	for _, s := range a.sources {
		names = append(names, s.Name())
	}
	return names
}

type fetchResult struct {
	source  string
	records []domain.RateRecord
	err     error
}

// Update runs the sources matching filter (all when empty) and merges their
// records into the cache. Source failures are logged and skipped. When no
// source succeeds, or the merged snapshot cannot be persisted, the cache is
// left untouched and an empty slice is returned. The returned records are the ones now active in the cache, sorted by pair.
func (a *Aggregator) Update(ctx context.Context, filter string) ([]domain.RateRecord, error) {
	selected, err := a.selectSources(filter)
	if err != nil {
		return nil, err
	}

	results := a.fetchAll(ctx, selected)

	var succeeded []string
	snapshot := a.cache.Snapshot()
	applied := make(map[domain.Pair]domain.RateRecord)
	for _, res := range results {
		if res.err != nil {
			a.logger.Warn("rate source failed",
				zap.String("source", res.source),
				zap.Error(res.err))
			continue
		}
		succeeded = append(succeeded, res.source)

		for _, rec := range res.records {
			if !rec.Valid() {
				a.logger.Warn("dropping invalid rate record",
					zap.String("source", res.source),
					zap.String("pair", rec.Pair.String()),
					zap.String("rate", rec.Rate.String()))
				continue
			}
			if existing, ok := snapshot.Pairs[rec.Pair]; ok && !rec.NewerThan(existing) {
				continue
			}
			snapshot.Pairs[rec.Pair] = rec
			applied[rec.Pair] = rec
		}
	}

	if len(succeeded) == 0 {
		a.logger.Warn("no rate source succeeded, keeping previous snapshot",
			zap.Int("sources", len(selected)))
		return []domain.RateRecord{}, nil
	}

	refreshedAt := a.now()
	snapshot.LastRefresh = refreshedAt
	if err := a.cache.Save(snapshot); err != nil {
		a.logger.Error("failed to persist rate snapshot, keeping previous snapshot",
			zap.Strings("sources", succeeded),
			zap.Error(err))
		return []domain.RateRecord{}, nil
	}

	updated := make([]domain.RateRecord, 0, len(applied))
	for _, rec := range applied {
		updated = append(updated, rec)
	}
	sort.Slice(updated, func(i, j int) bool {
		return updated[i].Pair.String() < updated[j].Pair.String()
	})

	a.metrics.ObserveUpdate(len(updated), len(snapshot.Pairs), refreshedAt)
	if a.journal != nil {
		if err := a.journal.AppendRateUpdate(journal.NewRateUpdate(refreshedAt, succeeded, updated)); err != nil {
			a.logger.Warn("failed to journal rate update", zap.Error(err))
		}
	}

	a.logger.Info("rates updated",
		zap.Strings("sources", succeeded),
		zap.Int("updated", len(updated)),
		zap.Int("pairs", len(snapshot.Pairs)))

	return updated, nil
}

func (a *Aggregator) selectSources(filter string) ([]ratesource.Source, error) {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return a.sources, nil
	}

	for _, s := range a.sources {
		if strings.EqualFold(s.Name(), filter) {
			return []ratesource.Source{s}, nil
		}
	}

	return nil, errors.Wrapf(domain.ErrInvalidInput, "unknown rate source %q, available: %s",
		filter, strings.Join(a.Sources(), ", "))
}

// fetchAll runs sources concurrently. Results keep the order of sources so
// merging is deterministic.
func (a *Aggregator) fetchAll(ctx context.Context, sources []ratesource.Source) []fetchResult {
	results := make([]fetchResult, len(sources))

	var g errgroup.Group
	for i, src := range sources {
		g.Go(func() error {
			results[i] = a.fetch(ctx, src)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (a *Aggregator) fetch(ctx context.Context, src ratesource.Source) (res fetchResult) {
	res.source = src.Name()
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.records = nil
			res.err = domain.NewSourceUnavailable(res.source, errors.Errorf("panic: %v", r))
		}
		a.metrics.ObserveFetch(res.source, time.Since(started), res.err)
	}()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	records, err := retrier.DoWithData(a.retrier, ctx, src.Fetch)
	if err != nil {
		res.err = domain.NewSourceUnavailable(res.source, err)
		return res
	}
	res.records = records

	return res
}

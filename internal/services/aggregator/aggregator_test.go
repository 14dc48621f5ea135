package aggregator

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/valutatrade/internal/domain"
	"github.com/vadiminshakov/valutatrade/internal/metrics"
	"github.com/vadiminshakov/valutatrade/internal/services/ratesource"
	"github.com/vadiminshakov/valutatrade/internal/storage/journal"
	"github.com/vadiminshakov/valutatrade/internal/storage/ratecache"
	"github.com/vadiminshakov/valutatrade/pkg/retrier"
)

var t0 = time.Date(2025, 10, 10, 12, 0, 0, 0, time.UTC)

// fakeSource is a scripted rate source.
type fakeSource struct {
	name    string
	records []domain.RateRecord
	err     error
	delay   time.Duration
	panics  bool

	mu    sync.Mutex
	calls int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(ctx context.Context) ([]domain.RateRecord, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.panics {
		panic("provider exploded")
	}
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	return f.records, f.err
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func rec(from, to string, rate int64, source string, at time.Time) domain.RateRecord {
	return domain.RateRecord{Pair: domain.NewPair(from, to), Rate: decimal.NewFromInt(rate), Source: source, FetchedAt: at}
}

func newCache(t *testing.T) *ratecache.Cache {
	t.Helper()
	cache, err := ratecache.New(filepath.Join(t.TempDir(), "rates.json"))
	require.NoError(t, err)
	_, err = cache.Load()
	require.NoError(t, err)
	return cache
}

func newAggregator(t *testing.T, cache Cache, sources []ratesource.Source, opts ...Option) *Aggregator {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return t0 })}, opts...)
	agg, err := New(cache, sources, zap.NewNop(), opts...)
	require.NoError(t, err)
	return agg
}

func TestAggregator_UpdateFromEmptyCache(t *testing.T) {
	cache := newCache(t)
	coingecko := &fakeSource{name: "coingecko", records: []domain.RateRecord{rec("BTC", "USD", 60000, "coingecko", t0)}}
	other := &fakeSource{name: "exchangerate", records: []domain.RateRecord{rec("USD", "EUR", 1, "exchangerate", t0)}}
	agg := newAggregator(t, cache, []ratesource.Source{coingecko, other})

	updated, err := agg.Update(context.Background(), "coingecko")
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, "BTC_USD", updated[0].Pair.String())
	assert.Equal(t, 0, other.Calls(), "filtered source must not run")

	got, ok := cache.Lookup(domain.NewPair("BTC", "USD"))
	require.True(t, ok)
	assert.True(t, got.Rate.Equal(decimal.NewFromInt(60000)))
	assert.Equal(t, t0, cache.Snapshot().LastRefresh)

	// persisted, not only in memory
	reloaded, err := ratecache.New(cache.Path())
	require.NoError(t, err)
	snap, err := reloaded.Load()
	require.NoError(t, err)
	assert.True(t, snap.Equal(cache.Snapshot()))
}

func TestAggregator_FilterIsCaseInsensitive(t *testing.T) {
	src := &fakeSource{name: "coingecko", records: []domain.RateRecord{rec("BTC", "USD", 60000, "coingecko", t0)}}
	agg := newAggregator(t, newCache(t), []ratesource.Source{src})

	updated, err := agg.Update(context.Background(), "CoinGecko")
	require.NoError(t, err)
	assert.Len(t, updated, 1)
}

func TestAggregator_UnknownSource(t *testing.T) {
	agg := newAggregator(t, newCache(t), []ratesource.Source{&fakeSource{name: "coingecko"}})

	_, err := agg.Update(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestAggregator_AllSourcesFailKeepsSnapshot(t *testing.T) {
	cache := newCache(t)
	seed := domain.NewRateSnapshot()
	seed.LastRefresh = t0.Add(-time.Hour)
	seed.Pairs[domain.NewPair("BTC", "USD")] = rec("BTC", "USD", 50000, "coingecko", t0.Add(-time.Hour))
	require.NoError(t, cache.Save(seed))
	before := cache.Snapshot()

	agg := newAggregator(t, cache, []ratesource.Source{
		&fakeSource{name: "coingecko", err: domain.NewSourceUnavailable("coingecko", errors.New("down"))},
		&fakeSource{name: "exchangerate", err: errors.New("dns failure")},
	})

	updated, err := agg.Update(context.Background(), "")
	require.NoError(t, err)
	assert.NotNil(t, updated)
	assert.Empty(t, updated)
	assert.True(t, before.Equal(cache.Snapshot()))

	reloaded, err := ratecache.New(cache.Path())
	require.NoError(t, err)
	snap, err := reloaded.Load()
	require.NoError(t, err)
	assert.True(t, before.Equal(snap))
}

func TestAggregator_PartialFailure(t *testing.T) {
	cache := newCache(t)
	agg := newAggregator(t, cache, []ratesource.Source{
		&fakeSource{name: "coingecko", err: errors.New("down")},
		&fakeSource{name: "exchangerate", records: []domain.RateRecord{rec("USD", "EUR", 1, "exchangerate", t0)}},
	})

	updated, err := agg.Update(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, "exchangerate", updated[0].Source)
	assert.Equal(t, t0, cache.Snapshot().LastRefresh)
}

func TestAggregator_LastWriterWinsByFetchTime(t *testing.T) {
	cache := newCache(t)
	seed := domain.NewRateSnapshot()
	seed.Pairs[domain.NewPair("BTC", "USD")] = rec("BTC", "USD", 59000, "binance", t0.Add(-time.Minute))
	seed.Pairs[domain.NewPair("ETH", "USD")] = rec("ETH", "USD", 3100, "binance", t0.Add(time.Minute))
	require.NoError(t, cache.Save(seed))

	agg := newAggregator(t, cache, []ratesource.Source{
		&fakeSource{name: "coingecko", records: []domain.RateRecord{
			rec("BTC", "USD", 60000, "coingecko", t0),
			rec("ETH", "USD", 3000, "coingecko", t0),
		}},
	})

	updated, err := agg.Update(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, updated, 1, "older ETH record must not replace the newer cached one")

	btc, _ := cache.Lookup(domain.NewPair("BTC", "USD"))
	assert.True(t, btc.Rate.Equal(decimal.NewFromInt(60000)))
	assert.Equal(t, "coingecko", btc.Source)

	eth, _ := cache.Lookup(domain.NewPair("ETH", "USD"))
	assert.True(t, eth.Rate.Equal(decimal.NewFromInt(3100)))
	assert.Equal(t, "binance", eth.Source)
}

func TestAggregator_ConflictBetweenSourcesInOneUpdate(t *testing.T) {
	cache := newCache(t)
	agg := newAggregator(t, cache, []ratesource.Source{
		&fakeSource{name: "binance", records: []domain.RateRecord{rec("BTC", "USD", 61000, "binance", t0.Add(time.Second))}},
		&fakeSource{name: "coingecko", records: []domain.RateRecord{rec("BTC", "USD", 60000, "coingecko", t0)}},
	})

	updated, err := agg.Update(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, "binance", updated[0].Source)
	assert.True(t, updated[0].Rate.Equal(decimal.NewFromInt(61000)), "never averaged")
}

func TestAggregator_DropsInvalidRecords(t *testing.T) {
	cache := newCache(t)
	agg := newAggregator(t, cache, []ratesource.Source{
		&fakeSource{name: "coingecko", records: []domain.RateRecord{
			rec("BTC", "USD", 0, "coingecko", t0),
			rec("ETH", "USD", -5, "coingecko", t0),
			rec("SOL", "USD", 150, "coingecko", t0),
		}},
	})

	updated, err := agg.Update(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, "SOL_USD", updated[0].Pair.String())
}

func TestAggregator_SlowSourceIsBounded(t *testing.T) {
	cache := newCache(t)
	slow := &fakeSource{name: "slow", delay: time.Second, records: []domain.RateRecord{rec("BTC", "USD", 1, "slow", t0)}}
	fast := &fakeSource{name: "fast", records: []domain.RateRecord{rec("ETH", "USD", 3000, "fast", t0)}}
	agg := newAggregator(t, cache, []ratesource.Source{slow, fast}, WithFetchTimeout(20*time.Millisecond))

	started := time.Now()
	updated, err := agg.Update(context.Background(), "")
	require.NoError(t, err)
	assert.Less(t, time.Since(started), 500*time.Millisecond)
	require.Len(t, updated, 1)
	assert.Equal(t, "fast", updated[0].Source)
}

func TestAggregator_PanickingSourceIsContained(t *testing.T) {
	agg := newAggregator(t, newCache(t), []ratesource.Source{
		&fakeSource{name: "broken", panics: true},
		&fakeSource{name: "ok", records: []domain.RateRecord{rec("BTC", "USD", 60000, "ok", t0)}},
	})

	updated, err := agg.Update(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, updated, 1)
}

func TestAggregator_RetriesRetryableFailures(t *testing.T) {
	flaky := &flakySource{failures: 1, records: []domain.RateRecord{rec("BTC", "USD", 60000, "flaky", t0)}}
	agg := newAggregator(t, newCache(t), []ratesource.Source{flaky},
		WithRetrier(retrier.New(retrier.WithMaxRetries(2), retrier.WithInitialInterval(time.Millisecond))))

	updated, err := agg.Update(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, updated, 1)
	assert.Equal(t, 2, flaky.calls)
}

type flakySource struct {
	failures int
	calls    int
	records  []domain.RateRecord
}

func (f *flakySource) Name() string { return "flaky" }

func (f *flakySource) Fetch(ctx context.Context) ([]domain.RateRecord, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("temporary")
	}
	return f.records, nil
}

type failingCache struct {
	snapshot domain.RateSnapshot
}

func (c *failingCache) Snapshot() domain.RateSnapshot { return c.snapshot.Clone() }

func (c *failingCache) Save(domain.RateSnapshot) error { return errors.New("disk full") }

func TestAggregator_SaveFailure(t *testing.T) {
	cache := &failingCache{snapshot: domain.NewRateSnapshot()}
	agg := newAggregator(t, cache, []ratesource.Source{
		&fakeSource{name: "coingecko", records: []domain.RateRecord{rec("BTC", "USD", 60000, "coingecko", t0)}},
	})

	updated, err := agg.Update(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, updated)
	assert.True(t, cache.snapshot.IsEmpty())
	assert.True(t, cache.Snapshot().LastRefresh.IsZero())
}

type memJournal struct {
	updates []journal.RateUpdate
}

func (j *memJournal) AppendRateUpdate(u journal.RateUpdate) error {
	j.updates = append(j.updates, u)
	return nil
}

func TestAggregator_JournalAndMetrics(t *testing.T) {
	j := &memJournal{}
	m := metrics.New(prometheus.NewRegistry())
	agg := newAggregator(t, newCache(t), []ratesource.Source{
		&fakeSource{name: "coingecko", records: []domain.RateRecord{rec("BTC", "USD", 60000, "coingecko", t0)}},
		&fakeSource{name: "down", err: errors.New("down")},
	}, WithJournal(j), WithMetrics(m))

	_, err := agg.Update(context.Background(), "")
	require.NoError(t, err)

	require.Len(t, j.updates, 1)
	assert.Equal(t, []string{"coingecko"}, j.updates[0].Sources)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceFetchTotal.WithLabelValues("down", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RatesUpdatedTotal))
}

func TestAggregator_Sources(t *testing.T) {
	agg := newAggregator(t, newCache(t), []ratesource.Source{&fakeSource{name: "a"}, &fakeSource{name: "b"}})
	assert.Equal(t, []string{"a", "b"}, agg.Sources())
}

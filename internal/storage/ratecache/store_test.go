package ratecache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/valutatrade/internal/domain"
)

func testSnapshot() domain.RateSnapshot {
	now := time.Date(2025, 10, 10, 12, 0, 0, 0, time.UTC)
	snap := domain.NewRateSnapshot()
	snap.LastRefresh = now
	btc := domain.NewPair("BTC", "USD")
	eur := domain.NewPair("USD", "EUR")
	snap.Pairs[btc] = domain.RateRecord{Pair: btc, Rate: decimal.NewFromInt(60000), Source: "coingecko", FetchedAt: now}
	snap.Pairs[eur] = domain.RateRecord{Pair: eur, Rate: decimal.RequireFromString("0.9231"), Source: "exchangerate", FetchedAt: now.Add(-time.Second)}
	return snap
}

func TestCache_LoadMissingFileIsEmpty(t *testing.T) {
	cache, err := New(filepath.Join(t.TempDir(), "nested", "rates.json"))
	require.NoError(t, err)

	snap, err := cache.Load()
	require.NoError(t, err)
	assert.True(t, snap.IsEmpty())
	assert.True(t, snap.LastRefresh.IsZero())
}

func TestCache_LoadEmptyFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.json")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	cache, err := New(path)
	require.NoError(t, err)
	snap, err := cache.Load()
	require.NoError(t, err)
	assert.True(t, snap.IsEmpty())
}

func TestCache_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.json")
	cache, err := New(path)
	require.NoError(t, err)

	original := testSnapshot()
	require.NoError(t, cache.Save(original))

	reopened, err := New(path)
	require.NoError(t, err)
	loaded, err := reopened.Load()
	require.NoError(t, err)

	assert.True(t, original.Equal(loaded), "loaded snapshot differs: %+v", loaded)
}

func TestCache_PersistedLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.json")
	cache, err := New(path)
	require.NoError(t, err)
	require.NoError(t, cache.Save(testSnapshot()))

	payload, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"last_refresh"`)
	assert.Contains(t, string(payload), `"BTC_USD"`)
	assert.Contains(t, string(payload), `"source": "coingecko"`)

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCache_CorruptFileKeepsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	cache, err := New(path)
	require.NoError(t, err)
	_, err = cache.Load()
	assert.Error(t, err)
}

func TestCache_Lookup(t *testing.T) {
	cache, err := New(filepath.Join(t.TempDir(), "rates.json"))
	require.NoError(t, err)
	require.NoError(t, cache.Save(testSnapshot()))

	rec, ok := cache.Lookup(domain.NewPair("BTC", "USD"))
	require.True(t, ok)
	assert.True(t, rec.Rate.Equal(decimal.NewFromInt(60000)))
	assert.Equal(t, "coingecko", rec.Source)

	// direct only, the inverse is not derived here
	_, ok = cache.Lookup(domain.NewPair("USD", "BTC"))
	assert.False(t, ok)

	_, ok = cache.Lookup(domain.NewPair("EUR", "USD"))
	assert.False(t, ok)
}

func TestCache_SnapshotIsACopy(t *testing.T) {
	cache, err := New(filepath.Join(t.TempDir(), "rates.json"))
	require.NoError(t, err)
	require.NoError(t, cache.Save(testSnapshot()))

	snap := cache.Snapshot()
	delete(snap.Pairs, domain.NewPair("BTC", "USD"))

	_, ok := cache.Lookup(domain.NewPair("BTC", "USD"))
	assert.True(t, ok)
}

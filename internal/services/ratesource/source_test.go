package ratesource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/valutatrade/internal/domain"
)

var fixedNow = time.Date(2025, 10, 10, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func serve(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func recordsByKey(records []domain.RateRecord) map[string]domain.RateRecord {
	out := make(map[string]domain.RateRecord, len(records))
	for _, r := range records {
		out[r.Pair.String()] = r
	}
	return out
}

func TestCoinGecko_Fetch(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":60000},"ethereum":{"usd":"3000.5"}}`))
	}))
	t.Cleanup(srv.Close)

	src := NewCoinGecko(srv.Client(), srv.URL, map[string]string{"BTC": "bitcoin", "ETH": "ethereum", "SOL": "solana"}, "USD", fixedClock)
	records, err := src.Fetch(context.Background())
	require.NoError(t, err)

	assert.Contains(t, gotQuery, "vs_currencies=usd")
	byKey := recordsByKey(records)
	require.Len(t, byKey, 2, "missing coins are skipped")
	assert.True(t, byKey["BTC_USD"].Rate.Equal(decimal.NewFromInt(60000)))
	assert.True(t, byKey["ETH_USD"].Rate.Equal(decimal.RequireFromString("3000.5")))
	assert.Equal(t, CoinGeckoName, byKey["BTC_USD"].Source)
	assert.Equal(t, fixedNow, byKey["BTC_USD"].FetchedAt)
}

func TestCoinGecko_Failures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		retryable bool
	}{
		{name: "server error", status: http.StatusBadGateway, body: `{}`, retryable: true},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{}`, retryable: true},
		{name: "bad request", status: http.StatusBadRequest, body: `{}`, retryable: false},
		{name: "garbage body", status: http.StatusOK, body: `<html>`, retryable: false},
		{name: "no usable prices", status: http.StatusOK, body: `{"bitcoin":{"eur":1}}`, retryable: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serve(t, tt.status, tt.body)
			src := NewCoinGecko(srv.Client(), srv.URL, map[string]string{"BTC": "bitcoin"}, "USD", fixedClock)

			records, err := src.Fetch(context.Background())
			require.Error(t, err)
			assert.Empty(t, records)

			var sue *domain.SourceUnavailableError
			require.True(t, errors.As(err, &sue))
			assert.Equal(t, CoinGeckoName, sue.Source)
			assert.Equal(t, tt.retryable, Retryable(err))
		})
	}
}

func TestCoinGecko_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	src := NewCoinGecko(srv.Client(), srv.URL, nil, "USD", fixedClock)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := src.Fetch(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExchangeRate_FetchOpenEndpoint(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"result":"success","base_code":"USD","rates":{"USD":1,"EUR":0.92,"RUB":98.5}}`))
	}))
	t.Cleanup(srv.Close)

	src := NewExchangeRate(srv.Client(), srv.URL, "", "usd", []string{"EUR", "RUB", "GBP", "USD"}, fixedClock)
	records, err := src.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "/latest/USD", gotPath)
	byKey := recordsByKey(records)
	require.Len(t, byKey, 2)
	assert.True(t, byKey["USD_EUR"].Rate.Equal(decimal.RequireFromString("0.92")))
	assert.True(t, byKey["USD_RUB"].Rate.Equal(decimal.RequireFromString("98.5")))
	assert.Equal(t, ExchangeRateName, byKey["USD_EUR"].Source)
}

func TestExchangeRate_FetchKeyedEndpoint(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"result":"success","base_code":"USD","conversion_rates":{"EUR":0.9}}`))
	}))
	t.Cleanup(srv.Close)

	src := NewExchangeRate(srv.Client(), srv.URL, "secret", "USD", []string{"EUR"}, fixedClock)
	records, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "/secret/latest/USD", gotPath)
	assert.True(t, records[0].Rate.Equal(decimal.RequireFromString("0.9")))
}

func TestExchangeRate_ProviderError(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"result":"error","error-type":"invalid-key"}`)
	src := NewExchangeRate(srv.Client(), srv.URL, "bad", "USD", nil, fixedClock)

	_, err := src.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid-key")
	assert.False(t, Retryable(err))
}

type fakeMids struct {
	mids map[string]string
	err  error
}

func (f fakeMids) AllMids(ctx context.Context) (map[string]string, error) {
	return f.mids, f.err
}

func TestHyperliquid_Fetch(t *testing.T) {
	src := NewHyperliquid(fakeMids{mids: map[string]string{"BTC": "61000.5", "ETH": ""}}, []string{"btc", "eth"}, "", fixedClock)

	records, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "BTC_USD", records[0].Pair.String())
	assert.True(t, records[0].Rate.Equal(decimal.RequireFromString("61000.5")))

	_, err = NewHyperliquid(fakeMids{err: errors.New("boom")}, []string{"BTC"}, "USD", fixedClock).Fetch(context.Background())
	var sue *domain.SourceUnavailableError
	require.True(t, errors.As(err, &sue))
	assert.Equal(t, HyperliquidName, sue.Source)
}

func TestNilClientsAreUnavailable(t *testing.T) {
	_, err := NewBinance(nil, []domain.Pair{domain.NewPair("BTC", "USDT")}, nil).Fetch(context.Background())
	assert.Error(t, err)
	_, err = NewBybit(nil, []domain.Pair{domain.NewPair("BTC", "USDT")}, nil).Fetch(context.Background())
	assert.Error(t, err)
	_, err = NewHyperliquid(nil, []string{"BTC"}, "", nil).Fetch(context.Background())
	assert.Error(t, err)
}

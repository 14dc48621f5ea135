package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRateRecord_NewerThan(t *testing.T) {
	now := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	older := RateRecord{Pair: NewPair("BTC", "USD"), Rate: decimal.NewFromInt(59000), FetchedAt: now.Add(-time.Minute)}
	newer := RateRecord{Pair: NewPair("BTC", "USD"), Rate: decimal.NewFromInt(60000), FetchedAt: now}

	assert.True(t, newer.NewerThan(older))
	assert.False(t, older.NewerThan(newer))
	// same instant: the later writer wins
	assert.True(t, older.NewerThan(RateRecord{FetchedAt: older.FetchedAt}))
}

func TestRateSnapshot_EqualAndClone(t *testing.T) {
	now := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	snap := NewRateSnapshot()
	snap.LastRefresh = now
	snap.Pairs[NewPair("BTC", "USD")] = RateRecord{
		Pair: NewPair("BTC", "USD"), Rate: decimal.NewFromInt(60000), Source: "coingecko", FetchedAt: now,
	}

	clone := snap.Clone()
	assert.True(t, snap.Equal(clone))

	clone.Pairs[NewPair("ETH", "USD")] = RateRecord{Pair: NewPair("ETH", "USD"), Rate: decimal.NewFromInt(3000), FetchedAt: now}
	assert.False(t, snap.Equal(clone))
	assert.Len(t, snap.Pairs, 1)
}

func TestCurrencyInfo_DisplayInfo(t *testing.T) {
	usd := CurrencyInfo{Code: "USD", Name: "US Dollar", Kind: Fiat{IssuingCountry: "United States"}}
	btc := CurrencyInfo{Code: "BTC", Name: "Bitcoin", Kind: Crypto{Algorithm: "SHA-256", MarketCap: 1.12e12}}

	assert.True(t, usd.IsFiat())
	assert.False(t, btc.IsFiat())
	assert.Equal(t, "[FIAT] USD — US Dollar (Issuing: United States)", usd.DisplayInfo())
	assert.Equal(t, "[CRYPTO] BTC — Bitcoin (Algo: SHA-256, MCAP: 1.12e+12)", btc.DisplayInfo())
}

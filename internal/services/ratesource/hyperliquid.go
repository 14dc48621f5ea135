package ratesource

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/valutatrade/internal/domain"
)

const HyperliquidName = "hyperliquid"

// midsFetcher is the part of the Hyperliquid info API the adapter needs.
type midsFetcher interface {
	AllMids(ctx context.Context) (map[string]string, error)
}

// Hyperliquid reads mid prices from the Hyperliquid public info API.
// Mids are keyed by coin and quoted in USD.
type Hyperliquid struct {
	info  midsFetcher
	coins []string
	quote string
	now   Clock
}

func NewHyperliquid(info midsFetcher, coins []string, quote string, now Clock) *Hyperliquid {
	if quote == "" {
		quote = "USD"
	}
	return &Hyperliquid{info: info, coins: coins, quote: domain.NormalizeCode(quote), now: clockOrNow(now)}
}

func (h *Hyperliquid) Name() string { return HyperliquidName }

// Fetch returns COIN_QUOTE records for configured coins present in the mids map.
func (h *Hyperliquid) Fetch(ctx context.Context) ([]domain.RateRecord, error) {
	if h.info == nil {
		return nil, domain.NewSourceUnavailable(HyperliquidName, fmt.Errorf("hyperliquid info client is nil"))
	}

	mids, err := h.info.AllMids(ctx)
	if err != nil {
		return nil, domain.NewSourceUnavailable(HyperliquidName, err)
	}

	fetchedAt := h.now()
	records := make([]domain.RateRecord, 0, len(h.coins))
	for _, coin := range h.coins {
		coin = domain.NormalizeCode(coin)
		mid, ok := mids[coin]
		if !ok || mid == "" {
			continue
		}
		rate, err := decimal.NewFromString(mid)
		if err != nil || !rate.IsPositive() {
			continue
		}
		records = append(records, record(coin, h.quote, rate, HyperliquidName, fetchedAt))
	}

	if len(records) == 0 {
		return nil, domain.NewSourceUnavailable(HyperliquidName, fmt.Errorf("no mid prices for %v", h.coins))
	}

	return records, nil
}

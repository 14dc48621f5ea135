package ratesource

import (
	"context"
	"fmt"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/valutatrade/internal/domain"
)

const BinanceName = "binance"

// Binance fetches last prices from the Binance public ticker API.
type Binance struct {
	client *binance.Client
	pairs  []domain.Pair
	now    Clock
}

func NewBinance(client *binance.Client, pairs []domain.Pair, now Clock) *Binance {
	return &Binance{client: client, pairs: pairs, now: clockOrNow(now)}
}

func (b *Binance) Name() string { return BinanceName }

// Fetch queries each configured pair. Any failing symbol fails the whole fetch.
func (b *Binance) Fetch(ctx context.Context) ([]domain.RateRecord, error) {
	if b.client == nil {
		return nil, domain.NewSourceUnavailable(BinanceName, fmt.Errorf("binance client is nil"))
	}

	records := make([]domain.RateRecord, 0, len(b.pairs))
	for _, pair := range b.pairs {
		prices, err := b.client.NewListPricesService().Symbol(pair.Symbol()).Do(ctx)
		if err != nil {
			return nil, domain.NewSourceUnavailable(BinanceName, err)
		}
		if len(prices) == 0 {
			return nil, domain.NewSourceUnavailable(BinanceName,
				fmt.Errorf("binance API returned empty prices for %s", pair.String()))
		}

		rate, err := decimal.NewFromString(prices[0].Price)
		if err != nil {
			return nil, domain.NewSourceUnavailable(BinanceName, err)
		}
		records = append(records, record(pair.From, pair.To, rate, BinanceName, b.now()))
	}

	return records, nil
}

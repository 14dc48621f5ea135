package ratesource

import (
	"context"
	"fmt"

	"github.com/hirokisan/bybit/v2"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/valutatrade/internal/domain"
)

const BybitName = "bybit"

// Bybit fetches spot last prices from the Bybit V5 market API.
type Bybit struct {
	client *bybit.Client
	pairs  []domain.Pair
	now    Clock
}

func NewBybit(client *bybit.Client, pairs []domain.Pair, now Clock) *Bybit {
	return &Bybit{client: client, pairs: pairs, now: clockOrNow(now)}
}

func (b *Bybit) Name() string { return BybitName }

// Fetch queries each configured pair. The SDK call takes no context, so each
// request runs in its own goroutine and is abandoned when ctx expires.
func (b *Bybit) Fetch(ctx context.Context) ([]domain.RateRecord, error) {
	if b.client == nil {
		return nil, domain.NewSourceUnavailable(BybitName, fmt.Errorf("bybit client is nil"))
	}

	records := make([]domain.RateRecord, 0, len(b.pairs))
	for _, pair := range b.pairs {
		rate, err := b.lastPrice(ctx, pair)
		if err != nil {
			return nil, domain.NewSourceUnavailable(BybitName, err)
		}
		records = append(records, record(pair.From, pair.To, rate, BybitName, b.now()))
	}

	return records, nil
}

type priceResult struct {
	price decimal.Decimal
	err   error
}

func (b *Bybit) lastPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	done := make(chan priceResult, 1)
	go func() {
		symbol := bybit.SymbolV5(pair.Symbol())
		result, err := b.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
			Category: "spot",
			Symbol:   &symbol,
		})
		if err != nil {
			done <- priceResult{err: err}
			return
		}
		if len(result.Result.Spot.List) == 0 {
			done <- priceResult{err: fmt.Errorf("bybit API returned empty prices for %s", pair.String())}
			return
		}
		price, err := decimal.NewFromString(result.Result.Spot.List[0].LastPrice)
		done <- priceResult{price: price, err: err}
	}()

	select {
	case <-ctx.Done():
		return decimal.Zero, ctx.Err()
	case res := <-done:
		return res.price, res.err
	}
}

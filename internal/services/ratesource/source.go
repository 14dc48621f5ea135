// Package ratesource contains adapters that fetch rates from external providers
// and normalize them into domain.RateRecord values tagged with the provider name.
package ratesource

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/valutatrade/internal/domain"
)

// Source fetches zero or more rates from one provider.
// Fetch fails with *domain.SourceUnavailableError on network or parsing problems.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]domain.RateRecord, error)
}

// Clock returns the current time. Adapters stamp records with it.
type Clock func() time.Time

func clockOrNow(c Clock) Clock {
	if c == nil {
		return func() time.Time { return time.Now().UTC() }
	}
	return c
}

func record(from, to string, rate decimal.Decimal, source string, at time.Time) domain.RateRecord {
	return domain.RateRecord{
		Pair:      domain.NewPair(from, to),
		Rate:      rate,
		Source:    source,
		FetchedAt: at,
	}
}

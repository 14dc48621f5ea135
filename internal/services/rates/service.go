// Package rates resolves exchange rates for arbitrary pairs from the rate cache.
package rates

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/valutatrade/internal/domain"
)

// InversePrecision is the number of decimal places kept when a rate is inverted.
const InversePrecision int32 = 28

var one = decimal.NewFromInt(1)

// Reader is the read side of the rate cache.
type Reader interface {
	Lookup(pair domain.Pair) (domain.RateRecord, bool)
	Snapshot() domain.RateSnapshot
}

// Resolution tells how a quote was obtained.
type Resolution string

const (
	ResolutionIdentity Resolution = "identity"
	ResolutionDirect   Resolution = "direct"
	ResolutionInverse  Resolution = "inverse"
)

// Quote is a resolved rate with provenance.
type Quote struct {
	Pair       domain.Pair
	Rate       decimal.Decimal
	Source     string
	FetchedAt  time.Time
	Resolution Resolution
}

// Service resolves rates: identity, then direct lookup, then single inverse.
// It never chains through a third currency.
type Service struct {
	cache Reader
	ttl   time.Duration
	now   func() time.Time
}

// NewService creates a rate service. ttl <= 0 disables staleness checks.
func NewService(cache Reader, ttl time.Duration) *Service {
	return &Service{cache: cache, ttl: ttl, now: time.Now}
}

// GetRate returns how many units of to one unit of from is worth.
func (s *Service) GetRate(from, to string) (decimal.Decimal, bool) {
	q, ok := s.Quote(from, to)
	if !ok {
		return decimal.Zero, false
	}
	return q.Rate, true
}

// Quote resolves a rate and reports where it came from.
func (s *Service) Quote(from, to string) (Quote, bool) {
	pair := domain.NewPair(from, to)
	if pair.From == pair.To {
		return Quote{Pair: pair, Rate: one, Resolution: ResolutionIdentity}, true
	}

	if rec, ok := s.cache.Lookup(pair); ok && rec.Rate.IsPositive() {
		return Quote{Pair: pair, Rate: rec.Rate, Source: rec.Source, FetchedAt: rec.FetchedAt, Resolution: ResolutionDirect}, true
	}

	if rec, ok := s.cache.Lookup(pair.Reversed()); ok && rec.Rate.IsPositive() {
		inverse := Invert(rec.Rate)
		if !inverse.IsPositive() {
			return Quote{}, false
		}
		return Quote{Pair: pair, Rate: inverse, Source: rec.Source, FetchedAt: rec.FetchedAt, Resolution: ResolutionInverse}, true
	}

	return Quote{}, false
}

// Invert returns 1/rate rounded to InversePrecision decimal places.
func Invert(rate decimal.Decimal) decimal.Decimal {
	return one.DivRound(rate, InversePrecision)
}

// GetRates exposes the raw cache contents without conversion logic.
func (s *Service) GetRates() domain.RateSnapshot {
	return s.cache.Snapshot()
}

// IsStale reports whether the cache was never refreshed or is older than the TTL.
func (s *Service) IsStale() bool {
	snap := s.cache.Snapshot()
	if snap.LastRefresh.IsZero() {
		return true
	}
	if s.ttl <= 0 {
		return false
	}
	return s.now().Sub(snap.LastRefresh) > s.ttl
}

// ShowRates lists cached records sorted by rate descending. A non-empty
// currency keeps only pairs whose key starts with "CUR_" or ends with "_CUR";
// top > 0 truncates the result.
func (s *Service) ShowRates(currency string, top int) []domain.RateRecord {
	snap := s.cache.Snapshot()
	currency = domain.NormalizeCode(currency)

	out := make([]domain.RateRecord, 0, len(snap.Pairs))
	for pair, rec := range snap.Pairs {
		if currency != "" {
			key := strings.ToUpper(pair.String())
			if !strings.HasPrefix(key, currency+"_") && !strings.HasSuffix(key, "_"+currency) {
				continue
			}
		}
		out = append(out, rec)
	}

	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Rate.Cmp(out[j].Rate); c != 0 {
			return c > 0
		}
		return out[i].Pair.String() < out[j].Pair.String()
	})

	if top > 0 && len(out) > top {
		out = out[:top]
	}

	return out
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RateRecord is a single normalized rate produced by a source.
// Records are immutable once stored; an update replaces the record for a pair wholesale.
type RateRecord struct {
	Pair      Pair
	Rate      decimal.Decimal
	Source    string
	FetchedAt time.Time
}

// NewerThan reports whether r should replace other under last-writer-wins.
// Equal timestamps favour r, the later writer.
func (r RateRecord) NewerThan(other RateRecord) bool {
	return !r.FetchedAt.Before(other.FetchedAt)
}

// Valid reports whether the record can be stored.
func (r RateRecord) Valid() bool {
	return r.Pair.From != "" && r.Pair.To != "" && r.Rate.IsPositive()
}

// RateSnapshot is the full content of the rate cache at one point in time.
type RateSnapshot struct {
	Pairs       map[Pair]RateRecord
	LastRefresh time.Time
}

// NewRateSnapshot returns an empty snapshot, the valid first-run state.
func NewRateSnapshot() RateSnapshot {
	return RateSnapshot{Pairs: make(map[Pair]RateRecord)}
}

// Lookup returns the record stored for pair without derivation.
func (s RateSnapshot) Lookup(pair Pair) (RateRecord, bool) {
	rec, ok := s.Pairs[pair]
	return rec, ok
}

// IsEmpty reports whether the snapshot holds no pairs.
func (s RateSnapshot) IsEmpty() bool {
	return len(s.Pairs) == 0
}

// Clone returns a deep copy so callers can't mutate cached state.
func (s RateSnapshot) Clone() RateSnapshot {
	out := RateSnapshot{Pairs: make(map[Pair]RateRecord, len(s.Pairs)), LastRefresh: s.LastRefresh}
	for k, v := range s.Pairs {
		out.Pairs[k] = v
	}
	return out
}

// Equal compares snapshots by value: decimals numerically and times by instant.
func (s RateSnapshot) Equal(other RateSnapshot) bool {
	if !s.LastRefresh.Equal(other.LastRefresh) || len(s.Pairs) != len(other.Pairs) {
		return false
	}
	for pair, rec := range s.Pairs {
		o, ok := other.Pairs[pair]
		if !ok {
			return false
		}
		if !rec.Rate.Equal(o.Rate) || rec.Source != o.Source || !rec.FetchedAt.Equal(o.FetchedAt) || rec.Pair != o.Pair {
			return false
		}
	}
	return true
}

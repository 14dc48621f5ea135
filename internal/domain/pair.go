// Package domain defines core data structures shared by the rate and portfolio services.
package domain

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// pairSeparator joins base and quote in a persisted pair key, e.g. "BTC_USD".
const pairSeparator = "_"

// Pair is an ordered currency pair. A rate r means 1 From = r To.
type Pair struct {
	// From base currency code.
	From string
	// To quote currency code.
	To string
}

// NewPair builds a pair from raw codes, normalizing case and whitespace.
func NewPair(from, to string) Pair {
	return Pair{From: NormalizeCode(from), To: NormalizeCode(to)}
}

// ParsePair parses a "<BASE>_<QUOTE>" key.
func ParsePair(key string) (Pair, error) {
	parts := strings.Split(key, pairSeparator)
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return Pair{}, errors.Wrapf(ErrInvalidInput, "invalid pair key %q", key)
	}

	return NewPair(parts[0], parts[1]), nil
}

// String returns the persisted key representation.
func (p Pair) String() string {
	return fmt.Sprintf("%s%s%s", p.From, pairSeparator, p.To)
}

// Symbol returns the concatenated exchange symbol, e.g. "BTCUSDT".
func (p Pair) Symbol() string {
	return p.From + p.To
}

// Reversed returns the pair with base and quote swapped.
func (p Pair) Reversed() Pair {
	return Pair{From: p.To, To: p.From}
}

// Contains reports whether code is either side of the pair.
func (p Pair) Contains(code string) bool {
	code = NormalizeCode(code)
	return p.From == code || p.To == code
}

// NormalizeCode upper-cases and trims a currency code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

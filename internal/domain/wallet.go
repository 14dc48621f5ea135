package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Wallet is a single currency balance. Balance is never negative.
type Wallet struct {
	Currency string
	Balance  decimal.Decimal
}

// Portfolio holds the wallets of one user for the process session.
type Portfolio struct {
	UserID  string
	Wallets map[string]Wallet
}

// NewPortfolio creates an empty portfolio.
func NewPortfolio(userID string) Portfolio {
	return Portfolio{UserID: userID, Wallets: make(map[string]Wallet)}
}

// Wallet returns the wallet for currency if present.
func (p Portfolio) Wallet(currency string) (Wallet, bool) {
	w, ok := p.Wallets[currency]
	return w, ok
}

// Currencies returns wallet currency codes in stable order.
func (p Portfolio) Currencies() []string {
	codes := make([]string, 0, len(p.Wallets))
	for code := range p.Wallets {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Clone returns a copy safe to hand out of the engine.
func (p Portfolio) Clone() Portfolio {
	out := Portfolio{UserID: p.UserID, Wallets: make(map[string]Wallet, len(p.Wallets))}
	for k, v := range p.Wallets {
		out.Wallets[k] = v
	}
	return out
}

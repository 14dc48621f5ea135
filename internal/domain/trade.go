package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeSide is buy or sell.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// TradeState tracks a transaction through Quoted -> Validated -> Applied, or Quoted -> Rejected.
type TradeState string

const (
	TradeQuoted    TradeState = "quoted"
	TradeValidated TradeState = "validated"
	TradeApplied   TradeState = "applied"
	TradeRejected  TradeState = "rejected"
)

// TradeResult describes an applied buy or sell.
// Rate and Value are nil when no rate to the quote currency was available.
type TradeResult struct {
	ID         string
	UserID     string
	Side       TradeSide
	Currency   string
	Quote      string
	Amount     decimal.Decimal
	OldBalance decimal.Decimal
	NewBalance decimal.Decimal
	Rate       *decimal.Decimal
	// Value is the estimated cost for a buy or the estimated revenue for a sell.
	Value    *decimal.Decimal
	State    TradeState
	Executed time.Time
}

// HasRate reports whether pricing was available.
func (r TradeResult) HasRate() bool {
	return r.Rate != nil
}

// Valuation is the value of one wallet in a base currency.
type Valuation struct {
	Currency string
	Balance  decimal.Decimal
	Rate     *decimal.Decimal
	Value    decimal.Decimal
}

// PortfolioValuation is a portfolio priced in a base currency.
type PortfolioValuation struct {
	UserID string
	Base   string
	Items  []Valuation
	Total  decimal.Decimal
}

// Package portfolio applies buy and sell operations to user wallets.
package portfolio

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/valutatrade/internal/domain"
	"github.com/vadiminshakov/valutatrade/internal/metrics"
	"github.com/vadiminshakov/valutatrade/internal/storage/journal"
)

// DefaultQuoteCurrency prices every trade.
const DefaultQuoteCurrency = "USD"

// RateProvider resolves a rate for a pair.
type RateProvider interface {
	GetRate(from, to string) (decimal.Decimal, bool)
}

// Catalog validates currency codes.
type Catalog interface {
	Get(code string) (domain.CurrencyInfo, error)
}

// Users validates user ids.
type Users interface {
	Exists(userID string) bool
}

// Journal records applied trades.
type Journal interface {
	AppendTrade(trade journal.Trade) error
}

// Engine owns all portfolios of the process session. A trade either fully
// updates one wallet or leaves it untouched.
type Engine struct {
	mu         sync.Mutex
	portfolios map[string]*domain.Portfolio
	rates      RateProvider
	catalog    Catalog
	users      Users
	journal    Journal
	metrics    *metrics.Metrics
	logger     *zap.Logger
	quote      string
	now        func() time.Time
	newID      func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithJournal records applied trades in j.
func WithJournal(j Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// WithMetrics records trade metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithQuoteCurrency overrides the currency trades are priced in.
func WithQuoteCurrency(code string) Option {
	return func(e *Engine) {
		if code != "" {
			e.quote = domain.NormalizeCode(code)
		}
	}
}

// WithClock overrides the trade timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a transaction engine.
func NewEngine(rates RateProvider, catalog Catalog, users Users, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if rates == nil {
		return nil, errors.New("rate provider is required")
	}
	if catalog == nil {
		return nil, errors.New("currency catalog is required")
	}
	if users == nil {
		return nil, errors.New("user directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		portfolios: make(map[string]*domain.Portfolio),
		rates:      rates,
		catalog:    catalog,
		users:      users,
		logger:     logger,
		quote:      DefaultQuoteCurrency,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Buy credits amount of currency. Missing pricing does not block the
// purchase; Rate and Value are nil in that case.
func (e *Engine) Buy(userID, currency string, amount decimal.Decimal) (domain.TradeResult, error) {
	return e.execute(domain.TradeSideBuy, userID, currency, amount)
}

// Sell debits amount of currency. It fails with *domain.InsufficientFundsError
// when the wallet is missing or holds less than amount.
func (e *Engine) Sell(userID, currency string, amount decimal.Decimal) (domain.TradeResult, error) {
	return e.execute(domain.TradeSideSell, userID, currency, amount)
}

func (e *Engine) execute(side domain.TradeSide, userID, currency string, amount decimal.Decimal) (domain.TradeResult, error) {
	currency = domain.NormalizeCode(currency)

	res, err := e.quoteTrade(side, userID, currency, amount)
	if err != nil {
		return e.reject(res, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.portfolio(userID)
	wallet, exists := p.Wallets[currency]
	if !exists {
		wallet = domain.Wallet{Currency: currency, Balance: decimal.Zero}
	}

	// validated: the new balance is computed before anything is written
	var newBalance decimal.Decimal
	switch side {
	case domain.TradeSideBuy:
		newBalance = wallet.Balance.Add(amount)
	case domain.TradeSideSell:
		if !exists || wallet.Balance.LessThan(amount) {
			return e.reject(res, &domain.InsufficientFundsError{
				Currency:  currency,
				Requested: amount,
				Available: wallet.Balance,
			})
		}
		newBalance = wallet.Balance.Sub(amount)
	}
	res.State = domain.TradeValidated

	res.OldBalance = wallet.Balance
	res.NewBalance = newBalance
	wallet.Balance = newBalance
	p.Wallets[currency] = wallet
	res.State = domain.TradeApplied
	res.Executed = e.now()

	e.metrics.ObserveTrade(string(side), currency, amount, true)
	if e.journal != nil {
		if err := e.journal.AppendTrade(journal.NewTrade(res)); err != nil {
			e.logger.Warn("failed to journal trade", zap.String("id", res.ID), zap.Error(err))
		}
	}

	fields := []zap.Field{
		zap.String("id", res.ID),
		zap.String("user_id", userID),
		zap.String("side", string(side)),
		zap.String("currency", currency),
		zap.String("amount", amount.String()),
		zap.String("old_balance", res.OldBalance.String()),
		zap.String("new_balance", res.NewBalance.String()),
	}
	if res.Rate != nil {
		fields = append(fields, zap.String("rate", res.Rate.String()))
	}
	e.logger.Info("trade applied", fields...)

	return res, nil
}

// quoteTrade validates the request and prices it.
func (e *Engine) quoteTrade(side domain.TradeSide, userID, currency string, amount decimal.Decimal) (domain.TradeResult, error) {
	res := domain.TradeResult{
		ID:       e.newID(),
		UserID:   userID,
		Side:     side,
		Currency: currency,
		Quote:    e.quote,
		Amount:   amount,
		State:    domain.TradeQuoted,
	}

	if !amount.IsPositive() {
		return res, errors.Wrapf(domain.ErrInvalidInput, "'amount' must be a positive number, got %s", amount.String())
	}
	if !e.users.Exists(userID) {
		return res, errors.Wrapf(domain.ErrUserNotFound, "user %s", userID)
	}
	if _, err := e.catalog.Get(currency); err != nil {
		return res, err
	}

	if rate, ok := e.rates.GetRate(currency, e.quote); ok {
		value := amount.Mul(rate)
		res.Rate = &rate
		res.Value = &value
	}

	return res, nil
}

func (e *Engine) reject(res domain.TradeResult, err error) (domain.TradeResult, error) {
	res.State = domain.TradeRejected
	e.metrics.ObserveTrade(string(res.Side), res.Currency, res.Amount, false)
	e.logger.Info("trade rejected",
		zap.String("user_id", res.UserID),
		zap.String("side", string(res.Side)),
		zap.String("currency", res.Currency),
		zap.Error(err))
	return res, err
}

// GetUserPortfolio returns a copy of the user's portfolio, creating an empty
// one on first access.
func (e *Engine) GetUserPortfolio(userID string) (domain.Portfolio, error) {
	if !e.users.Exists(userID) {
		return domain.Portfolio{}, errors.Wrapf(domain.ErrUserNotFound, "user %s", userID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.portfolio(userID).Clone(), nil
}

// Valuate prices every wallet in base. Wallets without a rate are reported
// with a nil Rate and a zero Value and excluded from the total.
func (e *Engine) Valuate(userID, base string) (domain.PortfolioValuation, error) {
	base = domain.NormalizeCode(base)
	if base == "" {
		base = e.quote
	}
	if _, err := e.catalog.Get(base); err != nil {
		return domain.PortfolioValuation{}, err
	}

	p, err := e.GetUserPortfolio(userID)
	if err != nil {
		return domain.PortfolioValuation{}, err
	}

	out := domain.PortfolioValuation{UserID: userID, Base: base, Total: decimal.Zero}
	for _, code := range p.Currencies() {
		wallet := p.Wallets[code]
		item := domain.Valuation{Currency: code, Balance: wallet.Balance, Value: decimal.Zero}
		if rate, ok := e.rates.GetRate(code, base); ok {
			item.Rate = &rate
			item.Value = wallet.Balance.Mul(rate)
			out.Total = out.Total.Add(item.Value)
		}
		out.Items = append(out.Items, item)
	}

	return out, nil
}

// portfolio must be called with e.mu held.
func (e *Engine) portfolio(userID string) *domain.Portfolio {
	p, ok := e.portfolios[userID]
	if !ok {
		np := domain.NewPortfolio(userID)
		p = &np
		e.portfolios[userID] = p
	}
	return p
}

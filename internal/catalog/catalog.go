// Package catalog is the static currency catalog. Classification is resolved
// once at construction, never probed per lookup.
package catalog

import (
	"sort"

	money "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/valutatrade/internal/domain"
)

const cryptoFraction = 8

// Catalog maps currency codes to their metadata.
type Catalog struct {
	currencies map[string]domain.CurrencyInfo
}

// New builds a catalog from the given entries. Fraction digits of fiat
// currencies are taken from the ISO table when not set explicitly.
func New(infos ...domain.CurrencyInfo) *Catalog {
	c := &Catalog{currencies: make(map[string]domain.CurrencyInfo, len(infos))}
	for _, info := range infos {
		info.Code = domain.NormalizeCode(info.Code)
		if info.Fraction == 0 {
			info.Fraction = fractionFor(info)
		}
		c.currencies[info.Code] = info
	}
	return c
}

// Default returns the catalog of currencies supported out of the box.
func Default() *Catalog {
	return New(
		domain.CurrencyInfo{Code: "USD", Name: "US Dollar", Kind: domain.Fiat{IssuingCountry: "United States"}},
		domain.CurrencyInfo{Code: "EUR", Name: "Euro", Kind: domain.Fiat{IssuingCountry: "Eurozone"}},
		domain.CurrencyInfo{Code: "GBP", Name: "British Pound", Kind: domain.Fiat{IssuingCountry: "United Kingdom"}},
		domain.CurrencyInfo{Code: "RUB", Name: "Russian Ruble", Kind: domain.Fiat{IssuingCountry: "Russia"}},
		domain.CurrencyInfo{Code: "CNY", Name: "Chinese Yuan", Kind: domain.Fiat{IssuingCountry: "China"}},
		domain.CurrencyInfo{Code: "JPY", Name: "Japanese Yen", Kind: domain.Fiat{IssuingCountry: "Japan"}},
		domain.CurrencyInfo{Code: "BTC", Name: "Bitcoin", Kind: domain.Crypto{Algorithm: "SHA-256", MarketCap: 1.12e12}},
		domain.CurrencyInfo{Code: "ETH", Name: "Ethereum", Kind: domain.Crypto{Algorithm: "Ethash", MarketCap: 4.5e11}},
		domain.CurrencyInfo{Code: "SOL", Name: "Solana", Kind: domain.Crypto{Algorithm: "Proof of History", MarketCap: 7.5e10}},
		domain.CurrencyInfo{Code: "USDT", Name: "Tether", Kind: domain.Crypto{Algorithm: "Omni/ERC-20", MarketCap: 1.1e11}},
	)
}

// Get returns the entry for code or a CurrencyNotFoundError.
func (c *Catalog) Get(code string) (domain.CurrencyInfo, error) {
	code = domain.NormalizeCode(code)
	info, ok := c.currencies[code]
	if !ok {
		return domain.CurrencyInfo{}, &domain.CurrencyNotFoundError{Code: code}
	}
	return info, nil
}

// Has reports whether code is tradable.
func (c *Catalog) Has(code string) bool {
	_, ok := c.currencies[domain.NormalizeCode(code)]
	return ok
}

// Fiats returns fiat currencies sorted by code.
func (c *Catalog) Fiats() []domain.CurrencyInfo {
	return c.filter(func(info domain.CurrencyInfo) bool { return info.IsFiat() })
}

// Cryptos returns cryptocurrencies sorted by code.
func (c *Catalog) Cryptos() []domain.CurrencyInfo {
	return c.filter(func(info domain.CurrencyInfo) bool { return !info.IsFiat() })
}

// Format renders amount followed by its code, e.g. "2,966.86 USD".
// Fiat amounts get the currency's fraction digits and thousands separators,
// crypto amounts plain fixed-point digits.
func (c *Catalog) Format(code string, amount decimal.Decimal) string {
	info, err := c.Get(code)
	if err != nil {
		return amount.String() + " " + domain.NormalizeCode(code)
	}
	if !info.IsFiat() {
		return amount.StringFixed(int32(info.Fraction)) + " " + info.Code
	}
	minor := amount.Round(int32(info.Fraction)).Shift(int32(info.Fraction)).IntPart()
	return money.NewFormatter(info.Fraction, ".", ",", info.Code, "1 $").Format(minor)
}

func (c *Catalog) filter(keep func(domain.CurrencyInfo) bool) []domain.CurrencyInfo {
	var out []domain.CurrencyInfo
	for _, info := range c.currencies {
		if keep(info) {
			out = append(out, info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func fractionFor(info domain.CurrencyInfo) int {
	if !info.IsFiat() {
		return cryptoFraction
	}
	if cur := money.GetCurrency(info.Code); cur != nil {
		return cur.Fraction
	}
	return 2
}

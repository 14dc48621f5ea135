package domain

import "fmt"

// CurrencyKind classifies a currency. It is resolved once when the catalog is built.
type CurrencyKind interface {
	isCurrencyKind()
	// Label is the short tag used in listings.
	Label() string
}

// Fiat is a government-issued currency.
type Fiat struct {
	IssuingCountry string
}

func (Fiat) isCurrencyKind() {}

// Label implements CurrencyKind.
func (Fiat) Label() string { return "FIAT" }

// Crypto is a cryptocurrency.
type Crypto struct {
	Algorithm string
	MarketCap float64
}

func (Crypto) isCurrencyKind() {}

// Label implements CurrencyKind.
func (Crypto) Label() string { return "CRYPTO" }

// CurrencyInfo is the catalog entry for one currency code.
type CurrencyInfo struct {
	Code     string
	Name     string
	Kind     CurrencyKind
	Fraction int
}

// IsFiat reports whether the currency is fiat.
func (c CurrencyInfo) IsFiat() bool {
	_, ok := c.Kind.(Fiat)
	return ok
}

// DisplayInfo renders a one-line description for listings.
func (c CurrencyInfo) DisplayInfo() string {
	switch k := c.Kind.(type) {
	case Fiat:
		return fmt.Sprintf("[FIAT] %s — %s (Issuing: %s)", c.Code, c.Name, k.IssuingCountry)
	case Crypto:
		return fmt.Sprintf("[CRYPTO] %s — %s (Algo: %s, MCAP: %.2e)", c.Code, c.Name, k.Algorithm, k.MarketCap)
	default:
		return fmt.Sprintf("%s — %s", c.Code, c.Name)
	}
}

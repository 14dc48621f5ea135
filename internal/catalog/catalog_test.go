package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/valutatrade/internal/domain"
)

func TestCatalog_Get(t *testing.T) {
	c := Default()

	info, err := c.Get("btc")
	require.NoError(t, err)
	assert.Equal(t, "BTC", info.Code)
	assert.IsType(t, domain.Crypto{}, info.Kind)
	assert.Equal(t, 8, info.Fraction)

	usd, err := c.Get("USD")
	require.NoError(t, err)
	assert.Equal(t, domain.Fiat{IssuingCountry: "United States"}, usd.Kind)
	assert.Equal(t, 2, usd.Fraction)

	_, err = c.Get("XYZ")
	var notFound *domain.CurrencyNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "XYZ", notFound.Code)
}

func TestCatalog_Groups(t *testing.T) {
	c := Default()

	for _, info := range c.Fiats() {
		assert.True(t, info.IsFiat(), info.Code)
	}
	for _, info := range c.Cryptos() {
		assert.False(t, info.IsFiat(), info.Code)
	}
	assert.Len(t, c.Fiats(), 6)
	assert.Len(t, c.Cryptos(), 4)
	assert.True(t, c.Has("usdt"))
	assert.False(t, c.Has("XYZ"))
	assert.Equal(t, "BTC", c.Cryptos()[0].Code)
}

func TestCatalog_Format(t *testing.T) {
	c := Default()

	assert.Equal(t, "0.05000000 BTC", c.Format("BTC", decimal.NewFromFloat(0.05)))
	assert.Equal(t, "1 ZZZ", c.Format("zzz", decimal.NewFromInt(1)))
	assert.Equal(t, "1,234.50 USD", c.Format("USD", decimal.NewFromFloat(1234.5)))
	assert.Equal(t, "2,966.86 USD", c.Format("usd", decimal.RequireFromString("2966.8605")))
	assert.Equal(t, "1,234,567.10 USD", c.Format("USD", decimal.RequireFromString("1234567.1")))
	assert.Equal(t, "0.00 EUR", c.Format("EUR", decimal.Zero))
	assert.Equal(t, "1,235 JPY", c.Format("JPY", decimal.RequireFromString("1234.6")))
}

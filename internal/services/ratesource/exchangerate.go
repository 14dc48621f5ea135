package ratesource

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/valutatrade/internal/domain"
)

const (
	ExchangeRateName = "exchangerate"
	// keyed endpoint, used when an API key is configured
	exchangeRateBaseURL = "https://v6.exchangerate-api.com/v6"
	// open endpoint, no key
	exchangeRateOpenURL = "https://open.er-api.com/v6"
)

// DefaultFiatSymbols are the fiat codes requested from ExchangeRate-API.
var DefaultFiatSymbols = []string{"EUR", "GBP", "RUB", "CNY", "JPY"}

// ExchangeRate fetches fiat rates from ExchangeRate-API.
// A response for base USD with EUR=0.92 yields the record USD_EUR=0.92.
type ExchangeRate struct {
	client  *http.Client
	baseURL string
	apiKey  string
	base    string
	symbols []string
	now     Clock
}

// NewExchangeRate creates the adapter. An empty apiKey switches to the open endpoint.
func NewExchangeRate(client *http.Client, baseURL, apiKey, base string, symbols []string, now Clock) *ExchangeRate {
	if client == nil {
		client = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = exchangeRateBaseURL
		if apiKey == "" {
			baseURL = exchangeRateOpenURL
		}
	}
	if base == "" {
		base = "USD"
	}
	if len(symbols) == 0 {
		symbols = DefaultFiatSymbols
	}

	return &ExchangeRate{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		base:    domain.NormalizeCode(base),
		symbols: symbols,
		now:     clockOrNow(now),
	}
}

func (e *ExchangeRate) Name() string { return ExchangeRateName }

// Fetch returns BASE_SYMBOL records for each configured symbol present in the response.
func (e *ExchangeRate) Fetch(ctx context.Context) ([]domain.RateRecord, error) {
	addr := fmt.Sprintf("%s/latest/%s", e.baseURL, e.base)
	if e.apiKey != "" {
		addr = fmt.Sprintf("%s/%s/latest/%s", e.baseURL, e.apiKey, e.base)
	}

	jobj, err := getJSON(ctx, e.client, addr)
	if err != nil {
		return nil, domain.NewSourceUnavailable(ExchangeRateName, err)
	}

	if result := field(jobj, "result"); result != "" && result != "success" {
		return nil, domain.NewSourceUnavailable(ExchangeRateName,
			errors.Errorf("provider error: %s", field(jobj, "error-type")))
	}

	fetchedAt := e.now()
	records := make([]domain.RateRecord, 0, len(e.symbols))
	for _, sym := range e.symbols {
		sym = domain.NormalizeCode(sym)
		if sym == e.base {
			continue
		}
		rate, err := lookupRate(jobj, sym)
		if err != nil || !rate.IsPositive() {
			continue
		}
		records = append(records, record(e.base, sym, rate, ExchangeRateName, fetchedAt))
	}

	if len(records) == 0 {
		return nil, domain.NewSourceUnavailable(ExchangeRateName, errors.New("response contained no usable rates"))
	}

	return records, nil
}

// lookupRate reads sym from conversion_rates (keyed endpoint) or rates (open endpoint).
func lookupRate(jobj any, sym string) (decimal.Decimal, error) {
	rate, err := number(jobj, "$.conversion_rates."+sym)
	if err == nil {
		return rate, nil
	}
	return number(jobj, "$.rates."+sym)
}

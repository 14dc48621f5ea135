package ratesource

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/valutatrade/internal/domain"
)

const (
	CoinGeckoName    = "coingecko"
	coinGeckoBaseURL = "https://api.coingecko.com/api/v3"
)

// DefaultCoinGeckoIDs maps currency codes to CoinGecko coin ids.
var DefaultCoinGeckoIDs = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"SOL":  "solana",
	"USDT": "tether",
}

// CoinGecko fetches crypto prices from the CoinGecko simple price API.
type CoinGecko struct {
	client  *http.Client
	baseURL string
	ids     map[string]string
	quote   string
	now     Clock
}

// NewCoinGecko creates the adapter. ids maps currency code to coin id; quote
// is the fiat the prices are requested in.
func NewCoinGecko(client *http.Client, baseURL string, ids map[string]string, quote string, now Clock) *CoinGecko {
	if client == nil {
		client = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = coinGeckoBaseURL
	}
	if len(ids) == 0 {
		ids = DefaultCoinGeckoIDs
	}
	if quote == "" {
		quote = "USD"
	}

	return &CoinGecko{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		ids:     ids,
		quote:   domain.NormalizeCode(quote),
		now:     clockOrNow(now),
	}
}

func (c *CoinGecko) Name() string { return CoinGeckoName }

// Fetch returns one record per coin present in the response, e.g. BTC_USD.
func (c *CoinGecko) Fetch(ctx context.Context) ([]domain.RateRecord, error) {
	codes := make([]string, 0, len(c.ids))
	ids := make([]string, 0, len(c.ids))
	for code, id := range c.ids {
		codes = append(codes, code)
		ids = append(ids, id)
	}
	sort.Strings(codes)
	sort.Strings(ids)

	vs := strings.ToLower(c.quote)
	addr := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=%s",
		c.baseURL, url.QueryEscape(strings.Join(ids, ",")), url.QueryEscape(vs))

	jobj, err := getJSON(ctx, c.client, addr)
	if err != nil {
		return nil, domain.NewSourceUnavailable(CoinGeckoName, err)
	}

	fetchedAt := c.now()
	records := make([]domain.RateRecord, 0, len(codes))
	for _, code := range codes {
		rate, err := number(jobj, fmt.Sprintf("$.%s.%s", c.ids[code], vs))
		if err != nil || !rate.IsPositive() {
			continue
		}
		records = append(records, record(code, c.quote, rate, CoinGeckoName, fetchedAt))
	}

	if len(records) == 0 {
		return nil, domain.NewSourceUnavailable(CoinGeckoName, errors.New("response contained no usable prices"))
	}

	return records, nil
}

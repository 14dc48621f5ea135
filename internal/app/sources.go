package app

import (
	"context"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/vadiminshakov/valutatrade/config"
	"github.com/vadiminshakov/valutatrade/internal/clients"
	"github.com/vadiminshakov/valutatrade/internal/domain"
	"github.com/vadiminshakov/valutatrade/internal/services/ratesource"
)

const hyperliquidMainnetURL = "https://api.hyperliquid.xyz"

// newSources builds one adapter per enabled source in configuration order.
// This is the single place that maps a source name to its client.
func newSources(ctx context.Context, cfg config.Config, httpClient *http.Client) ([]ratesource.Source, error) {
	var out []ratesource.Source
	for _, sc := range cfg.EnabledSources() {
		src, err := newSource(ctx, sc, cfg.Secrets, httpClient)
		if err != nil {
			return nil, errors.Wrapf(err, "source %s", sc.Name)
		}
		out = append(out, src)
	}
	return out, nil
}

func newSource(ctx context.Context, sc config.SourceConfig, secrets config.Secrets, httpClient *http.Client) (ratesource.Source, error) {
	switch sc.Name {
	case config.SourceCoinGecko:
		ids, err := coinGeckoIDs(sc.Symbols)
		if err != nil {
			return nil, err
		}
		return ratesource.NewCoinGecko(httpClient, sc.URL, ids, sc.Quote, nil), nil
	case config.SourceExchangeRate:
		return ratesource.NewExchangeRate(httpClient, sc.URL, secrets.ExchangeRateAPIKey, sc.Quote, sc.Symbols, nil), nil
	case config.SourceBinance:
		client := clients.NewBinanceClient(secrets.BinanceAPIKey, secrets.BinanceAPISecret, httpClient)
		if sc.URL != "" {
			client.BaseURL = sc.URL
		}
		return ratesource.NewBinance(client, pairs(sc), nil), nil
	case config.SourceBybit:
		return ratesource.NewBybit(clients.NewBybitClient(secrets.BybitAPIKey, secrets.BybitAPISecret), pairs(sc), nil), nil
	case config.SourceHyperliquid:
		baseURL := sc.URL
		if baseURL == "" {
			baseURL = hyperliquidMainnetURL
		}
		client, err := clients.NewHyperliquidClient(ctx, secrets.HyperliquidPrivateKey, baseURL)
		if err != nil {
			return nil, err
		}
		return ratesource.NewHyperliquid(client.Info(), sc.Symbols, sc.Quote, nil), nil
	default:
		return nil, errors.Errorf("unsupported rate source %q", sc.Name)
	}
}

func pairs(sc config.SourceConfig) []domain.Pair {
	out := make([]domain.Pair, 0, len(sc.Symbols))
	for _, sym := range sc.Symbols {
		out = append(out, domain.NewPair(sym, sc.Quote))
	}
	return out
}

func coinGeckoIDs(symbols []string) (map[string]string, error) {
	ids := make(map[string]string, len(symbols))
	for _, sym := range symbols {
		code := strings.ToUpper(sym)
		id, ok := ratesource.DefaultCoinGeckoIDs[code]
		if !ok {
			return nil, errors.Errorf("no coingecko id for %s", code)
		}
		ids[code] = id
	}
	return ids, nil
}

package clients

import (
	"net/http"

	"github.com/adshao/go-binance/v2"
)

// NewBinanceClient creates a Binance client. Empty credentials are enough
// for the public price endpoints.
func NewBinanceClient(apiKey, apiSecret string, httpClient *http.Client) *binance.Client {
	client := binance.NewClient(apiKey, apiSecret)
	if httpClient != nil {
		client.HTTPClient = httpClient
	}

	return client
}

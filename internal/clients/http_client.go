package clients

import (
	"net/http"
	"time"
)

const defaultHTTPTimeout = 10 * time.Second

// NewHTTPClient returns a client whose requests never outlive timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	return &http.Client{Timeout: timeout}
}

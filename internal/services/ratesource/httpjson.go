package ratesource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// StatusError is returned for non-2xx provider responses.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Code)
}

// Retryable reports whether a failed fetch is worth another attempt:
// transport errors, timeouts, 429 and 5xx are; other 4xx and parse errors are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= http.StatusInternalServerError
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// getJSON performs a GET and decodes the body into a generic value for jsonpath.
func getJSON(ctx context.Context, client *http.Client, addr string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{Code: resp.StatusCode, URL: redact(addr)}
	}

	var jobj any
	if err := json.NewDecoder(resp.Body).Decode(&jobj); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	return jobj, nil
}

// number reads a numeric value at path. Providers return numbers either as
// JSON numbers or as strings.
func number(jobj any, path string) (decimal.Decimal, error) {
	jval, err := jsonpath.Get(path, jobj)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "lookup %q", path)
	}
	// jsonpath may return a list of one answer
	if jlist, ok := jval.([]any); ok {
		if len(jlist) == 0 {
			return decimal.Zero, errors.Errorf("lookup %q: no value", path)
		}
		jval = jlist[0]
	}

	switch v := jval.(type) {
	case float64:
		return decimal.NewFromFloat(v), nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.Zero, errors.Wrapf(err, "parse %q", path)
		}
		return d, nil
	default:
		return decimal.Zero, errors.Errorf("lookup %q: not a number: %v", path, jval)
	}
}

// field reads a top-level string field, returning "" when absent.
func field(jobj any, key string) string {
	m, ok := jobj.(map[string]any)
	if !ok {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

// redact hides path segments that look like API keys.
func redact(addr string) string {
	parts := strings.Split(addr, "/")
	for i, p := range parts {
		if len(p) >= 20 && !strings.Contains(p, ".") && !strings.Contains(p, "?") {
			parts[i] = "***"
		}
	}
	return strings.Join(parts, "/")
}

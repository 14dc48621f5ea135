package domain

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidInput marks validation failures the caller must present to the user.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUserNotFound is returned for operations on an unknown user id.
	ErrUserNotFound = errors.New("user not found")
	// ErrNotLoggedIn is returned when a session has no authenticated user.
	ErrNotLoggedIn = errors.New("please login first")
)

// CurrencyNotFoundError reports a code missing from the currency catalog.
type CurrencyNotFoundError struct {
	Code string
}

func (e *CurrencyNotFoundError) Error() string {
	return fmt.Sprintf("unknown currency '%s'", e.Code)
}

// InsufficientFundsError reports a sell that exceeds the wallet balance.
type InsufficientFundsError struct {
	Currency  string
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available %s %s, required %s %s",
		e.Available.String(), e.Currency, e.Requested.String(), e.Currency)
}

// SourceUnavailableError wraps a failed fetch from one rate source.
type SourceUnavailableError struct {
	Source string
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("rate source %s unavailable: %v", e.Source, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error {
	return e.Err
}

// NewSourceUnavailable wraps err for source unless it is already a SourceUnavailableError.
func NewSourceUnavailable(source string, err error) error {
	var sue *SourceUnavailableError
	if errors.As(err, &sue) {
		return err
	}
	return &SourceUnavailableError{Source: source, Err: err}
}

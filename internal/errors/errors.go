// Package errors provides categorized errors for the portfolio tracker.
// Every failure is classified so the retry layer can tell transient faults
// apart from permanent ones.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Category classifies an error for retry and degradation decisions.
type Category string

const (
	// CategoryTransient covers timeouts, rate limits and temporary RPC or
	// provider unavailability. Retried with bounded attempts.
	CategoryTransient Category = "transient"
	// CategoryDataInvalid covers malformed chain responses and non-positive
	// prices. Rejected immediately, never cached or persisted.
	CategoryDataInvalid Category = "data_invalid"
	// CategoryConfiguration covers missing chain endpoints and invalid rule
	// parameters. Surfaced to the operator, never retried.
	CategoryConfiguration Category = "configuration"
	// CategoryExhausted means every tier of a fallback chain failed.
	CategoryExhausted Category = "exhausted"
)

// CategorizedError carries a category, a stable code and optional context.
type CategorizedError struct {
	Category Category
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// Transient errors

// NewTransient creates a generic transient error
func NewTransient(code, message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryTransient,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// NewProviderError creates a transient error for a failed provider call
func NewProviderError(provider string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryTransient,
		Code:     "PROVIDER_ERROR",
		Message:  fmt.Sprintf("provider error: %s", provider),
		Cause:    cause,
		Details: map[string]interface{}{
			"provider": provider,
		},
	}
}

// NewProviderTimeout creates a transient error for a provider timeout
func NewProviderTimeout(provider string) *CategorizedError {
	return &CategorizedError{
		Category: CategoryTransient,
		Code:     "PROVIDER_TIMEOUT",
		Message:  fmt.Sprintf("provider timeout: %s", provider),
		Details: map[string]interface{}{
			"provider": provider,
		},
	}
}

// NewProviderRateLimit creates a transient error for a provider rate limit
func NewProviderRateLimit(provider string) *CategorizedError {
	return &CategorizedError{
		Category: CategoryTransient,
		Code:     "PROVIDER_RATE_LIMIT",
		Message:  fmt.Sprintf("provider rate limit exceeded: %s", provider),
		Details: map[string]interface{}{
			"provider": provider,
		},
	}
}

// Data errors

// NewDataInvalid creates an error for malformed data
func NewDataInvalid(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryDataInvalid,
		Code:     "DATA_INVALID",
		Message:  message,
		Cause:    cause,
	}
}

// NewNonPositivePrice creates an error for a zero or negative external price
func NewNonPositivePrice(symbol string, price float64) *CategorizedError {
	return &CategorizedError{
		Category: CategoryDataInvalid,
		Code:     "NON_POSITIVE_PRICE",
		Message:  fmt.Sprintf("non-positive price %v for %s", price, symbol),
		Details: map[string]interface{}{
			"symbol": symbol,
			"price":  price,
		},
	}
}

// Configuration errors

// NewConfiguration creates a configuration error
func NewConfiguration(message string) *CategorizedError {
	return &CategorizedError{
		Category: CategoryConfiguration,
		Code:     "CONFIGURATION",
		Message:  message,
	}
}

// NewMissingChainEndpoint creates an error for a chain with no RPC endpoint
func NewMissingChainEndpoint(chainID uint64) *CategorizedError {
	return &CategorizedError{
		Category: CategoryConfiguration,
		Code:     "MISSING_CHAIN_ENDPOINT",
		Message:  fmt.Sprintf("no RPC endpoint configured for chain %d", chainID),
		Details: map[string]interface{}{
			"chainId": chainID,
		},
	}
}

// Exhaustion errors

// NewExhausted creates an error for a fully exhausted fallback chain
func NewExhausted(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryExhausted,
		Code:     "EXHAUSTED",
		Message:  message,
		Cause:    cause,
	}
}

// NewPriceUnavailable creates an error when no price tier can serve a symbol
func NewPriceUnavailable(symbol string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryExhausted,
		Code:     "PRICE_UNAVAILABLE",
		Message:  fmt.Sprintf("no price obtainable for %s", symbol),
		Cause:    cause,
		Details: map[string]interface{}{
			"symbol": symbol,
		},
	}
}

// Categorize returns the CategorizedError in err's chain, or wraps err as
// transient so unknown failures stay retryable.
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if stderrors.As(err, &catErr) {
		return catErr
	}

	return NewTransient("UNCLASSIFIED", "unclassified error", err)
}

// CategoryOf returns the category of an error
func CategoryOf(err error) Category {
	catErr := Categorize(err)
	if catErr == nil {
		return ""
	}
	return catErr.Category
}

// IsTransient determines if an error should trigger a retry
func IsTransient(err error) bool {
	return CategoryOf(err) == CategoryTransient
}

// IsDataInvalid determines if an error rejects bad data
func IsDataInvalid(err error) bool {
	return CategoryOf(err) == CategoryDataInvalid
}

// IsConfiguration determines if an error is an operator problem
func IsConfiguration(err error) bool {
	return CategoryOf(err) == CategoryConfiguration
}

// IsExhausted determines if every fallback tier failed
func IsExhausted(err error) bool {
	return CategoryOf(err) == CategoryExhausted
}

package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestCategorizeNil(t *testing.T) {
	if got := Categorize(nil); got != nil {
		t.Errorf("Categorize(nil) = %v, want nil", got)
	}
}

func TestCategorizePassthrough(t *testing.T) {
	err := NewNonPositivePrice("ETH", -1)
	if got := Categorize(err); got != err {
		t.Errorf("Categorize() did not return the original categorized error")
	}
}

func TestCategorizeWrapped(t *testing.T) {
	inner := NewConfiguration("bad rule parameters")
	wrapped := fmt.Errorf("evaluating rule: %w", inner)

	got := Categorize(wrapped)
	if got.Category != CategoryConfiguration {
		t.Errorf("Category = %v, want %v", got.Category, CategoryConfiguration)
	}
}

func TestCategorizeUnknownIsTransient(t *testing.T) {
	err := stderrors.New("connection reset by peer")
	if !IsTransient(err) {
		t.Error("unclassified errors must default to transient")
	}
}

func TestCategoryPredicates(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"timeout", NewProviderTimeout("coingecko"), CategoryTransient},
		{"rate limit", NewProviderRateLimit("coingecko"), CategoryTransient},
		{"bad price", NewNonPositivePrice("ETH", 0), CategoryDataInvalid},
		{"missing endpoint", NewMissingChainEndpoint(137), CategoryConfiguration},
		{"price unavailable", NewPriceUnavailable("XYZ", nil), CategoryExhausted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategoryOf(tt.err); got != tt.want {
				t.Errorf("CategoryOf() = %v, want %v", got, tt.want)
			}
		})
	}

	if IsTransient(NewNonPositivePrice("ETH", 0)) {
		t.Error("data invalid errors must not be retryable")
	}
	if IsTransient(NewMissingChainEndpoint(1)) {
		t.Error("configuration errors must not be retryable")
	}
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("dial tcp: i/o timeout")
	err := NewProviderError("rpc", cause)

	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should find the cause through Unwrap")
	}
}

package adapter

import (
	"context"
	"math/big"
	"testing"
	"time"

	apperrors "github.com/portfolio-sentinel/internal/errors"
	"github.com/portfolio-sentinel/internal/types"
)

func TestCallContextAppliesPerCallDeadline(t *testing.T) {
	a := &EthereumAdapter{callTimeout: 10 * time.Second}

	ctx, cancel := a.callCtx(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("callCtx() should set a deadline")
	}
	if remaining := time.Until(deadline); remaining > 10*time.Second || remaining <= 0 {
		t.Errorf("deadline %v from now, want within 10s", remaining)
	}
}

func TestCallContextZeroTimeoutPassesThrough(t *testing.T) {
	a := &EthereumAdapter{}

	ctx, cancel := a.callCtx(context.Background())
	defer cancel()

	if _, ok := ctx.Deadline(); ok {
		t.Error("zero timeout must not impose a deadline")
	}
}

func TestTransferEventDirection(t *testing.T) {
	wallet := "0xAbC0000000000000000000000000000000000001"
	event := &TransferEvent{
		From: "0x0000000000000000000000000000000000000002",
		To:   "0xabc0000000000000000000000000000000000001",
	}

	// Address comparison is case-insensitive
	if got := event.Direction(wallet); got != "in" {
		t.Errorf("Direction() = %v, want in", got)
	}

	event.To = "0x0000000000000000000000000000000000000003"
	if got := event.Direction(wallet); got != "out" {
		t.Errorf("Direction() = %v, want out", got)
	}
}

func TestScaleAmount(t *testing.T) {
	tests := []struct {
		raw      *big.Int
		decimals uint8
		want     float64
	}{
		{big.NewInt(1_000_000), 6, 1.0},
		{big.NewInt(1_500_000_000_000_000_000), 18, 1.5},
		{big.NewInt(0), 18, 0},
		{big.NewInt(250), 2, 2.5},
	}

	for _, tt := range tests {
		if got := scaleAmount(tt.raw, tt.decimals); got != tt.want {
			t.Errorf("scaleAmount(%v, %d) = %v, want %v", tt.raw, tt.decimals, got, tt.want)
		}
	}
}

func TestRegistryMissingChain(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Get(types.ChainPolygon)
	if err == nil {
		t.Fatal("Get() on an empty registry should fail")
	}
	if !apperrors.IsConfiguration(err) {
		t.Errorf("missing adapter should be a configuration error, got %v", apperrors.CategoryOf(err))
	}
}

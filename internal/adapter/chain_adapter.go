// Package adapter provides chain-specific access to balances, transfer
// events and the role manager contract.
package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/portfolio-sentinel/internal/config"
	"github.com/portfolio-sentinel/internal/types"
)

// TransferEvent is one decoded Transfer log touching a tracked wallet
type TransferEvent struct {
	TxHash      string
	BlockNumber uint64
	LogIndex    uint64
	Symbol      string
	Amount      float64 // already scaled by token decimals
	From        string
	To          string
	Timestamp   time.Time
}

// Direction returns "in" when the wallet is the recipient, "out" otherwise
func (e *TransferEvent) Direction(wallet string) string {
	if types.NormalizeAddress(e.To) == types.NormalizeAddress(wallet) {
		return "in"
	}
	return "out"
}

// ChainAdapter defines the interface for chain-specific adapters
type ChainAdapter interface {
	// ChainID returns the chain identifier
	ChainID() types.ChainID

	// LatestBlock returns the current head block number
	// Returns error if the RPC request fails
	LatestBlock(ctx context.Context) (uint64, error)

	// NativeBalance returns the native asset balance of an address,
	// scaled to whole units
	NativeBalance(ctx context.Context, address string) (float64, error)

	// TokenBalance returns the ERC-20 balance of an address for a token,
	// scaled by the token's decimals
	TokenBalance(ctx context.Context, address string, token config.ERC20Token) (float64, error)

	// TransferEvents returns Transfer logs touching the address for the
	// given tokens over [fromBlock, toBlock], merged and deduplicated
	// across the sent and received sides
	TransferEvents(ctx context.Context, address string, tokens []config.ERC20Token, fromBlock, toBlock uint64) ([]*TransferEvent, error)

	// ApprovalCount returns the number of Approval logs emitted by the
	// given tokens with the address as owner over the trailing lookback
	// window
	ApprovalCount(ctx context.Context, address string, tokens []config.ERC20Token, lookbackBlocks uint64) (int, error)

	// Role resolves the address's role from the role manager contract
	Role(ctx context.Context, address string) (types.Role, error)
}

// HeadSubscriber is implemented by adapters that can watch new blocks over
// a websocket endpoint.
type HeadSubscriber interface {
	// SubscribeNewHeads delivers head block numbers until ctx is done
	SubscribeNewHeads(ctx context.Context, heads chan<- uint64) error
}

// ErrNoWSEndpoint indicates the chain has no websocket URL configured
var ErrNoWSEndpoint = fmt.Errorf("no websocket endpoint configured")

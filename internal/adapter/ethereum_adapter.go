package adapter

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/portfolio-sentinel/internal/config"
	apperrors "github.com/portfolio-sentinel/internal/errors"
	"github.com/portfolio-sentinel/internal/logging"
	sentineltypes "github.com/portfolio-sentinel/internal/types"
)

// Event signatures, precomputed at init
var (
	transferEventSig = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	approvalEventSig = crypto.Keccak256Hash([]byte("Approval(address,address,uint256)"))
	balanceOfSel     = crypto.Keccak256([]byte("balanceOf(address)"))[:4]
	getRoleSel       = crypto.Keccak256([]byte("getRole(address)"))[:4]
)

// EthereumAdapter implements ChainAdapter for EVM chains via JSON-RPC
type EthereumAdapter struct {
	chainID     sentineltypes.ChainID
	client      *ethclient.Client
	wsURL       string
	roleManager common.Address
	callTimeout time.Duration
	logger      *logging.Logger
}

// NewEthereumAdapter dials the RPC endpoint and returns an adapter for the
// chain. The websocket URL is optional and only used for head subscriptions.
// Every RPC call gets its own deadline of callTimeout so one hung endpoint
// cannot stall a caller indefinitely.
func NewEthereumAdapter(chainID sentineltypes.ChainID, rpcURL, wsURL, roleManagerAddr string, callTimeout time.Duration) (*EthereumAdapter, error) {
	if rpcURL == "" {
		return nil, apperrors.NewMissingChainEndpoint(uint64(chainID))
	}

	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, apperrors.NewProviderError(fmt.Sprintf("rpc chain %d", chainID), err)
	}

	return &EthereumAdapter{
		chainID:     chainID,
		client:      client,
		wsURL:       wsURL,
		roleManager: common.HexToAddress(roleManagerAddr),
		callTimeout: callTimeout,
		logger:      logging.WithField("chainId", uint64(chainID)),
	}, nil
}

// callCtx derives the per-call context. A zero timeout disables the
// deadline.
func (a *EthereumAdapter) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.callTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.callTimeout)
}

// ChainID returns the chain identifier
func (a *EthereumAdapter) ChainID() sentineltypes.ChainID {
	return a.chainID
}

// LatestBlock returns the current head block number
func (a *EthereumAdapter) LatestBlock(ctx context.Context) (uint64, error) {
	ctx, cancel := a.callCtx(ctx)
	defer cancel()

	head, err := a.client.BlockNumber(ctx)
	if err != nil {
		return 0, apperrors.NewProviderError("eth_blockNumber", err)
	}
	return head, nil
}

// NativeBalance returns the native asset balance scaled to whole units
func (a *EthereumAdapter) NativeBalance(ctx context.Context, address string) (float64, error) {
	ctx, cancel := a.callCtx(ctx)
	defer cancel()

	balance, err := a.client.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return 0, apperrors.NewProviderError("eth_getBalance", err)
	}
	return scaleAmount(balance, 18), nil
}

// TokenBalance calls balanceOf(address) on the token contract and scales
// the result by the token's decimals.
func (a *EthereumAdapter) TokenBalance(ctx context.Context, address string, token config.ERC20Token) (float64, error) {
	callData := make([]byte, 0, 36)
	callData = append(callData, balanceOfSel...)
	callData = append(callData, common.LeftPadBytes(common.HexToAddress(address).Bytes(), 32)...)

	ctx, cancel := a.callCtx(ctx)
	defer cancel()

	contract := common.HexToAddress(token.Address)
	result, err := a.client.CallContract(ctx, ethereum.CallMsg{
		To:   &contract,
		Data: callData,
	}, nil)
	if err != nil {
		return 0, apperrors.NewProviderError(fmt.Sprintf("balanceOf %s", token.Symbol), err)
	}
	if len(result) < 32 {
		return 0, apperrors.NewDataInvalid(fmt.Sprintf("short balanceOf response for %s", token.Symbol), nil)
	}

	return scaleAmount(new(big.Int).SetBytes(result[:32]), token.Decimals), nil
}

// TransferEvents fetches Transfer logs where the wallet is the sender
// (topic1) or the recipient (topic2), merges the two sides, dedupes by
// (txHash, logIndex) and resolves block timestamps.
func (a *EthereumAdapter) TransferEvents(ctx context.Context, address string, tokens []config.ERC20Token, fromBlock, toBlock uint64) ([]*TransferEvent, error) {
	if len(tokens) == 0 || fromBlock > toBlock {
		return nil, nil
	}

	contracts := make([]common.Address, 0, len(tokens))
	symbolByAddr := make(map[common.Address]config.ERC20Token, len(tokens))
	for _, token := range tokens {
		addr := common.HexToAddress(token.Address)
		contracts = append(contracts, addr)
		symbolByAddr[addr] = token
	}

	walletTopic := common.BytesToHash(common.LeftPadBytes(common.HexToAddress(address).Bytes(), 32))

	// The wallet can appear in topic1 (sent) or topic2 (received); a single
	// filter cannot OR across positions, so fetch both sides.
	sent, err := a.filterLogs(ctx, contracts, fromBlock, toBlock, [][]common.Hash{
		{transferEventSig}, {walletTopic},
	})
	if err != nil {
		return nil, err
	}
	received, err := a.filterLogs(ctx, contracts, fromBlock, toBlock, [][]common.Hash{
		{transferEventSig}, nil, {walletTopic},
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	timestamps := make(map[uint64]int64)
	var events []*TransferEvent

	for _, log := range append(sent, received...) {
		if len(log.Topics) < 3 || log.Removed {
			continue
		}
		key := fmt.Sprintf("%s:%d", log.TxHash.Hex(), log.Index)
		if seen[key] {
			continue
		}
		seen[key] = true

		token, ok := symbolByAddr[log.Address]
		if !ok {
			continue
		}

		ts, err := a.blockTimestamp(ctx, log.BlockNumber, timestamps)
		if err != nil {
			return nil, err
		}

		events = append(events, &TransferEvent{
			TxHash:      log.TxHash.Hex(),
			BlockNumber: log.BlockNumber,
			LogIndex:    uint64(log.Index),
			Symbol:      token.Symbol,
			Amount:      scaleAmount(new(big.Int).SetBytes(log.Data), token.Decimals),
			From:        common.BytesToAddress(log.Topics[1].Bytes()).Hex(),
			To:          common.BytesToAddress(log.Topics[2].Bytes()).Hex(),
			Timestamp:   unixTime(ts),
		})
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].BlockNumber != events[j].BlockNumber {
			return events[i].BlockNumber < events[j].BlockNumber
		}
		return events[i].LogIndex < events[j].LogIndex
	})

	return events, nil
}

// ApprovalCount counts Approval logs with the wallet as owner over the
// trailing lookback window.
func (a *EthereumAdapter) ApprovalCount(ctx context.Context, address string, tokens []config.ERC20Token, lookbackBlocks uint64) (int, error) {
	if len(tokens) == 0 {
		return 0, nil
	}

	head, err := a.LatestBlock(ctx)
	if err != nil {
		return 0, err
	}

	fromBlock := uint64(0)
	if head > lookbackBlocks {
		fromBlock = head - lookbackBlocks
	}

	contracts := make([]common.Address, 0, len(tokens))
	for _, token := range tokens {
		contracts = append(contracts, common.HexToAddress(token.Address))
	}
	walletTopic := common.BytesToHash(common.LeftPadBytes(common.HexToAddress(address).Bytes(), 32))

	logs, err := a.filterLogs(ctx, contracts, fromBlock, head, [][]common.Hash{
		{approvalEventSig}, {walletTopic},
	})
	if err != nil {
		return 0, err
	}

	return len(logs), nil
}

// Role calls getRole(address) on the role manager contract
func (a *EthereumAdapter) Role(ctx context.Context, address string) (sentineltypes.Role, error) {
	if a.roleManager == (common.Address{}) {
		return sentineltypes.RoleNone, apperrors.NewConfiguration(
			fmt.Sprintf("no role manager contract configured for chain %d", a.chainID))
	}

	callData := make([]byte, 0, 36)
	callData = append(callData, getRoleSel...)
	callData = append(callData, common.LeftPadBytes(common.HexToAddress(address).Bytes(), 32)...)

	callCtx, cancel := a.callCtx(ctx)
	defer cancel()

	result, err := a.client.CallContract(callCtx, ethereum.CallMsg{
		To:   &a.roleManager,
		Data: callData,
	}, nil)
	if err != nil {
		return sentineltypes.RoleNone, apperrors.NewProviderError("getRole", err)
	}
	if len(result) < 32 {
		return sentineltypes.RoleNone, apperrors.NewDataInvalid("short getRole response", nil)
	}

	return sentineltypes.RoleFromUint8(result[31]), nil
}

// SubscribeNewHeads forwards head block numbers from a websocket
// subscription until ctx is done.
func (a *EthereumAdapter) SubscribeNewHeads(ctx context.Context, heads chan<- uint64) error {
	if a.wsURL == "" {
		return ErrNoWSEndpoint
	}

	wsClient, err := ethclient.DialContext(ctx, a.wsURL)
	if err != nil {
		return apperrors.NewProviderError(fmt.Sprintf("ws chain %d", a.chainID), err)
	}
	defer wsClient.Close()

	headers := make(chan *types.Header, 16)
	sub, err := wsClient.SubscribeNewHead(ctx, headers)
	if err != nil {
		return apperrors.NewProviderError("eth_subscribe newHeads", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case header := <-headers:
			select {
			case heads <- header.Number.Uint64():
			default:
				// Listener is busy; skipping a head is fine, the next one
				// carries the same signal.
			}
		case err := <-sub.Err():
			return apperrors.NewProviderError("head subscription", err)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (a *EthereumAdapter) filterLogs(ctx context.Context, contracts []common.Address, fromBlock, toBlock uint64, topics [][]common.Hash) ([]types.Log, error) {
	ctx, cancel := a.callCtx(ctx)
	defer cancel()

	logs, err := a.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: contracts,
		Topics:    topics,
	})
	if err != nil {
		return nil, apperrors.NewProviderError("eth_getLogs", err)
	}
	return logs, nil
}

// blockTimestamp resolves a block's timestamp, memoizing per call so a
// burst of transfers in one block costs one header fetch.
func (a *EthereumAdapter) blockTimestamp(ctx context.Context, blockNumber uint64, cache map[uint64]int64) (int64, error) {
	if ts, ok := cache[blockNumber]; ok {
		return ts, nil
	}

	headerCtx, cancel := a.callCtx(ctx)
	defer cancel()

	header, err := a.client.HeaderByNumber(headerCtx, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return 0, apperrors.NewProviderError("eth_getBlockByNumber", err)
	}

	ts := int64(header.Time) // #nosec G115 - block timestamps fit in int64
	cache[blockNumber] = ts
	return ts, nil
}

// Close releases the underlying RPC connection
func (a *EthereumAdapter) Close() {
	a.client.Close()
}

func unixTime(ts int64) time.Time {
	return time.Unix(ts, 0).UTC()
}

func scaleAmount(raw *big.Int, decimals uint8) float64 {
	value, _ := new(big.Float).Quo(
		new(big.Float).SetInt(raw),
		big.NewFloat(math.Pow10(int(decimals))),
	).Float64()
	return value
}

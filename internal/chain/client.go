// Package chain talks to the EVM node: balance reads, router quotes, swap
// execution, and receipt lookups.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/gembot/internal/crypto"
	"github.com/alanyoungcy/gembot/internal/domain"
)

// Client wraps an RPC connection and the trading wallet. It provides the
// read-side node operations; Executor layers swaps on top.
type Client struct {
	eth     *ethclient.Client
	wallet  *crypto.Wallet
	chainID *big.Int
}

// Dial connects to the node at rpcURL and verifies the advertised chain ID
// matches the configured one. wallet may be nil for read-only modes.
func Dial(ctx context.Context, rpcURL string, chainID int64, wallet *crypto.Wallet) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dialing %s: %w", rpcURL, err)
	}

	remote, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("chain: fetching chain id: %w", err)
	}
	if remote.Int64() != chainID {
		eth.Close()
		return nil, fmt.Errorf("chain: node reports chain id %d, config says %d", remote.Int64(), chainID)
	}

	return &Client{eth: eth, wallet: wallet, chainID: remote}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// WalletAddress returns the trading account address, or the zero address
// when no wallet is attached.
func (c *Client) WalletAddress() common.Address {
	if c.wallet == nil {
		return common.Address{}
	}
	return c.wallet.Address
}

// NativeBalance returns the wallet's native-coin balance at the latest block.
func (c *Client) NativeBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	bal, err := c.eth.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: fetching native balance: %w", err)
	}
	return bal, nil
}

// LatestBlock returns the current head block number. Used by the health
// probe to confirm RPC liveness.
func (c *Client) LatestBlock(ctx context.Context) (uint64, error) {
	n, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("chain: fetching head block: %w", err)
	}
	return n, nil
}

// Receipt looks up the receipt for a previously submitted transaction.
// Returns domain.ErrMissingReceipt when the transaction is not yet mined
// (or was dropped from the mempool).
func (c *Client) Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	receipt, err := c.eth.TransactionReceipt(ctx, txHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, domain.ErrMissingReceipt
		}
		return nil, fmt.Errorf("chain: fetching receipt %s: %w", txHash.Hex(), err)
	}
	return receipt, nil
}

// blockTimestamp resolves a block's timestamp, falling back to wall-clock
// time when the header lookup fails. Position entry timestamps prefer chain
// time but must never block a completed trade.
func (c *Client) blockTimestamp(ctx context.Context, blockNumber uint64) time.Time {
	header, err := c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
	if err != nil || header == nil {
		return time.Now().UTC()
	}
	return time.Unix(int64(header.Time), 0).UTC()
}

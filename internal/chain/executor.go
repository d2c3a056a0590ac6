package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/gembot/internal/domain"
)

// ExecutorConfig holds the execution bounds applied to every swap.
type ExecutorConfig struct {
	Router         common.Address
	MaxSlippageBps int64
	Deadline       time.Duration
	GasPriceWei    *big.Int
}

// Executor submits swaps through a UniswapV2-style router and accounts for
// fills by balance delta. It implements domain.Quoter.
type Executor struct {
	client *Client
	cfg    ExecutorConfig
	router *bind.BoundContract
}

var _ domain.Quoter = (*Executor)(nil)

// NewExecutor binds the router contract on the given client.
func NewExecutor(client *Client, cfg ExecutorConfig) *Executor {
	return &Executor{
		client: client,
		cfg:    cfg,
		router: bind.NewBoundContract(cfg.Router, routerABI, client.eth, client.eth, client.eth),
	}
}

func (e *Executor) erc20(token common.Address) *bind.BoundContract {
	return bind.NewBoundContract(token, erc20ABI, e.client.eth, e.client.eth, e.client.eth)
}

// ExecuteEntry swaps amountIn of the native asset for token and reports the
// tokens actually received. The fill size is the wallet's token balance
// delta across the swap, so transfer taxes are already netted out.
func (e *Executor) ExecuteEntry(ctx context.Context, token, base common.Address, amountIn *big.Int) (*domain.ExecutionResult, error) {
	expected, err := e.QuoteBuy(ctx, token, amountIn, base)
	if err != nil {
		return nil, fmt.Errorf("chain: quoting entry for %s: %w", token.Hex(), err)
	}
	minOut := applySlippage(expected, e.cfg.MaxSlippageBps)

	balanceBefore, err := e.TokenBalance(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("chain: reading token balance before entry: %w", err)
	}

	opts, err := e.transactOpts(ctx)
	if err != nil {
		return nil, err
	}
	opts.Value = amountIn

	path := []common.Address{base, token}
	tx, err := e.router.Transact(opts, "swapExactETHForTokensSupportingFeeOnTransferTokens",
		minOut, path, e.client.WalletAddress(), e.swapDeadline())
	if err != nil {
		return nil, fmt.Errorf("chain: submitting entry swap: %w", err)
	}

	receipt, err := e.waitMined(ctx, tx)
	if err != nil {
		// A timed-out entry may still be mined later. Hand the hash back
		// so the caller can journal it for reconciliation.
		if errors.Is(err, domain.ErrTxTimeout) {
			return &domain.ExecutionResult{
				TxHash:     tx.Hash(),
				Token:      token,
				BaseToken:  base,
				BaseAmount: new(big.Int).Set(amountIn),
			}, err
		}
		return nil, err
	}

	balanceAfter, err := e.TokenBalance(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("chain: reading token balance after entry: %w", err)
	}
	acquired := new(big.Int).Sub(balanceAfter, balanceBefore)
	if acquired.Sign() <= 0 {
		return nil, fmt.Errorf("chain: token balance did not increase after entry tx %s", tx.Hash().Hex())
	}

	return &domain.ExecutionResult{
		TxHash:      tx.Hash(),
		Token:       token,
		BaseToken:   base,
		BaseAmount:  new(big.Int).Set(amountIn),
		TokenAmount: acquired,
		BlockNumber: receipt.BlockNumber.Uint64(),
		Timestamp:   e.client.blockTimestamp(ctx, receipt.BlockNumber.Uint64()),
	}, nil
}

// ExecuteExit sells the order's full token amount back to the native asset.
// Proceeds are the wallet's native balance delta; if the delta underflows
// (gas spent from the same account exceeds proceeds) the order's MinOutput
// is reported instead.
func (e *Executor) ExecuteExit(ctx context.Context, order *domain.ExitOrder) (*domain.ExecutionResult, error) {
	if err := e.ensureAllowance(ctx, order.Token, order.TokenAmount); err != nil {
		return nil, err
	}

	balanceBefore, err := e.client.NativeBalance(ctx, e.client.WalletAddress())
	if err != nil {
		return nil, fmt.Errorf("chain: reading native balance before exit: %w", err)
	}

	opts, err := e.transactOpts(ctx)
	if err != nil {
		return nil, err
	}

	path := []common.Address{order.Token, order.BaseToken}
	tx, err := e.router.Transact(opts, "swapExactTokensForETHSupportingFeeOnTransferTokens",
		order.TokenAmount, order.MinOutput, path, e.client.WalletAddress(), e.swapDeadline())
	if err != nil {
		return nil, fmt.Errorf("chain: submitting exit swap: %w", err)
	}

	receipt, err := e.waitMined(ctx, tx)
	if err != nil {
		return nil, err
	}

	balanceAfter, err := e.client.NativeBalance(ctx, e.client.WalletAddress())
	if err != nil {
		return nil, fmt.Errorf("chain: reading native balance after exit: %w", err)
	}

	redeemed := new(big.Int).Sub(balanceAfter, balanceBefore)
	if redeemed.Sign() < 0 {
		redeemed = new(big.Int).Set(order.MinOutput)
	}

	return &domain.ExecutionResult{
		TxHash:      tx.Hash(),
		Token:       order.Token,
		BaseToken:   order.BaseToken,
		BaseAmount:  redeemed,
		TokenAmount: new(big.Int).Set(order.TokenAmount),
		BlockNumber: receipt.BlockNumber.Uint64(),
		Timestamp:   e.client.blockTimestamp(ctx, receipt.BlockNumber.Uint64()),
	}, nil
}

// QuoteBuy simulates buying token with amountIn of the base asset.
func (e *Executor) QuoteBuy(ctx context.Context, token common.Address, amountIn *big.Int, base common.Address) (*big.Int, error) {
	return e.getAmountsOut(ctx, amountIn, []common.Address{base, token})
}

// QuoteSell simulates selling amountIn of token for the base asset.
func (e *Executor) QuoteSell(ctx context.Context, token common.Address, amountIn *big.Int, base common.Address) (*big.Int, error) {
	return e.getAmountsOut(ctx, amountIn, []common.Address{token, base})
}

func (e *Executor) getAmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error) {
	var out []interface{}
	err := e.router.Call(&bind.CallOpts{Context: ctx}, &out, "getAmountsOut", amountIn, path)
	if err != nil {
		return nil, fmt.Errorf("chain: getAmountsOut: %w", err)
	}
	amounts := *abi.ConvertType(out[0], new([]*big.Int)).(*[]*big.Int)
	if len(amounts) == 0 {
		return nil, domain.ErrEmptyRoute
	}
	return amounts[len(amounts)-1], nil
}

// TokenBalance reads the wallet's balance of token. The wallet address
// itself stands in for the native asset.
func (e *Executor) TokenBalance(ctx context.Context, token common.Address) (*big.Int, error) {
	wallet := e.client.WalletAddress()
	if token == wallet {
		return e.client.NativeBalance(ctx, wallet)
	}

	var out []interface{}
	err := e.erc20(token).Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", wallet)
	if err != nil {
		return nil, fmt.Errorf("chain: balanceOf %s: %w", token.Hex(), err)
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// TokenDecimals reads the ERC-20 decimals of token.
func (e *Executor) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	var out []interface{}
	err := e.erc20(token).Call(&bind.CallOpts{Context: ctx}, &out, "decimals")
	if err != nil {
		return 0, fmt.Errorf("chain: decimals %s: %w", token.Hex(), err)
	}
	return *abi.ConvertType(out[0], new(uint8)).(*uint8), nil
}

// ensureAllowance grants the router an unlimited allowance when the current
// one cannot cover amount. Unlimited avoids a second approval on the next
// exit of the same token.
func (e *Executor) ensureAllowance(ctx context.Context, token common.Address, amount *big.Int) error {
	wallet := e.client.WalletAddress()
	if token == wallet {
		return nil
	}

	token20 := e.erc20(token)

	var out []interface{}
	err := token20.Call(&bind.CallOpts{Context: ctx}, &out, "allowance", wallet, e.cfg.Router)
	if err != nil {
		return fmt.Errorf("chain: reading allowance for %s: %w", token.Hex(), err)
	}
	allowance := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	if allowance.Cmp(amount) >= 0 {
		return nil
	}

	opts, err := e.transactOpts(ctx)
	if err != nil {
		return err
	}
	tx, err := token20.Transact(opts, "approve", e.cfg.Router, abi.MaxUint256)
	if err != nil {
		return fmt.Errorf("chain: submitting approval for %s: %w", token.Hex(), err)
	}
	if _, err := e.waitMined(ctx, tx); err != nil {
		return fmt.Errorf("chain: approval for %s: %w", token.Hex(), err)
	}
	return nil
}

// transactOpts builds signing options with the configured gas price ceiling.
func (e *Executor) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if e.client.wallet == nil {
		return nil, errors.New("chain: no wallet attached, cannot sign transactions")
	}
	opts, err := bind.NewKeyedTransactorWithChainID(e.client.wallet.Key, e.client.chainID)
	if err != nil {
		return nil, fmt.Errorf("chain: building transactor: %w", err)
	}
	opts.Context = ctx
	opts.GasPrice = e.cfg.GasPriceWei
	return opts, nil
}

func (e *Executor) swapDeadline() *big.Int {
	return big.NewInt(time.Now().Add(e.cfg.Deadline).Unix())
}

// waitMined blocks until the transaction is mined or the swap deadline plus
// a grace period elapses. Reverted transactions map to ErrTxReverted and
// timeouts to ErrTxTimeout so the engine can journal the pending entry.
func (e *Executor) waitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, e.cfg.Deadline+30*time.Second)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, e.client.eth, tx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("chain: tx %s: %w", tx.Hash().Hex(), domain.ErrTxTimeout)
		}
		return nil, fmt.Errorf("chain: waiting for tx %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return nil, fmt.Errorf("chain: tx %s: %w", tx.Hash().Hex(), domain.ErrTxReverted)
	}
	return receipt, nil
}

// applySlippage scales amount down by slippageBps basis points.
func applySlippage(amount *big.Int, slippageBps int64) *big.Int {
	out := new(big.Int).Mul(amount, big.NewInt(10_000-slippageBps))
	return out.Div(out, big.NewInt(10_000))
}

package chain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplySlippage(t *testing.T) {
	cases := []struct {
		name   string
		amount *big.Int
		bps    int64
		want   *big.Int
	}{
		{"three percent", big.NewInt(1_000_000), 300, big.NewInt(970_000)},
		{"zero slippage", big.NewInt(1_000_000), 0, big.NewInt(1_000_000)},
		{"rounds down", big.NewInt(3), 300, big.NewInt(2)},
		{"zero amount", big.NewInt(0), 300, big.NewInt(0)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, applySlippage(tc.amount, tc.bps))
		})
	}
}

func TestEmbeddedABIsParse(t *testing.T) {
	require.Contains(t, routerABI.Methods, "getAmountsOut")
	require.Contains(t, routerABI.Methods, "swapExactETHForTokensSupportingFeeOnTransferTokens")
	require.Contains(t, routerABI.Methods, "swapExactTokensForETHSupportingFeeOnTransferTokens")

	require.Contains(t, erc20ABI.Methods, "decimals")
	require.Contains(t, erc20ABI.Methods, "balanceOf")
	require.Contains(t, erc20ABI.Methods, "allowance")
	require.Contains(t, erc20ABI.Methods, "approve")

	assert.True(t, routerABI.Methods["swapExactETHForTokensSupportingFeeOnTransferTokens"].IsPayable())
	assert.True(t, routerABI.Methods["getAmountsOut"].IsConstant())
}

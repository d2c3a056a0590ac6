package dexscreener

import (
	"bytes"
	"strconv"
)

// PairsResponse is the envelope every DexScreener pairs endpoint returns.
type PairsResponse struct {
	SchemaVersion string `json:"schemaVersion"`
	Pairs         []Pair `json:"pairs"`
}

// Pair is a single trading pair as reported by DexScreener.
type Pair struct {
	ChainID       string      `json:"chainId"`
	DexID         string      `json:"dexId"`
	PairAddress   string      `json:"pairAddress"`
	BaseToken     TokenMeta   `json:"baseToken"`
	QuoteToken    TokenMeta   `json:"quoteToken"`
	PriceUSD      FlexFloat   `json:"priceUsd"`
	PriceNative   FlexFloat   `json:"priceNative"`
	PriceChange   PriceChange `json:"priceChange"`
	Liquidity     Liquidity   `json:"liquidity"`
	Volume        Volume      `json:"volume"`
	Txns          Txns        `json:"txns"`
	PairCreatedAt int64       `json:"pairCreatedAt"` // unix milliseconds
	FDV           float64     `json:"fdv"`
	Info          *PairInfo   `json:"info"`
}

// TokenMeta identifies one side of a pair.
type TokenMeta struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

// PriceChange holds percentage price changes per window.
type PriceChange struct {
	M5  float64 `json:"m5"`
	M15 float64 `json:"m15"`
	H1  float64 `json:"h1"`
	H6  float64 `json:"h6"`
	H24 float64 `json:"h24"`
}

// Liquidity holds pool depth figures. Locked is the percentage of LP tokens
// locked or burned, when DexScreener knows it.
type Liquidity struct {
	USD    float64  `json:"usd"`
	Base   float64  `json:"base"`
	Quote  float64  `json:"quote"`
	Locked *float64 `json:"locked"`
}

// Volume holds traded volume in USD per window.
type Volume struct {
	H24 float64 `json:"h24"`
	H6  float64 `json:"h6"`
	H1  float64 `json:"h1"`
}

// Txns holds buy/sell transaction counts per window.
type Txns struct {
	M5  TxnWindow `json:"m5"`
	M15 TxnWindow `json:"m15"`
	H1  TxnWindow `json:"h1"`
	H6  TxnWindow `json:"h6"`
	H24 TxnWindow `json:"h24"`
}

// TxnWindow is the buy/sell split inside one window.
type TxnWindow struct {
	Buys  int64 `json:"buys"`
	Sells int64 `json:"sells"`
}

// PairInfo carries optional enrichment data DexScreener attaches to some
// pairs.
type PairInfo struct {
	Holders   *int64   `json:"holders"`
	Renounced *float64 `json:"renounced"`
}

// FlexFloat decodes a JSON number that DexScreener serves sometimes as a
// number and sometimes as a quoted string (priceUsd in particular).
type FlexFloat float64

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	if data[0] == '"' {
		s, err := strconv.Unquote(string(data))
		if err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		*f = FlexFloat(v)
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*f = FlexFloat(v)
	return nil
}

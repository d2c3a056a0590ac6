package domain

import (
	"context"
	"io"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PositionStore persists the full position book. Load returns an empty
// state, not an error, when the backing store does not exist yet.
type PositionStore interface {
	Load(ctx context.Context) (BookState, error)
	Save(ctx context.Context, state BookState) error
}

// Quoter provides read-only router simulations and token metadata. The
// position book uses it to revalue open positions.
type Quoter interface {
	// QuoteSell simulates selling amountIn of token for the base asset.
	QuoteSell(ctx context.Context, token common.Address, amountIn *big.Int, base common.Address) (*big.Int, error)
	TokenDecimals(ctx context.Context, token common.Address) (uint8, error)
}

// BasePricer resolves the current USD price of a base asset.
type BasePricer interface {
	BasePriceUSD(ctx context.Context, base common.Address) (float64, error)
}

// PriceCache caches oracle price lookups keyed by asset.
type PriceCache interface {
	SetPrice(ctx context.Context, assetID string, price float64, ts time.Time) error
	// GetPrice returns ErrNotFound when the asset is not cached.
	GetPrice(ctx context.Context, assetID string) (float64, time.Time, error)
}

// BlobWriter uploads an object to blob storage. Used by the closed-trade
// archiver.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

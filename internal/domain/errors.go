package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrAllFeedsDown   = errors.New("all market-data feeds unreachable")
	ErrTxTimeout      = errors.New("transaction confirmation timed out")
	ErrTxReverted     = errors.New("transaction reverted on chain")
	ErrMissingReceipt = errors.New("transaction dropped without receipt")
	ErrEmptyRoute     = errors.New("router returned empty route")
	ErrNoPrice        = errors.New("no price data for token")
)

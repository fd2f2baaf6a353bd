package web3

import (
	"context"
	"math/big"
)

// ChainSnapshot represents summarized network metadata for UI/reporting.
type ChainSnapshot struct {
	ChainID     string
	BlockNumber string
	Notes       string
}

// Reader defines the read-only interface that any chain implementation must
// provide so higher layers can interact with different networks uniformly.
// The assistant never signs or broadcasts transactions; wallets do that.
type Reader interface {
	FetchChainSnapshot(ctx context.Context) (ChainSnapshot, error)
	NativeBalance(ctx context.Context, address string) (*big.Int, error)
	Close()
}

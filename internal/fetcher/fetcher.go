package fetcher

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SpotFetcher retrieves USD spot prices from a third-party price API.
type SpotFetcher interface {
	FetchSpots(ctx context.Context, ids []string) (map[string]float64, error)
}

// ReserveReader reads Uniswap-V2 pair reserves and ERC-20 balances from one chain.
type ReserveReader interface {
	Reserves(ctx context.Context, pair common.Address) (reserve0, reserve1 *big.Int, err error)
	BalanceOf(ctx context.Context, token, holder common.Address) (*big.Int, error)
}

package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Reserve tracks a rebasing receipt token's index-free accounting for one
// market. ScaledSupply is stored independent of the liquidity index;
// multiplying by the current index yields TotalSupply. The index is
// monotonically non-decreasing by protocol invariant.
type Reserve struct {
	Market common.Address `json:"market"`

	// LiquidityIndex is the last observed rebasing index, ray scale.
	LiquidityIndex *big.Int `json:"liquidityIndex"`
	// ScaledSupply is the index-free supply, ray rounding applied on
	// principal changes.
	ScaledSupply *big.Int `json:"scaledSupply"`
	// TotalSupply is derived: rayMul(ScaledSupply, LiquidityIndex).
	TotalSupply *big.Int `json:"totalSupply"`
	// AccruedToTreasury is interest minted to the protocol treasury but not
	// yet materialized as a transfer.
	AccruedToTreasury *big.Int `json:"accruedToTreasury"`

	UpdatedBlock uint64 `json:"updatedBlock"`
}

// NewReserve creates a reserve at market-listing time with the index at
// 1.0 ray and an empty supply
func NewReserve(market common.Address, initialIndex *big.Int) *Reserve {
	return &Reserve{
		Market:            market,
		LiquidityIndex:    new(big.Int).Set(initialIndex),
		ScaledSupply:      new(big.Int),
		TotalSupply:       new(big.Int),
		AccruedToTreasury: new(big.Int),
	}
}

// Clone returns a deep copy of the reserve
func (r *Reserve) Clone() *Reserve {
	cp := *r
	cp.LiquidityIndex = new(big.Int).Set(r.LiquidityIndex)
	cp.ScaledSupply = new(big.Int).Set(r.ScaledSupply)
	cp.TotalSupply = new(big.Int).Set(r.TotalSupply)
	cp.AccruedToTreasury = new(big.Int).Set(r.AccruedToTreasury)
	return &cp
}

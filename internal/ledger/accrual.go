// Package ledger implements the event-driven accounting core: rebasing
// interest accrual, position lifecycle tracking, revenue attribution, and
// periodic snapshot aggregation. One event is applied through one storage
// unit of work, so an event either lands fully or not at all.
package ledger

import (
	"math/big"

	"github.com/messari/subgraphs-sub014/internal/fixedpoint"
	"github.com/messari/subgraphs-sub014/internal/logging"
	"github.com/messari/subgraphs-sub014/internal/models"
	"github.com/messari/subgraphs-sub014/internal/types"
)

// AccrualResult reports what one index observation produced
type AccrualResult struct {
	// Accrued is the interest amount in native units, measured against the
	// pre-event scaled supply. Zero when the index did not advance.
	Accrued *big.Int
	// OutOfOrder is set when the observed index was below the stored one.
	// The new index is still applied but no interest is recognized.
	OutOfOrder bool
}

// Accrue applies a liquidity-index observation to a reserve. Interest is the
// supply growth implied by the index move over the scaled supply as it stood
// before this event touched principal, so callers must accrue before any
// principal mutation.
func Accrue(log *logging.Logger, r *models.Reserve, newIndex *big.Int, ev types.EventContext) AccrualResult {
	res := AccrualResult{Accrued: new(big.Int)}
	if newIndex == nil || newIndex.Sign() <= 0 {
		return res
	}

	old := r.LiquidityIndex
	if newIndex.Cmp(old) < 0 {
		log.WithFields(map[string]interface{}{
			"market":   r.Market.Hex(),
			"oldIndex": old.String(),
			"newIndex": newIndex.String(),
			"block":    ev.BlockNumber,
			"txHash":   ev.TxHash.Hex(),
		}).Warn("liquidity index decreased, skipping interest accrual")
		res.OutOfOrder = true
	} else {
		before := fixedpoint.RayMul(r.ScaledSupply, old)
		after := fixedpoint.RayMul(r.ScaledSupply, newIndex)
		res.Accrued.Sub(after, before)
	}

	r.LiquidityIndex = new(big.Int).Set(newIndex)
	r.TotalSupply = fixedpoint.RayMul(r.ScaledSupply, r.LiquidityIndex)
	r.UpdatedBlock = ev.BlockNumber
	return res
}

// ApplyScaledDelta mutates the reserve's index-free principal. A delta that
// would drive the scaled supply negative is clamped to zero and logged.
func ApplyScaledDelta(log *logging.Logger, r *models.Reserve, delta *big.Int, ev types.EventContext) {
	next := new(big.Int).Add(r.ScaledSupply, delta)
	if next.Sign() < 0 {
		log.WithFields(map[string]interface{}{
			"market": r.Market.Hex(),
			"supply": r.ScaledSupply.String(),
			"delta":  delta.String(),
			"block":  ev.BlockNumber,
			"txHash": ev.TxHash.Hex(),
		}).Warn("scaled supply would go negative, clamping to zero")
		next.SetInt64(0)
	}
	r.ScaledSupply = next
	r.TotalSupply = fixedpoint.RayMul(next, r.LiquidityIndex)
	r.UpdatedBlock = ev.BlockNumber
}

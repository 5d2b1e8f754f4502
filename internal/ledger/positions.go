package ledger

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	lerrors "github.com/messari/subgraphs-sub014/internal/errors"
	"github.com/messari/subgraphs-sub014/internal/logging"
	"github.com/messari/subgraphs-sub014/internal/models"
	"github.com/messari/subgraphs-sub014/internal/storage"
	"github.com/messari/subgraphs-sub014/internal/types"
)

// PositionLedger maintains position lifecycle state. At most one position
// per (account, market, side) is open at a time; re-opening after a close
// allocates a fresh counter suffix instead of resurrecting the closed one.
type PositionLedger struct {
	log *logging.Logger
}

// NewPositionLedger creates a position ledger
func NewPositionLedger(log *logging.Logger) *PositionLedger {
	return &PositionLedger{log: log}
}

// FindOpen returns the account's open position in (market, side), if any
func (l *PositionLedger) FindOpen(ctx context.Context, uow storage.UnitOfWork, account *models.Account, market common.Address, side types.PositionSide) (*models.Position, bool, error) {
	prefix := models.PositionPrefix(account.ID, market, side)
	for _, id := range account.OpenPositions {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		pos, found, err := uow.Position(ctx, id)
		if err != nil {
			return nil, false, err
		}
		if !found {
			return nil, false, lerrors.NewInvariantError(
				"DANGLING_POSITION",
				"open-position list references a position that does not exist", nil).
				WithDetail("account", account.ID.Hex()).
				WithDetail("position", id)
		}
		return pos, true, nil
	}
	return nil, false, nil
}

// OpenOrGet returns the open position for (account, market, side), creating
// one when none exists. The created flag reports whether a position was
// opened; the caller owns putting the entities back.
func (l *PositionLedger) OpenOrGet(ctx context.Context, uow storage.UnitOfWork, account *models.Account, market *models.Market, side types.PositionSide, stamp models.PositionStamp) (*models.Position, bool, error) {
	pos, found, err := l.FindOpen(ctx, uow, account, market.ID, side)
	if err != nil {
		return nil, false, err
	}
	if found {
		return pos, false, nil
	}

	prefix := models.PositionPrefix(account.ID, market.ID, side)
	counter := account.NextCounter(prefix)
	pos = models.NewPosition(account.ID, market.ID, side, counter, stamp)

	account.AddOpenPosition(pos.ID)
	if side == types.SideLender {
		market.OpenLenderPositionCount++
	} else {
		market.OpenBorrowerPositionCount++
	}
	market.CumulativePositionCount++

	l.log.WithFields(map[string]interface{}{
		"position": pos.ID,
		"block":    stamp.Block,
	}).Debug("opened position")
	return pos, true, nil
}

// ApplyDelta adjusts a position's balance. Borrower-side deltas land on the
// sub-accumulator for mode, with negative deltas spilling into the other
// mode when the first is exhausted. A delta that would drive any balance
// negative is clamped to zero and logged. When a reducing delta zeroes the
// balance the position transitions to CLOSED and the account and market
// counters follow; the returned flag reports that transition.
func (l *PositionLedger) ApplyDelta(account *models.Account, market *models.Market, pos *models.Position, delta *big.Int, mode types.InterestRateMode, stamp models.PositionStamp) bool {
	if delta == nil || delta.Sign() == 0 {
		return false
	}

	if pos.Side == types.SideBorrower {
		l.applyDebtDelta(pos, delta, mode, stamp)
	} else {
		next := new(big.Int).Add(pos.Balance, delta)
		if next.Sign() < 0 {
			l.logClamp(pos, delta, stamp)
			next.SetInt64(0)
		}
		pos.Balance = next
	}

	if delta.Sign() < 0 && pos.Balance.Sign() == 0 && pos.IsOpen() {
		l.close(account, market, pos, stamp)
		return true
	}
	return false
}

func (l *PositionLedger) applyDebtDelta(pos *models.Position, delta *big.Int, mode types.InterestRateMode, stamp models.PositionStamp) {
	primary, secondary := pos.VariableDebt, pos.StableDebt
	if mode == types.RateModeStable {
		primary, secondary = pos.StableDebt, pos.VariableDebt
	}

	if delta.Sign() > 0 {
		primary.Add(primary, delta)
	} else {
		remaining := new(big.Int).Neg(delta)
		take := bigMin(remaining, primary)
		primary.Sub(primary, take)
		remaining.Sub(remaining, take)
		if remaining.Sign() > 0 {
			take = bigMin(remaining, secondary)
			secondary.Sub(secondary, take)
			remaining.Sub(remaining, take)
		}
		if remaining.Sign() > 0 {
			l.logClamp(pos, delta, stamp)
		}
	}
	pos.Balance = new(big.Int).Add(pos.StableDebt, pos.VariableDebt)
}

func (l *PositionLedger) close(account *models.Account, market *models.Market, pos *models.Position, stamp models.PositionStamp) {
	closedAt := stamp
	pos.ClosedAt = &closedAt

	if !account.RemoveOpenPosition(pos.ID) {
		l.log.WithField("position", pos.ID).Warn("closed position was not in the account's open list")
	}
	if pos.Side == types.SideLender {
		market.OpenLenderPositionCount--
	} else {
		market.OpenBorrowerPositionCount--
	}
	market.ClosedPositionCount++

	l.log.WithFields(map[string]interface{}{
		"position": pos.ID,
		"block":    stamp.Block,
	}).Debug("closed position")
}

// RecordEvent bumps the per-event-type counters on the position, its
// account, and its market in lock-step
func (l *PositionLedger) RecordEvent(pos *models.Position, account *models.Account, market *models.Market, kind types.EventKind) {
	switch kind {
	case types.EventDeposit:
		pos.DepositCount++
		account.DepositCount++
		market.DepositCount++
	case types.EventWithdraw:
		pos.WithdrawCount++
		account.WithdrawCount++
		market.WithdrawCount++
	case types.EventBorrow:
		pos.BorrowCount++
		account.BorrowCount++
		market.BorrowCount++
	case types.EventRepay:
		pos.RepayCount++
		account.RepayCount++
		market.RepayCount++
	case types.EventLiquidate:
		pos.LiquidationCount++
		account.LiquidationCount++
		market.LiquidationCount++
	}
}

func (l *PositionLedger) logClamp(pos *models.Position, delta *big.Int, stamp models.PositionStamp) {
	l.log.WithFields(map[string]interface{}{
		"position": pos.ID,
		"balance":  pos.Balance.String(),
		"delta":    delta.String(),
		"block":    stamp.Block,
		"txHash":   stamp.TxHash.Hex(),
	}).Warn("position balance would go negative, clamping to zero")
}

func bigMin(a, b *big.Int) *big.Int {
	if a.Cmp(b) < 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

package models

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/messari/subgraphs-sub014/internal/types"
)

// PositionStamp records where in the chain a lifecycle transition happened
type PositionStamp struct {
	Block     uint64      `json:"block"`
	Timestamp int64       `json:"timestamp"`
	TxHash    common.Hash `json:"txHash"`
}

// Position is an account's stake in one market on one side, tracked from
// open to close. The only lifecycle transition is OPEN -> CLOSED; a closed
// position is immutable history and is never reopened in place.
type Position struct {
	ID      string             `json:"id"`
	Account common.Address     `json:"account"`
	Market  common.Address     `json:"market"`
	Side    types.PositionSide `json:"side"`
	// Counter is the per-account id suffix, incremented on each re-open.
	Counter int64 `json:"counter"`

	// Balance is conceptually unsigned; a delta that would drive it
	// negative is clamped to zero and logged as drift.
	Balance *big.Int `json:"balance"`

	// Borrower-side sub-accumulators. StableDebt + VariableDebt == Balance.
	StableDebt   *big.Int `json:"stableDebt,omitempty"`
	VariableDebt *big.Int `json:"variableDebt,omitempty"`

	// IsCollateral only applies to the lender side.
	IsCollateral bool `json:"isCollateral"`

	DepositCount     int64 `json:"depositCount"`
	WithdrawCount    int64 `json:"withdrawCount"`
	BorrowCount      int64 `json:"borrowCount"`
	RepayCount       int64 `json:"repayCount"`
	LiquidationCount int64 `json:"liquidationCount"`

	OpenedAt PositionStamp  `json:"openedAt"`
	ClosedAt *PositionStamp `json:"closedAt,omitempty"`
}

// PositionID builds the canonical position id for (account, market, side)
// with a numeric suffix
func PositionID(account, market common.Address, side types.PositionSide, counter int64) string {
	return fmt.Sprintf("%s-%s-%s-%d", account.Hex(), market.Hex(), side, counter)
}

// PositionPrefix is the id prefix shared by every suffix of one
// (account, market, side) tuple
func PositionPrefix(account, market common.Address, side types.PositionSide) string {
	return fmt.Sprintf("%s-%s-%s-", account.Hex(), market.Hex(), side)
}

// NewPosition creates an open position with a zero balance
func NewPosition(account, market common.Address, side types.PositionSide, counter int64, openedAt PositionStamp) *Position {
	p := &Position{
		ID:       PositionID(account, market, side, counter),
		Account:  account,
		Market:   market,
		Side:     side,
		Counter:  counter,
		Balance:  new(big.Int),
		OpenedAt: openedAt,
	}
	switch side {
	case types.SideLender:
		p.IsCollateral = true
	case types.SideBorrower:
		p.StableDebt = new(big.Int)
		p.VariableDebt = new(big.Int)
	}
	return p
}

// IsOpen reports whether the position has not transitioned to CLOSED
func (p *Position) IsOpen() bool {
	return p.ClosedAt == nil
}

// Clone returns a deep copy of the position
func (p *Position) Clone() *Position {
	cp := *p
	cp.Balance = new(big.Int).Set(p.Balance)
	if p.StableDebt != nil {
		cp.StableDebt = new(big.Int).Set(p.StableDebt)
	}
	if p.VariableDebt != nil {
		cp.VariableDebt = new(big.Int).Set(p.VariableDebt)
	}
	if p.ClosedAt != nil {
		stamp := *p.ClosedAt
		cp.ClosedAt = &stamp
	}
	return &cp
}

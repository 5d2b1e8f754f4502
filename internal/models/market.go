package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Market represents one listed asset pool. Created once at listing time,
// mutated by every ledger event, never deleted.
type Market struct {
	ID         common.Address `json:"id"` // pool / receipt-token address
	Name       string         `json:"name"`
	InputToken common.Address `json:"inputToken"` // underlying asset

	// Cumulative volume by event type, USD.
	CumulativeDepositUSD   decimal.Decimal `json:"cumulativeDepositUsd"`
	CumulativeWithdrawUSD  decimal.Decimal `json:"cumulativeWithdrawUsd"`
	CumulativeBorrowUSD    decimal.Decimal `json:"cumulativeBorrowUsd"`
	CumulativeRepayUSD     decimal.Decimal `json:"cumulativeRepayUsd"`
	CumulativeLiquidateUSD decimal.Decimal `json:"cumulativeLiquidateUsd"`

	// Cumulative revenue, USD. Only ever added to, except liquidation
	// profit which is signed.
	CumulativeSupplySideRevenueUSD   decimal.Decimal `json:"cumulativeSupplySideRevenueUsd"`
	CumulativeProtocolSideRevenueUSD decimal.Decimal `json:"cumulativeProtocolSideRevenueUsd"`
	CumulativeTotalRevenueUSD        decimal.Decimal `json:"cumulativeTotalRevenueUsd"`

	// Position counts, split by side.
	OpenLenderPositionCount   int64 `json:"openLenderPositionCount"`
	OpenBorrowerPositionCount int64 `json:"openBorrowerPositionCount"`
	ClosedPositionCount       int64 `json:"closedPositionCount"`
	CumulativePositionCount   int64 `json:"cumulativePositionCount"`

	// Per-event-type counters, kept in lock-step with the position and
	// account copies.
	DepositCount     int64 `json:"depositCount"`
	WithdrawCount    int64 `json:"withdrawCount"`
	BorrowCount      int64 `json:"borrowCount"`
	RepayCount       int64 `json:"repayCount"`
	LiquidationCount int64 `json:"liquidationCount"`

	// Current risk parameters.
	MaximumLTV           decimal.Decimal `json:"maximumLtv"`
	LiquidationThreshold decimal.Decimal `json:"liquidationThreshold"`
	LiquidationPenalty   decimal.Decimal `json:"liquidationPenalty"`
	// ReserveFactor is the protocol's cut of accrued interest, [0,1].
	ReserveFactor decimal.Decimal `json:"reserveFactor"`

	Rewards RewardEmissions `json:"rewards,omitempty"`

	// Most recent snapshot bucket per interval, -1 before the first event.
	// Lets the aggregator find the previous snapshot across idle gaps.
	LastHourlyBucket int64 `json:"lastHourlyBucket"`
	LastDailyBucket  int64 `json:"lastDailyBucket"`

	CreatedBlock     uint64    `json:"createdBlock"`
	CreatedTimestamp time.Time `json:"createdTimestamp"`
}

// NewMarket creates a market at listing time
func NewMarket(id, inputToken common.Address, name string, block uint64, ts int64) *Market {
	return &Market{
		ID:               id,
		Name:             name,
		InputToken:       inputToken,
		Rewards:          RewardEmissions{},
		LastHourlyBucket: -1,
		LastDailyBucket:  -1,
		CreatedBlock:     block,
		CreatedTimestamp: time.Unix(ts, 0).UTC(),
	}
}

// OpenPositionCount returns the open position count across both sides
func (m *Market) OpenPositionCount() int64 {
	return m.OpenLenderPositionCount + m.OpenBorrowerPositionCount
}

// Clone returns a deep copy of the market
func (m *Market) Clone() *Market {
	cp := *m
	cp.Rewards = m.Rewards.Clone()
	return &cp
}

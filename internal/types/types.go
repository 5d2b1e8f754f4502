// Package types provides common type definitions for the lending ledger core.
package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// PositionSide represents which side of a market a position sits on
type PositionSide string

const (
	// SideLender represents a supply-side (depositor) position
	SideLender PositionSide = "LENDER"
	// SideBorrower represents a debt-side position
	SideBorrower PositionSide = "BORROWER"
)

// InterestRateMode represents the debt sub-accumulator a borrow belongs to
type InterestRateMode string

const (
	// RateModeVariable represents variable-rate debt
	RateModeVariable InterestRateMode = "VARIABLE"
	// RateModeStable represents stable-rate debt
	RateModeStable InterestRateMode = "STABLE"
)

// EventKind represents the kind of a decoded ledger event
type EventKind string

const (
	// EventDeposit represents a supply of the underlying asset
	EventDeposit EventKind = "DEPOSIT"
	// EventWithdraw represents a withdrawal of the underlying asset
	EventWithdraw EventKind = "WITHDRAW"
	// EventBorrow represents new debt drawn against collateral
	EventBorrow EventKind = "BORROW"
	// EventRepay represents debt repayment
	EventRepay EventKind = "REPAY"
	// EventLiquidate represents a liquidation of an undercollateralized position
	EventLiquidate EventKind = "LIQUIDATE"
	// EventTransfer represents a receipt-token transfer between accounts
	EventTransfer EventKind = "TRANSFER"
	// EventIndexUpdate represents a liquidity-index observation for a reserve
	EventIndexUpdate EventKind = "INDEX_UPDATE"
	// EventCollateralToggle represents enabling/disabling a deposit as collateral
	EventCollateralToggle EventKind = "COLLATERAL_TOGGLE"
	// EventRewardUpdate represents a change to a market's reward emissions
	EventRewardUpdate EventKind = "REWARD_UPDATE"
	// EventMarketListed represents a new asset listing; it creates the
	// market and its reserve
	EventMarketListed EventKind = "MARKET_LISTED"
	// EventRiskParamsUpdate represents a change to a market's risk parameters
	EventRiskParamsUpdate EventKind = "RISK_PARAMS_UPDATE"
)

// SnapshotInterval represents the bucket length of a periodic snapshot
type SnapshotInterval string

const (
	// IntervalHourly buckets timestamps into 3600-second windows
	IntervalHourly SnapshotInterval = "HOURLY"
	// IntervalDaily buckets timestamps into 86400-second windows
	IntervalDaily SnapshotInterval = "DAILY"
)

// Seconds returns the bucket length in seconds
func (i SnapshotInterval) Seconds() int64 {
	if i == IntervalHourly {
		return 3600
	}
	return 86400
}

// EventContext carries the ordering metadata every decoded event arrives with.
// Events are delivered ordered by (BlockNumber, LogIndex).
type EventContext struct {
	BlockNumber uint64      `json:"blockNumber"`
	Timestamp   int64       `json:"timestamp"` // Unix seconds, block timestamp
	TxHash      common.Hash `json:"txHash"`
	LogIndex    uint        `json:"logIndex"`
	Nonce       uint64      `json:"nonce"`
}

// Before reports whether c precedes other in source order
func (c EventContext) Before(other EventContext) bool {
	if c.BlockNumber != other.BlockNumber {
		return c.BlockNumber < other.BlockNumber
	}
	return c.LogIndex < other.LogIndex
}

// Event is one decoded protocol event in normalized form. Decoding itself is
// out of scope for the ledger core; the ingestion collaborator produces these.
type Event struct {
	Context EventContext `json:"context"`
	Kind    EventKind    `json:"kind"`

	Market  common.Address `json:"market"`
	Account common.Address `json:"account"`

	// Amount is the principal amount in the asset's native units. Unused for
	// EventIndexUpdate and EventCollateralToggle.
	Amount *big.Int `json:"amount,omitempty"`

	// RateMode selects the borrower-side debt sub-accumulator for
	// EventBorrow and EventRepay.
	RateMode InterestRateMode `json:"rateMode,omitempty"`

	// NewLiquidityIndex is the ray-scale index observed by EventIndexUpdate.
	NewLiquidityIndex *big.Int `json:"newLiquidityIndex,omitempty"`

	// Counterparty is the receiver of an EventTransfer (Account is the sender).
	Counterparty common.Address `json:"counterparty,omitempty"`

	// Liquidation fields (EventLiquidate). Market identifies the debt market;
	// CollateralMarket the market whose deposit was seized.
	Liquidator       common.Address `json:"liquidator,omitempty"`
	CollateralSeized *big.Int       `json:"collateralSeized,omitempty"`
	DebtCovered      *big.Int       `json:"debtCovered,omitempty"`
	CollateralMarket common.Address `json:"collateralMarket,omitempty"`

	// CollateralEnabled is the target state for EventCollateralToggle.
	CollateralEnabled bool `json:"collateralEnabled,omitempty"`

	// Reward fields (EventRewardUpdate).
	RewardToken  common.Address `json:"rewardToken,omitempty"`
	RewardPerDay *big.Int       `json:"rewardPerDay,omitempty"`

	// Listing / risk-parameter fields (EventMarketListed,
	// EventRiskParamsUpdate). Ratios are fractions in [0, 1].
	MarketName           string          `json:"marketName,omitempty"`
	InputToken           common.Address  `json:"inputToken,omitempty"`
	InputTokenSymbol     string          `json:"inputTokenSymbol,omitempty"`
	InputTokenDecimals   int             `json:"inputTokenDecimals,omitempty"`
	MaximumLTV           decimal.Decimal `json:"maximumLtv,omitempty"`
	LiquidationThreshold decimal.Decimal `json:"liquidationThreshold,omitempty"`
	LiquidationPenalty   decimal.Decimal `json:"liquidationPenalty,omitempty"`
	ReserveFactor        decimal.Decimal `json:"reserveFactor,omitempty"`
}

// SideOf returns the position side an event kind acts on
func (k EventKind) SideOf() PositionSide {
	switch k {
	case EventBorrow, EventRepay:
		return SideBorrower
	default:
		return SideLender
	}
}

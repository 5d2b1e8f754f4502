package models

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/messari/subgraphs-sub014/internal/types"
)

// SnapshotBucket returns the time-bucket index for a timestamp:
// floor(timestamp / bucketSeconds)
func SnapshotBucket(timestamp int64, interval types.SnapshotInterval) int64 {
	return timestamp / interval.Seconds()
}

// SnapshotID builds the canonical id (entity id, interval, bucket index)
func SnapshotID(entityID string, interval types.SnapshotInterval, bucket int64) string {
	return fmt.Sprintf("%s-%s-%d", entityID, interval, bucket)
}

// MarketSnapshot is a periodic snapshot of one market's cumulative counters
// plus the delta accrued strictly within its bucket. Created lazily on the
// first event in a bucket, mutated in place by later events in the same
// bucket; once a later bucket opens, the period fields are immutable history.
type MarketSnapshot struct {
	ID       string                 `json:"id"`
	Market   common.Address         `json:"market"`
	Interval types.SnapshotInterval `json:"interval"`
	Bucket   int64                  `json:"bucket"`

	// Cumulative values as of the latest event in this bucket.
	CumulativeDepositUSD             decimal.Decimal `json:"cumulativeDepositUsd"`
	CumulativeWithdrawUSD            decimal.Decimal `json:"cumulativeWithdrawUsd"`
	CumulativeBorrowUSD              decimal.Decimal `json:"cumulativeBorrowUsd"`
	CumulativeRepayUSD               decimal.Decimal `json:"cumulativeRepayUsd"`
	CumulativeLiquidateUSD           decimal.Decimal `json:"cumulativeLiquidateUsd"`
	CumulativeSupplySideRevenueUSD   decimal.Decimal `json:"cumulativeSupplySideRevenueUsd"`
	CumulativeProtocolSideRevenueUSD decimal.Decimal `json:"cumulativeProtocolSideRevenueUsd"`
	CumulativeTotalRevenueUSD        decimal.Decimal `json:"cumulativeTotalRevenueUsd"`

	// Period deltas: cumulative now minus the previous bucket's cumulative.
	PeriodDepositUSD             decimal.Decimal `json:"periodDepositUsd"`
	PeriodWithdrawUSD            decimal.Decimal `json:"periodWithdrawUsd"`
	PeriodBorrowUSD              decimal.Decimal `json:"periodBorrowUsd"`
	PeriodRepayUSD               decimal.Decimal `json:"periodRepayUsd"`
	PeriodLiquidateUSD           decimal.Decimal `json:"periodLiquidateUsd"`
	PeriodSupplySideRevenueUSD   decimal.Decimal `json:"periodSupplySideRevenueUsd"`
	PeriodProtocolSideRevenueUSD decimal.Decimal `json:"periodProtocolSideRevenueUsd"`
	PeriodTotalRevenueUSD        decimal.Decimal `json:"periodTotalRevenueUsd"`

	OpenPositionCount int64 `json:"openPositionCount"`

	// Rewards is a copy of the market's emission mapping, iterated in
	// sorted key order for deterministic diffs.
	Rewards RewardEmissions `json:"rewards,omitempty"`

	UpdatedBlock uint64 `json:"updatedBlock"`
}

// Clone returns a deep copy of the market snapshot
func (s *MarketSnapshot) Clone() *MarketSnapshot {
	cp := *s
	cp.Rewards = s.Rewards.Clone()
	return &cp
}

// FinancialsSnapshot is a periodic snapshot of protocol-level financials
type FinancialsSnapshot struct {
	ID       string                 `json:"id"`
	Protocol string                 `json:"protocol"`
	Interval types.SnapshotInterval `json:"interval"`
	Bucket   int64                  `json:"bucket"`

	CumulativeSupplySideRevenueUSD   decimal.Decimal `json:"cumulativeSupplySideRevenueUsd"`
	CumulativeProtocolSideRevenueUSD decimal.Decimal `json:"cumulativeProtocolSideRevenueUsd"`
	CumulativeTotalRevenueUSD        decimal.Decimal `json:"cumulativeTotalRevenueUsd"`
	CumulativeDepositUSD             decimal.Decimal `json:"cumulativeDepositUsd"`
	CumulativeWithdrawUSD            decimal.Decimal `json:"cumulativeWithdrawUsd"`
	CumulativeBorrowUSD              decimal.Decimal `json:"cumulativeBorrowUsd"`
	CumulativeRepayUSD               decimal.Decimal `json:"cumulativeRepayUsd"`
	CumulativeLiquidateUSD           decimal.Decimal `json:"cumulativeLiquidateUsd"`

	PeriodSupplySideRevenueUSD   decimal.Decimal `json:"periodSupplySideRevenueUsd"`
	PeriodProtocolSideRevenueUSD decimal.Decimal `json:"periodProtocolSideRevenueUsd"`
	PeriodTotalRevenueUSD        decimal.Decimal `json:"periodTotalRevenueUsd"`
	PeriodDepositUSD             decimal.Decimal `json:"periodDepositUsd"`
	PeriodWithdrawUSD            decimal.Decimal `json:"periodWithdrawUsd"`
	PeriodBorrowUSD              decimal.Decimal `json:"periodBorrowUsd"`
	PeriodRepayUSD               decimal.Decimal `json:"periodRepayUsd"`
	PeriodLiquidateUSD           decimal.Decimal `json:"periodLiquidateUsd"`

	UpdatedBlock uint64 `json:"updatedBlock"`
}

// Clone returns a deep copy of the financials snapshot
func (s *FinancialsSnapshot) Clone() *FinancialsSnapshot {
	cp := *s
	return &cp
}

// UsageSnapshot is a periodic snapshot of protocol activity: event counts
// and distinct active accounts within the bucket
type UsageSnapshot struct {
	ID       string                 `json:"id"`
	Protocol string                 `json:"protocol"`
	Interval types.SnapshotInterval `json:"interval"`
	Bucket   int64                  `json:"bucket"`

	// ActiveAccounts is the distinct account count within this bucket,
	// deduplicated via ActivityMarker entities.
	ActiveAccounts           int64 `json:"activeAccounts"`
	CumulativeUniqueAccounts int64 `json:"cumulativeUniqueAccounts"`

	CumulativeTransactionCount int64 `json:"cumulativeTransactionCount"`
	PeriodTransactionCount     int64 `json:"periodTransactionCount"`

	PeriodDepositCount     int64 `json:"periodDepositCount"`
	PeriodWithdrawCount    int64 `json:"periodWithdrawCount"`
	PeriodBorrowCount      int64 `json:"periodBorrowCount"`
	PeriodRepayCount       int64 `json:"periodRepayCount"`
	PeriodLiquidationCount int64 `json:"periodLiquidationCount"`

	UpdatedBlock uint64 `json:"updatedBlock"`
}

// Clone returns a deep copy of the usage snapshot
func (s *UsageSnapshot) Clone() *UsageSnapshot {
	cp := *s
	return &cp
}

// ActivityMarker marks one account as active within one bucket so that
// active-account counts stay exact under replay
type ActivityMarker struct {
	ID string `json:"id"` // account-interval-bucket
}

// ActivityMarkerID builds the marker id for an account and bucket
func ActivityMarkerID(account common.Address, interval types.SnapshotInterval, bucket int64) string {
	return fmt.Sprintf("%s-%s-%d", account.Hex(), interval, bucket)
}

package storage

import (
	"context"

	lerrors "github.com/messari/subgraphs-sub014/internal/errors"
	"github.com/messari/subgraphs-sub014/internal/models"
)

// SnapshotArchive writes closed snapshot rows to ClickHouse for analytical
// queries. Rows are append-only: a bucket is archived once, when a later
// bucket opens and its period deltas become immutable.
type SnapshotArchive struct {
	db *ClickHouseDB
}

// NewSnapshotArchive creates a ClickHouse-backed snapshot archive
func NewSnapshotArchive(db *ClickHouseDB) *SnapshotArchive {
	return &SnapshotArchive{db: db}
}

// EnsureTables creates the archive tables if they do not exist
func (a *SnapshotArchive) EnsureTables(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS market_snapshots (
			market String,
			interval String,
			bucket Int64,
			period_deposit_usd Float64,
			period_withdraw_usd Float64,
			period_borrow_usd Float64,
			period_repay_usd Float64,
			period_liquidate_usd Float64,
			period_supply_side_revenue_usd Float64,
			period_protocol_side_revenue_usd Float64,
			period_total_revenue_usd Float64,
			cumulative_total_revenue_usd Float64,
			open_position_count Int64,
			updated_block UInt64
		) ENGINE = ReplacingMergeTree
		ORDER BY (market, interval, bucket)`,
		`CREATE TABLE IF NOT EXISTS financials_snapshots (
			protocol String,
			interval String,
			bucket Int64,
			period_deposit_usd Float64,
			period_withdraw_usd Float64,
			period_borrow_usd Float64,
			period_repay_usd Float64,
			period_liquidate_usd Float64,
			period_supply_side_revenue_usd Float64,
			period_protocol_side_revenue_usd Float64,
			period_total_revenue_usd Float64,
			cumulative_total_revenue_usd Float64,
			updated_block UInt64
		) ENGINE = ReplacingMergeTree
		ORDER BY (protocol, interval, bucket)`,
		`CREATE TABLE IF NOT EXISTS usage_snapshots (
			protocol String,
			interval String,
			bucket Int64,
			active_accounts Int64,
			cumulative_unique_accounts Int64,
			period_transaction_count Int64,
			period_deposit_count Int64,
			period_withdraw_count Int64,
			period_borrow_count Int64,
			period_repay_count Int64,
			period_liquidation_count Int64,
			updated_block UInt64
		) ENGINE = ReplacingMergeTree
		ORDER BY (protocol, interval, bucket)`,
	}
	for _, q := range ddl {
		if err := a.db.Conn().Exec(ctx, q); err != nil {
			return lerrors.NewStorageError("ensure archive tables", err)
		}
	}
	return nil
}

// ArchiveMarketSnapshot appends one closed market snapshot row
func (a *SnapshotArchive) ArchiveMarketSnapshot(ctx context.Context, s *models.MarketSnapshot) error {
	err := a.db.Conn().Exec(ctx,
		`INSERT INTO market_snapshots VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Market.Hex(),
		string(s.Interval),
		s.Bucket,
		s.PeriodDepositUSD.InexactFloat64(),
		s.PeriodWithdrawUSD.InexactFloat64(),
		s.PeriodBorrowUSD.InexactFloat64(),
		s.PeriodRepayUSD.InexactFloat64(),
		s.PeriodLiquidateUSD.InexactFloat64(),
		s.PeriodSupplySideRevenueUSD.InexactFloat64(),
		s.PeriodProtocolSideRevenueUSD.InexactFloat64(),
		s.PeriodTotalRevenueUSD.InexactFloat64(),
		s.CumulativeTotalRevenueUSD.InexactFloat64(),
		s.OpenPositionCount,
		s.UpdatedBlock,
	)
	if err != nil {
		return lerrors.NewStorageError("archive market snapshot", err)
	}
	return nil
}

// ArchiveFinancialsSnapshot appends one closed financials snapshot row
func (a *SnapshotArchive) ArchiveFinancialsSnapshot(ctx context.Context, s *models.FinancialsSnapshot) error {
	err := a.db.Conn().Exec(ctx,
		`INSERT INTO financials_snapshots VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Protocol,
		string(s.Interval),
		s.Bucket,
		s.PeriodDepositUSD.InexactFloat64(),
		s.PeriodWithdrawUSD.InexactFloat64(),
		s.PeriodBorrowUSD.InexactFloat64(),
		s.PeriodRepayUSD.InexactFloat64(),
		s.PeriodLiquidateUSD.InexactFloat64(),
		s.PeriodSupplySideRevenueUSD.InexactFloat64(),
		s.PeriodProtocolSideRevenueUSD.InexactFloat64(),
		s.PeriodTotalRevenueUSD.InexactFloat64(),
		s.CumulativeTotalRevenueUSD.InexactFloat64(),
		s.UpdatedBlock,
	)
	if err != nil {
		return lerrors.NewStorageError("archive financials snapshot", err)
	}
	return nil
}

// ArchiveUsageSnapshot appends one closed usage snapshot row
func (a *SnapshotArchive) ArchiveUsageSnapshot(ctx context.Context, s *models.UsageSnapshot) error {
	err := a.db.Conn().Exec(ctx,
		`INSERT INTO usage_snapshots VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.Protocol,
		string(s.Interval),
		s.Bucket,
		s.ActiveAccounts,
		s.CumulativeUniqueAccounts,
		s.PeriodTransactionCount,
		s.PeriodDepositCount,
		s.PeriodWithdrawCount,
		s.PeriodBorrowCount,
		s.PeriodRepayCount,
		s.PeriodLiquidationCount,
		s.UpdatedBlock,
	)
	if err != nil {
		return lerrors.NewStorageError("archive usage snapshot", err)
	}
	return nil
}

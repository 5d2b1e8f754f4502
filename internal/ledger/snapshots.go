package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/messari/subgraphs-sub014/internal/logging"
	"github.com/messari/subgraphs-sub014/internal/models"
	"github.com/messari/subgraphs-sub014/internal/storage"
	"github.com/messari/subgraphs-sub014/internal/types"
)

// Archiver receives closed snapshots for analytical storage. Archive writes
// are best-effort; the transactional store remains the source of truth.
type Archiver interface {
	ArchiveMarketSnapshot(ctx context.Context, s *models.MarketSnapshot) error
	ArchiveFinancialsSnapshot(ctx context.Context, s *models.FinancialsSnapshot) error
	ArchiveUsageSnapshot(ctx context.Context, s *models.UsageSnapshot) error
}

var snapshotIntervals = []types.SnapshotInterval{types.IntervalHourly, types.IntervalDaily}

// SnapshotAggregator maintains the periodic snapshot families. A snapshot is
// created lazily on the first event in its bucket and mutated in place by
// later events in the same bucket. Period deltas are recomputed as the
// current cumulative minus the previous bucket's cumulative, so summing
// period values over any bucket range telescopes to the cumulative
// difference across that range, including across idle gaps.
type SnapshotAggregator struct {
	log     *logging.Logger
	archive Archiver // nil disables archiving
}

// NewSnapshotAggregator creates a snapshot aggregator
func NewSnapshotAggregator(log *logging.Logger, archive Archiver) *SnapshotAggregator {
	return &SnapshotAggregator{log: log, archive: archive}
}

// marketBaseline is the cumulative state at the end of the previous bucket
type marketBaseline struct {
	deposit, withdraw, borrow, repay, liquidate decimal.Decimal
	supplySide, protocolSide, total             decimal.Decimal
}

// UpsertMarketSnapshots updates the hourly and daily snapshots of a market
// after its counters changed
func (a *SnapshotAggregator) UpsertMarketSnapshots(ctx context.Context, uow storage.UnitOfWork, market *models.Market, ev types.EventContext) error {
	for _, interval := range snapshotIntervals {
		bucket := models.SnapshotBucket(ev.Timestamp, interval)
		id := models.SnapshotID(market.ID.Hex(), interval, bucket)

		snap, found, err := uow.MarketSnapshot(ctx, id)
		if err != nil {
			return err
		}

		var base marketBaseline
		if found {
			base = marketBaseline{
				deposit:      snap.CumulativeDepositUSD.Sub(snap.PeriodDepositUSD),
				withdraw:     snap.CumulativeWithdrawUSD.Sub(snap.PeriodWithdrawUSD),
				borrow:       snap.CumulativeBorrowUSD.Sub(snap.PeriodBorrowUSD),
				repay:        snap.CumulativeRepayUSD.Sub(snap.PeriodRepayUSD),
				liquidate:    snap.CumulativeLiquidateUSD.Sub(snap.PeriodLiquidateUSD),
				supplySide:   snap.CumulativeSupplySideRevenueUSD.Sub(snap.PeriodSupplySideRevenueUSD),
				protocolSide: snap.CumulativeProtocolSideRevenueUSD.Sub(snap.PeriodProtocolSideRevenueUSD),
				total:        snap.CumulativeTotalRevenueUSD.Sub(snap.PeriodTotalRevenueUSD),
			}
		} else {
			snap = &models.MarketSnapshot{
				ID:       id,
				Market:   market.ID,
				Interval: interval,
				Bucket:   bucket,
			}
			prev, err := a.closeMarketBucket(ctx, uow, market, interval, bucket)
			if err != nil {
				return err
			}
			if prev != nil {
				base = marketBaseline{
					deposit:      prev.CumulativeDepositUSD,
					withdraw:     prev.CumulativeWithdrawUSD,
					borrow:       prev.CumulativeBorrowUSD,
					repay:        prev.CumulativeRepayUSD,
					liquidate:    prev.CumulativeLiquidateUSD,
					supplySide:   prev.CumulativeSupplySideRevenueUSD,
					protocolSide: prev.CumulativeProtocolSideRevenueUSD,
					total:        prev.CumulativeTotalRevenueUSD,
				}
			}
		}

		snap.CumulativeDepositUSD = market.CumulativeDepositUSD
		snap.CumulativeWithdrawUSD = market.CumulativeWithdrawUSD
		snap.CumulativeBorrowUSD = market.CumulativeBorrowUSD
		snap.CumulativeRepayUSD = market.CumulativeRepayUSD
		snap.CumulativeLiquidateUSD = market.CumulativeLiquidateUSD
		snap.CumulativeSupplySideRevenueUSD = market.CumulativeSupplySideRevenueUSD
		snap.CumulativeProtocolSideRevenueUSD = market.CumulativeProtocolSideRevenueUSD
		snap.CumulativeTotalRevenueUSD = market.CumulativeTotalRevenueUSD

		snap.PeriodDepositUSD = market.CumulativeDepositUSD.Sub(base.deposit)
		snap.PeriodWithdrawUSD = market.CumulativeWithdrawUSD.Sub(base.withdraw)
		snap.PeriodBorrowUSD = market.CumulativeBorrowUSD.Sub(base.borrow)
		snap.PeriodRepayUSD = market.CumulativeRepayUSD.Sub(base.repay)
		snap.PeriodLiquidateUSD = market.CumulativeLiquidateUSD.Sub(base.liquidate)
		snap.PeriodSupplySideRevenueUSD = market.CumulativeSupplySideRevenueUSD.Sub(base.supplySide)
		snap.PeriodProtocolSideRevenueUSD = market.CumulativeProtocolSideRevenueUSD.Sub(base.protocolSide)
		snap.PeriodTotalRevenueUSD = market.CumulativeTotalRevenueUSD.Sub(base.total)

		snap.OpenPositionCount = market.OpenPositionCount()
		snap.Rewards = market.Rewards.Clone()
		snap.UpdatedBlock = ev.BlockNumber

		if err := uow.PutMarketSnapshot(ctx, snap); err != nil {
			return err
		}

		if interval == types.IntervalHourly {
			market.LastHourlyBucket = bucket
		} else {
			market.LastDailyBucket = bucket
		}
	}
	return nil
}

// closeMarketBucket loads the market's previous snapshot when a new bucket
// opens, archiving the now-immutable row
func (a *SnapshotAggregator) closeMarketBucket(ctx context.Context, uow storage.UnitOfWork, market *models.Market, interval types.SnapshotInterval, bucket int64) (*models.MarketSnapshot, error) {
	last := market.LastHourlyBucket
	if interval == types.IntervalDaily {
		last = market.LastDailyBucket
	}
	if last < 0 || last == bucket {
		return nil, nil
	}

	prev, found, err := uow.MarketSnapshot(ctx, models.SnapshotID(market.ID.Hex(), interval, last))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	if a.archive != nil {
		if err := a.archive.ArchiveMarketSnapshot(ctx, prev); err != nil {
			a.log.WithField("snapshot", prev.ID).WithError(err).Warn("snapshot archive write failed")
		}
	}
	return prev, nil
}

// UpsertFinancialsSnapshots updates the protocol-level financials snapshots
func (a *SnapshotAggregator) UpsertFinancialsSnapshots(ctx context.Context, uow storage.UnitOfWork, protocol *models.Protocol, ev types.EventContext) error {
	for _, interval := range snapshotIntervals {
		bucket := models.SnapshotBucket(ev.Timestamp, interval)
		id := models.SnapshotID(protocol.ID, interval, bucket)

		snap, found, err := uow.FinancialsSnapshot(ctx, id)
		if err != nil {
			return err
		}

		var base marketBaseline
		if found {
			base = marketBaseline{
				deposit:      snap.CumulativeDepositUSD.Sub(snap.PeriodDepositUSD),
				withdraw:     snap.CumulativeWithdrawUSD.Sub(snap.PeriodWithdrawUSD),
				borrow:       snap.CumulativeBorrowUSD.Sub(snap.PeriodBorrowUSD),
				repay:        snap.CumulativeRepayUSD.Sub(snap.PeriodRepayUSD),
				liquidate:    snap.CumulativeLiquidateUSD.Sub(snap.PeriodLiquidateUSD),
				supplySide:   snap.CumulativeSupplySideRevenueUSD.Sub(snap.PeriodSupplySideRevenueUSD),
				protocolSide: snap.CumulativeProtocolSideRevenueUSD.Sub(snap.PeriodProtocolSideRevenueUSD),
				total:        snap.CumulativeTotalRevenueUSD.Sub(snap.PeriodTotalRevenueUSD),
			}
		} else {
			snap = &models.FinancialsSnapshot{
				ID:       id,
				Protocol: protocol.ID,
				Interval: interval,
				Bucket:   bucket,
			}
			prev, err := a.closeFinancialsBucket(ctx, uow, protocol, interval, bucket)
			if err != nil {
				return err
			}
			if prev != nil {
				base = marketBaseline{
					deposit:      prev.CumulativeDepositUSD,
					withdraw:     prev.CumulativeWithdrawUSD,
					borrow:       prev.CumulativeBorrowUSD,
					repay:        prev.CumulativeRepayUSD,
					liquidate:    prev.CumulativeLiquidateUSD,
					supplySide:   prev.CumulativeSupplySideRevenueUSD,
					protocolSide: prev.CumulativeProtocolSideRevenueUSD,
					total:        prev.CumulativeTotalRevenueUSD,
				}
			}
		}

		snap.CumulativeDepositUSD = protocol.CumulativeDepositUSD
		snap.CumulativeWithdrawUSD = protocol.CumulativeWithdrawUSD
		snap.CumulativeBorrowUSD = protocol.CumulativeBorrowUSD
		snap.CumulativeRepayUSD = protocol.CumulativeRepayUSD
		snap.CumulativeLiquidateUSD = protocol.CumulativeLiquidateUSD
		snap.CumulativeSupplySideRevenueUSD = protocol.CumulativeSupplySideRevenueUSD
		snap.CumulativeProtocolSideRevenueUSD = protocol.CumulativeProtocolSideRevenueUSD
		snap.CumulativeTotalRevenueUSD = protocol.CumulativeTotalRevenueUSD

		snap.PeriodDepositUSD = protocol.CumulativeDepositUSD.Sub(base.deposit)
		snap.PeriodWithdrawUSD = protocol.CumulativeWithdrawUSD.Sub(base.withdraw)
		snap.PeriodBorrowUSD = protocol.CumulativeBorrowUSD.Sub(base.borrow)
		snap.PeriodRepayUSD = protocol.CumulativeRepayUSD.Sub(base.repay)
		snap.PeriodLiquidateUSD = protocol.CumulativeLiquidateUSD.Sub(base.liquidate)
		snap.PeriodSupplySideRevenueUSD = protocol.CumulativeSupplySideRevenueUSD.Sub(base.supplySide)
		snap.PeriodProtocolSideRevenueUSD = protocol.CumulativeProtocolSideRevenueUSD.Sub(base.protocolSide)
		snap.PeriodTotalRevenueUSD = protocol.CumulativeTotalRevenueUSD.Sub(base.total)

		snap.UpdatedBlock = ev.BlockNumber

		if err := uow.PutFinancialsSnapshot(ctx, snap); err != nil {
			return err
		}

		if interval == types.IntervalHourly {
			protocol.FinancialsLastHourlyBucket = bucket
		} else {
			protocol.FinancialsLastDailyBucket = bucket
		}
	}
	return nil
}

func (a *SnapshotAggregator) closeFinancialsBucket(ctx context.Context, uow storage.UnitOfWork, protocol *models.Protocol, interval types.SnapshotInterval, bucket int64) (*models.FinancialsSnapshot, error) {
	last := protocol.FinancialsLastHourlyBucket
	if interval == types.IntervalDaily {
		last = protocol.FinancialsLastDailyBucket
	}
	if last < 0 || last == bucket {
		return nil, nil
	}

	prev, found, err := uow.FinancialsSnapshot(ctx, models.SnapshotID(protocol.ID, interval, last))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	if a.archive != nil {
		if err := a.archive.ArchiveFinancialsSnapshot(ctx, prev); err != nil {
			a.log.WithField("snapshot", prev.ID).WithError(err).Warn("snapshot archive write failed")
		}
	}
	return prev, nil
}

// UpsertUsageSnapshots updates the protocol usage snapshots for one user
// event. Active-account counts are deduplicated through activity markers so
// replaying a bucket cannot inflate them.
func (a *SnapshotAggregator) UpsertUsageSnapshots(ctx context.Context, uow storage.UnitOfWork, protocol *models.Protocol, account common.Address, kind types.EventKind, ev types.EventContext) error {
	for _, interval := range snapshotIntervals {
		bucket := models.SnapshotBucket(ev.Timestamp, interval)
		id := models.SnapshotID(protocol.ID, interval, bucket)

		snap, found, err := uow.UsageSnapshot(ctx, id)
		if err != nil {
			return err
		}

		var baseTx int64
		if found {
			baseTx = snap.CumulativeTransactionCount - snap.PeriodTransactionCount
		} else {
			snap = &models.UsageSnapshot{
				ID:       id,
				Protocol: protocol.ID,
				Interval: interval,
				Bucket:   bucket,
			}
			prev, err := a.closeUsageBucket(ctx, uow, protocol, interval, bucket)
			if err != nil {
				return err
			}
			if prev != nil {
				baseTx = prev.CumulativeTransactionCount
			}
		}

		snap.CumulativeUniqueAccounts = protocol.CumulativeUniqueAccounts
		snap.CumulativeTransactionCount = protocol.TransactionCount
		snap.PeriodTransactionCount = protocol.TransactionCount - baseTx

		switch kind {
		case types.EventDeposit:
			snap.PeriodDepositCount++
		case types.EventWithdraw:
			snap.PeriodWithdrawCount++
		case types.EventBorrow:
			snap.PeriodBorrowCount++
		case types.EventRepay:
			snap.PeriodRepayCount++
		case types.EventLiquidate:
			snap.PeriodLiquidationCount++
		}

		markerID := models.ActivityMarkerID(account, interval, bucket)
		active, err := uow.HasActivityMarker(ctx, markerID)
		if err != nil {
			return err
		}
		if !active {
			if err := uow.PutActivityMarker(ctx, markerID); err != nil {
				return err
			}
			snap.ActiveAccounts++
		}

		snap.UpdatedBlock = ev.BlockNumber

		if err := uow.PutUsageSnapshot(ctx, snap); err != nil {
			return err
		}

		if interval == types.IntervalHourly {
			protocol.UsageLastHourlyBucket = bucket
		} else {
			protocol.UsageLastDailyBucket = bucket
		}
	}
	return nil
}

func (a *SnapshotAggregator) closeUsageBucket(ctx context.Context, uow storage.UnitOfWork, protocol *models.Protocol, interval types.SnapshotInterval, bucket int64) (*models.UsageSnapshot, error) {
	last := protocol.UsageLastHourlyBucket
	if interval == types.IntervalDaily {
		last = protocol.UsageLastDailyBucket
	}
	if last < 0 || last == bucket {
		return nil, nil
	}

	prev, found, err := uow.UsageSnapshot(ctx, models.SnapshotID(protocol.ID, interval, last))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	if a.archive != nil {
		if err := a.archive.ArchiveUsageSnapshot(ctx, prev); err != nil {
			a.log.WithField("snapshot", prev.ID).WithError(err).Warn("snapshot archive write failed")
		}
	}
	return prev, nil
}

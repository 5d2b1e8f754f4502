package ledger

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/messari/subgraphs-sub014/internal/models"
	"github.com/messari/subgraphs-sub014/internal/storage"
	"github.com/messari/subgraphs-sub014/internal/types"
)

// recordingArchiver captures archived snapshots
type recordingArchiver struct {
	markets    []*models.MarketSnapshot
	financials []*models.FinancialsSnapshot
	usage      []*models.UsageSnapshot
}

func (r *recordingArchiver) ArchiveMarketSnapshot(ctx context.Context, s *models.MarketSnapshot) error {
	r.markets = append(r.markets, s)
	return nil
}

func (r *recordingArchiver) ArchiveFinancialsSnapshot(ctx context.Context, s *models.FinancialsSnapshot) error {
	r.financials = append(r.financials, s)
	return nil
}

func (r *recordingArchiver) ArchiveUsageSnapshot(ctx context.Context, s *models.UsageSnapshot) error {
	r.usage = append(r.usage, s)
	return nil
}

func upsertMarketAt(t *testing.T, store *storage.MemoryStore, agg *SnapshotAggregator, market *models.Market, ts int64, block uint64) {
	t.Helper()
	ctx := context.Background()
	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, agg.UpsertMarketSnapshots(ctx, uow, market, types.EventContext{Timestamp: ts, BlockNumber: block}))
	require.NoError(t, uow.Commit(ctx))
}

func loadMarketSnapshot(t *testing.T, store *storage.MemoryStore, market common.Address, interval types.SnapshotInterval, bucket int64) *models.MarketSnapshot {
	t.Helper()
	ctx := context.Background()
	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback(ctx)
	snap, found, err := uow.MarketSnapshot(ctx, models.SnapshotID(market.Hex(), interval, bucket))
	require.NoError(t, err)
	require.True(t, found, "snapshot %s-%d not found", interval, bucket)
	return snap
}

func TestMarketSnapshotPeriodsTelescope(t *testing.T) {
	store := storage.NewMemoryStore()
	archive := &recordingArchiver{}
	agg := NewSnapshotAggregator(testLogger(), archive)
	market := models.NewMarket(testMarket, common.HexToAddress("0x3333"), "Test Market", 1, 0)

	// Three consecutive hourly buckets with cumulative deposits
	// 100 -> 150 -> 175.
	market.CumulativeDepositUSD = decimal.NewFromInt(100)
	upsertMarketAt(t, store, agg, market, 0, 10)

	market.CumulativeDepositUSD = decimal.NewFromInt(150)
	upsertMarketAt(t, store, agg, market, 3600, 20)

	market.CumulativeDepositUSD = decimal.NewFromInt(175)
	upsertMarketAt(t, store, agg, market, 7200, 30)

	s0 := loadMarketSnapshot(t, store, testMarket, types.IntervalHourly, 0)
	s1 := loadMarketSnapshot(t, store, testMarket, types.IntervalHourly, 1)
	s2 := loadMarketSnapshot(t, store, testMarket, types.IntervalHourly, 2)

	assert.True(t, s0.PeriodDepositUSD.Equal(decimal.NewFromInt(100)), "got %s", s0.PeriodDepositUSD)
	assert.True(t, s1.PeriodDepositUSD.Equal(decimal.NewFromInt(50)), "got %s", s1.PeriodDepositUSD)
	assert.True(t, s2.PeriodDepositUSD.Equal(decimal.NewFromInt(25)), "got %s", s2.PeriodDepositUSD)

	// Period deltas telescope back to the cumulative total.
	sum := s0.PeriodDepositUSD.Add(s1.PeriodDepositUSD).Add(s2.PeriodDepositUSD)
	assert.True(t, sum.Equal(s2.CumulativeDepositUSD))

	// All three events land in one daily bucket.
	d0 := loadMarketSnapshot(t, store, testMarket, types.IntervalDaily, 0)
	assert.True(t, d0.PeriodDepositUSD.Equal(decimal.NewFromInt(175)))
}

func TestMarketSnapshotInPlaceMutation(t *testing.T) {
	store := storage.NewMemoryStore()
	agg := NewSnapshotAggregator(testLogger(), nil)
	market := models.NewMarket(testMarket, common.HexToAddress("0x3333"), "Test Market", 1, 0)

	market.CumulativeDepositUSD = decimal.NewFromInt(40)
	upsertMarketAt(t, store, agg, market, 100, 10)

	// A second event in the same bucket mutates the snapshot in place.
	market.CumulativeDepositUSD = decimal.NewFromInt(100)
	upsertMarketAt(t, store, agg, market, 200, 11)

	s0 := loadMarketSnapshot(t, store, testMarket, types.IntervalHourly, 0)
	assert.True(t, s0.PeriodDepositUSD.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, uint64(11), s0.UpdatedBlock)
}

func TestMarketSnapshotIdleGap(t *testing.T) {
	store := storage.NewMemoryStore()
	archive := &recordingArchiver{}
	agg := NewSnapshotAggregator(testLogger(), archive)
	market := models.NewMarket(testMarket, common.HexToAddress("0x3333"), "Test Market", 1, 0)

	market.CumulativeDepositUSD = decimal.NewFromInt(100)
	upsertMarketAt(t, store, agg, market, 0, 10)

	// Five idle hours, then more volume. The period delta spans the gap.
	market.CumulativeDepositUSD = decimal.NewFromInt(130)
	upsertMarketAt(t, store, agg, market, 5*3600, 20)

	s5 := loadMarketSnapshot(t, store, testMarket, types.IntervalHourly, 5)
	assert.True(t, s5.PeriodDepositUSD.Equal(decimal.NewFromInt(30)), "got %s", s5.PeriodDepositUSD)

	// The bucket-0 snapshot was archived when bucket 5 opened.
	require.Len(t, archive.markets, 1)
	assert.Equal(t, int64(0), archive.markets[0].Bucket)
}

func TestUsageSnapshotDeduplicatesActiveAccounts(t *testing.T) {
	store := storage.NewMemoryStore()
	agg := NewSnapshotAggregator(testLogger(), nil)
	protocol := models.NewProtocol("aave-v3", "Aave V3", "aave-v3", "mainnet")
	protocol.CumulativeUniqueAccounts = 2

	alice := common.HexToAddress("0xa11ce")
	bob := common.HexToAddress("0xb0b")
	ctx := context.Background()

	apply := func(account common.Address, kind types.EventKind, ts int64) {
		protocol.TransactionCount++
		uow, err := store.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, agg.UpsertUsageSnapshots(ctx, uow, protocol, account, kind, types.EventContext{Timestamp: ts, BlockNumber: 1}))
		require.NoError(t, uow.Commit(ctx))
	}

	apply(alice, types.EventDeposit, 100)
	apply(alice, types.EventWithdraw, 200)
	apply(bob, types.EventBorrow, 300)

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback(ctx)
	snap, found, err := uow.UsageSnapshot(ctx, models.SnapshotID(protocol.ID, types.IntervalHourly, 0))
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, int64(2), snap.ActiveAccounts, "alice must count once")
	assert.Equal(t, int64(3), snap.PeriodTransactionCount)
	assert.Equal(t, int64(1), snap.PeriodDepositCount)
	assert.Equal(t, int64(1), snap.PeriodWithdrawCount)
	assert.Equal(t, int64(1), snap.PeriodBorrowCount)
}

func TestFinancialsSnapshotPeriods(t *testing.T) {
	store := storage.NewMemoryStore()
	agg := NewSnapshotAggregator(testLogger(), nil)
	protocol := models.NewProtocol("aave-v3", "Aave V3", "aave-v3", "mainnet")
	ctx := context.Background()

	apply := func(ts int64, block uint64) {
		uow, err := store.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, agg.UpsertFinancialsSnapshots(ctx, uow, protocol, types.EventContext{Timestamp: ts, BlockNumber: block}))
		require.NoError(t, uow.Commit(ctx))
	}

	protocol.CumulativeTotalRevenueUSD = decimal.NewFromInt(10)
	apply(0, 1)
	protocol.CumulativeTotalRevenueUSD = decimal.NewFromInt(35)
	apply(3600, 2)

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback(ctx)
	snap, found, err := uow.FinancialsSnapshot(ctx, models.SnapshotID(protocol.ID, types.IntervalHourly, 1))
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, snap.PeriodTotalRevenueUSD.Equal(decimal.NewFromInt(25)), "got %s", snap.PeriodTotalRevenueUSD)
}

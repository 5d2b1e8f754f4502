package ledger

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/messari/subgraphs-sub014/internal/models"
	"github.com/messari/subgraphs-sub014/internal/storage"
	"github.com/messari/subgraphs-sub014/internal/types"
)

var (
	testAccount = common.HexToAddress("0x1111")
	testMarket  = common.HexToAddress("0x2222")
)

func positionFixture(t *testing.T) (context.Context, storage.UnitOfWork, *PositionLedger, *models.Account, *models.Market) {
	t.Helper()
	ctx := context.Background()
	uow, err := storage.NewMemoryStore().Begin(ctx)
	require.NoError(t, err)
	account := models.NewAccount(testAccount, 1)
	market := models.NewMarket(testMarket, common.HexToAddress("0x3333"), "Test Market", 1, 1000)
	return ctx, uow, NewPositionLedger(testLogger()), account, market
}

func TestOpenOrGetReturnsExistingPosition(t *testing.T) {
	ctx, uow, ledger, account, market := positionFixture(t)
	stamp := models.PositionStamp{Block: 10, Timestamp: 1000}

	pos, created, err := ledger.OpenOrGet(ctx, uow, account, market, types.SideLender, stamp)
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, uow.PutPosition(ctx, pos))

	again, created, err := ledger.OpenOrGet(ctx, uow, account, market, types.SideLender, stamp)
	require.NoError(t, err)
	assert.False(t, created, "second open must reuse the existing position")
	assert.Equal(t, pos.ID, again.ID)

	assert.Equal(t, int64(1), account.OpenPositionCount)
	assert.Equal(t, int64(1), market.OpenLenderPositionCount)
	assert.Equal(t, int64(1), market.CumulativePositionCount)
}

func TestReopenAllocatesFreshCounter(t *testing.T) {
	ctx, uow, ledger, account, market := positionFixture(t)
	stamp := models.PositionStamp{Block: 10, Timestamp: 1000}

	p0, _, err := ledger.OpenOrGet(ctx, uow, account, market, types.SideLender, stamp)
	require.NoError(t, err)
	assert.Equal(t, models.PositionID(testAccount, testMarket, types.SideLender, 0), p0.ID)
	p0.Balance = big.NewInt(100)
	require.NoError(t, uow.PutPosition(ctx, p0))

	closed := ledger.ApplyDelta(account, market, p0, big.NewInt(-100), "", models.PositionStamp{Block: 20})
	require.True(t, closed)
	require.NoError(t, uow.PutPosition(ctx, p0))
	assert.False(t, p0.IsOpen())
	assert.Equal(t, uint64(20), p0.ClosedAt.Block)

	p1, created, err := ledger.OpenOrGet(ctx, uow, account, market, types.SideLender, models.PositionStamp{Block: 30})
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, models.PositionID(testAccount, testMarket, types.SideLender, 1), p1.ID)

	assert.Equal(t, int64(2), account.PositionCount)
	assert.Equal(t, int64(1), account.OpenPositionCount)
	assert.Equal(t, int64(1), account.ClosedPositionCount)
	assert.Equal(t, int64(1), market.ClosedPositionCount)
	assert.Equal(t, int64(2), market.CumulativePositionCount)
}

func TestApplyDeltaClampsNegativeBalance(t *testing.T) {
	ctx, uow, ledger, account, market := positionFixture(t)

	pos, _, err := ledger.OpenOrGet(ctx, uow, account, market, types.SideLender, models.PositionStamp{Block: 1})
	require.NoError(t, err)
	pos.Balance = big.NewInt(100)

	closed := ledger.ApplyDelta(account, market, pos, big.NewInt(-250), "", models.PositionStamp{Block: 2})

	assert.True(t, closed, "clamped-to-zero balance closes the position")
	assert.Equal(t, 0, pos.Balance.Sign())
}

func TestBorrowerDebtSpillsAcrossModes(t *testing.T) {
	ctx, uow, ledger, account, market := positionFixture(t)

	pos, _, err := ledger.OpenOrGet(ctx, uow, account, market, types.SideBorrower, models.PositionStamp{Block: 1})
	require.NoError(t, err)

	ledger.ApplyDelta(account, market, pos, big.NewInt(60), types.RateModeVariable, models.PositionStamp{Block: 2})
	ledger.ApplyDelta(account, market, pos, big.NewInt(40), types.RateModeStable, models.PositionStamp{Block: 3})
	assert.Equal(t, int64(100), pos.Balance.Int64())

	// Repaying 80 against variable exhausts it and spills into stable.
	closed := ledger.ApplyDelta(account, market, pos, big.NewInt(-80), types.RateModeVariable, models.PositionStamp{Block: 4})
	assert.False(t, closed)
	assert.Equal(t, int64(0), pos.VariableDebt.Int64())
	assert.Equal(t, int64(20), pos.StableDebt.Int64())
	assert.Equal(t, int64(20), pos.Balance.Int64())

	closed = ledger.ApplyDelta(account, market, pos, big.NewInt(-20), types.RateModeStable, models.PositionStamp{Block: 5})
	assert.True(t, closed)
	assert.Equal(t, int64(0), market.OpenBorrowerPositionCount)
	assert.Equal(t, int64(1), market.ClosedPositionCount)
}

func TestLenderAndBorrowerSidesAreIndependent(t *testing.T) {
	ctx, uow, ledger, account, market := positionFixture(t)
	stamp := models.PositionStamp{Block: 1}

	lender, _, err := ledger.OpenOrGet(ctx, uow, account, market, types.SideLender, stamp)
	require.NoError(t, err)
	require.NoError(t, uow.PutPosition(ctx, lender))

	borrower, created, err := ledger.OpenOrGet(ctx, uow, account, market, types.SideBorrower, stamp)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, lender.ID, borrower.ID)
	assert.True(t, lender.IsCollateral)
	assert.False(t, borrower.IsCollateral)
}

func TestRecordEventKeepsCountersInLockStep(t *testing.T) {
	ctx, uow, ledger, account, market := positionFixture(t)

	pos, _, err := ledger.OpenOrGet(ctx, uow, account, market, types.SideLender, models.PositionStamp{Block: 1})
	require.NoError(t, err)

	ledger.RecordEvent(pos, account, market, types.EventDeposit)
	ledger.RecordEvent(pos, account, market, types.EventDeposit)
	ledger.RecordEvent(pos, account, market, types.EventWithdraw)

	assert.Equal(t, int64(2), pos.DepositCount)
	assert.Equal(t, int64(2), account.DepositCount)
	assert.Equal(t, int64(2), market.DepositCount)
	assert.Equal(t, int64(1), pos.WithdrawCount)
	assert.Equal(t, int64(1), account.WithdrawCount)
	assert.Equal(t, int64(1), market.WithdrawCount)
}

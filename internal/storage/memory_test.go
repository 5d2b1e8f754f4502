package storage

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/messari/subgraphs-sub014/internal/models"
	"github.com/messari/subgraphs-sub014/internal/tokens"
)

var memMarket = common.HexToAddress("0x0ee1")

func seedMarket(t *testing.T, store *MemoryStore) {
	t.Helper()
	ctx := context.Background()
	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	market := models.NewMarket(memMarket, common.HexToAddress("0x0ee2"), "Seed Market", 1, 100)
	require.NoError(t, uow.PutMarket(ctx, market))
	require.NoError(t, uow.Commit(ctx))
}

func TestMemoryStoreCommitMakesWritesVisible(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	seedMarket(t, store)

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback(ctx)
	market, found, err := uow.Market(ctx, memMarket)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Seed Market", market.Name)
}

func TestMemoryStoreRollbackLeavesNoTrace(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedMarket(t, store)

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	market, _, err := uow.Market(ctx, memMarket)
	require.NoError(t, err)
	market.CumulativeDepositUSD = decimal.NewFromInt(999)
	require.NoError(t, uow.PutMarket(ctx, market))
	require.NoError(t, uow.PutActivityMarker(ctx, "marker-1"))
	require.NoError(t, uow.Rollback(ctx))

	check, err := store.Begin(ctx)
	require.NoError(t, err)
	defer check.Rollback(ctx)
	market, _, err = check.Market(ctx, memMarket)
	require.NoError(t, err)
	assert.True(t, market.CumulativeDepositUSD.IsZero())
	has, err := check.HasActivityMarker(ctx, "marker-1")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestMemoryStoreReadsOwnStagedWrites(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedMarket(t, store)

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback(ctx)

	market, _, err := uow.Market(ctx, memMarket)
	require.NoError(t, err)
	market.CumulativeDepositUSD = decimal.NewFromInt(7)
	require.NoError(t, uow.PutMarket(ctx, market))

	reread, _, err := uow.Market(ctx, memMarket)
	require.NoError(t, err)
	assert.True(t, reread.CumulativeDepositUSD.Equal(decimal.NewFromInt(7)), "a unit of work sees its own writes")
}

func TestMemoryStoreLoadsAreIsolatedCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedMarket(t, store)

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback(ctx)

	// Mutating a loaded entity without Put must not leak into the store.
	market, _, err := uow.Market(ctx, memMarket)
	require.NoError(t, err)
	market.Name = "mutated"

	other, err := store.Begin(ctx)
	require.NoError(t, err)
	defer other.Rollback(ctx)
	reread, _, err := other.Market(ctx, memMarket)
	require.NoError(t, err)
	assert.Equal(t, "Seed Market", reread.Name)
}

func TestMemoryStoreCursorRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	_, found, err := uow.Cursor(ctx)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, uow.PutCursor(ctx, &Cursor{
		BlockNumber: 42,
		LogIndex:    3,
		RunID:       "run-1",
		UpdatedAt:   time.Now().UTC(),
	}))
	require.NoError(t, uow.Commit(ctx))

	check, err := store.Begin(ctx)
	require.NoError(t, err)
	defer check.Rollback(ctx)
	cursor, found, err := check.Cursor(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint64(42), cursor.BlockNumber)
	assert.Equal(t, uint(3), cursor.LogIndex)
	assert.Equal(t, "run-1", cursor.RunID)
}

func TestMemoryStoreTokenListing(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	usdc := common.HexToAddress("0x0ee3")
	underlying := usdc
	require.NoError(t, uow.PutToken(ctx, &tokens.Metadata{Address: usdc, Symbol: "USDC", Decimals: 6}))
	require.NoError(t, uow.PutToken(ctx, &tokens.Metadata{
		Address: common.HexToAddress("0x0ee4"), Symbol: "aUSDC", Decimals: 6, Underlying: &underlying,
	}))
	require.NoError(t, uow.Commit(ctx))

	check, err := store.Begin(ctx)
	require.NoError(t, err)
	defer check.Rollback(ctx)

	md, found, err := check.Token(ctx, usdc)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "USDC", md.Symbol)

	all, err := check.Tokens(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMemoryStoreMissingEntityIsNotAnError(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback(ctx)

	_, found, err := uow.Protocol(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, found)
	_, found, err = uow.Position(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, found)
}

package ledger

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/messari/subgraphs-sub014/internal/fixedpoint"
	"github.com/messari/subgraphs-sub014/internal/logging"
	"github.com/messari/subgraphs-sub014/internal/models"
	"github.com/messari/subgraphs-sub014/internal/types"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.LevelError, logging.FormatText)
}

// rayOf builds an index like rayOf(1, 5) == 1.05 ray
func rayOf(whole, hundredths int64) *big.Int {
	out := new(big.Int).Mul(big.NewInt(whole), fixedpoint.Ray)
	frac := new(big.Int).Div(fixedpoint.Ray, big.NewInt(100))
	frac.Mul(frac, big.NewInt(hundredths))
	return out.Add(out, frac)
}

func tokens18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func TestAccrueRecognizesInterest(t *testing.T) {
	market := common.HexToAddress("0xaa")
	reserve := models.NewReserve(market, fixedpoint.Ray)
	reserve.ScaledSupply = tokens18(1000)

	res := Accrue(testLogger(), reserve, rayOf(1, 5), types.EventContext{BlockNumber: 100, Timestamp: 1000})

	require.False(t, res.OutOfOrder)
	assert.Equal(t, 0, tokens18(50).Cmp(res.Accrued), "accrued %s", res.Accrued)
	assert.Equal(t, 0, rayOf(1, 5).Cmp(reserve.LiquidityIndex))
	assert.Equal(t, 0, tokens18(1050).Cmp(reserve.TotalSupply))
	assert.Equal(t, uint64(100), reserve.UpdatedBlock)
}

func TestAccrueOutOfOrderIndex(t *testing.T) {
	market := common.HexToAddress("0xaa")
	reserve := models.NewReserve(market, rayOf(1, 10))
	reserve.ScaledSupply = tokens18(1000)

	res := Accrue(testLogger(), reserve, rayOf(1, 5), types.EventContext{BlockNumber: 101})

	require.True(t, res.OutOfOrder)
	assert.Equal(t, 0, res.Accrued.Sign(), "no interest on an out-of-order index")
	// The index observation is still applied.
	assert.Equal(t, 0, rayOf(1, 5).Cmp(reserve.LiquidityIndex))
	assert.Equal(t, 0, tokens18(1050).Cmp(reserve.TotalSupply))
}

func TestAccrueIgnoresNilIndex(t *testing.T) {
	reserve := models.NewReserve(common.HexToAddress("0xaa"), fixedpoint.Ray)
	reserve.ScaledSupply = tokens18(10)

	res := Accrue(testLogger(), reserve, nil, types.EventContext{BlockNumber: 7})

	assert.False(t, res.OutOfOrder)
	assert.Equal(t, 0, res.Accrued.Sign())
	assert.Equal(t, 0, fixedpoint.Ray.Cmp(reserve.LiquidityIndex))
}

func TestApplyScaledDeltaClampsAtZero(t *testing.T) {
	reserve := models.NewReserve(common.HexToAddress("0xaa"), fixedpoint.Ray)
	reserve.ScaledSupply = tokens18(100)

	ApplyScaledDelta(testLogger(), reserve, new(big.Int).Neg(tokens18(250)), types.EventContext{BlockNumber: 9})

	assert.Equal(t, 0, reserve.ScaledSupply.Sign())
	assert.Equal(t, 0, reserve.TotalSupply.Sign())
}

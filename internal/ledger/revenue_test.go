package ledger

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/messari/subgraphs-sub014/internal/models"
	"github.com/messari/subgraphs-sub014/internal/oracle"
	"github.com/messari/subgraphs-sub014/internal/tokens"
)

var (
	usdcAddr  = common.HexToAddress("0x0bb1")
	aUSDCAddr = common.HexToAddress("0x0bb2")
	wethAddr  = common.HexToAddress("0x0bb3")
)

func revenueFixture() (*RevenueAttributor, *oracle.StaticOracle) {
	registry := tokens.NewRegistry()
	registry.Register(tokens.Metadata{Address: usdcAddr, Symbol: "USDC", Decimals: 6})
	underlying := usdcAddr
	registry.Register(tokens.Metadata{Address: aUSDCAddr, Symbol: "aUSDC", Decimals: 6, Underlying: &underlying})
	registry.Register(tokens.Metadata{Address: wethAddr, Symbol: "WETH", Decimals: 18})

	prices := oracle.NewStaticOracle()
	prices.SetPrice(usdcAddr, decimal.NewFromInt(1))
	prices.SetPrice(wethAddr, decimal.NewFromInt(2000))

	return NewRevenueAttributor(testLogger(), prices, registry), prices
}

func TestAmountInUSD(t *testing.T) {
	attributor, _ := revenueFixture()
	ctx := context.Background()

	t.Run("plain token", func(t *testing.T) {
		usd := attributor.AmountInUSD(ctx, big.NewInt(1_500_000), usdcAddr, 100)
		assert.True(t, usd.Equal(decimal.RequireFromString("1.5")), "got %s", usd)
	})

	t.Run("receipt token resolves through its underlying", func(t *testing.T) {
		usd := attributor.AmountInUSD(ctx, big.NewInt(2_000_000), aUSDCAddr, 100)
		assert.True(t, usd.Equal(decimal.NewFromInt(2)), "got %s", usd)
	})

	t.Run("18 decimal token", func(t *testing.T) {
		usd := attributor.AmountInUSD(ctx, tokens18(3), wethAddr, 100)
		assert.True(t, usd.Equal(decimal.NewFromInt(6000)), "got %s", usd)
	})

	t.Run("missing price values at zero", func(t *testing.T) {
		unknown := common.HexToAddress("0xdead")
		usd := attributor.AmountInUSD(ctx, big.NewInt(1000), unknown, 100)
		assert.True(t, usd.IsZero())
	})

	t.Run("nil and zero amounts", func(t *testing.T) {
		assert.True(t, attributor.AmountInUSD(ctx, nil, usdcAddr, 100).IsZero())
		assert.True(t, attributor.AmountInUSD(ctx, big.NewInt(0), usdcAddr, 100).IsZero())
	})
}

func TestBookRevenueSigned(t *testing.T) {
	attributor, _ := revenueFixture()
	protocol := models.NewProtocol("aave-v3", "Aave V3", "aave-v3", "mainnet")
	market := models.NewMarket(testMarket, usdcAddr, "USDC Market", 1, 1000)

	attributor.BookSupplySideRevenue(protocol, market, decimal.NewFromInt(90))
	attributor.BookProtocolSideRevenue(protocol, market, decimal.NewFromInt(10))

	assert.True(t, market.CumulativeSupplySideRevenueUSD.Equal(decimal.NewFromInt(90)))
	assert.True(t, market.CumulativeProtocolSideRevenueUSD.Equal(decimal.NewFromInt(10)))
	assert.True(t, market.CumulativeTotalRevenueUSD.Equal(decimal.NewFromInt(100)))
	assert.True(t, protocol.CumulativeTotalRevenueUSD.Equal(decimal.NewFromInt(100)))

	// A liquidation at a loss books negative supply-side revenue.
	attributor.BookSupplySideRevenue(protocol, market, decimal.NewFromInt(-10))
	assert.True(t, market.CumulativeSupplySideRevenueUSD.Equal(decimal.NewFromInt(80)))
	assert.True(t, market.CumulativeTotalRevenueUSD.Equal(decimal.NewFromInt(90)))
}

func TestBookAccruedInterestSplit(t *testing.T) {
	attributor, _ := revenueFixture()
	protocol := models.NewProtocol("aave-v3", "Aave V3", "aave-v3", "mainnet")
	market := models.NewMarket(testMarket, wethAddr, "WETH Market", 1, 1000)
	market.ReserveFactor = decimal.RequireFromString("0.1")

	total := attributor.BookAccruedInterest(context.Background(), protocol, market, tokens18(50), 100)

	// 50 WETH at 2000 USD split 90/10.
	assert.True(t, total.Equal(decimal.NewFromInt(100_000)), "got %s", total)
	assert.True(t, market.CumulativeSupplySideRevenueUSD.Equal(decimal.NewFromInt(90_000)))
	assert.True(t, market.CumulativeProtocolSideRevenueUSD.Equal(decimal.NewFromInt(10_000)))
	assert.True(t, market.CumulativeTotalRevenueUSD.Equal(decimal.NewFromInt(100_000)))
}

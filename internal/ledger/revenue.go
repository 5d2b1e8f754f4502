package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/messari/subgraphs-sub014/internal/fixedpoint"
	"github.com/messari/subgraphs-sub014/internal/logging"
	"github.com/messari/subgraphs-sub014/internal/models"
	"github.com/messari/subgraphs-sub014/internal/oracle"
	"github.com/messari/subgraphs-sub014/internal/tokens"
)

// maxUnderlyingDepth bounds receipt-token chains so a registry cycle cannot
// loop forever.
const maxUnderlyingDepth = 8

// defaultDecimals is assumed for tokens missing from the registry.
const defaultDecimals = 18

// RevenueAttributor values native-unit amounts in USD and books revenue onto
// the market and protocol aggregates. Valuation failures degrade to zero
// with an audit log; revenue totals never abort an event.
type RevenueAttributor struct {
	log    *logging.Logger
	oracle oracle.Oracle
	tokens tokens.Resolver
}

// NewRevenueAttributor creates a revenue attributor
func NewRevenueAttributor(log *logging.Logger, o oracle.Oracle, t tokens.Resolver) *RevenueAttributor {
	return &RevenueAttributor{log: log, oracle: o, tokens: t}
}

// AmountInUSD converts a native-unit token amount to USD at a block. Receipt
// tokens resolve recursively through their underlying asset before pricing.
func (r *RevenueAttributor) AmountInUSD(ctx context.Context, amount *big.Int, token common.Address, block uint64) decimal.Decimal {
	if amount == nil || amount.Sign() == 0 {
		return decimal.Zero
	}

	asset := token
	for depth := 0; depth < maxUnderlyingDepth; depth++ {
		underlying, ok := r.tokens.UnderlyingOf(asset).Get()
		if !ok {
			break
		}
		asset = underlying
	}

	decimals := r.tokens.DecimalsOf(asset).Or(defaultDecimals)
	price, err := r.oracle.PriceUSD(ctx, asset, block)
	if err != nil {
		r.log.WithFields(map[string]interface{}{
			"token": asset.Hex(),
			"block": block,
		}).WithError(err).Warn("price unavailable, valuing amount at zero")
		return decimal.Zero
	}

	return fixedpoint.ToDecimal(amount, decimals).Mul(price)
}

// BookSupplySideRevenue adds USD revenue attributed to suppliers. The amount
// is signed: liquidations at a loss subtract.
func (r *RevenueAttributor) BookSupplySideRevenue(protocol *models.Protocol, market *models.Market, usd decimal.Decimal) {
	market.CumulativeSupplySideRevenueUSD = market.CumulativeSupplySideRevenueUSD.Add(usd)
	market.CumulativeTotalRevenueUSD = market.CumulativeTotalRevenueUSD.Add(usd)
	protocol.CumulativeSupplySideRevenueUSD = protocol.CumulativeSupplySideRevenueUSD.Add(usd)
	protocol.CumulativeTotalRevenueUSD = protocol.CumulativeTotalRevenueUSD.Add(usd)
}

// BookProtocolSideRevenue adds USD revenue attributed to the protocol
func (r *RevenueAttributor) BookProtocolSideRevenue(protocol *models.Protocol, market *models.Market, usd decimal.Decimal) {
	market.CumulativeProtocolSideRevenueUSD = market.CumulativeProtocolSideRevenueUSD.Add(usd)
	market.CumulativeTotalRevenueUSD = market.CumulativeTotalRevenueUSD.Add(usd)
	protocol.CumulativeProtocolSideRevenueUSD = protocol.CumulativeProtocolSideRevenueUSD.Add(usd)
	protocol.CumulativeTotalRevenueUSD = protocol.CumulativeTotalRevenueUSD.Add(usd)
}

// BookAccruedInterest values accrued interest and splits it between the
// supply side and the protocol by the market's reserve factor. Returns the
// total USD booked.
func (r *RevenueAttributor) BookAccruedInterest(ctx context.Context, protocol *models.Protocol, market *models.Market, accrued *big.Int, block uint64) decimal.Decimal {
	if accrued == nil || accrued.Sign() == 0 {
		return decimal.Zero
	}
	usd := r.AmountInUSD(ctx, accrued, market.InputToken, block)
	protocolCut := usd.Mul(market.ReserveFactor)
	supplyCut := usd.Sub(protocolCut)
	r.BookSupplySideRevenue(protocol, market, supplyCut)
	r.BookProtocolSideRevenue(protocol, market, protocolCut)
	return usd
}

package ledger

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	lerrors "github.com/messari/subgraphs-sub014/internal/errors"
	"github.com/messari/subgraphs-sub014/internal/fixedpoint"
	"github.com/messari/subgraphs-sub014/internal/logging"
	"github.com/messari/subgraphs-sub014/internal/models"
	"github.com/messari/subgraphs-sub014/internal/oracle"
	"github.com/messari/subgraphs-sub014/internal/storage"
	"github.com/messari/subgraphs-sub014/internal/tokens"
	"github.com/messari/subgraphs-sub014/internal/types"
)

// Engine applies decoded events to the ledger. Events must arrive ordered by
// (block, log index); the engine is single-writer and opens one storage unit
// of work per event, so an aborted event rolls back completely and can be
// replayed.
type Engine struct {
	log       *logging.Logger
	store     storage.Store
	seed      *models.Protocol
	rules     VersionRules
	registry  *tokens.Registry
	positions *PositionLedger
	revenue   *RevenueAttributor
	snapshots *SnapshotAggregator
	runID     string
}

// NewEngine creates a ledger engine. The seed protocol is used the first
// time no protocol entity exists in the store; archive may be nil.
func NewEngine(log *logging.Logger, store storage.Store, seed *models.Protocol, rules VersionRules, registry *tokens.Registry, priceOracle oracle.Oracle, archive Archiver) *Engine {
	return &Engine{
		log:       log,
		store:     store,
		seed:      seed,
		rules:     rules,
		registry:  registry,
		positions: NewPositionLedger(log),
		revenue:   NewRevenueAttributor(log, priceOracle, registry),
		snapshots: NewSnapshotAggregator(log, archive),
		runID:     uuid.NewString(),
	}
}

// RunID identifies this engine instance in the ingestion cursor
func (e *Engine) RunID() string {
	return e.runID
}

// WarmTokens loads persisted token metadata into the in-process registry.
// Called once at startup so a worker resuming past old listing events can
// still resolve decimals and underlying assets.
func (e *Engine) WarmTokens(ctx context.Context) error {
	uow, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback(ctx)

	mds, err := uow.Tokens(ctx)
	if err != nil {
		return err
	}
	for _, md := range mds {
		e.registry.Register(*md)
	}
	if len(mds) > 0 {
		e.log.WithField("tokens", len(mds)).Info("warmed token registry")
	}
	return nil
}

// ProcessEvent applies one event atomically. On error the unit of work is
// rolled back and the event may be retried; drift conditions are logged
// inside the handlers and do not surface here.
func (e *Engine) ProcessEvent(ctx context.Context, ev *types.Event) error {
	uow, err := e.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer uow.Rollback(ctx)

	protocol, err := e.loadProtocol(ctx, uow)
	if err != nil {
		return err
	}

	switch ev.Kind {
	case types.EventMarketListed:
		err = e.handleMarketListed(ctx, uow, ev)
	case types.EventRiskParamsUpdate:
		err = e.handleRiskParamsUpdate(ctx, uow, ev)
	case types.EventDeposit:
		err = e.handleDeposit(ctx, uow, protocol, ev)
	case types.EventWithdraw:
		err = e.handleWithdraw(ctx, uow, protocol, ev)
	case types.EventBorrow:
		err = e.handleBorrow(ctx, uow, protocol, ev)
	case types.EventRepay:
		err = e.handleRepay(ctx, uow, protocol, ev)
	case types.EventLiquidate:
		err = e.handleLiquidate(ctx, uow, protocol, ev)
	case types.EventTransfer:
		err = e.handleTransfer(ctx, uow, protocol, ev)
	case types.EventIndexUpdate:
		err = e.handleIndexUpdate(ctx, uow, protocol, ev)
	case types.EventCollateralToggle:
		err = e.handleCollateralToggle(ctx, uow, ev)
	case types.EventRewardUpdate:
		err = e.handleRewardUpdate(ctx, uow, ev)
	default:
		err = lerrors.NewInvariantError("UNKNOWN_EVENT_KIND", "unrecognized event kind", nil).
			WithDetail("kind", string(ev.Kind))
	}
	if err != nil {
		return err
	}

	if err := uow.PutProtocol(ctx, protocol); err != nil {
		return err
	}
	if err := uow.PutCursor(ctx, &storage.Cursor{
		BlockNumber: ev.Context.BlockNumber,
		LogIndex:    ev.Context.LogIndex,
		RunID:       e.runID,
		UpdatedAt:   time.Now().UTC(),
	}); err != nil {
		return err
	}
	return uow.Commit(ctx)
}

func (e *Engine) loadProtocol(ctx context.Context, uow storage.UnitOfWork) (*models.Protocol, error) {
	protocol, found, err := uow.Protocol(ctx, e.seed.ID)
	if err != nil {
		return nil, err
	}
	if found {
		return protocol, nil
	}
	return e.seed.Clone(), nil
}

func (e *Engine) loadMarket(ctx context.Context, uow storage.UnitOfWork, id common.Address) (*models.Market, error) {
	market, found, err := uow.Market(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, lerrors.NewMissingEntityError("market", id.Hex())
	}
	return market, nil
}

func (e *Engine) loadReserve(ctx context.Context, uow storage.UnitOfWork, id common.Address) (*models.Reserve, error) {
	reserve, found, err := uow.Reserve(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, lerrors.NewMissingEntityError("reserve", id.Hex())
	}
	return reserve, nil
}

// ensureAccount loads an account, creating it on first touch and bumping the
// protocol's unique-account counter
func (e *Engine) ensureAccount(ctx context.Context, uow storage.UnitOfWork, protocol *models.Protocol, id common.Address, block uint64) (*models.Account, error) {
	account, found, err := uow.Account(ctx, id)
	if err != nil {
		return nil, err
	}
	if found {
		return account, nil
	}
	protocol.CumulativeUniqueAccounts++
	return models.NewAccount(id, block), nil
}

func stampOf(ctx types.EventContext) models.PositionStamp {
	return models.PositionStamp{
		Block:     ctx.BlockNumber,
		Timestamp: ctx.Timestamp,
		TxHash:    ctx.TxHash,
	}
}

func requireAmount(ev *types.Event, amount *big.Int, field string) error {
	if amount == nil || amount.Sign() < 0 {
		return lerrors.NewInvariantError("MALFORMED_EVENT", "event amount missing or negative", nil).
			WithDetail("kind", string(ev.Kind)).
			WithDetail("field", field).
			WithDetail("txHash", ev.Context.TxHash.Hex())
	}
	return nil
}

// accrueReserve applies an in-event index observation and books the implied
// interest, split by the market's reserve factor
func (e *Engine) accrueReserve(ctx context.Context, protocol *models.Protocol, market *models.Market, reserve *models.Reserve, ev *types.Event) {
	if ev.NewLiquidityIndex == nil {
		return
	}
	res := Accrue(e.log, reserve, ev.NewLiquidityIndex, ev.Context)
	if res.OutOfOrder || res.Accrued.Sign() == 0 {
		return
	}
	e.revenue.BookAccruedInterest(ctx, protocol, market, res.Accrued, ev.Context.BlockNumber)

	// The protocol's cut accrues to the treasury until materialized by a
	// treasury transfer.
	treasuryCut := fixedpoint.ToDecimal(res.Accrued, 0).Mul(market.ReserveFactor).BigInt()
	reserve.AccruedToTreasury.Add(reserve.AccruedToTreasury, treasuryCut)
}

func (e *Engine) handleMarketListed(ctx context.Context, uow storage.UnitOfWork, ev *types.Event) error {
	market, found, err := uow.Market(ctx, ev.Market)
	if err != nil {
		return err
	}
	if !found {
		market = models.NewMarket(ev.Market, ev.InputToken, ev.MarketName, ev.Context.BlockNumber, ev.Context.Timestamp)
		reserve := models.NewReserve(ev.Market, fixedpoint.Ray)
		if err := uow.PutReserve(ctx, reserve); err != nil {
			return err
		}

		underlying := ev.InputToken
		input := tokens.Metadata{
			Address:  ev.InputToken,
			Symbol:   ev.InputTokenSymbol,
			Decimals: ev.InputTokenDecimals,
		}
		receipt := tokens.Metadata{
			Address:    ev.Market,
			Symbol:     "a" + ev.InputTokenSymbol,
			Decimals:   ev.InputTokenDecimals,
			Underlying: &underlying,
		}
		e.registry.Register(input)
		e.registry.Register(receipt)
		if err := uow.PutToken(ctx, &input); err != nil {
			return err
		}
		if err := uow.PutToken(ctx, &receipt); err != nil {
			return err
		}

		e.log.WithFields(map[string]interface{}{
			"market": ev.Market.Hex(),
			"name":   ev.MarketName,
			"block":  ev.Context.BlockNumber,
		}).Info("listed market")
	}

	market.MaximumLTV = ev.MaximumLTV
	market.LiquidationThreshold = ev.LiquidationThreshold
	market.LiquidationPenalty = ev.LiquidationPenalty
	market.ReserveFactor = ev.ReserveFactor
	return uow.PutMarket(ctx, market)
}

func (e *Engine) handleRiskParamsUpdate(ctx context.Context, uow storage.UnitOfWork, ev *types.Event) error {
	market, err := e.loadMarket(ctx, uow, ev.Market)
	if err != nil {
		return err
	}
	market.MaximumLTV = ev.MaximumLTV
	market.LiquidationThreshold = ev.LiquidationThreshold
	market.LiquidationPenalty = ev.LiquidationPenalty
	market.ReserveFactor = ev.ReserveFactor
	return uow.PutMarket(ctx, market)
}

func (e *Engine) handleDeposit(ctx context.Context, uow storage.UnitOfWork, protocol *models.Protocol, ev *types.Event) error {
	if err := requireAmount(ev, ev.Amount, "amount"); err != nil {
		return err
	}
	market, err := e.loadMarket(ctx, uow, ev.Market)
	if err != nil {
		return err
	}
	reserve, err := e.loadReserve(ctx, uow, ev.Market)
	if err != nil {
		return err
	}
	account, err := e.ensureAccount(ctx, uow, protocol, ev.Account, ev.Context.BlockNumber)
	if err != nil {
		return err
	}

	e.accrueReserve(ctx, protocol, market, reserve, ev)
	scaled, err := fixedpoint.RayDiv(ev.Amount, reserve.LiquidityIndex)
	if err != nil {
		return lerrors.NewInvariantError("ZERO_INDEX", "reserve liquidity index is zero", err).
			WithDetail("market", ev.Market.Hex())
	}
	ApplyScaledDelta(e.log, reserve, scaled, ev.Context)

	pos, created, err := e.positions.OpenOrGet(ctx, uow, account, market, types.SideLender, stampOf(ev.Context))
	if err != nil {
		return err
	}
	pos.Balance.Add(pos.Balance, ev.Amount)
	e.positions.RecordEvent(pos, account, market, types.EventDeposit)
	if created {
		protocol.OpenPositionCount++
		protocol.CumulativePositionCount++
	}

	usd := e.revenue.AmountInUSD(ctx, ev.Amount, market.InputToken, ev.Context.BlockNumber)
	market.CumulativeDepositUSD = market.CumulativeDepositUSD.Add(usd)
	protocol.CumulativeDepositUSD = protocol.CumulativeDepositUSD.Add(usd)
	protocol.TransactionCount++

	if err := uow.PutPosition(ctx, pos); err != nil {
		return err
	}
	if err := uow.PutAccount(ctx, account); err != nil {
		return err
	}
	if err := uow.PutReserve(ctx, reserve); err != nil {
		return err
	}
	return e.finishMarketEvent(ctx, uow, protocol, market, ev.Account, types.EventDeposit, ev.Context)
}

func (e *Engine) handleWithdraw(ctx context.Context, uow storage.UnitOfWork, protocol *models.Protocol, ev *types.Event) error {
	if err := requireAmount(ev, ev.Amount, "amount"); err != nil {
		return err
	}
	market, err := e.loadMarket(ctx, uow, ev.Market)
	if err != nil {
		return err
	}
	reserve, err := e.loadReserve(ctx, uow, ev.Market)
	if err != nil {
		return err
	}
	account, err := e.ensureAccount(ctx, uow, protocol, ev.Account, ev.Context.BlockNumber)
	if err != nil {
		return err
	}

	e.accrueReserve(ctx, protocol, market, reserve, ev)
	scaled, err := fixedpoint.RayDiv(ev.Amount, reserve.LiquidityIndex)
	if err != nil {
		return lerrors.NewInvariantError("ZERO_INDEX", "reserve liquidity index is zero", err).
			WithDetail("market", ev.Market.Hex())
	}
	ApplyScaledDelta(e.log, reserve, new(big.Int).Neg(scaled), ev.Context)

	pos, found, err := e.positions.FindOpen(ctx, uow, account, market.ID, types.SideLender)
	if err != nil {
		return err
	}
	if !found {
		e.log.WithFields(map[string]interface{}{
			"account": ev.Account.Hex(),
			"market":  ev.Market.Hex(),
			"txHash":  ev.Context.TxHash.Hex(),
		}).Warn("withdraw without an open lender position")
	} else {
		closed := e.positions.ApplyDelta(account, market, pos, new(big.Int).Neg(ev.Amount), "", stampOf(ev.Context))
		e.positions.RecordEvent(pos, account, market, types.EventWithdraw)
		if closed {
			protocol.OpenPositionCount--
		}
		if err := uow.PutPosition(ctx, pos); err != nil {
			return err
		}
	}

	usd := e.revenue.AmountInUSD(ctx, ev.Amount, market.InputToken, ev.Context.BlockNumber)
	market.CumulativeWithdrawUSD = market.CumulativeWithdrawUSD.Add(usd)
	protocol.CumulativeWithdrawUSD = protocol.CumulativeWithdrawUSD.Add(usd)
	protocol.TransactionCount++

	if err := uow.PutAccount(ctx, account); err != nil {
		return err
	}
	if err := uow.PutReserve(ctx, reserve); err != nil {
		return err
	}
	return e.finishMarketEvent(ctx, uow, protocol, market, ev.Account, types.EventWithdraw, ev.Context)
}

func (e *Engine) handleBorrow(ctx context.Context, uow storage.UnitOfWork, protocol *models.Protocol, ev *types.Event) error {
	if err := requireAmount(ev, ev.Amount, "amount"); err != nil {
		return err
	}
	market, err := e.loadMarket(ctx, uow, ev.Market)
	if err != nil {
		return err
	}
	account, err := e.ensureAccount(ctx, uow, protocol, ev.Account, ev.Context.BlockNumber)
	if err != nil {
		return err
	}

	pos, created, err := e.positions.OpenOrGet(ctx, uow, account, market, types.SideBorrower, stampOf(ev.Context))
	if err != nil {
		return err
	}
	e.positions.ApplyDelta(account, market, pos, ev.Amount, ev.RateMode, stampOf(ev.Context))
	e.positions.RecordEvent(pos, account, market, types.EventBorrow)
	if created {
		protocol.OpenPositionCount++
		protocol.CumulativePositionCount++
	}

	usd := e.revenue.AmountInUSD(ctx, ev.Amount, market.InputToken, ev.Context.BlockNumber)
	market.CumulativeBorrowUSD = market.CumulativeBorrowUSD.Add(usd)
	protocol.CumulativeBorrowUSD = protocol.CumulativeBorrowUSD.Add(usd)
	protocol.TransactionCount++

	if err := uow.PutPosition(ctx, pos); err != nil {
		return err
	}
	if err := uow.PutAccount(ctx, account); err != nil {
		return err
	}
	return e.finishMarketEvent(ctx, uow, protocol, market, ev.Account, types.EventBorrow, ev.Context)
}

func (e *Engine) handleRepay(ctx context.Context, uow storage.UnitOfWork, protocol *models.Protocol, ev *types.Event) error {
	if err := requireAmount(ev, ev.Amount, "amount"); err != nil {
		return err
	}
	market, err := e.loadMarket(ctx, uow, ev.Market)
	if err != nil {
		return err
	}
	account, err := e.ensureAccount(ctx, uow, protocol, ev.Account, ev.Context.BlockNumber)
	if err != nil {
		return err
	}

	pos, found, err := e.positions.FindOpen(ctx, uow, account, market.ID, types.SideBorrower)
	if err != nil {
		return err
	}
	if !found {
		e.log.WithFields(map[string]interface{}{
			"account": ev.Account.Hex(),
			"market":  ev.Market.Hex(),
			"txHash":  ev.Context.TxHash.Hex(),
		}).Warn("repay without an open borrower position")
	} else {
		closed := e.positions.ApplyDelta(account, market, pos, new(big.Int).Neg(ev.Amount), ev.RateMode, stampOf(ev.Context))
		e.positions.RecordEvent(pos, account, market, types.EventRepay)
		if closed {
			protocol.OpenPositionCount--
		}
		if err := uow.PutPosition(ctx, pos); err != nil {
			return err
		}
	}

	usd := e.revenue.AmountInUSD(ctx, ev.Amount, market.InputToken, ev.Context.BlockNumber)
	market.CumulativeRepayUSD = market.CumulativeRepayUSD.Add(usd)
	protocol.CumulativeRepayUSD = protocol.CumulativeRepayUSD.Add(usd)
	protocol.TransactionCount++

	if err := uow.PutAccount(ctx, account); err != nil {
		return err
	}
	return e.finishMarketEvent(ctx, uow, protocol, market, ev.Account, types.EventRepay, ev.Context)
}

func (e *Engine) handleLiquidate(ctx context.Context, uow storage.UnitOfWork, protocol *models.Protocol, ev *types.Event) error {
	if err := requireAmount(ev, ev.DebtCovered, "debtCovered"); err != nil {
		return err
	}
	if err := requireAmount(ev, ev.CollateralSeized, "collateralSeized"); err != nil {
		return err
	}

	debtMarket, err := e.loadMarket(ctx, uow, ev.Market)
	if err != nil {
		return err
	}
	collateralMarket := debtMarket
	if ev.CollateralMarket != ev.Market {
		collateralMarket, err = e.loadMarket(ctx, uow, ev.CollateralMarket)
		if err != nil {
			return err
		}
	}

	borrower, err := e.ensureAccount(ctx, uow, protocol, ev.Account, ev.Context.BlockNumber)
	if err != nil {
		return err
	}
	liquidator, err := e.ensureAccount(ctx, uow, protocol, ev.Liquidator, ev.Context.BlockNumber)
	if err != nil {
		return err
	}

	stamp := stampOf(ev.Context)

	dpos, found, err := e.positions.FindOpen(ctx, uow, borrower, debtMarket.ID, types.SideBorrower)
	if err != nil {
		return err
	}
	if !found {
		e.log.WithFields(map[string]interface{}{
			"account": ev.Account.Hex(),
			"market":  ev.Market.Hex(),
			"txHash":  ev.Context.TxHash.Hex(),
		}).Warn("liquidation without an open borrower position")
	} else {
		closed := e.positions.ApplyDelta(borrower, debtMarket, dpos, new(big.Int).Neg(ev.DebtCovered), ev.RateMode, stamp)
		e.positions.RecordEvent(dpos, borrower, debtMarket, types.EventLiquidate)
		if closed {
			protocol.OpenPositionCount--
		}
		if err := uow.PutPosition(ctx, dpos); err != nil {
			return err
		}
	}

	cpos, found, err := e.positions.FindOpen(ctx, uow, borrower, collateralMarket.ID, types.SideLender)
	if err != nil {
		return err
	}
	if !found {
		e.log.WithFields(map[string]interface{}{
			"account": ev.Account.Hex(),
			"market":  ev.CollateralMarket.Hex(),
			"txHash":  ev.Context.TxHash.Hex(),
		}).Warn("liquidation without an open collateral position")
	} else {
		closed := e.positions.ApplyDelta(borrower, collateralMarket, cpos, new(big.Int).Neg(ev.CollateralSeized), "", stamp)
		cpos.LiquidationCount++
		if ev.CollateralMarket != ev.Market {
			collateralMarket.LiquidationCount++
		}
		if closed {
			protocol.OpenPositionCount--
		}
		if err := uow.PutPosition(ctx, cpos); err != nil {
			return err
		}
	}

	liquidator.LiquidatorCount++

	collateralUSD := e.revenue.AmountInUSD(ctx, ev.CollateralSeized, collateralMarket.InputToken, ev.Context.BlockNumber)
	debtUSD := e.revenue.AmountInUSD(ctx, ev.DebtCovered, debtMarket.InputToken, ev.Context.BlockNumber)
	collateralMarket.CumulativeLiquidateUSD = collateralMarket.CumulativeLiquidateUSD.Add(collateralUSD)
	protocol.CumulativeLiquidateUSD = protocol.CumulativeLiquidateUSD.Add(collateralUSD)

	// Liquidation profit is signed. A liquidation at a loss legitimately
	// subtracts from supply-side revenue.
	profit := collateralUSD.Sub(debtUSD)
	e.revenue.BookSupplySideRevenue(protocol, collateralMarket, profit)

	protocol.TransactionCount++

	if err := uow.PutAccount(ctx, borrower); err != nil {
		return err
	}
	if err := uow.PutAccount(ctx, liquidator); err != nil {
		return err
	}
	if ev.CollateralMarket != ev.Market {
		if err := e.snapshots.UpsertMarketSnapshots(ctx, uow, collateralMarket, ev.Context); err != nil {
			return err
		}
		if err := uow.PutMarket(ctx, collateralMarket); err != nil {
			return err
		}
	}
	return e.finishMarketEvent(ctx, uow, protocol, debtMarket, ev.Account, types.EventLiquidate, ev.Context)
}

func (e *Engine) handleTransfer(ctx context.Context, uow storage.UnitOfWork, protocol *models.Protocol, ev *types.Event) error {
	if err := requireAmount(ev, ev.Amount, "amount"); err != nil {
		return err
	}
	if e.rules.IsTreasuryRebase(ev) {
		return e.handleTreasuryRebase(ctx, uow, ev)
	}

	market, err := e.loadMarket(ctx, uow, ev.Market)
	if err != nil {
		return err
	}
	sender, err := e.ensureAccount(ctx, uow, protocol, ev.Account, ev.Context.BlockNumber)
	if err != nil {
		return err
	}
	receiver, err := e.ensureAccount(ctx, uow, protocol, ev.Counterparty, ev.Context.BlockNumber)
	if err != nil {
		return err
	}

	stamp := stampOf(ev.Context)

	spos, found, err := e.positions.FindOpen(ctx, uow, sender, market.ID, types.SideLender)
	if err != nil {
		return err
	}
	if !found {
		e.log.WithFields(map[string]interface{}{
			"account": ev.Account.Hex(),
			"market":  ev.Market.Hex(),
			"txHash":  ev.Context.TxHash.Hex(),
		}).Warn("transfer out without an open lender position")
	} else {
		closed := e.positions.ApplyDelta(sender, market, spos, new(big.Int).Neg(ev.Amount), "", stamp)
		if closed {
			protocol.OpenPositionCount--
		}
		if err := uow.PutPosition(ctx, spos); err != nil {
			return err
		}
	}

	rpos, created, err := e.positions.OpenOrGet(ctx, uow, receiver, market, types.SideLender, stamp)
	if err != nil {
		return err
	}
	rpos.Balance.Add(rpos.Balance, ev.Amount)
	if created {
		protocol.OpenPositionCount++
		protocol.CumulativePositionCount++
	}
	if err := uow.PutPosition(ctx, rpos); err != nil {
		return err
	}

	protocol.TransactionCount++

	if err := uow.PutAccount(ctx, sender); err != nil {
		return err
	}
	if err := uow.PutAccount(ctx, receiver); err != nil {
		return err
	}
	return e.finishMarketEvent(ctx, uow, protocol, market, ev.Account, types.EventTransfer, ev.Context)
}

// handleTreasuryRebase materializes already-booked treasury interest. No
// revenue is booked here: the reserve-factor split at accrual time already
// counted it, this transfer only moves it on chain.
func (e *Engine) handleTreasuryRebase(ctx context.Context, uow storage.UnitOfWork, ev *types.Event) error {
	reserve, err := e.loadReserve(ctx, uow, ev.Market)
	if err != nil {
		return err
	}

	if reserve.AccruedToTreasury.Cmp(ev.Amount) < 0 {
		e.log.WithFields(map[string]interface{}{
			"market":  ev.Market.Hex(),
			"accrued": reserve.AccruedToTreasury.String(),
			"amount":  ev.Amount.String(),
			"txHash":  ev.Context.TxHash.Hex(),
		}).Warn("treasury transfer exceeds accrued interest, clamping to zero")
		reserve.AccruedToTreasury.SetInt64(0)
	} else {
		reserve.AccruedToTreasury.Sub(reserve.AccruedToTreasury, ev.Amount)
	}
	reserve.UpdatedBlock = ev.Context.BlockNumber

	e.log.WithFields(map[string]interface{}{
		"market": ev.Market.Hex(),
		"amount": ev.Amount.String(),
		"block":  ev.Context.BlockNumber,
	}).Debug("treasury transfer reinterpreted as interest materialization")

	return uow.PutReserve(ctx, reserve)
}

func (e *Engine) handleIndexUpdate(ctx context.Context, uow storage.UnitOfWork, protocol *models.Protocol, ev *types.Event) error {
	if ev.NewLiquidityIndex == nil {
		return lerrors.NewInvariantError("MALFORMED_EVENT", "index update without an index", nil).
			WithDetail("txHash", ev.Context.TxHash.Hex())
	}
	market, err := e.loadMarket(ctx, uow, ev.Market)
	if err != nil {
		return err
	}
	reserve, err := e.loadReserve(ctx, uow, ev.Market)
	if err != nil {
		return err
	}

	e.accrueReserve(ctx, protocol, market, reserve, ev)

	if err := uow.PutReserve(ctx, reserve); err != nil {
		return err
	}
	if err := e.snapshots.UpsertMarketSnapshots(ctx, uow, market, ev.Context); err != nil {
		return err
	}
	if err := uow.PutMarket(ctx, market); err != nil {
		return err
	}
	return e.snapshots.UpsertFinancialsSnapshots(ctx, uow, protocol, ev.Context)
}

func (e *Engine) handleCollateralToggle(ctx context.Context, uow storage.UnitOfWork, ev *types.Event) error {
	account, found, err := uow.Account(ctx, ev.Account)
	if err != nil {
		return err
	}
	if !found {
		e.log.WithFields(map[string]interface{}{
			"account": ev.Account.Hex(),
			"market":  ev.Market.Hex(),
		}).Warn("collateral toggle for an unknown account")
		return nil
	}

	pos, found, err := e.positions.FindOpen(ctx, uow, account, ev.Market, types.SideLender)
	if err != nil {
		return err
	}
	if !found {
		e.log.WithFields(map[string]interface{}{
			"account": ev.Account.Hex(),
			"market":  ev.Market.Hex(),
		}).Warn("collateral toggle without an open lender position")
		return nil
	}

	pos.IsCollateral = ev.CollateralEnabled
	return uow.PutPosition(ctx, pos)
}

func (e *Engine) handleRewardUpdate(ctx context.Context, uow storage.UnitOfWork, ev *types.Event) error {
	if err := requireAmount(ev, ev.RewardPerDay, "rewardPerDay"); err != nil {
		return err
	}
	market, err := e.loadMarket(ctx, uow, ev.Market)
	if err != nil {
		return err
	}

	usdPerDay := e.revenue.AmountInUSD(ctx, ev.RewardPerDay, ev.RewardToken, ev.Context.BlockNumber)
	if market.Rewards == nil {
		market.Rewards = models.RewardEmissions{}
	}
	market.Rewards.Set(ev.RewardToken, ev.RewardPerDay, usdPerDay)

	if err := e.snapshots.UpsertMarketSnapshots(ctx, uow, market, ev.Context); err != nil {
		return err
	}
	return uow.PutMarket(ctx, market)
}

// finishMarketEvent runs the snapshot upserts shared by every user event and
// persists the market. The market write happens after the snapshot pass
// because the pass advances the market's bucket trackers.
func (e *Engine) finishMarketEvent(ctx context.Context, uow storage.UnitOfWork, protocol *models.Protocol, market *models.Market, account common.Address, kind types.EventKind, evCtx types.EventContext) error {
	if err := e.snapshots.UpsertMarketSnapshots(ctx, uow, market, evCtx); err != nil {
		return err
	}
	if err := uow.PutMarket(ctx, market); err != nil {
		return err
	}
	if err := e.snapshots.UpsertFinancialsSnapshots(ctx, uow, protocol, evCtx); err != nil {
		return err
	}
	return e.snapshots.UpsertUsageSnapshots(ctx, uow, protocol, account, kind, evCtx)
}

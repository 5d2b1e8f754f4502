// Package oracle resolves USD prices for tokens at a given block. A missing
// price is an expected condition near listing time; callers value the amount
// at zero and log it rather than aborting.
package oracle

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ErrPriceUnavailable is returned when no price source covers the token at
// the requested block
var ErrPriceUnavailable = errors.New("oracle: price unavailable")

// Oracle resolves the USD price of one whole unit of a token at a block
type Oracle interface {
	PriceUSD(ctx context.Context, token common.Address, block uint64) (decimal.Decimal, error)
}

// StaticOracle serves prices from a fixed in-memory table. Used by tests
// and offline replay.
type StaticOracle struct {
	mu     sync.RWMutex
	prices map[common.Address]decimal.Decimal
}

// NewStaticOracle creates an empty static oracle
func NewStaticOracle() *StaticOracle {
	return &StaticOracle{prices: make(map[common.Address]decimal.Decimal)}
}

// SetPrice fixes the price for a token
func (o *StaticOracle) SetPrice(token common.Address, price decimal.Decimal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[token] = price
}

// PriceUSD returns the fixed price, or ErrPriceUnavailable
func (o *StaticOracle) PriceUSD(ctx context.Context, token common.Address, block uint64) (decimal.Decimal, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	price, ok := o.prices[token]
	if !ok {
		return decimal.Zero, ErrPriceUnavailable
	}
	return price, nil
}

// Package models defines the entities the ledger core maintains: the
// protocol aggregate, markets, reserves, accounts, positions, reward
// emissions, and the periodic snapshot family. Big integers are
// arbitrary-precision; USD values are decimals.
package models

import (
	"github.com/shopspring/decimal"
)

// Protocol is the protocol-level aggregate record. It is constructed once at
// process start and injected into the engine; it is never re-derived via a
// global lookup.
type Protocol struct {
	ID      string `json:"id"` // deployment address or slug
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	Network string `json:"network"`

	CumulativeSupplySideRevenueUSD decimal.Decimal `json:"cumulativeSupplySideRevenueUsd"`
	CumulativeProtocolSideRevenueUSD decimal.Decimal `json:"cumulativeProtocolSideRevenueUsd"`
	CumulativeTotalRevenueUSD      decimal.Decimal `json:"cumulativeTotalRevenueUsd"`

	CumulativeDepositUSD   decimal.Decimal `json:"cumulativeDepositUsd"`
	CumulativeWithdrawUSD  decimal.Decimal `json:"cumulativeWithdrawUsd"`
	CumulativeBorrowUSD    decimal.Decimal `json:"cumulativeBorrowUsd"`
	CumulativeRepayUSD     decimal.Decimal `json:"cumulativeRepayUsd"`
	CumulativeLiquidateUSD decimal.Decimal `json:"cumulativeLiquidateUsd"`

	CumulativeUniqueAccounts int64 `json:"cumulativeUniqueAccounts"`
	OpenPositionCount        int64 `json:"openPositionCount"`
	CumulativePositionCount  int64 `json:"cumulativePositionCount"`

	TransactionCount int64 `json:"transactionCount"`

	// Most recent snapshot bucket per interval and family, -1 before the
	// first event. Lets the aggregator find the previous snapshot across
	// idle gaps. Financials and usage advance independently because not
	// every event counts as protocol usage.
	FinancialsLastHourlyBucket int64 `json:"financialsLastHourlyBucket"`
	FinancialsLastDailyBucket  int64 `json:"financialsLastDailyBucket"`
	UsageLastHourlyBucket      int64 `json:"usageLastHourlyBucket"`
	UsageLastDailyBucket       int64 `json:"usageLastDailyBucket"`
}

// NewProtocol creates a protocol aggregate with zeroed counters
func NewProtocol(id, name, slug, network string) *Protocol {
	return &Protocol{
		ID:                         id,
		Name:                       name,
		Slug:                       slug,
		Network:                    network,
		FinancialsLastHourlyBucket: -1,
		FinancialsLastDailyBucket:  -1,
		UsageLastHourlyBucket:      -1,
		UsageLastDailyBucket:       -1,
	}
}

// Clone returns a deep copy of the protocol aggregate
func (p *Protocol) Clone() *Protocol {
	cp := *p
	return &cp
}

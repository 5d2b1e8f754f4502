package models

import (
	"github.com/ethereum/go-ethereum/common"
)

// Account represents one wallet address interacting with the protocol.
// OpenPositions must contain exactly the set of position ids with a nil
// ClosedAt, and OpenPositionCount must equal its length at all times.
type Account struct {
	ID common.Address `json:"id"`

	// PositionCount is the lifetime number of positions ever opened.
	PositionCount       int64 `json:"positionCount"`
	OpenPositionCount   int64 `json:"openPositionCount"`
	ClosedPositionCount int64 `json:"closedPositionCount"`

	OpenPositions []string `json:"openPositions"`

	// PositionCounters allocates the next id suffix per
	// (market, side) prefix so a re-opened position gets a fresh identity.
	PositionCounters map[string]int64 `json:"positionCounters"`

	DepositCount     int64 `json:"depositCount"`
	WithdrawCount    int64 `json:"withdrawCount"`
	BorrowCount      int64 `json:"borrowCount"`
	RepayCount       int64 `json:"repayCount"`
	LiquidationCount int64 `json:"liquidationCount"`
	// LiquidatorCount counts liquidations this account performed.
	LiquidatorCount int64 `json:"liquidatorCount"`

	FirstSeenBlock uint64 `json:"firstSeenBlock"`
}

// NewAccount creates an account the first time an address touches the protocol
func NewAccount(id common.Address, block uint64) *Account {
	return &Account{
		ID:               id,
		OpenPositions:    []string{},
		PositionCounters: make(map[string]int64),
		FirstSeenBlock:   block,
	}
}

// NextCounter allocates the id suffix for a new position under prefix
func (a *Account) NextCounter(prefix string) int64 {
	if a.PositionCounters == nil {
		a.PositionCounters = make(map[string]int64)
	}
	n := a.PositionCounters[prefix]
	a.PositionCounters[prefix] = n + 1
	return n
}

// AddOpenPosition appends a position id to the open list and bumps counts
func (a *Account) AddOpenPosition(id string) {
	a.OpenPositions = append(a.OpenPositions, id)
	a.OpenPositionCount++
	a.PositionCount++
}

// RemoveOpenPosition moves a position id out of the open list, returning
// whether it was present
func (a *Account) RemoveOpenPosition(id string) bool {
	for i, pid := range a.OpenPositions {
		if pid == id {
			a.OpenPositions = append(a.OpenPositions[:i], a.OpenPositions[i+1:]...)
			a.OpenPositionCount--
			a.ClosedPositionCount++
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the account
func (a *Account) Clone() *Account {
	cp := *a
	cp.OpenPositions = append([]string(nil), a.OpenPositions...)
	if a.PositionCounters != nil {
		cp.PositionCounters = make(map[string]int64, len(a.PositionCounters))
		for k, v := range a.PositionCounters {
			cp.PositionCounters[k] = v
		}
	}
	return &cp
}

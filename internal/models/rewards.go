package models

import (
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// RewardEmission is one reward token's current emission rate on a market
type RewardEmission struct {
	AmountPerDay *big.Int        `json:"amountPerDay"`
	AmountUSDPerDay decimal.Decimal `json:"amountUsdPerDay"`
}

// RewardEmissions maps reward token address (lowercase hex) to its emission.
// A single keyed mapping replaces the parallel token/amount/USD arrays the
// on-chain mappings carry; iteration is always in sorted key order so
// snapshot diffs stay deterministic.
type RewardEmissions map[string]RewardEmission

// Set records the emission for a reward token
func (r RewardEmissions) Set(token common.Address, amountPerDay *big.Int, amountUSDPerDay decimal.Decimal) {
	r[keyFor(token)] = RewardEmission{
		AmountPerDay:    new(big.Int).Set(amountPerDay),
		AmountUSDPerDay: amountUSDPerDay,
	}
}

// Get returns the emission for a reward token
func (r RewardEmissions) Get(token common.Address) (RewardEmission, bool) {
	e, ok := r[keyFor(token)]
	return e, ok
}

// SortedTokens returns the reward token keys in ascending order
func (r RewardEmissions) SortedTokens() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TotalUSDPerDay sums the USD emission rate across all reward tokens
func (r RewardEmissions) TotalUSDPerDay() decimal.Decimal {
	total := decimal.Zero
	for _, k := range r.SortedTokens() {
		total = total.Add(r[k].AmountUSDPerDay)
	}
	return total
}

// Clone returns a deep copy of the emissions mapping
func (r RewardEmissions) Clone() RewardEmissions {
	if r == nil {
		return nil
	}
	cp := make(RewardEmissions, len(r))
	for k, v := range r {
		cp[k] = RewardEmission{
			AmountPerDay:    new(big.Int).Set(v.AmountPerDay),
			AmountUSDPerDay: v.AmountUSDPerDay,
		}
	}
	return cp
}

func keyFor(token common.Address) string {
	return token.Hex()
}

// Package tokens resolves token metadata: decimals, symbols, and the
// receipt-token to underlying-asset mapping USD valuation depends on.
package tokens

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Metadata describes one token known to the ledger
type Metadata struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name"`
	Decimals int            `json:"decimals"`

	// Underlying, when set, is the asset this receipt token wraps. Pricing
	// a receipt token means pricing its underlying.
	Underlying *common.Address `json:"underlying,omitempty"`
}

// Result carries a lookup outcome. Callers choose a fallback explicitly
// instead of receiving a silent zero value.
type Result[T any] struct {
	value T
	ok    bool
}

// Ok wraps a successful lookup
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v, ok: true}
}

// Missing is a failed lookup
func Missing[T any]() Result[T] {
	return Result[T]{}
}

// Get returns the value and whether the lookup succeeded
func (r Result[T]) Get() (T, bool) {
	return r.value, r.ok
}

// Or returns the value, or fallback when the lookup failed
func (r Result[T]) Or(fallback T) T {
	if r.ok {
		return r.value
	}
	return fallback
}

// Resolver answers metadata lookups for the revenue attributor
type Resolver interface {
	DecimalsOf(token common.Address) Result[int]
	SymbolOf(token common.Address) Result[string]
	UnderlyingOf(token common.Address) Result[common.Address]
}

// Registry is an in-memory metadata registry populated at market-listing
// time. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	tokens map[common.Address]Metadata
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{tokens: make(map[common.Address]Metadata)}
}

// Register records or replaces a token's metadata
func (r *Registry) Register(md Metadata) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[md.Address] = md
}

// Lookup returns the full metadata record for a token
func (r *Registry) Lookup(token common.Address) (Metadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	md, ok := r.tokens[token]
	return md, ok
}

// DecimalsOf returns a token's decimal count
func (r *Registry) DecimalsOf(token common.Address) Result[int] {
	if md, ok := r.Lookup(token); ok {
		return Ok(md.Decimals)
	}
	return Missing[int]()
}

// SymbolOf returns a token's symbol
func (r *Registry) SymbolOf(token common.Address) Result[string] {
	if md, ok := r.Lookup(token); ok {
		return Ok(md.Symbol)
	}
	return Missing[string]()
}

// UnderlyingOf returns the asset a receipt token wraps, if any
func (r *Registry) UnderlyingOf(token common.Address) Result[common.Address] {
	if md, ok := r.Lookup(token); ok && md.Underlying != nil {
		return Ok(*md.Underlying)
	}
	return Missing[common.Address]()
}

package tokens

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookups(t *testing.T) {
	registry := NewRegistry()
	usdc := common.HexToAddress("0x1")
	aUSDC := common.HexToAddress("0x2")

	registry.Register(Metadata{Address: usdc, Symbol: "USDC", Decimals: 6})
	underlying := usdc
	registry.Register(Metadata{Address: aUSDC, Symbol: "aUSDC", Decimals: 6, Underlying: &underlying})

	decimals, ok := registry.DecimalsOf(usdc).Get()
	require.True(t, ok)
	assert.Equal(t, 6, decimals)

	symbol, ok := registry.SymbolOf(aUSDC).Get()
	require.True(t, ok)
	assert.Equal(t, "aUSDC", symbol)

	wrapped, ok := registry.UnderlyingOf(aUSDC).Get()
	require.True(t, ok)
	assert.Equal(t, usdc, wrapped)

	// A plain asset has no underlying.
	_, ok = registry.UnderlyingOf(usdc).Get()
	assert.False(t, ok)
}

func TestRegistryRegisterReplaces(t *testing.T) {
	registry := NewRegistry()
	token := common.HexToAddress("0x1")

	registry.Register(Metadata{Address: token, Symbol: "OLD", Decimals: 8})
	registry.Register(Metadata{Address: token, Symbol: "NEW", Decimals: 18})

	md, ok := registry.Lookup(token)
	require.True(t, ok)
	assert.Equal(t, "NEW", md.Symbol)
	assert.Equal(t, 18, md.Decimals)
}

func TestResultOr(t *testing.T) {
	assert.Equal(t, 6, Ok(6).Or(18))
	assert.Equal(t, 18, Missing[int]().Or(18))

	_, ok := Missing[string]().Get()
	assert.False(t, ok)
}

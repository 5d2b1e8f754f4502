package ledger

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/messari/subgraphs-sub014/internal/config"
	"github.com/messari/subgraphs-sub014/internal/types"
)

func TestIsTreasuryRebase(t *testing.T) {
	treasury := common.HexToAddress("0x7777")
	rules := VersionRules{Treasury: treasury, UpgradeBlock: 1000}

	transfer := func(from, to common.Address, block uint64) *types.Event {
		return &types.Event{
			Kind:         types.EventTransfer,
			Context:      types.EventContext{BlockNumber: block},
			Account:      from,
			Counterparty: to,
		}
	}

	other := common.HexToAddress("0x1234")

	tests := []struct {
		name string
		ev   *types.Event
		want bool
	}{
		{"to treasury after upgrade", transfer(other, treasury, 2000), true},
		{"from treasury after upgrade", transfer(treasury, other, 2000), true},
		{"to treasury before upgrade", transfer(other, treasury, 500), false},
		{"between users after upgrade", transfer(other, common.HexToAddress("0x5678"), 2000), false},
		{"non-transfer kind", &types.Event{Kind: types.EventDeposit, Account: treasury, Context: types.EventContext{BlockNumber: 2000}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, rules.IsTreasuryRebase(tt.ev))
		})
	}

	t.Run("unset rules never fire", func(t *testing.T) {
		empty := VersionRules{}
		assert.False(t, empty.IsTreasuryRebase(transfer(other, treasury, 2000)))
	})
}

func TestRulesFromConfig(t *testing.T) {
	rules := RulesFromConfig(&config.ProtocolConfig{
		Treasury:     "0x0000000000000000000000000000000000007777",
		UpgradeBlock: 123,
	})
	assert.Equal(t, common.HexToAddress("0x7777"), rules.Treasury)
	assert.Equal(t, uint64(123), rules.UpgradeBlock)

	empty := RulesFromConfig(&config.ProtocolConfig{})
	assert.Equal(t, common.Address{}, empty.Treasury)
}

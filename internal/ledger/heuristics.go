package ledger

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/messari/subgraphs-sub014/internal/config"
	"github.com/messari/subgraphs-sub014/internal/types"
)

// VersionRules captures deployment-specific accounting quirks that cannot be
// read off the event stream itself.
type VersionRules struct {
	// Treasury is the protocol treasury address. Receipt-token transfers
	// touching it after UpgradeBlock are treasury interest materializing,
	// not user transfers.
	Treasury common.Address

	// UpgradeBlock is the block at which the deployment switched to minting
	// treasury interest through transfers. Zero means the rule never fires.
	UpgradeBlock uint64
}

// RulesFromConfig builds version rules from the protocol configuration
func RulesFromConfig(cfg *config.ProtocolConfig) VersionRules {
	var treasury common.Address
	if cfg.Treasury != "" {
		treasury = common.HexToAddress(cfg.Treasury)
	}
	return VersionRules{
		Treasury:     treasury,
		UpgradeBlock: cfg.UpgradeBlock,
	}
}

// IsTreasuryRebase reports whether a transfer event is treasury interest
// materializing rather than a user-to-user receipt-token move
func (r VersionRules) IsTreasuryRebase(ev *types.Event) bool {
	if ev.Kind != types.EventTransfer {
		return false
	}
	if r.Treasury == (common.Address{}) || r.UpgradeBlock == 0 {
		return false
	}
	if ev.Context.BlockNumber < r.UpgradeBlock {
		return false
	}
	return ev.Account == r.Treasury || ev.Counterparty == r.Treasury
}

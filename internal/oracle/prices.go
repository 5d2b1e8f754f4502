package oracle

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// LoadPricesFile seeds a static oracle from a JSON file mapping token
// addresses to USD prices, e.g. {"0xdAC1...": "1.0"}
func LoadPricesFile(path string) (*StaticOracle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prices file: %w", err)
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse prices file: %w", err)
	}

	o := NewStaticOracle()
	for addr, priceStr := range raw {
		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			return nil, fmt.Errorf("invalid price for %s: %w", addr, err)
		}
		o.SetPrice(common.HexToAddress(addr), price)
	}
	return o, nil
}

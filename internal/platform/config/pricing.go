package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const defaultShopShippingFee = 20000

// PricingTable holds the static fee schedule applied by the cart pricer.
// Amounts are in Vietnamese dong.
type PricingTable struct {
	// ShopShippingFee is the flat shipping fee charged per shop group.
	ShopShippingFee int64 `yaml:"shop_shipping_fee"`
	// ShopOverrides lists per-shop fee exceptions keyed by shop id.
	ShopOverrides map[string]int64 `yaml:"shop_overrides"`
}

// DefaultPricingTable returns the schedule used when no table file exists.
func DefaultPricingTable() PricingTable {
	return PricingTable{ShopShippingFee: defaultShopShippingFee}
}

// LoadPricingTable parses the YAML fee schedule at path. A missing file is
// not an error; the default schedule is returned instead.
func LoadPricingTable(path string) (PricingTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPricingTable(), nil
		}
		return PricingTable{}, fmt.Errorf("config: read pricing table: %w", err)
	}

	table := DefaultPricingTable()
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return PricingTable{}, fmt.Errorf("config: parse pricing table: %w", err)
	}
	if table.ShopShippingFee < 0 {
		return PricingTable{}, fmt.Errorf("config: shop shipping fee cannot be negative")
	}
	for shop, fee := range table.ShopOverrides {
		if fee < 0 {
			return PricingTable{}, fmt.Errorf("config: shipping fee for shop %s cannot be negative", shop)
		}
	}
	return table, nil
}

// FeeFor returns the flat shipping fee for the given shop.
func (t PricingTable) FeeFor(shopID string) int64 {
	if fee, ok := t.ShopOverrides[shopID]; ok {
		return fee
	}
	return t.ShopShippingFee
}

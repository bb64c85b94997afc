package enums

import "fmt"

// SaleKind distinguishes consumer sales from manufacturer-to-dealer supply.
type SaleKind string

const (
	SaleKindConsumer     SaleKind = "consumer"
	SaleKindDealerSupply SaleKind = "dealer_supply"
)

var validSaleKinds = []SaleKind{
	SaleKindConsumer,
	SaleKindDealerSupply,
}

// String implements fmt.Stringer.
func (k SaleKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known SaleKind.
func (k SaleKind) IsValid() bool {
	for _, candidate := range validSaleKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseSaleKind converts raw input into a SaleKind.
func ParseSaleKind(value string) (SaleKind, error) {
	for _, candidate := range validSaleKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sale kind %q", value)
}

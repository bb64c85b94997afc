package enums

import "fmt"

// StockStatus represents whether a stock entry is sellable.
type StockStatus string

const (
	StockStatusActive   StockStatus = "active"
	StockStatusInactive StockStatus = "inactive"
)

var validStockStatuses = []StockStatus{
	StockStatusActive,
	StockStatusInactive,
}

func (s StockStatus) String() string {
	return string(s)
}

func (s StockStatus) IsValid() bool {
	for _, candidate := range validStockStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseStockStatus converts raw input into a StockStatus.
func ParseStockStatus(value string) (StockStatus, error) {
	for _, candidate := range validStockStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock status %q", value)
}

// StockMovementKind records what caused a quantity change.
type StockMovementKind string

const (
	MovementSale           StockMovementKind = "sale"
	MovementSupply         StockMovementKind = "supply"
	MovementAdjustment     StockMovementKind = "adjustment"
	MovementReconciliation StockMovementKind = "reconciliation"
)

var validStockMovementKinds = []StockMovementKind{
	MovementSale,
	MovementSupply,
	MovementAdjustment,
	MovementReconciliation,
}

func (k StockMovementKind) String() string {
	return string(k)
}

func (k StockMovementKind) IsValid() bool {
	for _, candidate := range validStockMovementKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseStockMovementKind converts raw input into a StockMovementKind.
func ParseStockMovementKind(value string) (StockMovementKind, error) {
	for _, candidate := range validStockMovementKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stock movement kind %q", value)
}

// StockHoldStatus tracks a sale's reservation on a stock entry.
type StockHoldStatus string

const (
	StockHoldHeld     StockHoldStatus = "held"
	StockHoldSettled  StockHoldStatus = "settled"
	StockHoldReleased StockHoldStatus = "released"
)

var validStockHoldStatuses = []StockHoldStatus{
	StockHoldHeld,
	StockHoldSettled,
	StockHoldReleased,
}

func (s StockHoldStatus) IsValid() bool {
	for _, candidate := range validStockHoldStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

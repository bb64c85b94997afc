package enums

import "fmt"

// ReconciliationReason is the error kind that left a sale's stock delta unapplied.
type ReconciliationReason string

const (
	ReconciliationReasonConflict          ReconciliationReason = "conflict"
	ReconciliationReasonTransientIO       ReconciliationReason = "transient_io"
	ReconciliationReasonInsufficientStock ReconciliationReason = "insufficient_stock"
	ReconciliationReasonNotFound          ReconciliationReason = "not_found"
	ReconciliationReasonUnknown           ReconciliationReason = "unknown"
	ReconciliationReasonUnsettled         ReconciliationReason = "unsettled"
)

var validReconciliationReasons = []ReconciliationReason{
	ReconciliationReasonConflict,
	ReconciliationReasonTransientIO,
	ReconciliationReasonInsufficientStock,
	ReconciliationReasonNotFound,
	ReconciliationReasonUnknown,
	ReconciliationReasonUnsettled,
}

func (r ReconciliationReason) IsValid() bool {
	for _, candidate := range validReconciliationReasons {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseReconciliationReason converts raw input into a ReconciliationReason.
func ParseReconciliationReason(value string) (ReconciliationReason, error) {
	for _, candidate := range validReconciliationReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reconciliation reason %q", value)
}

// ReconciliationOperation names the stock ledger call to replay.
type ReconciliationOperation string

const (
	ReconciliationOpApplyDelta        ReconciliationOperation = "apply_delta"
	ReconciliationOpCreateOrIncrement ReconciliationOperation = "create_or_increment"
)

var validReconciliationOperations = []ReconciliationOperation{
	ReconciliationOpApplyDelta,
	ReconciliationOpCreateOrIncrement,
}

func (o ReconciliationOperation) IsValid() bool {
	for _, candidate := range validReconciliationOperations {
		if candidate == o {
			return true
		}
	}
	return false
}

package payloads

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/salesdesk-backend/pkg/enums"
)

// SaleCreatedEvent is emitted in the same transaction that persists a sale.
type SaleCreatedEvent struct {
	SaleID           uuid.UUID      `json:"sale_id"`
	Kind             enums.SaleKind `json:"kind"`
	ProductID        uuid.UUID      `json:"product_id"`
	DealerID         uuid.UUID      `json:"dealer_id"`
	CompanyID        uuid.UUID      `json:"company_id"`
	CustomerID       *uuid.UUID     `json:"customer_id,omitempty"`
	Quantity         int            `json:"quantity"`
	BatchNumber      *string        `json:"batch_number,omitempty"`
	WarrantyTillDays int            `json:"warranty_till_days"`
	CreatedAt        time.Time      `json:"created_at"`
}

// StockReconcileFailedEvent tells operators a sale's stock change is pending.
type StockReconcileFailedEvent struct {
	EntryID       uuid.UUID                     `json:"entry_id"`
	SaleID        uuid.UUID                     `json:"sale_id"`
	DealerID      uuid.UUID                     `json:"dealer_id"`
	ProductID     uuid.UUID                     `json:"product_id"`
	BatchNumber   string                        `json:"batch_number,omitempty"`
	Operation     enums.ReconciliationOperation `json:"operation"`
	ExpectedDelta int                           `json:"expected_delta"`
	Reason        enums.ReconciliationReason    `json:"reason"`
}

// ReconciliationResolvedEvent closes the loop on a StockReconcileFailedEvent.
type ReconciliationResolvedEvent struct {
	EntryID    uuid.UUID  `json:"entry_id"`
	SaleID     uuid.UUID  `json:"sale_id"`
	Attempts   int        `json:"attempts"`
	ResolvedBy *uuid.UUID `json:"resolved_by,omitempty"`
	ResolvedAt time.Time  `json:"resolved_at"`
}

// Subject returns the row the event was emitted for and the sale it
// belongs to. Every event of one sale shares that sale's ordering key on
// the topic.
func (e SaleCreatedEvent) Subject() (aggregateID, saleID uuid.UUID) {
	return e.SaleID, e.SaleID
}

// Attributes are copied onto the Pub/Sub message for subscription filters.
func (e SaleCreatedEvent) Attributes() map[string]string {
	attrs := map[string]string{
		"sale_kind":  string(e.Kind),
		"dealer_id":  e.DealerID.String(),
		"product_id": e.ProductID.String(),
		"quantity":   strconv.Itoa(e.Quantity),
	}
	if e.BatchNumber != nil && *e.BatchNumber != "" {
		attrs["batch_number"] = *e.BatchNumber
	}
	return attrs
}

func (e StockReconcileFailedEvent) Subject() (aggregateID, saleID uuid.UUID) {
	return e.EntryID, e.SaleID
}

func (e StockReconcileFailedEvent) Attributes() map[string]string {
	return map[string]string{
		"reconciliation_id": e.EntryID.String(),
		"operation":         string(e.Operation),
		"reason":            string(e.Reason),
		"expected_delta":    strconv.Itoa(e.ExpectedDelta),
		"dealer_id":         e.DealerID.String(),
		"product_id":        e.ProductID.String(),
	}
}

func (e ReconciliationResolvedEvent) Subject() (aggregateID, saleID uuid.UUID) {
	return e.EntryID, e.SaleID
}

// Attributes mark whether an operator closed the entry or the retrier did.
func (e ReconciliationResolvedEvent) Attributes() map[string]string {
	attrs := map[string]string{
		"reconciliation_id": e.EntryID.String(),
		"attempts":          strconv.Itoa(e.Attempts),
		"resolution":        "retry",
	}
	if e.ResolvedBy != nil {
		attrs["resolution"] = "manual"
		attrs["resolved_by"] = e.ResolvedBy.String()
	}
	return attrs
}

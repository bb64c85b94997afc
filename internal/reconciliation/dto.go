package reconciliation

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/salesdesk-backend/pkg/db/models"
	"github.com/angelmondragon/salesdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/salesdesk-backend/pkg/errors"
)

// RecordInput describes a stock change that could not be applied for a sale.
type RecordInput struct {
	SaleID        uuid.UUID
	DealerID      uuid.UUID
	ProductID     uuid.UUID
	BatchNumber   string
	Operation     enums.ReconciliationOperation
	ExpectedDelta int
	ReleaseHold   int
	Reason        enums.ReconciliationReason
	Err           error
}

func (in RecordInput) toModel() *models.ReconciliationEntry {
	reason := in.Reason
	if !reason.IsValid() {
		reason = ReasonFor(in.Err)
	}
	return &models.ReconciliationEntry{
		SaleID:        in.SaleID,
		DealerID:      in.DealerID,
		ProductID:     in.ProductID,
		BatchNumber:   in.BatchNumber,
		Operation:     in.Operation,
		ExpectedDelta: in.ExpectedDelta,
		ReleaseHold:   in.ReleaseHold,
		Reason:        reason,
		LastError:     errorText(in.Err),
	}
}

// ReasonFor classifies the error that stopped a stock change.
func ReasonFor(err error) enums.ReconciliationReason {
	switch {
	case err == nil:
		return enums.ReconciliationReasonUnknown
	case pkgerrors.IsCode(err, pkgerrors.CodeInsufficient):
		return enums.ReconciliationReasonInsufficientStock
	case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
		return enums.ReconciliationReasonConflict
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		return enums.ReconciliationReasonNotFound
	case pkgerrors.IsCode(err, pkgerrors.CodeDependency):
		return enums.ReconciliationReasonTransientIO
	}
	return enums.ReconciliationReasonUnknown
}

const maxErrorText = 1024

func errorText(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if len(msg) > maxErrorText {
		msg = msg[:maxErrorText]
	}
	return &msg
}

// EntryDTO is the API view of a reconciliation entry.
type EntryDTO struct {
	ID            uuid.UUID                     `json:"id"`
	SaleID        uuid.UUID                     `json:"sale_id"`
	DealerID      uuid.UUID                     `json:"dealer_id"`
	ProductID     uuid.UUID                     `json:"product_id"`
	BatchNumber   string                        `json:"batch_number,omitempty"`
	Operation     enums.ReconciliationOperation `json:"operation"`
	ExpectedDelta int                           `json:"expected_delta"`
	ReleaseHold   int                           `json:"release_hold"`
	Reason        enums.ReconciliationReason    `json:"reason"`
	LastError     *string                       `json:"last_error,omitempty"`
	Attempts      int                           `json:"attempts"`
	Resolved      bool                          `json:"resolved"`
	ResolvedAt    *time.Time                    `json:"resolved_at,omitempty"`
	ResolvedBy    *uuid.UUID                    `json:"resolved_by,omitempty"`
	CreatedAt     time.Time                     `json:"created_at"`
}

// FromModel maps an entry onto its DTO.
func FromModel(e *models.ReconciliationEntry) EntryDTO {
	return EntryDTO{
		ID:            e.ID,
		SaleID:        e.SaleID,
		DealerID:      e.DealerID,
		ProductID:     e.ProductID,
		BatchNumber:   e.BatchNumber,
		Operation:     e.Operation,
		ExpectedDelta: e.ExpectedDelta,
		ReleaseHold:   e.ReleaseHold,
		Reason:        e.Reason,
		LastError:     e.LastError,
		Attempts:      e.Attempts,
		Resolved:      e.Resolved,
		ResolvedAt:    e.ResolvedAt,
		ResolvedBy:    e.ResolvedBy,
		CreatedAt:     e.CreatedAt,
	}
}

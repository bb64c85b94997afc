package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/salesdesk-backend/pkg/enums"
)

// ReconciliationEntry records a sale whose stock change did not apply.
// At most one unresolved entry exists per sale.
type ReconciliationEntry struct {
	ID            uuid.UUID                     `gorm:"column:id;type:uuid;primaryKey"`
	SaleID        uuid.UUID                     `gorm:"column:sale_id;type:uuid;not null;uniqueIndex:ux_reconciliation_pending_sale,where:resolved = false"`
	DealerID      uuid.UUID                     `gorm:"column:dealer_id;type:uuid;not null"`
	ProductID     uuid.UUID                     `gorm:"column:product_id;type:uuid;not null"`
	BatchNumber   string                        `gorm:"column:batch_number;not null;default:''"`
	Operation     enums.ReconciliationOperation `gorm:"column:operation;type:text;not null"`
	ExpectedDelta int                           `gorm:"column:expected_delta;not null"`
	ReleaseHold   int                           `gorm:"column:release_hold;not null;default:0"`
	Reason        enums.ReconciliationReason    `gorm:"column:reason;type:text;not null"`
	LastError     *string                       `gorm:"column:last_error"`
	Attempts      int                           `gorm:"column:attempts;not null;default:0"`
	Resolved      bool                          `gorm:"column:resolved;not null;default:false;index:ix_reconciliation_pending,priority:1"`
	ResolvedAt    *time.Time                    `gorm:"column:resolved_at"`
	ResolvedBy    *uuid.UUID                    `gorm:"column:resolved_by;type:uuid"`
	CreatedAt     time.Time                     `gorm:"column:created_at;autoCreateTime;index:ix_reconciliation_pending,priority:2"`
	UpdatedAt     time.Time                     `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *ReconciliationEntry) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

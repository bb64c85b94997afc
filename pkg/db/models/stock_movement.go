package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/salesdesk-backend/pkg/enums"
)

// StockMovement journals every committed quantity change. A sale moves stock
// at most once, enforced by the unique sale_id.
type StockMovement struct {
	ID            uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	StockEntryID  uuid.UUID               `gorm:"column:stock_entry_id;type:uuid;not null;index"`
	SaleID        *uuid.UUID              `gorm:"column:sale_id;type:uuid;uniqueIndex:ux_stock_movements_sale_id"`
	Delta         int                     `gorm:"column:delta;not null"`
	QuantityAfter int                     `gorm:"column:quantity_after;not null"`
	Kind          enums.StockMovementKind `gorm:"column:kind;type:text;not null"`
	CreatedBy     *uuid.UUID              `gorm:"column:created_by;type:uuid"`
	CreatedAt     time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (m *StockMovement) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

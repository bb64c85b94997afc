package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/salesdesk-backend/pkg/enums"
)

// StockHold is the reservation a sale takes before it is persisted. Its
// Quantity is counted in the entry's Reserved until the hold is settled by
// the sale's stock change or released. A held row past ExpiresAt is picked
// up by the recovery sweep.
type StockHold struct {
	ID           uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	SaleID       uuid.UUID             `gorm:"column:sale_id;type:uuid;not null;uniqueIndex:ux_stock_holds_sale_id"`
	StockEntryID uuid.UUID             `gorm:"column:stock_entry_id;type:uuid;not null"`
	Quantity     int                   `gorm:"column:quantity;not null"`
	Status       enums.StockHoldStatus `gorm:"column:status;type:text;not null;default:'held'"`
	ExpiresAt    time.Time             `gorm:"column:expires_at;not null"`
	CreatedAt    time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (h *StockHold) BeforeCreate(*gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}

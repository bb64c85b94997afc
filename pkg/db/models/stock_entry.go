package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/salesdesk-backend/pkg/enums"
)

// StockEntry tracks a dealer's units of a product, optionally per batch.
// BatchNumber is empty when the holding is not batch-scoped. Reserved units
// are held by in-flight sales and are not sellable.
type StockEntry struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	DealerID    uuid.UUID         `gorm:"column:dealer_id;type:uuid;not null;uniqueIndex:ux_stock_entries_key,priority:1"`
	ProductID   uuid.UUID         `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_stock_entries_key,priority:2"`
	BatchNumber string            `gorm:"column:batch_number;not null;default:'';uniqueIndex:ux_stock_entries_key,priority:3"`
	Quantity    int               `gorm:"column:quantity;not null;default:0;check:chk_stock_entries_quantity,quantity >= 0"`
	Reserved    int               `gorm:"column:reserved;not null;default:0;check:chk_stock_entries_reserved,reserved >= 0 AND reserved <= quantity"`
	Status      enums.StockStatus `gorm:"column:status;type:text;not null;default:'active'"`
	Version     int64             `gorm:"column:version;not null;default:1"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// Available returns the sellable units.
func (e StockEntry) Available() int {
	if e.Status != enums.StockStatusActive {
		return 0
	}
	if avail := e.Quantity - e.Reserved; avail > 0 {
		return avail
	}
	return 0
}

func (e *StockEntry) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

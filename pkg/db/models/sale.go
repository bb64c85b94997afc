package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/salesdesk-backend/pkg/enums"
)

// Sale is an append-only record of units moving to a customer or a dealer.
// The id is assigned by the caller so a failed insert can be looked up.
type Sale struct {
	ID               uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Kind             enums.SaleKind `gorm:"column:kind;type:text;not null"`
	ProductID        uuid.UUID      `gorm:"column:product_id;type:uuid;not null;index:ix_sales_dealer_product,priority:2"`
	DealerID         uuid.UUID      `gorm:"column:dealer_id;type:uuid;not null;index:ix_sales_dealer_product,priority:1"`
	CompanyID        uuid.UUID      `gorm:"column:company_id;type:uuid;not null"`
	CustomerID       *uuid.UUID     `gorm:"column:customer_id;type:uuid;index"`
	Quantity         int            `gorm:"column:quantity;not null;check:chk_sales_quantity,quantity >= 1"`
	BatchNumber      *string        `gorm:"column:batch_number"`
	WarrantyTillDays int            `gorm:"column:warranty_till_days;not null;check:chk_sales_warranty,warranty_till_days >= 1"`
	CreatedBy        uuid.UUID      `gorm:"column:created_by;type:uuid;not null"`
	CreatedAt        time.Time      `gorm:"column:created_at;autoCreateTime"`
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/salesdesk-backend/pkg/enums"
)

// Customer is a consumer identified by a unique 10-digit contact number.
type Customer struct {
	ID        uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Name      string             `gorm:"column:name;not null"`
	Contact   string             `gorm:"column:contact;not null;uniqueIndex:ux_customers_contact"`
	Role      enums.CustomerRole `gorm:"column:role;type:text;not null;default:'customer'"`
	Address   *string            `gorm:"column:address"`
	Email     *string            `gorm:"column:email"`
	IsActive  bool               `gorm:"column:is_active;not null;default:true"`
	CreatedBy uuid.UUID          `gorm:"column:created_by;type:uuid;not null"`
	CreatedAt time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Customer) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

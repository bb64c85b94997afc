package sales

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/salesdesk-backend/pkg/db/models"
	"github.com/angelmondragon/salesdesk-backend/pkg/enums"
	"github.com/angelmondragon/salesdesk-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/salesdesk-backend/pkg/pagination"
)

// ListFilter narrows a sales listing.
type ListFilter struct {
	DealerID   *uuid.UUID
	ProductID  *uuid.UUID
	CustomerID *uuid.UUID
	Kind       enums.SaleKind
}

// ListInput is a filtered, cursor-paginated listing request.
type ListInput struct {
	Filter ListFilter
	Params pagination.Params
}

// SaleDTO is the API view of a sale.
type SaleDTO struct {
	ID               uuid.UUID      `json:"id"`
	Kind             enums.SaleKind `json:"kind"`
	ProductID        uuid.UUID      `json:"product_id"`
	DealerID         uuid.UUID      `json:"dealer_id"`
	CompanyID        uuid.UUID      `json:"company_id"`
	CustomerID       *uuid.UUID     `json:"customer_id,omitempty"`
	Quantity         int            `json:"quantity"`
	BatchNumber      *string        `json:"batch_number,omitempty"`
	WarrantyTillDays int            `json:"warranty_till_days"`
	WarrantyEndsAt   time.Time      `json:"warranty_ends_at"`
	CreatedBy        uuid.UUID      `json:"created_by"`
	CreatedAt        time.Time      `json:"created_at"`
}

// FromModel maps a sale onto its DTO.
func FromModel(s *models.Sale) SaleDTO {
	return SaleDTO{
		ID:               s.ID,
		Kind:             s.Kind,
		ProductID:        s.ProductID,
		DealerID:         s.DealerID,
		CompanyID:        s.CompanyID,
		CustomerID:       s.CustomerID,
		Quantity:         s.Quantity,
		BatchNumber:      s.BatchNumber,
		WarrantyTillDays: s.WarrantyTillDays,
		WarrantyEndsAt:   s.CreatedAt.AddDate(0, 0, s.WarrantyTillDays),
		CreatedBy:        s.CreatedBy,
		CreatedAt:        s.CreatedAt,
	}
}

func saleCreatedPayload(s *models.Sale) payloads.SaleCreatedEvent {
	return payloads.SaleCreatedEvent{
		SaleID:           s.ID,
		Kind:             s.Kind,
		ProductID:        s.ProductID,
		DealerID:         s.DealerID,
		CompanyID:        s.CompanyID,
		CustomerID:       s.CustomerID,
		Quantity:         s.Quantity,
		BatchNumber:      s.BatchNumber,
		WarrantyTillDays: s.WarrantyTillDays,
		CreatedAt:        s.CreatedAt,
	}
}

func position(s models.Sale) pagination.Cursor {
	return pagination.Cursor{CreatedAt: s.CreatedAt, ID: s.ID}
}

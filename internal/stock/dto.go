package stock

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/salesdesk-backend/pkg/db/models"
	"github.com/angelmondragon/salesdesk-backend/pkg/enums"
	"github.com/angelmondragon/salesdesk-backend/pkg/types"
	"github.com/angelmondragon/salesdesk-backend/pkg/validation"
)

// Key identifies one stock entry. An empty BatchNumber means the holding is
// not batch-scoped.
type Key struct {
	DealerID    uuid.UUID `json:"dealer_id" validate:"required"`
	ProductID   uuid.UUID `json:"product_id" validate:"required"`
	BatchNumber string    `json:"batch_number" validate:"max=64"`
}

// NewKey builds a key with a normalized batch number.
func NewKey(dealerID, productID uuid.UUID, batch string) Key {
	return Key{DealerID: dealerID, ProductID: productID, BatchNumber: strings.TrimSpace(batch)}
}

// Validate checks that the key names a dealer and a product.
func (k Key) Validate() error {
	return validation.Struct(k)
}

type options struct {
	saleID      *uuid.UUID
	releaseHold int
	kind        enums.StockMovementKind
	actor       *uuid.UUID
}

// Option tunes a quantity change.
type Option func(*options)

// WithSaleRef ties the change to a sale. A sale moves stock at most once;
// repeating the call is reported as success without changing quantities.
func WithSaleRef(saleID uuid.UUID) Option {
	return func(o *options) {
		id := saleID
		o.saleID = &id
	}
}

// WithHoldRelease settles n previously held units in the same update.
func WithHoldRelease(n int) Option {
	return func(o *options) { o.releaseHold = n }
}

// WithMovementKind labels the journal row.
func WithMovementKind(kind enums.StockMovementKind) Option {
	return func(o *options) { o.kind = kind }
}

// WithActor records who made the change.
func WithActor(actor types.Actor) Option {
	return func(o *options) { o.actor = actor.UserRef() }
}

func buildOptions(defaultKind enums.StockMovementKind, opts []Option) options {
	o := options{kind: defaultKind}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// EntryDTO is the API view of a stock entry.
type EntryDTO struct {
	ID          uuid.UUID         `json:"id"`
	DealerID    uuid.UUID         `json:"dealer_id"`
	ProductID   uuid.UUID         `json:"product_id"`
	BatchNumber string            `json:"batch_number"`
	Quantity    int               `json:"quantity"`
	Reserved    int               `json:"reserved"`
	Available   int               `json:"available"`
	Status      enums.StockStatus `json:"status"`
	Version     int64             `json:"version"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// EntryFromModel maps an entry onto its DTO.
func EntryFromModel(e *models.StockEntry) EntryDTO {
	return EntryDTO{
		ID:          e.ID,
		DealerID:    e.DealerID,
		ProductID:   e.ProductID,
		BatchNumber: e.BatchNumber,
		Quantity:    e.Quantity,
		Reserved:    e.Reserved,
		Available:   e.Available(),
		Status:      e.Status,
		Version:     e.Version,
		UpdatedAt:   e.UpdatedAt,
	}
}

// MovementDTO is the API view of a journal row.
type MovementDTO struct {
	ID            uuid.UUID               `json:"id"`
	SaleID        *uuid.UUID              `json:"sale_id,omitempty"`
	Delta         int                     `json:"delta"`
	QuantityAfter int                     `json:"quantity_after"`
	Kind          enums.StockMovementKind `json:"kind"`
	CreatedAt     time.Time               `json:"created_at"`
}

// MovementFromModel maps a journal row onto its DTO.
func MovementFromModel(m models.StockMovement) MovementDTO {
	return MovementDTO{
		ID:            m.ID,
		SaleID:        m.SaleID,
		Delta:         m.Delta,
		QuantityAfter: m.QuantityAfter,
		Kind:          m.Kind,
		CreatedAt:     m.CreatedAt,
	}
}

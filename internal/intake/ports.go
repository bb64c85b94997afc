package intake

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/salesdesk-backend/internal/reconciliation"
	"github.com/angelmondragon/salesdesk-backend/internal/stock"
	"github.com/angelmondragon/salesdesk-backend/pkg/db/models"
	"github.com/angelmondragon/salesdesk-backend/pkg/types"
)

// CustomerResolver finds or registers the buyer of a consumer sale.
type CustomerResolver interface {
	ResolveOrCreate(ctx context.Context, contact, name string, actor types.Actor) (*models.Customer, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Customer, error)
}

// StockLedger is the subset of the stock ledger the coordinator drives.
type StockLedger interface {
	Available(ctx context.Context, key stock.Key) (int, error)
	Hold(ctx context.Context, key stock.Key, saleID uuid.UUID, qty int, ttl time.Duration) (*models.StockHold, error)
	ReleaseHold(ctx context.Context, saleID uuid.UUID) (*models.StockHold, error)
	ApplyDelta(ctx context.Context, key stock.Key, delta int, opts ...stock.Option) (int, error)
	CreateOrIncrement(ctx context.Context, key stock.Key, amount int, opts ...stock.Option) (*models.StockEntry, error)
}

// SaleStore persists sales.
type SaleStore interface {
	Create(ctx context.Context, sale *models.Sale, actor types.Actor) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Sale, error)
}

// ReconciliationLog records stock changes that could not be applied.
type ReconciliationLog interface {
	Record(ctx context.Context, input reconciliation.RecordInput) (*models.ReconciliationEntry, error)
}

package sales

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/salesdesk-backend/internal/repo"
	"github.com/angelmondragon/salesdesk-backend/pkg/db/models"
	"github.com/angelmondragon/salesdesk-backend/pkg/pagination"
)

// Repository persists sales. Rows are only ever inserted.
type Repository struct {
	repo.Base
}

// NewRepository constructs a sales repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// WithTx scopes the repository to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Base.WithTx(tx)}
}

// Insert writes a new sale row.
func (r *Repository) Insert(ctx context.Context, sale *models.Sale) error {
	return r.DB(ctx).Create(sale).Error
}

// FindByID loads a sale by id.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Sale, error) {
	var sale models.Sale
	if err := r.DB(ctx).First(&sale, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &sale, nil
}

// List returns sales matching filter, newest first, with one buffer row.
func (r *Repository) List(ctx context.Context, filter ListFilter, cursor *pagination.Cursor, limit int) ([]models.Sale, error) {
	q := r.DB(ctx).Model(&models.Sale{})
	if filter.DealerID != nil {
		q = q.Where("dealer_id = ?", *filter.DealerID)
	}
	if filter.ProductID != nil {
		q = q.Where("product_id = ?", *filter.ProductID)
	}
	if filter.CustomerID != nil {
		q = q.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.Kind != "" {
		q = q.Where("kind = ?", filter.Kind)
	}

	var rows []models.Sale
	if err := q.Scopes(pagination.Keyset(cursor, limit)).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListUnsettled returns sales created before cutoff that neither moved stock
// nor have a reconciliation entry, oldest first.
func (r *Repository) ListUnsettled(ctx context.Context, cutoff time.Time, limit int) ([]models.Sale, error) {
	var rows []models.Sale
	err := r.DB(ctx).
		Where("created_at < ?", cutoff).
		Where("NOT EXISTS (SELECT 1 FROM stock_movements m WHERE m.sale_id = sales.id)").
		Where("NOT EXISTS (SELECT 1 FROM reconciliation_entries e WHERE e.sale_id = sales.id)").
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

package stock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/salesdesk-backend/internal/repo"
	"github.com/angelmondragon/salesdesk-backend/pkg/db/models"
	"github.com/angelmondragon/salesdesk-backend/pkg/enums"
)

// Repository holds the row-level stock queries. Every write is a
// version-guarded update; callers decide what a lost race means.
type Repository struct {
	repo.Base
}

// NewRepository constructs a stock repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// WithTx scopes the repository to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Base.WithTx(tx)}
}

// FindEntry loads the entry for key.
func (r *Repository) FindEntry(ctx context.Context, key Key) (*models.StockEntry, error) {
	var entry models.StockEntry
	err := r.DB(ctx).
		Where("dealer_id = ? AND product_id = ? AND batch_number = ?", key.DealerID, key.ProductID, key.BatchNumber).
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// InsertEntry creates a new entry row.
func (r *Repository) InsertEntry(ctx context.Context, entry *models.StockEntry) error {
	return r.DB(ctx).Create(entry).Error
}

// CompareAndSwap writes quantity and reserved only if the row still carries
// entry.Version. It reports false when another writer got there first.
func (r *Repository) CompareAndSwap(ctx context.Context, entry *models.StockEntry, quantity, reserved int) (bool, error) {
	res := r.DB(ctx).
		Model(&models.StockEntry{}).
		Where("id = ? AND version = ?", entry.ID, entry.Version).
		Updates(map[string]any{
			"quantity":   quantity,
			"reserved":   reserved,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	entry.Quantity = quantity
	entry.Reserved = reserved
	entry.Version++
	return true, nil
}

// InsertMovement journals a committed quantity change.
func (r *Repository) InsertMovement(ctx context.Context, movement *models.StockMovement) error {
	return r.DB(ctx).Create(movement).Error
}

// FindMovementBySale returns the movement a sale already produced, if any.
func (r *Repository) FindMovementBySale(ctx context.Context, saleID uuid.UUID) (*models.StockMovement, error) {
	var movement models.StockMovement
	if err := r.DB(ctx).Where("sale_id = ?", saleID).First(&movement).Error; err != nil {
		return nil, err
	}
	return &movement, nil
}

// ListMovementsBySale returns the movements tied to a sale, oldest first.
func (r *Repository) ListMovementsBySale(ctx context.Context, saleID uuid.UUID) ([]models.StockMovement, error) {
	var movements []models.StockMovement
	if err := r.DB(ctx).Where("sale_id = ?", saleID).Order("created_at ASC").Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}

// ListMovementsByEntry returns an entry's journal, newest first.
func (r *Repository) ListMovementsByEntry(ctx context.Context, entryID uuid.UUID, limit int) ([]models.StockMovement, error) {
	var movements []models.StockMovement
	q := r.DB(ctx).Where("stock_entry_id = ?", entryID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&movements).Error; err != nil {
		return nil, err
	}
	return movements, nil
}

// FindEntryByID loads an entry by id.
func (r *Repository) FindEntryByID(ctx context.Context, id uuid.UUID) (*models.StockEntry, error) {
	var entry models.StockEntry
	if err := r.DB(ctx).First(&entry, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// InsertHold records a sale's reservation.
func (r *Repository) InsertHold(ctx context.Context, hold *models.StockHold) error {
	return r.DB(ctx).Create(hold).Error
}

// FindHoldBySale returns the reservation a sale took, if any.
func (r *Repository) FindHoldBySale(ctx context.Context, saleID uuid.UUID) (*models.StockHold, error) {
	var hold models.StockHold
	if err := r.DB(ctx).Where("sale_id = ?", saleID).First(&hold).Error; err != nil {
		return nil, err
	}
	return &hold, nil
}

// CloseHold moves a held reservation to status. It reports false when the
// hold was no longer held.
func (r *Repository) CloseHold(ctx context.Context, hold *models.StockHold, status enums.StockHoldStatus) (bool, error) {
	now := time.Now().UTC()
	res := r.DB(ctx).
		Model(&models.StockHold{}).
		Where("id = ? AND status = ?", hold.ID, enums.StockHoldHeld).
		Updates(map[string]any{"status": status, "updated_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	hold.Status = status
	hold.UpdatedAt = now
	return true, nil
}

// ListExpiredHolds returns held reservations that expired before asOf,
// oldest first.
func (r *Repository) ListExpiredHolds(ctx context.Context, asOf time.Time, limit int) ([]models.StockHold, error) {
	var holds []models.StockHold
	q := r.DB(ctx).
		Where("status = ? AND expires_at < ?", enums.StockHoldHeld, asOf).
		Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&holds).Error; err != nil {
		return nil, err
	}
	return holds, nil
}

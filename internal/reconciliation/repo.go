package reconciliation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/salesdesk-backend/internal/repo"
	"github.com/angelmondragon/salesdesk-backend/pkg/db/models"
)

// Repository persists reconciliation entries.
type Repository struct {
	repo.Base
}

// NewRepository constructs a reconciliation repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// WithTx scopes the repository to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Base.WithTx(tx)}
}

// Insert writes a new entry.
func (r *Repository) Insert(ctx context.Context, entry *models.ReconciliationEntry) error {
	return r.DB(ctx).Create(entry).Error
}

// FindByID loads an entry by id.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ReconciliationEntry, error) {
	var entry models.ReconciliationEntry
	if err := r.DB(ctx).First(&entry, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// FindUnresolvedBySale returns the open entry for a sale.
func (r *Repository) FindUnresolvedBySale(ctx context.Context, saleID uuid.UUID) (*models.ReconciliationEntry, error) {
	var entry models.ReconciliationEntry
	if err := r.DB(ctx).Where("sale_id = ? AND resolved = ?", saleID, false).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListUnresolved returns open entries, oldest first.
func (r *Repository) ListUnresolved(ctx context.Context, limit int) ([]models.ReconciliationEntry, error) {
	var entries []models.ReconciliationEntry
	q := r.DB(ctx).Where("resolved = ?", false).Order("created_at ASC").Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// CountUnresolved returns how many entries are still open.
func (r *Repository) CountUnresolved(ctx context.Context) (int64, error) {
	var count int64
	err := r.DB(ctx).Model(&models.ReconciliationEntry{}).Where("resolved = ?", false).Count(&count).Error
	return count, err
}

// MarkResolved closes an open entry. It reports false when the entry was
// already resolved.
func (r *Repository) MarkResolved(ctx context.Context, id uuid.UUID, by *uuid.UUID, at time.Time) (bool, error) {
	res := r.DB(ctx).
		Model(&models.ReconciliationEntry{}).
		Where("id = ? AND resolved = ?", id, false).
		Updates(map[string]any{
			"resolved":    true,
			"resolved_at": at,
			"resolved_by": by,
			"updated_at":  at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// IncrementAttempts bumps the attempt counter and stores the latest failure.
func (r *Repository) IncrementAttempts(ctx context.Context, id uuid.UUID, lastError *string) error {
	return r.DB(ctx).
		Model(&models.ReconciliationEntry{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": lastError,
			"updated_at": time.Now().UTC(),
		}).Error
}

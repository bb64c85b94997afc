package customers

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/salesdesk-backend/internal/repo"
	"github.com/angelmondragon/salesdesk-backend/pkg/db/models"
)

// Repository persists customers.
type Repository struct {
	repo.Base
}

// NewRepository constructs a customers repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// FindByContact loads the customer registered under contact.
func (r *Repository) FindByContact(ctx context.Context, contact string) (*models.Customer, error) {
	var customer models.Customer
	if err := r.DB(ctx).Where("contact = ?", contact).First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

// FindByID loads a customer by id.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	if err := r.DB(ctx).First(&customer, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

// Create inserts a customer row. Unique violations are returned as-is.
func (r *Repository) Create(ctx context.Context, customer *models.Customer) error {
	return r.DB(ctx).Create(customer).Error
}

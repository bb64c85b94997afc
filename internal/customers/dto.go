package customers

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/salesdesk-backend/pkg/db/models"
	"github.com/angelmondragon/salesdesk-backend/pkg/enums"
	"github.com/angelmondragon/salesdesk-backend/pkg/types"
)

// ContactRule is the validator tag every customer contact must satisfy.
const ContactRule = "required,len=10,numeric"

// CreateInput holds the fields needed to register a customer.
type CreateInput struct {
	Contact string             `json:"contact" validate:"required,len=10,numeric"`
	Name    string             `json:"name" validate:"required,max=120"`
	Role    enums.CustomerRole `json:"role" validate:"omitempty,oneof=customer dealer"`
	Address *string            `json:"address,omitempty" validate:"omitempty,max=500"`
	Email   *string            `json:"email,omitempty" validate:"omitempty,email"`
	Actor   types.Actor        `json:"-" validate:"-"`
}

func (in CreateInput) normalized() CreateInput {
	in.Contact = NormalizeContact(in.Contact)
	in.Name = strings.TrimSpace(in.Name)
	if in.Role == "" {
		in.Role = enums.CustomerRoleCustomer
	}
	return in
}

func (in CreateInput) toModel() *models.Customer {
	return &models.Customer{
		Name:      in.Name,
		Contact:   in.Contact,
		Role:      in.Role,
		Address:   in.Address,
		Email:     in.Email,
		IsActive:  true,
		CreatedBy: in.Actor.UserID,
	}
}

// NormalizeContact strips surrounding whitespace from a contact number.
func NormalizeContact(contact string) string {
	return strings.TrimSpace(contact)
}

// CustomerDTO is the API representation of a customer.
type CustomerDTO struct {
	ID        uuid.UUID          `json:"id"`
	Name      string             `json:"name"`
	Contact   string             `json:"contact"`
	Role      enums.CustomerRole `json:"role"`
	Address   *string            `json:"address,omitempty"`
	Email     *string            `json:"email,omitempty"`
	IsActive  bool               `json:"is_active"`
	CreatedAt time.Time          `json:"created_at"`
}

// FromModel maps a persisted customer onto its DTO.
func FromModel(c *models.Customer) CustomerDTO {
	return CustomerDTO{
		ID:        c.ID,
		Name:      c.Name,
		Contact:   c.Contact,
		Role:      c.Role,
		Address:   c.Address,
		Email:     c.Email,
		IsActive:  c.IsActive,
		CreatedAt: c.CreatedAt,
	}
}

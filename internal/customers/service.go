package customers

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/salesdesk-backend/pkg/db"
	"github.com/angelmondragon/salesdesk-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/salesdesk-backend/pkg/errors"
	"github.com/angelmondragon/salesdesk-backend/pkg/logger"
	"github.com/angelmondragon/salesdesk-backend/pkg/types"
	"github.com/angelmondragon/salesdesk-backend/pkg/validation"
)

const contactConstraint = "ux_customers_contact"

// Service resolves customers by contact and creates them idempotently.
type Service interface {
	Resolve(ctx context.Context, contact string) (*models.Customer, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	Create(ctx context.Context, input CreateInput) (*models.Customer, error)
	ResolveOrCreate(ctx context.Context, contact, name string, actor types.Actor) (*models.Customer, error)
}

type repository interface {
	FindByContact(ctx context.Context, contact string) (*models.Customer, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	Create(ctx context.Context, customer *models.Customer) error
}

type service struct {
	repo repository
	logg *logger.Logger
}

// NewService constructs the customer resolver.
func NewService(repo repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("customer repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) Resolve(ctx context.Context, contact string) (*models.Customer, error) {
	contact = NormalizeContact(contact)
	if err := validation.Var("contact", contact, ContactRule); err != nil {
		return nil, err
	}
	customer, err := s.repo.FindByContact(ctx, contact)
	if err != nil {
		return nil, mapLookupError(err, "customer not found")
	}
	return customer, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	customer, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupError(err, "customer not found")
	}
	return customer, nil
}

// Create inserts the customer, or returns the row that already owns the
// contact when a concurrent create won the unique index.
func (s *service) Create(ctx context.Context, input CreateInput) (*models.Customer, error) {
	input = input.normalized()
	if err := validation.Struct(input); err != nil {
		return nil, err
	}

	customer := input.toModel()
	err := s.repo.Create(ctx, customer)
	if err == nil {
		s.logg.Info(s.logg.WithField(ctx, "customer_id", customer.ID.String()), "customer created")
		return customer, nil
	}
	if !db.IsUniqueViolation(err, contactConstraint) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create customer")
	}

	existing, lookupErr := s.repo.FindByContact(ctx, input.Contact)
	if lookupErr != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, lookupErr, "load customer after duplicate contact")
	}
	s.logg.Debug(s.logg.WithField(ctx, "customer_id", existing.ID.String()), "customer already registered for contact")
	return existing, nil
}

func (s *service) ResolveOrCreate(ctx context.Context, contact, name string, actor types.Actor) (*models.Customer, error) {
	customer, err := s.Resolve(ctx, contact)
	if err == nil {
		return customer, nil
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return nil, err
	}
	return s.Create(ctx, CreateInput{
		Contact: contact,
		Name:    name,
		Actor:   actor,
	})
}

func mapLookupError(err error, notFoundMsg string) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFoundMsg)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
}

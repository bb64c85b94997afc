package intake

import (
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/salesdesk-backend/internal/customers"
	"github.com/angelmondragon/salesdesk-backend/internal/sales"
	pkgerrors "github.com/angelmondragon/salesdesk-backend/pkg/errors"
	"github.com/angelmondragon/salesdesk-backend/pkg/types"
	"github.com/angelmondragon/salesdesk-backend/pkg/validation"
)

// State is a step of the intake workflow.
type State string

const (
	StateValidating           State = "VALIDATING"
	StateCustomerResolved     State = "CUSTOMER_RESOLVED"
	StateStockChecked         State = "STOCK_CHECKED"
	StateSaleCreated          State = "SALE_CREATED"
	StateStockReconciled      State = "STOCK_RECONCILED"
	StateStockReconcileFailed State = "STOCK_RECONCILE_FAILED"
)

// ConsumerIntake is a sale from a dealer to an end customer. Exactly one of
// CustomerID and CustomerContact identifies the buyer.
type ConsumerIntake struct {
	ProductID        uuid.UUID  `json:"product_id" validate:"required"`
	DealerID         uuid.UUID  `json:"dealer_id" validate:"required"`
	CompanyID        uuid.UUID  `json:"company_id" validate:"required"`
	Quantity         int        `json:"quantity" validate:"gt=0"`
	WarrantyTillDays int        `json:"warranty_till_days" validate:"gte=1"`
	BatchNumber      string     `json:"batch_number" validate:"max=64"`
	CustomerID       *uuid.UUID `json:"customer_id"`
	CustomerContact  string     `json:"customer_contact" validate:"omitempty,len=10,numeric"`
	CustomerName     string     `json:"customer_name" validate:"max=120"`
}

func (in ConsumerIntake) normalized() ConsumerIntake {
	in.BatchNumber = strings.TrimSpace(in.BatchNumber)
	in.CustomerContact = customers.NormalizeContact(in.CustomerContact)
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	if in.CustomerID != nil && *in.CustomerID == uuid.Nil {
		in.CustomerID = nil
	}
	return in
}

func (in ConsumerIntake) validate() error {
	if err := validation.Struct(in); err != nil {
		return err
	}
	switch {
	case in.CustomerID == nil && in.CustomerContact == "":
		return customerChoiceError("customer_id or customer_contact is required")
	case in.CustomerID != nil && in.CustomerContact != "":
		return customerChoiceError("provide customer_id or customer_contact, not both")
	}
	return nil
}

func customerChoiceError(msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
		WithDetails(map[string]string{"customer": msg})
}

// SupplyIntake is a batch sale from a manufacturer into a dealer's stock.
type SupplyIntake struct {
	ProductID        uuid.UUID `json:"product_id" validate:"required"`
	DealerID         uuid.UUID `json:"dealer_id" validate:"required"`
	CompanyID        uuid.UUID `json:"company_id" validate:"required"`
	Quantity         int       `json:"quantity" validate:"gt=0"`
	WarrantyTillDays int       `json:"warranty_till_days" validate:"gte=1"`
	BatchNumber      string    `json:"batch_number" validate:"required,max=64"`
}

func (in SupplyIntake) normalized() SupplyIntake {
	in.BatchNumber = strings.TrimSpace(in.BatchNumber)
	return in
}

func (in SupplyIntake) validate() error {
	return validation.Struct(in)
}

func validateActor(actor types.Actor) error {
	if !actor.Valid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
			WithDetails(map[string]string{"actor": "a known user and role are required"})
	}
	return nil
}

// SaleResult is the outcome of a completed intake. A sale that was stored
// but whose stock change is still owed has Reconciled false and a Warning.
type SaleResult struct {
	Sale             sales.SaleDTO          `json:"sale"`
	Customer         *customers.CustomerDTO `json:"customer,omitempty"`
	State            State                  `json:"state"`
	Reconciled       bool                   `json:"reconciled"`
	Warning          string                 `json:"warning,omitempty"`
	ReconciliationID *uuid.UUID             `json:"reconciliation_id,omitempty"`
}

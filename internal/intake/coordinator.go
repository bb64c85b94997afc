// Package intake runs the sale-intake workflow: validate, resolve the
// customer, reserve stock, persist the sale, then settle the stock change or
// hand it to the reconciliation log.
package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/salesdesk-backend/internal/customers"
	"github.com/angelmondragon/salesdesk-backend/internal/reconciliation"
	"github.com/angelmondragon/salesdesk-backend/internal/sales"
	"github.com/angelmondragon/salesdesk-backend/internal/stock"
	"github.com/angelmondragon/salesdesk-backend/pkg/backoff"
	"github.com/angelmondragon/salesdesk-backend/pkg/db"
	"github.com/angelmondragon/salesdesk-backend/pkg/db/models"
	"github.com/angelmondragon/salesdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/salesdesk-backend/pkg/errors"
	"github.com/angelmondragon/salesdesk-backend/pkg/logger"
	"github.com/angelmondragon/salesdesk-backend/pkg/metrics"
	"github.com/angelmondragon/salesdesk-backend/pkg/types"
)

const (
	defaultStepTimeout = 5 * time.Second

	flowConsumer = "consumer"
	flowSupply   = "supply"

	outcomeReconciled   = "reconciled"
	outcomeDeferred     = "reconcile_deferred"
	outcomeInvalid      = "validation_failed"
	outcomeInsufficient = "insufficient_stock"
	outcomeConflict     = "conflict"
	outcomeNotFound     = "not_found"
	outcomeFailed       = "failed"

	reconcileWarning = "sale recorded; stock update is pending reconciliation"

	holdReleasedIntake = "intake"
)

// unconfirmedError marks a sale insert that neither succeeded nor provably
// failed.
type unconfirmedError struct {
	err error
}

func (e *unconfirmedError) Error() string { return e.err.Error() }

func (e *unconfirmedError) Unwrap() error { return e.err }

// Params wires a Coordinator.
type Params struct {
	Customers      CustomerResolver
	Stock          StockLedger
	Sales          SaleStore
	Reconciliation ReconciliationLog
	Policy         backoff.Policy
	StepTimeout    time.Duration
	HoldTTL        time.Duration
	Metrics        *metrics.IntakeMetrics
	Logger         *logger.Logger
	NewID          func() uuid.UUID
}

// Coordinator drives one sale through the intake states.
type Coordinator struct {
	customers   CustomerResolver
	stock       StockLedger
	sales       SaleStore
	recon       ReconciliationLog
	policy      backoff.Policy
	stepTimeout time.Duration
	holdTTL     time.Duration
	metrics     *metrics.IntakeMetrics
	logg        *logger.Logger
	newID       func() uuid.UUID
}

func NewCoordinator(p Params) (*Coordinator, error) {
	switch {
	case p.Customers == nil:
		return nil, fmt.Errorf("customer resolver required")
	case p.Stock == nil:
		return nil, fmt.Errorf("stock ledger required")
	case p.Sales == nil:
		return nil, fmt.Errorf("sale store required")
	case p.Reconciliation == nil:
		return nil, fmt.Errorf("reconciliation log required")
	}
	if p.StepTimeout <= 0 {
		p.StepTimeout = defaultStepTimeout
	}
	if p.HoldTTL <= 0 {
		p.HoldTTL = stock.DefaultHoldTTL
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.NewID == nil {
		p.NewID = uuid.New
	}
	return &Coordinator{
		customers:   p.Customers,
		stock:       p.Stock,
		sales:       p.Sales,
		recon:       p.Reconciliation,
		policy:      p.Policy,
		stepTimeout: p.StepTimeout,
		holdTTL:     p.HoldTTL,
		metrics:     p.Metrics,
		logg:        p.Logger,
		newID:       p.NewID,
	}, nil
}

// CreateSale records a consumer sale and takes its units out of the
// dealer's stock.
func (c *Coordinator) CreateSale(ctx context.Context, actor types.Actor, in ConsumerIntake) (*SaleResult, error) {
	in = in.normalized()
	if err := validateActor(actor); err != nil {
		return nil, c.fail(ctx, flowConsumer, StateValidating, err)
	}
	if err := in.validate(); err != nil {
		return nil, c.fail(ctx, flowConsumer, StateValidating, err)
	}
	ctx = c.logg.WithStockKey(c.logg.WithField(ctx, "flow", flowConsumer), in.DealerID, in.ProductID, "")

	var customer *models.Customer
	err := c.call(ctx, StateCustomerResolved, func(ctx context.Context) error {
		var err error
		if in.CustomerID != nil {
			customer, err = c.customers.Get(ctx, *in.CustomerID)
		} else {
			customer, err = c.customers.ResolveOrCreate(ctx, in.CustomerContact, in.CustomerName, actor)
		}
		return err
	})
	if err != nil {
		return nil, c.fail(ctx, flowConsumer, StateCustomerResolved, err)
	}

	saleID := c.newID()
	key := stock.NewKey(in.DealerID, in.ProductID, in.BatchNumber)
	if err := c.reserve(ctx, key, saleID, in.Quantity); err != nil {
		return nil, c.fail(ctx, flowConsumer, StateStockChecked, err)
	}

	pending := reconciliation.RecordInput{
		SaleID:        saleID,
		DealerID:      key.DealerID,
		ProductID:     key.ProductID,
		BatchNumber:   key.BatchNumber,
		Operation:     enums.ReconciliationOpApplyDelta,
		ExpectedDelta: -in.Quantity,
		ReleaseHold:   in.Quantity,
	}
	sale := &models.Sale{
		ID:               saleID,
		Kind:             enums.SaleKindConsumer,
		ProductID:        in.ProductID,
		DealerID:         in.DealerID,
		CompanyID:        in.CompanyID,
		CustomerID:       &customer.ID,
		Quantity:         in.Quantity,
		BatchNumber:      optional(in.BatchNumber),
		WarrantyTillDays: in.WarrantyTillDays,
	}
	sale, err = c.persist(ctx, sale, actor)
	if err != nil {
		var unconfirmed *unconfirmedError
		if errors.As(err, &unconfirmed) {
			pending.Err = unconfirmed.err
			return nil, c.fail(ctx, flowConsumer, StateSaleCreated, c.deferUnconfirmed(ctx, pending))
		}
		c.releaseHold(ctx, saleID)
		return nil, c.fail(ctx, flowConsumer, StateSaleCreated, err)
	}

	ctx = c.logg.WithSale(context.WithoutCancel(ctx), sale.ID)
	result := &SaleResult{Sale: sales.FromModel(sale), State: StateSaleCreated}
	dto := customers.FromModel(customer)
	result.Customer = &dto

	applyErr := c.settle(ctx, func(ctx context.Context) error {
		_, err := c.stock.ApplyDelta(ctx, key, -in.Quantity,
			stock.WithSaleRef(sale.ID),
			stock.WithHoldRelease(in.Quantity),
			stock.WithMovementKind(enums.MovementSale),
			stock.WithActor(actor),
		)
		return err
	}, string(enums.ReconciliationOpApplyDelta))
	if applyErr == nil {
		return c.reconciled(ctx, flowConsumer, result), nil
	}

	pending.Err = applyErr
	return c.deferStock(ctx, flowConsumer, result, pending), nil
}

// CreateSupplySale records a batch moving from a manufacturer to a dealer
// and adds it to the dealer's stock.
func (c *Coordinator) CreateSupplySale(ctx context.Context, actor types.Actor, in SupplyIntake) (*SaleResult, error) {
	in = in.normalized()
	if err := validateActor(actor); err != nil {
		return nil, c.fail(ctx, flowSupply, StateValidating, err)
	}
	if err := in.validate(); err != nil {
		return nil, c.fail(ctx, flowSupply, StateValidating, err)
	}
	ctx = c.logg.WithStockKey(c.logg.WithField(ctx, "flow", flowSupply), in.DealerID, in.ProductID, in.BatchNumber)

	key := stock.NewKey(in.DealerID, in.ProductID, in.BatchNumber)
	pending := reconciliation.RecordInput{
		DealerID:      key.DealerID,
		ProductID:     key.ProductID,
		BatchNumber:   key.BatchNumber,
		Operation:     enums.ReconciliationOpCreateOrIncrement,
		ExpectedDelta: in.Quantity,
	}
	sale := &models.Sale{
		ID:               c.newID(),
		Kind:             enums.SaleKindDealerSupply,
		ProductID:        in.ProductID,
		DealerID:         in.DealerID,
		CompanyID:        in.CompanyID,
		Quantity:         in.Quantity,
		BatchNumber:      optional(in.BatchNumber),
		WarrantyTillDays: in.WarrantyTillDays,
	}
	pending.SaleID = sale.ID
	sale, err := c.persist(ctx, sale, actor)
	if err != nil {
		var unconfirmed *unconfirmedError
		if errors.As(err, &unconfirmed) {
			pending.Err = unconfirmed.err
			return nil, c.fail(ctx, flowSupply, StateSaleCreated, c.deferUnconfirmed(ctx, pending))
		}
		return nil, c.fail(ctx, flowSupply, StateSaleCreated, err)
	}

	ctx = c.logg.WithSale(context.WithoutCancel(ctx), sale.ID)
	result := &SaleResult{Sale: sales.FromModel(sale), State: StateSaleCreated}

	applyErr := c.settle(ctx, func(ctx context.Context) error {
		_, err := c.stock.CreateOrIncrement(ctx, key, in.Quantity,
			stock.WithSaleRef(sale.ID),
			stock.WithMovementKind(enums.MovementSupply),
			stock.WithActor(actor),
		)
		return err
	}, string(enums.ReconciliationOpCreateOrIncrement))
	if applyErr == nil {
		return c.reconciled(ctx, flowSupply, result), nil
	}

	pending.Err = applyErr
	return c.deferStock(ctx, flowSupply, result, pending), nil
}

// reserve checks availability and holds qty units for the sale, retrying
// lost races.
func (c *Coordinator) reserve(ctx context.Context, key stock.Key, saleID uuid.UUID, qty int) error {
	var available int
	err := c.call(ctx, StateStockChecked, func(ctx context.Context) error {
		var err error
		available, err = c.stock.Available(ctx, key)
		return err
	})
	if err != nil {
		return err
	}
	if available < qty {
		return pkgerrors.New(pkgerrors.CodeInsufficient, "insufficient stock").
			WithDetails(map[string]any{"available": available, "requested": qty})
	}

	return c.policy.Do(ctx, isConflict, func(ctx context.Context) error {
		err := c.call(ctx, StateStockChecked, func(ctx context.Context) error {
			_, err := c.stock.Hold(ctx, key, saleID, qty, c.holdTTL)
			return err
		})
		if isConflict(err) {
			c.metrics.IncConflict("hold")
		}
		return err
	})
}

// persist stores the sale. A failure that may have committed anyway is
// checked with one lookup by id; when that lookup fails too the error is an
// *unconfirmedError.
func (c *Coordinator) persist(ctx context.Context, sale *models.Sale, actor types.Actor) (*models.Sale, error) {
	err := c.call(ctx, StateSaleCreated, func(ctx context.Context) error {
		return c.sales.Create(ctx, sale, actor)
	})
	if err == nil {
		return sale, nil
	}
	if !isTransient(err) {
		return nil, err
	}

	var existing *models.Sale
	lookupErr := c.call(context.WithoutCancel(ctx), StateSaleCreated, func(ctx context.Context) error {
		var err error
		existing, err = c.sales.FindByID(ctx, sale.ID)
		return err
	})
	switch {
	case lookupErr == nil:
		c.logg.Warn(c.logg.WithSale(ctx, sale.ID), "sale insert reported failure but row exists")
		return existing, nil
	case pkgerrors.IsCode(lookupErr, pkgerrors.CodeNotFound):
		return nil, err
	}
	c.logg.Error(c.logg.WithSale(ctx, sale.ID), "could not confirm sale insert", lookupErr)
	return nil, &unconfirmedError{err: err}
}

// settle applies the sale's stock change, retrying conflicts and transient
// failures. Insufficient stock is returned at once.
func (c *Coordinator) settle(ctx context.Context, apply func(ctx context.Context) error, operation string) error {
	return c.policy.Do(ctx, isRetryableSettle, func(ctx context.Context) error {
		err := c.call(ctx, StateStockReconciled, apply)
		if isConflict(err) {
			c.metrics.IncConflict(operation)
		}
		return err
	})
}

// releaseHold returns the sale's held units. A hold that cannot be released
// now stays until the recovery sweep finds it expired.
func (c *Coordinator) releaseHold(ctx context.Context, saleID uuid.UUID) {
	ctx = c.logg.WithSale(context.WithoutCancel(ctx), saleID)
	err := c.policy.Do(ctx, isConflict, func(ctx context.Context) error {
		return c.call(ctx, StateStockChecked, func(ctx context.Context) error {
			_, err := c.stock.ReleaseHold(ctx, saleID)
			return err
		})
	})
	if err != nil {
		c.logg.Error(ctx, "failed to release stock hold; left for expiry", err)
		return
	}
	c.metrics.IncHoldReleased(holdReleasedIntake)
}

// deferUnconfirmed records the stock change of a sale whose insert may have
// committed. The hold stays; the retrier applies the change if the sale
// exists and releases the hold if it does not.
func (c *Coordinator) deferUnconfirmed(ctx context.Context, input reconciliation.RecordInput) error {
	ctx = c.logg.WithSale(context.WithoutCancel(ctx), input.SaleID)
	details := map[string]any{
		"sale_id": input.SaleID.String(),
		"outcome": "unknown",
	}

	var entry *models.ReconciliationEntry
	err := c.call(ctx, StateStockReconcileFailed, func(ctx context.Context) error {
		var err error
		entry, err = c.recon.Record(ctx, input)
		return err
	})
	if err != nil {
		c.logg.Error(ctx, "failed to record unconfirmed sale", err)
	} else {
		details["reconciliation_id"] = entry.ID.String()
		c.logg.Warn(ctx, "sale insert unconfirmed; stock change deferred")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, input.Err, "sale outcome unknown").WithDetails(details)
}

func (c *Coordinator) reconciled(ctx context.Context, flow string, result *SaleResult) *SaleResult {
	result.State = StateStockReconciled
	result.Reconciled = true
	c.metrics.IncOutcome(flow, outcomeReconciled)
	c.logg.Info(ctx, "sale recorded and stock updated")
	return result
}

// deferStock records the unapplied stock change. The sale stands either way.
func (c *Coordinator) deferStock(ctx context.Context, flow string, result *SaleResult, input reconciliation.RecordInput) *SaleResult {
	result.State = StateStockReconcileFailed
	result.Reconciled = false
	result.Warning = reconcileWarning
	c.metrics.IncOutcome(flow, outcomeDeferred)

	var entry *models.ReconciliationEntry
	err := c.call(ctx, StateStockReconcileFailed, func(ctx context.Context) error {
		var err error
		entry, err = c.recon.Record(ctx, input)
		return err
	})
	if err != nil {
		c.logg.Error(ctx, "failed to record reconciliation entry; left for the recovery sweep", err)
		return result
	}
	result.ReconciliationID = &entry.ID
	c.logg.Warn(c.logg.WithField(ctx, "cause", input.Err.Error()), "sale recorded with stock update pending")
	return result
}

// call runs one persistence call under the step timeout.
func (c *Coordinator) call(ctx context.Context, step State, fn func(ctx context.Context) error) error {
	stepCtx, cancel := context.WithTimeout(ctx, c.stepTimeout)
	defer cancel()

	start := time.Now()
	err := fn(stepCtx)
	c.metrics.ObserveStep(string(step), time.Since(start))
	return db.StoreError(err, fmt.Sprintf("%s step", step))
}

func (c *Coordinator) fail(ctx context.Context, flow string, step State, err error) error {
	err = db.StoreError(err, "sale intake")
	c.metrics.IncOutcome(flow, outcomeFor(err))
	ctx = c.logg.WithField(ctx, "state", string(step))
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeValidation),
		pkgerrors.IsCode(err, pkgerrors.CodeInsufficient),
		pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		c.logg.Info(ctx, "sale intake rejected: "+err.Error())
	default:
		c.logg.Error(ctx, "sale intake failed", err)
	}
	return err
}

func outcomeFor(err error) string {
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeValidation):
		return outcomeInvalid
	case pkgerrors.IsCode(err, pkgerrors.CodeInsufficient):
		return outcomeInsufficient
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		return outcomeNotFound
	case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
		return outcomeConflict
	}
	return outcomeFailed
}

func isConflict(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeConflict)
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	return pkgerrors.IsCode(err, pkgerrors.CodeDependency)
}

func isRetryableSettle(err error) bool {
	if pkgerrors.IsCode(err, pkgerrors.CodeInsufficient) {
		return false
	}
	return pkgerrors.Retryable(err) || isTransient(err)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

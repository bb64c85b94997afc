package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/salesdesk-backend/pkg/db"
	"github.com/angelmondragon/salesdesk-backend/pkg/db/models"
	"github.com/angelmondragon/salesdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/salesdesk-backend/pkg/errors"
	"github.com/angelmondragon/salesdesk-backend/pkg/logger"
)

const (
	entryKeyConstraint     = "ux_stock_entries_key"
	movementSaleConstraint = "ux_stock_movements_sale_id"
	holdSaleConstraint     = "ux_stock_holds_sale_id"
)

// DefaultHoldTTL bounds how long an unsettled hold keeps its units.
const DefaultHoldTTL = 10 * time.Minute

// errAlreadyApplied rolls back a transaction whose sale already moved stock.
var errAlreadyApplied = errors.New("sale already applied to stock")

// errEntryRace rolls back an insert that lost the unique-key race.
var errEntryRace = errors.New("stock entry created concurrently")

// Ledger owns stock entry counters. Each write is a single conditional
// update; contention surfaces as CONFLICT and is never waited out.
type Ledger interface {
	Available(ctx context.Context, key Key) (int, error)
	Entry(ctx context.Context, key Key) (*models.StockEntry, error)
	Hold(ctx context.Context, key Key, saleID uuid.UUID, qty int, ttl time.Duration) (*models.StockHold, error)
	ReleaseHold(ctx context.Context, saleID uuid.UUID) (*models.StockHold, error)
	HoldForSale(ctx context.Context, saleID uuid.UUID) (*models.StockHold, error)
	ExpiredHolds(ctx context.Context, asOf time.Time, limit int) ([]models.StockHold, error)
	ApplyDelta(ctx context.Context, key Key, delta int, opts ...Option) (int, error)
	CreateOrIncrement(ctx context.Context, key Key, amount int, opts ...Option) (*models.StockEntry, error)
	Movements(ctx context.Context, saleID uuid.UUID) ([]models.StockMovement, error)
	EntryMovements(ctx context.Context, key Key, limit int) ([]models.StockMovement, error)
}

type ledger struct {
	repo *Repository
	logg *logger.Logger
}

// NewLedger constructs the stock ledger.
func NewLedger(repo *Repository, logg *logger.Logger) (Ledger, error) {
	if repo == nil {
		return nil, fmt.Errorf("stock repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &ledger{repo: repo, logg: logg}, nil
}

// Available returns quantity minus held units; a missing entry has none.
func (l *ledger) Available(ctx context.Context, key Key) (int, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}
	entry, err := l.repo.FindEntry(ctx, key)
	if err != nil {
		if db.IsNotFound(err) {
			return 0, nil
		}
		return 0, storeError(err, "read stock entry")
	}
	return entry.Available(), nil
}

func (l *ledger) Entry(ctx context.Context, key Key) (*models.StockEntry, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	entry, err := l.repo.FindEntry(ctx, key)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "stock entry not found")
		}
		return nil, storeError(err, "read stock entry")
	}
	return entry, nil
}

// Hold reserves qty units for saleID so no other sale can take them. The
// reservation lives in its own row until the sale's stock change settles it,
// ReleaseHold returns it, or it passes its expiry and the recovery sweep
// releases it. Holding again for the same sale returns the existing hold.
func (l *ledger) Hold(ctx context.Context, key Key, saleID uuid.UUID, qty int, ttl time.Duration) (*models.StockHold, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if saleID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "hold requires a sale id")
	}
	if qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "hold quantity must be positive")
	}
	if ttl <= 0 {
		ttl = DefaultHoldTTL
	}

	var hold *models.StockHold
	err := l.repo.Transaction(ctx, func(tx *gorm.DB) error {
		r := l.repo.WithTx(tx)
		existing, err := r.FindHoldBySale(ctx, saleID)
		switch {
		case err == nil:
			if existing.Status != enums.StockHoldHeld {
				return conflict("hold")
			}
			hold = existing
			return nil
		case !db.IsNotFound(err):
			return err
		}

		entry, err := r.FindEntry(ctx, key)
		if err != nil {
			if db.IsNotFound(err) {
				return insufficient(0, qty)
			}
			return err
		}
		if avail := entry.Available(); avail < qty {
			return insufficient(avail, qty)
		}

		ok, err := r.CompareAndSwap(ctx, entry, entry.Quantity, entry.Reserved+qty)
		if err != nil {
			return err
		}
		if !ok {
			return conflict("hold")
		}

		hold = &models.StockHold{
			SaleID:       saleID,
			StockEntryID: entry.ID,
			Quantity:     qty,
			Status:       enums.StockHoldHeld,
			ExpiresAt:    time.Now().UTC().Add(ttl),
		}
		if err := r.InsertHold(ctx, hold); err != nil {
			if db.IsUniqueViolation(err, holdSaleConstraint) {
				return conflict("hold")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err, "hold stock")
	}
	return hold, nil
}

// ReleaseHold returns the units held for saleID to the sellable pool. A hold
// that was already settled or released is returned unchanged.
func (l *ledger) ReleaseHold(ctx context.Context, saleID uuid.UUID) (*models.StockHold, error) {
	var hold *models.StockHold
	err := l.repo.Transaction(ctx, func(tx *gorm.DB) error {
		r := l.repo.WithTx(tx)
		found, err := r.FindHoldBySale(ctx, saleID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "stock hold not found")
			}
			return err
		}
		hold = found
		if found.Status != enums.StockHoldHeld {
			return nil
		}

		entry, err := r.FindEntryByID(ctx, found.StockEntryID)
		if err != nil {
			return err
		}
		if found.Quantity > entry.Reserved {
			return conflict("release_hold")
		}
		ok, err := r.CompareAndSwap(ctx, entry, entry.Quantity, entry.Reserved-found.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			return conflict("release_hold")
		}
		closed, err := r.CloseHold(ctx, found, enums.StockHoldReleased)
		if err != nil {
			return err
		}
		if !closed {
			return conflict("release_hold")
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err, "release stock hold")
	}
	return hold, nil
}

// HoldForSale returns the hold saleID took.
func (l *ledger) HoldForSale(ctx context.Context, saleID uuid.UUID) (*models.StockHold, error) {
	hold, err := l.repo.FindHoldBySale(ctx, saleID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "stock hold not found")
		}
		return nil, storeError(err, "read stock hold")
	}
	return hold, nil
}

// ExpiredHolds lists holds still held past their expiry, oldest first.
func (l *ledger) ExpiredHolds(ctx context.Context, asOf time.Time, limit int) ([]models.StockHold, error) {
	holds, err := l.repo.ListExpiredHolds(ctx, asOf, limit)
	if err != nil {
		return nil, storeError(err, "list expired stock holds")
	}
	return holds, nil
}

// ApplyDelta changes the entry's quantity by delta and returns the new
// quantity. The result may drop neither below zero nor below the units
// still held by other sales.
func (l *ledger) ApplyDelta(ctx context.Context, key Key, delta int, opts ...Option) (int, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}
	o := buildOptions(enums.MovementAdjustment, opts)
	if delta == 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "delta must be non-zero")
	}
	if o.releaseHold < 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "hold release must not be negative")
	}

	var quantity int
	err := l.repo.Transaction(ctx, func(tx *gorm.DB) error {
		r := l.repo.WithTx(tx)
		if err := ensureNotApplied(ctx, r, o.saleID); err != nil {
			return err
		}

		entry, err := r.FindEntry(ctx, key)
		if err != nil {
			if db.IsNotFound(err) {
				if delta < 0 {
					return insufficient(0, -delta)
				}
				return pkgerrors.New(pkgerrors.CodeNotFound, "stock entry not found")
			}
			return err
		}

		release, err := settleSaleHold(ctx, r, o)
		if err != nil {
			return err
		}
		if release > entry.Reserved {
			return conflict("settle_hold")
		}

		newQty := entry.Quantity + delta
		newReserved := entry.Reserved - release
		if newQty < 0 || newQty < newReserved {
			return insufficient(entry.Quantity-newReserved, -delta)
		}

		ok, err := r.CompareAndSwap(ctx, entry, newQty, newReserved)
		if err != nil {
			return err
		}
		if !ok {
			return conflict("apply_delta")
		}
		if err := r.journal(ctx, entry, delta, o); err != nil {
			return err
		}
		quantity = newQty
		return nil
	})

	if errors.Is(err, errAlreadyApplied) {
		l.logg.Debug(l.withKey(ctx, key), "stock delta already applied for sale")
		entry, readErr := l.repo.FindEntry(ctx, key)
		if readErr != nil {
			return 0, storeError(readErr, "read stock entry")
		}
		return entry.Quantity, nil
	}
	if err != nil {
		return 0, storeError(err, "apply stock delta")
	}
	return quantity, nil
}

// CreateOrIncrement adds amount to the entry, creating it when absent.
func (l *ledger) CreateOrIncrement(ctx context.Context, key Key, amount int, opts ...Option) (*models.StockEntry, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	o := buildOptions(enums.MovementSupply, opts)

	// A lost insert race leaves an entry behind, so the second pass increments it.
	for attempt := 0; attempt < 2; attempt++ {
		entry, err := l.createOrIncrementOnce(ctx, key, amount, o)
		switch {
		case err == nil:
			return entry, nil
		case errors.Is(err, errEntryRace):
			continue
		case errors.Is(err, errAlreadyApplied):
			existing, readErr := l.repo.FindEntry(ctx, key)
			if readErr != nil {
				return nil, storeError(readErr, "read stock entry")
			}
			return existing, nil
		default:
			return nil, storeError(err, "create or increment stock")
		}
	}
	return nil, conflict("create_or_increment")
}

func (l *ledger) createOrIncrementOnce(ctx context.Context, key Key, amount int, o options) (*models.StockEntry, error) {
	var result *models.StockEntry
	err := l.repo.Transaction(ctx, func(tx *gorm.DB) error {
		r := l.repo.WithTx(tx)
		if err := ensureNotApplied(ctx, r, o.saleID); err != nil {
			return err
		}

		entry, err := r.FindEntry(ctx, key)
		switch {
		case err == nil:
			ok, err := r.CompareAndSwap(ctx, entry, entry.Quantity+amount, entry.Reserved)
			if err != nil {
				return err
			}
			if !ok {
				return conflict("create_or_increment")
			}
		case db.IsNotFound(err):
			entry = &models.StockEntry{
				DealerID:    key.DealerID,
				ProductID:   key.ProductID,
				BatchNumber: key.BatchNumber,
				Quantity:    amount,
				Status:      enums.StockStatusActive,
				Version:     1,
			}
			if err := r.InsertEntry(ctx, entry); err != nil {
				if db.IsUniqueViolation(err, entryKeyConstraint) {
					return errEntryRace
				}
				return err
			}
		default:
			return err
		}

		if err := r.journal(ctx, entry, amount, o); err != nil {
			return err
		}
		result = entry
		return nil
	})
	return result, err
}

func (l *ledger) Movements(ctx context.Context, saleID uuid.UUID) ([]models.StockMovement, error) {
	movements, err := l.repo.ListMovementsBySale(ctx, saleID)
	if err != nil {
		return nil, storeError(err, "list stock movements")
	}
	return movements, nil
}

func (l *ledger) EntryMovements(ctx context.Context, key Key, limit int) ([]models.StockMovement, error) {
	entry, err := l.Entry(ctx, key)
	if err != nil {
		return nil, err
	}
	movements, err := l.repo.ListMovementsByEntry(ctx, entry.ID, limit)
	if err != nil {
		return nil, storeError(err, "list stock movements")
	}
	return movements, nil
}

func (l *ledger) withKey(ctx context.Context, key Key) context.Context {
	return l.logg.WithStockKey(ctx, key.DealerID, key.ProductID, key.BatchNumber)
}

func (r *Repository) journal(ctx context.Context, entry *models.StockEntry, delta int, o options) error {
	err := r.InsertMovement(ctx, &models.StockMovement{
		StockEntryID:  entry.ID,
		SaleID:        o.saleID,
		Delta:         delta,
		QuantityAfter: entry.Quantity,
		Kind:          o.kind,
		CreatedBy:     o.actor,
	})
	if err != nil && o.saleID != nil && db.IsUniqueViolation(err, movementSaleConstraint) {
		return errAlreadyApplied
	}
	return err
}

func ensureNotApplied(ctx context.Context, r *Repository, saleID *uuid.UUID) error {
	if saleID == nil {
		return nil
	}
	_, err := r.FindMovementBySale(ctx, *saleID)
	if err == nil {
		return errAlreadyApplied
	}
	if db.IsNotFound(err) {
		return nil
	}
	return err
}

// settleSaleHold closes the sale's open hold and reports how many reserved
// units the change consumes. A sale whose hold was already released or
// settled consumes none; a sale without a hold row uses the caller's count.
func settleSaleHold(ctx context.Context, r *Repository, o options) (int, error) {
	if o.saleID == nil {
		return o.releaseHold, nil
	}
	hold, err := r.FindHoldBySale(ctx, *o.saleID)
	if err != nil {
		if db.IsNotFound(err) {
			return o.releaseHold, nil
		}
		return 0, err
	}
	if hold.Status != enums.StockHoldHeld {
		return 0, nil
	}
	closed, err := r.CloseHold(ctx, hold, enums.StockHoldSettled)
	if err != nil {
		return 0, err
	}
	if !closed {
		return 0, conflict("settle_hold")
	}
	return hold.Quantity, nil
}

func insufficient(available, requested int) error {
	if available < 0 {
		available = 0
	}
	return pkgerrors.New(pkgerrors.CodeInsufficient, "insufficient stock").
		WithDetails(map[string]any{"available": available, "requested": requested})
}

func conflict(operation string) error {
	return pkgerrors.New(pkgerrors.CodeConflict, "stock entry changed concurrently").
		WithDetails(map[string]any{"operation": operation})
}

func storeError(err error, op string) error {
	return db.StoreError(err, op)
}

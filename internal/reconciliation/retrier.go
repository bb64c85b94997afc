package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/salesdesk-backend/internal/stock"
	"github.com/angelmondragon/salesdesk-backend/pkg/backoff"
	"github.com/angelmondragon/salesdesk-backend/pkg/db/models"
	"github.com/angelmondragon/salesdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/salesdesk-backend/pkg/errors"
	"github.com/angelmondragon/salesdesk-backend/pkg/logger"
	"github.com/angelmondragon/salesdesk-backend/pkg/metrics"
	"github.com/angelmondragon/salesdesk-backend/pkg/types"
)

const (
	resolvedViaRetry       = "retry"
	resolvedViaManual      = "manual"
	resolvedViaSweep       = "sweep"
	resolvedViaSaleMissing = "sale_missing"

	holdReleasedExpired = "expired"
)

// errHoldExpired is recorded on entries opened for a hold that outlived its sale's settlement.
var errHoldExpired = errors.New("stock hold expired before the sale settled")

// SaleLookup reads the sales whose stock changes the retrier settles.
type SaleLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Sale, error)
	ListUnsettled(ctx context.Context, cutoff time.Time, limit int) ([]models.Sale, error)
}

// RetrierParams wires a Retrier.
type RetrierParams struct {
	Log     Log
	Ledger  stock.Ledger
	Sales   SaleLookup
	Locker  Locker
	Policy  backoff.Policy
	Metrics *metrics.IntakeMetrics
	Logger  *logger.Logger
	Now     func() time.Time
}

// Retrier replays deferred stock changes and closes their entries.
type Retrier struct {
	log     Log
	ledger  stock.Ledger
	sales   SaleLookup
	locker  Locker
	policy  backoff.Policy
	metrics *metrics.IntakeMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// SweepResult summarizes one pass over the pending entries.
type SweepResult struct {
	Scanned  int `json:"scanned"`
	Resolved int `json:"resolved"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

// RecoveryResult summarizes one pass over expired holds and unsettled sales.
type RecoveryResult struct {
	ExpiredHolds  int `json:"expired_holds"`
	HoldsReleased int `json:"holds_released"`
	Recorded      int `json:"recorded"`
}

func NewRetrier(p RetrierParams) (*Retrier, error) {
	if p.Log == nil {
		return nil, fmt.Errorf("reconciliation log required")
	}
	if p.Ledger == nil {
		return nil, fmt.Errorf("stock ledger required")
	}
	if p.Sales == nil {
		return nil, fmt.Errorf("sale lookup required")
	}
	if p.Locker == nil {
		p.Locker = NoopLocker{}
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.Now == nil {
		p.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Retrier{
		log:     p.Log,
		ledger:  p.Ledger,
		sales:   p.Sales,
		locker:  p.Locker,
		policy:  p.Policy,
		metrics: p.Metrics,
		logg:    p.Logger,
		now:     p.Now,
	}, nil
}

// Retry re-applies the entry's stock change and resolves it on success.
// Failures are counted on the entry, which stays pending.
func (r *Retrier) Retry(ctx context.Context, entryID uuid.UUID, actor types.Actor) (*models.ReconciliationEntry, error) {
	return r.retry(ctx, entryID, actor, resolvedViaRetry)
}

func (r *Retrier) retry(ctx context.Context, entryID uuid.UUID, actor types.Actor, via string) (*models.ReconciliationEntry, error) {
	entry, err := r.log.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Resolved {
		return entry, nil
	}

	unlock, err := r.obtain(ctx, entry.SaleID)
	if err != nil {
		return nil, err
	}
	defer r.release(ctx, unlock, entry.SaleID)

	ctx = r.logg.WithReconciliation(ctx, entry.ID, entry.SaleID)

	applyErr := r.policy.Do(ctx, isConflict, func(ctx context.Context) error {
		missing, err := r.apply(ctx, entry, actor)
		if missing {
			via = resolvedViaSaleMissing
		}
		if pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
			r.metrics.IncConflict(string(entry.Operation))
		}
		return err
	})
	if applyErr != nil {
		if err := r.log.MarkAttempt(ctx, entry.ID, applyErr); err != nil {
			r.logg.Error(ctx, "failed to record reconciliation attempt", err)
		}
		r.logg.Warn(ctx, "reconciliation retry failed: "+applyErr.Error())
		return nil, asTyped(applyErr)
	}

	resolved, err := r.log.Resolve(ctx, entry.ID, actor)
	if err != nil {
		return nil, err
	}
	r.metrics.IncReconciliationResolved(via)
	return resolved, nil
}

// ResolveManually closes an entry fixed out of band. Units still held for
// the sale are returned to the pool first.
func (r *Retrier) ResolveManually(ctx context.Context, entryID uuid.UUID, actor types.Actor) (*models.ReconciliationEntry, error) {
	entry, err := r.log.Get(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Resolved {
		return entry, nil
	}

	unlock, err := r.obtain(ctx, entry.SaleID)
	if err != nil {
		return nil, err
	}
	defer r.release(ctx, unlock, entry.SaleID)

	if err := r.releaseHold(ctx, entry.SaleID); err != nil {
		return nil, err
	}

	resolved, err := r.log.Resolve(ctx, entry.ID, actor)
	if err != nil {
		return nil, err
	}
	r.metrics.IncReconciliationResolved(resolvedViaManual)
	return resolved, nil
}

// Sweep retries up to limit pending entries, oldest first. Entries that
// still cannot apply are counted as failed; only infrastructure errors are
// returned.
func (r *Retrier) Sweep(ctx context.Context, limit int) (SweepResult, error) {
	var result SweepResult
	entries, err := r.log.ListPending(ctx, limit)
	if err != nil {
		return result, err
	}

	var errs error
	for _, entry := range entries {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		result.Scanned++

		_, err := r.retry(ctx, entry.ID, types.Actor{}, resolvedViaSweep)
		switch {
		case err == nil:
			result.Resolved++
		case errors.Is(err, ErrLocked):
			result.Skipped++
		case isBusinessFailure(err):
			result.Failed++
		default:
			result.Failed++
			errs = multierr.Append(errs, fmt.Errorf("entry %s: %w", entry.ID, err))
		}
	}
	return result, errs
}

// ExpireHolds handles holds still open past their expiry. A hold whose sale
// was never stored is released; a stored sale gets an entry so its stock
// change is settled through the log.
func (r *Retrier) ExpireHolds(ctx context.Context, limit int) (RecoveryResult, error) {
	var result RecoveryResult
	holds, err := r.ledger.ExpiredHolds(ctx, r.now(), limit)
	if err != nil {
		return result, err
	}

	var errs error
	for _, hold := range holds {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		result.ExpiredHolds++
		holdCtx := r.logg.WithField(r.logg.WithSale(ctx, hold.SaleID), "expires_at", hold.ExpiresAt)

		sale, err := r.sales.FindByID(holdCtx, hold.SaleID)
		switch {
		case err == nil:
			if _, err := r.log.Record(holdCtx, recordFor(sale, hold.Quantity, enums.ReconciliationReasonUnsettled, errHoldExpired)); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("hold %s: %w", hold.ID, err))
				continue
			}
			result.Recorded++
		case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
			if _, err := r.ledger.ReleaseHold(holdCtx, hold.SaleID); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("hold %s: %w", hold.ID, err))
				continue
			}
			result.HoldsReleased++
			r.metrics.IncHoldReleased(holdReleasedExpired)
			r.logg.Warn(holdCtx, "released expired stock hold with no sale")
		default:
			errs = multierr.Append(errs, fmt.Errorf("hold %s: %w", hold.ID, err))
		}
	}
	return result, errs
}

// RecoverUnsettled opens entries for sales older than grace that have
// neither a stock change nor an entry.
func (r *Retrier) RecoverUnsettled(ctx context.Context, grace time.Duration, limit int) (RecoveryResult, error) {
	var result RecoveryResult
	rows, err := r.sales.ListUnsettled(ctx, r.now().Add(-grace), limit)
	if err != nil {
		return result, err
	}

	var errs error
	for i := range rows {
		sale := &rows[i]
		if _, err := r.log.Record(ctx, recordFor(sale, 0, enums.ReconciliationReasonUnsettled, nil)); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("sale %s: %w", sale.ID, err))
			continue
		}
		result.Recorded++
	}
	return result, errs
}

// apply settles the entry's stock change. When the sale was never stored it
// releases the sale's hold instead and reports the sale missing.
func (r *Retrier) apply(ctx context.Context, entry *models.ReconciliationEntry, actor types.Actor) (bool, error) {
	if _, err := r.sales.FindByID(ctx, entry.SaleID); err != nil {
		if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return false, err
		}
		r.logg.Warn(ctx, "sale was never stored; releasing its hold")
		return true, r.releaseHold(ctx, entry.SaleID)
	}
	return false, r.applyStock(ctx, entry, actor)
}

func (r *Retrier) applyStock(ctx context.Context, entry *models.ReconciliationEntry, actor types.Actor) error {
	key := keyOf(entry)
	opts := []stock.Option{
		stock.WithSaleRef(entry.SaleID),
		stock.WithMovementKind(enums.MovementReconciliation),
		stock.WithActor(actor),
	}
	switch entry.Operation {
	case enums.ReconciliationOpApplyDelta:
		opts = append(opts, stock.WithHoldRelease(entry.ReleaseHold))
		_, err := r.ledger.ApplyDelta(ctx, key, entry.ExpectedDelta, opts...)
		return err
	case enums.ReconciliationOpCreateOrIncrement:
		_, err := r.ledger.CreateOrIncrement(ctx, key, entry.ExpectedDelta, opts...)
		return err
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "unknown reconciliation operation "+string(entry.Operation))
}

func (r *Retrier) releaseHold(ctx context.Context, saleID uuid.UUID) error {
	_, err := r.ledger.ReleaseHold(ctx, saleID)
	if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return err
	}
	return nil
}

func (r *Retrier) obtain(ctx context.Context, saleID uuid.UUID) (Unlock, error) {
	unlock, err := r.locker.Obtain(ctx, saleID)
	if err != nil {
		if errors.Is(err, ErrLocked) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "reconciliation already in progress")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "obtain reconciliation lock")
	}
	return unlock, nil
}

func (r *Retrier) release(ctx context.Context, unlock Unlock, saleID uuid.UUID) {
	if err := unlock(context.WithoutCancel(ctx)); err != nil {
		r.logg.Error(r.logg.WithSale(ctx, saleID), "failed to release reconciliation lock", err)
	}
}

func keyOf(entry *models.ReconciliationEntry) stock.Key {
	return stock.NewKey(entry.DealerID, entry.ProductID, entry.BatchNumber)
}

// recordFor describes the stock change a stored sale still owes.
func recordFor(sale *models.Sale, releaseHold int, reason enums.ReconciliationReason, cause error) RecordInput {
	in := RecordInput{
		SaleID:        sale.ID,
		DealerID:      sale.DealerID,
		ProductID:     sale.ProductID,
		Operation:     enums.ReconciliationOpApplyDelta,
		ExpectedDelta: -sale.Quantity,
		ReleaseHold:   releaseHold,
		Reason:        reason,
		Err:           cause,
	}
	if sale.BatchNumber != nil {
		in.BatchNumber = *sale.BatchNumber
	}
	if sale.Kind == enums.SaleKindDealerSupply {
		in.Operation = enums.ReconciliationOpCreateOrIncrement
		in.ExpectedDelta = sale.Quantity
		in.ReleaseHold = 0
	}
	return in
}

func isConflict(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeConflict)
}

func isBusinessFailure(err error) bool {
	for _, code := range []pkgerrors.Code{
		pkgerrors.CodeConflict,
		pkgerrors.CodeInsufficient,
		pkgerrors.CodeNotFound,
		pkgerrors.CodeValidation,
	} {
		if pkgerrors.IsCode(err, code) {
			return true
		}
	}
	return false
}

func asTyped(err error) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reapply stock change")
}

package reconciliation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/salesdesk-backend/pkg/db"
	"github.com/angelmondragon/salesdesk-backend/pkg/db/models"
	"github.com/angelmondragon/salesdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/salesdesk-backend/pkg/errors"
	"github.com/angelmondragon/salesdesk-backend/pkg/logger"
	"github.com/angelmondragon/salesdesk-backend/pkg/metrics"
	"github.com/angelmondragon/salesdesk-backend/pkg/outbox"
	"github.com/angelmondragon/salesdesk-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/salesdesk-backend/pkg/types"
)

const (
	pendingSaleConstraint = "ux_reconciliation_pending_sale"
	maxPendingLimit       = 500
)

// Log is the durable list of sales whose stock change is still owed.
type Log interface {
	Record(ctx context.Context, input RecordInput) (*models.ReconciliationEntry, error)
	ListPending(ctx context.Context, limit int) ([]models.ReconciliationEntry, error)
	CountPending(ctx context.Context) (int64, error)
	Get(ctx context.Context, id uuid.UUID) (*models.ReconciliationEntry, error)
	Resolve(ctx context.Context, id uuid.UUID, actor types.Actor) (*models.ReconciliationEntry, error)
	MarkAttempt(ctx context.Context, id uuid.UUID, cause error) error
}

type pendingLog struct {
	repo    *Repository
	emitter outbox.Emitter
	metrics *metrics.IntakeMetrics
	logg    *logger.Logger
}

// NewLog constructs the reconciliation log.
func NewLog(repo *Repository, emitter outbox.Emitter, m *metrics.IntakeMetrics, logg *logger.Logger) (Log, error) {
	if repo == nil {
		return nil, fmt.Errorf("reconciliation repository required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &pendingLog{repo: repo, emitter: emitter, metrics: m, logg: logg}, nil
}

// Record stores an entry for the sale, or returns the one already open.
func (l *pendingLog) Record(ctx context.Context, input RecordInput) (*models.ReconciliationEntry, error) {
	if input.SaleID == uuid.Nil || input.DealerID == uuid.Nil || input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sale, dealer and product ids are required")
	}
	if !input.Operation.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid reconciliation operation")
	}

	var (
		recorded *models.ReconciliationEntry
		created  bool
	)
	err := l.repo.Transaction(ctx, func(tx *gorm.DB) error {
		r := l.repo.WithTx(tx)
		existing, err := r.FindUnresolvedBySale(ctx, input.SaleID)
		if err == nil {
			recorded = existing
			return nil
		}
		if !db.IsNotFound(err) {
			return err
		}

		entry := input.toModel()
		if err := r.Insert(ctx, entry); err != nil {
			return err
		}
		recorded = entry
		created = true
		return l.emitter.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventStockReconcileFailed,
			AggregateType: enums.AggregateReconciliation,
			AggregateID:   entry.ID,
			Data: payloads.StockReconcileFailedEvent{
				EntryID:       entry.ID,
				SaleID:        entry.SaleID,
				DealerID:      entry.DealerID,
				ProductID:     entry.ProductID,
				BatchNumber:   entry.BatchNumber,
				Operation:     entry.Operation,
				ExpectedDelta: entry.ExpectedDelta,
				Reason:        entry.Reason,
			},
		})
	})
	if err != nil {
		if db.IsUniqueViolation(err, pendingSaleConstraint) {
			existing, lookupErr := l.repo.FindUnresolvedBySale(ctx, input.SaleID)
			if lookupErr == nil {
				return existing, nil
			}
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record reconciliation entry")
	}

	if !created {
		return recorded, nil
	}
	l.metrics.IncReconciliationRecorded(string(recorded.Reason))
	ctx = l.logg.WithReconciliation(ctx, recorded.ID, recorded.SaleID)
	l.logg.Warn(l.logg.WithFields(ctx, map[string]any{
		"reason":    recorded.Reason,
		"operation": recorded.Operation,
	}), "stock change deferred to reconciliation")
	return recorded, nil
}

func (l *pendingLog) ListPending(ctx context.Context, limit int) ([]models.ReconciliationEntry, error) {
	if limit <= 0 || limit > maxPendingLimit {
		limit = maxPendingLimit
	}
	entries, err := l.repo.ListUnresolved(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reconciliation entries")
	}
	return entries, nil
}

func (l *pendingLog) CountPending(ctx context.Context) (int64, error) {
	count, err := l.repo.CountUnresolved(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count reconciliation entries")
	}
	return count, nil
}

func (l *pendingLog) Get(ctx context.Context, id uuid.UUID) (*models.ReconciliationEntry, error) {
	entry, err := l.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reconciliation entry not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reconciliation entry")
	}
	return entry, nil
}

// Resolve closes the entry. Resolving an already-closed entry returns it unchanged.
func (l *pendingLog) Resolve(ctx context.Context, id uuid.UUID, actor types.Actor) (*models.ReconciliationEntry, error) {
	var resolved *models.ReconciliationEntry
	err := l.repo.Transaction(ctx, func(tx *gorm.DB) error {
		r := l.repo.WithTx(tx)
		entry, err := r.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if entry.Resolved {
			resolved = entry
			return nil
		}

		now := db.UTCNow()
		by := actor.UserRef()
		changed, err := r.MarkResolved(ctx, id, by, now)
		if err != nil {
			return err
		}
		if !changed {
			resolved = entry
			return nil
		}
		entry.Resolved = true
		entry.ResolvedAt = &now
		entry.ResolvedBy = by
		resolved = entry

		return l.emitter.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReconciliationResolved,
			AggregateType: enums.AggregateReconciliation,
			AggregateID:   entry.ID,
			Actor:         outbox.ActorRefFrom(actor),
			Data: payloads.ReconciliationResolvedEvent{
				EntryID:    entry.ID,
				SaleID:     entry.SaleID,
				Attempts:   entry.Attempts,
				ResolvedBy: by,
				ResolvedAt: now,
			},
		})
	})
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reconciliation entry not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve reconciliation entry")
	}

	l.logg.Info(l.logg.WithReconciliation(ctx, resolved.ID, resolved.SaleID), "reconciliation entry resolved")
	return resolved, nil
}

func (l *pendingLog) MarkAttempt(ctx context.Context, id uuid.UUID, cause error) error {
	if err := l.repo.IncrementAttempts(ctx, id, errorText(cause)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record reconciliation attempt")
	}
	return nil
}

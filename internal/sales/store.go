package sales

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/salesdesk-backend/pkg/db"
	"github.com/angelmondragon/salesdesk-backend/pkg/db/models"
	"github.com/angelmondragon/salesdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/salesdesk-backend/pkg/errors"
	"github.com/angelmondragon/salesdesk-backend/pkg/logger"
	"github.com/angelmondragon/salesdesk-backend/pkg/outbox"
	"github.com/angelmondragon/salesdesk-backend/pkg/pagination"
	"github.com/angelmondragon/salesdesk-backend/pkg/types"
)

const maxUnsettledLimit = 200

// Store is the append-only sale ledger.
type Store interface {
	Create(ctx context.Context, sale *models.Sale, actor types.Actor) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Sale, error)
	List(ctx context.Context, input ListInput) (pagination.Page[models.Sale], error)
	ListUnsettled(ctx context.Context, cutoff time.Time, limit int) ([]models.Sale, error)
}

type store struct {
	repo    *Repository
	emitter outbox.Emitter
	logg    *logger.Logger
}

// NewStore constructs the sale store. Every insert queues a sale_created
// event in the same transaction.
func NewStore(repo *Repository, emitter outbox.Emitter, logg *logger.Logger) (Store, error) {
	if repo == nil {
		return nil, fmt.Errorf("sales repository required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &store{repo: repo, emitter: emitter, logg: logg}, nil
}

// Create persists sale under its caller-assigned id. A duplicate id is
// reported as CONFLICT so the caller can look the row up.
func (s *store) Create(ctx context.Context, sale *models.Sale, actor types.Actor) error {
	if err := validateSale(sale); err != nil {
		return err
	}
	if sale.CreatedBy == uuid.Nil {
		sale.CreatedBy = actor.UserID
	}

	err := s.repo.Transaction(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Insert(ctx, sale); err != nil {
			return err
		}
		return s.emitter.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSaleCreated,
			AggregateType: enums.AggregateSale,
			AggregateID:   sale.ID,
			Actor:         outbox.ActorRefFrom(actor),
			Data:          saleCreatedPayload(sale),
		})
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "sale already exists")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create sale")
	}

	ctx = s.logg.WithStockKey(s.logg.WithSale(ctx, sale.ID), sale.DealerID, sale.ProductID, batchOf(sale))
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"kind":     sale.Kind,
		"quantity": sale.Quantity,
	}), "sale recorded")
	return nil
}

func (s *store) FindByID(ctx context.Context, id uuid.UUID) (*models.Sale, error) {
	sale, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sale not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load sale")
	}
	return sale, nil
}

// ListUnsettled finds sales older than cutoff that never touched stock and
// were never handed to reconciliation.
func (s *store) ListUnsettled(ctx context.Context, cutoff time.Time, limit int) ([]models.Sale, error) {
	if limit <= 0 || limit > maxUnsettledLimit {
		limit = maxUnsettledLimit
	}
	rows, err := s.repo.ListUnsettled(ctx, cutoff, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list unsettled sales")
	}
	return rows, nil
}

func (s *store) List(ctx context.Context, input ListInput) (pagination.Page[models.Sale], error) {
	cursor, err := pagination.ParseCursor(input.Params.Cursor)
	if err != nil {
		return pagination.Page[models.Sale]{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if input.Filter.Kind != "" && !input.Filter.Kind.IsValid() {
		return pagination.Page[models.Sale]{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid sale kind")
	}
	rows, err := s.repo.List(ctx, input.Filter, cursor, input.Params.Limit)
	if err != nil {
		return pagination.Page[models.Sale]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list sales")
	}
	return pagination.Build(rows, input.Params.Limit, position), nil
}

func validateSale(sale *models.Sale) error {
	if sale == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "sale is required")
	}
	problems := map[string]string{}
	if sale.ID == uuid.Nil {
		problems["id"] = "is required"
	}
	if !sale.Kind.IsValid() {
		problems["kind"] = "is invalid"
	}
	if sale.ProductID == uuid.Nil {
		problems["product_id"] = "is required"
	}
	if sale.DealerID == uuid.Nil {
		problems["dealer_id"] = "is required"
	}
	if sale.CompanyID == uuid.Nil {
		problems["company_id"] = "is required"
	}
	if sale.Quantity < 1 {
		problems["quantity"] = "must be at least 1"
	}
	if sale.WarrantyTillDays < 1 {
		problems["warranty_till_days"] = "must be at least 1"
	}
	switch sale.Kind {
	case enums.SaleKindConsumer:
		if sale.CustomerID == nil {
			problems["customer_id"] = "is required"
		}
	case enums.SaleKindDealerSupply:
		if sale.BatchNumber == nil || *sale.BatchNumber == "" {
			problems["batch_number"] = "is required"
		}
	}
	if len(problems) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid sale").WithDetails(problems)
	}
	return nil
}

func batchOf(sale *models.Sale) string {
	if sale.BatchNumber == nil {
		return ""
	}
	return *sale.BatchNumber
}

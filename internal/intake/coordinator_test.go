package intake

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/salesdesk-backend/internal/customers"
	"github.com/angelmondragon/salesdesk-backend/internal/reconciliation"
	"github.com/angelmondragon/salesdesk-backend/internal/sales"
	"github.com/angelmondragon/salesdesk-backend/internal/stock"
	"github.com/angelmondragon/salesdesk-backend/pkg/backoff"
	"github.com/angelmondragon/salesdesk-backend/pkg/db/dbtest"
	"github.com/angelmondragon/salesdesk-backend/pkg/db/models"
	"github.com/angelmondragon/salesdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/salesdesk-backend/pkg/errors"
	"github.com/angelmondragon/salesdesk-backend/pkg/metrics"
	"github.com/angelmondragon/salesdesk-backend/pkg/outbox"
	"github.com/angelmondragon/salesdesk-backend/pkg/types"
)

var clerk = types.Actor{UserID: uuid.New(), Role: enums.ActorRoleDealer}

type fixture struct {
	coord     *Coordinator
	ledger    stock.Ledger
	sales     sales.Store
	customers customers.Service
	recon     reconciliation.Log
	conn      *gorm.DB
	registry  *prometheus.Registry
}

func newFixture(t *testing.T, tune ...func(*Params)) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)

	ledger, err := stock.NewLedger(stock.NewRepository(conn), nil)
	require.NoError(t, err)
	saleStore, err := sales.NewStore(sales.NewRepository(conn), emitter, nil)
	require.NoError(t, err)
	customerSvc, err := customers.NewService(customers.NewRepository(conn), nil)
	require.NoError(t, err)
	reconLog, err := reconciliation.NewLog(reconciliation.NewRepository(conn), emitter, nil, nil)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	params := Params{
		Customers:      customerSvc,
		Stock:          ledger,
		Sales:          saleStore,
		Reconciliation: reconLog,
		Policy:         backoff.Policy{MaxRetries: 3, Base: time.Millisecond},
		StepTimeout:    2 * time.Second,
		Metrics:        metrics.NewIntakeMetrics(reg),
	}
	for _, fn := range tune {
		fn(&params)
	}
	coord, err := NewCoordinator(params)
	require.NoError(t, err)

	return fixture{
		coord:     coord,
		ledger:    ledger,
		sales:     saleStore,
		customers: customerSvc,
		recon:     reconLog,
		conn:      conn,
		registry:  reg,
	}
}

func (f fixture) seedStock(t *testing.T, qty int) stock.Key {
	t.Helper()
	key := stock.NewKey(uuid.New(), uuid.New(), "")
	if qty > 0 {
		_, err := f.ledger.CreateOrIncrement(context.Background(), key, qty, stock.WithMovementKind(enums.MovementAdjustment))
		require.NoError(t, err)
	}
	return key
}

func (f fixture) saleCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.conn.Model(&models.Sale{}).Count(&count).Error)
	return count
}

func (f fixture) entry(t *testing.T, key stock.Key) *models.StockEntry {
	t.Helper()
	e, err := f.ledger.Entry(context.Background(), key)
	require.NoError(t, err)
	return e
}

func consumerIntake(key stock.Key, contact string) ConsumerIntake {
	return ConsumerIntake{
		ProductID:        key.ProductID,
		DealerID:         key.DealerID,
		CompanyID:        uuid.New(),
		Quantity:         1,
		WarrantyTillDays: 365,
		BatchNumber:      key.BatchNumber,
		CustomerContact:  contact,
		CustomerName:     "Asha Rao",
	}
}

type scriptedLedger struct {
	StockLedger
	applyDelta  func(ctx context.Context, key stock.Key, delta int, opts ...stock.Option) (int, error)
	releaseHold func(ctx context.Context, saleID uuid.UUID) (*models.StockHold, error)
}

func (s *scriptedLedger) ReleaseHold(ctx context.Context, saleID uuid.UUID) (*models.StockHold, error) {
	if s.releaseHold != nil {
		return s.releaseHold(ctx, saleID)
	}
	return s.StockLedger.ReleaseHold(ctx, saleID)
}

func (s *scriptedLedger) ApplyDelta(ctx context.Context, key stock.Key, delta int, opts ...stock.Option) (int, error) {
	if s.applyDelta != nil {
		return s.applyDelta(ctx, key, delta, opts...)
	}
	return s.StockLedger.ApplyDelta(ctx, key, delta, opts...)
}

type scriptedSales struct {
	SaleStore
	create   func(ctx context.Context, sale *models.Sale, actor types.Actor) error
	findByID func(ctx context.Context, id uuid.UUID) (*models.Sale, error)
}

func (s *scriptedSales) Create(ctx context.Context, sale *models.Sale, actor types.Actor) error {
	return s.create(ctx, sale, actor)
}

func (s *scriptedSales) FindByID(ctx context.Context, id uuid.UUID) (*models.Sale, error) {
	if s.findByID != nil {
		return s.findByID(ctx, id)
	}
	return s.SaleStore.FindByID(ctx, id)
}

func (f fixture) retrier(t *testing.T, now func() time.Time) *reconciliation.Retrier {
	t.Helper()
	r, err := reconciliation.NewRetrier(reconciliation.RetrierParams{
		Log:    f.recon,
		Ledger: f.ledger,
		Sales:  f.sales,
		Policy: backoff.Policy{MaxRetries: 1, Base: time.Millisecond},
		Now:    now,
	})
	require.NoError(t, err)
	return r
}

func TestSellFromStockedDealerReconciles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.seedStock(t, 5)

	result, err := f.coord.CreateSale(ctx, clerk, consumerIntake(key, "9000000001"))
	require.NoError(t, err)
	require.True(t, result.Reconciled)
	require.Equal(t, StateStockReconciled, result.State)
	require.Empty(t, result.Warning)

	entry := f.entry(t, key)
	require.Equal(t, 4, entry.Quantity)
	require.Zero(t, entry.Reserved)

	movements, err := f.ledger.Movements(ctx, result.Sale.ID)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	require.Equal(t, -1, movements[0].Delta)
	require.Equal(t, enums.MovementSale, movements[0].Kind)

	count, err := testutil.GatherAndCount(f.registry, "salesdesk_sale_intake_outcomes_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestSellWithoutStockIsRejected(t *testing.T) {
	f := newFixture(t)
	key := f.seedStock(t, 0)

	_, err := f.coord.CreateSale(context.Background(), clerk, consumerIntake(key, "9000000001"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficient))
	require.Zero(t, f.saleCount(t))
}

func TestSellToNewContactCreatesCustomer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.seedStock(t, 2)

	result, err := f.coord.CreateSale(ctx, clerk, consumerIntake(key, " 9000000001 "))
	require.NoError(t, err)
	require.NotNil(t, result.Customer)

	customer, err := f.customers.Resolve(ctx, "9000000001")
	require.NoError(t, err)
	require.Equal(t, customer.ID, *result.Sale.CustomerID)
	require.Equal(t, customer.ID, result.Customer.ID)
}

func TestSellToKnownCustomerByID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.seedStock(t, 2)
	customer, err := f.customers.ResolveOrCreate(ctx, "9000000002", "Ravi", clerk)
	require.NoError(t, err)

	in := consumerIntake(key, "")
	in.CustomerID = &customer.ID
	result, err := f.coord.CreateSale(ctx, clerk, in)
	require.NoError(t, err)
	require.Equal(t, customer.ID, *result.Sale.CustomerID)

	unknown := uuid.New()
	in.CustomerID = &unknown
	_, err = f.coord.CreateSale(ctx, clerk, in)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	require.EqualValues(t, 1, f.saleCount(t))
}

func TestStockTimeoutAfterSaleDefersToReconciliation(t *testing.T) {
	f := newFixture(t, func(p *Params) {
		p.Stock = &scriptedLedger{
			StockLedger: p.Stock,
			applyDelta: func(ctx context.Context, _ stock.Key, _ int, _ ...stock.Option) (int, error) {
				<-ctx.Done()
				return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, ctx.Err(), "apply stock delta")
			},
		}
		p.StepTimeout = 20 * time.Millisecond
		p.Policy = backoff.Policy{MaxRetries: 1, Base: time.Millisecond}
	})
	ctx := context.Background()
	key := f.seedStock(t, 3)

	result, err := f.coord.CreateSale(ctx, clerk, consumerIntake(key, "9000000001"))
	require.NoError(t, err)
	require.False(t, result.Reconciled)
	require.Equal(t, StateStockReconcileFailed, result.State)
	require.NotEmpty(t, result.Warning)
	require.NotNil(t, result.ReconciliationID)

	stored, err := f.sales.FindByID(ctx, result.Sale.ID)
	require.NoError(t, err)
	require.Equal(t, result.Sale.ID, stored.ID)

	pending, err := f.recon.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, result.Sale.ID, pending[0].SaleID)
	require.Equal(t, enums.ReconciliationReasonTransientIO, pending[0].Reason)
	require.Equal(t, 1, pending[0].ReleaseHold)

	held := f.entry(t, key)
	require.Equal(t, 3, held.Quantity)
	require.Equal(t, 1, held.Reserved)

	resolved, err := f.retrier(t, nil).Retry(ctx, pending[0].ID, clerk)
	require.NoError(t, err)
	require.True(t, resolved.Resolved)

	settled := f.entry(t, key)
	require.Equal(t, 2, settled.Quantity)
	require.Zero(t, settled.Reserved)
}

func TestConflictsWhileSettlingAreRetried(t *testing.T) {
	calls := 0
	f := newFixture(t, func(p *Params) {
		inner := p.Stock
		p.Stock = &scriptedLedger{
			StockLedger: inner,
			applyDelta: func(ctx context.Context, key stock.Key, delta int, opts ...stock.Option) (int, error) {
				calls++
				if calls < 3 {
					return 0, pkgerrors.New(pkgerrors.CodeConflict, "stale version")
				}
				return inner.ApplyDelta(ctx, key, delta, opts...)
			},
		}
	})
	key := f.seedStock(t, 2)

	result, err := f.coord.CreateSale(context.Background(), clerk, consumerIntake(key, "9000000001"))
	require.NoError(t, err)
	require.True(t, result.Reconciled)
	require.Equal(t, 3, calls)
	require.Equal(t, 1, f.entry(t, key).Quantity)
}

func TestInsufficientWhileSettlingIsNotRetried(t *testing.T) {
	calls := 0
	f := newFixture(t, func(p *Params) {
		p.Stock = &scriptedLedger{
			StockLedger: p.Stock,
			applyDelta: func(context.Context, stock.Key, int, ...stock.Option) (int, error) {
				calls++
				return 0, pkgerrors.New(pkgerrors.CodeInsufficient, "insufficient stock")
			},
		}
	})
	key := f.seedStock(t, 2)

	result, err := f.coord.CreateSale(context.Background(), clerk, consumerIntake(key, "9000000001"))
	require.NoError(t, err)
	require.False(t, result.Reconciled)
	require.Equal(t, 1, calls)

	pending, err := f.recon.ListPending(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, enums.ReconciliationReasonInsufficientStock, pending[0].Reason)
}

func TestSaleInsertFailureReleasesHold(t *testing.T) {
	f := newFixture(t, func(p *Params) {
		p.Sales = &scriptedSales{
			SaleStore: p.Sales,
			create: func(context.Context, *models.Sale, types.Actor) error {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("connection reset"), "create sale")
			},
		}
	})
	key := f.seedStock(t, 1)

	_, err := f.coord.CreateSale(context.Background(), clerk, consumerIntake(key, "9000000001"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	require.Zero(t, f.saleCount(t))

	entry := f.entry(t, key)
	require.Equal(t, 1, entry.Quantity)
	require.Zero(t, entry.Reserved)
}

func TestStuckHoldReleaseIsRecoveredAfterExpiry(t *testing.T) {
	var releaseCalls int
	f := newFixture(t, func(p *Params) {
		p.Sales = &scriptedSales{
			SaleStore: p.Sales,
			create: func(context.Context, *models.Sale, types.Actor) error {
				return pkgerrors.New(pkgerrors.CodeInternal, "insert rejected")
			},
		}
		p.Stock = &scriptedLedger{
			StockLedger: p.Stock,
			releaseHold: func(context.Context, uuid.UUID) (*models.StockHold, error) {
				releaseCalls++
				return nil, pkgerrors.New(pkgerrors.CodeDependency, "connection reset")
			},
		}
		p.HoldTTL = time.Minute
	})
	ctx := context.Background()
	key := f.seedStock(t, 1)

	_, err := f.coord.CreateSale(ctx, clerk, consumerIntake(key, "9000000001"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))
	require.Equal(t, 1, releaseCalls)
	require.Zero(t, f.saleCount(t))

	stuck := f.entry(t, key)
	require.Equal(t, 1, stuck.Reserved)
	require.Zero(t, stuck.Available())

	var holds []models.StockHold
	require.NoError(t, f.conn.Find(&holds).Error)
	require.Len(t, holds, 1)
	require.Equal(t, enums.StockHoldHeld, holds[0].Status)
	require.True(t, holds[0].ExpiresAt.After(time.Now()))

	later := func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }
	result, err := f.retrier(t, later).ExpireHolds(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, result.HoldsReleased)

	recovered := f.entry(t, key)
	require.Equal(t, 1, recovered.Quantity)
	require.Zero(t, recovered.Reserved)
	require.Equal(t, 1, recovered.Available())
}

func TestUnconfirmedSaleInsertKeepsHoldAndRecords(t *testing.T) {
	f := newFixture(t, func(p *Params) {
		inner := p.Sales
		p.Sales = &scriptedSales{
			SaleStore: inner,
			create: func(ctx context.Context, sale *models.Sale, actor types.Actor) error {
				if err := inner.Create(ctx, sale, actor); err != nil {
					return err
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, context.DeadlineExceeded, "create sale")
			},
			findByID: func(context.Context, uuid.UUID) (*models.Sale, error) {
				return nil, pkgerrors.New(pkgerrors.CodeDependency, "connection reset")
			},
		}
	})
	ctx := context.Background()
	key := f.seedStock(t, 2)

	_, err := f.coord.CreateSale(ctx, clerk, consumerIntake(key, "9000000001"))
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeDependency, typed.Code())
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	require.Equal(t, "unknown", details["outcome"])
	require.NotEmpty(t, details["reconciliation_id"])
	require.EqualValues(t, 1, f.saleCount(t))

	held := f.entry(t, key)
	require.Equal(t, 2, held.Quantity)
	require.Equal(t, 1, held.Reserved)

	pending, err := f.recon.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, details["sale_id"], pending[0].SaleID.String())
	require.Equal(t, details["reconciliation_id"], pending[0].ID.String())
	require.Equal(t, -1, pending[0].ExpectedDelta)

	resolved, err := f.retrier(t, nil).Retry(ctx, pending[0].ID, clerk)
	require.NoError(t, err)
	require.True(t, resolved.Resolved)

	settled := f.entry(t, key)
	require.Equal(t, 1, settled.Quantity)
	require.Zero(t, settled.Reserved)
	movements, err := f.ledger.Movements(ctx, pending[0].SaleID)
	require.NoError(t, err)
	require.Len(t, movements, 1)
}

func TestUnconfirmedSaleThatNeverLandedReleasesOnRetry(t *testing.T) {
	f := newFixture(t, func(p *Params) {
		p.Sales = &scriptedSales{
			SaleStore: p.Sales,
			create: func(context.Context, *models.Sale, types.Actor) error {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, context.DeadlineExceeded, "create sale")
			},
			findByID: func(context.Context, uuid.UUID) (*models.Sale, error) {
				return nil, pkgerrors.New(pkgerrors.CodeDependency, "connection reset")
			},
		}
	})
	ctx := context.Background()
	key := f.seedStock(t, 1)

	_, err := f.coord.CreateSale(ctx, clerk, consumerIntake(key, "9000000001"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	require.Zero(t, f.saleCount(t))
	require.Equal(t, 1, f.entry(t, key).Reserved)

	pending, err := f.recon.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	resolved, err := f.retrier(t, nil).Retry(ctx, pending[0].ID, clerk)
	require.NoError(t, err)
	require.True(t, resolved.Resolved)

	released := f.entry(t, key)
	require.Equal(t, 1, released.Quantity)
	require.Zero(t, released.Reserved)
}

func TestUnconfirmedSupplyInsertRecordsIncrement(t *testing.T) {
	f := newFixture(t, func(p *Params) {
		p.Sales = &scriptedSales{
			SaleStore: p.Sales,
			create: func(context.Context, *models.Sale, types.Actor) error {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, context.DeadlineExceeded, "create sale")
			},
			findByID: func(context.Context, uuid.UUID) (*models.Sale, error) {
				return nil, pkgerrors.New(pkgerrors.CodeDependency, "connection reset")
			},
		}
	})
	ctx := context.Background()

	_, err := f.coord.CreateSupplySale(ctx, clerk, SupplyIntake{
		ProductID:        uuid.New(),
		DealerID:         uuid.New(),
		CompanyID:        uuid.New(),
		Quantity:         12,
		WarrantyTillDays: 365,
		BatchNumber:      "LOT-3",
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	pending, err := f.recon.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, enums.ReconciliationOpCreateOrIncrement, pending[0].Operation)
	require.Equal(t, 12, pending[0].ExpectedDelta)
	require.Equal(t, enums.ReconciliationReasonTransientIO, pending[0].Reason)
}

func TestSaleInsertErrorAfterCommitContinues(t *testing.T) {
	f := newFixture(t, func(p *Params) {
		inner := p.Sales
		p.Sales = &scriptedSales{
			SaleStore: inner,
			create: func(ctx context.Context, sale *models.Sale, actor types.Actor) error {
				if err := inner.Create(ctx, sale, actor); err != nil {
					return err
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, context.DeadlineExceeded, "create sale")
			},
		}
	})
	key := f.seedStock(t, 2)

	result, err := f.coord.CreateSale(context.Background(), clerk, consumerIntake(key, "9000000001"))
	require.NoError(t, err)
	require.True(t, result.Reconciled)
	require.EqualValues(t, 1, f.saleCount(t))
	require.Equal(t, 1, f.entry(t, key).Quantity)
}

func TestCallerCancelAfterSaleStillSettles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, func(p *Params) {
		inner := p.Sales
		p.Sales = &scriptedSales{
			SaleStore: inner,
			create: func(ctx context.Context, sale *models.Sale, actor types.Actor) error {
				err := inner.Create(ctx, sale, actor)
				cancel()
				return err
			},
		}
	})
	key := f.seedStock(t, 2)

	result, err := f.coord.CreateSale(ctx, clerk, consumerIntake(key, "9000000001"))
	require.NoError(t, err)
	require.True(t, result.Reconciled)
	require.Equal(t, 1, f.entry(t, key).Quantity)
}

func TestLastUnitSoldOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.seedStock(t, 1)
	customer, err := f.customers.ResolveOrCreate(ctx, "9000000003", "Meera", clerk)
	require.NoError(t, err)

	const buyers = 2
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		short   int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			in := consumerIntake(key, "")
			in.CustomerID = &customer.ID
			_, err := f.coord.CreateSale(ctx, clerk, in)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case pkgerrors.IsCode(err, pkgerrors.CodeInsufficient):
				short++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, success)
	require.Equal(t, 1, short)
	require.EqualValues(t, 1, f.saleCount(t))
	require.Zero(t, f.entry(t, key).Quantity)
}

func TestSupplyCreatesDealerStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dealer, product := uuid.New(), uuid.New()

	result, err := f.coord.CreateSupplySale(ctx, clerk, SupplyIntake{
		ProductID:        product,
		DealerID:         dealer,
		CompanyID:        uuid.New(),
		Quantity:         40,
		WarrantyTillDays: 730,
		BatchNumber:      " LOT-7 ",
	})
	require.NoError(t, err)
	require.True(t, result.Reconciled)
	require.Equal(t, enums.SaleKindDealerSupply, result.Sale.Kind)
	require.Nil(t, result.Customer)

	available, err := f.ledger.Available(ctx, stock.NewKey(dealer, product, "LOT-7"))
	require.NoError(t, err)
	require.Equal(t, 40, available)
}

func TestSupplyIncrementsExistingBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := stock.NewKey(uuid.New(), uuid.New(), "LOT-1")
	_, err := f.ledger.CreateOrIncrement(ctx, key, 5)
	require.NoError(t, err)

	_, err = f.coord.CreateSupplySale(ctx, clerk, SupplyIntake{
		ProductID:        key.ProductID,
		DealerID:         key.DealerID,
		CompanyID:        uuid.New(),
		Quantity:         10,
		WarrantyTillDays: 365,
		BatchNumber:      key.BatchNumber,
	})
	require.NoError(t, err)
	require.Equal(t, 15, f.entry(t, key).Quantity)
}

func TestValidationRejectsBadIntake(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := f.seedStock(t, 5)
	id := uuid.New()

	cases := map[string]func(*ConsumerIntake){
		"zero quantity":           func(in *ConsumerIntake) { in.Quantity = 0 },
		"no warranty":             func(in *ConsumerIntake) { in.WarrantyTillDays = 0 },
		"missing product":         func(in *ConsumerIntake) { in.ProductID = uuid.Nil },
		"short contact":           func(in *ConsumerIntake) { in.CustomerContact = "12345" },
		"no customer":             func(in *ConsumerIntake) { in.CustomerContact = "" },
		"customer id and contact": func(in *ConsumerIntake) { in.CustomerID = &id },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := consumerIntake(key, "9000000001")
			mutate(&in)
			_, err := f.coord.CreateSale(ctx, clerk, in)
			require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}

	_, err := f.coord.CreateSale(ctx, types.Actor{}, consumerIntake(key, "9000000001"))
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.coord.CreateSupplySale(ctx, clerk, SupplyIntake{
		ProductID:        key.ProductID,
		DealerID:         key.DealerID,
		CompanyID:        uuid.New(),
		Quantity:         1,
		WarrantyTillDays: 1,
	})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	require.Zero(t, f.saleCount(t))
	require.Equal(t, 5, f.entry(t, key).Quantity)
}

func TestNewCoordinatorRequiresPorts(t *testing.T) {
	_, err := NewCoordinator(Params{})
	require.Error(t, err)
}

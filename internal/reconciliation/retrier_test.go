package reconciliation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/salesdesk-backend/internal/sales"
	"github.com/angelmondragon/salesdesk-backend/internal/stock"
	"github.com/angelmondragon/salesdesk-backend/pkg/backoff"
	"github.com/angelmondragon/salesdesk-backend/pkg/db/dbtest"
	"github.com/angelmondragon/salesdesk-backend/pkg/db/models"
	"github.com/angelmondragon/salesdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/salesdesk-backend/pkg/errors"
	"github.com/angelmondragon/salesdesk-backend/pkg/outbox"
)

type fakeLocker struct {
	mu     sync.Mutex
	held   map[uuid.UUID]bool
	denied bool
}

func (f *fakeLocker) Obtain(_ context.Context, saleID uuid.UUID) (Unlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.denied || f.held[saleID] {
		return nil, ErrLocked
	}
	if f.held == nil {
		f.held = map[uuid.UUID]bool{}
	}
	f.held[saleID] = true
	return func(context.Context) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.held, saleID)
		return nil
	}, nil
}

type retrierFixture struct {
	log     Log
	ledger  stock.Ledger
	sales   sales.Store
	retrier *Retrier
	locker  *fakeLocker
	conn    *gorm.DB
	now     time.Time
}

func newRetrierFixture(t *testing.T) *retrierFixture {
	t.Helper()
	conn := dbtest.Open(t)
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)
	l, err := NewLog(NewRepository(conn), emitter, nil, nil)
	require.NoError(t, err)
	ledger, err := stock.NewLedger(stock.NewRepository(conn), nil)
	require.NoError(t, err)
	saleStore, err := sales.NewStore(sales.NewRepository(conn), emitter, nil)
	require.NoError(t, err)
	f := &retrierFixture{log: l, ledger: ledger, sales: saleStore, locker: &fakeLocker{}, conn: conn, now: time.Now().UTC()}
	f.retrier, err = NewRetrier(RetrierParams{
		Log:    l,
		Ledger: ledger,
		Sales:  saleStore,
		Locker: f.locker,
		Policy: backoff.Policy{MaxRetries: 2},
		Now:    func() time.Time { return f.now },
	})
	require.NoError(t, err)
	return f
}

// stockWithHold seeds qty units and, when held > 0, holds them for a new
// sale id which it returns.
func (f *retrierFixture) stockWithHold(t *testing.T, qty, held int) (stock.Key, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	key := stock.NewKey(uuid.New(), uuid.New(), "B-1")
	_, err := f.ledger.CreateOrIncrement(ctx, key, qty)
	require.NoError(t, err)
	saleID := uuid.New()
	if held > 0 {
		_, err = f.ledger.Hold(ctx, key, saleID, held, time.Minute)
		require.NoError(t, err)
	}
	return key, saleID
}

// storeSale persists the sale the entry refers to.
func (f *retrierFixture) storeSale(t *testing.T, saleID uuid.UUID, key stock.Key, kind enums.SaleKind, qty int) *models.Sale {
	t.Helper()
	batch := key.BatchNumber
	sale := &models.Sale{
		ID:               saleID,
		Kind:             kind,
		ProductID:        key.ProductID,
		DealerID:         key.DealerID,
		CompanyID:        uuid.New(),
		Quantity:         qty,
		BatchNumber:      &batch,
		WarrantyTillDays: 365,
	}
	if kind == enums.SaleKindConsumer {
		customerID := uuid.New()
		sale.CustomerID = &customerID
	}
	require.NoError(t, f.sales.Create(context.Background(), sale, operator))
	return sale
}

func (f *retrierFixture) record(t *testing.T, saleID uuid.UUID, key stock.Key, op enums.ReconciliationOperation, delta, hold int) *RecordInput {
	t.Helper()
	kind, qty := enums.SaleKindConsumer, -delta
	if op == enums.ReconciliationOpCreateOrIncrement {
		kind, qty = enums.SaleKindDealerSupply, delta
	}
	f.storeSale(t, saleID, key, kind, qty)
	input := RecordInput{
		SaleID:        saleID,
		DealerID:      key.DealerID,
		ProductID:     key.ProductID,
		BatchNumber:   key.BatchNumber,
		Operation:     op,
		ExpectedDelta: delta,
		ReleaseHold:   hold,
		Reason:        enums.ReconciliationReasonConflict,
	}
	return &input
}

func TestRetryAppliesDeltaAndResolves(t *testing.T) {
	f := newRetrierFixture(t)
	ctx := context.Background()
	key, saleID := f.stockWithHold(t, 5, 2)
	input := f.record(t, saleID, key, enums.ReconciliationOpApplyDelta, -2, 2)
	entry, err := f.log.Record(ctx, *input)
	require.NoError(t, err)

	resolved, err := f.retrier.Retry(ctx, entry.ID, operator)
	require.NoError(t, err)
	require.True(t, resolved.Resolved)

	current, err := f.ledger.Entry(ctx, key)
	require.NoError(t, err)
	require.Equal(t, 3, current.Quantity)
	require.Zero(t, current.Reserved)

	hold, err := f.ledger.HoldForSale(ctx, saleID)
	require.NoError(t, err)
	require.Equal(t, enums.StockHoldSettled, hold.Status)

	movements, err := f.ledger.Movements(ctx, input.SaleID)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	require.Equal(t, enums.MovementReconciliation, movements[0].Kind)
	require.Empty(t, f.locker.held)
}

func TestRetryDoesNotApplyTwice(t *testing.T) {
	f := newRetrierFixture(t)
	ctx := context.Background()
	key, saleID := f.stockWithHold(t, 5, 0)
	input := f.record(t, saleID, key, enums.ReconciliationOpApplyDelta, -1, 0)
	_, err := f.ledger.ApplyDelta(ctx, key, -1, stock.WithSaleRef(input.SaleID))
	require.NoError(t, err)

	entry, err := f.log.Record(ctx, *input)
	require.NoError(t, err)
	_, err = f.retrier.Retry(ctx, entry.ID, operator)
	require.NoError(t, err)

	available, err := f.ledger.Available(ctx, key)
	require.NoError(t, err)
	require.Equal(t, 4, available)
}

func TestRetryCreatesMissingSupplyEntry(t *testing.T) {
	f := newRetrierFixture(t)
	ctx := context.Background()
	key := stock.NewKey(uuid.New(), uuid.New(), "LOT-9")
	entry, err := f.log.Record(ctx, *f.record(t, uuid.New(), key, enums.ReconciliationOpCreateOrIncrement, 7, 0))
	require.NoError(t, err)

	_, err = f.retrier.Retry(ctx, entry.ID, operator)
	require.NoError(t, err)

	available, err := f.ledger.Available(ctx, key)
	require.NoError(t, err)
	require.Equal(t, 7, available)
}

func TestRetryForMissingSaleReleasesHold(t *testing.T) {
	f := newRetrierFixture(t)
	ctx := context.Background()
	key, saleID := f.stockWithHold(t, 3, 2)
	entry, err := f.log.Record(ctx, RecordInput{
		SaleID:        saleID,
		DealerID:      key.DealerID,
		ProductID:     key.ProductID,
		BatchNumber:   key.BatchNumber,
		Operation:     enums.ReconciliationOpApplyDelta,
		ExpectedDelta: -2,
		ReleaseHold:   2,
		Reason:        enums.ReconciliationReasonTransientIO,
	})
	require.NoError(t, err)

	resolved, err := f.retrier.Retry(ctx, entry.ID, operator)
	require.NoError(t, err)
	require.True(t, resolved.Resolved)

	current, err := f.ledger.Entry(ctx, key)
	require.NoError(t, err)
	require.Equal(t, 3, current.Quantity)
	require.Zero(t, current.Reserved)

	movements, err := f.ledger.Movements(ctx, saleID)
	require.NoError(t, err)
	require.Empty(t, movements)
}

func TestRetryFailureKeepsEntryPending(t *testing.T) {
	f := newRetrierFixture(t)
	ctx := context.Background()
	key, saleID := f.stockWithHold(t, 1, 0)
	entry, err := f.log.Record(ctx, *f.record(t, saleID, key, enums.ReconciliationOpApplyDelta, -3, 0))
	require.NoError(t, err)

	_, err = f.retrier.Retry(ctx, entry.ID, operator)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficient))

	got, err := f.log.Get(ctx, entry.ID)
	require.NoError(t, err)
	require.False(t, got.Resolved)
	require.Equal(t, 1, got.Attempts)
}

func TestRetryResolvedEntryIsNoop(t *testing.T) {
	f := newRetrierFixture(t)
	ctx := context.Background()
	key, saleID := f.stockWithHold(t, 2, 0)
	entry, err := f.log.Record(ctx, *f.record(t, saleID, key, enums.ReconciliationOpApplyDelta, -1, 0))
	require.NoError(t, err)
	_, err = f.log.Resolve(ctx, entry.ID, operator)
	require.NoError(t, err)

	got, err := f.retrier.Retry(ctx, entry.ID, operator)
	require.NoError(t, err)
	require.True(t, got.Resolved)

	available, err := f.ledger.Available(ctx, key)
	require.NoError(t, err)
	require.Equal(t, 2, available)
}

func TestRetryLockedSaleIsConflict(t *testing.T) {
	f := newRetrierFixture(t)
	ctx := context.Background()
	key, saleID := f.stockWithHold(t, 2, 0)
	entry, err := f.log.Record(ctx, *f.record(t, saleID, key, enums.ReconciliationOpApplyDelta, -1, 0))
	require.NoError(t, err)
	f.locker.denied = true

	_, err = f.retrier.Retry(ctx, entry.ID, operator)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestResolveManuallyReleasesHold(t *testing.T) {
	f := newRetrierFixture(t)
	ctx := context.Background()
	key, saleID := f.stockWithHold(t, 4, 3)
	entry, err := f.log.Record(ctx, *f.record(t, saleID, key, enums.ReconciliationOpApplyDelta, -3, 3))
	require.NoError(t, err)

	resolved, err := f.retrier.ResolveManually(ctx, entry.ID, operator)
	require.NoError(t, err)
	require.True(t, resolved.Resolved)

	current, err := f.ledger.Entry(ctx, key)
	require.NoError(t, err)
	require.Equal(t, 4, current.Quantity)
	require.Zero(t, current.Reserved)

	hold, err := f.ledger.HoldForSale(ctx, saleID)
	require.NoError(t, err)
	require.Equal(t, enums.StockHoldReleased, hold.Status)
}

func TestSweepCountsOutcomes(t *testing.T) {
	f := newRetrierFixture(t)
	ctx := context.Background()

	healthy, healthySale := f.stockWithHold(t, 3, 1)
	_, err := f.log.Record(ctx, *f.record(t, healthySale, healthy, enums.ReconciliationOpApplyDelta, -1, 1))
	require.NoError(t, err)

	short, shortSale := f.stockWithHold(t, 1, 0)
	stuck, err := f.log.Record(ctx, *f.record(t, shortSale, short, enums.ReconciliationOpApplyDelta, -5, 0))
	require.NoError(t, err)

	result, err := f.retrier.Sweep(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, SweepResult{Scanned: 2, Resolved: 1, Failed: 1}, result)

	pending, err := f.log.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, stuck.ID, pending[0].ID)
}

func TestSweepSkipsLockedSales(t *testing.T) {
	f := newRetrierFixture(t)
	ctx := context.Background()
	key, saleID := f.stockWithHold(t, 2, 0)
	_, err := f.log.Record(ctx, *f.record(t, saleID, key, enums.ReconciliationOpApplyDelta, -1, 0))
	require.NoError(t, err)
	f.locker.denied = true

	result, err := f.retrier.Sweep(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, result.Skipped)
}

func TestExpireHoldsReleasesHoldsWithoutSale(t *testing.T) {
	f := newRetrierFixture(t)
	ctx := context.Background()
	key, saleID := f.stockWithHold(t, 1, 1)

	result, err := f.retrier.ExpireHolds(ctx, 10)
	require.NoError(t, err)
	require.Zero(t, result.ExpiredHolds)

	f.now = f.now.Add(2 * time.Minute)
	result, err = f.retrier.ExpireHolds(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, RecoveryResult{ExpiredHolds: 1, HoldsReleased: 1}, result)

	current, err := f.ledger.Entry(ctx, key)
	require.NoError(t, err)
	require.Equal(t, 1, current.Quantity)
	require.Zero(t, current.Reserved)
	require.Equal(t, 1, current.Available())

	hold, err := f.ledger.HoldForSale(ctx, saleID)
	require.NoError(t, err)
	require.Equal(t, enums.StockHoldReleased, hold.Status)
}

func TestExpireHoldsRecordsStoredSale(t *testing.T) {
	f := newRetrierFixture(t)
	ctx := context.Background()
	key, saleID := f.stockWithHold(t, 4, 2)
	f.storeSale(t, saleID, key, enums.SaleKindConsumer, 2)

	f.now = f.now.Add(2 * time.Minute)
	result, err := f.retrier.ExpireHolds(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, RecoveryResult{ExpiredHolds: 1, Recorded: 1}, result)

	pending, err := f.log.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, saleID, pending[0].SaleID)
	require.Equal(t, -2, pending[0].ExpectedDelta)
	require.Equal(t, enums.ReconciliationReasonUnsettled, pending[0].Reason)

	_, err = f.retrier.Retry(ctx, pending[0].ID, operator)
	require.NoError(t, err)
	current, err := f.ledger.Entry(ctx, key)
	require.NoError(t, err)
	require.Equal(t, 2, current.Quantity)
	require.Zero(t, current.Reserved)
}

func TestRecoverUnsettledRecordsOrphanedSales(t *testing.T) {
	f := newRetrierFixture(t)
	ctx := context.Background()
	key := stock.NewKey(uuid.New(), uuid.New(), "LOT-2")
	sale := f.storeSale(t, uuid.New(), key, enums.SaleKindDealerSupply, 6)

	result, err := f.retrier.RecoverUnsettled(ctx, time.Minute, 10)
	require.NoError(t, err)
	require.Zero(t, result.Recorded)

	f.now = f.now.Add(5 * time.Minute)
	result, err = f.retrier.RecoverUnsettled(ctx, time.Minute, 10)
	require.NoError(t, err)
	require.Equal(t, 1, result.Recorded)

	result, err = f.retrier.RecoverUnsettled(ctx, time.Minute, 10)
	require.NoError(t, err)
	require.Zero(t, result.Recorded)

	pending, err := f.log.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, sale.ID, pending[0].SaleID)
	require.Equal(t, enums.ReconciliationOpCreateOrIncrement, pending[0].Operation)
	require.Equal(t, 6, pending[0].ExpectedDelta)
	require.Equal(t, "LOT-2", pending[0].BatchNumber)
}

func TestNewRetrierRequiresDependencies(t *testing.T) {
	_, err := NewRetrier(RetrierParams{})
	require.Error(t, err)
}

package reconciliation

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/salesdesk-backend/pkg/db/dbtest"
	"github.com/angelmondragon/salesdesk-backend/pkg/db/models"
	"github.com/angelmondragon/salesdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/salesdesk-backend/pkg/errors"
	"github.com/angelmondragon/salesdesk-backend/pkg/outbox"
	"github.com/angelmondragon/salesdesk-backend/pkg/types"
)

var operator = types.Actor{UserID: uuid.New(), Role: enums.ActorRoleAdmin}

func newTestLog(t *testing.T) (Log, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)
	l, err := NewLog(NewRepository(conn), emitter, nil, nil)
	require.NoError(t, err)
	return l, conn
}

func applyDeltaInput(saleID uuid.UUID) RecordInput {
	return RecordInput{
		SaleID:        saleID,
		DealerID:      uuid.New(),
		ProductID:     uuid.New(),
		Operation:     enums.ReconciliationOpApplyDelta,
		ExpectedDelta: -1,
		ReleaseHold:   1,
		Err:           pkgerrors.New(pkgerrors.CodeConflict, "stale version"),
	}
}

func countEvents(t *testing.T, conn *gorm.DB, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error)
	return count
}

func TestRecordIsIdempotentPerSale(t *testing.T) {
	l, conn := newTestLog(t)
	ctx := context.Background()
	input := applyDeltaInput(uuid.New())

	first, err := l.Record(ctx, input)
	require.NoError(t, err)
	require.Equal(t, enums.ReconciliationReasonConflict, first.Reason)
	require.NotNil(t, first.LastError)

	second, err := l.Record(ctx, input)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	pending, err := l.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.EqualValues(t, 1, countEvents(t, conn, enums.EventStockReconcileFailed))
}

func TestRecordExplicitReasonWins(t *testing.T) {
	l, _ := newTestLog(t)
	input := applyDeltaInput(uuid.New())
	input.Reason = enums.ReconciliationReasonTransientIO

	entry, err := l.Record(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, enums.ReconciliationReasonTransientIO, entry.Reason)
}

func TestRecordRejectsIncompleteInput(t *testing.T) {
	l, _ := newTestLog(t)
	ctx := context.Background()

	_, err := l.Record(ctx, RecordInput{Operation: enums.ReconciliationOpApplyDelta})
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	input := applyDeltaInput(uuid.New())
	input.Operation = "rewind"
	_, err = l.Record(ctx, input)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestResolveClosesEntryOnce(t *testing.T) {
	l, conn := newTestLog(t)
	ctx := context.Background()
	entry, err := l.Record(ctx, applyDeltaInput(uuid.New()))
	require.NoError(t, err)

	resolved, err := l.Resolve(ctx, entry.ID, operator)
	require.NoError(t, err)
	require.True(t, resolved.Resolved)
	require.NotNil(t, resolved.ResolvedAt)
	require.Equal(t, operator.UserID, *resolved.ResolvedBy)

	again, err := l.Resolve(ctx, entry.ID, operator)
	require.NoError(t, err)
	require.True(t, again.Resolved)
	require.EqualValues(t, 1, countEvents(t, conn, enums.EventReconciliationResolved))

	count, err := l.CountPending(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestResolveUnknownEntryIsNotFound(t *testing.T) {
	l, _ := newTestLog(t)
	_, err := l.Resolve(context.Background(), uuid.New(), operator)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = l.Get(context.Background(), uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRecordAfterResolveOpensNewEntry(t *testing.T) {
	l, _ := newTestLog(t)
	ctx := context.Background()
	input := applyDeltaInput(uuid.New())

	first, err := l.Record(ctx, input)
	require.NoError(t, err)
	_, err = l.Resolve(ctx, first.ID, operator)
	require.NoError(t, err)

	second, err := l.Record(ctx, input)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
}

func TestMarkAttemptCountsFailures(t *testing.T) {
	l, _ := newTestLog(t)
	ctx := context.Background()
	entry, err := l.Record(ctx, applyDeltaInput(uuid.New()))
	require.NoError(t, err)

	require.NoError(t, l.MarkAttempt(ctx, entry.ID, errors.New("still short")))
	require.NoError(t, l.MarkAttempt(ctx, entry.ID, errors.New("still short again")))

	got, err := l.Get(ctx, entry.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.Attempts)
	require.Equal(t, "still short again", *got.LastError)
}

func TestReasonFor(t *testing.T) {
	cases := []struct {
		err  error
		want enums.ReconciliationReason
	}{
		{nil, enums.ReconciliationReasonUnknown},
		{pkgerrors.New(pkgerrors.CodeInsufficient, "short"), enums.ReconciliationReasonInsufficientStock},
		{pkgerrors.New(pkgerrors.CodeConflict, "stale"), enums.ReconciliationReasonConflict},
		{pkgerrors.New(pkgerrors.CodeNotFound, "gone"), enums.ReconciliationReasonNotFound},
		{pkgerrors.New(pkgerrors.CodeDependency, "db down"), enums.ReconciliationReasonTransientIO},
		{errors.New("plain"), enums.ReconciliationReasonUnknown},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ReasonFor(tc.err))
	}
}

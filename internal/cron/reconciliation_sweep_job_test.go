package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/salesdesk-backend/internal/reconciliation"
	"github.com/angelmondragon/salesdesk-backend/pkg/logger"
)

type fakeSweeper struct {
	limit  int
	result reconciliation.SweepResult
	err    error
}

func (f *fakeSweeper) Sweep(_ context.Context, limit int) (reconciliation.SweepResult, error) {
	f.limit = limit
	return f.result, f.err
}

func TestReconciliationSweepJobUsesBatchSize(t *testing.T) {
	sweeper := &fakeSweeper{result: reconciliation.SweepResult{Scanned: 3, Resolved: 2, Failed: 1}}
	job, err := NewReconciliationSweepJob(ReconciliationSweepJobParams{
		Logger:    logger.Nop(),
		Retrier:   sweeper,
		BatchSize: 20,
	})
	require.NoError(t, err)
	require.Equal(t, "reconciliation-sweep", job.Name())

	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, 20, sweeper.limit)
}

func TestReconciliationSweepJobDefaultsBatch(t *testing.T) {
	sweeper := &fakeSweeper{}
	job, err := NewReconciliationSweepJob(ReconciliationSweepJobParams{Logger: logger.Nop(), Retrier: sweeper})
	require.NoError(t, err)
	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, defaultSweepBatch, sweeper.limit)
}

func TestReconciliationSweepJobReturnsInfrastructureErrors(t *testing.T) {
	sweeper := &fakeSweeper{err: errors.New("db down")}
	job, err := NewReconciliationSweepJob(ReconciliationSweepJobParams{Logger: logger.Nop(), Retrier: sweeper})
	require.NoError(t, err)
	require.ErrorContains(t, job.Run(context.Background()), "db down")
}

func TestReconciliationSweepJobRequiresRetrier(t *testing.T) {
	_, err := NewReconciliationSweepJob(ReconciliationSweepJobParams{Logger: logger.Nop()})
	require.Error(t, err)
}

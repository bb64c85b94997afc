package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/salesdesk-backend/internal/reconciliation"
	"github.com/angelmondragon/salesdesk-backend/pkg/logger"
)

const defaultSweepBatch = 50

type sweeper interface {
	Sweep(ctx context.Context, limit int) (reconciliation.SweepResult, error)
}

// ReconciliationSweepJobParams wires the pending-stock sweep.
type ReconciliationSweepJobParams struct {
	Logger    *logger.Logger
	Retrier   sweeper
	BatchSize int
}

// NewReconciliationSweepJob retries the oldest pending reconciliation entries.
func NewReconciliationSweepJob(params ReconciliationSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Retrier == nil {
		return nil, fmt.Errorf("reconciliation retrier required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	return &reconciliationSweepJob{logg: params.Logger, retrier: params.Retrier, batch: batch}, nil
}

type reconciliationSweepJob struct {
	logg    *logger.Logger
	retrier sweeper
	batch   int
}

func (j *reconciliationSweepJob) Name() string { return "reconciliation-sweep" }

func (j *reconciliationSweepJob) Run(ctx context.Context) error {
	result, err := j.retrier.Sweep(ctx, j.batch)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned":  result.Scanned,
		"resolved": result.Resolved,
		"failed":   result.Failed,
		"skipped":  result.Skipped,
	})
	if err != nil {
		return fmt.Errorf("reconciliation sweep: %w", err)
	}
	if result.Scanned == 0 {
		j.logg.Debug(logCtx, "no pending reconciliation entries")
		return nil
	}
	j.logg.Info(logCtx, "reconciliation sweep complete")
	return nil
}

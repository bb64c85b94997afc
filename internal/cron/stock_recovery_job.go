package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/salesdesk-backend/internal/reconciliation"
	"github.com/angelmondragon/salesdesk-backend/pkg/logger"
)

const defaultSettleGrace = 15 * time.Minute

type recoverer interface {
	ExpireHolds(ctx context.Context, limit int) (reconciliation.RecoveryResult, error)
	RecoverUnsettled(ctx context.Context, grace time.Duration, limit int) (reconciliation.RecoveryResult, error)
}

// StockRecoveryJobParams wires the expired-hold and unsettled-sale sweep.
type StockRecoveryJobParams struct {
	Logger      *logger.Logger
	Recoverer   recoverer
	BatchSize   int
	SettleGrace time.Duration
}

// NewStockRecoveryJob releases expired holds whose sale never landed and
// opens reconciliation entries for sales that never touched stock.
func NewStockRecoveryJob(params StockRecoveryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Recoverer == nil {
		return nil, fmt.Errorf("stock recoverer required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	grace := params.SettleGrace
	if grace <= 0 {
		grace = defaultSettleGrace
	}
	return &stockRecoveryJob{logg: params.Logger, recoverer: params.Recoverer, batch: batch, grace: grace}, nil
}

type stockRecoveryJob struct {
	logg      *logger.Logger
	recoverer recoverer
	batch     int
	grace     time.Duration
}

func (j *stockRecoveryJob) Name() string { return "stock-recovery" }

// Run attempts both passes; a failure in one does not skip the other.
func (j *stockRecoveryJob) Run(ctx context.Context) error {
	holds, holdErr := j.recoverer.ExpireHolds(ctx, j.batch)
	orphans, orphanErr := j.recoverer.RecoverUnsettled(ctx, j.grace, j.batch)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"expired_holds":    holds.ExpiredHolds,
		"holds_released":   holds.HoldsReleased,
		"holds_recorded":   holds.Recorded,
		"unsettled_sales":  orphans.Recorded,
		"settle_grace_sec": int(j.grace.Seconds()),
	})
	if err := multierr.Combine(holdErr, orphanErr); err != nil {
		return fmt.Errorf("stock recovery: %w", err)
	}
	if holds.ExpiredHolds == 0 && orphans.Recorded == 0 {
		j.logg.Debug(logCtx, "no expired holds or unsettled sales")
		return nil
	}
	j.logg.Warn(logCtx, "stock recovery found unsettled work")
	return nil
}

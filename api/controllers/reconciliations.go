package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/salesdesk-backend/api/middleware"
	"github.com/angelmondragon/salesdesk-backend/api/responses"
	"github.com/angelmondragon/salesdesk-backend/api/validators"
	"github.com/angelmondragon/salesdesk-backend/internal/reconciliation"
	"github.com/angelmondragon/salesdesk-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/salesdesk-backend/pkg/errors"
	"github.com/angelmondragon/salesdesk-backend/pkg/logger"
	"github.com/angelmondragon/salesdesk-backend/pkg/types"
)

const (
	defaultReconciliationLimit = 50
	maxReconciliationLimit     = 500
)

// Reconciler settles pending reconciliation entries.
type Reconciler interface {
	Retry(ctx context.Context, entryID uuid.UUID, actor types.Actor) (*models.ReconciliationEntry, error)
	ResolveManually(ctx context.Context, entryID uuid.UUID, actor types.Actor) (*models.ReconciliationEntry, error)
}

type pendingReconciliations struct {
	Items        []reconciliation.EntryDTO `json:"items"`
	PendingTotal int64                     `json:"pending_total"`
}

// ReconciliationsList returns the oldest unresolved entries first.
func ReconciliationsList(entries reconciliation.Log, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if entries == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation log unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", defaultReconciliationLimit, 1, maxReconciliationLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := entries.ListPending(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		total, err := entries.CountPending(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := pendingReconciliations{Items: make([]reconciliation.EntryDTO, 0, len(rows)), PendingTotal: total}
		for i := range rows {
			out.Items = append(out.Items, reconciliation.FromModel(&rows[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// ReconciliationRetry re-applies the entry's stock change and resolves it.
func ReconciliationRetry(svc Reconciler, logg *logger.Logger) http.HandlerFunc {
	return reconcile(svc, logg, Reconciler.Retry)
}

// ReconciliationResolve marks an entry fixed out of band.
func ReconciliationResolve(svc Reconciler, logg *logger.Logger) http.HandlerFunc {
	return reconcile(svc, logg, Reconciler.ResolveManually)
}

func reconcile(
	svc Reconciler,
	logg *logger.Logger,
	op func(Reconciler, context.Context, uuid.UUID, types.Actor) (*models.ReconciliationEntry, error),
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciler unavailable"))
			return
		}

		id, err := validators.URLParamUUID(r, "entryId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entry, err := op(svc, r.Context(), id, middleware.ActorFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, reconciliation.FromModel(entry))
	}
}

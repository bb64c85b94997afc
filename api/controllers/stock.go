package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/salesdesk-backend/api/middleware"
	"github.com/angelmondragon/salesdesk-backend/api/responses"
	"github.com/angelmondragon/salesdesk-backend/api/validators"
	"github.com/angelmondragon/salesdesk-backend/internal/stock"
	"github.com/angelmondragon/salesdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/salesdesk-backend/pkg/errors"
	"github.com/angelmondragon/salesdesk-backend/pkg/logger"
)

const (
	defaultMovementLimit = 50
	maxMovementLimit     = 200
)

// StockGet returns one stock entry with its available count.
func StockGet(ledger stock.Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ledger == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock ledger unavailable"))
			return
		}

		key, err := parseStockKey(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entry, err := ledger.Entry(r.Context(), key)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, stock.EntryFromModel(entry))
	}
}

// StockMovements returns the newest journal rows for one stock entry.
func StockMovements(ledger stock.Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ledger == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock ledger unavailable"))
			return
		}

		key, err := parseStockKey(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", defaultMovementLimit, 1, maxMovementLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := ledger.EntryMovements(r.Context(), key, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]stock.MovementDTO, 0, len(rows))
		for _, m := range rows {
			out = append(out, stock.MovementFromModel(m))
		}
		responses.WriteSuccess(w, out)
	}
}

type stockAdjustmentRequest struct {
	DealerID    uuid.UUID `json:"dealer_id" validate:"required"`
	ProductID   uuid.UUID `json:"product_id" validate:"required"`
	BatchNumber string    `json:"batch_number" validate:"max=64"`
	Delta       int       `json:"delta" validate:"ne=0"`
}

// StockAdjust applies an operator correction. Positive deltas create the
// entry when missing; negative deltas never take held units.
func StockAdjust(ledger stock.Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if ledger == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock ledger unavailable"))
			return
		}

		var req stockAdjustmentRequest
		if err := validators.DecodeJSONBody(w, r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		key := stock.NewKey(req.DealerID, req.ProductID, req.BatchNumber)
		actor := middleware.ActorFromContext(ctx)
		opts := []stock.Option{stock.WithMovementKind(enums.MovementAdjustment), stock.WithActor(actor)}

		var err error
		if req.Delta > 0 {
			_, err = ledger.CreateOrIncrement(ctx, key, req.Delta, opts...)
		} else {
			_, err = ledger.ApplyDelta(ctx, key, req.Delta, opts...)
		}
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		entry, err := ledger.Entry(ctx, key)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			ctx = logg.WithStockKey(ctx, key.DealerID, key.ProductID, key.BatchNumber)
			logg.Info(logg.WithField(ctx, "delta", req.Delta), "stock.adjusted")
		}
		responses.WriteSuccess(w, stock.EntryFromModel(entry))
	}
}

func parseStockKey(r *http.Request) (stock.Key, error) {
	dealerID, err := validators.ParseQueryUUID(r, "dealer_id", true)
	if err != nil {
		return stock.Key{}, err
	}
	productID, err := validators.ParseQueryUUID(r, "product_id", true)
	if err != nil {
		return stock.Key{}, err
	}
	batch, err := validators.ParseQueryBatch(r, "batch")
	if err != nil {
		return stock.Key{}, err
	}
	return stock.NewKey(*dealerID, *productID, batch), nil
}

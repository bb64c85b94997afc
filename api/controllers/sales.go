package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/salesdesk-backend/api/middleware"
	"github.com/angelmondragon/salesdesk-backend/api/responses"
	"github.com/angelmondragon/salesdesk-backend/api/validators"
	"github.com/angelmondragon/salesdesk-backend/internal/intake"
	"github.com/angelmondragon/salesdesk-backend/internal/sales"
	"github.com/angelmondragon/salesdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/salesdesk-backend/pkg/errors"
	"github.com/angelmondragon/salesdesk-backend/pkg/logger"
	"github.com/angelmondragon/salesdesk-backend/pkg/pagination"
	"github.com/angelmondragon/salesdesk-backend/pkg/types"
)

// SaleIntake is the coordinator surface the sale routes drive.
type SaleIntake interface {
	CreateSale(ctx context.Context, actor types.Actor, in intake.ConsumerIntake) (*intake.SaleResult, error)
	CreateSupplySale(ctx context.Context, actor types.Actor, in intake.SupplyIntake) (*intake.SaleResult, error)
}

// SalesCreate records a consumer sale. A sale whose stock could not be
// settled still answers 201 with reconciled=false and a warning.
func SalesCreate(svc SaleIntake, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sale intake unavailable"))
			return
		}

		var in intake.ConsumerIntake
		if err := validators.DecodeJSON(w, r, &in); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateSale(r.Context(), middleware.ActorFromContext(r.Context()), in)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// SalesCreateSupply records a manufacturer-to-dealer batch sale.
func SalesCreateSupply(svc SaleIntake, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sale intake unavailable"))
			return
		}

		var in intake.SupplyIntake
		if err := validators.DecodeJSON(w, r, &in); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateSupplySale(r.Context(), middleware.ActorFromContext(r.Context()), in)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func SalesGet(store sales.Store, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sale store unavailable"))
			return
		}

		id, err := validators.URLParamUUID(r, "saleId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sale, err := store.FindByID(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, sales.FromModel(sale))
	}
}

// SalesList pages sales newest first, optionally filtered by dealer,
// product, customer and kind.
func SalesList(store sales.Store, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sale store unavailable"))
			return
		}

		input, err := parseSaleListInput(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := store.List(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := pagination.Page[sales.SaleDTO]{
			Items:      make([]sales.SaleDTO, 0, len(page.Items)),
			NextCursor: page.NextCursor,
		}
		for i := range page.Items {
			out.Items = append(out.Items, sales.FromModel(&page.Items[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

func parseSaleListInput(r *http.Request) (sales.ListInput, error) {
	var input sales.ListInput
	var err error

	if input.Filter.DealerID, err = validators.ParseQueryUUID(r, "dealer_id", false); err != nil {
		return input, err
	}
	if input.Filter.ProductID, err = validators.ParseQueryUUID(r, "product_id", false); err != nil {
		return input, err
	}
	if input.Filter.CustomerID, err = validators.ParseQueryUUID(r, "customer_id", false); err != nil {
		return input, err
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("kind")); raw != "" {
		kind, parseErr := enums.ParseSaleKind(raw)
		if parseErr != nil {
			return input, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid sale kind").
				WithDetails(map[string]any{"field": "kind"})
		}
		input.Filter.Kind = kind
	}

	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return input, err
	}
	input.Params = pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}
	return input, nil
}

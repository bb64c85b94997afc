package controllers

import (
	"net/http"

	"github.com/angelmondragon/salesdesk-backend/api/responses"
	"github.com/angelmondragon/salesdesk-backend/internal/customers"
	pkgerrors "github.com/angelmondragon/salesdesk-backend/pkg/errors"
	"github.com/angelmondragon/salesdesk-backend/pkg/logger"
)

// CustomerLookup resolves a customer by contact number without creating one.
func CustomerLookup(svc customers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "customer service unavailable"))
			return
		}

		contact := r.URL.Query().Get("contact")
		if contact == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "query parameter required").
				WithDetails(map[string]any{"field": "contact"}))
			return
		}

		customer, err := svc.Resolve(r.Context(), contact)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, customers.FromModel(customer))
	}
}

package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/salesdesk-backend/api/responses"
	"github.com/angelmondragon/salesdesk-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/salesdesk-backend/pkg/errors"
	"github.com/angelmondragon/salesdesk-backend/pkg/logger"
	"github.com/angelmondragon/salesdesk-backend/pkg/types"
)

const (
	ActorIDHeader   = "X-Actor-Id"
	ActorRoleHeader = "X-Actor-Role"
)

// Actor reads the gateway-asserted identity headers once per request. A
// missing or malformed identity is rejected before any handler runs.
func Actor(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			rawID := strings.TrimSpace(r.Header.Get(ActorIDHeader))
			rawRole := strings.TrimSpace(r.Header.Get(ActorRoleHeader))
			if rawID == "" || rawRole == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing"))
				return
			}

			userID, err := uuid.Parse(rawID)
			if err != nil || userID == uuid.Nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid actor id"))
				return
			}
			role, err := enums.ParseActorRole(strings.ToLower(rawRole))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid actor role"))
				return
			}

			actor := types.Actor{UserID: userID, Role: role}
			ctx = WithActor(ctx, actor)
			if logg != nil {
				ctx = logg.WithActor(ctx, userID.String(), role.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

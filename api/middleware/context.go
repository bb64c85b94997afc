package middleware

import (
	"context"

	"github.com/angelmondragon/salesdesk-backend/pkg/types"
)

type contextKey string

const ctxActor contextKey = "actor"

// ActorFromContext returns the actor attached by Actor; the zero actor when
// the request carried none.
func ActorFromContext(ctx context.Context) types.Actor {
	if ctx == nil {
		return types.Actor{}
	}
	if v, ok := ctx.Value(ctxActor).(types.Actor); ok {
		return v
	}
	return types.Actor{}
}

// WithActor injects the actor into the context for downstream handlers.
func WithActor(ctx context.Context, actor types.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActor, actor)
}

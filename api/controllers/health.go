package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/salesdesk-backend/api/responses"
	"github.com/angelmondragon/salesdesk-backend/pkg/config"
	"github.com/angelmondragon/salesdesk-backend/pkg/db"
	pkgerrors "github.com/angelmondragon/salesdesk-backend/pkg/errors"
	"github.com/angelmondragon/salesdesk-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/salesdesk-backend/pkg/redis"
)

const (
	envHeader        = "X-Salesdesk-Env"
	readinessTimeout = 2 * time.Second
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every backing store; the first failure reports
// DEPENDENCY_ERROR with the failing component.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP pkgredis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := []struct {
			name string
			ping func(context.Context) error
		}{
			{name: "database", ping: pingFunc(dbP)},
			{name: "redis", ping: pingFunc(redisP)},
		}
		for _, check := range checks {
			if check.ping == nil {
				continue
			}
			if err := check.ping(ctx); err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, check.name+" unavailable").
					WithDetails(map[string]string{"component": check.name}))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}

type pinger interface {
	Ping(context.Context) error
}

func pingFunc(p pinger) func(context.Context) error {
	if p == nil {
		return nil
	}
	return p.Ping
}

package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/salesdesk-backend/api/controllers"
	"github.com/angelmondragon/salesdesk-backend/api/middleware"
	"github.com/angelmondragon/salesdesk-backend/internal/customers"
	"github.com/angelmondragon/salesdesk-backend/internal/reconciliation"
	"github.com/angelmondragon/salesdesk-backend/internal/sales"
	"github.com/angelmondragon/salesdesk-backend/internal/stock"
	"github.com/angelmondragon/salesdesk-backend/pkg/config"
	"github.com/angelmondragon/salesdesk-backend/pkg/db"
	"github.com/angelmondragon/salesdesk-backend/pkg/enums"
	"github.com/angelmondragon/salesdesk-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/salesdesk-backend/pkg/redis"
)

// RouterParams carries everything the HTTP surface is wired to. Redis and
// Gatherer are optional; without Redis the idempotency and rate-limit
// layers pass requests through.
type RouterParams struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             db.Pinger
	Redis          *pkgredis.Client
	Gatherer       prometheus.Gatherer
	Intake         controllers.SaleIntake
	Sales          sales.Store
	Customers      customers.Service
	Stock          stock.Ledger
	Reconciliation reconciliation.Log
	Reconciler     controllers.Reconciler
}

var (
	sellerRoles   = []enums.ActorRole{enums.ActorRoleDealer, enums.ActorRoleStaff, enums.ActorRoleAdmin}
	supplierRoles = []enums.ActorRole{enums.ActorRoleManufacturer, enums.ActorRoleAdmin}
	operatorRoles = []enums.ActorRole{enums.ActorRoleStaff, enums.ActorRoleAdmin}
)

func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	logg := p.Logger
	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	var (
		idemStore pkgredis.IdempotencyStore
		redisPing pkgredis.Pinger
		limiter   middleware.WindowLimiter
	)
	if p.Redis != nil {
		idemStore = p.Redis
		redisPing = p.Redis
		limiter = p.Redis
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DB, redisPing))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	intakePolicy := middleware.NewRateLimitPolicy("intake", cfg.HTTP.IntakeRateWindow, cfg.HTTP.IntakeRateLimit)
	intakeLimit := middleware.RateLimit(intakePolicy, limiter, logg)
	idempotent := middleware.Idempotency(idemStore, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Actor(logg))

		r.With(middleware.RequireActorRoles(logg, sellerRoles...), intakeLimit, idempotent).
			Post("/sales", controllers.SalesCreate(p.Intake, logg))
		r.With(middleware.RequireActorRoles(logg, supplierRoles...), intakeLimit, idempotent).
			Post("/sales/supply", controllers.SalesCreateSupply(p.Intake, logg))
		r.Get("/sales", controllers.SalesList(p.Sales, logg))
		r.Get("/sales/{saleId}", controllers.SalesGet(p.Sales, logg))

		r.Get("/customers/lookup", controllers.CustomerLookup(p.Customers, logg))

		r.Get("/stock", controllers.StockGet(p.Stock, logg))
		r.Get("/stock/movements", controllers.StockMovements(p.Stock, logg))
		r.With(middleware.RequireActorRoles(logg, operatorRoles...), idempotent).
			Post("/stock/adjustments", controllers.StockAdjust(p.Stock, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireActorRoles(logg, operatorRoles...))
			r.Get("/reconciliations", controllers.ReconciliationsList(p.Reconciliation, logg))
			r.With(idempotent).Post("/reconciliations/{entryId}/retry", controllers.ReconciliationRetry(p.Reconciler, logg))
			r.With(idempotent).Post("/reconciliations/{entryId}/resolve", controllers.ReconciliationResolve(p.Reconciler, logg))
		})
	})

	return r
}

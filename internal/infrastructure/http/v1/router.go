// Package v1 provides HTTP API version 1.
package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tradeledger/internal/app"
	"tradeledger/internal/domain/auth"
	"tradeledger/internal/infrastructure/http/v1/handlers"
	"tradeledger/internal/infrastructure/http/v1/middleware"
	"tradeledger/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	Services *app.Services

	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator validates bearer tokens. Nil disables authentication
	// and role checks.
	JWTValidator middleware.JWTValidator

	// Idempotency stores responses of keyed mutating requests. Optional.
	Idempotency middleware.IdempotencyStore

	// Metrics instruments requests and serves /metrics. Optional.
	Metrics HTTPMetrics

	// HealthChecks are pinged by /health/ready.
	HealthChecks map[string]handlers.Pinger

	// Info is added to /health/info.
	Info map[string]any
}

// HTTPMetrics is the metrics surface the router needs.
type HTTPMetrics interface {
	Middleware() gin.HandlerFunc
	Handler() http.Handler
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	if cfg.Metrics != nil {
		router.Use(cfg.Metrics.Middleware())
	}
	router.Use(middleware.ErrorHandler())

	health := handlers.NewHealthHandler(cfg.HealthChecks, cfg.Info)
	hg := router.Group("/health")
	{
		hg.GET("/live", health.Live)
		hg.GET("/ready", health.Ready)
		hg.GET("/info", health.Info)
	}
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := router.Group("/api/v1")
	if cfg.JWTValidator != nil {
		api.Use(middleware.Auth(cfg.JWTValidator))
	}
	if cfg.Idempotency != nil {
		api.Use(middleware.Idempotency(cfg.Idempotency))
	}

	r := routes{cfg: cfg, base: handlers.NewBaseHandler()}
	r.invoices(api.Group("/invoices"))
	r.payments(api.Group("/payments"))
	r.journal(api)
	r.rates(api.Group("/rates"))

	return router
}

type routes struct {
	cfg  RouterConfig
	base *handlers.BaseHandler
}

// write guards mutating routes: accountants and admins may post.
func (r routes) write() gin.HandlerFunc { return r.role(auth.RoleAccountant, auth.RoleAdmin) }

// admin guards reference data.
func (r routes) admin() gin.HandlerFunc { return r.role(auth.RoleAdmin) }

func (r routes) role(roles ...string) gin.HandlerFunc {
	if r.cfg.JWTValidator == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return middleware.RequireRole(roles...)
}

func (r routes) invoices(g *gin.RouterGroup) {
	svc := r.cfg.Services
	h := handlers.NewInvoiceHandler(r.base, svc.Invoices, svc.Ledger, svc.Payments)

	g.GET("", h.List)
	g.POST("", r.write(), h.Create)
	g.POST("/preview", h.Preview)
	g.GET("/:number", h.Get)
	g.PATCH("/:number", r.write(), h.UpdateHeader)
	g.POST("/:number/lines", r.write(), h.AddLine)
	g.PATCH("/:number/lines/:lineId", r.write(), h.UpdateLine)
	g.DELETE("/:number/lines/:lineId", r.write(), h.RemoveLine)
	g.POST("/:number/validate", r.write(), h.Validate)
	g.POST("/:number/cancel", r.write(), h.Cancel)
	g.POST("/:number/reverse", r.write(), h.Reverse)
	g.GET("/:number/journal", h.Journal)
	g.GET("/:number/balance", h.Balance)
	g.GET("/:number/payments", h.Payments)
	g.POST("/:number/payments", r.write(), h.RecordPayment)
}

func (r routes) payments(g *gin.RouterGroup) {
	h := handlers.NewPaymentHandler(r.base, r.cfg.Services.Payments)

	g.GET("/:number", h.Get)
	g.POST("/:number/confirm", r.write(), h.Confirm)
	g.POST("/:number/cancel", r.write(), h.Cancel)
}

func (r routes) journal(g *gin.RouterGroup) {
	h := handlers.NewJournalHandler(r.base, r.cfg.Services.Ledger)

	g.GET("/journal/entries", h.Entries)
	g.GET("/journal/verify", h.Verify)
	g.GET("/accounts", h.Accounts)
	g.PUT("/accounts", r.admin(), h.UpsertAccount)
}

func (r routes) rates(g *gin.RouterGroup) {
	h := handlers.NewRateHandler(r.base, r.cfg.Services.Currency)

	g.GET("", h.List)
	g.PUT("", r.admin(), h.Upsert)
	g.GET("/convert", h.Convert)
}

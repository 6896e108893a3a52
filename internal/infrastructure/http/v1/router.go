// Package v1 provides HTTP API version 1.
package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stockledger/internal/domain/inventory"
	"stockledger/internal/domain/receipt"
	"stockledger/internal/domain/reports"
	"stockledger/internal/infrastructure/http/v1/handlers"
	"stockledger/internal/infrastructure/http/v1/middleware"
	"stockledger/pkg/logger"
)

// RouterConfig holds the services and optional collaborators of the API.
type RouterConfig struct {
	Logger *logger.Logger

	Inventory *inventory.Service
	Receipts  *receipt.Service
	Reports   *reports.Service

	// Idempotency, when set, guards mutating endpoints keyed by X-Idempotency-Key.
	Idempotency middleware.IdempotencyStore

	// AuditHistory, when set, exposes /audit.
	AuditHistory handlers.AuditHistory

	// Metrics, when set, instruments requests and serves /metrics.
	Metrics        gin.HandlerFunc
	MetricsHandler http.Handler

	Version      string
	HealthChecks map[string]handlers.Check
}

// NewRouter builds the gin engine.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	router := gin.New()

	// Order matters: recovery outermost so ErrorHandler renders panics.
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.Recovery())
	if cfg.Metrics != nil {
		router.Use(cfg.Metrics)
	}

	health := handlers.NewHealthHandler(cfg.Version, cfg.HealthChecks)
	router.GET("/health/live", health.Live)
	router.GET("/health/ready", health.Ready)
	if cfg.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}

	api := router.Group("/api/v1")
	api.Use(middleware.UserContext())
	if cfg.Idempotency != nil {
		api.Use(middleware.Idempotency(cfg.Idempotency))
	}

	base := handlers.NewBaseHandler()

	if cfg.Inventory != nil {
		RegisterStockRoutes(api.Group("/stock"), handlers.NewStockHandler(base, cfg.Inventory))
	}
	if cfg.Receipts != nil {
		RegisterReceiptRoutes(api.Group("/receipts"), handlers.NewReceiptHandler(base, cfg.Receipts))
	}
	if cfg.Reports != nil {
		registerReportRoutes(api.Group("/reports"), handlers.NewReportsHandler(base, cfg.Reports))
	}
	if cfg.AuditHistory != nil {
		audit := handlers.NewAuditHandler(base, cfg.AuditHistory)
		api.GET("/audit/:entity/:id", audit.History)
	}

	return router
}

func registerReportRoutes(group *gin.RouterGroup, h *handlers.ReportsHandler) {
	group.GET("/valuation", h.Valuation)
	group.GET("/valuation.xlsx", h.ValuationXLSX)
	group.GET("/low-stock", h.LowStock)
	group.GET("/expiring", h.Expiring)
}

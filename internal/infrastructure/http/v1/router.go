// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"tally/internal/domain/catalogs/warehouse"
	"tally/internal/domain/documents"
	"tally/internal/domain/ledger"
	"tally/internal/domain/registers/stock"
	"tally/internal/infrastructure/http/v1/handlers"
	"tally/internal/infrastructure/http/v1/middleware"
	"tally/internal/infrastructure/storage/postgres"
	"tally/pkg/logger"
)

// RouterConfig holds the wired services the router exposes.
type RouterConfig struct {
	// Pool is the database pool (for health checks)
	Pool *postgres.Pool

	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	Ledger     *ledger.Service
	Stock      *stock.Service
	Warehouses *warehouse.Service
	Dispatcher *documents.Dispatcher
	Settings   *documents.SettingsService
	Audit      handlers.AuditReader
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth required)
	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	baseHandler := handlers.NewBaseHandler()

	// API v1 (company scope comes from the JWT)
	api := router.Group("/api/v1")
	api.Use(middleware.Auth(cfg.JWTValidator))
	{
		txHandler := handlers.NewTransactionHandler(baseHandler, cfg.Ledger)
		txHandler.RegisterRoutes(api.Group("/transactions"))

		stockHandler := handlers.NewStockHandler(baseHandler, cfg.Stock, cfg.Warehouses)
		stockHandler.RegisterRoutes(api.Group("/stock"))

		whHandler := handlers.NewWarehouseHandler(baseHandler, cfg.Warehouses)
		whHandler.RegisterRoutes(api.Group("/warehouses"))

		docHandler := handlers.NewDocumentHandler(baseHandler, cfg.Dispatcher, cfg.Audit)
		docHandler.RegisterRoutes(api.Group("/documents"))

		settingsHandler := handlers.NewSettingsHandler(baseHandler, cfg.Settings)
		settingsHandler.RegisterRoutes(api.Group("/settings"))
	}

	return router
}

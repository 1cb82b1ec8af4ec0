// Package main is the entry point for the tally API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tally/internal/domain/auth"
	"tally/internal/domain/catalogs/warehouse"
	"tally/internal/domain/documents"
	"tally/internal/domain/ledger"
	"tally/internal/domain/posting"
	"tally/internal/domain/registers/stock"
	v1 "tally/internal/infrastructure/http/v1"
	"tally/internal/infrastructure/storage/postgres"
	"tally/internal/infrastructure/storage/postgres/catalog_repo"
	"tally/internal/infrastructure/storage/postgres/ledger_repo"
	"tally/internal/infrastructure/storage/postgres/register_repo"
	"tally/pkg/logger"
	"tally/pkg/sequence"
)

func main() {
	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	log.Info("starting tally server")

	// --- Database connection ---
	poolCfg := postgres.DefaultPoolConfig(mustEnv("DATABASE_URL"))
	if maxConns := getEnvInt("DB_MAX_CONNS", 0); maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	// The database may still be coming up when the server starts; connection
	// failures at this stage are transient.
	var pool *postgres.Pool
	err = postgres.WithRetry(ctx, postgres.DefaultRetryConfig(), func(ctx context.Context) error {
		var poolErr error
		pool, poolErr = postgres.NewPool(ctx, poolCfg)
		return poolErr
	})
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txManager := postgres.NewTxManager(pool)

	// --- Sequences ---
	// Transaction numbers are strict and gap-free; warehouse codes never
	// reset and have no year component.
	seqStore := postgres.NewSequenceStore(txManager)
	txnNumbers := sequence.New(seqStore, sequence.DefaultOptions())

	codeOpts := sequence.DefaultOptions()
	codeOpts.ResetPeriod = sequence.ResetNever
	whCodes := sequence.New(seqStore, codeOpts)

	// --- Repositories ---
	ledgerRepo := ledger_repo.NewTransactionRepo(txManager)
	stockRepo := register_repo.NewStockRepo(txManager)
	warehouseRepo := catalog_repo.NewWarehouseRepo(txManager)
	settingsRepo := catalog_repo.NewSettingsRepo(txManager)

	auditLog, err := postgres.NewAuditLog(txManager)
	if err != nil {
		log.Fatalw("failed to initialize audit log", "error", err)
	}

	// --- Services ---
	ledgerService := ledger.NewService(ledgerRepo, txnNumbers, txManager)
	stockService := stock.NewService(stockRepo)
	warehouseService := warehouse.NewService(warehouseRepo, whCodes, txManager)
	settingsService := documents.NewSettingsService(settingsRepo)

	engine := posting.NewEngine(
		ledgerService,
		stockService,
		warehouseService,
		settingsService,
		auditLog,
		txManager,
	)
	dispatcher := documents.NewDispatcher(engine)

	// --- JWT Service ---
	jwtSecret := getEnv("JWT_SECRET", "your-secret-key-change-in-production")
	jwtService := auth.NewJWTService(auth.DefaultJWTConfig(jwtSecret))

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Pool:         pool,
		Logger:       log,
		JWTValidator: jwtService,
		Ledger:       ledgerService,
		Stock:        stockService,
		Warehouses:   warehouseService,
		Dispatcher:   dispatcher,
		Settings:     settingsService,
		Audit:        auditLog,
	})

	// --- HTTP Server ---
	port := getEnv("APP_PORT", "8080")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Infow("server starting", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// Periodic pool stats for operations visibility.
	statsCtx, stopStats := context.WithCancel(ctx)
	defer stopStats()
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-statsCtx.Done():
				return
			case <-ticker.C:
				postgres.LogPoolStats(statsCtx, pool.Pool)
			}
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}

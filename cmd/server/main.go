package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/alpineclub/backend/internal/application/ledgersync"
	"github.com/alpineclub/backend/internal/infrastructure/config"
	"github.com/alpineclub/backend/internal/infrastructure/ledgerclient"
	"github.com/alpineclub/backend/internal/infrastructure/logger"
	"github.com/alpineclub/backend/internal/infrastructure/persistence"
	"github.com/alpineclub/backend/internal/interfaces/http/handler"
	"github.com/alpineclub/backend/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting club backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Initialize database connection
	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Initialize repositories
	personRepo := persistence.NewGormPersonRepository(db.DB)
	invoiceRepo := persistence.NewGormInvoiceRepository(db.DB)

	// Initialize the ledger client and synchronizers
	ledgerClient, err := ledgerclient.NewClient(&cfg.Ledger, log)
	if err != nil {
		log.Fatal("Failed to initialize ledger client", zap.Error(err))
	}
	subjectSync := ledgersync.NewSubjectSynchronizer(ledgerClient, personRepo, log)
	orderSync := ledgersync.NewSalesOrderSynchronizer(ledgerClient, invoiceRepo, log)
	bulkRunner := ledgersync.NewBulkRunner(subjectSync, orderSync, personRepo, invoiceRepo, &cfg.Sync, log)

	// Initialize HTTP handlers
	syncHandler := handler.NewSyncHandler(subjectSync, orderSync, bulkRunner, personRepo, invoiceRepo, log)

	// Setup Gin
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/health", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(syncHandler)
	r.Setup()

	srv := &http.Server{
		Addr:    ":" + cfg.App.Port,
		Handler: engine,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Server exited")
}

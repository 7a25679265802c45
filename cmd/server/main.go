package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"propdesk/internal/adapters/denylist"
	"propdesk/internal/adapters/http/routes"
	"propdesk/internal/adapters/persistence/memory"
	"propdesk/internal/adapters/persistence/models"
	"propdesk/internal/adapters/persistence/repositories"
	"propdesk/internal/adapters/storage"
	"propdesk/internal/config"
	"propdesk/internal/core/services"
	"propdesk/internal/pkg/safelog"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
)

// @title PropDesk Contractor Portal API
// @version 1.0
// @description Token-scoped scheduling and invoicing for maintenance contractors

// @contact.name API Support
// @contact.email support@propdesk.example

// @BasePath /api/v1
// @schemes https http

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the portal token.

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load configuration: %v", err)
	}
	safelog.SetProduction(cfg.IsProd())

	clock := clockwork.NewRealClock()

	// Connect to database (nil for the memory driver)
	db, err := config.ConnectDatabase(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer config.CloseDatabase()

	var repos *repositories.Registry
	if db != nil {
		// Auto migrate (creates tables if not exist)
		if err := models.AutoMigrate(db); err != nil {
			log.Fatalf("❌ Failed to auto migrate: %v", err)
		}
		log.Println("✅ Database migration completed")
		repos = repositories.NewRegistry(db)
	} else {
		repos = memory.NewRegistry(clock)
	}

	// Seed demo data (dev only)
	if cfg.IsDev() {
		if err := config.NewSeeder(repos).Run(context.Background()); err != nil {
			log.Printf("⚠️ Warning: Failed to seed data: %v", err)
		}
	}

	opts := routes.Options{
		Denylist:  newDenylist(cfg, clock),
		Documents: newDocumentStore(cfg),
		Clock:     clock,
	}

	// Hourly purge of expired links and sessions
	cronService := services.NewCronService(repos.Links, repos.Sessions, clock)
	if err := cronService.Start(); err != nil {
		log.Fatalf("❌ Failed to start cron service: %v", err)
	}
	defer cronService.Stop()

	// Create Fiber app with middlewares, then routes
	app := routes.NewApp(cfg)
	routes.Setup(app, repos, cfg, opts)

	// Graceful shutdown
	go gracefulShutdown(app)

	// Start server
	log.Printf("🚀 Server starting on port %s [MODE: %s]", cfg.Port, cfg.AppMode)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}

// newDenylist prefers Redis and falls back to process memory
func newDenylist(cfg *config.Config, clock clockwork.Clock) services.TokenDenylist {
	if cfg.Redis.Addr == "" {
		return denylist.NewMemory(clock)
	}

	rdb := denylist.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx); err != nil {
		log.Printf("⚠️ Redis unreachable at %s, using in-memory denylist: %v", cfg.Redis.Addr, err)
		_ = rdb.Close()
		return denylist.NewMemory(clock)
	}

	log.Printf("✅ Credential denylist connected [redis %s]", cfg.Redis.Addr)
	return rdb
}

func newDocumentStore(cfg *config.Config) services.DocumentStore {
	if cfg.Storage.Driver == "s3" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store, err := storage.NewS3Store(ctx, storage.S3StoreConfig{
			Bucket:   cfg.Storage.S3Bucket,
			Region:   cfg.Storage.S3Region,
			Endpoint: cfg.Storage.S3Endpoint,
			Prefix:   cfg.Storage.S3Prefix,
		})
		if err != nil {
			log.Fatalf("❌ Failed to initialize S3 store: %v", err)
		}
		log.Printf("✅ Document store ready [s3://%s/%s]", cfg.Storage.S3Bucket, cfg.Storage.S3Prefix)
		return store
	}

	store, err := storage.NewLocalStore(cfg.Storage.Dir)
	if err != nil {
		log.Fatalf("❌ Failed to initialize local store: %v", err)
	}
	log.Printf("✅ Document store ready [%s]", cfg.Storage.Dir)
	return store
}

// gracefulShutdown handles graceful shutdown
func gracefulShutdown(app *fiber.App) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Printf("❌ Error during shutdown: %v", err)
	}
	log.Println("✅ Server stopped gracefully")
}

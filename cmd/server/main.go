package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/fbibank/backend/docs"
	"github.com/fbibank/backend/internal/config"
	"github.com/fbibank/backend/internal/database"
	"github.com/fbibank/backend/internal/handlers"
	"github.com/fbibank/backend/internal/lock"
	mW "github.com/fbibank/backend/internal/middleware"
	"github.com/fbibank/backend/internal/services"
	"github.com/fbibank/backend/internal/store"
)

// @title FBI Bank Ledger & Loan API
// @version 1.0
// @description Account ledger, transfers and loan servicing
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET_KEY must be set")
	}

	// amounts go out as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	docs.SwaggerInfo.Host = "localhost:" + cfg.Port

	ctx := context.Background()

	var st store.Store
	switch cfg.Storage {
	case "memory":
		log.Println("Using in-memory storage; data is lost on restart")
		st = store.NewMemory()
	case "postgres":
		var db *sql.DB
		db, err = database.OpenPostgres(ctx, database.GetConfig())
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer db.Close()
		st = store.NewPostgres(db, cfg.DBLockTimeout)
	default:
		log.Fatalf("Unknown engine.storage %q", cfg.Storage)
	}

	var locks lock.Locker
	switch cfg.Locker {
	case "memory":
		locks = lock.NewMemory(cfg.LockTimeout)
	case "redis":
		var redisClient *redis.Client
		redisClient, err = database.OpenRedis(ctx)
		if err != nil {
			log.Fatalf("Failed to initialize Redis locker: %v", err)
		}
		defer redisClient.Close()
		locks = lock.NewRedis(redisClient, cfg.LockTimeout, cfg.LockTTL)
	default:
		log.Fatalf("Unknown engine.locker %q", cfg.Locker)
	}

	argon := services.Argon2Params{
		Time:       cfg.Argon2.Time,
		Memory:     cfg.Argon2.Memory,
		Threads:    cfg.Argon2.Threads,
		KeyLength:  cfg.Argon2.KeyLength,
		SaltLength: cfg.Argon2.SaltLength,
	}

	// Initialize services
	audit := services.NewAuditLogger()
	ledger := services.NewAccountLedger(st, locks, audit, argon)
	transfers := services.NewTransferCoordinator(st, locks, ledger, audit)
	loans := services.NewLoanServicingEngine(st, locks, ledger, audit)
	admin := services.NewAdminApprovalWorkflow(st, ledger, loans, audit)

	api := &handlers.API{
		Accounts: handlers.NewAccountHandler(ledger, transfers, services.NewISO20022Service(cfg.BankBIC, cfg.Currency)),
		Loans:    handlers.NewLoanHandler(loans),
		Admin:    handlers.NewAdminHandler(admin),
		QR:       handlers.NewQRHandler(services.NewQRService(cfg.BankBIC), ledger),
	}

	// Setup router
	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	api.Mount(r, []byte(cfg.JWTSecret))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s (storage=%s, locker=%s)", cfg.Port, cfg.Storage, cfg.Locker)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/pinggolf/aps-scheduler/internal/api"
	"github.com/pinggolf/aps-scheduler/internal/config"
	"github.com/pinggolf/aps-scheduler/internal/db"
	"github.com/pinggolf/aps-scheduler/internal/mes"
	"github.com/pinggolf/aps-scheduler/internal/orchestrator"
	"github.com/pinggolf/aps-scheduler/internal/queue"
	"github.com/pinggolf/aps-scheduler/internal/refdata"
	"github.com/pinggolf/aps-scheduler/internal/throttle"
)

func main() {
	if err := godotenv.Load("../../.env"); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		runMigrations(cfg)
		return
	}

	database, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	database.SetMaxOpenConns(cfg.DatabaseMaxConnections)
	database.SetMaxIdleConns(cfg.DatabaseMaxIdleConnections)
	database.SetConnMaxLifetime(cfg.DatabaseConnectionLifetime)

	if err := database.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Database connection established")

	if cfg.RunMigrations {
		log.Println("Running database migrations...")
		if err := db.RunMigrations(database, "migrations"); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		log.Println("Database migrations completed successfully")
	} else {
		log.Println("Skipping migrations (RUN_MIGRATIONS=false)")
	}

	queries := db.New(database)

	log.Println("Connecting to NATS...")
	natsManager, err := queue.NewManager(cfg.NATSURL)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer natsManager.Close()
	log.Println("NATS connection established")

	log.Println("Loading reference data...")
	refdataCtx, refdataCancel := context.WithTimeout(context.Background(), 30*time.Second)
	refdataSvc, err := refdata.New(refdataCtx, queries, cfg.RefdataCacheTTL)
	refdataCancel()
	if err != nil {
		log.Fatalf("Failed to load reference data: %v", err)
	}
	refdataRunCtx, refdataRunCancel := context.WithCancel(context.Background())
	defer refdataRunCancel()
	go refdataSvc.Run(refdataRunCtx)
	log.Println("Reference data loaded")

	var mesClient *mes.Client
	if cfg.MESDispatchURL != "" {
		limiter := throttle.New(map[string]throttle.Limits{
			"mes": {RequestsPerSecond: cfg.MESDispatchRatePerSec, Burst: cfg.MESDispatchBurst},
		}, throttle.Limits{})
		mesClient = mes.NewClient(mes.Config{
			BaseURL:     cfg.MESDispatchURL,
			Target:      "mes",
			MaxAttempts: cfg.MESDispatchMaxRetries,
		}, limiter)
	} else {
		log.Println("MES_DISPATCH_URL not set, dispatch client disabled")
	}

	orch := orchestrator.New(queries, refdataSvc, natsManager, cfg.IDSequenceBatchSize).
		WithMESClient(mesClient).
		WithWorkerPoolSize(cfg.StageWorkerPoolSize)

	server := api.NewServer(cfg, queries, orch)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.AppPort),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %d (environment: %s)", cfg.AppPort, cfg.AppEnv)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped gracefully")
}

func runMigrations(cfg *config.Config) {
	database, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	log.Println("Running database migrations...")
	if err := db.RunMigrations(database, "migrations"); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations completed successfully")
}

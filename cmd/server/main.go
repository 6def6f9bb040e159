package main

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"vocalize/internal/api"
	"vocalize/internal/config"
	"vocalize/internal/db"
	"vocalize/internal/ledger"
	"vocalize/internal/prediction"
	"vocalize/internal/store"
)

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set Gin mode (default to release mode)
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	var creditLedger ledger.Ledger
	var recordStore store.RecordStore

	if cfg.DatabaseURL != "" {
		log.Printf("Initializing database connection with DATABASE_URL...")
		if err := db.Init(); err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		creditLedger = ledger.NewPostgresLedger(db.DB)
		recordStore = store.NewPostgresStore(db.DB)
		log.Println("Database-backed ledger and record store initialized")
	} else {
		log.Println("DATABASE_URL not set, running with in-memory ledger and store")
		creditLedger = ledger.NewMemoryLedger()
		recordStore = store.NewMemoryStore()
	}

	predictClient := prediction.NewClient(prediction.Config{
		BaseURL: cfg.PredictionURL,
		Token:   cfg.PredictionToken,
	})

	server := api.NewServer(cfg, creditLedger, recordStore, predictClient)

	r := gin.Default()
	r.Use(api.CORSMiddleware())
	server.RegisterRoutes(r)

	log.Printf("Vocalize backend running on :%s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

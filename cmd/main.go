package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"tutorhub/backend/internal/api/handler"
	"tutorhub/backend/internal/config"
	"tutorhub/backend/internal/eventfeed"
	"tutorhub/backend/internal/eventlog"
	"tutorhub/backend/internal/identity"
	"tutorhub/backend/internal/participant"
	"tutorhub/backend/internal/roomcode"
	"tutorhub/backend/internal/roomprovider"
	"tutorhub/backend/internal/session"
	"tutorhub/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupDependencies(cfg *config.Config) (*gorm.DB, *redis.Client) {
	// 1. PostgreSQL
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Fatalf("Failed to connect PostgreSQL: %v", err)
	}

	// 2. Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})

	ctx := context.Background()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatalf("Failed to connect Redis: %v", err)
	}

	// 3. Migrations
	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	log.Println("Database and Redis connections established, migrations complete.")
	return db, rdb
}

func newRoomProvider(cfg *config.Config) roomprovider.Provider {
	if cfg.RoomProvider == "daily" {
		return roomprovider.NewDaily(cfg.DailyAPIKey, cfg.DailyAPIURL, cfg.JoinTokenTTL)
	}
	log.Printf("WARNING: Using local room provider at %s", cfg.LocalRoomBaseURL)
	return roomprovider.NewLocal(cfg.LocalRoomBaseURL, cfg.JWTSecret, cfg.JoinTokenTTL)
}

func main() {
	log.Println("Starting TutorHub Backend...")

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// 1. Dependencies
	db, rdb := setupDependencies(cfg)
	s := storage.NewStorageService(db, rdb)

	// 2. Domain services
	hub := eventfeed.NewHub(s)
	events := eventlog.NewLog(s, s)
	codes := roomcode.NewRegistry(s, s)
	rooms := newRoomProvider(cfg)
	sessions := session.NewManager(s, codes, rooms, events)
	participants := participant.NewManager(s, codes, rooms, events)
	gate := identity.NewGate(cfg.JWTSecret, s)

	// 3. Background goroutines
	go hub.Run(context.Background())

	// 4. Gin routes
	r := gin.Default()
	h := handler.NewHandler(sessions, participants, gate, hub)
	h.RegisterRoutes(r)

	server := &http.Server{
		Addr:           cfg.HTTPAddr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	log.Printf("INFO: Listening on %s", cfg.HTTPAddr)
	log.Fatal(server.ListenAndServe())
}

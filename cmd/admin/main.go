package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"tutorhub/backend/internal/config"
	"tutorhub/backend/internal/eventlog"
	"tutorhub/backend/internal/identity"
	"tutorhub/backend/internal/models"
	"tutorhub/backend/internal/roomcode"
	"tutorhub/backend/internal/session"
	"tutorhub/backend/internal/storage"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const usage = `Usage: admin <command> [args]

Commands:
  create-user <email> <full name>
  issue-token <user_id> [ttl, e.g. 72h]
  purge-session <session_id>`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	if err := storage.Migrate(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}
	storageSvc := storage.NewStorageService(db, connectRedis(cfg))
	ctx := context.Background()

	switch os.Args[1] {
	case "create-user":
		if len(os.Args) < 4 {
			fmt.Println("Usage: admin create-user <email> <full name>")
			os.Exit(1)
		}
		id, err := createUser(ctx, storageSvc, os.Args[2], strings.Join(os.Args[3:], " "))
		if err != nil {
			log.Fatalf("Error creating user: %v", err)
		}
		fmt.Printf("User %s created.\n", id)
	case "issue-token":
		if len(os.Args) < 3 || len(os.Args) > 4 {
			fmt.Println("Usage: admin issue-token <user_id> [ttl]")
			os.Exit(1)
		}
		ttl := config.DefaultAccessTTL
		if len(os.Args) == 4 {
			ttl, err = time.ParseDuration(os.Args[3])
			if err != nil || ttl <= 0 {
				fmt.Println("Invalid ttl. Please provide a positive duration such as 24h.")
				os.Exit(1)
			}
		}
		token, err := issueToken(ctx, storageSvc, cfg.JWTSecret, os.Args[2], ttl)
		if err != nil {
			log.Fatalf("Error issuing token: %v", err)
		}
		fmt.Println(token)
	case "purge-session":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin purge-session <session_id>")
			os.Exit(1)
		}
		if err := purgeSession(ctx, storageSvc, os.Args[2]); err != nil {
			log.Fatalf("Error purging session: %v", err)
		}
		fmt.Printf("Session %s has been purged.\n", os.Args[2])
	default:
		fmt.Println(usage)
		os.Exit(1)
	}
}

// connectRedis returns nil when redis is unreachable; purging then leaves
// the code cache entry to expire on its own.
func connectRedis(cfg *config.Config) *redis.Client {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Printf("WARNING: Redis unavailable, cache eviction skipped: %v", err)
		rdb.Close()
		return nil
	}
	return rdb
}

func createUser(ctx context.Context, s storage.Storage, email, fullName string) (string, error) {
	user := &models.User{Email: strings.ToLower(strings.TrimSpace(email)), FullName: fullName}
	if user.Email == "" || !strings.Contains(user.Email, "@") {
		return "", fmt.Errorf("invalid email %q", email)
	}
	if err := s.CreateUser(ctx, user); err != nil {
		return "", err
	}
	return user.ID, nil
}

func issueToken(ctx context.Context, s storage.Storage, secret, userID string, ttl time.Duration) (string, error) {
	exists, err := s.UserExists(ctx, userID)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("user %s not found", userID)
	}
	return identity.NewGate(secret, s).Issue(userID, ttl)
}

func purgeSession(ctx context.Context, s *storage.Service, sessionID string) error {
	codes := roomcode.NewRegistry(s, s)
	manager := session.NewManager(s, codes, nil, eventlog.NewLog(s, nil))
	return manager.Purge(ctx, sessionID)
}

package config

import (
	"fmt"
	"os"
	"time"
)

// Config is the process configuration, read from the environment.
type Config struct {
	DatabaseDSN   string
	RedisAddr     string
	RedisPassword string
	HTTPAddr      string
	JWTSecret     string

	// RoomProvider selects the video room backend: "daily" or "local".
	RoomProvider     string
	DailyAPIKey      string
	DailyAPIURL      string
	LocalRoomBaseURL string
	JoinTokenTTL     time.Duration
}

// Load reads the configuration. Call godotenv.Load first if a .env file
// should be honoured.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseDSN:      getEnv("DATABASE_DSN", defaultDSN()),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		RoomProvider:     getEnv("ROOM_PROVIDER", "local"),
		DailyAPIKey:      os.Getenv("DAILY_API_KEY"),
		DailyAPIURL:      getEnv("DAILY_API_URL", "https://api.daily.co/v1"),
		LocalRoomBaseURL: getEnv("LOCAL_ROOM_BASE_URL", "http://localhost:8080/rooms"),
		JoinTokenTTL:     DefaultJoinTokenTTL,
	}

	if raw := os.Getenv("JOIN_TOKEN_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil || ttl <= 0 {
			return nil, fmt.Errorf("invalid JOIN_TOKEN_TTL %q", raw)
		}
		cfg.JoinTokenTTL = ttl
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is not set")
	}
	switch cfg.RoomProvider {
	case "local":
	case "daily":
		if cfg.DailyAPIKey == "" {
			return nil, fmt.Errorf("DAILY_API_KEY is required when ROOM_PROVIDER=daily")
		}
	default:
		return nil, fmt.Errorf("unknown ROOM_PROVIDER %q", cfg.RoomProvider)
	}

	return cfg, nil
}

func defaultDSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		getEnv("DB_HOST", "localhost"),
		getEnv("DB_USER", "user"),
		getEnv("DB_PASSWORD", "password"),
		getEnv("DB_NAME", "tutorhubdb"),
		getEnv("DB_PORT", "5432"),
	)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

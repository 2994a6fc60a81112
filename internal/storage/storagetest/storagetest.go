// Package storagetest opens throwaway stores for package tests.
package storagetest

import (
	"context"
	"fmt"
	"testing"

	"tutorhub/backend/internal/models"
	"tutorhub/backend/internal/storage"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a private in-memory SQLite database with the schema migrated.
// The pool is capped at one connection, which serializes transactions the
// way row locks do on PostgreSQL.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := storage.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// NewStore returns a Service over a fresh database and no redis.
func NewStore(t testing.TB) *storage.Service {
	t.Helper()
	return storage.NewStorageService(NewDB(t), nil)
}

// NewStoreWithRedis returns a Service backed by a fresh database and an
// in-process redis server.
func NewStoreWithRedis(t testing.TB) (*storage.Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return storage.NewStorageService(NewDB(t), rdb), mr
}

// CreateUser inserts a user with a unique email and returns its id.
func CreateUser(t testing.TB, s storage.Storage, name string) string {
	t.Helper()
	user := &models.User{Email: name + "-" + uuid.New().String()[:8] + "@example.com", FullName: name}
	if err := s.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return user.ID
}

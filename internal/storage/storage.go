package storage

import (
	"context"
	"errors"
	"fmt"
	"log"

	"tutorhub/backend/internal/lifecycle"
	"tutorhub/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Storage is the relational store behind the lifecycle managers. Every
// method runs against whatever handle the Storage wraps, so the value passed
// to a Transaction callback scopes all calls to that transaction.
type Storage interface {
	Transaction(ctx context.Context, fn func(tx Storage) error) error

	CreateUser(ctx context.Context, user *models.User) error
	UserExists(ctx context.Context, userID string) (bool, error)
	MissingUsers(ctx context.Context, userIDs []string) ([]string, error)

	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	LockSession(ctx context.Context, sessionID string) (*models.Session, error)
	SaveSession(ctx context.Context, session *models.Session) error
	ListSessions(ctx context.Context, q SessionQuery) ([]models.Session, int64, error)
	DeleteSession(ctx context.Context, sessionID string) error

	ReserveRoomCode(ctx context.Context, code, sessionID string) (bool, error)
	FindRoomCode(ctx context.Context, code string) (*models.RoomCode, error)

	CreateParticipant(ctx context.Context, p *models.Participant) error
	SaveParticipant(ctx context.Context, p *models.Participant) error
	GetParticipant(ctx context.Context, sessionID, userID string) (*models.Participant, error)
	ListParticipants(ctx context.Context, sessionID string) ([]models.Participant, error)
	ListParticipantsByStatus(ctx context.Context, sessionID string, status models.ConnectionStatus) ([]models.Participant, error)
	CountParticipantsByStatus(ctx context.Context, sessionID string, status models.ConnectionStatus) (int64, error)

	AppendEvent(ctx context.Context, event *models.Event) error
	ListEvents(ctx context.Context, sessionID string) ([]models.Event, error)
}

// SessionQuery selects a page of sessions visible to one user.
type SessionQuery struct {
	UserID string
	Status models.SessionStatus
	Offset int
	Limit  int
}

type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
}

// NewStorageService Constructor. rdb may be nil, in which case caching and
// event publishing are disabled.
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
	}
}

// Migrate creates or updates the schema for every persisted model.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.Participant{},
		&models.Event{},
		&models.RoomCode{},
	)
}

// Transaction runs fn inside a database transaction. fn receives a Service
// bound to the transaction; returning an error rolls everything back.
func (s *Service) Transaction(ctx context.Context, fn func(tx Storage) error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Service{DB: tx, Redis: s.Redis})
	})
}

// CreateSession stores a new session.
func (s *Service) CreateSession(ctx context.Context, session *models.Session) error {
	return s.DB.WithContext(ctx).Omit(clause.Associations).Create(session).Error
}

// GetSession returns the session or an ErrNotFound-wrapped error.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var session models.Session
	err := s.DB.WithContext(ctx).Where("id = ?", sessionID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, lifecycle.NotFoundf("session %s", sessionID)
	}
	if err != nil {
		log.Printf("ERROR: Failed to get session %s: %v", sessionID, err)
		return nil, err
	}
	return &session, nil
}

// LockSession reads the session row and holds a row lock on it until the
// surrounding transaction ends. Every admission decision for a session is
// taken under this lock. SQLite has no row locks; the test store serializes
// transactions through a single connection instead.
func (s *Service) LockSession(ctx context.Context, sessionID string) (*models.Session, error) {
	q := s.DB.WithContext(ctx)
	if q.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var session models.Session
	err := q.Where("id = ?", sessionID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, lifecycle.NotFoundf("session %s", sessionID)
	}
	if err != nil {
		log.Printf("ERROR: Failed to lock session %s: %v", sessionID, err)
		return nil, err
	}
	return &session, nil
}

func (s *Service) SaveSession(ctx context.Context, session *models.Session) error {
	return s.DB.WithContext(ctx).Omit(clause.Associations).Save(session).Error
}

// ListSessions returns the sessions a user owns or participates in, newest
// first, together with the total number of matches.
func (s *Service) ListSessions(ctx context.Context, q SessionQuery) ([]models.Session, int64, error) {
	base := func() *gorm.DB {
		db := s.DB.WithContext(ctx).Model(&models.Session{})
		if q.UserID != "" {
			participating := s.DB.Model(&models.Participant{}).Select("session_id").Where("user_id = ?", q.UserID)
			db = db.Where("teacher_id = ? OR id IN (?)", q.UserID, participating)
		}
		if q.Status != "" {
			db = db.Where("status = ?", q.Status)
		}
		return db
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		log.Printf("ERROR: Failed to count sessions for %s: %v", q.UserID, err)
		return nil, 0, err
	}

	var sessions []models.Session
	err := base().Order("created_at desc").Order("id").Offset(q.Offset).Limit(q.Limit).Find(&sessions).Error
	if err != nil {
		log.Printf("ERROR: Failed to list sessions for %s: %v", q.UserID, err)
		return nil, 0, err
	}
	return sessions, total, nil
}

// DeleteSession purges a session together with its participants and events.
// Room code reservations are kept.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	db := s.DB.WithContext(ctx)
	if err := db.Where("session_id = ?", sessionID).Delete(&models.Event{}).Error; err != nil {
		return fmt.Errorf("delete events: %w", err)
	}
	if err := db.Where("session_id = ?", sessionID).Delete(&models.Participant{}).Error; err != nil {
		return fmt.Errorf("delete participants: %w", err)
	}
	res := db.Where("id = ?", sessionID).Delete(&models.Session{})
	if res.Error != nil {
		return fmt.Errorf("delete session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return lifecycle.NotFoundf("session %s", sessionID)
	}
	return nil
}

package storage_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"tutorhub/backend/internal/lifecycle"
	"tutorhub/backend/internal/models"
	"tutorhub/backend/internal/storage"
	"tutorhub/backend/internal/storage/storagetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newSession(t *testing.T, s storage.Storage, owner, code string) *models.Session {
	t.Helper()
	sess := &models.Session{
		TeacherID:       owner,
		Title:           "Session " + code,
		Status:          models.SessionScheduled,
		RoomName:        "room-" + code,
		RoomURL:         "https://rooms.test/room-" + code,
		RoomCode:        code,
		MaxParticipants: 5,
		EnableChat:      true,
	}
	require.NoError(t, s.CreateSession(context.Background(), sess))
	return sess
}

func TestReserveRoomCode(t *testing.T) {
	s := storagetest.NewStore(t)
	ctx := context.Background()

	ok, err := s.ReserveRoomCode(ctx, "ABC234", "s1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.ReserveRoomCode(ctx, "ABC234", "s2")
	require.NoError(t, err)
	assert.False(t, ok)

	rc, err := s.FindRoomCode(ctx, "ABC234")
	require.NoError(t, err)
	assert.Equal(t, "s1", rc.SessionID)

	_, err = s.FindRoomCode(ctx, "ZZZ999")
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)
}

func TestReserveRoomCode_InsideRolledBackTransaction(t *testing.T) {
	s := storagetest.NewStore(t)
	ctx := context.Background()

	err := s.Transaction(ctx, func(tx storage.Storage) error {
		ok, err := tx.ReserveRoomCode(ctx, "ROLL22", "s1")
		require.NoError(t, err)
		assert.True(t, ok)
		return lifecycle.ErrValidation
	})
	assert.ErrorIs(t, err, lifecycle.ErrValidation)

	_, err = s.FindRoomCode(ctx, "ROLL22")
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)
}

func TestUniqueParticipantPerSession(t *testing.T) {
	s := storagetest.NewStore(t)
	ctx := context.Background()
	owner := storagetest.CreateUser(t, s, "teacher")
	sess := newSession(t, s, owner, "UNIQ22")

	p := &models.Participant{SessionID: sess.ID, UserID: owner, Role: models.RoleTeacher, ConnectionStatus: models.StatusInvited}
	require.NoError(t, s.CreateParticipant(ctx, p))
	dup := &models.Participant{SessionID: sess.ID, UserID: owner, Role: models.RoleTeacher, ConnectionStatus: models.StatusInvited}
	assert.Error(t, s.CreateParticipant(ctx, dup))
}

func TestListSessions_OwnerOrParticipant(t *testing.T) {
	s := storagetest.NewStore(t)
	ctx := context.Background()
	alice := storagetest.CreateUser(t, s, "alice")
	bob := storagetest.CreateUser(t, s, "bob")

	own := newSession(t, s, alice, "AAA222")
	joined := newSession(t, s, bob, "BBB222")
	newSession(t, s, bob, "CCC222")
	require.NoError(t, s.CreateParticipant(ctx, &models.Participant{
		SessionID: joined.ID, UserID: alice, Role: models.RoleStudent, ConnectionStatus: models.StatusJoined,
	}))

	sessions, total, err := s.ListSessions(ctx, storage.SessionQuery{UserID: alice, Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	ids := []string{sessions[0].ID, sessions[1].ID}
	assert.ElementsMatch(t, []string{own.ID, joined.ID}, ids)

	_, total, err = s.ListSessions(ctx, storage.SessionQuery{UserID: bob, Status: models.SessionActive, Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestDeleteSession_RemovesChildren(t *testing.T) {
	s := storagetest.NewStore(t)
	ctx := context.Background()
	owner := storagetest.CreateUser(t, s, "teacher")
	sess := newSession(t, s, owner, "DEL222")
	require.NoError(t, s.CreateParticipant(ctx, &models.Participant{
		SessionID: sess.ID, UserID: owner, Role: models.RoleTeacher, ConnectionStatus: models.StatusInvited,
	}))
	require.NoError(t, s.AppendEvent(ctx, &models.Event{SessionID: sess.ID, EventType: models.EventSessionCreated, Timestamp: time.Now()}))
	_, err := s.ReserveRoomCode(ctx, "DEL222", sess.ID)
	require.NoError(t, err)

	require.NoError(t, s.DeleteSession(ctx, sess.ID))

	participants, err := s.ListParticipants(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, participants)
	events, err := s.ListEvents(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, events)
	_, err = s.FindRoomCode(ctx, "DEL222")
	assert.NoError(t, err)

	assert.ErrorIs(t, s.DeleteSession(ctx, sess.ID), lifecycle.ErrNotFound)
}

func TestMissingUsers(t *testing.T) {
	s := storagetest.NewStore(t)
	known := storagetest.CreateUser(t, s, "known")

	missing, err := s.MissingUsers(context.Background(), []string{known, "ghost"})

	require.NoError(t, err)
	assert.Equal(t, []string{"ghost"}, missing)
}

func TestCache(t *testing.T) {
	s, mr := storagetest.NewStoreWithRedis(t)
	ctx := context.Background()

	require.NoError(t, s.CacheRoomCode(ctx, "CODE22", "s1", time.Minute))
	got, err := s.CachedRoomCode(ctx, "CODE22")
	require.NoError(t, err)
	assert.Equal(t, "s1", got)
	assert.Equal(t, time.Minute, mr.TTL("room_code:CODE22"))

	require.NoError(t, s.EvictRoomCode(ctx, "CODE22"))
	got, err = s.CachedRoomCode(ctx, "CODE22")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPublishEvent(t *testing.T) {
	s, _ := storagetest.NewStoreWithRedis(t)
	ctx := context.Background()
	pubsub := s.Redis.Subscribe(ctx, storage.SessionEventsChannel("s1"))
	defer pubsub.Close()
	_, err := pubsub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, s.PublishEvent(ctx, models.Event{ID: 3, SessionID: "s1", EventType: models.EventSessionStarted}))

	msg, err := pubsub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var event models.Event
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
	assert.Equal(t, models.EventSessionStarted, event.EventType)
}

func TestCacheWithoutRedisIsNoop(t *testing.T) {
	s := storagetest.NewStore(t)
	ctx := context.Background()

	assert.NoError(t, s.CacheRoomCode(ctx, "X", "s1", time.Minute))
	got, err := s.CachedRoomCode(ctx, "X")
	assert.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, s.PublishEvent(ctx, models.Event{SessionID: "s1"}))
	assert.Nil(t, s.SubscribeToSessionEvents(ctx))
}

// captureQueries records the SQL of every query run through db.
func captureQueries(t *testing.T, db *gorm.DB) *[]string {
	t.Helper()
	var statements []string
	err := db.Callback().Query().After("gorm:query").Register("test:capture", func(tx *gorm.DB) {
		statements = append(statements, tx.Statement.SQL.String())
	})
	require.NoError(t, err)
	return &statements
}

// TestLockSession_RowLockPerDialect checks the statement LockSession builds
// without a live server: PostgreSQL gets FOR UPDATE, SQLite gets none.
func TestLockSession_RowLockPerDialect(t *testing.T) {
	dryRun := &gorm.Config{DryRun: true, DisableAutomaticPing: true}
	tests := []struct {
		name      string
		dialector gorm.Dialector
		locks     bool
	}{
		{"postgres", postgres.New(postgres.Config{DSN: "host=localhost user=tutorhub dbname=tutorhub sslmode=disable"}), true},
		{"sqlite", sqlite.Open("file::memory:"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := gorm.Open(tt.dialector, dryRun)
			require.NoError(t, err)
			statements := captureQueries(t, db)

			_, err = storage.NewStorageService(db, nil).LockSession(context.Background(), "s1")
			require.NoError(t, err)

			require.Len(t, *statements, 1)
			if tt.locks {
				assert.Contains(t, (*statements)[0], "FOR UPDATE")
			} else {
				assert.NotContains(t, (*statements)[0], "FOR UPDATE")
			}
		})
	}
}

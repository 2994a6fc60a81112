package models_test

import (
	"reflect"
	"testing"

	"tutorhub/backend/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBeforeCreate_GeneratesUUID verifies that every record hook fills in a valid UUID.
func TestBeforeCreate_GeneratesUUID(t *testing.T) {
	user := &models.User{Email: "ada@example.com"}
	session := &models.Session{Title: "Algebra"}
	participant := &models.Participant{UserID: "u1"}

	require.NoError(t, user.BeforeCreate(nil))
	require.NoError(t, session.BeforeCreate(nil))
	require.NoError(t, participant.BeforeCreate(nil))

	for _, id := range []string{user.ID, session.ID, participant.ID} {
		parsed, err := uuid.Parse(id)
		assert.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, parsed)
	}
}

// TestBeforeCreate_PreservesExistingID verifies that the hooks don't overwrite a preset ID.
func TestBeforeCreate_PreservesExistingID(t *testing.T) {
	existingID := uuid.New().String()
	user := &models.User{ID: existingID}
	session := &models.Session{ID: existingID}

	assert.NoError(t, user.BeforeCreate(nil))
	assert.NoError(t, session.BeforeCreate(nil))

	assert.Equal(t, existingID, user.ID)
	assert.Equal(t, existingID, session.ID)
}

// TestUniqueConstraintTags guards the unique indexes the join protocol relies on.
func TestUniqueConstraintTags(t *testing.T) {
	sessionType := reflect.TypeOf(models.Session{})
	for _, name := range []string{"RoomCode", "RoomName"} {
		field, found := sessionType.FieldByName(name)
		require.True(t, found, name)
		assert.Contains(t, field.Tag.Get("gorm"), "uniqueIndex", name)
	}

	participantType := reflect.TypeOf(models.Participant{})
	for _, name := range []string{"SessionID", "UserID"} {
		field, found := participantType.FieldByName(name)
		require.True(t, found, name)
		assert.Contains(t, field.Tag.Get("gorm"), "uniqueIndex:idx_participant_session_user", name)
	}

	codeField, found := reflect.TypeOf(models.RoomCode{}).FieldByName("Code")
	require.True(t, found)
	assert.Contains(t, codeField.Tag.Get("gorm"), "primaryKey")
}

func TestSessionStatus(t *testing.T) {
	tests := []struct {
		status   models.SessionStatus
		valid    bool
		terminal bool
	}{
		{models.SessionScheduled, true, false},
		{models.SessionActive, true, false},
		{models.SessionEnded, true, true},
		{models.SessionCancelled, true, true},
		{"paused", false, false},
		{"", false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.status.Valid())
			assert.Equal(t, tt.terminal, tt.status.Terminal())
		})
	}
}

// TestTopicsArray verifies the array literal round trip used on every dialect.
func TestTopicsArray(t *testing.T) {
	topics := models.Topics{"linear algebra", "matrices, determinants"}

	value, err := topics.Value()
	require.NoError(t, err)

	var scanned models.Topics
	require.NoError(t, scanned.Scan(value))
	assert.Equal(t, topics, scanned)

	var empty models.Topics
	require.NoError(t, empty.Scan([]byte("{}")))
	assert.Empty(t, empty)
}

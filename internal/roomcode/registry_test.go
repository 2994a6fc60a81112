package roomcode

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"tutorhub/backend/internal/lifecycle"
	"tutorhub/backend/internal/models"
	"tutorhub/backend/internal/storage"
	"tutorhub/backend/internal/storage/storagetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insertSession(t *testing.T, s storage.Storage, id, code string) {
	t.Helper()
	owner := storagetest.CreateUser(t, s, "owner")
	require.NoError(t, s.CreateSession(context.Background(), &models.Session{
		ID:              id,
		TeacherID:       owner,
		Title:           "Session " + id,
		Status:          models.SessionScheduled,
		RoomName:        "room-" + id,
		RoomURL:         "https://rooms.example.com/" + id,
		RoomCode:        code,
		MaxParticipants: 10,
	}))
}

func generate(t *testing.T, r *Registry, s storage.Storage, sessionID string) (string, error) {
	t.Helper()
	var code string
	err := s.Transaction(context.Background(), func(tx storage.Storage) error {
		var err error
		code, err = r.Generate(context.Background(), tx, sessionID)
		return err
	})
	return code, err
}

func TestRandomCode_UsesAlphabet(t *testing.T) {
	r := NewRegistry(nil, nil)
	for i := 0; i < 200; i++ {
		code, err := r.Draw(r.Alphabet, r.Length)
		require.NoError(t, err)
		assert.Len(t, code, r.Length)
		for _, c := range code {
			assert.True(t, strings.ContainsRune(r.Alphabet, c), "unexpected character %q in %s", c, code)
		}
	}
}

func TestGenerate_UniqueAcrossSessions(t *testing.T) {
	store := storagetest.NewStore(t)
	r := NewRegistry(store, nil)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := generate(t, r, store, fmt.Sprintf("session-%d", i))
		require.NoError(t, err)
		assert.False(t, seen[code], "code %s issued twice", code)
		seen[code] = true
	}
	assert.Len(t, seen, 50)
}

func TestGenerate_RetriesOnCollision(t *testing.T) {
	store := storagetest.NewStore(t)
	r := NewRegistry(store, nil)
	draws := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
	r.Draw = func(string, int) (string, error) {
		next := draws[0]
		draws = draws[1:]
		return next, nil
	}

	first, err := generate(t, r, store, "s1")
	require.NoError(t, err)
	second, err := generate(t, r, store, "s2")
	require.NoError(t, err)

	assert.Equal(t, "AAAAAA", first)
	assert.Equal(t, "BBBBBB", second)
	assert.Empty(t, draws)
}

func TestGenerate_ExhaustedCodeSpace(t *testing.T) {
	store := storagetest.NewStore(t)
	r := NewRegistry(store, nil)
	calls := 0
	r.Draw = func(string, int) (string, error) {
		calls++
		return "ZZZZZZ", nil
	}

	_, err := generate(t, r, store, "s1")
	require.NoError(t, err)
	calls = 0

	_, err = generate(t, r, store, "s2")

	assert.ErrorIs(t, err, lifecycle.ErrExhaustedCodeSpace)
	assert.Equal(t, r.MaxAttempts, calls)
}

func TestResolve_ReturnsOwningSession(t *testing.T) {
	store, mr := storagetest.NewStoreWithRedis(t)
	r := NewRegistry(store, store)
	ctx := context.Background()

	code, err := generate(t, r, store, "session-1")
	require.NoError(t, err)
	insertSession(t, store, "session-1", code)

	sessionID, err := r.Resolve(ctx, " "+strings.ToLower(code)+" ")

	require.NoError(t, err)
	assert.Equal(t, "session-1", sessionID)
	cached, err := mr.Get("room_code:" + code)
	require.NoError(t, err)
	assert.Equal(t, "session-1", cached)
}

func TestResolve_UsesCache(t *testing.T) {
	store, mr := storagetest.NewStoreWithRedis(t)
	r := NewRegistry(store, store)
	require.NoError(t, mr.Set("room_code:CACHED", "session-from-cache"))

	sessionID, err := r.Resolve(context.Background(), "cached")

	require.NoError(t, err)
	assert.Equal(t, "session-from-cache", sessionID)
}

func TestResolve_UnknownCode(t *testing.T) {
	store := storagetest.NewStore(t)
	r := NewRegistry(store, nil)

	_, err := r.Resolve(context.Background(), "NOPE99")

	assert.ErrorIs(t, err, lifecycle.ErrNotFound)
}

func TestResolve_EmptyCode(t *testing.T) {
	r := NewRegistry(storagetest.NewStore(t), nil)

	_, err := r.Resolve(context.Background(), "   ")

	assert.ErrorIs(t, err, lifecycle.ErrValidation)
}

func TestResolve_PurgedSessionKeepsCodeReserved(t *testing.T) {
	store := storagetest.NewStore(t)
	r := NewRegistry(store, nil)
	ctx := context.Background()
	r.Draw = func(string, int) (string, error) { return "PURGED", nil }

	code, err := generate(t, r, store, "session-1")
	require.NoError(t, err)
	insertSession(t, store, "session-1", code)
	require.NoError(t, store.DeleteSession(ctx, "session-1"))

	_, err = r.Resolve(ctx, code)
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)

	_, err = generate(t, r, store, "session-2")
	assert.ErrorIs(t, err, lifecycle.ErrExhaustedCodeSpace, "a purged session's code must not be reissued")
}

// Package roomcode issues the short codes students type to join a session
// and resolves them back to the session. It is the only writer of the
// code → session mapping.
package roomcode

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"strings"

	"tutorhub/backend/internal/config"
	"tutorhub/backend/internal/lifecycle"
	"tutorhub/backend/internal/storage"
)

// Registry generates and resolves room codes.
type Registry struct {
	store storage.Storage
	cache storage.Cache

	Alphabet    string
	Length      int
	MaxAttempts int

	// Draw produces one candidate code. Tests replace it to force collisions.
	Draw func(alphabet string, length int) (string, error)
}

// NewRegistry creates a registry using the default code policy. cache may
// be nil.
func NewRegistry(s storage.Storage, cache storage.Cache) *Registry {
	return &Registry{
		store:       s,
		cache:       cache,
		Alphabet:    config.RoomCodeAlphabet,
		Length:      config.RoomCodeLength,
		MaxAttempts: config.MaxCodeAttempts,
		Draw:        randomCode,
	}
}

// Normalize trims and upper-cases a code for comparison.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Generate reserves a fresh code for sessionID through tx. Every draw is
// checked against all codes ever issued; after MaxAttempts collisions it
// gives up with ErrExhaustedCodeSpace.
func (r *Registry) Generate(ctx context.Context, tx storage.Storage, sessionID string) (string, error) {
	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		code, err := r.Draw(r.Alphabet, r.Length)
		if err != nil {
			return "", fmt.Errorf("draw room code: %w", err)
		}

		reserved, err := tx.ReserveRoomCode(ctx, code, sessionID)
		if err != nil {
			return "", fmt.Errorf("reserve room code: %w", err)
		}
		if reserved {
			return code, nil
		}
		log.Printf("WARNING: room code collision on attempt %d for session %s", attempt, sessionID)
	}

	log.Printf("ERROR: room code space exhausted after %d attempts (length %d, alphabet %d)", r.MaxAttempts, r.Length, len(r.Alphabet))
	return "", fmt.Errorf("%w: no free code after %d attempts", lifecycle.ErrExhaustedCodeSpace, r.MaxAttempts)
}

// Resolve returns the id of the session holding code. It fails with
// ErrNotFound when no live session holds it, including codes whose session
// has been purged.
func (r *Registry) Resolve(ctx context.Context, code string) (string, error) {
	normalized := Normalize(code)
	if normalized == "" || len(normalized) > config.MaxRoomCodeInput {
		return "", lifecycle.Validationf("room code must be 1-%d characters", config.MaxRoomCodeInput)
	}

	if r.cache != nil {
		sessionID, err := r.cache.CachedRoomCode(ctx, normalized)
		if err != nil {
			log.Printf("WARNING: room code cache read failed for %s: %v", normalized, err)
		} else if sessionID != "" {
			return sessionID, nil
		}
	}

	rc, err := r.store.FindRoomCode(ctx, normalized)
	if err != nil {
		return "", err
	}
	if _, err := r.store.GetSession(ctx, rc.SessionID); err != nil {
		if errors.Is(err, lifecycle.ErrNotFound) {
			return "", lifecycle.NotFoundf("room code %s", normalized)
		}
		return "", err
	}

	r.Remember(ctx, normalized, rc.SessionID)
	return rc.SessionID, nil
}

// Remember primes the lookup cache after a code has been committed.
func (r *Registry) Remember(ctx context.Context, code, sessionID string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.CacheRoomCode(ctx, code, sessionID, config.RoomCodeCacheTTL); err != nil {
		log.Printf("WARNING: failed to cache room code %s: %v", code, err)
	}
}

// Forget drops a code from the lookup cache. The reservation itself stays.
func (r *Registry) Forget(ctx context.Context, code string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.EvictRoomCode(ctx, code); err != nil {
		log.Printf("WARNING: failed to evict room code %s: %v", code, err)
	}
}

// randomCode draws length characters from alphabet with crypto/rand.
func randomCode(alphabet string, length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	code := make([]byte, length)
	for i := range code {
		code[i] = alphabet[int(b[i])%len(alphabet)]
	}
	return string(code), nil
}

package roomprovider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tutorhub/backend/internal/models"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JoinClaims are the claims of a credential minted by Local.
type JoinClaims struct {
	Room string                 `json:"room"`
	Role models.ParticipantRole `json:"role"`
	jwt.RegisteredClaims
}

// Local provisions rooms on a self-hosted media server that accepts
// credentials signed with a shared secret.
type Local struct {
	BaseURL  string
	Secret   []byte
	TokenTTL time.Duration
	Now      func() time.Time
}

func NewLocal(baseURL, secret string, ttl time.Duration) *Local {
	return &Local{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Secret:   []byte(secret),
		TokenTTL: ttl,
		Now:      time.Now,
	}
}

func (l *Local) ProvisionRoom(ctx context.Context, req RoomRequest) (RoomHandle, error) {
	name := "room-" + uuid.New().String()
	return RoomHandle{Name: name, URL: l.BaseURL + "/" + name}, nil
}

func (l *Local) MintJoinToken(ctx context.Context, room RoomHandle, userID string, role models.ParticipantRole) (Credential, error) {
	if room.Name == "" {
		return Credential{}, fmt.Errorf("mint join token: empty room name")
	}
	now := l.Now()
	expires := now.Add(l.TokenTTL)
	claims := JoinClaims{
		Room: room.Name,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{room.Name},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(l.Secret)
	if err != nil {
		return Credential{}, fmt.Errorf("sign join token: %w", err)
	}
	return Credential{Token: token, ExpiresAt: expires}, nil
}

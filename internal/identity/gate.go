// Package identity resolves bearer credentials to user ids. It never reads
// or writes session state.
package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tutorhub/backend/internal/lifecycle"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Issuer is the iss claim of access tokens issued and accepted here.
const Issuer = "tutorhub-service"

// UserDirectory confirms that a token subject is a known user.
type UserDirectory interface {
	UserExists(ctx context.Context, userID string) (bool, error)
}

// Gate verifies HS256 access tokens.
type Gate struct {
	secret []byte
	users  UserDirectory

	Now func() time.Time
}

func NewGate(secret string, users UserDirectory) *Gate {
	return &Gate{secret: []byte(secret), users: users, Now: time.Now}
}

// Issue signs an access token for userID valid for ttl.
func (g *Gate) Issue(userID string, ttl time.Duration) (string, error) {
	now := g.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(g.secret)
}

// Verify returns the user id behind credential. Malformed, expired or
// badly signed tokens fail with ErrUnauthorized, and so does a well-signed
// token whose subject has no user record.
func (g *Gate) Verify(ctx context.Context, credential string) (string, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return "", fmt.Errorf("%w: missing credential", lifecycle.ErrUnauthorized)
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(credential, claims,
		func(token *jwt.Token) (interface{}, error) {
			return g.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(Issuer),
		jwt.WithTimeFunc(g.Now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", lifecycle.ErrUnauthorized, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", lifecycle.ErrUnauthorized)
	}

	exists, err := g.users.UserExists(ctx, claims.Subject)
	if err != nil {
		return "", fmt.Errorf("verify subject %s: %w", claims.Subject, err)
	}
	if !exists {
		return "", fmt.Errorf("%w: unknown user %s", lifecycle.ErrUnauthorized, claims.Subject)
	}
	return claims.Subject, nil
}

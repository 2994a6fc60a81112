// Package roomprovider talks to the service hosting the video rooms behind
// sessions: it provisions one room per session and mints the short-lived
// credentials participants use to enter it.
package roomprovider

import (
	"context"
	"time"

	"tutorhub/backend/internal/models"
)

// RoomRequest describes the room a new session needs.
type RoomRequest struct {
	SessionID       string
	Title           string
	MaxParticipants int
	EnableRecording bool
	EnableChat      bool
	NotBefore       *time.Time
}

// RoomHandle identifies a provisioned room.
type RoomHandle struct {
	Name string
	URL  string
}

// Credential is an opaque bearer token admitting one user to one room.
type Credential struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Provider is the room provisioning collaborator.
type Provider interface {
	ProvisionRoom(ctx context.Context, req RoomRequest) (RoomHandle, error)
	MintJoinToken(ctx context.Context, room RoomHandle, userID string, role models.ParticipantRole) (Credential, error)
}

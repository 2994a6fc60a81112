package config

import "time"

const (
	// Session settings
	MinParticipants        = 2
	MaxParticipants        = 100
	DefaultMaxParticipants = 50
	MaxTitleLength         = 200

	// Room codes
	RoomCodeLength   = 6
	RoomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	MaxCodeAttempts  = 10
	MaxRoomCodeInput = 20
	RoomCodeCacheTTL = 24 * time.Hour

	// Listing
	DefaultPageSize = 20
	MaxPageSize     = 100

	// Credentials
	DefaultJoinTokenTTL = 2 * time.Hour
	DefaultAccessTTL    = 72 * time.Hour
)

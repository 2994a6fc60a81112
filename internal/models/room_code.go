package models

import "time"

// RoomCode reserves a short join code. Rows are kept after the session is
// purged so a code is never handed out twice.
type RoomCode struct {
	Code      string    `gorm:"primaryKey;size:20"`
	SessionID string    `gorm:"type:varchar(36);not null;index"`
	IssuedAt  time.Time `gorm:"not null"`
}

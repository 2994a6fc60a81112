package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ParticipantRole is the part a user plays within one session.
type ParticipantRole string

const (
	RoleTeacher ParticipantRole = "teacher"
	RoleStudent ParticipantRole = "student"
)

// ConnectionStatus is the per-participant connection state.
type ConnectionStatus string

const (
	StatusInvited ConnectionStatus = "invited"
	StatusJoined  ConnectionStatus = "joined"
	StatusLeft    ConnectionStatus = "left"
	StatusKicked  ConnectionStatus = "kicked"
)

// Participant is a user's membership record and connection history within
// one session. There is exactly one row per (session, user) pair.
type Participant struct {
	ID               string           `gorm:"primaryKey;type:varchar(36)" json:"id"`
	SessionID        string           `gorm:"type:varchar(36);not null;uniqueIndex:idx_participant_session_user,priority:1" json:"session_id"`
	UserID           string           `gorm:"type:varchar(36);not null;uniqueIndex:idx_participant_session_user,priority:2;index" json:"user_id"`
	Role             ParticipantRole  `gorm:"size:20;not null" json:"role"`
	ConnectionStatus ConnectionStatus `gorm:"size:20;not null;index" json:"connection_status"`
	JoinedAt         *time.Time       `json:"joined_at,omitempty"`
	LeftAt           *time.Time       `json:"left_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// BeforeCreate generates the participant UUID when the caller has not set one.
func (p *Participant) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return
}

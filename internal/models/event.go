package models

import (
	"time"

	"gorm.io/datatypes"
)

// Event types recorded in the session audit trail.
const (
	EventSessionCreated      = "session_created"
	EventSessionStarted      = "session_started"
	EventSessionEnded        = "session_ended"
	EventSessionCancelled    = "session_cancelled"
	EventSessionUpdated      = "session_updated"
	EventParticipantInvited  = "participant_invited"
	EventParticipantJoined   = "participant_joined"
	EventParticipantLeft     = "participant_left"
	EventParticipantKicked   = "participant_kicked"
	EventParticipantDeclined = "participant_declined"
)

// Event is an immutable fact about a session. Rows are only ever inserted;
// they disappear solely when their session is purged.
type Event struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	SessionID string            `gorm:"type:varchar(36);not null;index:idx_session_event_time,priority:1" json:"session_id"`
	UserID    *string           `gorm:"type:varchar(36)" json:"user_id,omitempty"`
	EventType string            `gorm:"size:50;not null" json:"event_type"`
	EventData datatypes.JSONMap `json:"event_data"`
	Timestamp time.Time         `gorm:"not null;index:idx_session_event_time,priority:2" json:"timestamp"`
}

package models

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// SessionStatus is the lifecycle state of a tutoring session.
type SessionStatus string

const (
	SessionScheduled SessionStatus = "scheduled"
	SessionActive    SessionStatus = "active"
	SessionEnded     SessionStatus = "ended"
	SessionCancelled SessionStatus = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionScheduled, SessionActive, SessionEnded, SessionCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition can leave s.
func (s SessionStatus) Terminal() bool {
	return s == SessionEnded || s == SessionCancelled
}

// Session is one scheduled meeting owned by a teacher and backed by an
// externally hosted video room.
type Session struct {
	ID          string        `gorm:"primaryKey;type:varchar(36)" json:"id"`
	TeacherID   string        `gorm:"type:varchar(36);not null;index" json:"teacher_id"`
	Title       string        `gorm:"size:200;not null" json:"title"`
	Description *string       `gorm:"type:text" json:"description,omitempty"`
	Status      SessionStatus `gorm:"size:20;not null;index" json:"status"`

	// RoomName is the external room handle. RoomName and RoomCode never
	// change once assigned.
	RoomName string `gorm:"size:255;not null;uniqueIndex" json:"room_name"`
	RoomURL  string `gorm:"size:512;not null" json:"room_url"`
	RoomCode string `gorm:"size:20;not null;uniqueIndex" json:"room_code"`

	ScheduledStart *time.Time `json:"scheduled_start,omitempty"`
	ActualStart    *time.Time `json:"actual_start,omitempty"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`

	MaxParticipants int    `gorm:"not null" json:"max_participants"`
	EnableRecording bool   `gorm:"not null" json:"enable_recording"`
	EnableChat      bool   `gorm:"not null" json:"enable_chat"`
	Topics          Topics `json:"topics"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Participants []Participant `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
	Events       []Event       `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
}

// BeforeCreate generates the session UUID when the caller has not set one.
func (s *Session) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return
}

// Topics is the list of subjects a session covers. It is stored as a
// native text[] on PostgreSQL and as the array literal text elsewhere.
type Topics pq.StringArray

func (Topics) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}

func (t Topics) Value() (driver.Value, error) {
	return pq.StringArray(t).Value()
}

func (t *Topics) Scan(src any) error {
	return (*pq.StringArray)(t).Scan(src)
}

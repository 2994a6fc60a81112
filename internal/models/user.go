package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is an account that can own sessions or take part in them.
// The Identity Gate only admits bearer tokens whose subject has a row here.
type User struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Email     string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	FullName  string    `gorm:"size:200" json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
}

// BeforeCreate is a GORM hook that runs before the row is inserted.
// It generates a new UUID for the user if the ID has not been set yet.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}

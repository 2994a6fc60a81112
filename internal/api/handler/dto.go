package handler

import (
	"time"

	"tutorhub/backend/internal/models"
	"tutorhub/backend/internal/session"
)

type createSessionRequest struct {
	Title           string     `json:"title" binding:"required"`
	Description     *string    `json:"description"`
	ScheduledStart  *time.Time `json:"scheduled_start"`
	MaxParticipants *int       `json:"max_participants"`
	EnableRecording bool       `json:"enable_recording"`
	EnableChat      *bool      `json:"enable_chat"`
	Topics          []string   `json:"topics"`
}

func (r createSessionRequest) input() session.CreateInput {
	return session.CreateInput{
		Title:           r.Title,
		Description:     r.Description,
		ScheduledStart:  r.ScheduledStart,
		MaxParticipants: r.MaxParticipants,
		EnableRecording: r.EnableRecording,
		EnableChat:      r.EnableChat,
		Topics:          r.Topics,
	}
}

type updateSessionRequest struct {
	Title           *string               `json:"title"`
	Description     *string               `json:"description"`
	ScheduledStart  *time.Time            `json:"scheduled_start"`
	MaxParticipants *int                  `json:"max_participants"`
	EnableRecording *bool                 `json:"enable_recording"`
	EnableChat      *bool                 `json:"enable_chat"`
	Topics          *[]string             `json:"topics"`
	Status          *models.SessionStatus `json:"status"`
}

func (r updateSessionRequest) patch() session.SettingsPatch {
	return session.SettingsPatch{
		Title:           r.Title,
		Description:     r.Description,
		ScheduledStart:  r.ScheduledStart,
		MaxParticipants: r.MaxParticipants,
		EnableRecording: r.EnableRecording,
		EnableChat:      r.EnableChat,
		Topics:          r.Topics,
		Status:          r.Status,
	}
}

type joinSessionRequest struct {
	RoomCode string `json:"room_code" binding:"required"`
}

type joinSessionResponse struct {
	SessionID        string                  `json:"session_id"`
	RoomURL          string                  `json:"room_url"`
	RoomCode         string                  `json:"room_code"`
	MeetingToken     string                  `json:"meeting_token"`
	TokenExpiresAt   time.Time               `json:"token_expires_at"`
	Role             models.ParticipantRole  `json:"role"`
	ConnectionStatus models.ConnectionStatus `json:"connection_status"`
	AlreadyJoined    bool                    `json:"already_joined"`
}

type inviteRequest struct {
	UserIDs []string `json:"user_ids" binding:"required,min=1,dive,required"`
}

type sessionListResponse struct {
	Sessions []models.Session `json:"sessions"`
	Total    int64            `json:"total"`
	Offset   int              `json:"offset"`
	Limit    int              `json:"limit"`
}

type sessionDetailResponse struct {
	models.Session
	Participants []models.Participant `json:"participants"`
	Events       []models.Event       `json:"events"`
}

package handler

import (
	"context"
	"net/http"

	"tutorhub/backend/internal/lifecycle"
	"tutorhub/backend/internal/models"

	"github.com/gin-gonic/gin"
)

// JoinSession handles POST /sessions/join.
func (h *Handler) JoinSession(c *gin.Context) {
	var req joinSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, lifecycle.Validationf("%v", err))
		return
	}

	res, err := h.Participants.JoinByCode(c.Request.Context(), req.RoomCode, currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, joinSessionResponse{
		SessionID:        res.Session.ID,
		RoomURL:          res.Session.RoomURL,
		RoomCode:         res.Session.RoomCode,
		MeetingToken:     res.Credential.Token,
		TokenExpiresAt:   res.Credential.ExpiresAt,
		Role:             res.Participant.Role,
		ConnectionStatus: res.Participant.ConnectionStatus,
		AlreadyJoined:    res.AlreadyJoined,
	})
}

func (h *Handler) LeaveSession(c *gin.Context)      { h.selfDepart(c, h.Participants.Leave) }
func (h *Handler) DeclineInvitation(c *gin.Context) { h.selfDepart(c, h.Participants.Decline) }

func (h *Handler) selfDepart(c *gin.Context, depart func(ctx context.Context, sessionID, userID string) (*models.Participant, error)) {
	p, err := depart(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// KickParticipant handles POST /sessions/:id/participants/:user_id/kick.
func (h *Handler) KickParticipant(c *gin.Context) {
	p, err := h.Participants.Kick(c.Request.Context(), c.Param("id"), currentUser(c), c.Param("user_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// InviteParticipants handles POST /sessions/:id/invitations.
func (h *Handler) InviteParticipants(c *gin.Context) {
	var req inviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, lifecycle.Validationf("%v", err))
		return
	}

	invited, err := h.Participants.Invite(c.Request.Context(), c.Param("id"), currentUser(c), req.UserIDs)
	if err != nil {
		writeError(c, err)
		return
	}
	if invited == nil {
		invited = []models.Participant{}
	}
	c.JSON(http.StatusCreated, gin.H{"invited": invited})
}

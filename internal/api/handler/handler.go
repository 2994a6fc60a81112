package handler

import (
	"context"
	"net/http"

	"tutorhub/backend/internal/eventfeed"
	"tutorhub/backend/internal/participant"
	"tutorhub/backend/internal/session"

	"github.com/gin-gonic/gin"
)

// Verifier resolves a bearer credential to a user id.
type Verifier interface {
	Verify(ctx context.Context, credential string) (string, error)
}

// Handler exposes the session and participant managers over HTTP.
type Handler struct {
	Sessions     *session.Manager
	Participants *participant.Manager
	Gate         Verifier
	Hub          *eventfeed.Hub
}

func NewHandler(sessions *session.Manager, participants *participant.Manager, gate Verifier, hub *eventfeed.Hub) *Handler {
	return &Handler{
		Sessions:     sessions,
		Participants: participants,
		Gate:         gate,
		Hub:          hub,
	}
}

// RegisterRoutes mounts the API on r.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/api/v1/sessions/:id/events/ws", h.RequireUser(true), h.ServeEvents)

	api := r.Group("/api/v1", h.RequireUser(false))
	{
		api.POST("/sessions", h.CreateSession)
		api.GET("/sessions", h.ListSessions)
		api.POST("/sessions/join", h.JoinSession)
		api.GET("/sessions/:id", h.GetSession)
		api.PATCH("/sessions/:id", h.UpdateSession)
		api.POST("/sessions/:id/start", h.StartSession)
		api.POST("/sessions/:id/end", h.EndSession)
		api.POST("/sessions/:id/cancel", h.CancelSession)
		api.POST("/sessions/:id/leave", h.LeaveSession)
		api.POST("/sessions/:id/decline", h.DeclineInvitation)
		api.POST("/sessions/:id/invitations", h.InviteParticipants)
		api.POST("/sessions/:id/participants/:user_id/kick", h.KickParticipant)
	}
}

package handler

import (
	"context"
	"net/http"
	"strconv"

	"tutorhub/backend/internal/lifecycle"
	"tutorhub/backend/internal/models"
	"tutorhub/backend/internal/session"

	"github.com/gin-gonic/gin"
)

// CreateSession handles POST /sessions.
func (h *Handler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, lifecycle.Validationf("%v", err))
		return
	}

	s, err := h.Sessions.Create(c.Request.Context(), currentUser(c), req.input())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

// ListSessions handles GET /sessions?status=&offset=&limit=.
func (h *Handler) ListSessions(c *gin.Context) {
	filter := session.ListFilter{Status: models.SessionStatus(c.Query("status"))}
	var err error
	if filter.Offset, err = intQuery(c, "offset"); err != nil {
		writeError(c, err)
		return
	}
	if filter.Limit, err = intQuery(c, "limit"); err != nil {
		writeError(c, err)
		return
	}

	page, err := h.Sessions.List(c.Request.Context(), currentUser(c), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	sessions := page.Sessions
	if sessions == nil {
		sessions = []models.Session{}
	}
	c.JSON(http.StatusOK, sessionListResponse{
		Sessions: sessions,
		Total:    page.Total,
		Offset:   page.Offset,
		Limit:    page.Limit,
	})
}

// GetSession handles GET /sessions/:id and returns the detail view.
func (h *Handler) GetSession(c *gin.Context) {
	detail, err := h.Sessions.Detail(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionDetailResponse{
		Session:      detail.Session,
		Participants: detail.Participants,
		Events:       detail.Events,
	})
}

// UpdateSession handles PATCH /sessions/:id.
func (h *Handler) UpdateSession(c *gin.Context) {
	var req updateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, lifecycle.Validationf("%v", err))
		return
	}

	s, err := h.Sessions.UpdateSettings(c.Request.Context(), c.Param("id"), currentUser(c), req.patch())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *Handler) StartSession(c *gin.Context)  { h.moveSession(c, h.Sessions.Start) }
func (h *Handler) EndSession(c *gin.Context)    { h.moveSession(c, h.Sessions.End) }
func (h *Handler) CancelSession(c *gin.Context) { h.moveSession(c, h.Sessions.Cancel) }

func (h *Handler) moveSession(c *gin.Context, move func(ctx context.Context, sessionID, actorID string) (*models.Session, error)) {
	s, err := move(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func intQuery(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, lifecycle.Validationf("%s must be an integer", key)
	}
	return n, nil
}

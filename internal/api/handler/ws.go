package handler

import (
	"log"
	"net/http"

	"tutorhub/backend/internal/eventfeed"
	"tutorhub/backend/internal/lifecycle"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// TODO: restrict origins once the web client's domains are configurable.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeEvents upgrades to a websocket streaming the session's events. Only
// the session owner may watch.
func (h *Handler) ServeEvents(c *gin.Context) {
	userID := currentUser(c)
	s, err := h.Sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if s.TeacherID != userID {
		writeError(c, lifecycle.Forbiddenf("user %s does not own session %s", userID, s.ID))
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WARNING: Event feed upgrade failed for %s: %v", userID, err)
		return
	}

	client := eventfeed.NewWebSocketClient(h.Hub, conn, userID, s.ID)
	if !h.Hub.Register(client) {
		log.Printf("WARNING: Event feed hub stopped, dropping subscriber %s", userID)
		conn.Close()
		return
	}
	client.Run()
}

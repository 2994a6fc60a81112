package handler

import (
	"strings"

	"tutorhub/backend/internal/lifecycle"

	"github.com/gin-gonic/gin"
)

const userIDKey = "user_id"

// RequireUser verifies the bearer token and stores the caller's id in the
// context. With allowQueryToken the token may also come from the token query
// parameter; only the websocket feed enables it, since browsers cannot set
// headers on an upgrade.
func (h *Handler) RequireUser(allowQueryToken bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c.GetHeader("Authorization"))
		if token == "" && allowQueryToken {
			token = c.Query("token")
		}
		if token == "" {
			writeError(c, lifecycle.ErrUnauthorized)
			c.Abort()
			return
		}

		userID, err := h.Gate.Verify(c.Request.Context(), token)
		if err != nil {
			writeError(c, err)
			c.Abort()
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

func extractBearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// currentUser returns the id stored by RequireUser.
func currentUser(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// server/internal/api/handlers/session_handler.go
package handlers

import (
	"net/http"

	"pharmacy-cart-api-server/internal/api/middleware"
	"pharmacy-cart-api-server/internal/session"

	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	Sessions *session.Manager
}

// openSession returns the caller's session. When the token is refused the
// error is written and ok is false.
func openSession(c *gin.Context, sessions *session.Manager) (*session.Session, bool) {
	s, err := sessions.Open(forwardContext(c), c.GetString(middleware.KeyUserID), c.GetString(middleware.KeyToken))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return s, true
}

// Close drops the worker's local cart and batch, e.g. on logout. The cart
// kept by the backend is untouched.
func (h *SessionHandler) Close(c *gin.Context) {
	s, ok := openSession(c, h.Sessions)
	if !ok {
		return
	}
	h.Sessions.Drop(s.UserID)
	c.Status(http.StatusNoContent)
}

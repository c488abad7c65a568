// server/internal/api/handlers/websocket_handler.go
package handlers

import (
	"net/http"
	"time"

	"pharmacy-cart-api-server/internal/auth"
	"pharmacy-cart-api-server/internal/backend"
	"pharmacy-cart-api-server/internal/session"
	"pharmacy-cart-api-server/internal/socket"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Maximum wait for the next message (or ping) from the client.
const pongWait = 30 * time.Second

type WebSocketHandler struct {
	Hub      *socket.Hub
	Parser   *auth.Parser
	Sessions *session.Manager
	Upgrader websocket.Upgrader
	Log      *zap.Logger
}

// ServeWs upgrades the connection and pushes cart and batch updates to it.
// Browsers cannot set headers on a websocket handshake, so the token comes in
// the query string.
func (h *WebSocketHandler) ServeWs(c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token is required"})
		return
	}
	claims, err := h.Parser.Parse(tokenString)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	}
	userID := claims.Identity()
	s, err := h.Sessions.Open(backend.ContextWithToken(c.Request.Context(), tokenString), userID, tokenString)
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := h.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Log.Warn("failed to upgrade connection", zap.String("user_id", userID), zap.Error(err))
		return
	}

	h.Hub.Register(userID, conn)
	defer func() {
		h.Hub.Unregister(userID, conn)
		conn.Close()
	}()

	_ = h.Hub.Notify(userID, session.EventCartUpdated, s.View())
	_ = h.Hub.Notify(userID, session.EventBatchUpdated, s.BatchView())

	// Each ping from the client extends the read deadline.
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.Log.Info("unexpected websocket close", zap.String("user_id", userID), zap.Error(err))
			}
			return
		}
	}
}

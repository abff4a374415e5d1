package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ignatzorin/bounty-backend/internal/http/middleware"
	"github.com/ignatzorin/bounty-backend/internal/ws"
)

// WSHandler отвечает за установку WebSocket соединений для ленты активности.
type WSHandler struct {
	hub      *ws.Hub
	tokens   middleware.AccessParser
	upgrader websocket.Upgrader
}

// NewWSHandler создаёт новый хэндлер. Пустой список origins разрешает любые.
func NewWSHandler(hub *ws.Hub, tokens middleware.AccessParser, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		hub:    hub,
		tokens: tokens,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(allowedOrigins) == 0 {
					return true
				}
				for _, allowed := range allowedOrigins {
					if origin == allowed {
						return true
					}
				}
				return false
			},
		},
	}
}

// Handle обслуживает GET /api/ws?token=...
func (h *WSHandler) Handle(c *gin.Context) {
	rawToken := c.Query("token")
	if rawToken == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "access токен обязателен"})
		return
	}

	userID, _, err := h.tokens.ParseAccess(rawToken)
	if err != nil || userID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "невалидный access токен"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade уже ответил клиенту.
		return
	}

	ws.NewClient(conn, h.hub, userID).Run(c.Request.Context())
}

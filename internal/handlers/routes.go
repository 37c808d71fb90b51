package handlers

import (
	"net/http"

	"freecord/internal/models"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, validator TokenValidator, wsHandlers *WebSocketHandlers, messageHandlers *MessageHandlers) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// WebSocket routes authenticate through the handshake, not the middleware.
	r.GET("/ws/:channel_id", wsHandlers.HandleChannel)
	r.GET("/ws/dm/:conversation_id", wsHandlers.HandleConversation)

	api := r.Group("/api", AuthMiddleware(validator))
	messageHandlers.Register(api.Group("/channels/:id/messages"), models.ScopeChannel)
	messageHandlers.Register(api.Group("/conversations/:id/messages"), models.ScopeConversation)
}

package handlers

import (
	"errors"
	"net/http"
	"time"

	"freecord/internal/models"
	ws "freecord/internal/websocket"
	chaterrors "freecord/pkg/errors"
	"freecord/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type WebSocketHandlers struct {
	router   *ws.Router
	upgrader websocket.Upgrader
}

func NewWebSocketHandlers(router *ws.Router, origins *OriginPolicy) *WebSocketHandlers {
	return &WebSocketHandlers{
		router: router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.Check,
		},
	}
}

// HandleChannel serves /ws/:channel_id.
func (h *WebSocketHandlers) HandleChannel(c *gin.Context) {
	h.serve(c, "channel_id", models.ChannelScope)
}

// HandleConversation serves /ws/dm/:conversation_id.
func (h *WebSocketHandlers) HandleConversation(c *gin.Context) {
	h.serve(c, "conversation_id", models.ConversationScope)
}

func (h *WebSocketHandlers) serve(c *gin.Context, param string, scopeOf func(int64) models.Scope) {
	id, err := models.ParseScopeID(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(err.Error(), "INVALID_INPUT"))
		return
	}
	scope := scopeOf(id)

	// Upgrade first so refusals reach the client as close codes.
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	ctx := c.Request.Context()
	adm, err := h.router.Handshake(ctx, scope, c.Query("token"))
	if err != nil {
		code, reason := ws.CloseCode(err)
		if !errors.Is(err, chaterrors.ErrUnauthorized) && !errors.Is(err, chaterrors.ErrForbidden) {
			logger.Error("Handshake error on %s: %v", scope, err)
		}
		refuse(conn, code, reason)
		return
	}

	client := ws.NewClient(conn, scope, adm.Identity)
	go client.WritePump()

	if err := h.router.NewSession(client, adm).Run(ctx); err != nil {
		logger.Debug("Session %s on %s ended: %v", client.ID(), scope, err)
	}
}

func refuse(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		logger.Debug("Error writing close frame: %v", err)
	}
	conn.Close()
}

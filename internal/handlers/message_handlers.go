package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"freecord/internal/auth"
	"freecord/internal/models"
	"freecord/internal/services"
	chaterrors "freecord/pkg/errors"

	"github.com/gin-gonic/gin"
)

const scopeKindKey = "scope_kind"

type MessageHandlers struct {
	messages *services.MessageService
}

func NewMessageHandlers(messages *services.MessageService) *MessageHandlers {
	return &MessageHandlers{messages: messages}
}

// Register mounts the message routes under a group whose path carries :id.
func (h *MessageHandlers) Register(rg *gin.RouterGroup, kind models.ScopeKind) {
	rg.Use(func(c *gin.Context) {
		c.Set(scopeKindKey, kind)
		c.Next()
	})

	rg.GET("", h.GetMessages)
	rg.GET("/search", h.SearchMessages)
	rg.PUT("/:message_id", h.EditMessage)
	rg.DELETE("/:message_id", h.DeleteMessage)
	rg.POST("/:message_id/reactions", h.ToggleReaction)
	rg.POST("/:message_id/pin", h.PinMessage)
	rg.DELETE("/:message_id/pin", h.UnpinMessage)
}

func (h *MessageHandlers) GetMessages(c *gin.Context) {
	scope, user, ok := h.request(c)
	if !ok {
		return
	}

	limit := services.HistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(c, "Get messages", fmt.Errorf("invalid limit: %w", chaterrors.ErrInvalidInput))
			return
		}
		limit = n
	}

	messages, err := h.messages.History(c.Request.Context(), scope, user, limit)
	if err != nil {
		writeError(c, "Get messages", err)
		return
	}

	c.JSON(http.StatusOK, NewSuccessResponse(renderMessages(messages)))
}

func (h *MessageHandlers) SearchMessages(c *gin.Context) {
	scope, user, ok := h.request(c)
	if !ok {
		return
	}

	messages, err := h.messages.Search(c.Request.Context(), scope, user, c.Query("q"))
	if err != nil {
		writeError(c, "Search messages", err)
		return
	}

	c.JSON(http.StatusOK, NewSuccessResponse(renderMessages(messages)))
}

func (h *MessageHandlers) EditMessage(c *gin.Context) {
	scope, user, ok := h.request(c)
	if !ok {
		return
	}
	messageID, ok := messageIDParam(c)
	if !ok {
		return
	}

	var req models.EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, "Edit message", fmt.Errorf("invalid request: %w", chaterrors.ErrInvalidInput))
		return
	}

	msg, err := h.messages.Edit(c.Request.Context(), scope, user, messageID, req.Content)
	if err != nil {
		writeError(c, "Edit message", err)
		return
	}

	c.JSON(http.StatusOK, NewSuccessResponse(models.NewMessageEvent(msg)))
}

func (h *MessageHandlers) DeleteMessage(c *gin.Context) {
	scope, user, ok := h.request(c)
	if !ok {
		return
	}
	messageID, ok := messageIDParam(c)
	if !ok {
		return
	}

	if err := h.messages.Delete(c.Request.Context(), scope, user, messageID); err != nil {
		writeError(c, "Delete message", err)
		return
	}

	c.JSON(http.StatusOK, NewSuccessResponse(gin.H{"message_id": messageID}))
}

func (h *MessageHandlers) ToggleReaction(c *gin.Context) {
	scope, user, ok := h.request(c)
	if !ok {
		return
	}
	messageID, ok := messageIDParam(c)
	if !ok {
		return
	}

	ev, err := h.messages.ToggleReaction(c.Request.Context(), scope, user, messageID, c.Query("emoji"))
	if err != nil {
		writeError(c, "Toggle reaction", err)
		return
	}

	c.JSON(http.StatusOK, NewSuccessResponse(ev))
}

func (h *MessageHandlers) PinMessage(c *gin.Context) {
	scope, user, ok := h.request(c)
	if !ok {
		return
	}
	messageID, ok := messageIDParam(c)
	if !ok {
		return
	}

	if err := h.messages.Pin(c.Request.Context(), scope, user, messageID); err != nil {
		writeError(c, "Pin message", err)
		return
	}

	c.JSON(http.StatusOK, NewSuccessResponse(gin.H{"message_id": messageID, "pinned": true}))
}

func (h *MessageHandlers) UnpinMessage(c *gin.Context) {
	scope, user, ok := h.request(c)
	if !ok {
		return
	}
	messageID, ok := messageIDParam(c)
	if !ok {
		return
	}

	if err := h.messages.Unpin(c.Request.Context(), scope, user, messageID); err != nil {
		writeError(c, "Unpin message", err)
		return
	}

	c.JSON(http.StatusOK, NewSuccessResponse(gin.H{"message_id": messageID, "pinned": false}))
}

// request resolves the scope and caller, writing the error response itself
// when either is missing.
func (h *MessageHandlers) request(c *gin.Context) (models.Scope, *auth.Identity, bool) {
	user := identityFrom(c)
	if user == nil {
		writeError(c, "Resolve user", chaterrors.ErrUnauthorized)
		return models.Scope{}, nil, false
	}

	id, err := models.ParseScopeID(c.Param("id"))
	if err != nil {
		writeError(c, "Resolve scope", fmt.Errorf("%v: %w", err, chaterrors.ErrInvalidInput))
		return models.Scope{}, nil, false
	}

	kind, _ := c.Get(scopeKindKey)
	if kind == models.ScopeConversation {
		return models.ConversationScope(id), user, true
	}
	return models.ChannelScope(id), user, true
}

func messageIDParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("message_id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, "Resolve message", fmt.Errorf("invalid message id: %w", chaterrors.ErrInvalidInput))
		return 0, false
	}
	return id, true
}

func renderMessages(messages []*models.Message) []models.MessageEvent {
	out := make([]models.MessageEvent, 0, len(messages))
	for _, msg := range messages {
		out = append(out, models.NewMessageEvent(msg))
	}
	return out
}

package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"restaurant-chat/internal/apperr"
	"restaurant-chat/internal/middleware"
	"restaurant-chat/internal/models"
)

// ChatService is the coordinator as seen by the HTTP API.
type ChatService interface {
	CreateChat(ctx context.Context, caller models.Identity, waiterID, text string) (models.Conversation, error)
	SendMessage(ctx context.Context, caller models.Identity, conversationID, content, originConnID string) (models.Conversation, error)
	MarkRead(ctx context.Context, caller models.Identity, conversationID, originConnID string) error
	GetChat(ctx context.Context, caller models.Identity, conversationID string) (models.Conversation, error)
	ListChats(ctx context.Context, caller models.Identity) ([]models.Conversation, error)
	CloseChat(ctx context.Context, caller models.Identity, conversationID string) (models.Conversation, error)
}

// ChatHandler serves the request/response side of the chat.
type ChatHandler struct {
	chats ChatService
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(chats ChatService) *ChatHandler {
	return &ChatHandler{chats: chats}
}

// Register mounts the chat routes on an authenticated group.
func (h *ChatHandler) Register(group *gin.RouterGroup) {
	group.GET("/chats", h.ListChats)
	group.POST("/chats", middleware.RequireRoles(models.RoleClient), h.CreateChat)
	group.GET("/chats/:chat_id", h.GetChat)
	group.POST("/chats/:chat_id/messages", h.PostMessage)
	group.POST("/chats/:chat_id/read", h.MarkRead)
	group.POST("/chats/:chat_id/close", middleware.RequireRoles(models.RoleWaiter, models.RoleAdmin), h.CloseChat)
}

// ListChats returns the conversations visible to the caller.
func (h *ChatHandler) ListChats(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	chats, err := h.chats.ListChats(c.Request.Context(), caller)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// CreateChat starts a conversation with a waiter.
func (h *ChatHandler) CreateChat(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	var req struct {
		WaiterID string `json:"waiterId"`
		Message  string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation("body must be {waiterId, message}"))
		return
	}

	conv, err := h.chats.CreateChat(c.Request.Context(), caller, req.WaiterID, req.Message)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, conv)
}

// GetChat returns one conversation with its messages.
func (h *ChatHandler) GetChat(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	conv, err := h.chats.GetChat(c.Request.Context(), caller, c.Param("chat_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// PostMessage appends a message. The new message is also pushed to the opposite room.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation("body must be {content}"))
		return
	}

	chatID := c.Param("chat_id")
	conv, err := h.chats.SendMessage(c.Request.Context(), caller, chatID, req.Content, "")
	if err != nil {
		writeError(c, err)
		return
	}

	resp := gin.H{"chatId": conv.ID, "lastMessage": conv.LastMessage, "unreadCount": conv.UnreadCount}
	if n := len(conv.Messages); n > 0 {
		resp["message"] = conv.Messages[n-1]
	}
	c.JSON(http.StatusCreated, resp)
}

// MarkRead flags every message of the conversation read.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	chatID := c.Param("chat_id")
	if err := h.chats.MarkRead(c.Request.Context(), caller, chatID, ""); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chatId": chatID, "unreadCount": 0})
}

// CloseChat ends a conversation.
func (h *ChatHandler) CloseChat(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	conv, err := h.chats.CloseChat(c.Request.Context(), caller, c.Param("chat_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func callerOrAbort(c *gin.Context) (models.Identity, bool) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		writeError(c, apperr.Authentication("Authentication error", nil))
		c.Abort()
		return models.Identity{}, false
	}
	return identity, true
}

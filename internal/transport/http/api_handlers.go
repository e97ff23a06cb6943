package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/chatcast/internal/core"
	"github.com/vovakirdan/chatcast/internal/store"
)

const defaultHistoryLimit = 50

// APIHandlers provides the read-only operator endpoints.
type APIHandlers struct {
	chat     Chat
	messages store.MessageStore
	log      *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(chat Chat, messages store.MessageStore, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		chat:     chat,
		messages: messages,
		log:      logger,
	}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SessionsResponse lists the live sessions.
type SessionsResponse struct {
	Count    int                `json:"count"`
	Sessions []core.SessionInfo `json:"sessions"`
}

// MessageResponse represents a logged chat message.
type MessageResponse struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	Username  string `json:"username"`
	Timestamp int64  `json:"timestamp"`
}

// MessagesResponse lists logged messages, newest first.
type MessagesResponse struct {
	Total    int64             `json:"total"`
	Messages []MessageResponse `json:"messages"`
}

type listMessagesQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// ListSessions handles listing connected sessions.
// GET /api/sessions
func (h *APIHandlers) ListSessions(c *gin.Context) {
	sessions := h.chat.Sessions()
	c.JSON(http.StatusOK, SessionsResponse{Count: len(sessions), Sessions: sessions})
}

// ListMessages handles listing the message log.
// GET /api/messages?limit=N
func (h *APIHandlers) ListMessages(c *gin.Context) {
	var query listMessagesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.log.Debug().Err(err).Msg("invalid list messages query")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
		return
	}
	if query.Limit == 0 {
		query.Limit = defaultHistoryLimit
	}

	ctx := c.Request.Context()
	messages, err := h.messages.ListMessages(ctx, query.Limit)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	total, err := h.messages.CountMessages(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to count messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusOK, MessagesResponse{
		Total: total,
		Messages: lo.Map(messages, func(m *store.Message, _ int) MessageResponse {
			return MessageResponse{ID: m.ID, Text: m.Text, Username: m.Username, Timestamp: m.Timestamp}
		}),
	})
}

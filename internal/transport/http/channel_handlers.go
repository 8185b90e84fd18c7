package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat/internal/store"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// ChannelHandlers serves persisted channel messages.
type ChannelHandlers struct {
	store store.MessageStore
	log   *zerolog.Logger
}

// NewChannelHandlers creates a new channel handlers instance.
func NewChannelHandlers(st store.MessageStore, logger *zerolog.Logger) *ChannelHandlers {
	return &ChannelHandlers{
		store: st,
		log:   logger,
	}
}

// MessagesResponse is the body of the message history endpoint.
type MessagesResponse struct {
	Channel  string            `json:"channel"`
	Messages []MessageResponse `json:"messages"`
}

// ListMessages returns the latest messages of a channel, oldest first.
// GET /api/channels/:name/messages?limit=N
func (h *ChannelHandlers) ListMessages(c *gin.Context) {
	name := c.Param("name")

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	msgs, err := h.store.RecentMessages(c.Request.Context(), name, limit)
	if err != nil {
		h.log.Error().Err(err).Str("channel", name).Msg("failed to load messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	resp := MessagesResponse{Channel: name, Messages: make([]MessageResponse, 0, len(msgs))}
	for i := range msgs {
		resp.Messages = append(resp.Messages, messageResponse(msgs[i]))
	}
	c.JSON(http.StatusOK, resp)
}

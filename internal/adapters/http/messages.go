package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/owndc/internal/domain"
	"github.com/dkeye/owndc/internal/storage"
)

const (
	defaultHistory = 50
	maxHistory     = 100
)

// sendMessageRequest is the body of POST /api/messages.
type sendMessageRequest struct {
	ChannelID domain.RoomID `json:"channelId" binding:"required"`
	Content   string        `json:"content" binding:"required"`
}

type sendDirectRequest struct {
	Content string `json:"content" binding:"required"`
}

func historyLimit(c *gin.Context) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 {
		return defaultHistory
	}
	return min(n, maxHistory)
}

// member reports whether the caller may read or write the channel and
// writes the error response when it may not.
func (h *handlers) member(c *gin.Context, channel domain.RoomID) bool {
	ok, err := h.deps.Store.IsChannelMember(c.Request.Context(), channel, currentUser(c))
	if err != nil {
		serverError(c, "channel membership", err)
		return false
	}
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a member of this channel"})
		return false
	}
	return true
}

func (h *handlers) listMessages(c *gin.Context) {
	channel := domain.RoomID(c.Param("id"))
	if !h.member(c, channel) {
		return
	}
	msgs, err := h.deps.Store.ListMessages(c.Request.Context(), channel, historyLimit(c))
	if err != nil {
		serverError(c, "list messages", err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *handlers) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "channelId and content are required"})
		return
	}
	if !h.member(c, req.ChannelID) {
		return
	}
	m, err := domain.NewMessage(req.ChannelID, currentUser(c), req.Content)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message content is empty"})
		return
	}
	saved, err := h.deps.Store.InsertMessage(c.Request.Context(), m)
	if err != nil {
		serverError(c, "send message", err)
		return
	}
	c.JSON(http.StatusCreated, saved)
}

func (h *handlers) listDirectMessages(c *gin.Context) {
	peer := domain.UserID(c.Param("userId"))
	msgs, err := h.deps.Store.ListDirectMessages(c.Request.Context(), currentUser(c), peer, historyLimit(c))
	if err != nil {
		serverError(c, "list direct messages", err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// sendDirectMessage stores a message to the path user.
func (h *handlers) sendDirectMessage(c *gin.Context) {
	var req sendDirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message content is required"})
		return
	}
	receiver := domain.UserID(c.Param("userId"))
	ctx := c.Request.Context()
	if _, err := h.deps.Store.GetUserByID(ctx, receiver); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		serverError(c, "send direct message", err)
		return
	}
	m, err := domain.NewDirectMessage(currentUser(c), receiver, req.Content)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message content is empty"})
		return
	}
	saved, err := h.deps.Store.InsertDirectMessage(ctx, m)
	if err != nil {
		serverError(c, "send direct message", err)
		return
	}
	c.JSON(http.StatusCreated, saved)
}

package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/owndc/internal/domain"
	"github.com/dkeye/owndc/internal/storage"
)

type createChannelRequest struct {
	Name string             `json:"name" binding:"required"`
	Type domain.ChannelType `json:"type"`
}

// listChannels returns the whole directory and the caller's own channels.
func (h *handlers) listChannels(c *gin.Context) {
	ctx := c.Request.Context()
	all, err := h.deps.Store.ListChannels(ctx)
	if err != nil {
		serverError(c, "list channels", err)
		return
	}
	mine, err := h.deps.Store.ListChannelsForUser(ctx, currentUser(c))
	if err != nil {
		serverError(c, "list channels", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"all": all, "mine": mine})
}

func (h *handlers) createChannel(c *gin.Context) {
	var req createChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Channel name is required"})
		return
	}
	ch, err := domain.NewChannel(req.Name, req.Type, currentUser(c))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Channel name is required"})
		return
	}
	if err := h.deps.Store.CreateChannel(c.Request.Context(), ch); err != nil {
		serverError(c, "create channel", err)
		return
	}
	c.JSON(http.StatusCreated, ch)
}

// channel loads the path channel and writes a 404 when it is missing.
func (h *handlers) channel(c *gin.Context) (*domain.Channel, bool) {
	ch, err := h.deps.Store.GetChannel(c.Request.Context(), domain.RoomID(c.Param("id")))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Channel not found"})
		return nil, false
	}
	if err != nil {
		serverError(c, "get channel", err)
		return nil, false
	}
	return ch, true
}

// joinChannel grants durable membership; live room membership is
// handled over the websocket.
func (h *handlers) joinChannel(c *gin.Context) {
	ch, ok := h.channel(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	uid := currentUser(c)
	member, err := h.deps.Store.IsChannelMember(ctx, ch.ID, uid)
	if err != nil {
		serverError(c, "join channel", err)
		return
	}
	if member {
		c.JSON(http.StatusConflict, gin.H{"error": "Already a member"})
		return
	}
	err = h.deps.Store.AddChannelMember(ctx, ch.ID, uid)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Channel not found"})
		return
	}
	if err != nil {
		serverError(c, "join channel", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Joined channel"})
}

func (h *handlers) leaveChannel(c *gin.Context) {
	id := domain.RoomID(c.Param("id"))
	uid := currentUser(c)
	err := h.deps.Store.RemoveChannelMember(c.Request.Context(), id, uid)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not a member of this channel"})
		return
	}
	if err != nil {
		serverError(c, "leave channel", err)
		return
	}
	h.deps.Orch.EvictFromChannel(id, uid)
	c.JSON(http.StatusOK, gin.H{"message": "Left channel"})
}

func (h *handlers) deleteChannel(c *gin.Context) {
	ch, ok := h.channel(c)
	if !ok {
		return
	}
	if ch.OwnerID != currentUser(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the owner can delete this channel"})
		return
	}
	err := h.deps.Store.DeleteChannel(c.Request.Context(), ch.ID)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Channel not found"})
		return
	}
	if err != nil {
		serverError(c, "delete channel", err)
		return
	}
	h.deps.Orch.CloseChannel(ch.ID)
	c.JSON(http.StatusOK, gin.H{"message": "Channel deleted"})
}

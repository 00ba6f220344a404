package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/owndc/internal/domain"
	"github.com/dkeye/owndc/internal/storage"
)

type friendRequest struct {
	Username string `json:"username" binding:"required"`
}

type friendshipRequest struct {
	FriendshipID string `json:"friendshipId" binding:"required"`
}

func (h *handlers) listFriends(c *gin.Context) {
	list, err := h.deps.Store.ListFriendships(c.Request.Context(), currentUser(c))
	if err != nil {
		serverError(c, "list friends", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *handlers) requestFriend(c *gin.Context) {
	var req friendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username is required"})
		return
	}
	ctx := c.Request.Context()
	me := currentUser(c)

	friend, err := h.deps.Store.GetUserByUsername(ctx, req.Username)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		serverError(c, "friend request", err)
		return
	}
	if friend.ID == me {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot add yourself"})
		return
	}

	_, err = h.deps.Store.GetFriendshipBetween(ctx, me, friend.ID)
	switch {
	case err == nil:
		c.JSON(http.StatusConflict, gin.H{"error": "Friend request already exists"})
		return
	case !errors.Is(err, storage.ErrNotFound):
		serverError(c, "friend request", err)
		return
	}

	f := &domain.Friendship{UserID: me, FriendID: friend.ID}
	if err := h.deps.Store.CreateFriendRequest(ctx, f); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "Friend request already exists"})
			return
		}
		serverError(c, "friend request", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":       "Friend request sent",
		"friendship_id": f.ID,
		"friend":        domain.Profile{ID: friend.ID, Username: friend.Username},
	})
}

func (h *handlers) acceptFriend(c *gin.Context) {
	var req friendshipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "friendshipId is required"})
		return
	}
	ctx := c.Request.Context()
	f, err := h.deps.Store.AcceptFriendRequest(ctx, req.FriendshipID, currentUser(c))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Friend request not found"})
		return
	}
	if err != nil {
		serverError(c, "accept friend", err)
		return
	}
	friend, err := h.deps.Store.GetUserByID(ctx, f.UserID)
	if err != nil {
		serverError(c, "accept friend", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Friend request accepted", "friend": friend.Profile()})
}

func (h *handlers) declineFriend(c *gin.Context) {
	var req friendshipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "friendshipId is required"})
		return
	}
	err := h.deps.Store.DeclineFriendRequest(c.Request.Context(), req.FriendshipID, currentUser(c))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Friend request not found"})
		return
	}
	if err != nil {
		serverError(c, "decline friend", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Friend request declined"})
}

func (h *handlers) removeFriend(c *gin.Context) {
	err := h.deps.Store.RemoveFriend(c.Request.Context(), c.Param("id"), currentUser(c))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Friend not found"})
		return
	}
	if err != nil {
		serverError(c, "remove friend", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Friend removed"})
}

package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/owndc/internal/domain"
	"github.com/dkeye/owndc/internal/storage"
)

type createGroupRequest struct {
	Name string `json:"name" binding:"required"`
}

type addGroupMemberRequest struct {
	UserID domain.UserID `json:"userId" binding:"required"`
}

func (h *handlers) listGroups(c *gin.Context) {
	groups, err := h.deps.Store.ListGroupsForUser(c.Request.Context(), currentUser(c))
	if err != nil {
		serverError(c, "list groups", err)
		return
	}
	c.JSON(http.StatusOK, groups)
}

func (h *handlers) createGroup(c *gin.Context) {
	var req createGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Group name is required"})
		return
	}
	g, err := domain.NewGroup(req.Name, currentUser(c))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Group name is required"})
		return
	}
	if err := h.deps.Store.CreateGroup(c.Request.Context(), g); err != nil {
		serverError(c, "create group", err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

func (h *handlers) group(c *gin.Context) (*domain.Group, bool) {
	g, err := h.deps.Store.GetGroup(c.Request.Context(), domain.GroupID(c.Param("id")))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return nil, false
	}
	if err != nil {
		serverError(c, "get group", err)
		return nil, false
	}
	return g, true
}

// addGroupMember lets any member invite another user.
func (h *handlers) addGroupMember(c *gin.Context) {
	var req addGroupMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}
	g, ok := h.group(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	member, err := h.deps.Store.IsGroupMember(ctx, g.ID, currentUser(c))
	if err != nil {
		serverError(c, "add group member", err)
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a member of this group"})
		return
	}

	err = h.deps.Store.AddGroupMember(ctx, g.ID, req.UserID, domain.GroupMember)
	switch {
	case errors.Is(err, storage.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": "User is already a member"})
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
	case err != nil:
		serverError(c, "add group member", err)
	default:
		c.JSON(http.StatusCreated, gin.H{"message": "Member added"})
	}
}

func (h *handlers) deleteGroup(c *gin.Context) {
	g, ok := h.group(c)
	if !ok {
		return
	}
	if g.OwnerID != currentUser(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the owner can delete this group"})
		return
	}
	err := h.deps.Store.DeleteGroup(c.Request.Context(), g.ID)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return
	}
	if err != nil {
		serverError(c, "delete group", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Group deleted"})
}

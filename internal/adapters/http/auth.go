package http

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/dkeye/owndc/internal/domain"
	"github.com/dkeye/owndc/internal/storage"
)

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *handlers) hashCost() int {
	if h.deps.HashCost == 0 {
		return bcrypt.DefaultCost
	}
	return h.deps.HashCost
}

func (h *handlers) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Username, valid email and a password of at least 6 characters are required"})
		return
	}
	user, err := domain.NewUser(req.Username, req.Email)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), h.hashCost())
	if err != nil {
		serverError(c, "register", err)
		return
	}
	user.PasswordHash = string(hash)
	user.Status = domain.StatusOnline

	if err := h.deps.Store.CreateUser(c.Request.Context(), user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "User already exists"})
			return
		}
		serverError(c, "register", err)
		return
	}

	if err := setLogin(c, user.ID); err != nil {
		serverError(c, "register", err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *handlers) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Email and password are required"})
		return
	}
	ctx := c.Request.Context()
	user, err := h.deps.Store.GetUserByEmail(ctx, req.Email)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if err != nil {
		serverError(c, "login", err)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if err := h.deps.Store.SetUserStatus(ctx, user.ID, domain.StatusOnline); err != nil {
		serverError(c, "login", err)
		return
	}
	user.Status = domain.StatusOnline

	if err := setLogin(c, user.ID); err != nil {
		serverError(c, "login", err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *handlers) logout(c *gin.Context) {
	if id := c.GetString("user_id"); id != "" {
		if err := h.deps.Store.SetUserStatus(c.Request.Context(), domain.UserID(id), domain.StatusOffline); err != nil && !errors.Is(err, storage.ErrNotFound) {
			serverError(c, "logout", err)
			return
		}
	}
	s := sessions.Default(c)
	s.Clear()
	s.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := s.Save(); err != nil {
		serverError(c, "logout", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

func (h *handlers) me(c *gin.Context) {
	id := c.GetString("user_id")
	if id == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}
	user, err := h.deps.Store.GetUserByID(c.Request.Context(), domain.UserID(id))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		serverError(c, "me", err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func setLogin(c *gin.Context, id domain.UserID) error {
	s := sessions.Default(c)
	s.Set(sessionUserKey, string(id))
	return s.Save()
}

func currentUser(c *gin.Context) domain.UserID {
	return domain.UserID(c.GetString("user_id"))
}

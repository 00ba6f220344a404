package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/owndc/internal/adapters/signal"
	"github.com/dkeye/owndc/internal/app/orch"
	"github.com/dkeye/owndc/internal/config"
	"github.com/dkeye/owndc/internal/storage"
)

const sessionUserKey = "userId"

// Deps are the collaborators the HTTP surface is wired to.
type Deps struct {
	Orch       *orch.Orchestrator
	Store      storage.Store
	Signal     *signal.SignalWSController
	ICEServers []webrtc.ICEServer
	Gatherer   prometheus.Gatherer
	// HashCost is the bcrypt cost for new passwords; zero means bcrypt.DefaultCost.
	HashCost int
}

// LoginSessionMiddleware exposes the logged-in user id, if any, as "user_id".
func LoginSessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id, ok := sessions.Default(c).Get(sessionUserKey).(string); ok && id != "" {
			c.Set("user_id", id)
		}
		c.Next()
	}
}

func requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("user_id") == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 24 * 60 * 60, HttpOnly: true})
	r.Use(sessions.Sessions("owndc", store))
	r.Use(LoginSessionMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	h := &handlers{deps: deps}
	api := r.Group("/api")

	auth := api.Group("/auth")
	auth.POST("/register", h.register)
	auth.POST("/login", h.login)
	auth.POST("/logout", h.logout)
	auth.GET("/me", h.me)

	friends := api.Group("/friends", requireAuth())
	friends.GET("", h.listFriends)
	friends.POST("/request", h.requestFriend)
	friends.POST("/accept", h.acceptFriend)
	friends.POST("/decline", h.declineFriend)
	friends.DELETE("/:id", h.removeFriend)

	channels := api.Group("/channels", requireAuth())
	channels.GET("", h.listChannels)
	channels.POST("", h.createChannel)
	channels.POST("/:id/join", h.joinChannel)
	channels.POST("/:id/leave", h.leaveChannel)
	channels.DELETE("/:id", h.deleteChannel)
	channels.GET("/:id/messages", h.listMessages)

	messages := api.Group("/messages", requireAuth())
	messages.POST("", h.sendMessage)
	messages.GET("/dm/:userId", h.listDirectMessages)
	messages.POST("/dm/:userId", h.sendDirectMessage)

	groups := api.Group("/groups", requireAuth())
	groups.GET("", h.listGroups)
	groups.POST("", h.createGroup)
	groups.POST("/:id/members", h.addGroupMember)
	groups.DELETE("/:id", h.deleteGroup)

	voice := api.Group("/voice")
	voice.GET("/rooms", h.voiceRooms)
	voice.GET("/ice-servers", h.iceServers)

	if deps.Signal != nil {
		api.GET("/ws", func(c *gin.Context) {
			log.Debug().Str("module", "adapters.http").Str("user", c.GetString("user_id")).Msg("ws endpoint hit")
			deps.Signal.HandleSignal(ctx, c)
		})
	}

	return r
}

type handlers struct {
	deps Deps
}

func serverError(c *gin.Context, op string, err error) {
	log.Error().Err(err).Str("module", "adapters.http").Str("op", op).Msg("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
}

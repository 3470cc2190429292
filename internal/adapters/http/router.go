package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dkeye/Huddle/internal/adapters/ratelimit"
	"github.com/dkeye/Huddle/internal/adapters/signal"
	"github.com/dkeye/Huddle/internal/app/account"
	"github.com/dkeye/Huddle/internal/app/chat"
	"github.com/dkeye/Huddle/internal/app/social"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const sessionName = "HuddleSessions"

// Deps are the services the HTTP surface is built on.
type Deps struct {
	Accounts *account.Service
	Chat     *chat.Service
	Friends  *social.Friends
	Blocks   *social.Blocks
	Groups   *social.Groups
	Signal   *signal.SignalWSController
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
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   7 * 24 * 3600,
		HttpOnly: true,
		Secure:   cfg.Mode == "release",
		SameSite: http.SameSiteStrictMode,
	})
	r.Use(sessions.Sessions(sessionName, store))

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}
	if cfg.UploadDir != "" {
		r.Static("/uploads", cfg.UploadDir)
	}
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Str("uploads", cfg.UploadDir).Msg("router setup")

	api := r.Group("/api")
	if cfg.APIRate > 0 {
		limiter := ratelimit.New[string](rate.Limit(cfg.APIRate), cfg.APIBurst)
		go limiter.Run(ctx, 5*time.Minute)
		api.Use(RateLimitMiddleware(limiter))
	}

	h := &handlers{deps: deps}

	api.GET("/ws/signal", func(c *gin.Context) {
		user, ok := signalIdentity(c, cfg.RequireSession)
		if !ok {
			return
		}
		log.Info().Str("module", "adapters.http").Str("user", string(user)).Msg("ws signal endpoint hit")
		deps.Signal.HandleSignal(ctx, c, user)
	})

	auth := api.Group("/auth")
	auth.POST("/signup", h.signup)
	auth.POST("/login", h.login)
	auth.POST("/logout", h.logout)

	authed := api.Group("", RequireAuth())
	authed.GET("/auth/check", h.check)
	authed.PUT("/auth/update-profile", h.updateProfile)
	authed.GET("/auth/users", h.users)

	msgs := authed.Group("/messages")
	msgs.GET("/users", h.users)
	msgs.GET("/blocked", h.blocked)
	msgs.GET("/blocked/:id", h.blockStatus)
	msgs.POST("/block/:id", h.block)
	msgs.POST("/unblock/:id", h.unblock)
	msgs.GET("/group/:groupId", h.groupHistory)
	msgs.POST("/group/:groupId", h.sendGroup)
	msgs.DELETE("/delete/:messageId", h.deleteMessage)
	msgs.POST("/send/:id", h.sendDirect)
	msgs.GET("/:id", h.directHistory)

	friends := authed.Group("/friends")
	friends.GET("", h.friends)
	friends.POST("/request/:userId", h.friendRequest)
	friends.POST("/accept/:userId", h.acceptFriend)
	friends.POST("/decline/:userId", h.declineFriend)
	friends.DELETE("/remove/:friendId", h.removeFriend)

	groups := authed.Group("/groups")
	groups.GET("", h.groups)
	groups.POST("/create", h.createGroup)
	groups.POST("/:groupId/members", h.addMember)
	groups.POST("/:groupId/invite", h.invite)
	groups.PUT("/:groupId/avatar", h.groupAvatar)
	groups.POST("/:groupId/leave", h.leaveGroup)
	groups.DELETE("/:groupId", h.deleteGroup)

	inv := authed.Group("/invitations")
	inv.GET("", h.invitations)
	inv.POST("/:invitationId/accept", h.acceptInvitation)
	inv.POST("/:invitationId/reject", h.rejectInvitation)

	return r
}

// AllowOrigins builds a websocket origin check. An empty list keeps
// gorilla's same-origin default.
func AllowOrigins(origins []string) func(r *http.Request) bool {
	if len(origins) == 0 {
		return nil
	}
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}

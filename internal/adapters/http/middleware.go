package http

import (
	"net/http"

	"github.com/dkeye/Huddle/internal/adapters/ratelimit"
	"github.com/dkeye/Huddle/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	sessionUserKey = "user_id"
	ctxUserKey     = "user_id"
)

func RateLimitMiddleware(limiter *ratelimit.Limiter[string]) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

func sessionUser(c *gin.Context) domain.UserID {
	v, _ := sessions.Default(c).Get(sessionUserKey).(string)
	return domain.UserID(v)
}

// RequireAuth rejects requests without a logged-in session and stores the
// user id in the gin context.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := sessionUser(c)
		if uid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(ctxUserKey, uid)
		c.Next()
	}
}

func currentUser(c *gin.Context) domain.UserID {
	return c.MustGet(ctxUserKey).(domain.UserID)
}

// signalIdentity resolves who is opening a signaling connection. The
// userId query parameter names the user; a session, when present, must
// agree with it.
func signalIdentity(c *gin.Context, requireSession bool) (domain.UserID, bool) {
	claimed := domain.UserID(c.Query("userId"))
	session := sessionUser(c)
	switch {
	case session == "" && requireSession:
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	case claimed == "" && session == "":
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return "", false
	case claimed == "":
		return session, true
	case session != "" && claimed != session:
		log.Warn().Str("module", "adapters.http").Str("claimed", string(claimed)).Str("session", string(session)).Msg("signal identity mismatch")
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "userId does not match session"})
		return "", false
	}
	return claimed, true
}

package http

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/CatastropheArena/Catastrophe-Genesis/core"
	"github.com/CatastropheArena/Catastrophe-Genesis/ports"
	"github.com/CatastropheArena/Catastrophe-Genesis/service"
)

const sessionClaimsKey = "sessionClaims"

// AuthMiddleware creates middleware that validates bearer session tokens
func AuthMiddleware(keyService *service.KeyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			abortWithKind(c, core.ErrMissingAuthToken)
			return
		}
		if !strings.HasPrefix(auth, "Bearer ") {
			abortWithKind(c, core.ErrInvalidAuthHeader)
			return
		}
		token := strings.TrimPrefix(auth, "Bearer ")

		claims, err := keyService.VerifyToken(c.Request.Context(), token)
		if err != nil {
			kind, ok := err.(core.ErrorKind)
			if !ok {
				kind = core.ErrInvalidToken
			}
			abortWithKind(c, kind)
			return
		}

		c.Set(sessionClaimsKey, claims)
		c.Next()
	}
}

func abortWithKind(c *gin.Context, kind core.ErrorKind) {
	c.AbortWithStatusJSON(kind.Status(), gin.H{
		"error": kind.Message(),
		"tag":   kind.Tag(),
	})
}

// getSessionClaims returns the claims set by AuthMiddleware.
func getSessionClaims(c *gin.Context) (*ports.SessionClaims, bool) {
	v, exists := c.Get(sessionClaimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*ports.SessionClaims)
	return claims, ok
}

// RateLimitMiddleware applies a per-client-IP token bucket. Limiters are
// kept for the life of the process; the client set is bounded by the
// deployment's ingress.
func RateLimitMiddleware(rps rate.Limit, burst int) gin.HandlerFunc {
	var mu sync.Mutex
	limiters := make(map[string]*rate.Limiter)

	return func(c *gin.Context) {
		ip := c.ClientIP()

		mu.Lock()
		limiter, ok := limiters[ip]
		if !ok {
			limiter = rate.NewLimiter(rps, burst)
			limiters[ip] = limiter
		}
		mu.Unlock()

		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many requests",
			})
			return
		}
		c.Next()
	}
}

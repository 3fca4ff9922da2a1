package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"viralclip-backend/internal/models"
)

// RateLimit enforces a per-principal token bucket, backing the 429
// rate-limited error of spec §6.1. Limiters are created lazily and kept for
// the life of the process — one small bucket per principal is cheap enough
// not to warrant an eviction policy here.
func RateLimit(perSecond float64, burst int) gin.HandlerFunc {
	var mu sync.Mutex
	limiters := make(map[string]*rate.Limiter)

	limiterFor := func(principalID string) *rate.Limiter {
		mu.Lock()
		defer mu.Unlock()
		l, ok := limiters[principalID]
		if !ok {
			l = rate.NewLimiter(rate.Limit(perSecond), burst)
			limiters[principalID] = l
		}
		return l
	}

	return func(c *gin.Context) {
		principalID := PrincipalFrom(c)
		if principalID == "" {
			c.Next()
			return
		}

		if !limiterFor(principalID).Allow() {
			c.JSON(http.StatusTooManyRequests, models.ErrorResponse{Error: models.ErrorPayload{
				Kind:      "rate-limited",
				Message:   "too many requests",
				Retryable: true,
			}})
			c.Abort()
			return
		}
		c.Next()
	}
}

package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Gate applies sliding-window admission control in front of every route
// except an exempt set. Exempt paths never touch the backing store.
type Gate struct {
	limiter *SlidingWindow
	limit   int
	window  time.Duration
	exempt  map[string]struct{}
	logger  zerolog.Logger

	admitted atomic.Int64
	rejected atomic.Int64
	exempted atomic.Int64
}

// GateStats is a snapshot of gate outcome counters.
type GateStats struct {
	Admitted int64 `json:"admitted"`
	Rejected int64 `json:"rejected"`
	Exempted int64 `json:"exempted"`
}

func NewGate(limiter *SlidingWindow, limit int, window time.Duration, exemptPaths []string, logger zerolog.Logger) *Gate {
	exempt := make(map[string]struct{}, len(exemptPaths))
	for _, p := range exemptPaths {
		exempt[p] = struct{}{}
	}
	return &Gate{
		limiter: limiter,
		limit:   limit,
		window:  window,
		exempt:  exempt,
		logger:  logger,
	}
}

// Handler returns the gin middleware enforcing the gate.
func (g *Gate) Handler() gin.HandlerFunc {
	retryAfter := int(g.window / time.Second)
	message := fmt.Sprintf("Maximum %d requests per %d seconds", g.limit, retryAfter)

	return func(c *gin.Context) {
		if _, ok := g.exempt[c.Request.URL.Path]; ok {
			g.exempted.Add(1)
			c.Next()
			return
		}

		key := KeyFromRequest(c.Request)
		if g.limiter.Allow(c.Request.Context(), key, g.limit, g.window) {
			g.admitted.Add(1)
			c.Next()
			return
		}

		g.rejected.Add(1)
		g.logger.Info().Str("key", string(key)).Str("path", c.Request.URL.Path).
			Msg("rate limit exceeded")

		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":       "Rate limit exceeded",
			"message":     message,
			"retry_after": retryAfter,
		})
	}
}

func (g *Gate) Stats() GateStats {
	return GateStats{
		Admitted: g.admitted.Load(),
		Rejected: g.rejected.Load(),
		Exempted: g.exempted.Load(),
	}
}

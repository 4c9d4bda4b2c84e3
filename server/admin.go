package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// requireAdmin gates a route on the configured admin token. With no token
// configured the route reports not found, so the admin surface stays dark
// unless explicitly enabled.
func requireAdmin(adminToken string, logger zerolog.Logger) gin.HandlerFunc {
	expected := sha256.Sum256([]byte(adminToken))

	return func(c *gin.Context) {
		if adminToken == "" {
			respondError(c, http.StatusNotFound, "not found", logger)
			return
		}

		presented := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		got := sha256.Sum256([]byte(presented))
		if !hmac.Equal(expected[:], got[:]) {
			respondError(c, http.StatusForbidden, "forbidden", logger)
			return
		}

		c.Next()
	}
}

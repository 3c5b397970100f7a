package server

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
)

// ServiceTokenRequired authenticates the lease-management caller with a
// static bearer token. A missing token is unauthenticated; a wrong one is
// forbidden. Neither is retried by the caller.
func (s *Server) ServiceTokenRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.ServiceToken == "" {
			AbortWithError(c, ErrServiceUnavailable)
			return
		}

		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(s.cfg.ServiceToken)) != 1 {
			AbortWithError(c, ErrForbidden)
			return
		}

		c.Next()
	}
}

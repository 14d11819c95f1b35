// internal/api/auth_middleware.go
package api

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/SoloRealmMCP/internal/auth"
	"github.com/Corphon/SoloRealmMCP/internal/config"
	"github.com/Corphon/SoloRealmMCP/internal/utils"
)

const tokenIssuer = "solorealm"

// AuthMiddleware validates the bearer token on protected routes. When no
// API secret is configured the middleware is a no-op, which keeps local
// single-player setups friction free.
func AuthMiddleware(logger *utils.Logger) gin.HandlerFunc {
	rh := NewResponseHelper()

	return func(c *gin.Context) {
		cfg := config.GetCurrentConfig()
		if cfg.APISecret == "" {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenString == "" {
			rh.Unauthorized(c, "missing bearer token")
			c.Abort()
			return
		}

		claims, err := auth.ParseToken(tokenString, &auth.TokenConfig{
			Secret: []byte(cfg.APISecret),
			Issuer: tokenIssuer,
		})
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				rh.Unauthorized(c, "token expired")
			} else {
				if logger != nil {
					logger.Debugf("token rejected: %v", err)
				}
				rh.Unauthorized(c, "invalid token")
			}
			c.Abort()
			return
		}

		c.Set("player_id", claims.PlayerID)
		c.Next()
	}
}

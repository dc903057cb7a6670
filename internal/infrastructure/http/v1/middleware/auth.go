package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"tradeledger/internal/core/apperror"
	appctx "tradeledger/internal/core/context"
)

// JWTValidator interface for token validation.
type JWTValidator interface {
	ValidateToken(tokenString string) (*appctx.Actor, error)
}

// Auth middleware validates bearer tokens and puts the actor in the context.
func Auth(validator JWTValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			abortUnauthorized(c, "missing or malformed authorization header")
			return
		}

		actor, err := validator.ValidateToken(token)
		if err != nil {
			_ = c.Error(apperror.NewUnauthorized("invalid token").WithCause(err))
			c.Abort()
			return
		}

		setActor(c, actor)
		c.Next()
	}
}

// OptionalAuth validates token if present, but doesn't require it.
func OptionalAuth(validator JWTValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok {
			if actor, err := validator.ValidateToken(token); err == nil {
				setActor(c, actor)
			}
		}
		c.Next()
	}
}

// RequireRole lets the request through when the actor has any of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := appctx.GetActor(c.Request.Context())
		if actor == nil {
			abortUnauthorized(c, "authentication required")
			return
		}
		for _, r := range roles {
			if actor.HasRole(r) {
				c.Next()
				return
			}
		}
		_ = c.Error(apperror.NewForbidden("insufficient permissions").WithDetail("required_roles", roles))
		c.Abort()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func setActor(c *gin.Context, actor *appctx.Actor) {
	c.Request = c.Request.WithContext(appctx.WithActor(c.Request.Context(), actor))
	c.Set("user_id", actor.UserID)
}

func abortUnauthorized(c *gin.Context, message string) {
	_ = c.Error(apperror.NewUnauthorized(message))
	c.Abort()
}

package middleware

import (
	"net/http"
	"strings"

	"github.com/builder-feedback/feedback-slack/internal/auth"
	"github.com/builder-feedback/feedback-slack/internal/logger"
	"github.com/builder-feedback/feedback-slack/internal/types"
	"github.com/gin-gonic/gin"
)

type AuthenticatedUser struct {
	ID string `json:"id"`
}

// AuthMiddleware accepts the host app's session JWT from the Authorization header or the token cookie.
func AuthMiddleware(signer *auth.Signer) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		tokenString, ok := bearerToken(ctx)

		if !ok {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, types.Failure("Authorization token is required", nil))
			return
		}

		userID, err := signer.VerifyJWT(tokenString)

		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, types.Failure("Invalid or expired token", nil))
			return
		}

		ctx.Set(types.ContextUserKey, AuthenticatedUser{ID: userID})
		ctx.Request = ctx.Request.WithContext(logger.WithLogFields(ctx.Request.Context(), logger.LogFields{UserID: userID}))
		ctx.Next()
	}
}

// OptionalAuth identifies the caller when a valid session token is present and lets
// every request through. Slack's own calls to the same endpoint carry no session.
func OptionalAuth(signer *auth.Signer) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if tokenString, ok := bearerToken(ctx); ok {
			if userID, err := signer.VerifyJWT(tokenString); err == nil {
				ctx.Set(types.ContextUserKey, AuthenticatedUser{ID: userID})
				ctx.Request = ctx.Request.WithContext(logger.WithLogFields(ctx.Request.Context(), logger.LogFields{UserID: userID}))
			}
		}
		ctx.Next()
	}
}

func bearerToken(ctx *gin.Context) (string, bool) {
	authHeader := ctx.GetHeader("Authorization")

	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}

	// browsers cannot set headers on WebSocket upgrades
	if cookie, err := ctx.Cookie("token"); err == nil && cookie != "" {
		return cookie, true
	}

	return "", false
}

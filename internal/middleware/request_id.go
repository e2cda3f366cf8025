package middleware

import (
	"github.com/builder-feedback/feedback-slack/internal/logger"
	"github.com/builder-feedback/feedback-slack/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

// RequestID tags every request with an id that shows up in logs and the response headers.
func RequestID() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		requestID := ctx.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx.Set(types.ContextRequestIDKey, requestID)
		ctx.Header(RequestIDHeader, requestID)
		ctx.Request = ctx.Request.WithContext(logger.WithLogFields(ctx.Request.Context(), logger.LogFields{RequestID: requestID}))

		ctx.Next()
	}
}

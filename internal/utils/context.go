package utils

import (
	"errors"

	"github.com/builder-feedback/feedback-slack/internal/middleware"
	"github.com/builder-feedback/feedback-slack/internal/types"
	"github.com/gin-gonic/gin"
)

// ErrUnauthenticated means AuthMiddleware did not run or did not accept the request.
var ErrUnauthenticated = errors.New("user not authenticated")

// CurrentUser returns the user AuthMiddleware stored on the request.
func CurrentUser(c *gin.Context) (middleware.AuthenticatedUser, error) {
	value, ok := c.Get(types.ContextUserKey)
	if !ok {
		return middleware.AuthenticatedUser{}, ErrUnauthenticated
	}

	user, ok := value.(middleware.AuthenticatedUser)
	if !ok || user.ID == "" {
		return middleware.AuthenticatedUser{}, ErrUnauthenticated
	}

	return user, nil
}

func GetCurrentUserID(c *gin.Context) (string, error) {
	user, err := CurrentUser(c)
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/documenso/documenso-sub011/internal/auth"
	"github.com/documenso/documenso-sub011/internal/models"
	"github.com/documenso/documenso-sub011/pkg/errors"
	"github.com/documenso/documenso-sub011/pkg/response"
)

// CtxUserKey holds the authenticated *models.User for the request, when any.
const CtxUserKey = "currentUser"

func bearerToken(c *gin.Context) string {
	authz := c.GetHeader("Authorization")
	if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[7:])
}

// RequireUser enforces an authenticated owner session.
func RequireUser(sessions *iauth.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := sessions.CurrentUser(c.Request.Context(), bearerToken(c))
		if err != nil || user == nil {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Set(CtxUserKey, user)
		c.Next()
	}
}

// OptionalUser attaches the session user when a valid bearer token is
// present, and lets anonymous requests through untouched. The signing surface
// uses this: recipients act on their signing token, but envelopes requiring
// ACCOUNT access auth need the session as well.
func OptionalUser(sessions *iauth.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token != "" {
			if user, err := sessions.CurrentUser(c.Request.Context(), token); err == nil && user != nil {
				c.Set(CtxUserKey, user)
			}
		}
		c.Next()
	}
}

// UserFromContext returns the authenticated user attached by RequireUser or
// OptionalUser, or nil.
func UserFromContext(c *gin.Context) *models.User {
	value, ok := c.Get(CtxUserKey)
	if !ok {
		return nil
	}
	user, ok := value.(*models.User)
	if !ok {
		return nil
	}
	return user
}

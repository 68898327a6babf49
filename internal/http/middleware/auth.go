// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller's identity from a bearer token. Requests
// without a token proceed anonymously; services decide what anonymous
// callers may do. A token that is present but invalid is rejected with 401
// so clients notice an expired session instead of silently losing rights.
package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/slotboard/internal/auth"
)

const (
	ctxKeyIdentity = "identity"
	// ctxKeyUserID mirrors the identity's id for loggers and the rate limiter.
	ctxKeyUserID = "userID"
)

// IdentityResolver turns a raw bearer token into the current identity.
type IdentityResolver func(ctx context.Context, token string) (*auth.Identity, error)

// Authenticate attaches the identity named by the Authorization header.
func Authenticate(resolve IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.Next()
			return
		}
		id, err := resolve(c.Request.Context(), token)
		if err != nil || id == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "unauthorized",
				"message":    "invalid or expired token",
			})
			return
		}
		SetIdentity(c, id)
		c.Next()
	}
}

// SetIdentity stores id on the request.
func SetIdentity(c *gin.Context, id *auth.Identity) {
	c.Set(ctxKeyIdentity, id)
	c.Set(ctxKeyUserID, id.UserID)
}

// IdentityFrom returns the authenticated caller, or nil.
func IdentityFrom(c *gin.Context) *auth.Identity {
	if v, ok := c.Get(ctxKeyIdentity); ok {
		if id, ok := v.(*auth.Identity); ok {
			return id
		}
	}
	return nil
}

// userIDFrom returns the caller's id, 0 when anonymous.
func userIDFrom(c *gin.Context) uint {
	if v, ok := c.Get(ctxKeyUserID); ok {
		if id, ok := v.(uint); ok {
			return id
		}
	}
	return 0
}

// Package auth resolves who is calling. There is no login flow: every
// request acts as the configured demo user unless it carries a valid
// bearer token naming someone else.
package auth

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
)

// ContextKeyIdentity is the key for the caller identity in gin context
const ContextKeyIdentity = "identity"

type identityKey struct{}

// Identity is the caller a handler acts on behalf of.
type Identity struct {
	UserID uint
}

// Middleware sets the caller identity. A bearer token is honoured only when
// secret is non-empty and the token validates; otherwise the default user is used.
func Middleware(defaultUserID uint, secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := Identity{UserID: defaultUserID}

		if len(secret) > 0 {
			if token, ok := bearerToken(c.GetHeader("Authorization")); ok {
				if claims, err := ValidateToken(secret, token); err == nil {
					id.UserID = claims.UserID
				}
			}
		}

		c.Set(ContextKeyIdentity, id)
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// GetIdentity returns the identity from the gin context
func GetIdentity(c *gin.Context) (Identity, bool) {
	v, exists := c.Get(ContextKeyIdentity)
	if !exists {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

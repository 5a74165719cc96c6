package middleware

import (
	"errors"
	"net/http"
	"strings"

	"procurement/internal/identity"
	"procurement/pkg/response"

	"github.com/gin-gonic/gin"
)

const actorKey = "actor"

var errMissingToken = errors.New("authorization is missing")

// Authenticate resolves the bearer token into an Actor and stores it on both the gin context
// and the request context. It does not check roles; services decide what an actor may do.
func Authenticate(resolver identity.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := bearerToken(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorWithCode(http.StatusUnauthorized, "UNAUTHENTICATED", err.Error()))
			return
		}

		actor, err := resolver.Resolve(c.Request.Context(), tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorWithCode(http.StatusUnauthorized, "UNAUTHENTICATED", "Invalid token"))
			return
		}

		c.Set(actorKey, actor)
		c.Request = c.Request.WithContext(identity.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

func ActorFrom(c *gin.Context) (identity.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return identity.Actor{}, false
	}
	actor, ok := v.(identity.Actor)
	return actor, ok
}

// bearerToken tries the access_token cookie first, then the Authorization header.
func bearerToken(c *gin.Context) (string, error) {
	if tokenString, err := c.Cookie("access_token"); err == nil && tokenString != "" {
		return tokenString, nil
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", errMissingToken
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", errors.New("invalid authorization format, expected 'Bearer <token>'")
	}
	return strings.TrimSpace(parts[1]), nil
}

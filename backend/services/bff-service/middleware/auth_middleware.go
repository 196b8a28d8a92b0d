package middleware

import (
	"errors"
	"net/http"

	"github.com/caffeinepub/openframe-education/backend/services/common/auth"

	"github.com/gin-gonic/gin"
)

const (
	PrincipalKey = "principal"
	TokenKey     = "access_token"
)

// AuthMiddleware validates the bearer token and keeps both the caller and the
// raw token, which is forwarded to the payment-service.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			// Fallback to the cookie the web app sets after login
			if v, err := c.Cookie("access_token"); err == nil && v != "" {
				token = v
			}
		}

		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: missing access token"})
			return
		}
		p, err := auth.PrincipalFromToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(PrincipalKey, p)
		c.Set(TokenKey, token)
		c.Next()
	}
}

func GetPrincipal(c *gin.Context) (*auth.Principal, string, error) {
	val, exists := c.Get(PrincipalKey)
	if !exists {
		return nil, "", errors.New("principal not found in context")
	}
	p, ok := val.(*auth.Principal)
	if !ok || p == nil {
		return nil, "", errors.New("principal has invalid type in context")
	}
	return p, c.GetString(TokenKey), nil
}

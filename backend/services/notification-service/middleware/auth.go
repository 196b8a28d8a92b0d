package middleware

import (
	"net/http"

	"github.com/caffeinepub/openframe-education/backend/services/common/auth"

	"github.com/gin-gonic/gin"
)

const PrincipalKey = "principal"

func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		p, err := auth.PrincipalFromToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Set(PrincipalKey, p)
		c.Next()
	}
}

// AdminOnly must run after AuthMiddleware.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := GetPrincipal(c)
		if p == nil || !p.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Next()
	}
}

func GetPrincipal(c *gin.Context) *auth.Principal {
	if val, ok := c.Get(PrincipalKey); ok {
		if p, ok := val.(*auth.Principal); ok {
			return p
		}
	}
	return nil
}

package middleware

import (
	"net/http"

	"github.com/caffeinepub/openframe-education/backend/services/common/auth"

	"github.com/gin-gonic/gin"
)

const PrincipalKey = "principal"

// AuthMiddleware requires a valid access token in the Authorization header
// and stores the caller as an *auth.Principal.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		p, err := auth.PrincipalFromToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		c.Set(PrincipalKey, p)
		c.Next()
	}
}

// RequireRole aborts with 403 unless the caller has one of roles. It must run
// after AuthMiddleware.
func RequireRole(roles ...auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := GetPrincipal(c)
		if p == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		for _, r := range roles {
			if p.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
	}
}

func GetPrincipal(c *gin.Context) *auth.Principal {
	if val, exists := c.Get(PrincipalKey); exists {
		if p, ok := val.(*auth.Principal); ok {
			return p
		}
	}
	return nil
}

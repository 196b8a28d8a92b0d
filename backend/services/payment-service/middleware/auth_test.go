package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/caffeinepub/openframe-education/backend/services/common/auth"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	auth.SetSecret("test-secret")
	r := gin.New()
	r.GET("/me", AuthMiddleware(), func(c *gin.Context) {
		p := GetPrincipal(c)
		c.JSON(http.StatusOK, gin.H{"user_id": p.UserID, "role": p.Role})
	})
	r.GET("/admin", AuthMiddleware(), RequireRole(auth.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func get(r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	r := setupRouter()
	token, err := auth.IssueToken(auth.Principal{UserID: "parent-1", Role: auth.RoleParent}, time.Minute)
	require.NoError(t, err)

	w := get(r, "/me", token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "parent-1")

	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/me", "not-a-jwt").Code)
}

func TestRequireRole(t *testing.T) {
	r := setupRouter()
	adminToken, _ := auth.IssueToken(auth.Principal{UserID: "a", Role: auth.RoleAdmin}, time.Minute)
	parentToken, _ := auth.IssueToken(auth.Principal{UserID: "p", Role: auth.RoleParent}, time.Minute)

	assert.Equal(t, http.StatusNoContent, get(r, "/admin", adminToken).Code)
	assert.Equal(t, http.StatusForbidden, get(r, "/admin", parentToken).Code)
}

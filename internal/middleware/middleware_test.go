package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"langschool_backend/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.10:5555"
	assert.Equal(t, "192.0.2.10", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.1, 198.51.100.7")
	assert.Equal(t, "198.51.100.7", ClientIP(r))
}

func TestSafeIPsMiddleware(t *testing.T) {
	engine := gin.New()
	engine.Use(SafeIPsMiddleware([]string{"10.0.0.5"}))
	engine.GET("/hook", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	allowed := httptest.NewRequest(http.MethodGet, "/hook", nil)
	allowed.RemoteAddr = "10.0.0.5:1234"
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, allowed)
	assert.Equal(t, http.StatusNoContent, w.Code)

	denied := httptest.NewRequest(http.MethodGet, "/hook", nil)
	denied.RemoteAddr = "10.0.0.6:1234"
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, denied)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSafeIPsMiddleware_EmptyListAllowsAll(t *testing.T) {
	engine := gin.New()
	engine.Use(SafeIPsMiddleware(nil))
	engine.GET("/hook", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/hook", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRequestID(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID())
	engine.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(utils.RequestIDKey)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Body.String())
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("x", 200))
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Len(t, w.Body.String(), 36)
}

func TestAuthAndRoleMiddleware(t *testing.T) {
	secret := []byte("test-secret")
	engine := gin.New()
	engine.GET("/staff", AuthMiddleware(secret), RoleAuthMiddleware(utils.RoleAdmin, utils.RoleStaff), func(c *gin.Context) {
		id, ok := CurrentUserID(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"id": id})
	})

	call := func(header string) int {
		req := httptest.NewRequest(http.MethodGet, "/staff", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		return w.Code
	}

	staff, err := utils.GenerateAccessToken(secret, 3, "staff@example.com", utils.RoleStaff)
	require.NoError(t, err)
	user, err := utils.GenerateAccessToken(secret, 4, "user@example.com", utils.RoleUser)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, call("Bearer "+staff))
	assert.Equal(t, http.StatusForbidden, call("Bearer "+user))
	assert.Equal(t, http.StatusUnauthorized, call(""))
	assert.Equal(t, http.StatusUnauthorized, call("Token "+staff))
	assert.Equal(t, http.StatusUnauthorized, call("Bearer garbage"))
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func sign(t *testing.T, key []byte, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func router(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", mw, func(c *gin.Context) {
		id := CurrentUser(c)
		c.String(http.StatusOK, id.UserID+"|"+id.Role)
	})
	return r
}

func do(r *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireRole(t *testing.T) {
	valid := sign(t, secret, jwt.MapClaims{"sub": "u-1", "role": "dean", "exp": time.Now().Add(time.Hour).Unix()})

	tests := []struct {
		name   string
		mw     gin.HandlerFunc
		header string
		status int
		body   string
	}{
		{"missing", RequireRole(secret), "", http.StatusUnauthorized, ""},
		{"bad format", RequireRole(secret), "Token " + valid, http.StatusUnauthorized, ""},
		{"wrong key", RequireRole(secret), "Bearer " + sign(t, []byte("other"), jwt.MapClaims{"sub": "u-1", "role": "dean"}), http.StatusUnauthorized, ""},
		{"expired", RequireRole(secret), "Bearer " + sign(t, secret, jwt.MapClaims{"sub": "u-1", "role": "dean", "exp": time.Now().Add(-time.Hour).Unix()}), http.StatusUnauthorized, ""},
		{"no role", RequireRole(secret), "Bearer " + sign(t, secret, jwt.MapClaims{"sub": "u-1"}), http.StatusUnauthorized, ""},
		{"role not allowed", RequireRole(secret, "moderator"), "Bearer " + valid, http.StatusForbidden, ""},
		{"role allowed", RequireRole(secret, "moderator", "dean"), "Bearer " + valid, http.StatusOK, "u-1|dean"},
		{"any role", Authenticate(secret), "Bearer " + valid, http.StatusOK, "u-1|dean"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(router(tt.mw), tt.header)
			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestParseToken(t *testing.T) {
	id, err := ParseToken(sign(t, secret, jwt.MapClaims{"sub": "u-9", "role": "student"}), secret)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "u-9", Role: "student"}, id)

	_, err = ParseToken(sign(t, secret, jwt.MapClaims{"role": "student"}), secret)
	assert.Error(t, err)
}

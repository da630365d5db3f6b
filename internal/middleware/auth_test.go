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

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func newRouter(a *Auth) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/run", a.RequireRole(RoleAdmin, RoleOperator), func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})
	return r
}

func TestRequireRole(t *testing.T) {
	a := NewAuth(testSecret)
	r := newRouter(a)
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name   string
		header string
		cookie string
		status int
		body   string
	}{
		{"missing authorization", "", "", http.StatusUnauthorized, ""},
		{"bad scheme", "Token abc", "", http.StatusUnauthorized, ""},
		{"garbage token", "Bearer abc", "", http.StatusUnauthorized, ""},
		{"wrong secret", "Bearer " + signToken(t, "other", jwt.MapClaims{"sub": "u1", "role": RoleAdmin, "exp": exp}), "", http.StatusUnauthorized, ""},
		{"expired", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": "u1", "role": RoleAdmin, "exp": time.Now().Add(-time.Hour).Unix()}), "", http.StatusUnauthorized, ""},
		{"no role claim", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": "u1", "exp": exp}), "", http.StatusForbidden, ""},
		{"viewer denied", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": "u1", "role": RoleViewer, "exp": exp}), "", http.StatusForbidden, ""},
		{"operator allowed", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": "op-7", "role": RoleOperator, "exp": exp}), "", http.StatusOK, "op-7"},
		{"cookie allowed", "", signToken(t, testSecret, jwt.MapClaims{"sub": "adm", "role": RoleAdmin, "exp": exp}), http.StatusOK, "adm"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/run", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "access_token", Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestParseToken(t *testing.T) {
	a := NewAuth(testSecret)

	sub, role, err := a.ParseToken(signToken(t, testSecret, jwt.MapClaims{"sub": "u1", "role": RoleViewer}))
	require.NoError(t, err)
	assert.Equal(t, "u1", sub)
	assert.Equal(t, RoleViewer, role)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u1", "role": RoleAdmin})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, _, err = a.ParseToken(unsigned)
	assert.Error(t, err)
}

func TestIssueToken_RoundTrip(t *testing.T) {
	a := NewAuth(testSecret)

	token, expiresAt, err := a.IssueToken("u-42", RoleViewer, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	subject, role, err := a.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u-42", subject)
	assert.Equal(t, RoleViewer, role)

	expired, _, err := a.IssueToken("u-42", RoleViewer, -time.Minute)
	require.NoError(t, err)
	_, _, err = a.ParseToken(expired)
	assert.Error(t, err)

	assert.True(t, IsRole(RoleOperator))
	assert.False(t, IsRole("manager"))
}

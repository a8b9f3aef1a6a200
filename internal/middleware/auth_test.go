package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"turing_arena/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret-test-secret-test-secret"

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(secret), func(c *gin.Context) {
		util.Success(c, gin.H{"userId": util.GetUserFromContext(c).UserID})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter()

	valid, err := util.GenerateJWT(42, secret, time.Hour)
	require.NoError(t, err)
	expired, err := util.GenerateJWT(42, secret, -time.Minute)
	require.NoError(t, err)
	foreign, err := util.GenerateJWT(42, "another-secret", time.Hour)
	require.NoError(t, err)
	anonymous, err := util.GenerateJWT(0, secret, time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{"bearer header", "Bearer " + valid, "", http.StatusOK},
		{"query token", "", valid, http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"expired", "Bearer " + expired, "", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + foreign, "", http.StatusUnauthorized},
		{"no user id", "Bearer " + anonymous, "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			url := "/me"
			if tc.query != "" {
				url += "?token=" + tc.query
			}
			req := httptest.NewRequest(http.MethodGet, url, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

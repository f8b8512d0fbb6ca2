package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey    = "test-signing-key"
	testIssuer = "madrasah"
)

func TestIssueAndParse(t *testing.T) {
	tok, err := Issue("teacher-9", RoleTeacher, testIssuer, testKey, time.Hour)
	require.NoError(t, err)

	claims, err := Parse(tok.AccessToken, testKey, testIssuer)
	require.NoError(t, err)
	assert.Equal(t, "teacher-9", claims.Subject)
	assert.Equal(t, RoleTeacher, claims.Role)

	_, err = Parse(tok.AccessToken, "other-key", testIssuer)
	assert.Error(t, err)
	_, err = Parse(tok.AccessToken, testKey, "someone-else")
	assert.Error(t, err)
}

func TestParseRejectsExpiredAndUnknownRole(t *testing.T) {
	expired, err := Issue("u1", RoleParent, testIssuer, testKey, -time.Minute)
	require.NoError(t, err)
	_, err = Parse(expired.AccessToken, testKey, testIssuer)
	assert.Error(t, err)

	odd, err := Issue("u1", Role("janitor"), testIssuer, testKey, time.Hour)
	require.NoError(t, err)
	_, err = Parse(odd.AccessToken, testKey, testIssuer)
	assert.Error(t, err)
}

func router() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/staff", Required(testKey, testIssuer), RequireRole(RoleAdmin, RoleTeacher), func(c *gin.Context) {
		claims, _ := ClaimsFrom(c)
		c.String(http.StatusOK, claims.Subject)
	})
	return r
}

func TestMiddleware(t *testing.T) {
	teacher, _ := Issue("teacher-1", RoleTeacher, testIssuer, testKey, time.Hour)
	parent, _ := Issue("parent-1", RoleParent, testIssuer, testKey, time.Hour)

	tests := []struct {
		name      string
		header    string
		query     string
		websocket bool
		want      int
	}{
		{name: "no token", want: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "wrong role", header: "Bearer " + parent.AccessToken, want: http.StatusForbidden},
		{name: "teacher", header: "bearer " + teacher.AccessToken, want: http.StatusOK},
		{name: "query token ignored for plain requests", query: teacher.AccessToken, want: http.StatusUnauthorized},
		{name: "query token on upgrade", query: teacher.AccessToken, websocket: true, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := "/staff"
			if tt.query != "" {
				url += "?access_token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, url, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.websocket {
				req.Header.Set("Upgrade", "websocket")
			}
			w := httptest.NewRecorder()
			router().ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

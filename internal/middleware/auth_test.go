package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"expense-approval/internal/metrics"
)

func newRouter(auth *Auth, roles ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/whoami", auth.RequireRole(roles...), func(c *gin.Context) {
		id, ok := CurrentUser(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, id.UserID.String()+" "+id.Role)
	})
	return r
}

func get(r http.Handler, setup func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if setup != nil {
		setup(req)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func bearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func TestRequireRole(t *testing.T) {
	auth := NewAuth("secret")
	user := uuid.New()
	staff, err := auth.IssueToken(user, "staff", time.Hour)
	require.NoError(t, err)
	admin, err := auth.IssueToken(user, RoleAdmin, time.Hour)
	require.NoError(t, err)
	expired, err := auth.IssueToken(user, "staff", -time.Minute)
	require.NoError(t, err)
	forged, err := NewAuth("other").IssueToken(user, RoleAdmin, time.Hour)
	require.NoError(t, err)

	open := newRouter(auth)
	adminOnly := newRouter(auth, RoleAdmin)

	w := get(open, bearer(staff))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, user.String()+" staff", w.Body.String())

	w = get(open, func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "access_token", Value: staff}) })
	assert.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, http.StatusForbidden, get(adminOnly, bearer(staff)).Code)
	assert.Equal(t, http.StatusOK, get(adminOnly, bearer(admin)).Code)

	assert.Equal(t, http.StatusUnauthorized, get(open, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, get(open, func(r *http.Request) { r.Header.Set("Authorization", staff) }).Code)
	assert.Equal(t, http.StatusUnauthorized, get(open, bearer(expired)).Code)
	assert.Equal(t, http.StatusUnauthorized, get(open, bearer(forged)).Code)
}

func TestParseTokenClaims(t *testing.T) {
	auth := NewAuth("secret")
	sign := func(claims jwt.MapClaims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
		require.NoError(t, err)
		return s
	}

	_, err := auth.ParseToken(sign(jwt.MapClaims{"sub": uuid.NewString()}))
	assert.ErrorIs(t, err, errNoRole)

	_, err = auth.ParseToken(sign(jwt.MapClaims{"sub": "42", "role": "staff"}))
	assert.ErrorIs(t, err, errBadSubject)

	id, err := auth.ParseToken(sign(jwt.MapClaims{"sub": uuid.Nil.String(), "role": RoleAdmin}))
	require.NoError(t, err)
	assert.True(t, id.IsAdmin())

	noRole := sign(jwt.MapClaims{"sub": uuid.NewString()})
	assert.Equal(t, http.StatusForbidden, get(newRouter(auth), bearer(noRole)).Code)
}

func TestRequestLoggerAndMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)
	collector := metrics.NewCollector("test", prometheus.NewRegistry())

	r := gin.New()
	r.Use(RequestLogger(zap.New(core)), Metrics(collector))
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/broken", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	for _, path := range []string{"/items/1", "/items/2", "/broken", "/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	require.Equal(t, 4, logs.Len())
	first := logs.All()[0]
	assert.Equal(t, zap.InfoLevel, first.Level)
	assert.Equal(t, "/items/:id", first.ContextMap()["path"])
	assert.Equal(t, zap.ErrorLevel, logs.All()[2].Level)
	assert.Equal(t, zap.WarnLevel, logs.All()[3].Level)

	reg := prometheus.NewRegistry()
	c2 := metrics.NewCollector("x", reg)
	r2 := gin.New()
	r2.Use(Metrics(c2))
	r2.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r2.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/7", nil))
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP x_http_requests_total Total number of HTTP requests
# TYPE x_http_requests_total counter
x_http_requests_total{method="GET",path="/items/:id",status="200"} 1
`), "x_http_requests_total"))
}

func TestTimeout(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Timeout(50 * time.Millisecond))
	r.GET("/slow", func(c *gin.Context) {
		select {
		case <-c.Request.Context().Done():
			assert.ErrorIs(t, c.Request.Context().Err(), context.DeadlineExceeded)
			c.Status(http.StatusGatewayTimeout)
		case <-time.After(time.Second):
			c.Status(http.StatusOK)
		}
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/slow", nil))
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

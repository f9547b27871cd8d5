package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"verifyflow.backend/pkg/jwt"
	"verifyflow.backend/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(`{}`))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	svc := jwt.NewJWTService("test-secret", "verifyflow", time.Hour)
	expired := jwt.NewJWTService("test-secret", "verifyflow", -time.Minute)
	subject := uuid.New()

	r := gin.New()
	r.GET("/me", AuthMiddleware(svc), func(c *gin.Context) {
		id, ok := GetSubjectID(c)
		require.True(t, ok)
		role, _ := GetRole(c)
		c.JSON(http.StatusOK, gin.H{"id": id.String(), "role": role})
	})

	token, err := svc.GenerateToken(subject, jwt.RoleCustomer)
	require.NoError(t, err)
	w := serve(r, http.MethodGet, "/me", map[string]string{AuthorizationHeader: BearerPrefix + token})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), subject.String())
	assert.Contains(t, w.Body.String(), `"role":"customer"`)

	w = serve(r, http.MethodGet, "/me", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(r, http.MethodGet, "/me", map[string]string{AuthorizationHeader: "Token " + token})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid authorization format")

	old, err := expired.GenerateToken(subject, jwt.RoleCustomer)
	require.NoError(t, err)
	w = serve(r, http.MethodGet, "/me", map[string]string{AuthorizationHeader: BearerPrefix + old})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Token has expired")

	w = serve(r, http.MethodGet, "/me", map[string]string{AuthorizationHeader: BearerPrefix + "garbage"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid token")
}

func TestRequireRole(t *testing.T) {
	withRole := func(role string) gin.HandlerFunc {
		return func(c *gin.Context) {
			if role != "" {
				c.Set(RoleKey, role)
			}
			c.Next()
		}
	}
	ok := func(c *gin.Context) { c.Status(http.StatusNoContent) }

	cases := []struct {
		name string
		role string
		want int
	}{
		{"admin allowed", jwt.RoleAdmin, http.StatusNoContent},
		{"customer forbidden", jwt.RoleCustomer, http.StatusForbidden},
		{"missing role", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/admin", withRole(tc.role), RequireRole(jwt.RoleAdmin), ok)
			assert.Equal(t, tc.want, serve(r, http.MethodGet, "/admin", nil).Code)
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/ping", func(c *gin.Context) {
		v, _ := c.Request.Context().Value(logger.RequestIDKey).(string)
		c.String(http.StatusOK, v)
	})

	w := serve(r, http.MethodGet, "/ping", map[string]string{RequestIDHeader: "req-123"})
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-123", w.Body.String())

	w = serve(r, http.MethodGet, "/ping", nil)
	generated := w.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(generated)
	assert.NoError(t, err)
	assert.Equal(t, generated, w.Body.String())
}

func TestCORSMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware([]string{"https://admin.example.com"}))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, http.MethodOptions, "/ping", map[string]string{
		"Origin":                        "https://admin.example.com",
		"Access-Control-Request-Method": "GET",
	})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://admin.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = serve(r, http.MethodGet, "/ping", map[string]string{"Origin": "https://evil.example.com"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLoggerMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware(), LoggerMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/ping", nil).Code)
}

func newIdempotentRouter(t *testing.T) (*gin.Engine, *miniredis.Miniredis, *atomic.Int32, *int) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	calls := &atomic.Int32{}
	status := new(int)
	*status = http.StatusCreated
	subject := uuid.MustParse("0192f0a4-7c1e-7000-8000-00000000abcd")

	r := gin.New()
	r.POST("/verifications",
		func(c *gin.Context) { c.Set(SubjectIDKey, subject); c.Next() },
		IdempotencyMiddleware(client),
		func(c *gin.Context) {
			n := calls.Add(1)
			c.JSON(*status, gin.H{"call": n})
		},
	)
	return r, mr, calls, status
}

func TestIdempotencyMiddleware_ReplaysResponse(t *testing.T) {
	r, mr, calls, _ := newIdempotentRouter(t)
	headers := map[string]string{IdempotencyHeader: "key-1"}

	first := serve(r, http.MethodPost, "/verifications", headers)
	require.Equal(t, http.StatusCreated, first.Code)
	assert.Empty(t, first.Header().Get(IdempotencyReplayHeader))

	second := serve(r, http.MethodPost, "/verifications", headers)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get(IdempotencyReplayHeader))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.EqualValues(t, 1, calls.Load())

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.True(t, strings.HasPrefix(keys[0], "idempotency:0192f0a4-7c1e-7000-8000-00000000abcd:"))
	assert.Greater(t, mr.TTL(keys[0]), time.Hour)

	// a different key runs the handler again
	serve(r, http.MethodPost, "/verifications", map[string]string{IdempotencyHeader: "key-2"})
	assert.EqualValues(t, 2, calls.Load())
}

func TestIdempotencyMiddleware_InProgressConflict(t *testing.T) {
	r, mr, calls, _ := newIdempotentRouter(t)
	// another replica holds the lock
	require.NoError(t, mr.Set("idempotency:0192f0a4-7c1e-7000-8000-00000000abcd:/verifications:busy", processingMarker))

	w := serve(r, http.MethodPost, "/verifications", map[string]string{IdempotencyHeader: "busy"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.EqualValues(t, 0, calls.Load())
}

func TestIdempotencyMiddleware_FailureReleasesKey(t *testing.T) {
	r, mr, calls, status := newIdempotentRouter(t)
	*status = http.StatusInternalServerError
	headers := map[string]string{IdempotencyHeader: "retry-me"}

	serve(r, http.MethodPost, "/verifications", headers)
	assert.Empty(t, mr.Keys())

	*status = http.StatusOK
	w := serve(r, http.MethodPost, "/verifications", headers)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, calls.Load())
}

func TestIdempotencyMiddleware_FailsOpen(t *testing.T) {
	r, mr, calls, _ := newIdempotentRouter(t)
	mr.Close()

	headers := map[string]string{IdempotencyHeader: "key-1"}
	assert.Equal(t, http.StatusCreated, serve(r, http.MethodPost, "/verifications", headers).Code)
	assert.Equal(t, http.StatusCreated, serve(r, http.MethodPost, "/verifications", headers).Code)
	assert.EqualValues(t, 2, calls.Load())

	// no header, no store
	assert.Equal(t, http.StatusCreated, serve(r, http.MethodPost, "/verifications", nil).Code)
}

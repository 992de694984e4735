package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerd/ledgerd/pkg/auth"
	"github.com/ledgerd/ledgerd/pkg/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func performRequest(router *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader("{}"))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func okRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(handlers...)
	handle := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"data": "ok"}) }
	router.GET("/ping", handle)
	router.POST("/ping", handle)
	return router
}

func TestCorrelationID_EchoesCallerValue(t *testing.T) {
	router := okRouter(CorrelationID())

	recorder := performRequest(router, http.MethodGet, "/ping", map[string]string{
		HeaderCorrelationID: "req-abc-123",
	})

	assert.Equal(t, "req-abc-123", recorder.Header().Get(HeaderCorrelationID))
}

func TestCorrelationID_GeneratesWhenAbsent(t *testing.T) {
	router := okRouter(CorrelationID())

	recorder := performRequest(router, http.MethodGet, "/ping", nil)

	generated := recorder.Header().Get(HeaderCorrelationID)
	_, err := uuid.Parse(generated)
	assert.NoError(t, err, "generated correlation id must be a UUID")
}

func TestCorrelationID_DropsUnsafeValues(t *testing.T) {
	cases := map[string]string{
		"control characters": "bad\nvalue",
		"spaces":             "has space",
		"too long":           strings.Repeat("a", 129),
	}

	for name, value := range cases {
		t.Run(name, func(t *testing.T) {
			router := okRouter(CorrelationID())

			recorder := performRequest(router, http.MethodGet, "/ping", map[string]string{
				HeaderCorrelationID: value,
			})

			echoed := recorder.Header().Get(HeaderCorrelationID)
			assert.NotEqual(t, value, echoed)
			_, err := uuid.Parse(echoed)
			assert.NoError(t, err)
		})
	}
}

func TestContentType_RejectsNonJSONWrites(t *testing.T) {
	router := okRouter(ContentType())

	recorder := performRequest(router, http.MethodPost, "/ping", map[string]string{
		"Content-Type": "text/plain",
	})

	assert.Equal(t, http.StatusUnsupportedMediaType, recorder.Code)
}

func TestContentType_AcceptsJSONWithCharset(t *testing.T) {
	router := okRouter(ContentType())

	recorder := performRequest(router, http.MethodPost, "/ping", map[string]string{
		"Content-Type": "application/json; charset=utf-8",
	})

	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestContentType_IgnoresReads(t *testing.T) {
	router := okRouter(ContentType())

	recorder := performRequest(router, http.MethodGet, "/ping", nil)

	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestSecurityHeaders(t *testing.T) {
	router := okRouter(SecurityHeaders())

	recorder := performRequest(router, http.MethodGet, "/ping", nil)

	assert.Equal(t, "nosniff", recorder.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", recorder.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", recorder.Header().Get("Cache-Control"))
	assert.Equal(t, "default-src 'none'", recorder.Header().Get("Content-Security-Policy"))
}

func TestCORS_Preflight(t *testing.T) {
	router := gin.New()
	router.Use(CORS([]string{"https://app.example.com"}))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	recorder := performRequest(router, http.MethodOptions, "/ping", map[string]string{
		"Origin": "https://app.example.com",
	})

	assert.Equal(t, http.StatusNoContent, recorder.Code)
	assert.Equal(t, "https://app.example.com", recorder.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, recorder.Header().Get("Access-Control-Allow-Headers"), "X-Idempotency-Key")
}

func TestCORS_DisallowedOrigin(t *testing.T) {
	router := okRouter(CORS([]string{"https://app.example.com"}))

	recorder := performRequest(router, http.MethodGet, "/ping", map[string]string{
		"Origin": "https://evil.example.com",
	})

	assert.Empty(t, recorder.Header().Get("Access-Control-Allow-Origin"))
}

type stubLimiter struct {
	result ratelimit.Result
}

func (s *stubLimiter) Allow(ctx context.Context, key string) ratelimit.Result {
	return s.result
}

func TestRateLimit_Denied(t *testing.T) {
	router := okRouter(RateLimit(&stubLimiter{result: ratelimit.Result{
		Allowed:    false,
		RetryAfter: time.Minute,
	}}))

	recorder := performRequest(router, http.MethodGet, "/ping", nil)

	assert.Equal(t, http.StatusTooManyRequests, recorder.Code)
	assert.Equal(t, "60", recorder.Header().Get("Retry-After"))
}

func TestRateLimit_Allowed(t *testing.T) {
	router := okRouter(RateLimit(&stubLimiter{result: ratelimit.Result{Allowed: true}}))

	recorder := performRequest(router, http.MethodGet, "/ping", nil)

	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestOperatorAuth(t *testing.T) {
	const secret = "test-secret-test-secret-test-1234"

	operatorToken, err := auth.GenerateToken("ops@example.com", auth.ScopeOperator, secret, time.Hour)
	require.NoError(t, err)
	readonlyToken, err := auth.GenerateToken("viewer@example.com", "readonly", secret, time.Hour)
	require.NoError(t, err)
	expiredToken, err := auth.GenerateToken("ops@example.com", auth.ScopeOperator, secret, -time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"expired token", "Bearer " + expiredToken, http.StatusUnauthorized},
		{"wrong scope", "Bearer " + readonlyToken, http.StatusForbidden},
		{"operator token", "Bearer " + operatorToken, http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := okRouter(OperatorAuth(secret))

			headers := map[string]string{}
			if tc.header != "" {
				headers["Authorization"] = tc.header
			}
			recorder := performRequest(router, http.MethodGet, "/ping", headers)

			assert.Equal(t, tc.status, recorder.Code)
		})
	}
}

func TestOperatorAuth_WrongSecret(t *testing.T) {
	token, err := auth.GenerateToken("ops@example.com", auth.ScopeOperator, "secret-one-secret-one-secret-one1", time.Hour)
	require.NoError(t, err)

	router := okRouter(OperatorAuth("secret-two-secret-two-secret-two2"))

	recorder := performRequest(router, http.MethodGet, "/ping", map[string]string{
		"Authorization": "Bearer " + token,
	})

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

package admin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerd/ledgerd/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubKeyStats struct {
	total   int64
	expired int64
	err     error
}

func (s *stubKeyStats) GetStats(context.Context) (int64, int64, error) {
	return s.total, s.expired, s.err
}

func newStatsRouter(t *testing.T, stats KeyStatsProvider) *gin.Engine {
	t.Helper()

	log, err := logger.New("error", "development")
	require.NoError(t, err)

	h := NewHandlers(nil, nil, stats, 5, log)

	router := gin.New()
	router.GET("/api/v1/admin/idempotency/stats", h.IdempotencyStats)
	return router
}

func TestIdempotencyStats(t *testing.T) {
	router := newStatsRouter(t, &stubKeyStats{total: 42, expired: 7})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/idempotency/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data": {"total_keys": 42, "expired_keys": 7}}`, rec.Body.String())
}

func TestIdempotencyStats_StoreError(t *testing.T) {
	router := newStatsRouter(t, &stubKeyStats{err: errors.New("pq: connection refused")})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/idempotency/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
	assert.NotContains(t, rec.Body.String(), "pq:")
}

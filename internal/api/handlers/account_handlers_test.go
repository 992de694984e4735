package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	domainerrors "github.com/ledgerd/ledgerd/internal/domain/errors"
	"github.com/ledgerd/ledgerd/internal/domain/services/statement"
)

// newStatementRouter binds the statement endpoint with a service whose
// repositories are never reached: every request below fails validation
// first.
func newStatementRouter(t *testing.T) *gin.Engine {
	t.Helper()

	h := NewAccountHandlers(nil, nil, statement.NewService(nil, nil), testLogger(t))

	router := gin.New()
	router.GET("/api/v1/accounts/:id/statement", h.Statement)
	return router
}

func getStatement(router *gin.Engine, query string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/accounts/3f1f6f10-52bb-4f7e-9161-0a2f9a7e6f01/statement?"+query, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestStatement_OutOfRangePaginationIsRejectedNotClamped(t *testing.T) {
	router := newStatementRouter(t)

	window := "from=2026-01-01T00:00:00Z&to=2026-02-01T00:00:00Z"

	rec := getStatement(router, window+"&per_page=101")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "per_page")

	rec = getStatement(router, window+"&page=-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "page")
}

func TestStatement_InvertedRangeIsRejected(t *testing.T) {
	router := newStatementRouter(t)

	rec := getStatement(router, "from=2026-02-01T00:00:00Z&to=2026-01-01T00:00:00Z")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), domainerrors.CodeInvalidDateRange)
}

package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	domainerrors "github.com/ledgerd/ledgerd/internal/domain/errors"
	accountsvc "github.com/ledgerd/ledgerd/internal/domain/services/account"
	transfersvc "github.com/ledgerd/ledgerd/internal/domain/services/transfer"
)

// newTransferRouter binds Create with a service whose collaborators are
// never reached: command validation fails before the first repository
// call, which is the layer these tests pin down.
func newTransferRouter(t *testing.T) *gin.Engine {
	t.Helper()

	svc := transfersvc.NewService(nil, nil, nil, nil, nil, accountsvc.NewCoordinator(nil), testLogger(t))
	h := NewTransferHandlers(svc, testLogger(t))

	router := gin.New()
	router.POST("/api/v1/transfers", h.Create)
	return router
}

func postTransfer(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateTransfer_ZeroAmountIsDomainRejection(t *testing.T) {
	router := newTransferRouter(t)

	// An explicit zero is well-formed JSON. It must survive binding and
	// come back as the domain's amount violation, not as INVALID_JSON.
	rec := postTransfer(router, `{
		"source_account_id": "3f1f6f10-52bb-4f7e-9161-0a2f9a7e6f01",
		"destination_account_id": "9b0c2d4e-6a8f-4b1c-8d3e-5f7a9b1c2d4e",
		"amount": 0,
		"currency": "USD"
	}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), domainerrors.CodeInvalidTransferAmount)
}

func TestCreateTransfer_NegativeAmountIsDomainRejection(t *testing.T) {
	router := newTransferRouter(t)

	rec := postTransfer(router, `{
		"source_account_id": "3f1f6f10-52bb-4f7e-9161-0a2f9a7e6f01",
		"destination_account_id": "9b0c2d4e-6a8f-4b1c-8d3e-5f7a9b1c2d4e",
		"amount": -50,
		"currency": "USD"
	}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), domainerrors.CodeInvalidTransferAmount)
}

func TestCreateTransfer_MissingAmountFailsBinding(t *testing.T) {
	router := newTransferRouter(t)

	rec := postTransfer(router, `{
		"source_account_id": "3f1f6f10-52bb-4f7e-9161-0a2f9a7e6f01",
		"destination_account_id": "9b0c2d4e-6a8f-4b1c-8d3e-5f7a9b1c2d4e",
		"currency": "USD"
	}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), domainerrors.CodeInvalidJSON)
}

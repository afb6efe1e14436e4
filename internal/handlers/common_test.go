package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poscore/internal/apperr"
)

func newTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func TestSendSuccess_WritesEnvelope(t *testing.T) {
	c, w := newTestContext()
	sendSuccess(c, "getCart", map[string]string{"cartId": "c1"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success":true`)
	assert.Contains(t, w.Body.String(), `"operation":"getCart"`)
}

func TestSendError_MapsKindToStatus(t *testing.T) {
	c, w := newTestContext()
	sendError(c, "getCart", apperr.NotFound(apperr.Code(1, 1, 1), "cart not found", "no such cart"))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"success":false`)
}

func TestSendError_NonAppErrorMapsToInternal(t *testing.T) {
	c, w := newTestContext()
	sendError(c, "getCart", assertError{})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

type assertError struct{}

func (assertError) Error() string { return "boom" }

func TestTenantID_ReadsPrincipalFromContext(t *testing.T) {
	c, _ := newTestContext()
	require.Equal(t, "", tenantID(c))
}

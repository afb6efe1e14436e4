// Package handlers implements the HTTP surface (§6.1) over gin: cart
// operations, terminal control, transaction lookup/void/return, and
// report queries. The envelope and error-mapping helpers are adapted from
// the teacher's internal/handlers/common.go (sendError/handleDBError/
// sendSuccess), reshaped around the §6.1 response envelope and the
// apperr.Kind taxonomy instead of a bare pgx.ErrNoRows check.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"poscore/internal/apperr"
	"poscore/internal/auth"
	"poscore/internal/cartsvc"
	"poscore/internal/report"
	"poscore/internal/terminal"
	"poscore/internal/txn"
)

// Services is the dependency-injection container every handler reads from,
// mirroring the teacher's CommonServices shape.
type Services struct {
	Carts     *cartsvc.Service
	Terminals *terminal.Service
	Txns      *txn.Service
	Reports   *report.Engine
}

// envelope is the §6.1 wire shape: lowerCamelCase fields, success flag,
// opaque numeric code, human message, and the operation name for
// observability.
type envelope struct {
	Success   bool   `json:"success"`
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Metadata  any    `json:"metadata,omitempty"`
	Operation string `json:"operation"`
}

func sendSuccess(c *gin.Context, operation string, data any) {
	c.JSON(http.StatusOK, envelope{Success: true, Code: 0, Message: "ok", Data: data, Operation: operation})
}

func sendSuccessWithMetadata(c *gin.Context, operation string, data, metadata any) {
	c.JSON(http.StatusOK, envelope{Success: true, Code: 0, Message: "ok", Data: data, Metadata: metadata, Operation: operation})
}

// sendError maps an apperr.Error's Kind to its HTTP status and renders the
// envelope; any other error is treated as internal (§7 taxonomy).
func sendError(c *gin.Context, operation string, err error) {
	appErr, ok := apperr.As(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, envelope{Success: false, Code: 0, Message: "an unexpected error occurred", Operation: operation})
		return
	}
	c.JSON(appErr.Kind.Status(), envelope{Success: false, Code: appErr.Code, Message: appErr.UserMessage, Operation: operation})
}

// tenantID pulls the tenant off the auth-attached Principal.
func tenantID(c *gin.Context) string {
	p, _ := auth.FromContext(c)
	return p.TenantID
}

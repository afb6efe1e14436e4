// Package auth implements the request-boundary credential presence check
// (§6.1: every endpoint requires either an API key or a bearer token).
// User authentication and JWT issuance are a named non-goal; this keeps
// only the teacher's header-extraction shape from
// EnsureValidAPIKeyOrToken, with the Auth0 validator and the API-key
// database lookup dropped entirely.
package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	"poscore/internal/apperr"
)

const tenantHeader = "X-Tenant-Id"

// Principal is what the presence check extracts: the bearer credential and
// the tenant it claims to act for. No signature or key-store validation is
// performed here; that is out of scope.
type Principal struct {
	Credential string
	TenantID   string
}

// RequireCredential rejects requests carrying neither an API key nor a
// bearer token, mirroring EnsureValidAPIKeyOrToken's header-check order
// (X-API-Key, then Authorization) with the downstream validation removed.
func RequireCredential() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-API-Key")
		authHeader := c.GetHeader("Authorization")

		var credential string
		switch {
		case apiKey != "":
			credential = apiKey
		case strings.HasPrefix(authHeader, "Bearer "):
			credential = strings.TrimPrefix(authHeader, "Bearer ")
		}

		if credential == "" {
			abort(c, apperr.Authorization(apperr.Code(70, 1, 1), "missing credentials",
				"request carried neither an API key nor a bearer token"))
			return
		}

		tenantID := c.GetHeader(tenantHeader)
		if tenantID == "" {
			abort(c, apperr.Authorization(apperr.Code(70, 1, 2), "missing tenant",
				"request did not carry %s", tenantHeader))
			return
		}

		c.Set("principal", Principal{Credential: credential, TenantID: tenantID})
		c.Next()
	}
}

// FromContext retrieves the Principal RequireCredential attached.
func FromContext(c *gin.Context) (Principal, bool) {
	v, ok := c.Get("principal")
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

func abort(c *gin.Context, err *apperr.Error) {
	c.AbortWithStatusJSON(err.Kind.Status(), gin.H{
		"success": false,
		"code":    err.Code,
		"message": err.UserMessage,
		"data":    nil,
	})
}

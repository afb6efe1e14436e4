// Package server wires the gin.Engine and registers the §6.1 HTTP surface.
// Adapted from the teacher's internal/server/server.go: same
// configureCORS() shape, same health-endpoint pair, same protected route
// group guarded by an auth middleware — reshaped around
// auth.RequireCredential() and the POS domain routes instead of Auth0 and
// the SaaS resource tree.
package server

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"poscore/internal/auth"
	"poscore/internal/handlers"
	"poscore/internal/logger"
)

// InitializeRoutes registers the full route tree on router.
func InitializeRoutes(router *gin.Engine, svc *handlers.Services) {
	router.Use(configureCORS())

	router.GET("/:stage/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	protected := v1.Group("/")
	protected.Use(auth.RequireCredential())
	{
		carts := protected.Group("/carts")
		carts.POST("", svc.CreateCart)
		carts.GET("/:id", svc.GetCart)
		carts.POST("/:id/lineItems", svc.AddLineItem)
		carts.PATCH("/:id/lineItems/:lineNo/quantity", svc.UpdateLineItemQuantity)
		carts.POST("/:id/lineItems/:lineNo/discounts", svc.AddLineDiscount)
		carts.POST("/:id/discounts", svc.AddSubtotalDiscount)
		carts.POST("/:id/subtotal", svc.Subtotal)
		carts.POST("/:id/payments", svc.AddPayment)
		carts.POST("/:id/bill", svc.Bill)
		carts.POST("/:id/cancel", svc.CancelCart)
		carts.POST("/:id/resume-item-entry", svc.ResumeItemEntry)

		terminals := protected.Group("/terminals")
		terminals.GET("/:id", svc.GetTerminal)
		terminals.POST("/:id/open", svc.OpenTerminal)
		terminals.POST("/:id/close", svc.CloseTerminal)
		terminals.POST("/:id/cash-in", svc.CashIn)
		terminals.POST("/:id/cash-out", svc.CashOut)
		terminals.POST("/:id/advance-business-date", svc.AdvanceBusinessDate)
		terminals.GET("/:id/transactions/:no", svc.GetTransaction)
		terminals.POST("/:id/transactions/:no/void", svc.VoidTransaction)
		terminals.POST("/:id/transactions/:no/return", svc.ReturnTransaction)
		terminals.GET("/:id/reports/flash", svc.FlashReport)

		reports := protected.Group("/reports")
		reports.GET("/daily", svc.DailyReport)
	}
}

// configureCORS mirrors the teacher's env-var-driven CORS configuration.
func configureCORS() gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()

	originsEnv := os.Getenv("CORS_ALLOWED_ORIGINS")
	if originsEnv == "" {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	} else {
		origins := strings.Split(originsEnv, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		corsConfig.AllowOrigins = origins
	}

	methodsEnv := os.Getenv("CORS_ALLOWED_METHODS")
	if methodsEnv == "" {
		corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	} else {
		methods := strings.Split(methodsEnv, ",")
		for i, method := range methods {
			methods[i] = strings.TrimSpace(method)
		}
		corsConfig.AllowMethods = methods
	}

	headersEnv := os.Getenv("CORS_ALLOWED_HEADERS")
	if headersEnv == "" {
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key", "X-Tenant-Id"}
	} else {
		headers := strings.Split(headersEnv, ",")
		for i, header := range headers {
			headers[i] = strings.TrimSpace(header)
		}
		corsConfig.AllowHeaders = headers
	}

	exposedHeadersEnv := os.Getenv("CORS_EXPOSED_HEADERS")
	if exposedHeadersEnv != "" {
		exposedHeaders := strings.Split(exposedHeadersEnv, ",")
		for i, header := range exposedHeaders {
			exposedHeaders[i] = strings.TrimSpace(header)
		}
		corsConfig.ExposeHeaders = exposedHeaders
	}

	corsConfig.AllowCredentials = os.Getenv("CORS_ALLOW_CREDENTIALS") == "true"

	return cors.New(corsConfig)
}

// New builds a gin.Engine with logging and recovery, for callers that want
// the default middleware stack plus route registration in one step.
func New(svc *handlers.Services) *gin.Engine {
	logger.Info("initializing gin router")
	router := gin.New()
	router.Use(gin.Recovery())
	InitializeRoutes(router, svc)
	return router
}

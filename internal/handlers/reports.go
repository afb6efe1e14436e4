package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"poscore/internal/apperr"
	"poscore/internal/model"
)

// FlashReport handles GET /terminals/{id}/reports/flash?businessDate=….
func (s *Services) FlashReport(c *gin.Context) {
	ref, err := terminalRefFromParam(c)
	if err != nil {
		sendError(c, "flashReport", err)
		return
	}
	businessDate := c.Query("businessDate")
	if businessDate == "" {
		sendError(c, "flashReport", apperr.Validation(apperr.Code(90, 1, 6), "businessDate is required", "missing businessDate query parameter"))
		return
	}

	rpt, err := s.Reports.Flash(c.Request.Context(), tenantID(c), ref, businessDate)
	if err != nil {
		sendError(c, "flashReport", err)
		return
	}
	sendSuccess(c, "flashReport", rpt)
}

// DailyReport handles GET /reports/daily?businessDate=…&storeCode=…&terminals=1,2,3.
// The scope is every terminal named in the terminals query parameter under
// storeCode; the report is rejected unless every one of them has closed
// (§4.6 "daily reports require that every terminal in the store has
// emitted a close event").
func (s *Services) DailyReport(c *gin.Context) {
	storeCode := c.Query("storeCode")
	businessDate := c.Query("businessDate")
	terminalsParam := c.Query("terminals")
	if storeCode == "" || businessDate == "" || terminalsParam == "" {
		sendError(c, "dailyReport", apperr.Validation(apperr.Code(90, 1, 7), "storeCode, businessDate, and terminals are required",
			"missing one of storeCode/businessDate/terminals query parameters"))
		return
	}

	tenant := tenantID(c)
	var scope []model.TerminalRef
	for _, terminalNo := range strings.Split(terminalsParam, ",") {
		terminalNo = strings.TrimSpace(terminalNo)
		if terminalNo == "" {
			continue
		}
		scope = append(scope, model.TerminalRef{TenantID: tenant, StoreCode: storeCode, TerminalNo: terminalNo})
	}

	rpt, err := s.Reports.Daily(c.Request.Context(), tenant, scope, businessDate)
	if err != nil {
		sendError(c, "dailyReport", err)
		return
	}
	sendSuccess(c, "dailyReport", rpt)
}

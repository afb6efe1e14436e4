package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"poscore/internal/apperr"
	"poscore/internal/model"
)

func terminalRefFromParam(c *gin.Context) (model.TerminalRef, error) {
	storeCode := c.Query("storeCode")
	if storeCode == "" {
		return model.TerminalRef{}, apperr.Validation(apperr.Code(90, 1, 4), "storeCode is required", "missing storeCode query parameter")
	}
	return model.TerminalRef{TenantID: tenantID(c), StoreCode: storeCode, TerminalNo: c.Param("id")}, nil
}

type openRequest struct {
	BusinessDate  string          `json:"businessDate"`
	InitialAmount decimal.Decimal `json:"initialAmount"`
}

// OpenTerminal handles POST /terminals/{id}/open.
func (s *Services) OpenTerminal(c *gin.Context) {
	ref, err := terminalRefFromParam(c)
	if err != nil {
		sendError(c, "openTerminal", err)
		return
	}
	var req openRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, "openTerminal", apperr.Validation(apperr.Code(90, 1, 2), "invalid request body", "%v", err))
		return
	}

	session, err := s.Terminals.Open(c.Request.Context(), tenantID(c), ref, req.BusinessDate, req.InitialAmount)
	if err != nil {
		sendError(c, "openTerminal", err)
		return
	}
	sendSuccess(c, "openTerminal", session)
}

type closeRequest struct {
	CountedAmount     decimal.Decimal `json:"countedAmount"`
	CashMovementCount int             `json:"cashMovementCount"`
}

// CloseTerminal handles POST /terminals/{id}/close.
func (s *Services) CloseTerminal(c *gin.Context) {
	ref, err := terminalRefFromParam(c)
	if err != nil {
		sendError(c, "closeTerminal", err)
		return
	}
	var req closeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, "closeTerminal", apperr.Validation(apperr.Code(90, 1, 2), "invalid request body", "%v", err))
		return
	}

	session, recon, err := s.Terminals.Close(c.Request.Context(), tenantID(c), ref, req.CountedAmount, req.CashMovementCount)
	if err != nil {
		sendError(c, "closeTerminal", err)
		return
	}
	sendSuccessWithMetadata(c, "closeTerminal", session, gin.H{"reconciliation": recon})
}

type cashMovementRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

// CashIn handles POST /terminals/{id}/cash-in.
func (s *Services) CashIn(c *gin.Context) {
	ref, err := terminalRefFromParam(c)
	if err != nil {
		sendError(c, "cashIn", err)
		return
	}
	var req cashMovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, "cashIn", apperr.Validation(apperr.Code(90, 1, 2), "invalid request body", "%v", err))
		return
	}

	if err := s.Terminals.CashIn(c.Request.Context(), tenantID(c), ref, req.Amount, req.Reason); err != nil {
		sendError(c, "cashIn", err)
		return
	}
	sendSuccess(c, "cashIn", nil)
}

// CashOut handles POST /terminals/{id}/cash-out.
func (s *Services) CashOut(c *gin.Context) {
	ref, err := terminalRefFromParam(c)
	if err != nil {
		sendError(c, "cashOut", err)
		return
	}
	var req cashMovementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, "cashOut", apperr.Validation(apperr.Code(90, 1, 2), "invalid request body", "%v", err))
		return
	}

	if err := s.Terminals.CashOut(c.Request.Context(), tenantID(c), ref, req.Amount, req.Reason); err != nil {
		sendError(c, "cashOut", err)
		return
	}
	sendSuccess(c, "cashOut", nil)
}

type advanceBusinessDateRequest struct {
	NextBusinessDate string `json:"nextBusinessDate"`
}

// AdvanceBusinessDate handles POST /terminals/{id}/advance-business-date.
func (s *Services) AdvanceBusinessDate(c *gin.Context) {
	ref, err := terminalRefFromParam(c)
	if err != nil {
		sendError(c, "advanceBusinessDate", err)
		return
	}
	var req advanceBusinessDateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, "advanceBusinessDate", apperr.Validation(apperr.Code(90, 1, 2), "invalid request body", "%v", err))
		return
	}

	session, err := s.Terminals.AdvanceBusinessDate(c.Request.Context(), tenantID(c), ref, req.NextBusinessDate)
	if err != nil {
		sendError(c, "advanceBusinessDate", err)
		return
	}
	sendSuccess(c, "advanceBusinessDate", session)
}

// GetTerminal handles GET /terminals/{id}.
func (s *Services) GetTerminal(c *gin.Context) {
	ref, err := terminalRefFromParam(c)
	if err != nil {
		sendError(c, "getTerminal", err)
		return
	}
	session, err := s.Terminals.Get(c.Request.Context(), tenantID(c), ref)
	if err != nil {
		sendError(c, "getTerminal", err)
		return
	}
	sendSuccess(c, "getTerminal", session)
}

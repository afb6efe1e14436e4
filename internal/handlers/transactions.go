package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"poscore/internal/apperr"
	"poscore/internal/constants"
)

// GetTransaction handles GET /terminals/{id}/transactions/{no}.
func (s *Services) GetTransaction(c *gin.Context) {
	ref, err := terminalRefFromParam(c)
	if err != nil {
		sendError(c, "getTransaction", err)
		return
	}
	transactionNo, err := strconv.Atoi(c.Param("no"))
	if err != nil {
		sendError(c, "getTransaction", apperr.Validation(apperr.Code(90, 1, 5), "invalid transaction number", "%v", err))
		return
	}
	businessDate := c.Query("businessDate")
	if businessDate == "" {
		sendError(c, "getTransaction", apperr.Validation(apperr.Code(90, 1, 6), "businessDate is required", "missing businessDate query parameter"))
		return
	}

	txnRecord, err := s.Txns.Get(c.Request.Context(), tenantID(c), ref, businessDate, transactionNo)
	if err != nil {
		sendError(c, "getTransaction", err)
		return
	}
	sendSuccess(c, "getTransaction", txnRecord)
}

type voidOrReturnRequest struct {
	BusinessDate string `json:"businessDate"`
	StaffRef     string `json:"staffRef"`
}

// VoidTransaction handles POST /terminals/{id}/transactions/{no}/void.
func (s *Services) VoidTransaction(c *gin.Context) {
	s.voidOrReturn(c, "void", constants.TxnTypeVoidSale)
}

// ReturnTransaction handles POST /terminals/{id}/transactions/{no}/return.
func (s *Services) ReturnTransaction(c *gin.Context) {
	s.voidOrReturn(c, "return", constants.TxnTypeReturnSale)
}

func (s *Services) voidOrReturn(c *gin.Context, operation string, newType int) {
	ref, err := terminalRefFromParam(c)
	if err != nil {
		sendError(c, operation, err)
		return
	}
	transactionNo, err := strconv.Atoi(c.Param("no"))
	if err != nil {
		sendError(c, operation, apperr.Validation(apperr.Code(90, 1, 5), "invalid transaction number", "%v", err))
		return
	}
	var req voidOrReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, operation, apperr.Validation(apperr.Code(90, 1, 2), "invalid request body", "%v", err))
		return
	}

	txnRecord, err := s.Txns.VoidOrReturn(c.Request.Context(), tenantID(c), ref, req.BusinessDate, transactionNo, newType, req.StaffRef)
	if err != nil {
		sendError(c, operation, err)
		return
	}
	sendSuccess(c, operation, txnRecord)
}

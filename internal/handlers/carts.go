package handlers

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"poscore/internal/apperr"
	"poscore/internal/constants"
	"poscore/internal/model"
)

// terminalRefFromQuery resolves the ?terminalId=storeCode:terminalNo query
// parameter into a full TerminalRef, scoped to the authenticated tenant
// (§6.1: "a query-parameter terminalId").
func terminalRefFromQuery(c *gin.Context) (model.TerminalRef, error) {
	raw := c.Query("terminalId")
	parts := strings.SplitN(raw, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return model.TerminalRef{}, apperr.Validation(apperr.Code(90, 1, 1), "terminalId must be storeCode:terminalNo",
			"invalid terminalId query parameter %q", raw)
	}
	return model.TerminalRef{TenantID: tenantID(c), StoreCode: parts[0], TerminalNo: parts[1]}, nil
}

// CreateCart handles POST /carts?terminalId=….
func (s *Services) CreateCart(c *gin.Context) {
	ref, err := terminalRefFromQuery(c)
	if err != nil {
		sendError(c, "createCart", err)
		return
	}

	session, err := s.Terminals.Get(c.Request.Context(), tenantID(c), ref)
	if err != nil {
		sendError(c, "createCart", err)
		return
	}

	cart, err := s.Carts.Create(c.Request.Context(), tenantID(c), ref, session.BusinessDate, session.OpenCounter, session.BusinessCounter)
	if err != nil {
		sendError(c, "createCart", err)
		return
	}
	sendSuccess(c, "createCart", cart)
}

type lineItemRequest struct {
	ItemCode    string          `json:"itemCode"`
	Description string          `json:"description"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    decimal.Decimal `json:"quantity"`
	TaxCode     string          `json:"taxCode"`
}

// AddLineItem handles POST /carts/{id}/lineItems.
func (s *Services) AddLineItem(c *gin.Context) {
	var req lineItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, "addLineItem", apperr.Validation(apperr.Code(90, 1, 2), "invalid request body", "%v", err))
		return
	}

	cart, err := s.Carts.AddLineItem(c.Request.Context(), tenantID(c), c.Param("id"), req.ItemCode, req.Description, req.UnitPrice, req.Quantity, req.TaxCode)
	if err != nil {
		sendError(c, "addLineItem", err)
		return
	}
	sendSuccess(c, "addLineItem", cart)
}

type quantityRequest struct {
	Quantity decimal.Decimal `json:"quantity"`
}

// UpdateLineItemQuantity handles PATCH /carts/{id}/lineItems/{n}/quantity.
func (s *Services) UpdateLineItemQuantity(c *gin.Context) {
	lineNo, err := strconv.Atoi(c.Param("lineNo"))
	if err != nil {
		sendError(c, "updateQuantity", apperr.Validation(apperr.Code(90, 1, 3), "invalid line number", "%v", err))
		return
	}
	var req quantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, "updateQuantity", apperr.Validation(apperr.Code(90, 1, 2), "invalid request body", "%v", err))
		return
	}

	cart, err := s.Carts.UpdateQuantity(c.Request.Context(), tenantID(c), c.Param("id"), lineNo, req.Quantity)
	if err != nil {
		sendError(c, "updateQuantity", err)
		return
	}
	sendSuccess(c, "updateQuantity", cart)
}

type discountRequest struct {
	Code  string          `json:"code"`
	Kind  string          `json:"kind"`
	Value decimal.Decimal `json:"value"`
}

// AddLineDiscount handles POST /carts/{id}/lineItems/{n}/discounts.
func (s *Services) AddLineDiscount(c *gin.Context) {
	lineNo, err := strconv.Atoi(c.Param("lineNo"))
	if err != nil {
		sendError(c, "addLineDiscount", apperr.Validation(apperr.Code(90, 1, 3), "invalid line number", "%v", err))
		return
	}
	var req discountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, "addLineDiscount", apperr.Validation(apperr.Code(90, 1, 2), "invalid request body", "%v", err))
		return
	}

	cart, err := s.Carts.AddLineDiscount(c.Request.Context(), tenantID(c), c.Param("id"), lineNo, model.Discount{Code: req.Code, Kind: req.Kind, Value: req.Value})
	if err != nil {
		sendError(c, "addLineDiscount", err)
		return
	}
	sendSuccess(c, "addLineDiscount", cart)
}

// AddSubtotalDiscount handles POST /carts/{id}/discounts (cart-wide).
func (s *Services) AddSubtotalDiscount(c *gin.Context) {
	var req discountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, "addSubtotalDiscount", apperr.Validation(apperr.Code(90, 1, 2), "invalid request body", "%v", err))
		return
	}

	cart, err := s.Carts.AddSubtotalDiscount(c.Request.Context(), tenantID(c), c.Param("id"), model.Discount{Code: req.Code, Kind: req.Kind, Value: req.Value})
	if err != nil {
		sendError(c, "addSubtotalDiscount", err)
		return
	}
	sendSuccess(c, "addSubtotalDiscount", cart)
}

// Subtotal handles POST /carts/{id}/subtotal. If the cart resolved to zero
// due, it finalizes a zero-payment transaction immediately (§4.1).
func (s *Services) Subtotal(c *gin.Context) {
	cart, zeroDue, err := s.Carts.Subtotal(c.Request.Context(), tenantID(c), c.Param("id"))
	if err != nil {
		sendError(c, "subtotal", err)
		return
	}
	if !zeroDue {
		sendSuccess(c, "subtotal", cart)
		return
	}

	txnRecord, err := s.Txns.Finalize(c.Request.Context(), tenantID(c), cart, constants.TxnTypeNormalSale)
	if err != nil {
		sendError(c, "subtotal", err)
		return
	}
	billed, err := s.Carts.MarkBilled(c.Request.Context(), tenantID(c), cart.CartID, txnRecord.TransactionNo, txnRecord.ReceiptNo)
	if err != nil {
		sendError(c, "subtotal", err)
		return
	}
	sendSuccessWithMetadata(c, "subtotal", billed, gin.H{"transaction": txnRecord})
}

type paymentRequest struct {
	Code   string          `json:"code"`
	Amount decimal.Decimal `json:"amount"`
}

// AddPayment handles POST /carts/{id}/payments.
func (s *Services) AddPayment(c *gin.Context) {
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, "addPayment", apperr.Validation(apperr.Code(90, 1, 2), "invalid request body", "%v", err))
		return
	}

	cart, err := s.Carts.AddPayment(c.Request.Context(), tenantID(c), c.Param("id"), req.Code, req.Amount)
	if err != nil {
		sendError(c, "addPayment", err)
		return
	}
	sendSuccess(c, "addPayment", cart)
}

// Bill handles POST /carts/{id}/bill — finalizes the cart into a
// transaction (§4.4).
func (s *Services) Bill(c *gin.Context) {
	cart, err := s.Carts.Get(c.Request.Context(), tenantID(c), c.Param("id"))
	if err != nil {
		sendError(c, "bill", err)
		return
	}

	txnRecord, err := s.Txns.Finalize(c.Request.Context(), tenantID(c), cart, constants.TxnTypeNormalSale)
	if err != nil {
		sendError(c, "bill", err)
		return
	}
	billed, err := s.Carts.MarkBilled(c.Request.Context(), tenantID(c), cart.CartID, txnRecord.TransactionNo, txnRecord.ReceiptNo)
	if err != nil {
		sendError(c, "bill", err)
		return
	}
	sendSuccessWithMetadata(c, "bill", billed, gin.H{"transaction": txnRecord})
}

// CancelCart handles POST /carts/{id}/cancel.
func (s *Services) CancelCart(c *gin.Context) {
	cart, err := s.Carts.CancelCart(c.Request.Context(), tenantID(c), c.Param("id"))
	if err != nil {
		sendError(c, "cancelCart", err)
		return
	}
	sendSuccess(c, "cancelCart", cart)
}

// ResumeItemEntry handles POST /carts/{id}/resume-item-entry.
func (s *Services) ResumeItemEntry(c *gin.Context) {
	cart, err := s.Carts.ResumeItemEntry(c.Request.Context(), tenantID(c), c.Param("id"))
	if err != nil {
		sendError(c, "resumeItemEntry", err)
		return
	}
	sendSuccess(c, "resumeItemEntry", cart)
}

// GetCart handles GET /carts/{id}.
func (s *Services) GetCart(c *gin.Context) {
	cart, err := s.Carts.Get(c.Request.Context(), tenantID(c), c.Param("id"))
	if err != nil {
		sendError(c, "getCart", err)
		return
	}
	sendSuccess(c, "getCart", cart)
}

// Package cart implements the cart state machine (C6, §4.1): a per-cart
// finite-state machine over the transaction lifecycle. States are modeled
// as a tagged variant (a string enum plus a state->legal-operations table),
// not a class hierarchy, per §9 Design Notes. No teacher analogue exists
// for an FSM; the state-to-behavior dispatch style is grounded on the
// shape of the teacher's payment_sync.PaymentSyncClient provider registry:
// a lookup table driving what is legal, not inheritance.
package cart

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"poscore/internal/apperr"
	"poscore/internal/constants"
	"poscore/internal/model"
	"poscore/internal/payment"
	"poscore/internal/pricing"
)

// StateOps is the legal-operation set per state (§4.1 table). Guards check
// membership here before any mutation.
var StateOps = map[string][]string{
	constants.CartStateIdle: {
		"addLineItem", "addSubtotalDiscount", "cancelCart",
	},
	constants.CartStateEnteringItem: {
		"addLineItem", "cancelLineItem", "updateUnitPrice", "updateQuantity",
		"addLineDiscount", "addSubtotalDiscount", "subtotal", "cancelCart",
	},
	constants.CartStatePaying: {
		"addPayment", "resumeItemEntry", "cancelCart",
	},
}

func guard(cart *model.Cart, op string) error {
	allowed := StateOps[cart.State]
	for _, a := range allowed {
		if a == op {
			return nil
		}
	}
	return apperr.Conflict(apperr.Code(70, 1, 1), "that action is not allowed right now",
		"state %q does not accept %q (legal operations: %v)", cart.State, op, allowed)
}

func record(cart *model.Cart, op string) {
	cart.History = append(cart.History, op)
	cart.UpdatedAt = time.Now().UTC()
}

// Machine drives cart transitions, delegating pricing and payment rules to
// the C7/C8 engines.
type Machine struct {
	pricing   *pricing.Engine
	payments  *payment.Engine
	taxLookup pricing.TaxLookup
}

// New builds a Machine wired to the pricing and payment engines.
func New(pricingEngine *pricing.Engine, paymentEngine *payment.Engine, taxLookup pricing.TaxLookup) *Machine {
	return &Machine{pricing: pricingEngine, payments: paymentEngine, taxLookup: taxLookup}
}

// Create starts a new cart in state initial, then immediately transitions
// to idle (§4.1: initial accepts only createCart, which always succeeds).
func (m *Machine) Create(terminalRef model.TerminalRef, businessDate string, openCounter, businessCounter int) *model.Cart {
	now := time.Now().UTC()
	cart := &model.Cart{
		Ambient:         model.Ambient{CreatedAt: now, UpdatedAt: now, EntityTag: 1},
		CartID:          uuid.NewString(),
		TerminalRef:     terminalRef,
		State:           constants.CartStateIdle,
		BusinessDate:    businessDate,
		OpenCounter:     openCounter,
		BusinessCounter: businessCounter,
	}
	record(cart, "createCart")
	return cart
}

// AddLineItem appends a new line item and, from idle, moves the cart to
// enteringItem.
func (m *Machine) AddLineItem(cart *model.Cart, itemCode, description string, unitPrice, quantity decimal.Decimal, taxCode string) error {
	if err := guard(cart, "addLineItem"); err != nil {
		return err
	}
	if quantity.Sign() <= 0 {
		return apperr.Unprocessable(apperr.Code(70, 2, 1), "quantity must be positive", "quantity %s is not positive", quantity)
	}
	if unitPrice.IsNegative() {
		return apperr.Unprocessable(apperr.Code(70, 2, 2), "unit price cannot be negative", "unit price %s is negative", unitPrice)
	}

	lineNo := len(cart.LineItems) + 1
	cart.LineItems = append(cart.LineItems, model.LineItem{
		LineNo:      lineNo,
		ItemCode:    itemCode,
		Description: description,
		UnitPrice:   unitPrice,
		Quantity:    quantity,
		TaxCode:     taxCode,
	})
	cart.State = constants.CartStateEnteringItem
	record(cart, "addLineItem")
	return nil
}

func (m *Machine) findLine(cart *model.Cart, lineNo int) (*model.LineItem, error) {
	for i := range cart.LineItems {
		if cart.LineItems[i].LineNo == lineNo {
			return &cart.LineItems[i], nil
		}
	}
	return nil, apperr.NotFound(apperr.Code(70, 2, 3), "line item not found", "no line item numbered %d", lineNo)
}

// CancelLineItem marks a line item cancelled; it remains in the sequence
// (lineNo stays dense and stable) but is excluded from pricing.
func (m *Machine) CancelLineItem(cart *model.Cart, lineNo int) error {
	if err := guard(cart, "cancelLineItem"); err != nil {
		return err
	}
	li, err := m.findLine(cart, lineNo)
	if err != nil {
		return err
	}
	li.IsCancelled = true
	record(cart, "cancelLineItem")
	return nil
}

// UpdateUnitPrice overwrites a line item's unit price.
func (m *Machine) UpdateUnitPrice(cart *model.Cart, lineNo int, unitPrice decimal.Decimal) error {
	if err := guard(cart, "updateUnitPrice"); err != nil {
		return err
	}
	if unitPrice.IsNegative() {
		return apperr.Unprocessable(apperr.Code(70, 2, 2), "unit price cannot be negative", "unit price %s is negative", unitPrice)
	}
	li, err := m.findLine(cart, lineNo)
	if err != nil {
		return err
	}
	li.UnitPrice = unitPrice
	record(cart, "updateUnitPrice")
	return nil
}

// UpdateQuantity overwrites a line item's quantity.
func (m *Machine) UpdateQuantity(cart *model.Cart, lineNo int, quantity decimal.Decimal) error {
	if err := guard(cart, "updateQuantity"); err != nil {
		return err
	}
	if quantity.Sign() <= 0 {
		return apperr.Unprocessable(apperr.Code(70, 2, 1), "quantity must be positive", "quantity %s is not positive", quantity)
	}
	li, err := m.findLine(cart, lineNo)
	if err != nil {
		return err
	}
	li.Quantity = quantity
	record(cart, "updateQuantity")
	return nil
}

// AddLineDiscount appends a discount to a specific line item.
func (m *Machine) AddLineDiscount(cart *model.Cart, lineNo int, discount model.Discount) error {
	if err := guard(cart, "addLineDiscount"); err != nil {
		return err
	}
	li, err := m.findLine(cart, lineNo)
	if err != nil {
		return err
	}
	li.Discounts = append(li.Discounts, discount)
	record(cart, "addLineDiscount")
	return nil
}

// AddSubtotalDiscount appends a cart-wide discount. Legal from idle (stays
// idle) and enteringItem (stays enteringItem).
func (m *Machine) AddSubtotalDiscount(cart *model.Cart, discount model.Discount) error {
	if err := guard(cart, "addSubtotalDiscount"); err != nil {
		return err
	}
	cart.SubtotalDiscounts = append(cart.SubtotalDiscounts, discount)
	record(cart, "addSubtotalDiscount")
	return nil
}

// Subtotal prices the cart (C7) and transitions to paying if net-due is
// strictly positive, or to completed if net-due is zero (§4.1: "the cart
// moves directly to completed after generating a zero-payment
// transaction" — the zero-payment transaction itself is C9's
// responsibility, triggered by the caller when ZeroDue is true).
func (m *Machine) Subtotal(cart *model.Cart) (zeroDue bool, err error) {
	if err := guard(cart, "subtotal"); err != nil {
		return false, err
	}
	totals, err := m.pricing.Price(cart, m.taxLookup)
	if err != nil {
		return false, err
	}
	record(cart, "subtotal")
	if totals.NetDue.IsPositive() {
		cart.State = constants.CartStatePaying
		return false, nil
	}
	cart.State = constants.CartStateCompleted
	return true, nil
}

// AddPayment appends a payment via the payment engine (C8) and, once
// cumulative tendered meets net-due, transitions to completed.
func (m *Machine) AddPayment(cart *model.Cart, code string, amount decimal.Decimal) error {
	if err := guard(cart, "addPayment"); err != nil {
		return err
	}
	completed, err := m.payments.AddPayment(cart, code, amount)
	if err != nil {
		return err
	}
	record(cart, "addPayment")
	if completed {
		cart.State = constants.CartStateCompleted
	}
	return nil
}

// ResumeItemEntry discards the payments list and returns to enteringItem
// (§9 open question: no compensation flow for already-captured cashless
// payments; this is the documented current design).
func (m *Machine) ResumeItemEntry(cart *model.Cart) error {
	if err := guard(cart, "resumeItemEntry"); err != nil {
		return err
	}
	cart.Payments = nil
	cart.State = constants.CartStateEnteringItem
	record(cart, "resumeItemEntry")
	return nil
}

// CancelCart irreversibly moves the cart to cancelled. Accepted from any
// non-terminal state.
func (m *Machine) CancelCart(cart *model.Cart) error {
	if cart.State == constants.CartStateCompleted || cart.State == constants.CartStateCancelled {
		return apperr.Conflict(apperr.Code(70, 1, 2), "this cart is already finished",
			"cart %s is already in terminal state %q", cart.CartID, cart.State)
	}
	cart.State = constants.CartStateCancelled
	record(cart, "cancelCart")
	return nil
}

// Snapshot returns a deep copy of the cart, safe for a caller to read or
// persist without racing further mutation.
func Snapshot(cart *model.Cart) (*model.Cart, error) {
	body, err := json.Marshal(cart)
	if err != nil {
		return nil, apperr.Internal(apperr.Code(70, 3, 1), "could not snapshot cart", err)
	}
	var out model.Cart
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, apperr.Internal(apperr.Code(70, 3, 2), "could not snapshot cart", err)
	}
	return &out, nil
}

// History returns the ordered list of operations applied to the cart.
func History(cart *model.Cart) []string {
	return append([]string(nil), cart.History...)
}

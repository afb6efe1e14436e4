// Package payment implements the payment engine (C8, §4.3): a strategy
// registry of payment methods keyed by code, split-payment accumulation,
// and change computation. The registry shape is grounded directly on the
// teacher's internal/client/payment_sync/client.go
// (RegisterProvider/GetProviderService/providers map), renamed to the
// payment-method domain.
package payment

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"poscore/internal/apperr"
	"poscore/internal/model"
)

// Method is a named payment strategy (§4.3 table).
type Method interface {
	Code() string
	Name() string
	AllowsChange() bool
	AllowsPartial() bool
}

type method struct {
	code          string
	name          string
	allowsChange  bool
	allowsPartial bool
}

func (m method) Code() string         { return m.code }
func (m method) Name() string         { return m.name }
func (m method) AllowsChange() bool   { return m.allowsChange }
func (m method) AllowsPartial() bool  { return m.allowsPartial }

// Cash, Cashless, and Other are the three methods configuration supplies
// out of the box (§4.3 table). Additional methods can be registered at
// startup without touching this package.
var (
	Cash     Method = method{code: "01", name: "cash", allowsChange: true, allowsPartial: true}
	Cashless Method = method{code: "11", name: "cashless", allowsChange: false, allowsPartial: true}
	Other    Method = method{code: "12", name: "other", allowsChange: false, allowsPartial: true}
)

// Registry is the closed-at-startup {code -> method} strategy table (§9
// "Strategy loading").
type Registry struct {
	mu      sync.RWMutex
	methods map[string]Method
}

// NewRegistry builds an empty registry. Call RegisterDefaults to load the
// three standard methods.
func NewRegistry() *Registry {
	return &Registry{methods: make(map[string]Method)}
}

// RegisterDefaults registers cash, cashless, and other under their
// standard codes.
func (r *Registry) RegisterDefaults() {
	r.Register(Cash)
	r.Register(Cashless)
	r.Register(Other)
}

// Register adds or replaces a method under its code.
func (r *Registry) Register(m Method) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[m.Code()] = m
}

// Resolve looks up a method by code.
func (r *Registry) Resolve(code string) (Method, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.methods[code]
	if !ok {
		return nil, apperr.Validation(apperr.Code(50, 1, 1), "unknown payment method", "no payment method registered for code %q", code)
	}
	return m, nil
}

// Engine applies payment-method rules to a cart's payments list.
type Engine struct {
	registry *Registry
	now      func() time.Time
}

// New builds an Engine over a closed registry.
func New(registry *Registry) *Engine {
	return &Engine{registry: registry, now: time.Now}
}

// RemainingDue returns the cart's outstanding balance: totalWithTax minus
// the effective (non-change) amount of every payment already accepted.
func RemainingDue(cart *model.Cart) decimal.Decimal {
	due := cart.Totals.TotalWithTax
	for _, p := range cart.Payments {
		due = due.Sub(p.Amount.Sub(p.Change))
	}
	return due
}

// AddPayment appends a payment entry for the given method code and
// tendered amount, computing change when the method allows it. Returns
// whether the cart's cumulative tendered amount now meets or exceeds
// net-due (§4.3 "cumulative ≥ net-due").
func (e *Engine) AddPayment(cart *model.Cart, code string, amount decimal.Decimal) (completed bool, err error) {
	if amount.IsNegative() || amount.IsZero() {
		return false, apperr.Unprocessable(apperr.Code(50, 2, 1), "payment amount must be positive", "payment amount %s is not positive", amount)
	}

	m, err := e.registry.Resolve(code)
	if err != nil {
		return false, err
	}

	remaining := RemainingDue(cart)
	change := decimal.Zero
	if amount.GreaterThan(remaining) {
		if !m.AllowsChange() {
			return false, apperr.Unprocessable(apperr.Code(50, 2, 2), "this payment method cannot exceed the amount due", "payment method %q tendered %s against remaining due %s", code, amount, remaining)
		}
		change = amount.Sub(remaining)
	}

	cart.Payments = append(cart.Payments, model.PaymentEntry{
		Code:    code,
		Amount:  amount,
		Change:  change,
		AddedAt: e.now(),
	})

	newRemaining := RemainingDue(cart)
	cart.Totals.NetDue = newRemaining
	return !newRemaining.IsPositive(), nil
}

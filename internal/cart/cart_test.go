package cart

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poscore/internal/constants"
	"poscore/internal/model"
	"poscore/internal/payment"
	"poscore/internal/pricing"
)

func newMachine() *Machine {
	registry := payment.NewRegistry()
	registry.RegisterDefaults()
	return New(pricing.New(constants.RoundingHalfUp, 0), payment.New(registry), func(code string) (pricing.TaxInfo, error) {
		return pricing.TaxInfo{Kind: constants.TaxKindExternal, Rate: decimal.RequireFromString("0.10")}, nil
	})
}

func TestGuard_RejectsDisallowedOperationInCurrentState(t *testing.T) {
	m := newMachine()
	c := m.Create(model.TerminalRef{TenantID: "t1", StoreCode: "s1", TerminalNo: "1"}, "20260101", 1, 0)

	err := m.AddPayment(c, payment.Cash.Code(), decimal.NewFromInt(100))
	assert.Error(t, err)
	assert.Equal(t, constants.CartStateIdle, c.State)
}

func TestCart_AddItemsThenCancelEachEqualsEmptyCart(t *testing.T) {
	m := newMachine()
	c := m.Create(model.TerminalRef{TenantID: "t1", StoreCode: "s1", TerminalNo: "1"}, "20260101", 1, 0)

	require.NoError(t, m.AddLineItem(c, "SKU1", "Widget", decimal.NewFromInt(100), decimal.NewFromInt(2), "STD"))
	require.NoError(t, m.AddLineItem(c, "SKU2", "Gadget", decimal.NewFromInt(200), decimal.NewFromInt(1), "STD"))

	for _, li := range c.LineItems {
		require.NoError(t, m.CancelLineItem(c, li.LineNo))
	}

	_, err := m.Subtotal(c)
	require.NoError(t, err)

	assert.True(t, c.Totals.TotalWithTax.IsZero())
	assert.True(t, c.Totals.TotalTax.IsZero())
}

func TestCart_SubtotalGoesStraightToCompletedWhenFullyDiscounted(t *testing.T) {
	m := newMachine()
	c := m.Create(model.TerminalRef{TenantID: "t1", StoreCode: "s1", TerminalNo: "1"}, "20260101", 1, 0)

	require.NoError(t, m.AddLineItem(c, "SKU1", "Widget", decimal.NewFromInt(100), decimal.NewFromInt(1), "STD"))
	require.NoError(t, m.AddSubtotalDiscount(c, model.Discount{Code: "FULL", Kind: constants.DiscountKindAbsolute, Value: decimal.NewFromInt(10000)}))

	zeroDue, err := m.Subtotal(c)
	require.NoError(t, err)
	assert.True(t, zeroDue)
	assert.Equal(t, constants.CartStateCompleted, c.State)
}

// S4 — split payment completes, transactionNo assigned downstream.
func TestCart_SplitPaymentCompletes(t *testing.T) {
	m := newMachine()
	c := m.Create(model.TerminalRef{TenantID: "t1", StoreCode: "s1", TerminalNo: "1"}, "20260101", 1, 0)

	require.NoError(t, m.AddLineItem(c, "SKU1", "Widget", decimal.NewFromInt(3000), decimal.NewFromInt(1), "STD"))
	zeroDue, err := m.Subtotal(c)
	require.NoError(t, err)
	require.False(t, zeroDue)
	require.Equal(t, constants.CartStatePaying, c.State)
	require.True(t, c.Totals.TotalWithTax.Equal(decimal.NewFromInt(3300)))

	require.NoError(t, m.AddPayment(c, payment.Cashless.Code(), decimal.NewFromInt(2000)))
	assert.Equal(t, constants.CartStatePaying, c.State)

	require.NoError(t, m.AddPayment(c, payment.Cash.Code(), decimal.NewFromInt(2000)))
	assert.Equal(t, constants.CartStateCompleted, c.State)
	assert.True(t, c.Payments[1].Change.Equal(decimal.NewFromInt(700)))
}

func TestCart_ResumeItemEntryClearsPayments(t *testing.T) {
	m := newMachine()
	c := m.Create(model.TerminalRef{TenantID: "t1", StoreCode: "s1", TerminalNo: "1"}, "20260101", 1, 0)
	require.NoError(t, m.AddLineItem(c, "SKU1", "Widget", decimal.NewFromInt(1000), decimal.NewFromInt(1), "STD"))
	_, err := m.Subtotal(c)
	require.NoError(t, err)
	require.NoError(t, m.AddPayment(c, payment.Cashless.Code(), decimal.NewFromInt(100)))

	require.NoError(t, m.ResumeItemEntry(c))
	assert.Equal(t, constants.CartStateEnteringItem, c.State)
	assert.Empty(t, c.Payments)
}

func TestCart_CancelCartIsTerminal(t *testing.T) {
	m := newMachine()
	c := m.Create(model.TerminalRef{TenantID: "t1", StoreCode: "s1", TerminalNo: "1"}, "20260101", 1, 0)
	require.NoError(t, m.CancelCart(c))
	assert.Equal(t, constants.CartStateCancelled, c.State)

	err := m.AddLineItem(c, "SKU1", "Widget", decimal.NewFromInt(100), decimal.NewFromInt(1), "STD")
	assert.Error(t, err, "a cart in a terminal state must never accept further operations")
}

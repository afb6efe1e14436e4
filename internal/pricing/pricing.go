// Package pricing implements the pricing & tax engine (C7, §4.2): line and
// subtotal discount resolution, internal/external/exempt tax allocation,
// rounding, and the invariant that net sales always excludes every tax kind.
// All monetary values are decimal.Decimal (shopspring/decimal), never
// float64 — promoted here from an indirect dependency of AKJUS-bsc-erigon
// to direct use, since no example repo models money arithmetic itself.
package pricing

import (
	"github.com/shopspring/decimal"

	"poscore/internal/apperr"
	"poscore/internal/constants"
	"poscore/internal/model"
)

// TaxInfo is the master-data lookup result for a tax code (owned by C5,
// resolved here via the taxLookup function so this package stays free of
// any cache/store dependency).
type TaxInfo struct {
	Kind string // constants.TaxKind*
	Rate decimal.Decimal
}

// TaxLookup resolves a tax code to its kind and rate.
type TaxLookup func(taxCode string) (TaxInfo, error)

// Engine applies the tenant's rounding mode to every fractional
// computation (§4.2 rule 4, §9 open question: rounding mode is global per
// tenant, not per-tax-code).
type Engine struct {
	roundingMode  string
	decimalPlaces int32
}

// New builds an Engine for the given rounding mode (constants.Rounding*)
// and currency decimal-place precision.
func New(roundingMode string, decimalPlaces int32) *Engine {
	return &Engine{roundingMode: roundingMode, decimalPlaces: decimalPlaces}
}

func (e *Engine) round(d decimal.Decimal) decimal.Decimal {
	switch e.roundingMode {
	case constants.RoundingFloor:
		return d.RoundFloor(e.decimalPlaces)
	case constants.RoundingCeil:
		return d.RoundCeil(e.decimalPlaces)
	default:
		return d.Round(e.decimalPlaces)
	}
}

// Price computes line amounts, resolves discounts, allocates tax per line,
// and fills in cart.Totals. It mutates cart.LineItems (Amount, Discounts[
// ].Applied, Taxes) and cart.SubtotalDiscounts (Applied), and returns the
// computed Totals (also stored on cart.Totals).
func (e *Engine) Price(cart *model.Cart, lookup TaxLookup) (model.Totals, error) {
	sumLines := decimal.Zero
	totalWithTax := decimal.Zero
	taxableTotal := decimal.Zero
	lineDiscountTotal := decimal.Zero
	totalTax := decimal.Zero

	for i := range cart.LineItems {
		li := &cart.LineItems[i]
		if li.IsCancelled {
			continue
		}

		extended := li.UnitPrice.Mul(li.Quantity)
		remainder := extended
		for d := range li.Discounts {
			disc := &li.Discounts[d]
			applied := e.resolveDiscount(*disc, remainder)
			disc.Applied = applied
			remainder = remainder.Sub(applied)
			lineDiscountTotal = lineDiscountTotal.Add(applied)
		}
		if remainder.IsNegative() {
			remainder = decimal.Zero
		}
		li.Amount = remainder
		sumLines = sumLines.Add(remainder)

		info, err := lookup(li.TaxCode)
		if err != nil {
			return model.Totals{}, err
		}

		var alloc model.TaxAllocation
		switch info.Kind {
		case constants.TaxKindExternal:
			taxAmount := e.round(remainder.Mul(info.Rate))
			alloc = model.TaxAllocation{TaxCode: li.TaxCode, Kind: info.Kind, TargetAmount: remainder, TaxAmount: taxAmount}
			totalWithTax = totalWithTax.Add(remainder).Add(taxAmount)
			totalTax = totalTax.Add(taxAmount)
		case constants.TaxKindInternal:
			taxableBase := e.round(remainder.Div(decimal.NewFromInt(1).Add(info.Rate)))
			taxAmount := remainder.Sub(taxableBase)
			alloc = model.TaxAllocation{TaxCode: li.TaxCode, Kind: info.Kind, TargetAmount: taxableBase, TaxAmount: taxAmount}
			totalWithTax = totalWithTax.Add(remainder)
			taxableTotal = taxableTotal.Add(taxableBase)
			totalTax = totalTax.Add(taxAmount)
		case constants.TaxKindExempt:
			alloc = model.TaxAllocation{TaxCode: li.TaxCode, Kind: info.Kind, TargetAmount: remainder, TaxAmount: decimal.Zero}
			totalWithTax = totalWithTax.Add(remainder)
		default:
			return model.Totals{}, apperr.Validation(apperr.Code(40, 1, 1), "unknown tax code", "unrecognised tax kind %q for code %q", info.Kind, li.TaxCode)
		}
		li.Taxes = []model.TaxAllocation{alloc}
	}

	subtotalDiscountTotal := decimal.Zero
	remainder := sumLines
	for i := range cart.SubtotalDiscounts {
		disc := &cart.SubtotalDiscounts[i]
		applied := e.resolveDiscount(*disc, remainder)
		disc.Applied = applied
		remainder = remainder.Sub(applied)
		subtotalDiscountTotal = subtotalDiscountTotal.Add(applied)
	}
	totalWithTax = totalWithTax.Sub(subtotalDiscountTotal)
	if totalWithTax.IsNegative() {
		totalWithTax = decimal.Zero
	}

	paymentsAccepted := decimal.Zero
	for _, p := range cart.Payments {
		paymentsAccepted = paymentsAccepted.Add(p.Amount).Sub(p.Change)
	}

	totals := model.Totals{
		GrossSales:            totalWithTax,
		NetSales:              totalWithTax.Sub(totalTax),
		TotalWithTax:          totalWithTax,
		TaxableTotal:          taxableTotal,
		LineDiscountTotal:     lineDiscountTotal,
		SubtotalDiscountTotal: subtotalDiscountTotal,
		TotalTax:              totalTax,
		NetDue:                totalWithTax.Sub(paymentsAccepted),
	}
	cart.Totals = totals
	return totals, nil
}

func (e *Engine) resolveDiscount(d model.Discount, base decimal.Decimal) decimal.Decimal {
	var applied decimal.Decimal
	switch d.Kind {
	case constants.DiscountKindPercent:
		applied = e.round(base.Mul(d.Value).Div(decimal.NewFromInt(100)))
	default: // absolute
		applied = d.Value
	}
	if applied.GreaterThan(base) {
		applied = base
	}
	if applied.IsNegative() {
		applied = decimal.Zero
	}
	return applied
}

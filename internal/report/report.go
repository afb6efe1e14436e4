// Package report implements the report aggregator (C11, §4.6): flash
// (mid-session) and daily reports over persisted transactions. Realized as
// a streamed in-process fold rather than a document-store pipeline (no
// MongoDB-style driver exists anywhere in the retrieval corpus), honoring
// the same two rules a native pipeline would need: payments and taxes are
// folded in independent per-transaction passes rather than a joined
// flatten (avoiding the cartesian-multiplication trap a naive $unwind of
// both arrays together would hit), and each transaction's tax array is
// reduced to one total before it is summed into the cross-transaction
// total.
package report

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"

	"poscore/internal/apperr"
	"poscore/internal/constants"
	"poscore/internal/journal"
	"poscore/internal/model"
	"poscore/internal/store"
)

// transactionsCollection mirrors the collection name the transaction
// service (C9) writes to; kept as a sibling constant rather than an
// exported one to avoid a needless cross-package coupling for a single
// string.
const transactionsCollection = "transactions"

// documentStore is the narrow slice of *store.Store the report engine
// needs. Tests substitute a hand-written fake instead of a real connection.
type documentStore interface {
	Get(ctx context.Context, tenantID, collection, key string, out any) (int64, error)
	Query(ctx context.Context, tenantID, collection, keyPrefix string, decode func(body []byte) error) error
}

// Report is the aggregated result of either a flash or daily run.
type Report struct {
	TenantID              string
	TerminalRef           *model.TerminalRef
	BusinessDate          string
	TransactionCount      int
	GrossSales            decimal.Decimal
	Returns               decimal.Decimal
	LineDiscountTotal     decimal.Decimal
	SubtotalDiscountTotal decimal.Decimal
	TotalTax              decimal.Decimal
	NetSales              decimal.Decimal
	Payments              map[string]decimal.Decimal
	TaxesByCode           map[string]decimal.Decimal
}

func newReport(tenantID string, ref *model.TerminalRef, businessDate string) *Report {
	return &Report{
		TenantID:     tenantID,
		TerminalRef:  ref,
		BusinessDate: businessDate,
		Payments:     map[string]decimal.Decimal{},
		TaxesByCode:  map[string]decimal.Decimal{},
	}
}

// Engine aggregates persisted transactions into reports.
type Engine struct {
	store documentStore
}

// New builds an Engine over the document store. s need only satisfy
// documentStore, so callers pass the concrete *store.Store in production
// and a hand-written fake in tests.
func New(s documentStore) *Engine {
	return &Engine{store: s}
}

// Flash produces a mid-session report for one still-open terminal (§4.6).
// It reads the daily-summary fast-path projection C10 maintains when
// available, falling back to a full scan on the first request of the day
// before any transaction has landed a summary row.
func (e *Engine) Flash(ctx context.Context, tenantID string, ref model.TerminalRef, businessDate string) (*Report, error) {
	var summary journal.DailySummary
	_, err := e.store.Get(ctx, tenantID, "daily_summary", businessDate+"-"+ref.Key(), &summary)
	if err == nil {
		return reportFromSummary(tenantID, ref, businessDate, summary), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return e.aggregate(ctx, tenantID, &ref, businessDate, ref.DateKey(businessDate))
}

func reportFromSummary(tenantID string, ref model.TerminalRef, businessDate string, summary journal.DailySummary) *Report {
	r := newReport(tenantID, &ref, businessDate)
	r.TransactionCount = summary.TransactionCount
	r.GrossSales = summary.GrossSales
	r.Returns = summary.Returns
	r.LineDiscountTotal = summary.LineDiscountTotal
	r.SubtotalDiscountTotal = summary.SubtotalDiscountTotal
	r.TotalTax = summary.TotalTax
	r.NetSales = summary.NetSales
	return r
}

// Daily produces a whole-store report for businessDate across every
// terminal in scope, refusing to run until every one of them has closed
// (§4.6 "Daily reports require that every terminal ... has emitted a close
// event").
func (e *Engine) Daily(ctx context.Context, tenantID string, scope []model.TerminalRef, businessDate string) (*Report, error) {
	statuses, err := journal.ListOpenCloseStatus(ctx, e.store, tenantID, businessDate)
	if err != nil {
		return nil, err
	}
	if !allClosed(scope, statuses) {
		return nil, apperr.Unprocessable(apperr.Code(50, 1, 1),
			"not every terminal has closed for this business date",
			"daily report for %s requested before all terminals closed", businessDate)
	}

	total := newReport(tenantID, nil, businessDate)
	for _, ref := range scope {
		r, err := e.aggregate(ctx, tenantID, &ref, businessDate, ref.DateKey(businessDate))
		if err != nil {
			return nil, err
		}
		total = merge(total, r)
	}
	return total, nil
}

func allClosed(scope []model.TerminalRef, statuses []journal.OpenCloseStatus) bool {
	closedByKey := make(map[string]bool, len(statuses))
	for _, st := range statuses {
		closedByKey[st.TerminalRef.Key()] = st.Closed
	}
	for _, ref := range scope {
		if !closedByKey[ref.Key()] {
			return false
		}
	}
	return true
}

func merge(a, b *Report) *Report {
	a.TransactionCount += b.TransactionCount
	a.GrossSales = a.GrossSales.Add(b.GrossSales)
	a.Returns = a.Returns.Add(b.Returns)
	a.LineDiscountTotal = a.LineDiscountTotal.Add(b.LineDiscountTotal)
	a.SubtotalDiscountTotal = a.SubtotalDiscountTotal.Add(b.SubtotalDiscountTotal)
	a.TotalTax = a.TotalTax.Add(b.TotalTax)
	a.NetSales = a.NetSales.Add(b.NetSales)
	for code, amount := range b.Payments {
		a.Payments[code] = a.Payments[code].Add(amount)
	}
	for code, amount := range b.TaxesByCode {
		a.TaxesByCode[code] = a.TaxesByCode[code].Add(amount)
	}
	return a
}

// aggregate streams every transaction document under keyPrefix and folds
// it into a Report (§4.6 aggregation pipeline).
func (e *Engine) aggregate(ctx context.Context, tenantID string, ref *model.TerminalRef, businessDate, keyPrefix string) (*Report, error) {
	r := newReport(tenantID, ref, businessDate)

	err := e.store.Query(ctx, tenantID, transactionsCollection, keyPrefix, func(body []byte) error {
		var t model.Transaction
		if err := json.Unmarshal(body, &t); err != nil {
			return apperr.Internal(apperr.Code(50, 2, 1), "could not decode transaction", err)
		}

		factor := constants.ReportFactor(t.TransactionType)
		if factor == 0 {
			return nil
		}
		r.TransactionCount++

		weighted := func(d decimal.Decimal) decimal.Decimal {
			if factor < 0 {
				return d.Neg()
			}
			return d
		}

		if factor > 0 {
			r.GrossSales = r.GrossSales.Add(t.Totals.TotalWithTax)
		} else {
			r.Returns = r.Returns.Add(t.Totals.TotalWithTax)
		}
		r.LineDiscountTotal = r.LineDiscountTotal.Add(weighted(t.Totals.LineDiscountTotal))
		r.SubtotalDiscountTotal = r.SubtotalDiscountTotal.Add(weighted(t.Totals.SubtotalDiscountTotal))

		// Totals.TotalTax is already the per-transaction tax array reduced
		// to a single value at pricing time; summing it directly is the
		// "reduce once, then sum" rule applied at the point the reduce
		// naturally happens rather than redoing it here.
		r.TotalTax = r.TotalTax.Add(weighted(t.Totals.TotalTax))

		// Payments and taxes are each folded in their own independent pass
		// over this one transaction's arrays, never against each other, so
		// no join-induced cartesian product can occur.
		for _, li := range t.LineItems {
			for _, tax := range li.Taxes {
				r.TaxesByCode[tax.TaxCode] = r.TaxesByCode[tax.TaxCode].Add(weighted(tax.TaxAmount))
			}
		}
		for _, p := range t.Payments {
			r.Payments[p.Code] = r.Payments[p.Code].Add(weighted(p.Amount.Sub(p.Change)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.NetSales = r.GrossSales.Sub(r.Returns).Sub(r.LineDiscountTotal).Sub(r.SubtotalDiscountTotal).Sub(r.TotalTax)
	return r, nil
}

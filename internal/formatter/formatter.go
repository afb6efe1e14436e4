// Package formatter implements the receipt/journal text plugin mechanism
// (§4.4, "same plugin mechanism as §4.3"): a second strategy registry, same
// shape as internal/payment, keyed by a formatter code rather than a
// payment code.
package formatter

import (
	"fmt"
	"strings"
	"sync"

	"poscore/internal/apperr"
	"poscore/internal/model"
)

// Formatter renders a finalized transaction into receipt and journal text.
type Formatter interface {
	Code() string
	FormatReceipt(txn model.Transaction) string
	FormatJournal(txn model.Transaction) string
}

// Default is the built-in plain-text formatter, registered under code
// "default" by RegisterDefaults.
var Default Formatter = defaultFormatter{}

type defaultFormatter struct{}

func (defaultFormatter) Code() string { return "default" }

func (defaultFormatter) FormatReceipt(txn model.Transaction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "RECEIPT %s  TXN#%d\n", txn.TerminalRef.Key(), txn.TransactionNo)
	for _, li := range txn.LineItems {
		if li.IsCancelled {
			continue
		}
		fmt.Fprintf(&b, "%-20s %6s x %-4s %10s\n", li.Description, li.UnitPrice.String(), li.Quantity.String(), li.Amount.String())
	}
	fmt.Fprintf(&b, "TOTAL %s\n", txn.Totals.TotalWithTax.String())
	for _, p := range txn.Payments {
		fmt.Fprintf(&b, "PAID %s %s (change %s)\n", p.Code, p.Amount.String(), p.Change.String())
	}
	return b.String()
}

func (defaultFormatter) FormatJournal(txn model.Transaction) string {
	return fmt.Sprintf("JNL type=%d terminal=%s date=%s txn=%d receipt=%d total=%s tax=%s",
		txn.TransactionType, txn.TerminalRef.Key(), txn.BusinessDate, txn.TransactionNo, txn.ReceiptNo,
		txn.Totals.TotalWithTax.String(), txn.Totals.TotalTax.String())
}

// Registry is the closed-at-startup {code -> formatter} strategy table.
type Registry struct {
	mu         sync.RWMutex
	formatters map[string]Formatter
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{formatters: make(map[string]Formatter)}
}

// RegisterDefaults registers the built-in plain-text formatter.
func (r *Registry) RegisterDefaults() {
	r.Register(Default)
}

// Register adds or replaces a formatter under its code.
func (r *Registry) Register(f Formatter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.formatters[f.Code()] = f
}

// Resolve looks up a formatter by code.
func (r *Registry) Resolve(code string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.formatters[code]
	if !ok {
		return nil, apperr.Validation(apperr.Code(60, 1, 1), "unknown formatter", "no formatter registered for code %q", code)
	}
	return f, nil
}

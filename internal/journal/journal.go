// Package journal implements the journal consumer (C10, §4.6): the
// idempotent dedup-check-then-atomic-dual-write template applied to
// transaction, cash, and session events, plus two supplemental projections
// (the daily-summary running total and the open/close completeness status)
// that give the report aggregator (C11) a fast path instead of a full scan.
// Grounded on the teacher's cmd/webhook-processor/main.go
// (checkAndLogWebhookEvent / processWebhookEventData / HandleSQSEvent trio).
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"poscore/internal/apperr"
	"poscore/internal/constants"
	"poscore/internal/logger"
	"poscore/internal/model"
	"poscore/internal/store"
)

const (
	transactionLogCollection  = "transaction_log"
	cashLogCollection         = "cash_log"
	openCloseLogCollection    = "open_close_log"
	journalCollection         = "journal"
	dailySummaryCollection    = "daily_summary"
	openCloseStatusCollection = "open_close_status"
	dedupCollection           = "event_dedup"
)

// dedupMarker is the authoritative duplicate-suppression record (§4.6 step
// 3): written as one more store.Write in the same transaction as the
// type-specific log and the journal entry, so a transaction failure leaves
// no marker behind and the republished event is free to be reprocessed.
type dedupMarker struct {
	EventID  string    `json:"eventId"`
	MarkedAt time.Time `json:"markedAt"`
}

// documentStore is the narrow slice of *store.Store the journal consumer
// needs.
type documentStore interface {
	Get(ctx context.Context, tenantID, collection, key string, out any) (int64, error)
	Insert(ctx context.Context, tenantID, collection, key string, value any) error
	CAS(ctx context.Context, tenantID, collection, key string, expectedTag int64, value any) error
	TxInsertMany(ctx context.Context, tenantID string, writes []store.Write) error
}

// queryStore is the narrow slice *store.Store exposes for prefix scans,
// used by ListOpenCloseStatus.
type queryStore interface {
	Query(ctx context.Context, tenantID, collection, keyPrefix string, decode func(body []byte) error) error
}

// dedupCache is the narrow slice of *statestore.Store the journal consumer
// needs: a fast pre-check plus a best-effort cache warm after the
// authoritative document-store marker commits.
type dedupCache interface {
	IsMarked(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string, ttl time.Duration) error
}

// eventLedger is the narrow slice of *ledger.Ledger the journal consumer
// needs.
type eventLedger interface {
	Ack(ctx context.Context, tenantID, eventID, subscriberName string, success bool, message string) error
}

// DailySummary is the incremental per-(terminal,businessDate) projection
// maintained alongside the journal so a flash report can read one row
// instead of re-scanning every transaction for the day.
type DailySummary struct {
	model.Ambient
	TerminalRef           model.TerminalRef `json:"terminalRef"`
	BusinessDate          string            `json:"businessDate"`
	TransactionCount      int               `json:"transactionCount"`
	GrossSales            decimal.Decimal   `json:"grossSales"`
	Returns               decimal.Decimal   `json:"returns"`
	LineDiscountTotal     decimal.Decimal   `json:"lineDiscountTotal"`
	SubtotalDiscountTotal decimal.Decimal   `json:"subtotalDiscountTotal"`
	TotalTax              decimal.Decimal   `json:"totalTax"`
	NetSales              decimal.Decimal   `json:"netSales"`
}

// OpenCloseStatus tracks whether a terminal has opened/closed for a
// businessDate, read by C11 to gate daily reports on completeness (§4.6
// "Daily reports require that every terminal ... has emitted a close
// event").
type OpenCloseStatus struct {
	model.Ambient
	TerminalRef  model.TerminalRef `json:"terminalRef"`
	BusinessDate string            `json:"businessDate"`
	Opened       bool              `json:"opened"`
	Closed       bool              `json:"closed"`
}

// Consumer applies the §4.6 template: reject markerless events, dedup via
// the state store, write derived artifacts atomically, then best-effort
// acknowledge.
type Consumer struct {
	store      documentStore
	statestore dedupCache
	ledger     eventLedger
	dedupTTL   time.Duration
}

// New builds a Consumer. s, ss, and l need only satisfy
// documentStore/dedupCache/eventLedger, so callers pass the concrete
// *store.Store/*statestore.Store/*ledger.Ledger in production and
// hand-written fakes in tests. dedupTTL should exceed the republish lookback
// plus one republish interval (§9 "Dedup marker TTL").
func New(s documentStore, ss dedupCache, l eventLedger, dedupTTL time.Duration) *Consumer {
	return &Consumer{store: s, statestore: ss, ledger: l, dedupTTL: dedupTTL}
}

// HandleTransactionEvent consumes one published TransactionEvent.
func (c *Consumer) HandleTransactionEvent(ctx context.Context, tenantID string, event model.TransactionEvent) error {
	if event.EventID == "" {
		return nil
	}
	if marked, err := c.statestore.IsMarked(ctx, event.EventID); err != nil {
		return err
	} else if marked {
		return nil
	}

	txnType := deriveTransactionTypeCode(event.Transaction)
	entry := model.JournalEntry{
		Ambient:         model.Ambient{CreatedAt: event.PublishedAt, UpdatedAt: event.PublishedAt, EntityTag: 1},
		EventID:         event.EventID,
		TransactionType: txnType,
		TerminalRef:     event.TerminalRef,
		BusinessDate:    event.BusinessDate,
		OpenCounter:     event.OpenCounter,
		BusinessCounter: event.Transaction.BusinessCounter,
		TransactionNo:   event.Transaction.TransactionNo,
		ReceiptNo:       event.Transaction.ReceiptNo,
		Totals:          event.Transaction.Totals,
		ReceiptText:     event.Transaction.ReceiptText,
		JournalText:     event.Transaction.JournalText,
	}

	writes := []store.Write{
		{Collection: dedupCollection, Key: event.EventID, Value: dedupMarker{EventID: event.EventID, MarkedAt: event.PublishedAt}},
		{Collection: transactionLogCollection, Key: event.EventID, Value: event.Transaction},
		{Collection: journalCollection, Key: event.EventID, Value: entry},
	}
	if err := c.store.TxInsertMany(ctx, tenantID, writes); err != nil {
		if errors.Is(err, store.ErrConflict) {
			c.markDuplicate(ctx, event.EventID)
			c.ackAsync(tenantID, event.EventID, true, "")
			return nil
		}
		c.ackAsync(tenantID, event.EventID, false, err.Error())
		return err
	}
	c.markDuplicate(ctx, event.EventID)

	if err := c.updateDailySummary(ctx, tenantID, event.TerminalRef, event.BusinessDate, txnType, event.Transaction.Totals); err != nil {
		logger.Warn("daily summary projection update failed", zap.String("eventId", event.EventID), zap.Error(err))
	}

	c.ackAsync(tenantID, event.EventID, true, "")
	return nil
}

// HandleCashEvent consumes one published CashEvent.
func (c *Consumer) HandleCashEvent(ctx context.Context, tenantID string, event model.CashEvent) error {
	if event.EventID == "" {
		return nil
	}
	if marked, err := c.statestore.IsMarked(ctx, event.EventID); err != nil {
		return err
	} else if marked {
		return nil
	}

	txnType := deriveCashTypeCode(event.Amount)
	entry := model.JournalEntry{
		Ambient:         model.Ambient{CreatedAt: event.PublishedAt, UpdatedAt: event.PublishedAt, EntityTag: 1},
		EventID:         event.EventID,
		TransactionType: txnType,
		TerminalRef:     event.TerminalRef,
		BusinessDate:    event.BusinessDate,
		OpenCounter:     event.OpenCounter,
		BusinessCounter: event.BusinessCounter,
	}

	writes := []store.Write{
		{Collection: dedupCollection, Key: event.EventID, Value: dedupMarker{EventID: event.EventID, MarkedAt: event.PublishedAt}},
		{Collection: cashLogCollection, Key: event.EventID, Value: event},
		{Collection: journalCollection, Key: event.EventID, Value: entry},
	}
	if err := c.store.TxInsertMany(ctx, tenantID, writes); err != nil {
		if errors.Is(err, store.ErrConflict) {
			c.markDuplicate(ctx, event.EventID)
			c.ackAsync(tenantID, event.EventID, true, "")
			return nil
		}
		c.ackAsync(tenantID, event.EventID, false, err.Error())
		return err
	}
	c.markDuplicate(ctx, event.EventID)

	c.ackAsync(tenantID, event.EventID, true, "")
	return nil
}

// HandleSessionEvent consumes one published SessionEvent (terminal
// open/close) and updates the open/close completeness status C11 gates
// daily reports on.
func (c *Consumer) HandleSessionEvent(ctx context.Context, tenantID string, event model.SessionEvent) error {
	if event.EventID == "" {
		return nil
	}
	if marked, err := c.statestore.IsMarked(ctx, event.EventID); err != nil {
		return err
	} else if marked {
		return nil
	}

	txnType := deriveSessionTypeCode(event.Operation)
	entry := model.JournalEntry{
		Ambient:         model.Ambient{CreatedAt: event.PublishedAt, UpdatedAt: event.PublishedAt, EntityTag: 1},
		EventID:         event.EventID,
		TransactionType: txnType,
		TerminalRef:     event.TerminalRef,
		BusinessDate:    event.BusinessDate,
		OpenCounter:     event.OpenCounter,
	}

	writes := []store.Write{
		{Collection: dedupCollection, Key: event.EventID, Value: dedupMarker{EventID: event.EventID, MarkedAt: event.PublishedAt}},
		{Collection: openCloseLogCollection, Key: event.EventID, Value: event},
		{Collection: journalCollection, Key: event.EventID, Value: entry},
	}
	if err := c.store.TxInsertMany(ctx, tenantID, writes); err != nil {
		if errors.Is(err, store.ErrConflict) {
			c.markDuplicate(ctx, event.EventID)
			c.ackAsync(tenantID, event.EventID, true, "")
			return nil
		}
		c.ackAsync(tenantID, event.EventID, false, err.Error())
		return err
	}
	c.markDuplicate(ctx, event.EventID)

	if err := c.updateOpenCloseStatus(ctx, tenantID, event.TerminalRef, event.BusinessDate, event.Operation); err != nil {
		logger.Warn("open/close status update failed", zap.String("eventId", event.EventID), zap.Error(err))
	}

	c.ackAsync(tenantID, event.EventID, true, "")
	return nil
}

// ackAsync acknowledges best-effort on a detached context, per §4.6 step 4
// ("Asynchronously (best-effort) acknowledge"). The request that triggered
// consumption does not wait on it.
func (c *Consumer) ackAsync(tenantID, eventID string, success bool, message string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.ledger.Ack(ctx, tenantID, eventID, constants.SubscriberJournal, success, message); err != nil {
			logger.Warn("journal acknowledgement failed", zap.String("eventId", eventID), zap.Error(err))
		}
	}()
}

// markDuplicate best-effort warms the statestore fast pre-check after the
// authoritative document-store marker has committed (or was found already
// committed by a prior attempt). A failure here only costs a wasted
// document-store round trip on the next redelivery, never correctness.
func (c *Consumer) markDuplicate(ctx context.Context, eventID string) {
	if err := c.statestore.Mark(ctx, eventID, c.dedupTTL); err != nil {
		logger.Warn("dedup fast-check mark failed", zap.String("eventId", eventID), zap.Error(err))
	}
}

// deriveTransactionTypeCode derives the journal's transaction-type code
// from the persisted transaction's own type and cancellation flag (§6.3:
// "normal sale 101 becomes -101 if the source is cancelled").
func deriveTransactionTypeCode(t model.Transaction) int {
	if t.TransactionType == constants.TxnTypeNormalSale && t.IsCancelled {
		return constants.TxnTypeCancelledSale
	}
	return t.TransactionType
}

// deriveCashTypeCode derives 401/402 from the cash movement's sign (§6.3).
func deriveCashTypeCode(amount decimal.Decimal) int {
	if amount.IsNegative() {
		return constants.TxnTypeCashOut
	}
	return constants.TxnTypeCashIn
}

// deriveSessionTypeCode derives 301/302 from the session operation (§6.3).
func deriveSessionTypeCode(operation string) int {
	if operation == "close" {
		return constants.TxnTypeTerminalClose
	}
	return constants.TxnTypeTerminalOpen
}

// updateDailySummary folds one transaction's factor-weighted totals into
// the running per-(terminal,businessDate) summary, applying the same
// canonical net-sales formula (§4.6) the report aggregator (C11) applies
// across a full scan, so the two stay consistent.
func (c *Consumer) updateDailySummary(ctx context.Context, tenantID string, ref model.TerminalRef, businessDate string, txnType int, totals model.Totals) error {
	factor := constants.ReportFactor(txnType)
	if factor == 0 {
		return nil
	}

	key := businessDate + "-" + ref.Key()
	return store.RetryCAS(ctx, func() error {
		var summary DailySummary
		tag, err := c.store.Get(ctx, tenantID, dailySummaryCollection, key, &summary)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
			now := time.Now().UTC()
			summary = DailySummary{
				Ambient:      model.Ambient{CreatedAt: now, UpdatedAt: now, EntityTag: 1},
				TerminalRef:  ref,
				BusinessDate: businessDate,
			}
			applyFactor(&summary, factor, totals)
			summary.TransactionCount = 1
			return c.store.Insert(ctx, tenantID, dailySummaryCollection, key, summary)
		}
		applyFactor(&summary, factor, totals)
		summary.TransactionCount++
		summary.UpdatedAt = time.Now().UTC()
		return c.store.CAS(ctx, tenantID, dailySummaryCollection, key, tag, summary)
	})
}

// applyFactor folds one transaction's totals into summary using the
// canonical formula netSales = grossSales - returns - lineDiscounts -
// subtotalDiscounts - totalTax (§4.6), where grossSales/returns are
// tax-inclusive and every other component is weighted by the signed
// transaction-type factor, so a sale fully cancelled by its return nets to
// zero in net sales and in every weighted component, while grossSales and
// returns each keep the tax-inclusive amount.
func applyFactor(summary *DailySummary, factor int, totals model.Totals) {
	weighted := totals.LineDiscountTotal
	subtotalWeighted := totals.SubtotalDiscountTotal
	taxWeighted := totals.TotalTax
	if factor < 0 {
		weighted = weighted.Neg()
		subtotalWeighted = subtotalWeighted.Neg()
		taxWeighted = taxWeighted.Neg()
	}

	if factor > 0 {
		summary.GrossSales = summary.GrossSales.Add(totals.TotalWithTax)
	} else {
		summary.Returns = summary.Returns.Add(totals.TotalWithTax)
	}
	summary.LineDiscountTotal = summary.LineDiscountTotal.Add(weighted)
	summary.SubtotalDiscountTotal = summary.SubtotalDiscountTotal.Add(subtotalWeighted)
	summary.TotalTax = summary.TotalTax.Add(taxWeighted)
	summary.NetSales = summary.GrossSales.
		Sub(summary.Returns).
		Sub(summary.LineDiscountTotal).
		Sub(summary.SubtotalDiscountTotal).
		Sub(summary.TotalTax)
}

// updateOpenCloseStatus records that ref opened or closed for businessDate.
// Keyed businessDate-first so ListOpenCloseStatus can prefix-scan every
// terminal's status for a given date in one query.
func (c *Consumer) updateOpenCloseStatus(ctx context.Context, tenantID string, ref model.TerminalRef, businessDate, operation string) error {
	key := businessDate + "-" + ref.Key()
	return store.RetryCAS(ctx, func() error {
		var status OpenCloseStatus
		tag, err := c.store.Get(ctx, tenantID, openCloseStatusCollection, key, &status)
		notFound := errors.Is(err, store.ErrNotFound)
		if err != nil && !notFound {
			return err
		}
		if notFound {
			now := time.Now().UTC()
			status = OpenCloseStatus{
				Ambient:      model.Ambient{CreatedAt: now, UpdatedAt: now, EntityTag: 1},
				TerminalRef:  ref,
				BusinessDate: businessDate,
			}
		}
		if operation == "close" {
			status.Closed = true
		} else {
			status.Opened = true
			status.Closed = false
		}
		status.UpdatedAt = time.Now().UTC()
		if notFound {
			return c.store.Insert(ctx, tenantID, openCloseStatusCollection, key, status)
		}
		return c.store.CAS(ctx, tenantID, openCloseStatusCollection, key, tag, status)
	})
}

// ListOpenCloseStatus fetches every terminal's open/close status for
// businessDate, used by the report aggregator (C11) to verify completeness
// before a daily report runs.
func ListOpenCloseStatus(ctx context.Context, s queryStore, tenantID, businessDate string) ([]OpenCloseStatus, error) {
	var statuses []OpenCloseStatus
	err := s.Query(ctx, tenantID, openCloseStatusCollection, businessDate+"-", func(body []byte) error {
		var st OpenCloseStatus
		if err := json.Unmarshal(body, &st); err != nil {
			return apperr.Internal(apperr.Code(40, 1, 1), "could not decode open/close status", err)
		}
		statuses = append(statuses, st)
		return nil
	})
	return statuses, err
}

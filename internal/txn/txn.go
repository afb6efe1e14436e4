// Package txn implements the transaction service (C9, §4.4): assigning
// transaction and receipt numbers, rendering receipt/journal text,
// persisting the finalized transaction, and triggering publish. Grounded
// on the teacher's cmd/webhook-processor/main.go checkAndLogWebhookEvent
// idempotent-write shape, applied here to the monotonic-counter CAS
// instead of a dedup check.
package txn

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"poscore/internal/apperr"
	"poscore/internal/constants"
	"poscore/internal/formatter"
	"poscore/internal/model"
	"poscore/internal/store"
)

const collection = "transactions"

// documentStore is the narrow slice of *store.Store the transaction
// service needs. Tests substitute a hand-written fake instead of a real
// connection, mirroring the teacher's gomock-over-Querier pattern one
// layer down (here a plain interface stands in for the generated mock,
// since mockgen cannot run in this environment).
type documentStore interface {
	Get(ctx context.Context, tenantID, collection, key string, out any) (int64, error)
	Insert(ctx context.Context, tenantID, collection, key string, value any) error
	CAS(ctx context.Context, tenantID, collection, key string, expectedTag int64, value any) error
	NextCounter(ctx context.Context, tenantID, counterName string) (int, error)
}

// eventLedger is the narrow slice of *ledger.Ledger the transaction
// service needs.
type eventLedger interface {
	Publish(ctx context.Context, tenantID, topic, eventID string, payload any, attrs map[string]string) error
}

// Service assembles and persists transactions, and triggers their
// publication through the event-delivery ledger.
type Service struct {
	store         documentStore
	ledger        eventLedger
	formatters    *formatter.Registry
	formatterCode string
}

// New builds a Service. s and l need only satisfy documentStore/eventLedger,
// so callers pass the concrete *store.Store/*ledger.Ledger in production and
// hand-written fakes in tests. formatterCode selects which registered
// formatter renders receipt/journal text (§4.4: "same plugin mechanism as
// §4.3").
func New(s documentStore, l eventLedger, formatters *formatter.Registry, formatterCode string) *Service {
	return &Service{store: s, ledger: l, formatters: formatters, formatterCode: formatterCode}
}

func key(ref model.TerminalRef, businessDate string, transactionNo int) string {
	return fmt.Sprintf("%s-%d", ref.DateKey(businessDate), transactionNo)
}

// Finalize assigns transactionNo/receiptNo, renders receipt/journal text,
// persists the transaction, and enqueues a TransactionEvent (§4.4 steps
// 1-5). The handlers pass constants.TxnTypeNormalSale as txnType, also when
// finalizing a cart that resolved to zero due (a zero-payment normal sale).
func (s *Service) Finalize(ctx context.Context, tenantID string, cart *model.Cart, txnType int) (*model.Transaction, error) {
	transactionNo, err := s.store.NextCounter(ctx, tenantID, cart.TerminalRef.DateKey(cart.BusinessDate)+"-txn")
	if err != nil {
		return nil, err
	}
	receiptNo, err := s.store.NextCounter(ctx, tenantID, cart.TerminalRef.DateKey(cart.BusinessDate)+"-receipt")
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	t := model.Transaction{
		Ambient:           model.Ambient{CreatedAt: now, UpdatedAt: now, EntityTag: 1},
		TransactionNo:     transactionNo,
		TransactionType:   txnType,
		TerminalRef:       cart.TerminalRef,
		BusinessDate:      cart.BusinessDate,
		OpenCounter:       cart.OpenCounter,
		BusinessCounter:   cart.BusinessCounter,
		ReceiptNo:         receiptNo,
		CartID:            cart.CartID,
		LineItems:         cart.LineItems,
		SubtotalDiscounts: cart.SubtotalDiscounts,
		Payments:          cart.Payments,
		StaffRef:          cart.StaffRef,
		Totals:            cart.Totals,
	}

	fmtr, err := s.formatters.Resolve(s.formatterCode)
	if err != nil {
		return nil, err
	}
	t.ReceiptText = fmtr.FormatReceipt(t)
	t.JournalText = fmtr.FormatJournal(t)

	if err := s.store.Insert(ctx, tenantID, collection, key(t.TerminalRef, t.BusinessDate, t.TransactionNo), t); err != nil {
		return nil, err
	}

	cart.TransactionNo = transactionNo
	cart.ReceiptNo = receiptNo

	event := model.TransactionEvent{
		EventEnvelope: model.EventEnvelope{
			EventID:      uuid.NewString(),
			TerminalRef:  t.TerminalRef,
			BusinessDate: t.BusinessDate,
			OpenCounter:  t.OpenCounter,
			PublishedAt:  now,
		},
		Transaction: t,
	}
	if err := s.ledger.Publish(ctx, tenantID, constants.TopicTranLog, event.EventID, event, map[string]string{
		"TenantId": tenantID, "EventType": "transaction",
	}); err != nil {
		return nil, err
	}

	return &t, nil
}

// VoidOrReturn creates a new transaction of newType (VoidSale, VoidReturn,
// or ReturnSale) referencing originalTxnNo, and flips the original's
// isCancelled flag via a CAS that fails if already set (§4.4).
func (s *Service) VoidOrReturn(ctx context.Context, tenantID string, ref model.TerminalRef, businessDate string, originalTxnNo int, newType int, staffRef string) (*model.Transaction, error) {
	originalKey := key(ref, businessDate, originalTxnNo)

	var original model.Transaction
	err := store.RetryCAS(ctx, func() error {
		tag, err := s.store.Get(ctx, tenantID, collection, originalKey, &original)
		if err != nil {
			return err
		}
		if original.IsCancelled {
			return apperr.Conflict(apperr.Code(90, 1, 1), "this transaction was already voided or returned",
				"transaction %d is already cancelled", originalTxnNo)
		}
		original.IsCancelled = true
		return s.store.CAS(ctx, tenantID, collection, originalKey, tag, original)
	})
	if err != nil {
		return nil, err
	}

	transactionNo, err := s.store.NextCounter(ctx, tenantID, ref.DateKey(businessDate)+"-txn")
	if err != nil {
		return nil, err
	}
	receiptNo, err := s.store.NextCounter(ctx, tenantID, ref.DateKey(businessDate)+"-receipt")
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	t := model.Transaction{
		Ambient:                 model.Ambient{CreatedAt: now, UpdatedAt: now, EntityTag: 1},
		TransactionNo:           transactionNo,
		TransactionType:         newType,
		TerminalRef:             ref,
		BusinessDate:            businessDate,
		OpenCounter:             original.OpenCounter,
		BusinessCounter:         original.BusinessCounter,
		ReceiptNo:               receiptNo,
		CartID:                  original.CartID,
		LineItems:               original.LineItems,
		SubtotalDiscounts:       original.SubtotalDiscounts,
		Payments:                original.Payments,
		StaffRef:                staffRef,
		Totals:                  original.Totals,
		ReferencesTransactionNo: originalTxnNo,
	}

	fmtr, err := s.formatters.Resolve(s.formatterCode)
	if err != nil {
		return nil, err
	}
	t.ReceiptText = fmtr.FormatReceipt(t)
	t.JournalText = fmtr.FormatJournal(t)

	if err := s.store.Insert(ctx, tenantID, collection, key(t.TerminalRef, t.BusinessDate, t.TransactionNo), t); err != nil {
		return nil, err
	}

	event := model.TransactionEvent{
		EventEnvelope: model.EventEnvelope{
			EventID:      uuid.NewString(),
			TerminalRef:  t.TerminalRef,
			BusinessDate: t.BusinessDate,
			OpenCounter:  t.OpenCounter,
			PublishedAt:  now,
		},
		Transaction: t,
	}
	if err := s.ledger.Publish(ctx, tenantID, constants.TopicTranLog, event.EventID, event, map[string]string{
		"TenantId": tenantID, "EventType": "transaction",
	}); err != nil {
		return nil, err
	}

	return &t, nil
}

// Get fetches a persisted transaction by terminal/businessDate/number.
func (s *Service) Get(ctx context.Context, tenantID string, ref model.TerminalRef, businessDate string, transactionNo int) (*model.Transaction, error) {
	var t model.Transaction
	if _, err := s.store.Get(ctx, tenantID, collection, key(ref, businessDate, transactionNo), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

package txn

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poscore/internal/apperr"
	"poscore/internal/constants"
	"poscore/internal/formatter"
	"poscore/internal/model"
	"poscore/internal/store"
)

// fakeStore is a hand-written in-memory stand-in for *store.Store, playing
// the same role the teacher's gomock-generated Querier mocks play one
// layer down the stack.
type fakeStore struct {
	docs     map[string]fakeDoc
	counters map[string]int
}

type fakeDoc struct {
	tag  int64
	body []byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[string]fakeDoc{}, counters: map[string]int{}}
}

func (f *fakeStore) docKey(tenantID, collection, key string) string {
	return tenantID + "|" + collection + "|" + key
}

func (f *fakeStore) Get(ctx context.Context, tenantID, collection, key string, out any) (int64, error) {
	d, ok := f.docs[f.docKey(tenantID, collection, key)]
	if !ok {
		return 0, store.ErrNotFound
	}
	return d.tag, json.Unmarshal(d.body, out)
}

func (f *fakeStore) Insert(ctx context.Context, tenantID, collection, key string, value any) error {
	k := f.docKey(tenantID, collection, key)
	if _, ok := f.docs[k]; ok {
		return store.ErrConflict
	}
	body, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.docs[k] = fakeDoc{tag: 1, body: body}
	return nil
}

func (f *fakeStore) CAS(ctx context.Context, tenantID, collection, key string, expectedTag int64, value any) error {
	k := f.docKey(tenantID, collection, key)
	d, ok := f.docs[k]
	if !ok || d.tag != expectedTag {
		return store.ErrConflict
	}
	body, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.docs[k] = fakeDoc{tag: d.tag + 1, body: body}
	return nil
}

func (f *fakeStore) NextCounter(ctx context.Context, tenantID, name string) (int, error) {
	k := tenantID + "|" + name
	f.counters[k]++
	return f.counters[k], nil
}

// fakeLedger records published events instead of reaching a real sidecar.
type fakeLedger struct {
	published []publishedEvent
}

type publishedEvent struct {
	topic   string
	eventID string
	payload any
}

func (f *fakeLedger) Publish(ctx context.Context, tenantID, topic, eventID string, payload any, attrs map[string]string) error {
	f.published = append(f.published, publishedEvent{topic: topic, eventID: eventID, payload: payload})
	return nil
}

func newTestService() (*Service, *fakeStore, *fakeLedger) {
	registry := formatter.NewRegistry()
	registry.RegisterDefaults()
	fs := newFakeStore()
	fl := &fakeLedger{}
	return &Service{store: fs, ledger: fl, formatters: registry, formatterCode: "default"}, fs, fl
}

func testCart() *model.Cart {
	return &model.Cart{
		CartID:      "cart-1",
		TerminalRef: model.TerminalRef{TenantID: "t1", StoreCode: "s1", TerminalNo: "1"},
		BusinessDate: "20260101",
		LineItems: []model.LineItem{
			{LineNo: 1, ItemCode: "SKU1", Description: "Widget", UnitPrice: decimal.NewFromInt(3000), Quantity: decimal.NewFromInt(1), Amount: decimal.NewFromInt(3000), TaxCode: "STD"},
		},
		Totals: model.Totals{TotalWithTax: decimal.NewFromInt(3300), TotalTax: decimal.NewFromInt(300)},
	}
}

func TestFinalize_AssignsNumbersPersistsAndPublishes(t *testing.T) {
	svc, fs, fl := newTestService()
	cart := testCart()

	txn, err := svc.Finalize(context.Background(), "t1", cart, constants.TxnTypeNormalSale)
	require.NoError(t, err)

	assert.Equal(t, 1, txn.TransactionNo)
	assert.Equal(t, 1, txn.ReceiptNo)
	assert.Equal(t, 1, cart.TransactionNo)
	assert.NotEmpty(t, txn.ReceiptText)
	assert.NotEmpty(t, txn.JournalText)
	require.Len(t, fl.published, 1)
	assert.Equal(t, constants.TopicTranLog, fl.published[0].topic)

	_, ok := fs.docs[fs.docKey("t1", collection, key(txn.TerminalRef, txn.BusinessDate, txn.TransactionNo))]
	assert.True(t, ok)
}

func TestFinalize_SecondCartGetsNextMonotonicNumber(t *testing.T) {
	svc, _, _ := newTestService()
	first, err := svc.Finalize(context.Background(), "t1", testCart(), constants.TxnTypeNormalSale)
	require.NoError(t, err)
	second, err := svc.Finalize(context.Background(), "t1", testCart(), constants.TxnTypeNormalSale)
	require.NoError(t, err)

	assert.Equal(t, first.TransactionNo+1, second.TransactionNo)
}

func TestFinalize_UnknownFormatterErrors(t *testing.T) {
	svc, _, _ := newTestService()
	svc.formatterCode = "does-not-exist"

	_, err := svc.Finalize(context.Background(), "t1", testCart(), constants.TxnTypeNormalSale)
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindValidation, appErr.Kind)
}

func TestVoidOrReturn_CreatesNewTransactionReferencingOriginal(t *testing.T) {
	svc, _, fl := newTestService()
	original, err := svc.Finalize(context.Background(), "t1", testCart(), constants.TxnTypeNormalSale)
	require.NoError(t, err)

	voided, err := svc.VoidOrReturn(context.Background(), "t1", original.TerminalRef, original.BusinessDate, original.TransactionNo, constants.TxnTypeVoidSale, "staff-1")
	require.NoError(t, err)

	assert.Equal(t, constants.TxnTypeVoidSale, voided.TransactionType)
	assert.Equal(t, original.TransactionNo, voided.ReferencesTransactionNo)
	assert.NotEqual(t, original.TransactionNo, voided.TransactionNo)
	assert.Equal(t, "staff-1", voided.StaffRef)
	require.Len(t, fl.published, 2)

	refetched, err := svc.Get(context.Background(), "t1", original.TerminalRef, original.BusinessDate, original.TransactionNo)
	require.NoError(t, err)
	assert.True(t, refetched.IsCancelled)
}

func TestVoidOrReturn_AlreadyCancelledRejected(t *testing.T) {
	svc, _, _ := newTestService()
	original, err := svc.Finalize(context.Background(), "t1", testCart(), constants.TxnTypeNormalSale)
	require.NoError(t, err)

	_, err = svc.VoidOrReturn(context.Background(), "t1", original.TerminalRef, original.BusinessDate, original.TransactionNo, constants.TxnTypeVoidSale, "staff-1")
	require.NoError(t, err)

	_, err = svc.VoidOrReturn(context.Background(), "t1", original.TerminalRef, original.BusinessDate, original.TransactionNo, constants.TxnTypeVoidSale, "staff-1")
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindConflict, appErr.Kind)
}

func TestGet_NotFoundReturnsNotFoundKind(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.Get(context.Background(), "t1", model.TerminalRef{TenantID: "t1", StoreCode: "s1", TerminalNo: "1"}, "20260101", 999)
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindNotFound, appErr.Kind)
}

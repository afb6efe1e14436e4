package report

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poscore/internal/constants"
	"poscore/internal/journal"
	"poscore/internal/model"
	"poscore/internal/store"
)

func ref(terminalNo string) model.TerminalRef {
	return model.TerminalRef{TenantID: "t1", StoreCode: "s1", TerminalNo: terminalNo}
}

func TestAllClosed_TrueOnlyWhenEveryScopedTerminalClosed(t *testing.T) {
	scope := []model.TerminalRef{ref("1"), ref("2")}
	statuses := []journal.OpenCloseStatus{
		{TerminalRef: ref("1"), Closed: true},
		{TerminalRef: ref("2"), Closed: true},
	}
	assert.True(t, allClosed(scope, statuses))
}

func TestAllClosed_FalseWhenOneTerminalStillOpen(t *testing.T) {
	scope := []model.TerminalRef{ref("1"), ref("2")}
	statuses := []journal.OpenCloseStatus{
		{TerminalRef: ref("1"), Closed: true},
		{TerminalRef: ref("2"), Closed: false},
	}
	assert.False(t, allClosed(scope, statuses))
}

func TestAllClosed_FalseWhenTerminalNeverReportedStatus(t *testing.T) {
	scope := []model.TerminalRef{ref("1"), ref("2")}
	statuses := []journal.OpenCloseStatus{
		{TerminalRef: ref("1"), Closed: true},
	}
	assert.False(t, allClosed(scope, statuses))
}

func TestMerge_SumsTotalsAndPerCodeBreakdowns(t *testing.T) {
	a := newReport("t1", nil, "20260101")
	a.GrossSales = decimal.NewFromInt(1000)
	a.Payments["01"] = decimal.NewFromInt(1000)

	b := newReport("t1", nil, "20260101")
	b.GrossSales = decimal.NewFromInt(500)
	b.Payments["01"] = decimal.NewFromInt(300)
	b.Payments["11"] = decimal.NewFromInt(200)

	merged := merge(a, b)
	assert.True(t, merged.GrossSales.Equal(decimal.NewFromInt(1500)))
	assert.True(t, merged.Payments["01"].Equal(decimal.NewFromInt(1300)))
	assert.True(t, merged.Payments["11"].Equal(decimal.NewFromInt(200)))
}

// fakeStore is a hand-written in-memory stand-in for *store.Store, scoped
// down to the Get/Query pair the report engine needs.
type fakeStore struct {
	docs map[string]map[string][]byte // "tenantId|collection" -> key -> body
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[string]map[string][]byte{}}
}

func (f *fakeStore) bucket(tenantID, collection string) map[string][]byte {
	k := tenantID + "|" + collection
	b := f.docs[k]
	if b == nil {
		b = map[string][]byte{}
		f.docs[k] = b
	}
	return b
}

func (f *fakeStore) put(tenantID, collection, key string, value any) {
	body, err := json.Marshal(value)
	if err != nil {
		panic(err)
	}
	f.bucket(tenantID, collection)[key] = body
}

func (f *fakeStore) Get(ctx context.Context, tenantID, collection, key string, out any) (int64, error) {
	body, ok := f.bucket(tenantID, collection)[key]
	if !ok {
		return 0, store.ErrNotFound
	}
	return 1, json.Unmarshal(body, out)
}

func (f *fakeStore) Query(ctx context.Context, tenantID, collection, keyPrefix string, decode func(body []byte) error) error {
	bucket := f.bucket(tenantID, collection)
	keys := make([]string, 0, len(bucket))
	for k := range bucket {
		if strings.HasPrefix(k, keyPrefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := decode(bucket[k]); err != nil {
			return err
		}
	}
	return nil
}

func sampleTransactionForAggregate(txnType int, totalWithTax int64) model.Transaction {
	return model.Transaction{
		TransactionType: txnType,
		LineItems: []model.LineItem{
			{ItemCode: "A", Taxes: []model.TaxAllocation{{TaxCode: "STD", TaxAmount: decimal.NewFromInt(100)}}},
			{ItemCode: "B", Taxes: []model.TaxAllocation{
				{TaxCode: "STD", TaxAmount: decimal.NewFromInt(50)},
				{TaxCode: "LUX", TaxAmount: decimal.NewFromInt(20)},
			}},
		},
		Payments: []model.PaymentEntry{
			{Code: "cash", Amount: decimal.NewFromInt(1000)},
			{Code: "card", Amount: decimal.NewFromInt(700), Change: decimal.NewFromInt(50)},
		},
		Totals: model.Totals{TotalWithTax: decimal.NewFromInt(totalWithTax), TotalTax: decimal.NewFromInt(170)},
	}
}

// S3: a transaction carrying a 2-entry line-item array (each with its own
// tax array) and a 2-entry payment array must fold taxes and payments each
// in their own independent pass; neither total may end up multiplied by the
// other array's cardinality.
func TestAggregate_PaymentsAndTaxesFoldIndependently(t *testing.T) {
	fs := newFakeStore()
	fs.put("t1", transactionsCollection, "20260101-0001", sampleTransactionForAggregate(constants.TxnTypeNormalSale, 1650))

	e := &Engine{store: fs}
	r, err := e.aggregate(context.Background(), "t1", nil, "20260101", "20260101")
	require.NoError(t, err)

	assert.Equal(t, 1, r.TransactionCount)
	assert.True(t, r.TaxesByCode["STD"].Equal(decimal.NewFromInt(150)), "got %s", r.TaxesByCode["STD"])
	assert.True(t, r.TaxesByCode["LUX"].Equal(decimal.NewFromInt(20)), "got %s", r.TaxesByCode["LUX"])
	assert.True(t, r.Payments["cash"].Equal(decimal.NewFromInt(1000)), "got %s", r.Payments["cash"])
	assert.True(t, r.Payments["card"].Equal(decimal.NewFromInt(650)), "got %s", r.Payments["card"])
}

// S1: a sale and its full return, aggregated together, net to zero in net
// sales and in the per-code tax and payment maps.
func TestAggregate_SaleFullyCancelledByReturnNetsToZero(t *testing.T) {
	fs := newFakeStore()
	fs.put("t1", transactionsCollection, "20260101-0001", sampleTransactionForAggregate(constants.TxnTypeNormalSale, 1650))
	fs.put("t1", transactionsCollection, "20260101-0002", sampleTransactionForAggregate(constants.TxnTypeReturnSale, 1650))

	e := &Engine{store: fs}
	r, err := e.aggregate(context.Background(), "t1", nil, "20260101", "20260101")
	require.NoError(t, err)

	assert.Equal(t, 2, r.TransactionCount)
	assert.True(t, r.NetSales.IsZero())
	assert.True(t, r.TaxesByCode["STD"].IsZero())
	assert.True(t, r.Payments["cash"].IsZero())
}

func TestFlash_FallsBackToFullScanWhenNoSummaryExists(t *testing.T) {
	fs := newFakeStore()
	termRef := model.TerminalRef{TenantID: "t1", StoreCode: "s1", TerminalNo: "1"}
	fs.put("t1", transactionsCollection, termRef.DateKey("20260101")+"-0001", sampleTransactionForAggregate(constants.TxnTypeNormalSale, 1650))

	e := &Engine{store: fs}
	r, err := e.Flash(context.Background(), "t1", termRef, "20260101")
	require.NoError(t, err)
	assert.Equal(t, 1, r.TransactionCount)
}

func TestDaily_RejectsWhenNotEveryTerminalHasClosed(t *testing.T) {
	fs := newFakeStore()
	scope := []model.TerminalRef{ref("1"), ref("2")}

	e := &Engine{store: fs}
	_, err := e.Daily(context.Background(), "t1", scope, "20260101")
	require.Error(t, err)
}

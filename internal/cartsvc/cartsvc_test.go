package cartsvc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poscore/internal/apperr"
	"poscore/internal/cart"
	"poscore/internal/constants"
	"poscore/internal/model"
	"poscore/internal/payment"
	"poscore/internal/pricing"
	"poscore/internal/store"
)

// fakeStore is a hand-written in-memory stand-in for *store.Store, the same
// role played in internal/txn's test suite.
type fakeStore struct {
	docs map[string]fakeDoc
}

type fakeDoc struct {
	tag  int64
	body []byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: map[string]fakeDoc{}}
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

func taxLookup(code string) (pricing.TaxInfo, error) {
	return pricing.TaxInfo{Kind: constants.TaxKindExternal, Rate: decimal.NewFromFloat(0.1)}, nil
}

// fakeCartCache is a hand-written in-memory stand-in for *statestore.Store,
// scoped to the cartCache interface.
type fakeCartCache struct {
	entries map[string][]byte
}

func newFakeCartCache() *fakeCartCache {
	return &fakeCartCache{entries: map[string][]byte{}}
}

func (f *fakeCartCache) PutCart(ctx context.Context, cartID string, value any, ttl time.Duration) error {
	body, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.entries[cartID] = body
	return nil
}

func (f *fakeCartCache) GetCart(ctx context.Context, cartID string, out any) (bool, error) {
	body, ok := f.entries[cartID]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(body, out)
}

func (f *fakeCartCache) EvictCart(ctx context.Context, cartID string) error {
	delete(f.entries, cartID)
	return nil
}

func newTestService() (*Service, *fakeStore) {
	registry := payment.NewRegistry()
	registry.RegisterDefaults()
	machine := cart.New(pricing.New(constants.RoundingHalfUp, 2), payment.New(registry), taxLookup)
	fs := newFakeStore()
	return &Service{store: fs, cache: newFakeCartCache(), cacheTTL: time.Hour, machine: machine}, fs
}

func testRef() model.TerminalRef {
	return model.TerminalRef{TenantID: "t1", StoreCode: "s1", TerminalNo: "1"}
}

func TestCreate_PersistsCartInIdleState(t *testing.T) {
	svc, _ := newTestService()
	c, err := svc.Create(context.Background(), "t1", testRef(), "20260101", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, constants.CartStateIdle, c.State)

	fetched, err := svc.Get(context.Background(), "t1", c.CartID)
	require.NoError(t, err)
	assert.Equal(t, c.CartID, fetched.CartID)
}

func TestAddLineItem_PersistsAcrossCalls(t *testing.T) {
	svc, _ := newTestService()
	c, err := svc.Create(context.Background(), "t1", testRef(), "20260101", 1, 0)
	require.NoError(t, err)

	_, err = svc.AddLineItem(context.Background(), "t1", c.CartID, "SKU1", "Widget", decimal.NewFromInt(1000), decimal.NewFromInt(2), "STD")
	require.NoError(t, err)

	fetched, err := svc.Get(context.Background(), "t1", c.CartID)
	require.NoError(t, err)
	assert.Equal(t, constants.CartStateEnteringItem, fetched.State)
	require.Len(t, fetched.LineItems, 1)
	assert.Equal(t, "SKU1", fetched.LineItems[0].ItemCode)
}

func TestSubtotal_TransitionsToPayingWhenDueIsPositive(t *testing.T) {
	svc, _ := newTestService()
	c, err := svc.Create(context.Background(), "t1", testRef(), "20260101", 1, 0)
	require.NoError(t, err)
	_, err = svc.AddLineItem(context.Background(), "t1", c.CartID, "SKU1", "Widget", decimal.NewFromInt(1000), decimal.NewFromInt(1), "STD")
	require.NoError(t, err)

	result, zeroDue, err := svc.Subtotal(context.Background(), "t1", c.CartID)
	require.NoError(t, err)
	assert.False(t, zeroDue)
	assert.Equal(t, constants.CartStatePaying, result.State)
}

func TestAddPayment_RejectedBeforeSubtotal(t *testing.T) {
	svc, _ := newTestService()
	c, err := svc.Create(context.Background(), "t1", testRef(), "20260101", 1, 0)
	require.NoError(t, err)

	_, err = svc.AddPayment(context.Background(), "t1", c.CartID, constants.PaymentCodeCash, decimal.NewFromInt(1000))
	require.Error(t, err)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindConflict, appErr.Kind)
}

func TestCreate_WritesThroughToCache(t *testing.T) {
	svc, _ := newTestService()
	c, err := svc.Create(context.Background(), "t1", testRef(), "20260101", 1, 0)
	require.NoError(t, err)

	cache := svc.cache.(*fakeCartCache)
	var cached model.Cart
	ok, err := cache.GetCart(context.Background(), c.CartID, &cached)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, c.CartID, cached.CartID)
}

func TestGet_ServesFromCacheWithoutTouchingDocumentStore(t *testing.T) {
	svc, fs := newTestService()
	c, err := svc.Create(context.Background(), "t1", testRef(), "20260101", 1, 0)
	require.NoError(t, err)

	delete(fs.docs, fs.docKey("t1", collection, c.CartID))

	fetched, err := svc.Get(context.Background(), "t1", c.CartID)
	require.NoError(t, err)
	assert.Equal(t, c.CartID, fetched.CartID)
}

func TestMutate_EvictsCacheOnceCartReachesCompleted(t *testing.T) {
	svc, _ := newTestService()
	c, err := svc.Create(context.Background(), "t1", testRef(), "20260101", 1, 0)
	require.NoError(t, err)

	_, err = svc.AddLineItem(context.Background(), "t1", c.CartID, "SKU1", "Widget", decimal.NewFromInt(0), decimal.NewFromInt(1), "STD")
	require.NoError(t, err)

	result, zeroDue, err := svc.Subtotal(context.Background(), "t1", c.CartID)
	require.NoError(t, err)
	assert.True(t, zeroDue)
	assert.Equal(t, constants.CartStateCompleted, result.State)

	cache := svc.cache.(*fakeCartCache)
	_, ok := cache.entries[c.CartID]
	assert.False(t, ok, "cache entry should be evicted once the cart is completed")
}

func TestCancelCart_EvictsCache(t *testing.T) {
	svc, _ := newTestService()
	c, err := svc.Create(context.Background(), "t1", testRef(), "20260101", 1, 0)
	require.NoError(t, err)

	_, err = svc.CancelCart(context.Background(), "t1", c.CartID)
	require.NoError(t, err)

	cache := svc.cache.(*fakeCartCache)
	_, ok := cache.entries[c.CartID]
	assert.False(t, ok, "cache entry should be evicted once the cart is cancelled")
}

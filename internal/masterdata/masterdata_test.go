package masterdata

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poscore/internal/constants"
	"poscore/internal/store"
)

// fakeStore mirrors internal/cartsvc's hand-written in-memory stand-in.
type fakeStore struct {
	docs map[string]fakeDoc
	gets int
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
	f.gets++
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

func TestLookup_ReturnsMasterDataFromStore(t *testing.T) {
	fs := newFakeStore()
	require.NoError(t, fs.Insert(context.Background(), globalTenant, taxCodeCollection, "STD",
		TaxCodeDocument{Code: "STD", Kind: constants.TaxKindExternal, Rate: "0.10"}))

	table, err := NewTaxTable(fs, 16, time.Minute)
	require.NoError(t, err)

	info, err := table.Lookup("STD")
	require.NoError(t, err)
	assert.Equal(t, constants.TaxKindExternal, info.Kind)
	assert.Equal(t, "0.1", info.Rate.String())
}

func TestLookup_CachesAcrossCalls(t *testing.T) {
	fs := newFakeStore()
	require.NoError(t, fs.Insert(context.Background(), globalTenant, taxCodeCollection, "STD",
		TaxCodeDocument{Code: "STD", Kind: constants.TaxKindExternal, Rate: "0.10"}))

	table, err := NewTaxTable(fs, 16, time.Minute)
	require.NoError(t, err)

	_, err = table.Lookup("STD")
	require.NoError(t, err)
	_, err = table.Lookup("STD")
	require.NoError(t, err)
	assert.Equal(t, 1, fs.gets)
}

func TestPut_InvalidatesCacheImmediately(t *testing.T) {
	fs := newFakeStore()
	require.NoError(t, fs.Insert(context.Background(), globalTenant, taxCodeCollection, "STD",
		TaxCodeDocument{Code: "STD", Kind: constants.TaxKindExternal, Rate: "0.10"}))

	table, err := NewTaxTable(fs, 16, time.Minute)
	require.NoError(t, err)

	_, err = table.Lookup("STD")
	require.NoError(t, err)

	require.NoError(t, table.Put(context.Background(), TaxCodeDocument{Code: "STD", Kind: constants.TaxKindExempt, Rate: "0"}))

	info, err := table.Lookup("STD")
	require.NoError(t, err)
	assert.Equal(t, constants.TaxKindExempt, info.Kind)
}

func TestLookup_UnknownCodeReturnsNotFound(t *testing.T) {
	fs := newFakeStore()
	table, err := NewTaxTable(fs, 16, time.Minute)
	require.NoError(t, err)

	_, err = table.Lookup("MISSING")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

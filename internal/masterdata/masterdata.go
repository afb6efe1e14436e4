// Package masterdata implements C5: a read-through cache in front of the
// tax-code metadata stored in C1, using internal/cache's generic
// LRU-plus-TTL wrapper. A cache miss falls through to the document store;
// an update invalidates the entry immediately instead of waiting out the
// TTL (§5 "TTL-based expiry plus explicit invalidate-on-update hooks").
// Only tax codes are cached; payment-method, item and terminal metadata are
// not served by this package.
package masterdata

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"poscore/internal/cache"
	"poscore/internal/pricing"
	"poscore/internal/store"
)

const taxCodeCollection = "taxcodes"

// globalTenant is the store partition tax codes live under. cart.Machine's
// TaxLookup carries no tenant context (taxCode string is its only input),
// so tax-code master data is a single catalog shared across tenants rather
// than partitioned per tenant like every other collection in C1.
const globalTenant = "_global"

// TaxCodeDocument is the persisted master-data record for a tax code.
type TaxCodeDocument struct {
	Code string `json:"code"`
	Kind string `json:"kind"` // constants.TaxKind*
	Rate string `json:"rate"` // decimal string, e.g. "0.10"
}

// documentStore is the narrow slice of *store.Store masterdata needs.
type documentStore interface {
	Get(ctx context.Context, tenantID, collection, key string, out any) (int64, error)
	Insert(ctx context.Context, tenantID, collection, key string, value any) error
	CAS(ctx context.Context, tenantID, collection, key string, expectedTag int64, value any) error
}

// TaxTable serves pricing.TaxLookup out of a cached view over C1.
type TaxTable struct {
	store documentStore
	cache *cache.Cache[string, pricing.TaxInfo]
}

// NewTaxTable builds a TaxTable with entries cached for ttl and evicted
// least-recently-used past size.
func NewTaxTable(s documentStore, size int, ttl time.Duration) (*TaxTable, error) {
	t := &TaxTable{store: s}
	c, err := cache.New[string, pricing.TaxInfo](size, ttl, t.load)
	if err != nil {
		return nil, err
	}
	t.cache = c
	return t, nil
}

func (t *TaxTable) load(code string) (pricing.TaxInfo, error) {
	var doc TaxCodeDocument
	if _, err := t.store.Get(context.Background(), globalTenant, taxCodeCollection, code, &doc); err != nil {
		return pricing.TaxInfo{}, err
	}
	rate, err := decimal.NewFromString(doc.Rate)
	if err != nil {
		return pricing.TaxInfo{}, err
	}
	return pricing.TaxInfo{Kind: doc.Kind, Rate: rate}, nil
}

// Lookup satisfies pricing.TaxLookup.
func (t *TaxTable) Lookup(code string) (pricing.TaxInfo, error) {
	return t.cache.Get(code)
}

// Put registers or replaces a tax code's master-data record, invalidating
// any cached entry so the next lookup observes the new value immediately.
func (t *TaxTable) Put(ctx context.Context, doc TaxCodeDocument) error {
	var existing TaxCodeDocument
	tag, err := t.store.Get(ctx, globalTenant, taxCodeCollection, doc.Code, &existing)
	if err == store.ErrNotFound {
		if err := t.store.Insert(ctx, globalTenant, taxCodeCollection, doc.Code, doc); err != nil {
			return err
		}
		t.cache.Invalidate(doc.Code)
		return nil
	}
	if err != nil {
		return err
	}
	if err := t.store.CAS(ctx, globalTenant, taxCodeCollection, doc.Code, tag, doc); err != nil {
		return err
	}
	t.cache.Invalidate(doc.Code)
	return nil
}

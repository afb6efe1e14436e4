// Package cartsvc persists the cart state machine (C6) behind the document
// store, wrapping each cart.Machine transition in a get/mutate/CAS cycle and
// a write-through cache in front of it. Grounded on the same
// persist-then-retry shape internal/terminal uses over internal/cart's
// in-memory Machine, with the cache-first read / write-through / evict cycle
// grounded on internal/statestore's cart-cache methods.
package cartsvc

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"poscore/internal/cart"
	"poscore/internal/constants"
	"poscore/internal/model"
	"poscore/internal/store"
)

const collection = "carts"

// documentStore is the narrow slice of *store.Store cartsvc needs, letting
// tests substitute a hand-written fake instead of a real connection
// (mirrors the same narrowing internal/txn applies).
type documentStore interface {
	Get(ctx context.Context, tenantID, collection, key string, out any) (int64, error)
	Insert(ctx context.Context, tenantID, collection, key string, value any) error
	CAS(ctx context.Context, tenantID, collection, key string, expectedTag int64, value any) error
}

// cartCache is the narrow slice of *statestore.Store cartsvc needs for the
// write-through cart cache (§4.1).
type cartCache interface {
	PutCart(ctx context.Context, cartID string, value any, ttl time.Duration) error
	GetCart(ctx context.Context, cartID string, out any) (bool, error)
	EvictCart(ctx context.Context, cartID string) error
}

// Service persists carts and dispatches every mutation through the cart
// state machine before writing the result back. The document store remains
// the authoritative, CAS-guarded system of record; the cache only shortcuts
// reads and is repopulated or evicted around it.
type Service struct {
	store    documentStore
	cache    cartCache
	cacheTTL time.Duration
	machine  *cart.Machine
}

// New builds a Service wired to the document store, the cart write-through
// cache, and a cart.Machine. s and cache need only satisfy
// documentStore/cartCache, so callers pass the concrete
// *store.Store/*statestore.Store in production and hand-written fakes in
// tests.
func New(s documentStore, cache cartCache, cacheTTL time.Duration, machine *cart.Machine) *Service {
	return &Service{store: s, cache: cache, cacheTTL: cacheTTL, machine: machine}
}

// Create starts a new cart for the given terminal/businessDate/counters,
// persists it immediately in the idle state, and warms the cache (§4.1 "the
// cache on every accepted operation").
func (s *Service) Create(ctx context.Context, tenantID string, ref model.TerminalRef, businessDate string, openCounter, businessCounter int) (*model.Cart, error) {
	c := s.machine.Create(ref, businessDate, openCounter, businessCounter)
	if err := s.store.Insert(ctx, tenantID, collection, c.CartID, c); err != nil {
		return nil, err
	}
	s.writeThrough(ctx, c)
	return c, nil
}

// Get fetches a cart, cache-first with a document-store fallback that
// repopulates the cache on a miss (§4.1 "Reads are cache-first,
// document-store on miss (then repopulate)").
func (s *Service) Get(ctx context.Context, tenantID, cartID string) (*model.Cart, error) {
	var c model.Cart
	if ok, err := s.cache.GetCart(ctx, cartID, &c); err == nil && ok {
		return &c, nil
	}
	if _, err := s.store.Get(ctx, tenantID, collection, cartID, &c); err != nil {
		return nil, err
	}
	s.writeThrough(ctx, &c)
	return &c, nil
}

// mutate fetches the cart, applies fn, and CASes the result back, retrying
// on write conflicts per §6.4's backoff schedule, then writes-through to the
// cache on success.
func (s *Service) mutate(ctx context.Context, tenantID, cartID string, fn func(*model.Cart) error) (*model.Cart, error) {
	var result model.Cart
	err := store.RetryCAS(ctx, func() error {
		var c model.Cart
		tag, err := s.store.Get(ctx, tenantID, collection, cartID, &c)
		if err != nil {
			return err
		}
		if err := fn(&c); err != nil {
			return err
		}
		if err := s.store.CAS(ctx, tenantID, collection, cartID, tag, c); err != nil {
			return err
		}
		result = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.State == constants.CartStateCompleted || result.State == constants.CartStateCancelled {
		s.evict(ctx, cartID)
	} else {
		s.writeThrough(ctx, &result)
	}
	return &result, nil
}

// writeThrough best-effort warms the cache; a failure here only costs a
// wasted document-store round trip on the next read, never correctness,
// since the document store remains authoritative.
func (s *Service) writeThrough(ctx context.Context, c *model.Cart) {
	_ = s.cache.PutCart(ctx, c.CartID, c, s.cacheTTL)
}

// evict removes a cart from the cache once it has reached a terminal state
// (§3.2 "evicted from the cache after finalize").
func (s *Service) evict(ctx context.Context, cartID string) {
	_ = s.cache.EvictCart(ctx, cartID)
}

// AddLineItem appends a line item (§4.1).
func (s *Service) AddLineItem(ctx context.Context, tenantID, cartID, itemCode, description string, unitPrice, quantity decimal.Decimal, taxCode string) (*model.Cart, error) {
	return s.mutate(ctx, tenantID, cartID, func(c *model.Cart) error {
		return s.machine.AddLineItem(c, itemCode, description, unitPrice, quantity, taxCode)
	})
}

// CancelLineItem marks a line item cancelled.
func (s *Service) CancelLineItem(ctx context.Context, tenantID, cartID string, lineNo int) (*model.Cart, error) {
	return s.mutate(ctx, tenantID, cartID, func(c *model.Cart) error {
		return s.machine.CancelLineItem(c, lineNo)
	})
}

// UpdateUnitPrice overwrites a line item's unit price.
func (s *Service) UpdateUnitPrice(ctx context.Context, tenantID, cartID string, lineNo int, unitPrice decimal.Decimal) (*model.Cart, error) {
	return s.mutate(ctx, tenantID, cartID, func(c *model.Cart) error {
		return s.machine.UpdateUnitPrice(c, lineNo, unitPrice)
	})
}

// UpdateQuantity overwrites a line item's quantity.
func (s *Service) UpdateQuantity(ctx context.Context, tenantID, cartID string, lineNo int, quantity decimal.Decimal) (*model.Cart, error) {
	return s.mutate(ctx, tenantID, cartID, func(c *model.Cart) error {
		return s.machine.UpdateQuantity(c, lineNo, quantity)
	})
}

// AddLineDiscount appends a discount to a line item.
func (s *Service) AddLineDiscount(ctx context.Context, tenantID, cartID string, lineNo int, discount model.Discount) (*model.Cart, error) {
	return s.mutate(ctx, tenantID, cartID, func(c *model.Cart) error {
		return s.machine.AddLineDiscount(c, lineNo, discount)
	})
}

// AddSubtotalDiscount appends a cart-wide discount.
func (s *Service) AddSubtotalDiscount(ctx context.Context, tenantID, cartID string, discount model.Discount) (*model.Cart, error) {
	return s.mutate(ctx, tenantID, cartID, func(c *model.Cart) error {
		return s.machine.AddSubtotalDiscount(c, discount)
	})
}

// Subtotal prices the cart via C7 and reports whether it resolved to zero
// due (the caller then finalizes a zero-payment transaction through C9).
func (s *Service) Subtotal(ctx context.Context, tenantID, cartID string) (*model.Cart, bool, error) {
	var zeroDue bool
	result, err := s.mutate(ctx, tenantID, cartID, func(c *model.Cart) error {
		var err error
		zeroDue, err = s.machine.Subtotal(c)
		return err
	})
	return result, zeroDue, err
}

// AddPayment appends a payment via C8.
func (s *Service) AddPayment(ctx context.Context, tenantID, cartID, code string, amount decimal.Decimal) (*model.Cart, error) {
	return s.mutate(ctx, tenantID, cartID, func(c *model.Cart) error {
		return s.machine.AddPayment(c, code, amount)
	})
}

// ResumeItemEntry discards payments and returns to enteringItem.
func (s *Service) ResumeItemEntry(ctx context.Context, tenantID, cartID string) (*model.Cart, error) {
	return s.mutate(ctx, tenantID, cartID, func(c *model.Cart) error {
		return s.machine.ResumeItemEntry(c)
	})
}

// CancelCart moves the cart to cancelled.
func (s *Service) CancelCart(ctx context.Context, tenantID, cartID string) (*model.Cart, error) {
	return s.mutate(ctx, tenantID, cartID, func(c *model.Cart) error {
		return s.machine.CancelCart(c)
	})
}

// MarkBilled records the transactionNo/receiptNo C9 assigned once Finalize
// completes, so the persisted cart reflects its terminal state.
func (s *Service) MarkBilled(ctx context.Context, tenantID, cartID string, transactionNo, receiptNo int) (*model.Cart, error) {
	return s.mutate(ctx, tenantID, cartID, func(c *model.Cart) error {
		c.TransactionNo = transactionNo
		c.ReceiptNo = receiptNo
		return nil
	})
}

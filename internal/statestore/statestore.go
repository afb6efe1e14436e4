// Package statestore implements the state-store client (C2): a key/value
// store with TTL realized over Redis, serving both the duplicate-suppression
// ledger (dedup markers, §4.6) and the cart write-through cache (§4.1).
// Grounded on Sergey-Bar-Alfred/services/gateway, the only full example repo
// in the corpus depending on redis/go-redis/v9.
package statestore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"poscore/internal/apperr"
)

const dedupNamespace = "dedup:"
const cartNamespace = "cart:"

// Store wraps a Redis client with the narrow operations the cart engine and
// consumers need.
type Store struct {
	client *redis.Client
}

// New builds a Store over addr/db. Connection pooling is handled internally
// by go-redis (§5 "pooled client with bounded concurrency").
func New(addr string, db int) *Store {
	return &Store{client: redis.NewClient(&redis.Options{Addr: addr, DB: db})}
}

// NewFromClient wraps an already-constructed client (used by tests against
// miniredis-style fakes, or a shared client across stores).
func NewFromClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Ping checks connectivity to Redis.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return apperr.Upstream(apperr.Code(20, 1, 1), "state store unavailable", err)
	}
	return nil
}

// CheckAndMark atomically checks whether eventId has already been recorded
// in the dedup namespace and, if not, marks it. Returns true if this call
// performed the first-seen marking (i.e. the event should be processed);
// false if eventId was already present (duplicate, §4.6 step 2).
func (s *Store) CheckAndMark(ctx context.Context, eventID string, ttl time.Duration) (firstSeen bool, err error) {
	ok, err := s.client.SetNX(ctx, dedupNamespace+eventID, time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return false, apperr.Upstream(apperr.Code(20, 2, 1), "could not check duplicate", err)
	}
	return ok, nil
}

// IsMarked reports whether eventId has already been recorded, without
// writing anything (used by read-only duplicate checks).
func (s *Store) IsMarked(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, dedupNamespace+eventID).Result()
	if err != nil {
		return false, apperr.Upstream(apperr.Code(20, 2, 2), "could not check duplicate", err)
	}
	return n > 0, nil
}

// Mark unconditionally records eventId as seen for ttl. The document store
// dedup marker (§4.6 step 3) is authoritative; this only warms the fast
// pre-check so a duplicate redelivery short-circuits before ever reaching
// the document store.
func (s *Store) Mark(ctx context.Context, eventID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, dedupNamespace+eventID, time.Now().UTC().Format(time.RFC3339Nano), ttl).Err(); err != nil {
		return apperr.Upstream(apperr.Code(20, 2, 3), "could not mark duplicate", err)
	}
	return nil
}

// PutCart writes the cart snapshot into the write-through cache with TTL.
func (s *Store) PutCart(ctx context.Context, cartID string, value any, ttl time.Duration) error {
	body, err := json.Marshal(value)
	if err != nil {
		return apperr.Internal(apperr.Code(20, 3, 1), "could not encode cart", err)
	}
	if err := s.client.Set(ctx, cartNamespace+cartID, body, ttl).Err(); err != nil {
		return apperr.Upstream(apperr.Code(20, 3, 2), "could not write cart cache", err)
	}
	return nil
}

// GetCart reads a cached cart. ok is false on a cache miss (caller falls
// back to the document store, §4.1 "cache-first, document-store on miss").
func (s *Store) GetCart(ctx context.Context, cartID string, out any) (ok bool, err error) {
	body, err := s.client.Get(ctx, cartNamespace+cartID).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, apperr.Upstream(apperr.Code(20, 3, 3), "could not read cart cache", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return false, apperr.Internal(apperr.Code(20, 3, 4), "could not decode cart", err)
	}
	return true, nil
}

// EvictCart removes a cart from the cache (§3.2 "evicted from the cache
// after finalize").
func (s *Store) EvictCart(ctx context.Context, cartID string) error {
	if err := s.client.Del(ctx, cartNamespace+cartID).Err(); err != nil {
		return apperr.Upstream(apperr.Code(20, 3, 5), "could not evict cart cache", err)
	}
	return nil
}

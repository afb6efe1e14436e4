// Package ledger implements the event-delivery ledger and republish
// scheduler (C4, §3.5, §4.5). Ledger records live in the document store
// (C1) under the "delivery_status" collection; the scheduler shape is
// grounded on the teacher's apps/subscription-processor/cmd/main.go
// periodic-Lambda-with-local-loop dual pattern (HandleRequest vs
// LocalHandleRequest).
package ledger

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"poscore/internal/apperr"
	"poscore/internal/eventbus"
	"poscore/internal/logger"
	"poscore/internal/model"
	"poscore/internal/store"
)

const collection = "delivery_status"

// Ledger owns delivery-status records and the republish scheduler.
type Ledger struct {
	store       *store.Store
	bus         *eventbus.Bus
	subscribers []string
}

// New builds a Ledger with the configured subscriber set (§3.4: journal,
// report, inventory).
func New(s *store.Store, bus *eventbus.Bus, subscribers []string) *Ledger {
	return &Ledger{store: s, bus: bus, subscribers: subscribers}
}

// Publish writes a delivery-status record with status published and one
// pending subscriber entry per configured subscriber, then attempts the
// sidecar publish best-effort (§4.5 publish path). The ledger write, not
// the sidecar call, is what "publish succeeded" means to the caller.
func (l *Ledger) Publish(ctx context.Context, tenantID, topic, eventID string, payload any, attrs map[string]string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return apperr.Internal(apperr.Code(80, 1, 1), "could not publish event", err)
	}

	subs := make([]model.SubscriberEntry, len(l.subscribers))
	for i, name := range l.subscribers {
		subs[i] = model.SubscriberEntry{Name: name, Status: model.SubscriberPending}
	}

	ds := model.DeliveryStatus{
		Ambient:     model.Ambient{CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(), EntityTag: 1},
		EventID:     eventID,
		Topic:       topic,
		Payload:     body,
		Status:      model.DeliveryPublished,
		Subscribers: subs,
		PublishedAt: time.Now().UTC(),
	}

	if err := l.store.Insert(ctx, tenantID, collection, eventID, ds); err != nil {
		return err
	}

	if err := l.bus.Publish(ctx, topic, eventID, payload, attrs); err != nil {
		logger.Warn("sidecar publish failed, republish scheduler will retry",
			zap.String("eventId", eventID), zap.String("topic", topic), zap.Error(err))
	}
	return nil
}

// Ack records a subscriber's acknowledgement and recomputes overall status
// (§4.5 acknowledgement path). Retries on a concurrent-modification
// conflict with the store's standard CAS schedule.
func (l *Ledger) Ack(ctx context.Context, tenantID, eventID, subscriberName string, success bool, message string) error {
	return store.RetryCAS(ctx, func() error {
		var ds model.DeliveryStatus
		tag, err := l.store.Get(ctx, tenantID, collection, eventID, &ds)
		if err != nil {
			return err
		}

		found := false
		for i := range ds.Subscribers {
			if ds.Subscribers[i].Name != subscriberName {
				continue
			}
			found = true
			if success {
				ds.Subscribers[i].Status = model.SubscriberReceived
			} else {
				ds.Subscribers[i].Status = model.SubscriberFailed
			}
			ds.Subscribers[i].ReceivedAt = time.Now().UTC()
			ds.Subscribers[i].Message = message
		}
		if !found {
			return apperr.Validation(apperr.Code(80, 2, 1), "unknown subscriber", "subscriber %q is not configured for event %q", subscriberName, eventID)
		}

		ds.Status = overallStatus(ds.Subscribers, ds.Status)
		ds.UpdatedAt = time.Now().UTC()
		return l.store.CAS(ctx, tenantID, collection, eventID, tag, ds)
	})
}

// overallStatus derives the next overall status. Once delivered, it never
// reverts (§3.5 invariant).
func overallStatus(subs []model.SubscriberEntry, current model.DeliveryOverallStatus) model.DeliveryOverallStatus {
	if current == model.DeliveryDelivered {
		return current
	}

	received, failed, pending := 0, 0, 0
	for _, s := range subs {
		switch s.Status {
		case model.SubscriberReceived:
			received++
		case model.SubscriberFailed:
			failed++
		default:
			pending++
		}
	}

	switch {
	case received == len(subs):
		return model.DeliveryDelivered
	case received > 0 && (pending > 0 || failed > 0):
		return model.DeliveryPartiallyDelivered
	case failed == len(subs):
		return model.DeliveryFailed
	default:
		return current
	}
}

// RepublishResult summarizes one scheduler pass.
type RepublishResult struct {
	Scanned    int
	Republished int
	MarkedFailed int
}

// RunOnce scans delivery-status records for tenantID, republishing
// still-pending subscribers for records stuck past failAfter, and marking
// records older than lookback with no success as permanently failed with a
// critical alert (§4.5 "Republish scheduler").
func (l *Ledger) RunOnce(ctx context.Context, tenantID string, lookback, failAfter time.Duration) (RepublishResult, error) {
	var result RepublishResult
	var toRepublish []model.DeliveryStatus

	now := time.Now().UTC()

	err := l.store.Query(ctx, tenantID, collection, "", func(body []byte) error {
		var ds model.DeliveryStatus
		if err := json.Unmarshal(body, &ds); err != nil {
			return apperr.Internal(apperr.Code(80, 3, 1), "could not decode delivery record", err)
		}
		if ds.Status == model.DeliveryDelivered {
			return nil
		}
		result.Scanned++

		if now.Sub(ds.PublishedAt) > lookback {
			if ds.Status == model.DeliveryPartiallyDelivered {
				return nil
			}
			if err := l.markFailed(ctx, tenantID, ds); err != nil {
				return err
			}
			result.MarkedFailed++
			return nil
		}

		if now.Sub(ds.UpdatedAt) > failAfter {
			toRepublish = append(toRepublish, ds)
		}
		return nil
	})
	if err != nil {
		return result, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, ds := range toRepublish {
		ds := ds
		g.Go(func() error {
			return l.republishPending(gctx, tenantID, ds)
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}
	result.Republished = len(toRepublish)
	return result, nil
}

func (l *Ledger) markFailed(ctx context.Context, tenantID string, ds model.DeliveryStatus) error {
	return store.RetryCAS(ctx, func() error {
		var current model.DeliveryStatus
		tag, err := l.store.Get(ctx, tenantID, collection, ds.EventID, &current)
		if err != nil {
			return err
		}
		if current.Status == model.DeliveryDelivered {
			return nil
		}
		current.Status = model.DeliveryFailed
		current.UpdatedAt = time.Now().UTC()
		if err := l.store.CAS(ctx, tenantID, collection, ds.EventID, tag, current); err != nil {
			return err
		}
		logger.Error("delivery permanently failed past lookback, critical alert",
			zap.String("eventId", ds.EventID), zap.String("tenantId", tenantID))
		return nil
	})
}

func (l *Ledger) republishPending(ctx context.Context, tenantID string, ds model.DeliveryStatus) error {
	var payload any
	if err := json.Unmarshal(ds.Payload, &payload); err != nil {
		return apperr.Internal(apperr.Code(80, 3, 2), "could not decode payload for republish", err)
	}

	for _, sub := range ds.Subscribers {
		if sub.Status != model.SubscriberPending {
			continue
		}
		if err := l.bus.Publish(ctx, ds.Topic, ds.EventID, payload, map[string]string{"Subscriber": sub.Name}); err != nil {
			logger.Warn("republish attempt failed", zap.String("eventId", ds.EventID), zap.String("subscriber", sub.Name))
		}
	}

	return store.RetryCAS(ctx, func() error {
		var current model.DeliveryStatus
		tag, err := l.store.Get(ctx, tenantID, collection, ds.EventID, &current)
		if err != nil {
			return err
		}
		if current.Status == model.DeliveryDelivered {
			return nil
		}
		current.UpdatedAt = time.Now().UTC()
		return l.store.CAS(ctx, tenantID, collection, ds.EventID, tag, current)
	})
}

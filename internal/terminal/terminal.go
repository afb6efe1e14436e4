// Package terminal implements the terminal session controller (C12, §4.7):
// open/close lifecycle, cash-in/cash-out movements, and business-date
// advancement, each persisted through the document store and announced
// through the event-delivery ledger. Grounded on the small
// guard-then-transition shape of internal/cart, generalized from a cart's
// per-operation state table to a terminal's four-operation lifecycle.
package terminal

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"poscore/internal/apperr"
	"poscore/internal/constants"
	"poscore/internal/ledger"
	"poscore/internal/model"
	"poscore/internal/store"
)

const collection = "terminal_sessions"

// Service owns terminal session state and lifecycle transitions.
type Service struct {
	store  *store.Store
	ledger *ledger.Ledger
}

// New builds a Service.
func New(s *store.Store, l *ledger.Ledger) *Service {
	return &Service{store: s, ledger: l}
}

func key(ref model.TerminalRef) string {
	return ref.Key()
}

// theoreticalCash computes initial + cashIn - cashOut + cashSales -
// cashRefunds (§4.7 close formula).
func theoreticalCash(session model.TerminalSession) decimal.Decimal {
	return session.InitialAmount.
		Add(session.CashInTotal).
		Sub(session.CashOutTotal).
		Add(session.CashSalesTotal).
		Sub(session.CashRefundsTotal)
}

func guard(state, want string) error {
	if state != want {
		return apperr.Conflict(apperr.Code(60, 1, 1), "terminal is not in the expected state",
			"terminal session is %q, expected %q", state, want)
	}
	return nil
}

// getOrInit fetches the session, treating a never-opened terminal as idle
// rather than an error (every terminal starts idle implicitly).
func (s *Service) getOrInit(ctx context.Context, tenantID string, ref model.TerminalRef) (model.TerminalSession, int64, bool, error) {
	var session model.TerminalSession
	tag, err := s.store.Get(ctx, tenantID, collection, key(ref), &session)
	if err == nil {
		return session, tag, true, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return model.TerminalSession{}, 0, false, err
	}
	return model.TerminalSession{TerminalRef: ref, State: constants.TerminalStateIdle}, 0, false, nil
}

func (s *Service) persist(ctx context.Context, tenantID string, session model.TerminalSession, tag int64, existed bool) error {
	now := time.Now().UTC()
	session.UpdatedAt = now
	if !existed {
		session.CreatedAt = now
		session.EntityTag = 1
		return s.store.Insert(ctx, tenantID, collection, key(session.TerminalRef), session)
	}
	return s.store.CAS(ctx, tenantID, collection, key(session.TerminalRef), tag, session)
}

// Open transitions Idle -> Opened: assigns businessDate, increments
// openCounter, resets businessCounter and the running cash totals, and
// emits SessionEvent(open) (§4.7).
func (s *Service) Open(ctx context.Context, tenantID string, ref model.TerminalRef, businessDate string, initialAmount decimal.Decimal) (*model.TerminalSession, error) {
	var result model.TerminalSession
	err := store.RetryCAS(ctx, func() error {
		session, tag, existed, err := s.getOrInit(ctx, tenantID, ref)
		if err != nil {
			return err
		}
		if err := guard(session.State, constants.TerminalStateIdle); err != nil {
			return err
		}

		session.State = constants.TerminalStateOpened
		session.BusinessDate = businessDate
		session.OpenCounter++
		session.BusinessCounter = 0
		session.InitialAmount = initialAmount
		session.CashInTotal = decimal.Zero
		session.CashOutTotal = decimal.Zero
		session.CashSalesTotal = decimal.Zero
		session.CashRefundsTotal = decimal.Zero

		if err := s.persist(ctx, tenantID, session, tag, existed); err != nil {
			return err
		}
		result = session
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.publishSession(ctx, tenantID, result, "open", initialAmount, decimal.Zero, nil); err != nil {
		return nil, err
	}
	return &result, nil
}

// Close transitions Opened -> Closed: computes theoretical cash, the
// counted/theoretical difference, and emits SessionEvent(close) carrying
// the reconciliation (§4.7).
func (s *Service) Close(ctx context.Context, tenantID string, ref model.TerminalRef, countedAmount decimal.Decimal, cashMovementCount int) (*model.TerminalSession, *model.Reconciliation, error) {
	var result model.TerminalSession
	var recon model.Reconciliation

	err := store.RetryCAS(ctx, func() error {
		session, tag, existed, err := s.getOrInit(ctx, tenantID, ref)
		if err != nil {
			return err
		}
		if err := guard(session.State, constants.TerminalStateOpened); err != nil {
			return err
		}

		theoretical := theoreticalCash(session)
		difference := countedAmount.Sub(theoretical)

		recon = model.Reconciliation{
			TransactionCount:  session.BusinessCounter,
			LastTransactionNo: session.LastTransactionNo,
			CashMovementCount: cashMovementCount,
			TheoreticalCash:   theoretical,
			CountedCash:       countedAmount,
			Difference:        difference,
		}

		session.State = constants.TerminalStateClosed
		if err := s.persist(ctx, tenantID, session, tag, existed); err != nil {
			return err
		}
		result = session
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if err := s.publishSession(ctx, tenantID, result, "close", result.InitialAmount, countedAmount, &recon); err != nil {
		return nil, nil, err
	}
	return &result, &recon, nil
}

// CashIn records a cash-in movement, allowed only while Opened (§4.7).
func (s *Service) CashIn(ctx context.Context, tenantID string, ref model.TerminalRef, amount decimal.Decimal, reason string) error {
	return s.cashMovement(ctx, tenantID, ref, amount, reason)
}

// CashOut records a cash-out movement, allowed only while Opened (§4.7).
// amount is the positive magnitude removed; the stored CashEvent.Amount is
// negative per §3.4 ("positive for cash-in, negative for cash-out").
func (s *Service) CashOut(ctx context.Context, tenantID string, ref model.TerminalRef, amount decimal.Decimal, reason string) error {
	return s.cashMovement(ctx, tenantID, ref, amount.Neg(), reason)
}

func (s *Service) cashMovement(ctx context.Context, tenantID string, ref model.TerminalRef, signedAmount decimal.Decimal, reason string) error {
	var result model.TerminalSession
	err := store.RetryCAS(ctx, func() error {
		session, tag, existed, err := s.getOrInit(ctx, tenantID, ref)
		if err != nil {
			return err
		}
		if err := guard(session.State, constants.TerminalStateOpened); err != nil {
			return err
		}

		if signedAmount.IsNegative() {
			session.CashOutTotal = session.CashOutTotal.Add(signedAmount.Neg())
		} else {
			session.CashInTotal = session.CashInTotal.Add(signedAmount)
		}
		session.BusinessCounter++

		if err := s.persist(ctx, tenantID, session, tag, existed); err != nil {
			return err
		}
		result = session
		return nil
	})
	if err != nil {
		return err
	}

	event := model.CashEvent{
		EventEnvelope: model.EventEnvelope{
			EventID:      uuid.NewString(),
			TerminalRef:  ref,
			BusinessDate: result.BusinessDate,
			OpenCounter:  result.OpenCounter,
			PublishedAt:  time.Now().UTC(),
		},
		Amount:          signedAmount,
		Reason:          reason,
		BusinessCounter: result.BusinessCounter,
	}
	return s.ledger.Publish(ctx, tenantID, constants.TopicCashLog, event.EventID, event,
		map[string]string{"TenantId": tenantID, "EventType": "cash"})
}

// RecordCashSale folds a cash-tendered sale's net amount into the running
// theoretical-cash total. Called by the caller orchestrating a cash-paid
// Finalize, since the terminal controller does not itself inspect
// transaction payment details.
func (s *Service) RecordCashSale(ctx context.Context, tenantID string, ref model.TerminalRef, amount decimal.Decimal) error {
	return s.recordCashFlow(ctx, tenantID, ref, amount, false)
}

// RecordCashRefund folds a cash-tendered return/void's net amount into the
// running theoretical-cash total.
func (s *Service) RecordCashRefund(ctx context.Context, tenantID string, ref model.TerminalRef, amount decimal.Decimal) error {
	return s.recordCashFlow(ctx, tenantID, ref, amount, true)
}

func (s *Service) recordCashFlow(ctx context.Context, tenantID string, ref model.TerminalRef, amount decimal.Decimal, isRefund bool) error {
	return store.RetryCAS(ctx, func() error {
		session, tag, existed, err := s.getOrInit(ctx, tenantID, ref)
		if err != nil {
			return err
		}
		if err := guard(session.State, constants.TerminalStateOpened); err != nil {
			return err
		}
		if isRefund {
			session.CashRefundsTotal = session.CashRefundsTotal.Add(amount)
		} else {
			session.CashSalesTotal = session.CashSalesTotal.Add(amount)
		}
		session.BusinessCounter++
		return s.persist(ctx, tenantID, session, tag, existed)
	})
}

// AdvanceBusinessDate transitions Closed -> Idle, reassigning businessDate
// for the next open (§4.7).
func (s *Service) AdvanceBusinessDate(ctx context.Context, tenantID string, ref model.TerminalRef, nextBusinessDate string) (*model.TerminalSession, error) {
	var result model.TerminalSession
	err := store.RetryCAS(ctx, func() error {
		session, tag, existed, err := s.getOrInit(ctx, tenantID, ref)
		if err != nil {
			return err
		}
		if err := guard(session.State, constants.TerminalStateClosed); err != nil {
			return err
		}
		session.State = constants.TerminalStateIdle
		session.BusinessDate = nextBusinessDate
		if err := s.persist(ctx, tenantID, session, tag, existed); err != nil {
			return err
		}
		result = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *Service) publishSession(ctx context.Context, tenantID string, session model.TerminalSession, operation string, initialAmount, countedAmount decimal.Decimal, recon *model.Reconciliation) error {
	event := model.SessionEvent{
		EventEnvelope: model.EventEnvelope{
			EventID:      uuid.NewString(),
			TerminalRef:  session.TerminalRef,
			BusinessDate: session.BusinessDate,
			OpenCounter:  session.OpenCounter,
			PublishedAt:  time.Now().UTC(),
		},
		Operation:      operation,
		InitialAmount:  initialAmount,
		CountedAmount:  countedAmount,
		Reconciliation: recon,
	}
	return s.ledger.Publish(ctx, tenantID, constants.TopicOpenCloseLog, event.EventID, event,
		map[string]string{"TenantId": tenantID, "EventType": "session"})
}

// Get fetches the current session for ref, "idle" if never opened.
func (s *Service) Get(ctx context.Context, tenantID string, ref model.TerminalRef) (*model.TerminalSession, error) {
	session, _, _, err := s.getOrInit(ctx, tenantID, ref)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

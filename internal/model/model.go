// Package model holds the data-model types shared across the cart engine
// and event fabric (§3). Carts reference terminals, staff, and master-data
// items by code only, never by object identity, so these types stay
// serialisable and cache-evictable (§9 "graph-like references").
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Ambient fields every persisted entity carries (§3).
type Ambient struct {
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	ShardHint  string    `json:"shardHint"`
	EntityTag  int64     `json:"entityTag"`
}

// TerminalRef identifies a terminal by the (tenantId, storeCode,
// terminalNo) triple, canonicalised as tenantId-storeCode-terminalNo (§3.1).
type TerminalRef struct {
	TenantID   string `json:"tenantId"`
	StoreCode  string `json:"storeCode"`
	TerminalNo string `json:"terminalNo"`
}

// Key returns the canonical "tenantId-storeCode-terminalNo" string.
func (t TerminalRef) Key() string {
	return t.TenantID + "-" + t.StoreCode + "-" + t.TerminalNo
}

// DateKey returns the per-(terminal,businessDate) counter key used for
// transaction/receipt numbering (§5).
func (t TerminalRef) DateKey(businessDate string) string {
	return t.Key() + "-" + businessDate
}

// Discount (§3.2): code, kind (percent|absolute), declared value, and the
// amount it actually reduced once pricing resolves it.
type Discount struct {
	Code    string          `json:"code"`
	Kind    string          `json:"kind"`
	Value   decimal.Decimal `json:"value"`
	Applied decimal.Decimal `json:"applied"`
}

// TaxAllocation (§3.2): tax code, kind (external|internal|exempt), the
// amount the tax is computed against, and the resolved tax amount.
type TaxAllocation struct {
	TaxCode      string          `json:"taxCode"`
	Kind         string          `json:"kind"`
	TargetAmount decimal.Decimal `json:"targetAmount"`
	TaxAmount    decimal.Decimal `json:"taxAmount"`
}

// LineItem (§3.2).
type LineItem struct {
	LineNo      int             `json:"lineNo"`
	ItemCode    string          `json:"itemCode"`
	Description string          `json:"description"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    decimal.Decimal `json:"quantity"`
	Amount      decimal.Decimal `json:"amount"`
	TaxCode     string          `json:"taxCode"`
	IsCancelled bool            `json:"isCancelled"`
	Discounts   []Discount      `json:"discounts"`
	Taxes       []TaxAllocation `json:"taxes"`
}

// PaymentEntry (§4.3).
type PaymentEntry struct {
	Code     string          `json:"code"`
	Amount   decimal.Decimal `json:"amount"`
	Change   decimal.Decimal `json:"change"`
	AddedAt  time.Time       `json:"addedAt"`
}

// Totals carries the computed sales totals a priced cart or finalized
// transaction exposes (§4.2, §4.6).
type Totals struct {
	GrossSales        decimal.Decimal `json:"grossSales"`
	NetSales          decimal.Decimal `json:"netSales"`
	TotalWithTax       decimal.Decimal `json:"totalWithTax"`
	TaxableTotal       decimal.Decimal `json:"taxableTotal"`
	LineDiscountTotal  decimal.Decimal `json:"lineDiscountTotal"`
	SubtotalDiscountTotal decimal.Decimal `json:"subtotalDiscountTotal"`
	TotalTax           decimal.Decimal `json:"totalTax"`
	NetDue             decimal.Decimal `json:"netDue"`
}

// Cart (§3.2).
type Cart struct {
	Ambient
	CartID             string         `json:"cartId"`
	TerminalRef        TerminalRef    `json:"terminalRef"`
	State              string         `json:"state"`
	LineItems          []LineItem     `json:"lineItems"`
	SubtotalDiscounts  []Discount     `json:"subtotalDiscounts"`
	Payments           []PaymentEntry `json:"payments"`
	StaffRef           string         `json:"staffRef,omitempty"`
	BusinessDate       string         `json:"businessDate"`
	OpenCounter        int            `json:"openCounter"`
	BusinessCounter    int            `json:"businessCounter"`
	ReceiptNo          int            `json:"receiptNo,omitempty"`
	TransactionNo      int            `json:"transactionNo,omitempty"`
	Totals             Totals         `json:"totals"`
	History            []string       `json:"history"`
}

// Transaction (§3.3), persisted immutably from a finalized cart.
type Transaction struct {
	Ambient
	TransactionNo     int            `json:"transactionNo"`
	TransactionType   int            `json:"transactionType"`
	TerminalRef       TerminalRef    `json:"terminalRef"`
	BusinessDate      string         `json:"businessDate"`
	OpenCounter       int            `json:"openCounter"`
	BusinessCounter   int            `json:"businessCounter"`
	ReceiptNo         int            `json:"receiptNo"`
	CartID            string         `json:"cartId"`
	LineItems         []LineItem     `json:"lineItems"`
	SubtotalDiscounts []Discount     `json:"subtotalDiscounts"`
	Payments          []PaymentEntry `json:"payments"`
	StaffRef          string         `json:"staffRef,omitempty"`
	Totals            Totals         `json:"totals"`
	IsCancelled        bool          `json:"isCancelled"`
	ReferencesTransactionNo int      `json:"referencesTransactionNo,omitempty"`
	ReceiptText       string         `json:"receiptText"`
	JournalText       string         `json:"journalText"`
}

// TerminalSession (§4.7) tracks a terminal's open/close lifecycle and the
// running cash totals needed for close-time reconciliation.
type TerminalSession struct {
	Ambient
	TerminalRef       TerminalRef     `json:"terminalRef"`
	State             string          `json:"state"`
	BusinessDate      string          `json:"businessDate"`
	OpenCounter       int             `json:"openCounter"`
	BusinessCounter   int             `json:"businessCounter"`
	InitialAmount     decimal.Decimal `json:"initialAmount"`
	CashInTotal       decimal.Decimal `json:"cashInTotal"`
	CashOutTotal      decimal.Decimal `json:"cashOutTotal"`
	CashSalesTotal    decimal.Decimal `json:"cashSalesTotal"`
	CashRefundsTotal  decimal.Decimal `json:"cashRefundsTotal"`
	LastTransactionNo int             `json:"lastTransactionNo"`
}

// EventEnvelope is the common header of every published event (§3.4).
type EventEnvelope struct {
	EventID      string      `json:"eventId"`
	TerminalRef  TerminalRef `json:"terminalRef"`
	BusinessDate string      `json:"businessDate"`
	OpenCounter  int         `json:"openCounter"`
	PublishedAt  time.Time   `json:"publishedAt"`
}

// TransactionEvent (§3.4).
type TransactionEvent struct {
	EventEnvelope
	Transaction Transaction `json:"transaction"`
}

// CashEvent (§3.4). Amount is positive for cash-in, negative for cash-out.
type CashEvent struct {
	EventEnvelope
	Amount          decimal.Decimal `json:"amount"`
	Reason          string          `json:"reason"`
	BusinessCounter int             `json:"businessCounter"`
}

// Reconciliation (§3.4, SessionEvent payload).
type Reconciliation struct {
	TransactionCount  int             `json:"transactionCount"`
	LastTransactionNo int            `json:"lastTransactionNo"`
	CashMovementCount int             `json:"cashMovementCount"`
	TheoreticalCash   decimal.Decimal `json:"theoreticalCash"`
	CountedCash       decimal.Decimal `json:"countedCash"`
	Difference        decimal.Decimal `json:"difference"`
}

// SessionEvent (§3.4).
type SessionEvent struct {
	EventEnvelope
	Operation      string          `json:"operation"` // "open" | "close"
	InitialAmount  decimal.Decimal `json:"initialAmount"`
	CountedAmount  decimal.Decimal `json:"countedAmount,omitempty"`
	Reconciliation *Reconciliation `json:"reconciliation,omitempty"`
}

// SubscriberStatus is one subscriber entry's delivery state (§3.5).
type SubscriberStatus string

const (
	SubscriberPending SubscriberStatus = "pending"
	SubscriberReceived SubscriberStatus = "received"
	SubscriberFailed  SubscriberStatus = "failed"
)

// DeliveryOverallStatus is the overall delivery-status record state (§3.5).
type DeliveryOverallStatus string

const (
	DeliveryPublished         DeliveryOverallStatus = "published"
	DeliveryDelivered         DeliveryOverallStatus = "delivered"
	DeliveryPartiallyDelivered DeliveryOverallStatus = "partially_delivered"
	DeliveryFailed            DeliveryOverallStatus = "failed"
)

// SubscriberEntry (§3.5).
type SubscriberEntry struct {
	Name       string           `json:"name"`
	Status     SubscriberStatus `json:"status"`
	ReceivedAt time.Time        `json:"receivedAt,omitempty"`
	Message    string           `json:"message,omitempty"`
}

// DeliveryStatus (§3.5). Overall status transitions only forward; once
// delivered it never reverts.
type DeliveryStatus struct {
	Ambient
	EventID     string                `json:"eventId"`
	Topic       string                `json:"topic"`
	Payload     []byte                `json:"payload"`
	Status      DeliveryOverallStatus `json:"status"`
	Subscribers []SubscriberEntry     `json:"subscribers"`
	PublishedAt time.Time             `json:"publishedAt"`
}

// JournalEntry (§3.6), derived and immutable.
type JournalEntry struct {
	Ambient
	EventID         string      `json:"eventId"`
	TransactionType int         `json:"transactionType"`
	TerminalRef     TerminalRef `json:"terminalRef"`
	BusinessDate    string      `json:"businessDate"`
	OpenCounter     int         `json:"openCounter"`
	BusinessCounter int         `json:"businessCounter"`
	TransactionNo   int         `json:"transactionNo"`
	ReceiptNo       int         `json:"receiptNo"`
	Totals          Totals      `json:"totals"`
	ReceiptText     string      `json:"receiptText"`
	JournalText     string      `json:"journalText"`
}
